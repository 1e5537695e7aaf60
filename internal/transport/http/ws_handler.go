package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"treasure-quest-service/internal/app"
	"treasure-quest-service/internal/domain"
)

type WSHandler struct {
	registry *app.Registry
	lobby    *app.LobbyTracker
	game     *app.GameService
	hub      *app.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *app.Registry, lobby *app.LobbyTracker, game *app.GameService, hub *app.Hub) *WSHandler {
	return &WSHandler{
		registry: registry,
		lobby:    lobby,
		game:     game,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type subLobbyPayload struct {
	SubLobbyID string `json:"subLobbyId"`
	Name       string `json:"name"`
	Capacity   int    `json:"capacity"`
}

type startGamePayload struct {
	Chapter    string `json:"chapter"`
	Level      string `json:"level"`
	GroupCount int    `json:"groupCount"`
	SubLobbyID string `json:"subLobbyId"`
}

type readyPayload struct {
	Ready bool `json:"ready"`
}

type questionPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type endGamePayload struct {
	Chapter    string `json:"chapter"`
	Level      string `json:"level"`
	SubLobbyID string `json:"subLobbyId"`
}

// ServeWS upgrades the request, authenticates the connection exactly once
// and wires it into the lobby and session use cases. Authentication failure
// is terminal for the connection; every later denial is a normal reply.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := app.NewConnID()
	ident, err := h.registry.Authenticate(r.Context(), connID, token)
	if err != nil {
		_ = conn.WriteJSON(domain.Event{Type: domain.EventDenied, Payload: domain.DenialPayload{Reason: domain.ErrUnauthorized.Error()}})
		return
	}
	defer h.registry.Disconnect(connID)

	updates, cancel := h.hub.Subscribe(connID)
	defer cancel()

	send := make(chan domain.Event, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for evt := range send {
			if err := conn.WriteJSON(evt); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- update:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Identity snapshot first, so the client knows who it is without
	// polling, then the current lobby state so a reconnect renders
	// immediately.
	send <- domain.Event{Type: domain.EventIdentitySnapshot, Payload: ident}
	send <- domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: h.lobby.Snapshot()}
	send <- domain.Event{Type: domain.EventSubLobbyUpdate, Payload: h.lobby.SubLobbies()}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r.Context(), ident, inbound, send)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, ident domain.Identity, inbound inboundMessage, send chan<- domain.Event) {
	switch inbound.Type {
	case "joinWaitingLobby":
		roster, err := h.lobby.JoinWaiting(ident)
		if err != nil {
			send <- denial(domain.EventDenied, err)
			return
		}
		send <- domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: roster}

	case "setReady":
		var payload readyPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		roster, err := h.lobby.SetReady(ident, payload.Ready)
		if err != nil {
			send <- denial(domain.EventDenied, err)
			return
		}
		send <- domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: roster}

	case "createSubLobby":
		var payload subLobbyPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		sl, err := h.lobby.CreateSubLobby(ident, payload.Name, payload.Capacity)
		if err != nil {
			send <- denial(domain.EventDenied, err)
			return
		}
		send <- domain.Event{Type: domain.EventSubLobbyUpdate, Payload: sl}

	case "joinSubLobby":
		var payload subLobbyPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if err := h.lobby.JoinSubLobby(ident, payload.SubLobbyID); err != nil {
			send <- denial(domain.EventDenied, err)
		}

	case "leaveSubLobby":
		var payload subLobbyPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if err := h.lobby.RemoveFromSubLobby(ident.ID, payload.SubLobbyID); err != nil {
			send <- denial(domain.EventDenied, err)
		}

	case "deleteSubLobby":
		var payload subLobbyPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if err := h.lobby.DeleteSubLobby(ident, payload.SubLobbyID); err != nil {
			send <- denial(domain.EventDenied, err)
		}

	case "deleteAllSubLobbies":
		if err := h.lobby.DeleteAllSubLobbies(ident); err != nil {
			send <- denial(domain.EventDenied, err)
		}

	case "startGame":
		var payload startGamePayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		ack, err := h.game.StartGame(ctx, ident, payload.Chapter, payload.Level, payload.GroupCount, payload.SubLobbyID)
		if err != nil {
			send <- denial(domain.EventDenied, err)
			return
		}
		send <- domain.Event{Type: "startAck", Payload: ack}

	case "claimQuestion":
		var payload questionPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if _, err := h.game.ClaimQuestion(ident, payload.QuestionID); err != nil {
			send <- denial(domain.EventClaimDenied, err)
		}

	case "submitAnswer":
		var payload questionPayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		result, err := h.game.SubmitAnswer(ident, payload.QuestionID, payload.Answer)
		if err != nil {
			send <- denial(domain.EventSubmitDenied, err)
			return
		}
		send <- domain.Event{Type: domain.EventAnswerResult, Payload: result}

	case "endGame":
		var payload endGamePayload
		if !decode(inbound.Payload, &payload, send) {
			return
		}
		if err := h.game.EndGame(ident, payload.Chapter, payload.Level, payload.SubLobbyID); err != nil {
			send <- denial(domain.EventDenied, err)
		}

	case "getCurrentLobby":
		send <- domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: h.lobby.Snapshot()}
		send <- domain.Event{Type: domain.EventSubLobbyUpdate, Payload: h.lobby.SubLobbies()}

	case "getCurrentQuestions":
		var payload endGamePayload
		if len(inbound.Payload) > 0 && !decode(inbound.Payload, &payload, send) {
			return
		}
		state, err := h.game.Questions(ident, payload.Chapter, payload.Level, payload.SubLobbyID)
		if err != nil {
			send <- denial(domain.EventDenied, err)
			return
		}
		send <- domain.Event{Type: domain.EventQuestionStateUpdate, Payload: state}

	default:
		send <- domain.Event{Type: domain.EventDenied, Payload: domain.DenialPayload{Reason: "unsupported message type"}}
	}
}

func decode(raw json.RawMessage, v any, send chan<- domain.Event) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		send <- domain.Event{Type: domain.EventDenied, Payload: domain.DenialPayload{Reason: "invalid payload"}}
		return false
	}
	return true
}

func denial(eventType string, err error) domain.Event {
	return domain.Event{Type: eventType, Payload: domain.DenialPayload{Reason: err.Error()}}
}
