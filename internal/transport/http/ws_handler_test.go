package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"treasure-quest-service/internal/app"
	"treasure-quest-service/internal/domain"
	"treasure-quest-service/internal/infra/memory"
)

func TestWebSocketSessionFlow(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	teacher := dialWS(t, server, "teacher-token")
	defer teacher.Close()
	alice := dialWS(t, server, "alice-token")
	defer alice.Close()
	bob := dialWS(t, server, "bob-token")
	defer bob.Close()

	// Every connection learns who it is first.
	for _, conn := range []*websocket.Conn{teacher, alice, bob} {
		var ident domain.Identity
		readUntil(t, conn, domain.EventIdentitySnapshot, &ident)
		if ident.ID == "" {
			t.Fatalf("expected identity snapshot with id")
		}
	}

	writeEvent(t, alice, "joinWaitingLobby", nil)
	waitForRoster(t, alice, 1)
	writeEvent(t, bob, "joinWaitingLobby", nil)
	waitForRoster(t, bob, 2)

	writeEvent(t, teacher, "startGame", map[string]any{
		"chapter": "chapter1", "level": "level1", "groupCount": 2,
	})
	var ack app.StartAck
	readUntil(t, teacher, "startAck", &ack)
	if ack.Students != 2 {
		t.Fatalf("expected 2 students in start ack, got %d", ack.Students)
	}
	readUntil(t, alice, domain.EventSessionStarted, nil)

	writeEvent(t, alice, "claimQuestion", map[string]any{"questionId": "chest1"})
	var state domain.QuestionStatePayload
	readUntil(t, bob, domain.EventQuestionStateUpdate, &state)
	if state.Questions["chest1"].Status != domain.QuestionClaimed {
		t.Fatalf("expected chest1 claimed in broadcast, got %v", state.Questions["chest1"].Status)
	}

	writeEvent(t, bob, "claimQuestion", map[string]any{"questionId": "chest1"})
	var denial domain.DenialPayload
	readUntil(t, bob, domain.EventClaimDenied, &denial)
	if denial.Reason == "" {
		t.Fatalf("expected denial reason")
	}

	writeEvent(t, alice, "submitAnswer", map[string]any{"questionId": "chest1", "answer": "Focal Point"})
	var result domain.AnswerResult
	readUntil(t, alice, domain.EventAnswerResult, &result)
	if !result.Correct {
		t.Fatalf("expected correct answer result, got %+v", result)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dialWS(t, server, "bad-token")
	defer conn.Close()

	readUntil(t, conn, domain.EventDenied, nil)
	// Authentication failure is terminal for the connection.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to be closed after denial")
	}
}

func TestWebSocketReconnectKeepsLobbyMembership(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	alice := dialWS(t, server, "alice-token")
	readUntil(t, alice, domain.EventIdentitySnapshot, nil)
	writeEvent(t, alice, "joinWaitingLobby", nil)
	waitForRoster(t, alice, 1)
	alice.Close()

	// Reconnect within the grace window: the waiting entry must survive,
	// and the current lobby is pushed without the client asking.
	again := dialWS(t, server, "alice-token")
	defer again.Close()
	readUntil(t, again, domain.EventIdentitySnapshot, nil)
	var roster []domain.LobbyEntry
	readUntil(t, again, domain.EventWaitingLobbyUpdate, &roster)
	if len(roster) != 1 || roster[0].Identity.ID != "a1" {
		t.Fatalf("expected Alice still in the waiting lobby, got %+v", roster)
	}

	// The explicit query must return the same view.
	writeEvent(t, again, "getCurrentLobby", nil)
	roster = nil
	readUntil(t, again, domain.EventWaitingLobbyUpdate, &roster)
	if len(roster) != 1 {
		t.Fatalf("expected queried snapshot to match, got %+v", roster)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	auth := memory.NewStaticAuthenticator(map[string]domain.Identity{
		"teacher-token": {ID: "t1", Name: "Teacher", Section: "A", Role: domain.RoleTeacher},
		"alice-token":   {ID: "a1", Name: "Alice", Section: "A", Role: domain.RoleStudent},
		"bob-token":     {ID: "b1", Name: "Bob", Section: "A", Role: domain.RoleStudent},
	})
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader([]domain.Question{
		{ID: "chest1", ChapterID: "chapter1", LevelID: "level1", Title: "Concave mirror", Answer: "focal point"},
		{ID: "chest2", ChapterID: "chapter1", LevelID: "level1", Title: "Plane mirror", Answer: "virtual"},
	}), time.Minute)

	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)
	game := app.NewGameService(lobby, bank, hub)
	registry := app.NewRegistry(auth, 2*time.Second, game.HandleDeparture)
	handler := NewWSHandler(registry, lobby, game, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	return httptest.NewServer(mux)
}

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, msgType string, payload map[string]any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// waitForRoster scans waiting-lobby updates until the roster reaches the
// wanted size, so later writes are ordered after the observed commit.
func waitForRoster(t *testing.T, conn *websocket.Conn, want int) {
	t.Helper()
	for i := 0; i < 20; i++ {
		var roster []domain.LobbyEntry
		readUntil(t, conn, domain.EventWaitingLobbyUpdate, &roster)
		if len(roster) == want {
			return
		}
	}
	t.Fatalf("gave up waiting for a roster of %d", want)
}

// readUntil scans past unrelated broadcasts until an event of the wanted
// type arrives, then decodes its payload into out when given.
func readUntil(t *testing.T, conn *websocket.Conn, want string, out any) {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", want, err)
		}
		if msg.Type != want {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(msg.Payload, out); err != nil {
				t.Fatalf("decode %s payload: %v", want, err)
			}
		}
		return
	}
	t.Fatalf("gave up waiting for %s", want)
}
