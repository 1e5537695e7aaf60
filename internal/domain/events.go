package domain

import "time"

// Event is one outbound signal. Broadcast events reach every connection;
// targeted events travel on the requesting connection only.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Outbound event types.
const (
	EventIdentitySnapshot    = "identitySnapshot"
	EventWaitingLobbyUpdate  = "waitingLobbyUpdate"
	EventSubLobbyUpdate      = "subLobbyUpdate"
	EventSessionStarted      = "sessionStarted"
	EventQuestionStateUpdate = "questionStateUpdate"
	EventClaimDenied         = "claimDenied"
	EventSubmitDenied        = "submitDenied"
	EventAnswerResult        = "answerResult"
	EventSessionCompleted    = "sessionCompleted"
	EventSessionEnded        = "sessionEnded"
	EventDenied              = "denied"
)

// SubLobbyUpdatePayload carries the full sub-lobby list plus memberships.
type SubLobbyUpdatePayload struct {
	SubLobbies []SubLobby   `json:"subLobbies"`
	Members    []LobbyEntry `json:"members"`
}

// SessionStartedPayload announces a new active session to all connections.
type SessionStartedPayload struct {
	SessionKey       string         `json:"sessionKey"`
	ChapterID        string         `json:"chapterId"`
	LevelID          string         `json:"levelId"`
	GroupAssignments map[string]int `json:"groupAssignments"`
	StartedAt        time.Time      `json:"startedAt"`
}

// QuestionStatePayload is the full chest map after any claim or submit.
type QuestionStatePayload struct {
	SessionKey string                   `json:"sessionKey"`
	Questions  map[string]QuestionState `json:"questions"`
}

// SessionCompletedPayload is broadcast once all chests are resolved.
type SessionCompletedPayload struct {
	SessionKey  string                   `json:"sessionKey"`
	ChapterID   string                   `json:"chapterId"`
	LevelID     string                   `json:"levelId"`
	Results     map[string]QuestionState `json:"results"`
	CompletedAt time.Time                `json:"completedAt"`
}

// SessionEndedPayload is broadcast when a teacher aborts a session.
type SessionEndedPayload struct {
	SessionKey string `json:"sessionKey"`
	ChapterID  string `json:"chapterId"`
	LevelID    string `json:"levelId"`
}

// DenialPayload carries a short human-readable reason for a rejected request.
type DenialPayload struct {
	Reason string `json:"reason"`
}
