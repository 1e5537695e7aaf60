package domain

import (
	"strings"
	"time"
)

// Role is the participant role, parsed once at the connection boundary.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// ParseRole normalizes a raw role string from the auth provider.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "student":
		return RoleStudent, true
	case "teacher":
		return RoleTeacher, true
	default:
		return "", false
	}
}

// Identity is one authenticated participant. Role never changes after
// authentication.
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Section string `json:"section"`
	Role    Role   `json:"role"`
}

// LobbyEntry is an identity's placement in the waiting lobby, optionally
// inside one named sub-lobby and, once a session started, one group.
type LobbyEntry struct {
	Identity   Identity  `json:"identity"`
	SubLobbyID string    `json:"subLobbyId,omitempty"`
	Group      int       `json:"group,omitempty"`
	Ready      bool      `json:"ready"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// SubLobby is a teacher-created named grouping of waiting students.
type SubLobby struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"createdAt"`
}

// QuestionStatus is the lifecycle state of one chest. Transitions are
// monotonic: available -> claimed -> completed.
type QuestionStatus string

const (
	QuestionAvailable QuestionStatus = "available"
	QuestionClaimed   QuestionStatus = "claimed"
	QuestionCompleted QuestionStatus = "completed"
)

// Claim records who currently holds a chest.
type Claim struct {
	ClaimantID   string `json:"claimantId"`
	ClaimantName string `json:"claimantName"`
}

// Outcome records the final submission on a completed chest.
type Outcome struct {
	Answer      string    `json:"answer"`
	Correct     bool      `json:"correct"`
	CompletedAt time.Time `json:"completedAt"`
}

// QuestionState is the live state of one chest inside a session. Claim is
// nil exactly when Status is available; Outcome is nil until completed.
type QuestionState struct {
	ID      string         `json:"id"`
	Title   string         `json:"title,omitempty"`
	Status  QuestionStatus `json:"status"`
	Claim   *Claim         `json:"claim,omitempty"`
	Outcome *Outcome       `json:"outcome,omitempty"`
}

// Question is one entry of the question bank: a chest prompt plus its
// canonical answer.
type Question struct {
	ID          string `json:"questionId"`
	ChapterID   string `json:"chapterId"`
	LevelID     string `json:"levelId"`
	Title       string `json:"questionTitle"`
	Description string `json:"description"`
	Answer      string `json:"answer"`
}

// AnswerCorrect reports whether a submitted value matches the canonical
// answer. Comparison is trimmed and case-insensitive.
func (q Question) AnswerCorrect(submitted string) bool {
	return strings.EqualFold(strings.TrimSpace(q.Answer), strings.TrimSpace(submitted))
}

// SessionKey derives the unique key for one chapter/level run, optionally
// scoped to a sub-lobby.
func SessionKey(chapterID, levelID, subLobbyID string) string {
	key := chapterID + ":" + levelID
	if subLobbyID != "" {
		key += ":" + subLobbyID
	}
	return key
}

// SessionPhase is the lifecycle phase of a session once it exists.
type SessionPhase string

const (
	PhaseActive    SessionPhase = "active"
	PhaseCompleted SessionPhase = "completed"
	PhaseEnded     SessionPhase = "ended"
)

// AnswerResult is the private acknowledgment sent to a submitter.
type AnswerResult struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer,omitempty"`
}
