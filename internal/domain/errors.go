package domain

import "errors"

var (
	// ErrUnauthorized is returned when a connection cannot be bound to an
	// identity; it is terminal for that connection only.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRoleNotPermitted is returned for student-only or teacher-only
	// actions attempted by the wrong role.
	ErrRoleNotPermitted = errors.New("role not permitted")
	// ErrEmptyRoster is returned when a game start targets no students.
	ErrEmptyRoster = errors.New("empty roster")
	// ErrSessionAlreadyActive is returned on a duplicate start for a key.
	ErrSessionAlreadyActive = errors.New("session already active")
	// ErrNoActiveSession is returned for claim/submit/query against a key
	// with no active session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrQuestionNotFound indicates an unknown question id.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionUnavailable is returned when a chest is held by someone
	// else or already completed.
	ErrQuestionUnavailable = errors.New("question unavailable")
	// ErrNotClaimant is returned when a submitter does not hold the chest.
	ErrNotClaimant = errors.New("not the claimant")
	// ErrSubLobbyFull is returned when a sub-lobby is at capacity.
	ErrSubLobbyFull = errors.New("sub-lobby full")
	// ErrSubLobbyNotFound indicates an unknown sub-lobby id.
	ErrSubLobbyNotFound = errors.New("sub-lobby not found")
	// ErrQuestionSetNotFound indicates no bank content for a chapter/level.
	ErrQuestionSetNotFound = errors.New("question set not found")
)
