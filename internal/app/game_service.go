package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"treasure-quest-service/internal/domain"
)

// QuestionBank loads the chest catalog (including canonical answers) for a
// chapter/level. Consulted once per game start; claim/submit never leave
// memory.
type QuestionBank interface {
	QuestionSet(ctx context.Context, chapterID, levelID string) ([]domain.Question, error)
}

// session is one run of the game for a session key. Only active sessions
// live in the service map; terminal sessions return their key to idle.
type session struct {
	key        string
	chapterID  string
	levelID    string
	subLobbyID string
	phase      domain.SessionPhase
	startedAt  time.Time
	groupCount int
	groups     map[string]int
	roster     map[string]domain.Identity
	questions  map[string]domain.QuestionState
	answers    map[string]domain.Question
}

// StartAck is the acknowledgment returned to the initiating teacher.
type StartAck struct {
	SessionKey string         `json:"sessionKey"`
	ChapterID  string         `json:"chapterId"`
	LevelID    string         `json:"levelId"`
	Students   int            `json:"students"`
	Groups     map[string]int `json:"groups"`
}

// GameService is the session state machine. One mutex guards the session
// map and the participant index, so every claim/submit is a single
// uninterrupted read-modify-write.
type GameService struct {
	lobby *LobbyTracker
	bank  QuestionBank
	hub   *Hub
	now   func() time.Time
	rng   *rand.Rand

	mu            sync.Mutex
	sessions      map[string]*session
	byParticipant map[string]string
}

func NewGameService(lobby *LobbyTracker, bank QuestionBank, hub *Hub) *GameService {
	return &GameService{
		lobby:         lobby,
		bank:          bank,
		hub:           hub,
		now:           time.Now,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions:      make(map[string]*session),
		byParticipant: make(map[string]string),
	}
}

// NewGameServiceWithClock is test-only for deterministic timestamps and
// shuffles.
func NewGameServiceWithClock(lobby *LobbyTracker, bank QuestionBank, hub *Hub, now func() time.Time, seed int64) *GameService {
	gs := NewGameService(lobby, bank, hub)
	gs.now = now
	gs.rng = rand.New(rand.NewSource(seed))
	return gs
}

// StartGame transitions a session key from idle to active: seeds the chest
// catalog, assigns groups over the waiting roster (optionally scoped to one
// sub-lobby), moves participants out of the waiting lobby and announces the
// session to everyone.
func (g *GameService) StartGame(ctx context.Context, teacher domain.Identity, chapterID, levelID string, groupCount int, subLobbyID string) (StartAck, error) {
	if teacher.Role != domain.RoleTeacher {
		return StartAck{}, domain.ErrRoleNotPermitted
	}

	questions, err := g.bank.QuestionSet(ctx, chapterID, levelID)
	if err != nil {
		return StartAck{}, fmt.Errorf("load question set: %w", err)
	}
	if len(questions) == 0 {
		return StartAck{}, domain.ErrQuestionSetNotFound
	}

	g.mu.Lock()
	key := domain.SessionKey(chapterID, levelID, subLobbyID)
	if _, active := g.sessions[key]; active {
		g.mu.Unlock()
		return StartAck{}, domain.ErrSessionAlreadyActive
	}

	// Waiting students already on an active session's roster are skipped:
	// a participant belongs to at most one active session.
	roster := g.lobby.RosterFor(subLobbyID)
	ids := make([]string, 0, len(roster))
	rosterByID := make(map[string]domain.Identity, len(roster))
	for _, ident := range roster {
		if _, busy := g.byParticipant[ident.ID]; busy {
			continue
		}
		ids = append(ids, ident.ID)
		rosterByID[ident.ID] = ident
	}
	if len(ids) == 0 {
		g.mu.Unlock()
		return StartAck{}, domain.ErrEmptyRoster
	}
	groups := AssignGroups(ids, groupCount, g.rng)

	s := &session{
		key:        key,
		chapterID:  chapterID,
		levelID:    levelID,
		subLobbyID: subLobbyID,
		phase:      domain.PhaseActive,
		startedAt:  g.now(),
		groupCount: groupCount,
		groups:     groups,
		roster:     rosterByID,
		questions:  make(map[string]domain.QuestionState, len(questions)),
		answers:    make(map[string]domain.Question, len(questions)),
	}
	for _, q := range questions {
		s.questions[q.ID] = domain.QuestionState{ID: q.ID, Title: q.Title, Status: domain.QuestionAvailable}
		s.answers[q.ID] = q
	}

	g.sessions[key] = s
	for _, id := range ids {
		g.byParticipant[id] = key
	}
	started := domain.SessionStartedPayload{
		SessionKey:       key,
		ChapterID:        chapterID,
		LevelID:          levelID,
		GroupAssignments: groups,
		StartedAt:        s.startedAt,
	}
	g.mu.Unlock()

	g.lobby.SetGroups(groups)
	g.lobby.ClearWaiting(ids)
	g.hub.Broadcast(domain.Event{Type: domain.EventSessionStarted, Payload: started})

	return StartAck{
		SessionKey: key,
		ChapterID:  chapterID,
		LevelID:    levelID,
		Students:   len(ids),
		Groups:     groups,
	}, nil
}

// ClaimQuestion reserves a chest for a student. The first successful claim
// wins; re-claiming one's own chest (page refresh) is idempotent. Everyone
// receives the updated chest map so claimed chests grey out in real time.
func (g *GameService) ClaimQuestion(ident domain.Identity, questionID string) (domain.QuestionStatePayload, error) {
	g.mu.Lock()

	s, err := g.sessionForLocked(ident.ID)
	if err != nil {
		g.mu.Unlock()
		return domain.QuestionStatePayload{}, err
	}
	q, ok := s.questions[questionID]
	if !ok {
		g.mu.Unlock()
		return domain.QuestionStatePayload{}, domain.ErrQuestionNotFound
	}

	switch {
	case q.Status == domain.QuestionAvailable:
	case q.Status == domain.QuestionClaimed && q.Claim.ClaimantID == ident.ID:
	default:
		g.mu.Unlock()
		return domain.QuestionStatePayload{}, domain.ErrQuestionUnavailable
	}

	s.questions[questionID] = domain.QuestionState{
		ID:     q.ID,
		Title:  q.Title,
		Status: domain.QuestionClaimed,
		Claim:  &domain.Claim{ClaimantID: ident.ID, ClaimantName: ident.Name},
	}
	payload := s.statePayloadLocked()
	g.mu.Unlock()

	g.hub.Broadcast(domain.Event{Type: domain.EventQuestionStateUpdate, Payload: payload})
	return payload, nil
}

// SubmitAnswer resolves a chest held by the submitter. The transition to
// completed is final; when it closes the last open chest the session
// completes and the full results snapshot is broadcast.
func (g *GameService) SubmitAnswer(ident domain.Identity, questionID, answer string) (domain.AnswerResult, error) {
	g.mu.Lock()

	s, err := g.sessionForLocked(ident.ID)
	if err != nil {
		g.mu.Unlock()
		return domain.AnswerResult{}, err
	}
	q, ok := s.questions[questionID]
	if !ok {
		g.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}
	if q.Status == domain.QuestionCompleted {
		g.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrQuestionUnavailable
	}
	if q.Status != domain.QuestionClaimed || q.Claim.ClaimantID != ident.ID {
		g.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrNotClaimant
	}

	canonical := s.answers[questionID]
	correct := canonical.AnswerCorrect(answer)
	completedAt := g.now()
	s.questions[questionID] = domain.QuestionState{
		ID:      q.ID,
		Title:   q.Title,
		Status:  domain.QuestionCompleted,
		Claim:   q.Claim,
		Outcome: &domain.Outcome{Answer: answer, Correct: correct, CompletedAt: completedAt},
	}

	payload := s.statePayloadLocked()
	var completed *domain.SessionCompletedPayload
	if s.allCompletedLocked() {
		s.phase = domain.PhaseCompleted
		completed = &domain.SessionCompletedPayload{
			SessionKey:  s.key,
			ChapterID:   s.chapterID,
			LevelID:     s.levelID,
			Results:     payload.Questions,
			CompletedAt: completedAt,
		}
		g.retireLocked(s)
	}
	g.mu.Unlock()

	g.hub.Broadcast(domain.Event{Type: domain.EventQuestionStateUpdate, Payload: payload})
	if completed != nil {
		g.hub.Broadcast(domain.Event{Type: domain.EventSessionCompleted, Payload: *completed})
	}

	return domain.AnswerResult{
		QuestionID:    questionID,
		Correct:       correct,
		CorrectAnswer: canonical.Answer,
	}, nil
}

// EndGame is the teacher's forced transition to ended, regardless of how
// many chests are still open. Remaining participants drop back to the
// waiting-lobby state but must re-request to join.
func (g *GameService) EndGame(teacher domain.Identity, chapterID, levelID, subLobbyID string) error {
	if teacher.Role != domain.RoleTeacher {
		return domain.ErrRoleNotPermitted
	}

	g.mu.Lock()
	key := domain.SessionKey(chapterID, levelID, subLobbyID)
	s, ok := g.sessions[key]
	if !ok {
		g.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	s.phase = domain.PhaseEnded
	ended := domain.SessionEndedPayload{SessionKey: key, ChapterID: chapterID, LevelID: levelID}
	g.retireLocked(s)
	g.mu.Unlock()

	g.hub.Broadcast(domain.Event{Type: domain.EventSessionEnded, Payload: ended})
	return nil
}

// Questions answers a getCurrentQuestions query: by explicit key when
// chapter/level are given (teacher dashboard), otherwise through the
// requester's own session membership.
func (g *GameService) Questions(ident domain.Identity, chapterID, levelID, subLobbyID string) (domain.QuestionStatePayload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if chapterID != "" && levelID != "" {
		s, ok := g.sessions[domain.SessionKey(chapterID, levelID, subLobbyID)]
		if !ok {
			return domain.QuestionStatePayload{}, domain.ErrNoActiveSession
		}
		return s.statePayloadLocked(), nil
	}

	s, err := g.sessionForLocked(ident.ID)
	if err != nil {
		return domain.QuestionStatePayload{}, err
	}
	return s.statePayloadLocked(), nil
}

// HandleDeparture removes a confirmed-gone identity from the waiting lobby
// and from any active session roster. Held claims stay held; only
// completion or a teacher endGame releases them.
func (g *GameService) HandleDeparture(identityID string) {
	g.lobby.Remove(identityID)

	g.mu.Lock()
	if key, ok := g.byParticipant[identityID]; ok {
		delete(g.byParticipant, identityID)
		if s, ok := g.sessions[key]; ok {
			delete(s.roster, identityID)
		}
	}
	g.mu.Unlock()
}

func (g *GameService) sessionForLocked(identityID string) (*session, error) {
	key, ok := g.byParticipant[identityID]
	if !ok {
		return nil, domain.ErrNoActiveSession
	}
	s, ok := g.sessions[key]
	if !ok {
		return nil, domain.ErrNoActiveSession
	}
	return s, nil
}

// retireLocked removes a terminal session, returning its key to idle.
func (g *GameService) retireLocked(s *session) {
	delete(g.sessions, s.key)
	for id, key := range g.byParticipant {
		if key == s.key {
			delete(g.byParticipant, id)
		}
	}
}

func (s *session) statePayloadLocked() domain.QuestionStatePayload {
	questions := make(map[string]domain.QuestionState, len(s.questions))
	for id, q := range s.questions {
		questions[id] = q
	}
	return domain.QuestionStatePayload{SessionKey: s.key, Questions: questions}
}

func (s *session) allCompletedLocked() bool {
	for _, q := range s.questions {
		if q.Status != domain.QuestionCompleted {
			return false
		}
	}
	return true
}
