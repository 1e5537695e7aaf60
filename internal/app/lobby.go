package app

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"treasure-quest-service/internal/domain"
)

// SubLobbyStore optionally persists sub-lobby definitions so they survive a
// process restart. Waiting-lobby and session state stay in memory only.
type SubLobbyStore interface {
	SaveSubLobby(ctx context.Context, lobby domain.SubLobby) error
	DeleteSubLobby(ctx context.Context, id string) error
	DeleteAllSubLobbies(ctx context.Context) error
	LoadSubLobbies(ctx context.Context) ([]domain.SubLobby, error)
}

// LobbyTracker owns the waiting lobby and the named sub-lobbies. Every
// mutation happens under one mutex and is followed by a broadcast, so
// clients always observe the committed state.
type LobbyTracker struct {
	hub   *Hub
	store SubLobbyStore
	now   func() time.Time

	mu         sync.Mutex
	entries    map[string]*domain.LobbyEntry
	subLobbies map[string]domain.SubLobby
}

func NewLobbyTracker(hub *Hub, store SubLobbyStore) *LobbyTracker {
	return &LobbyTracker{
		hub:        hub,
		store:      store,
		now:        time.Now,
		entries:    make(map[string]*domain.LobbyEntry),
		subLobbies: make(map[string]domain.SubLobby),
	}
}

// Restore loads persisted sub-lobby definitions, typically at startup.
func (t *LobbyTracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	lobbies, err := t.store.LoadSubLobbies(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sl := range lobbies {
		t.subLobbies[sl.ID] = sl
	}
	return nil
}

// JoinWaiting upserts a waiting-lobby entry for a student. Rejoining is
// idempotent: a stale entry for the same identity is refreshed, keeping its
// original join time and sub-lobby membership.
func (t *LobbyTracker) JoinWaiting(ident domain.Identity) ([]domain.LobbyEntry, error) {
	if ident.Role != domain.RoleStudent {
		return nil, domain.ErrRoleNotPermitted
	}

	t.mu.Lock()
	if entry, ok := t.entries[ident.ID]; ok {
		entry.Identity = ident
	} else {
		t.entries[ident.ID] = &domain.LobbyEntry{Identity: ident, JoinedAt: t.now()}
	}
	roster := t.snapshotLocked()
	t.mu.Unlock()

	t.hub.Broadcast(domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: roster})
	return roster, nil
}

// SetReady flips a waiting student's ready flag and broadcasts the roster.
// A student with no waiting entry yet is admitted first, mirroring the
// JoinWaiting upsert.
func (t *LobbyTracker) SetReady(ident domain.Identity, ready bool) ([]domain.LobbyEntry, error) {
	if ident.Role != domain.RoleStudent {
		return nil, domain.ErrRoleNotPermitted
	}

	t.mu.Lock()
	entry, ok := t.entries[ident.ID]
	if !ok {
		entry = &domain.LobbyEntry{Identity: ident, JoinedAt: t.now()}
		t.entries[ident.ID] = entry
	}
	entry.Ready = ready
	roster := t.snapshotLocked()
	t.mu.Unlock()

	t.hub.Broadcast(domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: roster})
	return roster, nil
}

// Snapshot returns the waiting roster in stable display order: assigned
// groups ascending first, then join time.
func (t *LobbyTracker) Snapshot() []domain.LobbyEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *LobbyTracker) snapshotLocked() []domain.LobbyEntry {
	roster := make([]domain.LobbyEntry, 0, len(t.entries))
	for _, entry := range t.entries {
		roster = append(roster, *entry)
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].Group != roster[j].Group {
			return roster[i].Group < roster[j].Group
		}
		if !roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].JoinedAt.Before(roster[j].JoinedAt)
		}
		return roster[i].Identity.ID < roster[j].Identity.ID
	})
	return roster
}

// CreateSubLobby creates an empty named lobby. Teacher only.
func (t *LobbyTracker) CreateSubLobby(teacher domain.Identity, name string, capacity int) (domain.SubLobby, error) {
	if teacher.Role != domain.RoleTeacher {
		return domain.SubLobby{}, domain.ErrRoleNotPermitted
	}

	t.mu.Lock()
	sl := domain.SubLobby{
		ID:        NewConnID(),
		Name:      name,
		Capacity:  capacity,
		CreatedAt: t.now(),
	}
	t.subLobbies[sl.ID] = sl
	payload := t.subLobbyPayloadLocked()
	t.mu.Unlock()

	t.persistSave(sl)
	t.hub.Broadcast(domain.Event{Type: domain.EventSubLobbyUpdate, Payload: payload})
	return sl, nil
}

// JoinSubLobby moves a student into a sub-lobby. The move is exclusive: any
// prior membership is dropped in the same step, so an identity is never
// counted in two sub-lobbies at once.
func (t *LobbyTracker) JoinSubLobby(ident domain.Identity, subLobbyID string) error {
	if ident.Role != domain.RoleStudent {
		return domain.ErrRoleNotPermitted
	}

	t.mu.Lock()
	sl, ok := t.subLobbies[subLobbyID]
	if !ok {
		t.mu.Unlock()
		return domain.ErrSubLobbyNotFound
	}
	if sl.Capacity > 0 && t.memberCountLocked(subLobbyID, ident.ID) >= sl.Capacity {
		t.mu.Unlock()
		return domain.ErrSubLobbyFull
	}
	entry, ok := t.entries[ident.ID]
	if !ok {
		entry = &domain.LobbyEntry{Identity: ident, JoinedAt: t.now()}
		t.entries[ident.ID] = entry
	}
	entry.SubLobbyID = subLobbyID
	payload := t.subLobbyPayloadLocked()
	t.mu.Unlock()

	t.hub.Broadcast(domain.Event{Type: domain.EventSubLobbyUpdate, Payload: payload})
	return nil
}

func (t *LobbyTracker) memberCountLocked(subLobbyID, excludeID string) int {
	n := 0
	for id, entry := range t.entries {
		if id != excludeID && entry.SubLobbyID == subLobbyID {
			n++
		}
	}
	return n
}

// RemoveFromSubLobby clears a single membership.
func (t *LobbyTracker) RemoveFromSubLobby(identityID, subLobbyID string) error {
	t.mu.Lock()
	if _, ok := t.subLobbies[subLobbyID]; !ok {
		t.mu.Unlock()
		return domain.ErrSubLobbyNotFound
	}
	if entry, ok := t.entries[identityID]; ok && entry.SubLobbyID == subLobbyID {
		entry.SubLobbyID = ""
	}
	payload := t.subLobbyPayloadLocked()
	t.mu.Unlock()

	t.hub.Broadcast(domain.Event{Type: domain.EventSubLobbyUpdate, Payload: payload})
	return nil
}

// DeleteSubLobby removes a sub-lobby; members become unassigned but keep
// their waiting-lobby entry. Teacher only.
func (t *LobbyTracker) DeleteSubLobby(teacher domain.Identity, subLobbyID string) error {
	if teacher.Role != domain.RoleTeacher {
		return domain.ErrRoleNotPermitted
	}

	t.mu.Lock()
	if _, ok := t.subLobbies[subLobbyID]; !ok {
		t.mu.Unlock()
		return domain.ErrSubLobbyNotFound
	}
	delete(t.subLobbies, subLobbyID)
	for _, entry := range t.entries {
		if entry.SubLobbyID == subLobbyID {
			entry.SubLobbyID = ""
		}
	}
	payload := t.subLobbyPayloadLocked()
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.DeleteSubLobby(context.Background(), subLobbyID); err != nil {
			log.Printf("sub-lobby delete not persisted: %v", err)
		}
	}
	t.hub.Broadcast(domain.Event{Type: domain.EventSubLobbyUpdate, Payload: payload})
	return nil
}

// DeleteAllSubLobbies wipes every sub-lobby. Teacher only.
func (t *LobbyTracker) DeleteAllSubLobbies(teacher domain.Identity) error {
	if teacher.Role != domain.RoleTeacher {
		return domain.ErrRoleNotPermitted
	}

	t.mu.Lock()
	t.subLobbies = make(map[string]domain.SubLobby)
	for _, entry := range t.entries {
		entry.SubLobbyID = ""
	}
	payload := t.subLobbyPayloadLocked()
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.DeleteAllSubLobbies(context.Background()); err != nil {
			log.Printf("sub-lobby wipe not persisted: %v", err)
		}
	}
	t.hub.Broadcast(domain.Event{Type: domain.EventSubLobbyUpdate, Payload: payload})
	return nil
}

// SubLobbies returns the current sub-lobby list with memberships.
func (t *LobbyTracker) SubLobbies() domain.SubLobbyUpdatePayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subLobbyPayloadLocked()
}

func (t *LobbyTracker) subLobbyPayloadLocked() domain.SubLobbyUpdatePayload {
	lobbies := make([]domain.SubLobby, 0, len(t.subLobbies))
	for _, sl := range t.subLobbies {
		lobbies = append(lobbies, sl)
	}
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].CreatedAt.Before(lobbies[j].CreatedAt) })

	members := make([]domain.LobbyEntry, 0)
	for _, entry := range t.entries {
		if entry.SubLobbyID != "" {
			members = append(members, *entry)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Identity.ID < members[j].Identity.ID })
	return domain.SubLobbyUpdatePayload{SubLobbies: lobbies, Members: members}
}

// RosterFor returns the waiting students eligible for a game start,
// optionally scoped to one sub-lobby.
func (t *LobbyTracker) RosterFor(subLobbyID string) []domain.Identity {
	t.mu.Lock()
	defer t.mu.Unlock()

	roster := make([]domain.Identity, 0, len(t.entries))
	for _, entry := range t.snapshotLocked() {
		if entry.Identity.Role != domain.RoleStudent {
			continue
		}
		if subLobbyID != "" && entry.SubLobbyID != subLobbyID {
			continue
		}
		roster = append(roster, entry.Identity)
	}
	return roster
}

// SetGroups writes assigned group numbers back onto waiting entries.
func (t *LobbyTracker) SetGroups(groups map[string]int) {
	t.mu.Lock()
	for id, group := range groups {
		if entry, ok := t.entries[id]; ok {
			entry.Group = group
		}
	}
	roster := t.snapshotLocked()
	t.mu.Unlock()

	t.hub.Broadcast(domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: roster})
}

// ClearWaiting removes waiting entries for identities that moved into a
// session roster.
func (t *LobbyTracker) ClearWaiting(identityIDs []string) {
	t.mu.Lock()
	for _, id := range identityIDs {
		delete(t.entries, id)
	}
	roster := t.snapshotLocked()
	t.mu.Unlock()

	t.hub.Broadcast(domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: roster})
}

// Remove drops an identity from the waiting lobby after its departure is
// confirmed (grace period expired).
func (t *LobbyTracker) Remove(identityID string) {
	t.mu.Lock()
	_, present := t.entries[identityID]
	delete(t.entries, identityID)
	roster := t.snapshotLocked()
	t.mu.Unlock()

	if present {
		t.hub.Broadcast(domain.Event{Type: domain.EventWaitingLobbyUpdate, Payload: roster})
	}
}

func (t *LobbyTracker) persistSave(sl domain.SubLobby) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveSubLobby(context.Background(), sl); err != nil {
		log.Printf("sub-lobby %s not persisted: %v", sl.ID, err)
	}
}
