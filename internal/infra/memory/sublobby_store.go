package memory

import (
	"context"
	"sync"

	"treasure-quest-service/internal/domain"
)

// SubLobbyStore is an in-memory implementation of app.SubLobbyStore. It
// offers no durability across restarts; use the redis store for that.
type SubLobbyStore struct {
	mu         sync.RWMutex
	subLobbies map[string]domain.SubLobby
}

func NewSubLobbyStore() *SubLobbyStore {
	return &SubLobbyStore{subLobbies: make(map[string]domain.SubLobby)}
}

func (s *SubLobbyStore) SaveSubLobby(_ context.Context, lobby domain.SubLobby) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subLobbies[lobby.ID] = lobby
	return nil
}

func (s *SubLobbyStore) DeleteSubLobby(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subLobbies, id)
	return nil
}

func (s *SubLobbyStore) DeleteAllSubLobbies(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subLobbies = make(map[string]domain.SubLobby)
	return nil
}

func (s *SubLobbyStore) LoadSubLobbies(_ context.Context) ([]domain.SubLobby, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lobbies := make([]domain.SubLobby, 0, len(s.subLobbies))
	for _, sl := range s.subLobbies {
		lobbies = append(lobbies, sl)
	}
	return lobbies, nil
}
