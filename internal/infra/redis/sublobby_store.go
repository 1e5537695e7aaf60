package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"treasure-quest-service/internal/domain"
)

const subLobbyHashKey = "lobby:sublobbies"

// SubLobbyStore persists teacher-created sub-lobby definitions in a Redis
// hash so they survive a process restart. Waiting-lobby membership and
// session state stay in memory: a restart resets active sessions to idle.
type SubLobbyStore struct {
	client *redis.Client
}

func NewSubLobbyStore(client *redis.Client) *SubLobbyStore {
	return &SubLobbyStore{client: client}
}

func (s *SubLobbyStore) SaveSubLobby(ctx context.Context, lobby domain.SubLobby) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, subLobbyHashKey, lobby.ID, data).Err()
}

func (s *SubLobbyStore) DeleteSubLobby(ctx context.Context, id string) error {
	return s.client.HDel(ctx, subLobbyHashKey, id).Err()
}

func (s *SubLobbyStore) DeleteAllSubLobbies(ctx context.Context) error {
	return s.client.Del(ctx, subLobbyHashKey).Err()
}

func (s *SubLobbyStore) LoadSubLobbies(ctx context.Context) ([]domain.SubLobby, error) {
	raw, err := s.client.HGetAll(ctx, subLobbyHashKey).Result()
	if err != nil {
		return nil, err
	}
	lobbies := make([]domain.SubLobby, 0, len(raw))
	for _, data := range raw {
		var sl domain.SubLobby
		if err := json.Unmarshal([]byte(data), &sl); err != nil {
			return nil, err
		}
		lobbies = append(lobbies, sl)
	}
	return lobbies, nil
}
