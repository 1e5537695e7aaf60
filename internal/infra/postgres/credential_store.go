package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"treasure-quest-service/internal/domain"
)

// CredentialStore authenticates handshake tokens against the users table.
type CredentialStore struct {
	pool *pgxpool.Pool
}

func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

func (s *CredentialStore) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	var (
		ident domain.Identity
		role  string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, section, role FROM users WHERE token=$1`,
		token).Scan(&ident.ID, &ident.Name, &ident.Section, &role)
	if err == pgx.ErrNoRows {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("lookup credentials: %w", err)
	}
	parsed, ok := domain.ParseRole(role)
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	ident.Role = parsed
	return ident, nil
}
