package memory

import (
	"context"

	"treasure-quest-service/internal/domain"
)

// StaticAuthenticator validates credential tokens against a fixed
// token-to-identity map (useful for tests/demos); production deployments
// use the postgres credential store.
type StaticAuthenticator struct {
	identities map[string]domain.Identity
}

func NewStaticAuthenticator(identities map[string]domain.Identity) *StaticAuthenticator {
	return &StaticAuthenticator{identities: identities}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (domain.Identity, error) {
	ident, ok := a.identities[token]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return ident, nil
}
