package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"treasure-quest-service/internal/domain"
)

// Authenticator validates handshake credentials against an external
// provider (static map, database, etc).
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// Registry binds live connections to authenticated identities and tracks
// presence. A dropped identity is not reported gone until the grace period
// elapses without a reconnect, so page navigations don't evict anyone.
type Registry struct {
	auth   Authenticator
	grace  time.Duration
	onGone func(identityID string)

	mu      sync.Mutex
	conns   map[string]domain.Identity
	owners  map[string]map[string]struct{}
	pending map[string]*time.Timer
}

func NewRegistry(auth Authenticator, grace time.Duration, onGone func(identityID string)) *Registry {
	if onGone == nil {
		onGone = func(string) {}
	}
	return &Registry{
		auth:    auth,
		grace:   grace,
		onGone:  onGone,
		conns:   make(map[string]domain.Identity),
		owners:  make(map[string]map[string]struct{}),
		pending: make(map[string]*time.Timer),
	}
}

// Authenticate validates the token and binds the connection on success.
// A reconnect within the grace window cancels the pending removal.
func (r *Registry) Authenticate(ctx context.Context, connID, token string) (domain.Identity, error) {
	ident, err := r.auth.Authenticate(ctx, token)
	if err != nil {
		return domain.Identity{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[connID] = ident
	if r.owners[ident.ID] == nil {
		r.owners[ident.ID] = make(map[string]struct{})
	}
	r.owners[ident.ID][connID] = struct{}{}

	if timer, ok := r.pending[ident.ID]; ok {
		timer.Stop()
		delete(r.pending, ident.ID)
	}
	return ident, nil
}

// Lookup resolves a connection to its identity.
func (r *Registry) Lookup(connID string) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.conns[connID]
	return ident, ok
}

// Disconnect unbinds a connection. When the identity's last connection is
// gone, removal is deferred by the grace period.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ident, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	if owned := r.owners[ident.ID]; owned != nil {
		delete(owned, connID)
		if len(owned) > 0 {
			return
		}
		delete(r.owners, ident.ID)
	}

	id := ident.ID
	r.pending[id] = time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		_, stillPending := r.pending[id]
		_, reconnected := r.owners[id]
		delete(r.pending, id)
		r.mu.Unlock()
		if stillPending && !reconnected {
			r.onGone(id)
		}
	})
}

// Present reports whether the identity still counts as connected, including
// the grace window after its last connection dropped.
func (r *Registry) Present(identityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[identityID]; ok {
		return true
	}
	_, ok := r.pending[identityID]
	return ok
}

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewConnID returns a short random connection identifier.
func NewConnID() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = idCharset[rand.Intn(len(idCharset))]
	}
	return string(b)
}
