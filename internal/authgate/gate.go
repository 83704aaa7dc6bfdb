// Package authgate manages the authentication token lifecycle on the viewer
// side: cached-token fast path, delegation to the identity provider's
// handshake, and invalidation on expiry or logout.
package authgate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "flatmaps/pkg/domain-errors"
)

// Token is the capability the gate hands to annotation sessions. It is
// shared read-only and never persisted beyond the gate's lifetime.
type Token struct {
	Subject string
	Expiry  time.Time
	Scopes  []string
	Raw     string
}

// Valid reports whether the token can still be presented.
func (t Token) Valid(now time.Time) bool {
	return t.Raw != "" && now.Before(t.Expiry)
}

// HasScope reports whether the token carries the capability.
func (t Token) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IdentityProvider runs the external login handshake (redirect or embedded)
// and resolves with a first-party token. An abandoned or denied flow must
// return an error carrying CodeUnauthorized.
type IdentityProvider interface {
	Authenticate(ctx context.Context) (Token, error)
}

// Gate caches one token per instance and serializes handshakes: concurrent
// EnsureToken calls while a handshake is running wait for its outcome
// instead of prompting twice.
type Gate struct {
	provider IdentityProvider
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	cached   Token
	inflight chan struct{}
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides time for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// New constructs a gate over the given provider.
func New(provider IdentityProvider, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsureToken resolves immediately with a cached unexpired token, otherwise
// runs the identity handshake. Abandoning the handshake leaves the cache
// unchanged: no partial token is ever stored.
func (g *Gate) EnsureToken(ctx context.Context) (Token, error) {
	for {
		g.mu.Lock()
		if g.cached.Valid(g.now()) {
			tok := g.cached
			g.mu.Unlock()
			return tok, nil
		}
		if g.inflight == nil {
			done := make(chan struct{})
			g.inflight = done
			g.mu.Unlock()
			return g.authenticate(ctx, done)
		}
		wait := g.inflight
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return Token{}, ctx.Err()
		case <-wait:
			// Re-check the cache; the winning handshake either filled it
			// or failed, in which case we run our own.
		}
	}
}

func (g *Gate) authenticate(ctx context.Context, done chan struct{}) (Token, error) {
	tok, err := g.provider.Authenticate(ctx)

	g.mu.Lock()
	g.inflight = nil
	if err == nil {
		g.cached = tok
	}
	g.mu.Unlock()
	close(done)

	if err != nil {
		g.logger.InfoContext(ctx, "identity handshake not completed", "error", err)
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return Token{}, err
		}
		return Token{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "login abandoned or denied")
	}
	return tok, nil
}

// Valid reports whether a usable token is currently cached. This is the
// state the lock icon projects.
func (g *Gate) Valid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cached.Valid(g.now())
}

// Invalidate drops the cached token (logout or forced expiry). Sessions in
// Editing or Saving re-authenticate on their next save attempt.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cached = Token{}
}
