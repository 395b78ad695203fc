package googleauth

import (
	"context"
	"fmt"
	"sync"

	"github.com/vthunder/gofer/internal/logging"
)

// TokenSource hands out valid access tokens for a service, refreshing
// through the stored refresh token when the cached one is about to
// expire. Safe for concurrent use.
type TokenSource struct {
	cfg     Config
	store   *Store
	service string

	mu     sync.RWMutex
	cached *Token
}

// NewTokenSource creates a token source backed by the given store.
func NewTokenSource(cfg Config, store *Store, service string) *TokenSource {
	return &TokenSource{cfg: cfg, store: store, service: service}
}

// AccessToken returns a usable access token, refreshing if needed.
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.cached.Valid() {
		tok := ts.cached.AccessToken
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock
	if ts.cached.Valid() {
		return ts.cached.AccessToken, nil
	}

	if ts.cached == nil {
		tok, err := ts.store.Load(ts.service)
		if err != nil {
			return "", err
		}
		if tok == nil {
			return "", fmt.Errorf("no token stored for %s (run auth first)", ts.service)
		}
		ts.cached = tok
		if ts.cached.Valid() {
			return ts.cached.AccessToken, nil
		}
	}

	if ts.cached.RefreshToken == "" {
		// Expired with no way to refresh: hand it out anyway and let the
		// API reject it, which is a clearer failure than guessing here.
		logging.Debug("auth", "token for %s expired and no refresh token available", ts.service)
		return ts.cached.AccessToken, nil
	}

	logging.Info("auth", "refreshing access token for %s", ts.service)
	tok, err := ts.cfg.Refresh(ctx, ts.cached.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh token for %s: %w", ts.service, err)
	}

	if err := ts.store.Save(ts.service, tok); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	ts.cached = tok
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next call reloads from the
// store. Used after a 401 from an API.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.cached = nil
	ts.mu.Unlock()
}
