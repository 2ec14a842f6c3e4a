package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// Session owns the single browser page the tool drives. Calls are
// serialized, and a page that failed is closed so the next call starts a
// fresh browser.
type Session struct {
	mu       sync.Mutex
	pool     *Pool
	instance *BrowserInstance
}

// NewSession creates a session backed by pool.
func NewSession(pool *Pool) *Session {
	return &Session{pool: pool}
}

// Do runs fn against the session page, launching a browser if needed.
// Validation errors leave the page alone; any other error resets it.
func (s *Session) Do(ctx context.Context, fn func(page playwright.Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.instance == nil {
		instance, err := s.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		s.instance = instance
	}

	err := fn(s.instance.Page)
	var verr *agent.ValidationError
	if err != nil && !errors.As(err, &verr) {
		s.pool.Discard(s.instance)
		s.instance = nil
	}
	return err
}

// Active reports whether a browser is currently open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instance != nil
}

// Stats reports the backing pool's state.
func (s *Session) Stats() PoolStats {
	return s.pool.GetStats()
}

// Close releases the page and shuts the pool down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instance != nil {
		s.pool.Release(s.instance)
		s.instance = nil
	}
	return s.pool.Close()
}
