// Package maintenance runs periodic housekeeping jobs.
package maintenance

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SessionStore defines the interface for session cleanup data access.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// SessionJanitor removes expired session rows on a schedule. Expired sessions
// are already rejected at validation time, so this is purely to keep the
// table small.
type SessionJanitor struct {
	store   SessionStore
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// NewSessionJanitor creates a session cleanup scheduler.
func NewSessionJanitor(store SessionStore, logger zerolog.Logger) *SessionJanitor {
	return &SessionJanitor{
		store:  store,
		cron:   cron.New(),
		logger: logger.With().Str("component", "session_janitor").Logger(),
	}
}

// Start begins the hourly session cleanup schedule.
func (s *SessionJanitor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("session janitor already running")
	}

	_, err := s.cron.AddFunc("15 * * * *", s.runCleanup)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Msg("session janitor started (hourly at :15)")
	return nil
}

// Stop stops the session janitor gracefully.
func (s *SessionJanitor) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping session janitor")
	return s.cron.Stop()
}

// runCleanup deletes expired session rows.
func (s *SessionJanitor) runCleanup() {
	ctx := context.Background()

	deleted, err := s.store.DeleteExpiredSessions(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("session cleanup failed")
		return
	}

	if deleted > 0 {
		s.logger.Info().Int64("deleted_rows", deleted).Msg("expired sessions removed")
	}
}

// RunNow triggers an immediate cleanup (useful for testing).
func (s *SessionJanitor) RunNow() {
	s.runCleanup()
}
