// Package skills dispatches billable skill executions. The gateway does not
// orchestrate skills itself; it admits, meters, and forwards to whatever
// backend is registered for an action id.
package skills

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/apperr"
)

// RunFunc executes a single skill invocation.
type RunFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Runner executes a skill by action id.
type Runner interface {
	Run(ctx context.Context, actionID string, input json.RawMessage) (json.RawMessage, error)
}

// Registry is a Runner backed by an in-process table of handlers. Unregistered
// action ids are accepted and acknowledged: billing is keyed on the action id,
// not on whether this process can run it locally.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[string]RunFunc
	logger zerolog.Logger
}

// NewRegistry creates an empty skill registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		funcs:  make(map[string]RunFunc),
		logger: logger.With().Str("component", "skill_registry").Logger(),
	}
}

// Register binds a handler to an action id, replacing any previous binding.
func (r *Registry) Register(actionID string, fn RunFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[actionID] = fn
}

// Run executes the handler registered for actionID. Without a local handler
// the invocation is acknowledged with a queued status.
func (r *Registry) Run(ctx context.Context, actionID string, input json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	fn, ok := r.funcs[actionID]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug().Str("action_id", actionID).Msg("no local handler, acknowledging")
		return json.Marshal(map[string]string{"status": "queued", "action_id": actionID})
	}

	output, err := fn(ctx, input)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategorySystem, "skill execution failed", err).
			WithContext("action_id", actionID)
	}
	return output, nil
}
