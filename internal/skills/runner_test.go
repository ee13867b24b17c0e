package skills

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/apperr"
)

func TestRegistry_RunRegisteredHandler(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("skill.echo", func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		return input, nil
	})

	out, err := r.Run(context.Background(), "skill.echo", json.RawMessage(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if string(out) != `{"text":"hello"}` {
		t.Errorf("expected input echoed, got %s", out)
	}
}

func TestRegistry_UnregisteredActionIsQueued(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	out, err := r.Run(context.Background(), "skill.remote", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var resp map[string]string
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "queued" {
		t.Errorf("expected queued status, got %q", resp["status"])
	}
	if resp["action_id"] != "skill.remote" {
		t.Errorf("expected action id echoed, got %q", resp["action_id"])
	}
}

func TestRegistry_HandlerErrorIsSystemError(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("skill.broken", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("backend unreachable")
	})

	_, err := r.Run(context.Background(), "skill.broken", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr.Error, got %T", err)
	}
	if appErr.Category != apperr.CategorySystem {
		t.Errorf("expected system category, got %s", appErr.Category)
	}
}

func TestRegistry_RegisterReplacesHandler(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("skill.v", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"v1"`), nil
	})
	r.Register("skill.v", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"v2"`), nil
	})

	out, err := r.Run(context.Background(), "skill.v", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if string(out) != `"v2"` {
		t.Errorf("expected v2, got %s", out)
	}
}
