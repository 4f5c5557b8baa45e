package activity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Event is one course search activity record. SessionID and Field locate
// the event within a search session; Field is empty for search events.
type Event struct {
	Verb       string
	ActorID    string
	UserID     string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	SessionID  string
	Field      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Valid reports whether the event carries the fields every hook relies on.
func (e Event) Valid() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// ActivityHook receives normalized activity events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Only wraps hook so it sees just the listed verbs.
func Only(hook ActivityHook, verbs ...string) ActivityHook {
	if hook == nil || len(verbs) == 0 {
		return hook
	}
	allowed := slices.Clone(verbs)
	return HookFunc(func(ctx context.Context, event Event) error {
		if !slices.Contains(allowed, event.Verb) {
			return nil
		}
		return hook.Notify(ctx, event)
	})
}

// Hooks fans out events to zero or more hooks.
type Hooks []ActivityHook

func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes the event and forwards it to every hook. Invalid events
// are dropped. Hook failures do not stop delivery; they are joined, each
// tagged with the hook's position.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	normalized := NormalizeEvent(event)
	if !normalized.Valid() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, fmt.Errorf("activity: hook %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifiers, copies metadata and stamps OccurredAt in
// UTC when it is missing.
func NormalizeEvent(event Event) Event {
	out := event
	for _, s := range []*string{
		&out.Verb, &out.ActorID, &out.UserID, &out.TenantID,
		&out.ObjectType, &out.ObjectID, &out.Channel, &out.SessionID, &out.Field,
	} {
		*s = strings.TrimSpace(*s)
	}
	out.Metadata = cloneMap(event.Metadata)
	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now().UTC()
	}
	return out
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
