package activity

import (
	"context"
	"errors"
	"strings"
)

// DefaultChannel is applied to events emitted without a channel.
const DefaultChannel = "course-search"

// Config controls activity emission defaults supplied by DI/config.
type Config struct {
	Enabled  bool
	Channel  string
	Identity Identity
}

// Emitter fans out events to hooks while applying defaults.
type Emitter struct {
	hooks    Hooks
	enabled  bool
	channel  string
	identity Identity
}

// NewEmitter constructs an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	normalizedHooks := cloneHooks(hooks)
	return &Emitter{
		hooks:    normalizedHooks,
		enabled:  cfg.Enabled && len(normalizedHooks) > 0,
		channel:  channel,
		identity: cfg.Identity,
	}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled && len(e.hooks) > 0
}

// Emit forwards the event to all hooks, applying the default channel and
// identity when missing.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" && e.channel != "" {
		event.Channel = e.channel
	}
	if event.ActorID == "" {
		event.ActorID = e.identity.ActorID
	}
	if event.UserID == "" {
		event.UserID = e.identity.UserID
	}
	if event.TenantID == "" {
		event.TenantID = e.identity.TenantID
	}
	return e.hooks.Notify(ctx, event)
}

// EmitAll emits each event in order and joins the failures.
func (e *Emitter) EmitAll(ctx context.Context, events ...Event) error {
	if !e.Enabled() {
		return nil
	}
	var errs []error
	for _, event := range events {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cloneHooks(hooks Hooks) Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	return Hooks(normalized)
}
