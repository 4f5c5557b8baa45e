package cascade

import "github.com/goliatone/go-cascade/pkg/activity"

// WithActivityHooks attaches activity hooks to the controller. Hooks are
// cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *config) {
		cfg.activityHooks = normalized
	}
}

// WithActivityConfig overrides the emission defaults (channel, identity,
// enabled flag).
func WithActivityConfig(activityCfg activity.Config) Option {
	return func(cfg *config) {
		cfg.activityConfig = activityCfg
	}
}

// ActivityHooks returns a cloned slice of the hooks configured on the
// controller. The returned slice can be safely mutated by the caller.
func (c *Controller) ActivityHooks() activity.Hooks {
	if c == nil {
		return nil
	}
	return cloneActivityHooks(c.cfg.activityHooks)
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
