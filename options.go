package cascade

import (
	"strings"
	"time"
)

// WithEvaluator configures the evaluator used for precondition rules. When
// omitted an expr evaluator is built on demand.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = e
	}
}

// WithDependencyGraph replaces the default dependency graph. The graph is
// validated by New.
func WithDependencyGraph(graph DependencyGraph) Option {
	return func(cfg *config) {
		cfg.graph = NewDependencyGraph(graph.edges)
	}
}

// WithPrecondition adds a rule that must evaluate to true before field is
// resolved at level. Rules are combined with the defaults derived from the
// graph; a rule on Term at LevelCourseCode does not gate the
// institution-level term list. New rejects levels the field is never
// resolved at.
func WithPrecondition(field FieldName, level Level, expr string) Option {
	return func(cfg *config) {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			return
		}
		if cfg.preconditions == nil {
			cfg.preconditions = map[ruleKey][]string{}
		}
		key := ruleKey{field: field, level: level}
		cfg.preconditions[key] = append(cfg.preconditions[key], expr)
	}
}

// WithScheduleOptions overrides the static schedule enumeration.
func WithScheduleOptions(entries ...OptionEntry) Option {
	return func(cfg *config) {
		cfg.scheduleOptions = cloneOptions(entries)
	}
}

// WithDeliveryMethodOptions overrides the static delivery method enumeration.
func WithDeliveryMethodOptions(entries ...OptionEntry) Option {
	return func(cfg *config) {
		cfg.deliveryOptions = cloneOptions(entries)
	}
}

// WithTraceLimit bounds the number of trace entries retained per field.
func WithTraceLimit(limit int) Option {
	return func(cfg *config) {
		if limit > 0 {
			cfg.traceLimit = limit
		}
	}
}

// WithSessionID sets the identifier reported on activity events. A random
// UUID is used when omitted.
func WithSessionID(id string) Option {
	return func(cfg *config) {
		cfg.sessionID = strings.TrimSpace(id)
	}
}

// WithClock overrides the time source used for traces and events.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.now = now
		}
	}
}
