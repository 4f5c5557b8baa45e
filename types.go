package cascade

import (
	"time"

	"github.com/goliatone/go-cascade/pkg/activity"
)

// RuleContext is what a precondition rule sees: the scope about to be
// resolved and the evaluation time. A zero Now means time.Now.
type RuleContext struct {
	Scope Scope
	Now   time.Time
}

func (ctx RuleContext) at() time.Time {
	if ctx.Now.IsZero() {
		return time.Now()
	}
	return ctx.Now
}

// scopeLabel names the scope in errors and evaluation logs.
func (ctx RuleContext) scopeLabel() string {
	if !ctx.Scope.Field.Valid() {
		return "unknown"
	}
	return ctx.Scope.Key()
}

// Evaluator compiles and runs precondition rules.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule is a rule ready to run against any number of contexts.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// Option configures a Controller.
type Option func(*config)

type config struct {
	graph           DependencyGraph
	evaluator       Evaluator
	engine          string
	programCache    ProgramCache
	functions       *FunctionRegistry
	evaluatorLogger EvaluatorLogger
	logger          Logger
	activityHooks   activity.Hooks
	activityConfig  activity.Config
	preconditions   map[ruleKey][]string
	scheduleOptions []OptionEntry
	deliveryOptions []OptionEntry
	traceLimit      int
	sessionID       string
	now             func() time.Time
	errs            []error
}

func applyOptions(opts []Option) config {
	cfg := config{
		graph:           Dependencies,
		scheduleOptions: DefaultScheduleOptions(),
		deliveryOptions: DefaultDeliveryMethodOptions(),
		traceLimit:      defaultTraceLimit,
		now:             time.Now,
		activityConfig:  activity.Config{Enabled: true},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg config) evaluatorLoggerOrNoop() EvaluatorLogger {
	if cfg.evaluatorLogger != nil {
		return cfg.evaluatorLogger
	}
	return noopEvaluatorLogger{}
}

func (cfg config) loggerOrNoop() Logger {
	if cfg.logger != nil {
		return cfg.logger
	}
	return noopLogger{}
}
