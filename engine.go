package cascade

import (
	"errors"
	"fmt"
	"strings"
)

// Built-in rule engines.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"

	engineCustom = "custom"
)

var (
	// ErrUnknownEngine indicates an engine name NewEvaluator does not know.
	ErrUnknownEngine = errors.New("cascade: unknown rule engine")
	// ErrEngineUnavailable indicates an engine left out of this build. The JS
	// engine needs the js_eval build tag.
	ErrEngineUnavailable = errors.New("cascade: rule engine not built in")
)

// EngineOption configures the built-in rule engines.
type EngineOption func(*engineConfig)

type engineConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// WithRuleCache shares compiled programs through cache. Keys are prefixed
// with the engine name so engines can share one cache.
func WithRuleCache(cache ProgramCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// WithRuleFunctions exposes the functions in registry to rules.
func WithRuleFunctions(registry *FunctionRegistry) EngineOption {
	return func(cfg *engineConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func newEngineConfig(opts []EngineOption) engineConfig {
	var cfg engineConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg engineConfig) cached(key string) (any, bool) {
	if cfg.cache == nil {
		return nil, false
	}
	return cfg.cache.Get(key)
}

func (cfg engineConfig) remember(key string, program any) {
	if cfg.cache != nil {
		cfg.cache.Set(key, program)
	}
}

// call invokes a registered function. It backs the call("name", ...) form
// every engine understands.
func (cfg engineConfig) call(name string, args ...any) (any, error) {
	return cfg.registry.Call(name, args...)
}

// WithEngine selects the built-in rule engine New builds when no evaluator
// is given: expr (default), cel or js. The engine gets the controller's
// program cache and functions.
func WithEngine(engine string) Option {
	return func(cfg *config) {
		cfg.engine = engine
	}
}

// NewEvaluator returns the built-in evaluator named by engine. An empty name
// selects expr.
func NewEvaluator(engine string, opts ...EngineOption) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineExpr:
		return NewExprEvaluator(opts...), nil
	case EngineCEL:
		return NewCELEvaluator(opts...), nil
	case EngineJS:
		if evaluator := NewJSEvaluator(opts...); evaluator != nil {
			return evaluator, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, EngineJS)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// engineName reports the engine behind e, or "custom" for evaluators that
// do not name themselves.
func engineName(e Evaluator) string {
	if named, ok := e.(interface{ Engine() string }); ok {
		return named.Engine()
	}
	return engineCustom
}

func emptyRule(engine string) error {
	return engineError(engine, errors.New("expression must not be empty"))
}
