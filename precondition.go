package cascade

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// requiredFields lists the upstream selections a scope of the given level
// must carry before it may be resolved.
func requiredFields(level Level) []FieldName {
	switch level {
	case LevelInstitution:
		return []FieldName{FieldInstitution}
	case LevelCourseCode:
		return []FieldName{FieldInstitution, FieldCourseCode}
	default:
		return nil
	}
}

// DefaultPrecondition returns the rule the controller checks before resolving
// a scope of the given level, e.g. `institution != "" && courseCode != ""`.
// Root scopes have no rule.
func DefaultPrecondition(level Level) string {
	fields := requiredFields(level)
	if len(fields) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, fmt.Sprintf("%s != %q", field.String(), ""))
	}
	return strings.Join(clauses, " && ")
}

// ruleEnvironment exposes the scope to rules: upstream selections by wire
// name (institution, courseCode), field, level, the same map as scope, and
// now.
func ruleEnvironment(ctx RuleContext) map[string]any {
	binding := ctx.Scope.Binding()
	env := make(map[string]any, len(binding)+2)
	for key, value := range binding {
		env[key] = value
	}
	env["scope"] = binding
	env["now"] = ctx.at()
	return env
}

// ruleKey places an extra rule on one field at one resolution level.
type ruleKey struct {
	field FieldName
	level Level
}

// resolutionLevels lists the levels graph resolves field at: root for fields
// without upstream, otherwise one level per cascading upstream field.
func resolutionLevels(graph DependencyGraph, field FieldName) []Level {
	if !field.Valid() || field.Static() {
		return nil
	}
	if len(graph.Upstream(field)) == 0 {
		return []Level{LevelRoot}
	}
	var levels []Level
	if graph.DependsOn(field, FieldInstitution) {
		levels = append(levels, LevelInstitution)
	}
	if graph.DependsOn(field, FieldCourseCode) {
		levels = append(levels, LevelCourseCode)
	}
	return levels
}

// preconditions gates resolver calls behind compiled rules.
type preconditions struct {
	evaluator Evaluator
	engine    string
	extra     map[ruleKey][]string
	logger    EvaluatorLogger
	now       func() time.Time

	mu       sync.Mutex
	compiled map[string]CompiledRule
}

func newPreconditions(cfg config) (*preconditions, error) {
	evaluator := cfg.evaluator
	if evaluator == nil {
		functions := BuiltinFunctions()
		functions.Merge(cfg.functions)
		var err error
		evaluator, err = NewEvaluator(cfg.engine, WithRuleCache(cfg.programCache), WithRuleFunctions(functions))
		if err != nil {
			return nil, err
		}
	}
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	extra := make(map[ruleKey][]string, len(cfg.preconditions))
	for key, rules := range cfg.preconditions {
		if !key.field.Valid() {
			return nil, fmt.Errorf("%w: precondition for %d", ErrUnknownField, int(key.field))
		}
		if key.field.Static() {
			return nil, fmt.Errorf("%w: precondition for %s", ErrNotCascading, key.field)
		}
		if !slices.Contains(resolutionLevels(cfg.graph, key.field), key.level) {
			return nil, fmt.Errorf("%w: %s is never resolved at %s level", ErrUnknownLevel, key.field, key.level)
		}
		extra[key] = append([]string(nil), rules...)
	}
	return &preconditions{
		evaluator: evaluator,
		engine:    engineName(evaluator),
		extra:     extra,
		logger:    cfg.evaluatorLoggerOrNoop(),
		now:       cfg.now,
		compiled:  map[string]CompiledRule{},
	}, nil
}

// rules returns every rule that applies to scope when resolved at level.
func (p *preconditions) rules(scope Scope, level Level) []string {
	var out []string
	if rule := DefaultPrecondition(level); rule != "" {
		out = append(out, rule)
	}
	return append(out, p.extra[ruleKey{field: scope.Field, level: level}]...)
}

// check evaluates each rule in turn. It returns ErrPreconditionUnmet, wrapped
// with the failing rule, when any rule is false. A rule that cannot be
// evaluated also wraps its *EvaluationError.
func (p *preconditions) check(scope Scope, level Level) error {
	for _, rule := range p.rules(scope, level) {
		ok, err := p.evaluate(scope, rule)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPreconditionUnmet, rule, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrPreconditionUnmet, rule)
		}
	}
	return nil
}

func (p *preconditions) evaluate(scope Scope, rule string) (bool, error) {
	ctx := RuleContext{Scope: scope, Now: p.now()}
	compiled, err := p.compile(rule)
	if err != nil {
		return false, ruleError(p.engine, rule, ctx.scopeLabel(), err)
	}
	start := time.Now()
	value, err := compiled.Evaluate(ctx)
	err = ruleError(p.engine, rule, ctx.scopeLabel(), err)
	p.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   p.engine,
		Expr:     rule,
		Scope:    ctx.scopeLabel(),
		Result:   value,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return false, err
	}
	result, ok := value.(bool)
	if !ok {
		return false, ruleError(p.engine, rule, ctx.scopeLabel(), fmt.Errorf("rule returned %T, want bool", value))
	}
	return result, nil
}

func (p *preconditions) compile(rule string) (CompiledRule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if compiled, ok := p.compiled[rule]; ok {
		return compiled, nil
	}
	compiled, err := p.evaluator.Compile(rule)
	if err != nil {
		return nil, err
	}
	p.compiled[rule] = compiled
	return compiled, nil
}
