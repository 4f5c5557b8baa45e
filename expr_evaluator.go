package cascade

import (
	"errors"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// exprEvaluator runs precondition rules with github.com/expr-lang/expr, the
// default engine. Registered functions are callable by name.
type exprEvaluator struct {
	engineConfig
}

// NewExprEvaluator returns an expr-lang/expr backed Evaluator.
func NewExprEvaluator(opts ...EngineOption) Evaluator {
	return &exprEvaluator{engineConfig: newEngineConfig(opts)}
}

func (e *exprEvaluator) Engine() string { return EngineExpr }

func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *exprEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, emptyRule(EngineExpr)
	}
	key := EngineExpr + ":" + expression
	if cached, ok := e.cached(key); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return exprRule{evaluator: e, expression: expression, program: program}, nil
		}
	}

	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.registry.Names() {
		name := name
		options = append(options, exprlang.Function(name, func(args ...any) (any, error) {
			return e.call(name, args...)
		}))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, ruleError(EngineExpr, expression, "", err)
	}
	e.remember(key, program)
	return exprRule{evaluator: e, expression: expression, program: program}, nil
}

type exprRule struct {
	evaluator  *exprEvaluator
	expression string
	program    *exprvm.Program
}

func (r exprRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil || r.program == nil {
		return nil, engineError(EngineExpr, errors.New("rule was not compiled"))
	}
	env := ruleEnvironment(ctx)
	if r.evaluator.registry != nil {
		env["call"] = func(name string, args ...any) (any, error) {
			return r.evaluator.call(name, args...)
		}
	}
	result, err := exprlang.Run(r.program, env)
	if err != nil {
		return nil, ruleError(EngineExpr, r.expression, ctx.scopeLabel(), err)
	}
	return result, nil
}
