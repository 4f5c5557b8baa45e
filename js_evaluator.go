//go:build js_eval

package cascade

import (
	"errors"

	"github.com/dop251/goja"
)

// jsEvaluator runs precondition rules as JavaScript expressions with goja.
// Every rule gets a fresh runtime, so rules cannot leak state.
type jsEvaluator struct {
	engineConfig
}

// NewJSEvaluator returns a goja backed Evaluator. It is only available in
// builds with the js_eval tag.
func NewJSEvaluator(opts ...EngineOption) Evaluator {
	return &jsEvaluator{engineConfig: newEngineConfig(opts)}
}

func (e *jsEvaluator) Engine() string { return EngineJS }

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *jsEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, emptyRule(EngineJS)
	}
	key := EngineJS + ":" + expression
	if cached, ok := e.cached(key); ok {
		if program, ok := cached.(*goja.Program); ok {
			return jsRule{evaluator: e, expression: expression, program: program}, nil
		}
	}
	program, err := goja.Compile("precondition", "(function(){ return ("+expression+"); })()", false)
	if err != nil {
		return nil, ruleError(EngineJS, expression, "", err)
	}
	e.remember(key, program)
	return jsRule{evaluator: e, expression: expression, program: program}, nil
}

func (e *jsEvaluator) runtime(ctx RuleContext) *goja.Runtime {
	vm := goja.New()
	for key, value := range ruleEnvironment(ctx) {
		_ = vm.Set(key, value)
	}
	if e.registry == nil {
		return vm
	}
	_ = vm.Set("call", func(name string, args ...any) (any, error) {
		return e.call(name, args...)
	})
	for _, name := range e.registry.Names() {
		name := name
		_ = vm.Set(name, func(args ...any) (any, error) {
			return e.call(name, args...)
		})
	}
	return vm
}

type jsRule struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (r jsRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil || r.program == nil {
		return nil, engineError(EngineJS, errors.New("rule was not compiled"))
	}
	value, err := r.evaluator.runtime(ctx).RunProgram(r.program)
	if err != nil {
		return nil, ruleError(EngineJS, r.expression, ctx.scopeLabel(), err)
	}
	return value.Export(), nil
}
