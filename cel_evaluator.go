package cascade

import (
	"errors"
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
	functions "github.com/google/cel-go/common/functions"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// celEvaluator runs precondition rules with cel-go. Registered functions are
// reached through call("name", [args]).
type celEvaluator struct {
	engineConfig
}

// NewCELEvaluator returns a cel-go backed Evaluator.
func NewCELEvaluator(opts ...EngineOption) Evaluator {
	return &celEvaluator{engineConfig: newEngineConfig(opts)}
}

func (e *celEvaluator) Engine() string { return EngineCEL }

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, emptyRule(EngineCEL)
	}
	env := ruleEnvironment(ctx)
	program, err := e.program(expression, env)
	if err != nil {
		return nil, ruleError(EngineCEL, expression, ctx.scopeLabel(), err)
	}
	out, _, err := program.Eval(env)
	if err != nil {
		return nil, ruleError(EngineCEL, expression, ctx.scopeLabel(), err)
	}
	return out.Value(), nil
}

// Compile defers program construction to the first evaluation: CEL declares
// its variables up front and they come from the rule context.
func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, emptyRule(EngineCEL)
	}
	return celRule{evaluator: e, expression: expression}, nil
}

// program returns a checked program for expression declared over the
// variables in env. Programs are cached per variable set.
func (e *celEvaluator) program(expression string, env map[string]any) (celgo.Program, error) {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	key := EngineCEL + ":" + strings.Join(names, ",") + ":" + expression
	if cached, ok := e.cached(key); ok {
		if program, ok := cached.(celgo.Program); ok {
			return program, nil
		}
	}

	celEnv, err := celgo.NewEnv(e.declarations(names)...)
	if err != nil {
		return nil, err
	}
	checked, issues := celEnv.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	program, err := celEnv.Program(checked)
	if err != nil {
		return nil, err
	}
	e.remember(key, program)
	return program, nil
}

func (e *celEvaluator) declarations(names []string) []celgo.EnvOption {
	opts := make([]celgo.EnvOption, 0, len(names)+1)
	for _, name := range names {
		if name == "now" {
			opts = append(opts, celgo.Variable(name, celgo.TimestampType))
			continue
		}
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	if e.registry != nil {
		opts = append(opts, celgo.Function("call", celgo.Overload(
			"call_string_list",
			[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
			celgo.DynType,
			celgo.FunctionBinding(functions.FunctionOp(e.callBinding)),
		)))
	}
	return opts
}

func (e *celEvaluator) callBinding(values ...ref.Val) ref.Val {
	if len(values) != 2 {
		return types.NewErr("cascade: call expects a name and an argument list")
	}
	name, ok := values[0].Value().(string)
	if !ok {
		return types.NewErr("cascade: call name must be a string")
	}
	var args []any
	switch list := values[1].Value().(type) {
	case []ref.Val:
		for _, val := range list {
			args = append(args, val.Value())
		}
	case []any:
		args = list
	}
	result, err := e.call(name, args...)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}

type celRule struct {
	evaluator  *celEvaluator
	expression string
}

func (r celRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil {
		return nil, engineError(EngineCEL, errors.New("rule was not compiled"))
	}
	return r.evaluator.Evaluate(ctx, r.expression)
}
