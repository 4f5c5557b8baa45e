package cascade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var evaluatorFactories = []struct {
	name string
	new  func(opts ...EngineOption) Evaluator
}{
	{name: EngineExpr, new: NewExprEvaluator},
	{name: EngineCEL, new: NewCELEvaluator},
	{name: EngineJS, new: NewJSEvaluator},
}

func TestDefaultPrecondition(t *testing.T) {
	cases := map[Level]string{
		LevelRoot:        "",
		LevelInstitution: `institution != ""`,
		LevelCourseCode:  `institution != "" && courseCode != ""`,
	}
	for level, want := range cases {
		if got := DefaultPrecondition(level); got != want {
			t.Fatalf("%s: expected %q, got %q", level, want, got)
		}
	}
}

func TestPreconditionFixture(t *testing.T) {
	type expect struct {
		Value bool `json:"value"`
		Err   bool `json:"err"`
	}
	type testCase struct {
		Name    string            `json:"name"`
		Rule    string            `json:"rule"`
		Field   string            `json:"field"`
		Context map[string]string `json:"context"`
		Expect  expect            `json:"expect"`
	}
	type fixture struct {
		Description string     `json:"description"`
		Cases       []testCase `json:"cases"`
	}

	fx := loadFixture[fixture](t, "preconditions.json")

	for _, factory := range evaluatorFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			evaluator := factory.new()
			if evaluator == nil {
				t.Skipf("%s evaluator not built in", factory.name)
			}
			for _, tc := range fx.Cases {
				tc := tc
				t.Run(tc.Name, func(t *testing.T) {
					upstream := map[FieldName]string{}
					for key, value := range tc.Context {
						upstream[ParseFieldName(key)] = value
					}
					scope := NewScope(ParseFieldName(tc.Field), upstream)
					value, err := evaluator.Evaluate(RuleContext{Scope: scope}, tc.Rule)

					if tc.Expect.Err {
						if err == nil {
							t.Fatalf("expected error, got %v", value)
						}
						var evalErr *EvaluationError
						if !errors.As(err, &evalErr) {
							t.Fatalf("expected EvaluationError, got %T: %v", err, err)
						}
						return
					}
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}
					if value != tc.Expect.Value {
						t.Fatalf("expected %v, got %v", tc.Expect.Value, value)
					}
				})
			}
		})
	}
}

func TestPreconditionsCheck(t *testing.T) {
	rules, err := newPreconditions(applyOptions([]Option{
		WithPrecondition(FieldTerm, LevelCourseCode, `courseCode != "ARCHIVE"`),
	}))
	if err != nil {
		t.Fatalf("preconditions: %v", err)
	}

	ok := NewScope(FieldTerm, map[FieldName]string{FieldInstitution: "acme", FieldCourseCode: "CS101"})
	if err := rules.check(ok, LevelCourseCode); err != nil {
		t.Fatalf("expected rules to pass, got %v", err)
	}

	archived := NewScope(FieldTerm, map[FieldName]string{FieldInstitution: "acme", FieldCourseCode: "ARCHIVE"})
	err = rules.check(archived, LevelCourseCode)
	if !errors.Is(err, ErrPreconditionUnmet) || !strings.Contains(err.Error(), "ARCHIVE") {
		t.Fatalf("expected unmet custom rule, got %v", err)
	}

	missing := NewScope(FieldCourseCode, nil)
	if err := rules.check(missing, LevelInstitution); !errors.Is(err, ErrPreconditionUnmet) {
		t.Fatalf("expected unmet default rule, got %v", err)
	}
}

func TestPreconditionsRejectUnknownField(t *testing.T) {
	_, err := newPreconditions(applyOptions([]Option{WithPrecondition(FieldUnknown, LevelRoot, "true")}))
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestPreconditionsRejectUnusedLevels(t *testing.T) {
	cases := []struct {
		field FieldName
		level Level
		want  error
	}{
		{FieldCourseCode, LevelCourseCode, ErrUnknownLevel},
		{FieldInstitution, LevelInstitution, ErrUnknownLevel},
		{FieldTerm, LevelRoot, ErrUnknownLevel},
		{FieldTerm, Level(9), ErrUnknownLevel},
		{FieldSchedule, LevelRoot, ErrNotCascading},
	}
	for _, tc := range cases {
		_, err := newPreconditions(applyOptions([]Option{WithPrecondition(tc.field, tc.level, "true")}))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s at %s: expected %v, got %v", tc.field, tc.level, tc.want, err)
		}
	}
	for _, level := range []Level{LevelInstitution, LevelCourseCode} {
		if _, err := newPreconditions(applyOptions([]Option{WithPrecondition(FieldTerm, level, "true")})); err != nil {
			t.Fatalf("term at %s: %v", level, err)
		}
	}
}

func TestPreconditionRulesAreScopedToTheirLevel(t *testing.T) {
	rules, err := newPreconditions(applyOptions([]Option{
		WithPrecondition(FieldTerm, LevelCourseCode, `courseCode != "ARCHIVE"`),
	}))
	if err != nil {
		t.Fatalf("preconditions: %v", err)
	}
	institution := NewScope(FieldTerm, map[FieldName]string{FieldInstitution: "acme"})
	if diff := cmp.Diff([]string{`institution != ""`}, rules.rules(institution, LevelInstitution)); diff != "" {
		t.Fatalf("institution level rules (-want +got):\n%s", diff)
	}
	code := NewScope(FieldTerm, map[FieldName]string{FieldInstitution: "acme", FieldCourseCode: "CS101"})
	want := []string{`institution != "" && courseCode != ""`, `courseCode != "ARCHIVE"`}
	if diff := cmp.Diff(want, rules.rules(code, LevelCourseCode)); diff != "" {
		t.Fatalf("course code level rules (-want +got):\n%s", diff)
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range []Level{LevelRoot, LevelInstitution, LevelCourseCode} {
		got, ok := ParseLevel(level.String())
		if !ok || got != level {
			t.Fatalf("parse %s: got %v %v", level, got, ok)
		}
	}
	if _, ok := ParseLevel("campus"); ok {
		t.Fatalf("unknown level should not parse")
	}
}

func TestPreconditionsRequireBooleanResult(t *testing.T) {
	rules, err := newPreconditions(applyOptions([]Option{WithPrecondition(FieldCourseCode, LevelInstitution, "institution")}))
	if err != nil {
		t.Fatalf("preconditions: %v", err)
	}
	err = rules.check(NewScope(FieldCourseCode, map[FieldName]string{FieldInstitution: "acme"}), LevelInstitution)
	var evalErr *EvaluationError
	if !errors.Is(err, ErrPreconditionUnmet) || !errors.As(err, &evalErr) {
		t.Fatalf("expected unmet precondition with evaluation error, got %v", err)
	}
	if evalErr.Engine != "expr" {
		t.Fatalf("expected expr engine, got %q", evalErr.Engine)
	}
}

func TestPreconditionsCustomFunctions(t *testing.T) {
	for _, factory := range evaluatorFactories[:2] {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			registry := NewFunctionRegistry()
			if err := registry.Register("enrolling", func(args ...any) (any, error) {
				return len(args) == 1 && args[0] != "closed", nil
			}); err != nil {
				t.Fatalf("register: %v", err)
			}
			rule := `call("enrolling", [institution])`
			if factory.name == "expr" {
				rule = `enrolling(institution)`
			}
			rules, err := newPreconditions(applyOptions([]Option{
				WithEvaluator(factory.new(WithRuleFunctions(registry))),
				WithPrecondition(FieldCourseCode, LevelInstitution, rule),
			}))
			if err != nil {
				t.Fatalf("preconditions: %v", err)
			}
			open := NewScope(FieldCourseCode, map[FieldName]string{FieldInstitution: "acme"})
			if err := rules.check(open, LevelInstitution); err != nil {
				t.Fatalf("expected open institution to pass: %v", err)
			}
			closed := NewScope(FieldCourseCode, map[FieldName]string{FieldInstitution: "closed"})
			if err := rules.check(closed, LevelInstitution); !errors.Is(err, ErrPreconditionUnmet) {
				t.Fatalf("expected closed institution to fail, got %v", err)
			}
		})
	}
}

func TestPreconditionsLogEvaluations(t *testing.T) {
	var (
		mu     sync.Mutex
		events []EvaluatorLogEvent
	)
	logger := EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})
	rules, err := newPreconditions(applyOptions([]Option{
		WithEvaluator(NewCELEvaluator()),
		WithEvaluatorLogger(logger),
	}))
	if err != nil {
		t.Fatalf("preconditions: %v", err)
	}
	scope := NewScope(FieldCourseCode, map[FieldName]string{FieldInstitution: "acme"})
	if err := rules.check(scope, LevelInstitution); err != nil {
		t.Fatalf("check: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(events))
	}
	if events[0].Engine != "cel" || events[0].Result != true || events[0].Scope != scope.Key() {
		t.Fatalf("unexpected log event %+v", events[0])
	}
}

type countingEvaluator struct {
	Evaluator
	mu       sync.Mutex
	compiles int
}

func (c *countingEvaluator) Compile(expr string) (CompiledRule, error) {
	c.mu.Lock()
	c.compiles++
	c.mu.Unlock()
	return c.Evaluator.Compile(expr)
}

func TestPreconditionsCompileEachRuleOnce(t *testing.T) {
	counter := &countingEvaluator{Evaluator: NewExprEvaluator()}
	rules, err := newPreconditions(applyOptions([]Option{WithEvaluator(counter)}))
	if err != nil {
		t.Fatalf("preconditions: %v", err)
	}
	scope := NewScope(FieldTerm, map[FieldName]string{FieldInstitution: "acme", FieldCourseCode: "CS101"})
	for i := 0; i < 3; i++ {
		if err := rules.check(scope, LevelCourseCode); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	if counter.compiles != 1 {
		t.Fatalf("expected one compile, got %d", counter.compiles)
	}
	if rules.engine != "custom" {
		t.Fatalf("expected wrapped evaluator to report custom engine, got %q", rules.engine)
	}
}

func TestProgramCacheSharesPrograms(t *testing.T) {
	cache, err := NewLRUProgramCache(0)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	evaluator := NewExprEvaluator(WithRuleCache(cache))
	rule := `institution == "acme"`
	if _, err := evaluator.Evaluate(RuleContext{}, rule); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, ok := cache.Get("expr:" + rule); !ok {
		t.Fatalf("expected compiled program to be cached")
	}
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	upper := func(args ...any) (any, error) { return strings.ToUpper(args[0].(string)), nil }
	if err := registry.Register("upper", upper); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("upper", upper); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := registry.Register(" ", upper); err == nil {
		t.Fatalf("expected blank name to fail")
	}
	clone := registry.Clone()
	if err := registry.Register("lower", upper); err != nil {
		t.Fatalf("register: %v", err)
	}
	if names := clone.Names(); len(names) != 1 || names[0] != "upper" {
		t.Fatalf("clone should not see later registrations, got %v", names)
	}
	value, err := clone.Call("upper", "cs101")
	if err != nil || value != "CS101" {
		t.Fatalf("expected CS101, got %v (%v)", value, err)
	}
	if _, err := clone.Call("UPPER", "cs101"); err == nil {
		t.Fatalf("expected names to be case sensitive")
	}
}

func TestBuiltinFunctions(t *testing.T) {
	builtins := BuiltinFunctions()
	cases := []struct {
		name string
		args []any
		want any
	}{
		{name: "blank", args: []any{"  "}, want: true},
		{name: "blank", args: []any{"acme"}, want: false},
		{name: "oneOf", args: []any{"CS101", "CS101", "CS102"}, want: true},
		{name: "oneOf", args: []any{"BUS200", []any{"CS101", "CS102"}}, want: false},
		{name: "codePrefix", args: []any{"cs101"}, want: "CS"},
		{name: "codePrefix", args: []any{"ARCHIVE"}, want: "ARCHIVE"},
	}
	for _, tc := range cases {
		got, err := builtins.Call(tc.name, tc.args...)
		if err != nil {
			t.Fatalf("%s%v: %v", tc.name, tc.args, err)
		}
		if got != tc.want {
			t.Fatalf("%s%v: expected %v, got %v", tc.name, tc.args, tc.want, got)
		}
	}
	if _, err := builtins.Call("blank"); err == nil {
		t.Fatalf("expected arity error")
	}
}

func TestDefaultEngineExposesBuiltins(t *testing.T) {
	resolver := newFakeResolver()
	ctl := newTestController(t, resolver, nil,
		WithPrecondition(FieldTerm, LevelCourseCode, `codePrefix(courseCode) == "CS"`))
	selectInstitution(t, ctl, "beta")
	if err := ctl.OnCourseCodeChange(context.Background(), "BUS200"); err != nil {
		t.Fatalf("course code change: %v", err)
	}
	ctl.Wait()
	if calls := resolver.callCount("term?courseCode=BUS200&institution=beta"); calls != 0 {
		t.Fatalf("the BUS prefix should block term resolution, got %d calls", calls)
	}
	last, _ := ctl.Trace(FieldTerm).Last()
	if last.Outcome != OutcomeSkipped || !strings.Contains(last.Error, "codePrefix") {
		t.Fatalf("expected skipped codePrefix rule, got %+v", last)
	}
}

func TestNewEvaluator(t *testing.T) {
	for _, engine := range []string{"", EngineExpr, "CEL"} {
		evaluator, err := NewEvaluator(engine)
		if err != nil {
			t.Fatalf("engine %q: %v", engine, err)
		}
		if engineName(evaluator) == engineCustom {
			t.Fatalf("engine %q should name itself", engine)
		}
	}
	if _, err := NewEvaluator("lua"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
	if NewJSEvaluator() == nil {
		if _, err := NewEvaluator(EngineJS); !errors.Is(err, ErrEngineUnavailable) {
			t.Fatalf("expected ErrEngineUnavailable, got %v", err)
		}
	}
}

func TestWithEngineSelectsDefaultEvaluator(t *testing.T) {
	rules, err := newPreconditions(applyOptions([]Option{WithEngine(EngineCEL)}))
	if err != nil {
		t.Fatalf("preconditions: %v", err)
	}
	if rules.engine != EngineCEL {
		t.Fatalf("expected cel engine, got %q", rules.engine)
	}

	_, err = New(newFakeResolver(), &fakeSearcher{}, WithEngine("lua"))
	if !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestWithFunctionRegistryReachesDefaultEngine(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("retired", func(args ...any) (any, error) {
		return len(args) == 1 && args[0] == "CS101", nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resolver := newFakeResolver()
	ctl := newTestController(t, resolver, nil,
		WithFunctionRegistry(registry),
		WithPrecondition(FieldTerm, LevelCourseCode, `!retired(courseCode) && blank("")`))
	selectInstitution(t, ctl, "acme")

	ctx := context.Background()
	if err := ctl.OnCourseCodeChange(ctx, "CS101"); err != nil {
		t.Fatalf("course code change: %v", err)
	}
	ctl.Wait()
	if calls := resolver.callCount("term?courseCode=CS101&institution=acme"); calls != 0 {
		t.Fatalf("retired codes should not resolve terms, got %d calls", calls)
	}

	if err := ctl.OnCourseCodeChange(ctx, "CS102"); err != nil {
		t.Fatalf("course code change: %v", err)
	}
	ctl.Wait()
	if calls := resolver.callCount("term?courseCode=CS102&institution=acme"); calls != 1 {
		t.Fatalf("expected one term resolution, got %d", calls)
	}
}

func TestWithCustomFunctionReportsRegistrationErrors(t *testing.T) {
	valid := func(args ...any) (any, error) { return true, nil }
	cases := map[string][]Option{
		"nil function": {WithCustomFunction("open", nil)},
		"blank name":   {WithCustomFunction("", valid)},
		"duplicate":    {WithCustomFunction("open", valid), WithCustomFunction("open", valid)},
	}
	for name, opts := range cases {
		if _, err := New(newFakeResolver(), &fakeSearcher{}, opts...); err == nil {
			t.Fatalf("%s: expected New to fail", name)
		}
	}
	if _, err := New(newFakeResolver(), &fakeSearcher{}, WithCustomFunction("open", valid)); err != nil {
		t.Fatalf("valid function: %v", err)
	}
}
