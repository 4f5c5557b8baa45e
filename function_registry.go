package cascade

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Function is a helper callable from precondition rules.
type Function func(args ...any) (any, error)

// FunctionRegistry holds rule helpers by name. Names are case sensitive so
// they can be called the way they are written in rules.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: map[string]Function{}}
}

// BuiltinFunctions returns a registry with the helpers every controller
// exposes to its rules:
//
//	blank(v)             true when v is empty or whitespace
//	oneOf(v, a, b, ...)  true when v equals one of the candidates
//	codePrefix(code)     the leading letters of a course code, upper-cased
func BuiltinFunctions() *FunctionRegistry {
	r := NewFunctionRegistry()
	_ = r.Register("blank", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("blank expects 1 argument, got %d", len(args))
		}
		return strings.TrimSpace(fmt.Sprint(args[0])) == "", nil
	})
	_ = r.Register("oneOf", func(args ...any) (any, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("oneOf expects a value")
		}
		value := fmt.Sprint(args[0])
		for _, candidate := range flattenArgs(args[1:]) {
			if fmt.Sprint(candidate) == value {
				return true, nil
			}
		}
		return false, nil
	})
	_ = r.Register("codePrefix", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("codePrefix expects 1 argument, got %d", len(args))
		}
		code := strings.TrimSpace(fmt.Sprint(args[0]))
		end := strings.IndexFunc(code, func(r rune) bool { return !unicode.IsLetter(r) })
		if end < 0 {
			end = len(code)
		}
		return strings.ToUpper(code[:end]), nil
	})
	return r
}

// flattenArgs expands a single list argument so oneOf(v, ["a", "b"]) and
// oneOf(v, "a", "b") behave the same.
func flattenArgs(args []any) []any {
	if len(args) == 1 {
		if list, ok := args[0].([]any); ok {
			return list
		}
	}
	return args
}

// Register adds fn under name. Names must be unique.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("cascade: function %q is nil", name)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("cascade: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = map[string]Function{}
	}
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("cascade: function %q already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// Merge copies every function of other into r, replacing same-named ones.
func (r *FunctionRegistry) Merge(other *FunctionRegistry) {
	if r == nil || other == nil {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = map[string]Function{}
	}
	for name, fn := range other.functions {
		r.functions[name] = fn
	}
}

func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	clone := NewFunctionRegistry()
	clone.Merge(r)
	return clone
}

// Call runs the function registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("cascade: no functions registered")
	}
	r.mu.RLock()
	fn := r.functions[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("cascade: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns the registered names in sorted order.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithFunctionRegistry adds the functions in registry to those the
// controller's rule engine exposes, on top of BuiltinFunctions. It has no
// effect together with WithEvaluator.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		if registry == nil {
			return
		}
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		cfg.functions.Merge(registry)
	}
}

// WithCustomFunction registers fn under name for the controller's rule
// engine. New reports a nil fn, an empty name or a duplicate.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *config) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		if err := cfg.functions.Register(name, fn); err != nil {
			cfg.errs = append(cfg.errs, err)
		}
	}
}
