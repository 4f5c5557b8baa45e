package cascade

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownField indicates a field name outside the closed set.
	ErrUnknownField = errors.New("cascade: unknown field")
	// ErrUnknownOption indicates a selection that is not among the field's
	// current options.
	ErrUnknownOption = errors.New("cascade: value is not a current option")
	// ErrNotCascading indicates an operation that only applies to fields
	// resolved through the Resolver.
	ErrNotCascading = errors.New("cascade: field is not resolved by the resolver")
	// ErrResolverRequired indicates New was called without a Resolver.
	ErrResolverRequired = errors.New("cascade: resolver is required")
	// ErrSearcherRequired indicates New was called without a Searcher.
	ErrSearcherRequired = errors.New("cascade: searcher is required")
	// ErrPreconditionUnmet indicates a scope's upstream selections do not allow
	// resolving it.
	ErrPreconditionUnmet = errors.New("cascade: precondition not met")
	// ErrUnknownLevel indicates a rule placed at a level its field is never
	// resolved at.
	ErrUnknownLevel = errors.New("cascade: unknown resolution level")
	// ErrNoEvaluator indicates no rule evaluator could be constructed.
	ErrNoEvaluator = errors.New("cascade: evaluator not configured")
)

// ResolutionError reports a failed option resolution for one field.
type ResolutionError struct {
	Field FieldName
	Seq   uint64
	Scope Scope
	Err   error
}

func (e *ResolutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("cascade: resolve %s (seq=%d, level=%s): %v", e.Field, e.Seq, e.Scope.Level(), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SearchError reports a failed search call. The results view keeps its prior
// rows when this happens.
type SearchError struct {
	Query SearchQuery
	Seq   uint64
	Err   error
}

func (e *SearchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("cascade: search (seq=%d): %v", e.Seq, e.Err)
}

func (e *SearchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EvaluationError reports a precondition rule that failed to compile or run.
type EvaluationError struct {
	Engine string
	Expr   string
	Scope  string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	expr := "<empty>"
	if e.Expr != "" {
		expr = fmt.Sprintf("%q", e.Expr)
	}
	return fmt.Sprintf("cascade: %s rule %s at %s: %v", e.Engine, expr, e.Scope, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// engineError tags a failure that is not tied to one rule with the engine
// name. Errors that already carry the package prefix pass through.
func engineError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) || strings.HasPrefix(err.Error(), "cascade:") {
		return err
	}
	return fmt.Errorf("cascade: %s engine: %w", engine, err)
}

// ruleError attaches rule metadata to err, filling only the blanks of an
// existing EvaluationError.
func ruleError(engine, expr, scope string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		return &EvaluationError{Engine: engine, Expr: expr, Scope: scope, Err: err}
	}
	if evalErr.Engine == "" {
		evalErr.Engine = engine
	}
	if evalErr.Expr == "" {
		evalErr.Expr = expr
	}
	if evalErr.Scope == "" {
		evalErr.Scope = scope
	}
	return evalErr
}
