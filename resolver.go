package cascade

import (
	"context"
	"sort"
	"strings"
)

// Level describes how narrowly a scope is keyed.
type Level int

const (
	// LevelRoot scopes have no upstream selections (institution list).
	LevelRoot Level = iota
	// LevelInstitution scopes are keyed by the institution only.
	LevelInstitution
	// LevelCourseCode scopes are keyed by institution and course code.
	LevelCourseCode
)

func (l Level) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelInstitution:
		return "institution"
	case LevelCourseCode:
		return "courseCode"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name ("root", "institution", "courseCode")
// back into a Level.
func ParseLevel(name string) (Level, bool) {
	for _, level := range []Level{LevelRoot, LevelInstitution, LevelCourseCode} {
		if level.String() == strings.TrimSpace(name) {
			return level, true
		}
	}
	return 0, false
}

// Scope pairs a field with the upstream selections that parameterise its
// valid option set.
type Scope struct {
	Field   FieldName
	Context map[FieldName]string
}

// NewScope builds a Scope, copying context and dropping empty values so the
// scope reflects only the selections that actually constrain it.
func NewScope(field FieldName, context map[FieldName]string) Scope {
	copied := make(map[FieldName]string, len(context))
	for key, value := range context {
		if strings.TrimSpace(value) == "" {
			continue
		}
		copied[key] = value
	}
	return Scope{Field: field, Context: copied}
}

// Value returns the upstream selection for field, or "".
func (s Scope) Value(field FieldName) string {
	return s.Context[field]
}

// InstitutionID is a shorthand for Value(FieldInstitution).
func (s Scope) InstitutionID() string {
	return s.Context[FieldInstitution]
}

// CourseCode is a shorthand for Value(FieldCourseCode).
func (s Scope) CourseCode() string {
	return s.Context[FieldCourseCode]
}

// Level reports how narrowly the scope is keyed.
func (s Scope) Level() Level {
	switch {
	case s.Context[FieldCourseCode] != "":
		return LevelCourseCode
	case s.Context[FieldInstitution] != "":
		return LevelInstitution
	default:
		return LevelRoot
	}
}

// Binding exposes the scope context to rule evaluators keyed by wire names.
// Every cascading field is present so rules can compare against "".
func (s Scope) Binding() map[string]any {
	binding := map[string]any{
		FieldInstitution.String(): "",
		FieldCourseCode.String():  "",
	}
	for field, value := range s.Context {
		binding[field.String()] = value
	}
	binding["field"] = s.Field.String()
	binding["level"] = s.Level().String()
	return binding
}

// Key returns a stable identifier for the scope, suitable for caches and
// request deduplication.
func (s Scope) Key() string {
	parts := make([]string, 0, len(s.Context))
	for field, value := range s.Context {
		parts = append(parts, field.String()+"="+value)
	}
	sort.Strings(parts)
	return s.Field.String() + "?" + strings.Join(parts, "&")
}

func (s Scope) clone() Scope {
	return NewScope(s.Field, s.Context)
}

// Resolver fetches the valid options for a scope. Implementations must not
// retry and must not touch controller state; returned entries should exclude
// sentinels.
type Resolver interface {
	Resolve(ctx context.Context, scope Scope) ([]OptionEntry, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, scope Scope) ([]OptionEntry, error)

// Resolve implements Resolver.
func (fn ResolverFunc) Resolve(ctx context.Context, scope Scope) ([]OptionEntry, error) {
	return fn(ctx, scope)
}

// CourseResult is the read-only projection returned by a search.
type CourseResult struct {
	CourseID        string `json:"courseId"`
	Code            string `json:"code"`
	Title           string `json:"title"`
	InstitutionName string `json:"institutionName"`
	Term            string `json:"term"`
	Schedule        string `json:"schedule"`
	DeliveryMethod  string `json:"deliveryMethod"`
}

// Searcher runs a search query against the data service.
type Searcher interface {
	Search(ctx context.Context, query SearchQuery) ([]CourseResult, error)
}

// SearchFunc adapts a function to Searcher.
type SearchFunc func(ctx context.Context, query SearchQuery) ([]CourseResult, error)

// Search implements Searcher.
func (fn SearchFunc) Search(ctx context.Context, query SearchQuery) ([]CourseResult, error) {
	return fn(ctx, query)
}
