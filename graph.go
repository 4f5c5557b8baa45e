package cascade

import (
	"errors"
	"fmt"
)

// DependencyGraph records which fields must be re-resolved when a field
// changes. It is fixed at construction and read-only afterwards.
type DependencyGraph struct {
	edges map[FieldName][]FieldName
}

// Dependencies is the static course search dependency graph:
//
//	institution -> courseCode, courseTitle, term
//	courseCode  -> courseTitle, term
//
// Schedule and delivery method have neither dependents nor dependencies.
var Dependencies = NewDependencyGraph(map[FieldName][]FieldName{
	FieldInstitution: {FieldCourseCode, FieldCourseTitle, FieldTerm},
	FieldCourseCode:  {FieldCourseTitle, FieldTerm},
})

var (
	// ErrGraphUnknownField indicates an edge referencing a field outside the
	// closed set.
	ErrGraphUnknownField = errors.New("graph: unknown field")
	// ErrGraphCycle indicates the edges do not form a DAG.
	ErrGraphCycle = errors.New("graph: cycle detected")
)

// NewDependencyGraph copies edges into a graph. Call Validate to check the
// result before relying on it.
func NewDependencyGraph(edges map[FieldName][]FieldName) DependencyGraph {
	copied := make(map[FieldName][]FieldName, len(edges))
	for from, to := range edges {
		copied[from] = append([]FieldName(nil), to...)
	}
	return DependencyGraph{edges: copied}
}

// Dependents returns the direct dependents of field in declaration order.
func (g DependencyGraph) Dependents(field FieldName) []FieldName {
	return append([]FieldName(nil), g.edges[field]...)
}

// Transitive returns every field reachable from field, breadth first, without
// duplicates.
func (g DependencyGraph) Transitive(field FieldName) []FieldName {
	seen := map[FieldName]struct{}{field: {}}
	var out []FieldName
	queue := g.Dependents(field)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
		queue = append(queue, g.edges[next]...)
	}
	return out
}

// Upstream returns the fields that directly list field as a dependent, in
// form order.
func (g DependencyGraph) Upstream(field FieldName) []FieldName {
	var out []FieldName
	for _, candidate := range Fields {
		for _, dep := range g.edges[candidate] {
			if dep == field {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// DependsOn reports whether field is a transitive dependent of upstream.
func (g DependencyGraph) DependsOn(field, upstream FieldName) bool {
	for _, dep := range g.Transitive(upstream) {
		if dep == field {
			return true
		}
	}
	return false
}

// Validate checks every edge references a known field and that the graph is
// acyclic.
func (g DependencyGraph) Validate() error {
	for from, to := range g.edges {
		if !from.Valid() {
			return fmt.Errorf("%w: %d", ErrGraphUnknownField, int(from))
		}
		for _, dep := range to {
			if !dep.Valid() {
				return fmt.Errorf("%w: %s -> %d", ErrGraphUnknownField, from, int(dep))
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[FieldName]int, len(Fields))
	var visit func(FieldName) error
	visit = func(field FieldName) error {
		switch state[field] {
		case visiting:
			return fmt.Errorf("%w at %s", ErrGraphCycle, field)
		case done:
			return nil
		}
		state[field] = visiting
		for _, dep := range g.edges[field] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[field] = done
		return nil
	}
	for _, field := range Fields {
		if err := visit(field); err != nil {
			return err
		}
	}
	return nil
}
