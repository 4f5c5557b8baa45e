package openapi

import (
	"fmt"
	"reflect"
	"regexp"
)

// componentRegistry publishes named struct schemas under
// #/components/schemas and hands out references to them.
type componentRegistry struct {
	entries   map[reflect.Type]*componentEntry
	defined   []*componentEntry
	usedNames map[string]struct{}
}

type componentEntry struct {
	name   string
	schema map[string]any
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		entries:   map[reflect.Type]*componentEntry{},
		usedNames: map[string]struct{}{},
	}
}

// reference returns the $ref for rt, building its schema on first use.
func (r *componentRegistry) reference(nameHint string, rt reflect.Type) (map[string]any, error) {
	if entry, ok := r.entries[rt]; ok {
		return refTo(entry.name), nil
	}
	entry := &componentEntry{name: r.uniqueName(nameHint)}
	// Register before building so self-referential types terminate.
	r.entries[rt] = entry
	schema, err := schemaForStruct(r, rt)
	if err != nil {
		delete(r.entries, rt)
		return nil, err
	}
	entry.schema = schema
	return refTo(entry.name), nil
}

// define publishes a hand-written schema under name.
func (r *componentRegistry) define(name string, schema map[string]any) map[string]any {
	name = r.uniqueName(name)
	r.defined = append(r.defined, &componentEntry{name: name, schema: schema})
	return refTo(name)
}

func refTo(name string) map[string]any {
	return map[string]any{"$ref": fmt.Sprintf("#/components/schemas/%s", name)}
}

func (r *componentRegistry) uniqueName(name string) string {
	safe := sanitizeComponentName(name)
	if safe == "" {
		safe = "Schema"
	}
	if _, exists := r.usedNames[safe]; !exists {
		r.usedNames[safe] = struct{}{}
		return safe
	}
	suffix := 1
	for {
		candidate := fmt.Sprintf("%s%d", safe, suffix)
		if _, exists := r.usedNames[candidate]; !exists {
			r.usedNames[candidate] = struct{}{}
			return candidate
		}
		suffix++
	}
}

func (r *componentRegistry) componentsMap() map[string]any {
	out := make(map[string]any, len(r.entries)+len(r.defined))
	for _, entry := range r.entries {
		if entry.schema == nil {
			entry.schema = map[string]any{}
		}
		out[entry.name] = entry.schema
	}
	for _, entry := range r.defined {
		out[entry.name] = entry.schema
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var componentNameRegexp = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeComponentName(name string) string {
	name = componentNameRegexp.ReplaceAllString(name, "_")
	name = trimUnderscores(name)
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func trimUnderscores(input string) string {
	start := 0
	for start < len(input) && input[start] == '_' {
		start++
	}
	end := len(input)
	for end > start && input[end-1] == '_' {
		end--
	}
	return input[start:end]
}
