package openapi

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// schemaFor builds the schema of rt. Named struct types are published as
// components and referenced.
func schemaFor(reg *componentRegistry, rt reflect.Type) (map[string]any, error) {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	switch rt.Kind() {
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Interface:
		return map[string]any{}, nil
	case reflect.Struct:
		if rt == reflect.TypeOf(time.Time{}) {
			return map[string]any{
				"type":   "string",
				"format": "date-time",
			}, nil
		}
		if rt.Name() == "" {
			return schemaForStruct(reg, rt)
		}
		return reg.reference(rt.Name(), rt)
	case reflect.Map:
		return schemaForMap(reg, rt)
	case reflect.Slice, reflect.Array:
		return schemaForSlice(reg, rt)
	default:
		return map[string]any{
			"type":   "string",
			"format": fmt.Sprintf("go:%s", rt.String()),
		}, nil
	}
}

func schemaForMap(reg *componentRegistry, rt reflect.Type) (map[string]any, error) {
	if rt.Key().Kind() != reflect.String {
		return nil, fmt.Errorf("openapi: map key type %s unsupported", rt.Key())
	}
	values, err := schemaFor(reg, rt.Elem())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": values,
	}, nil
}

// schemaForStruct lists exported fields by their json names. Fields without
// omitempty are required. A `doc` tag becomes the property description.
func schemaForStruct(reg *componentRegistry, rt reflect.Type) (map[string]any, error) {
	properties := map[string]any{}
	var required []string

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name, omitEmpty, skip := parseJSONName(field)
		if skip {
			continue
		}

		child, err := schemaFor(reg, field.Type)
		if err != nil {
			return nil, fmt.Errorf("openapi: %s.%s: %w", rt.Name(), field.Name, err)
		}
		if doc := strings.TrimSpace(field.Tag.Get("doc")); doc != "" {
			if _, isRef := child["$ref"]; !isRef {
				child["description"] = doc
			}
		}
		properties[name] = child
		if !omitEmpty {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return schema, nil
}

func schemaForSlice(reg *componentRegistry, rt reflect.Type) (map[string]any, error) {
	if rt.Kind() == reflect.Slice && rt.Elem().Kind() == reflect.Uint8 {
		return map[string]any{
			"type":   "string",
			"format": "byte",
		}, nil
	}
	items, err := schemaFor(reg, rt.Elem())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "array",
		"items": items,
	}, nil
}

func parseJSONName(field reflect.StructField) (name string, omitEmpty bool, skip bool) {
	name = field.Name
	tag := field.Tag.Get("json")
	if tag == "" {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		return "", false, true
	}
	if parts[0] != "" {
		name = parts[0]
	}
	for _, part := range parts[1:] {
		if part == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
