// Package openapi builds the OpenAPI contract of the course data service from
// the Go types exchanged on the wire.
package openapi

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/pkg/dataservice"
)

// OptionTypes lists the values accepted by the getSearchOptions type
// parameter.
var OptionTypes = []string{
	dataservice.TypeInstitutions,
	dataservice.TypeCourseCodes,
	dataservice.TypeCourseTitles,
	dataservice.TypeCourseTitle,
	dataservice.TypeTerms,
}

// Build returns the OpenAPI document as a generic map.
func Build(opts ...GeneratorOption) (map[string]any, error) {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return newDocumentBuilder(cfg).build()
}

// JSON returns the indented OpenAPI document.
func JSON(opts ...GeneratorOption) ([]byte, error) {
	document, err := Build(opts...)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(document, "", "  ")
}

type documentBuilder struct {
	config   generatorConfig
	registry *componentRegistry
	errorRef map[string]any
}

func newDocumentBuilder(config generatorConfig) *documentBuilder {
	return &documentBuilder{
		config:   config,
		registry: newComponentRegistry(),
	}
}

func (b *documentBuilder) build() (map[string]any, error) {
	b.errorRef = b.registry.define("Error", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"error": map[string]any{"type": "string"},
			"code":  map[string]any{"type": "string"},
		},
		"required": []string{"error"},
	})

	paths, err := b.buildPaths()
	if err != nil {
		return nil, err
	}

	document := map[string]any{
		"openapi": Version,
		"info":    b.buildInfo(),
		"paths":   paths,
	}
	if len(b.config.servers) > 0 {
		servers := make([]any, 0, len(b.config.servers))
		for _, url := range b.config.servers {
			servers = append(servers, map[string]any{"url": url})
		}
		document["servers"] = servers
	}
	if components := b.registry.componentsMap(); components != nil {
		document["components"] = map[string]any{
			"schemas": components,
		}
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}
	return document, nil
}

func (b *documentBuilder) buildInfo() map[string]any {
	info := map[string]any{
		"title":   b.config.title,
		"version": b.config.version,
	}
	if b.config.description != "" {
		info["description"] = b.config.description
	}
	return info
}

func (b *documentBuilder) schema(value any) (map[string]any, error) {
	return schemaFor(b.registry, reflect.TypeOf(value))
}

func (b *documentBuilder) path(name string) string {
	return b.config.basePath + "/" + name
}

func (b *documentBuilder) buildPaths() (map[string]any, error) {
	strs, err := b.schema([]string{})
	if err != nil {
		return nil, err
	}
	institutions, err := b.schema([]dataservice.Institution{})
	if err != nil {
		return nil, err
	}
	query, err := b.schema(cascade.SearchQuery{})
	if err != nil {
		return nil, err
	}
	results, err := b.schema([]cascade.CourseResult{})
	if err != nil {
		return nil, err
	}
	detail, err := b.schema(dataservice.CourseDetail{})
	if err != nil {
		return nil, err
	}

	types := make([]any, 0, len(OptionTypes))
	for _, typ := range OptionTypes {
		types = append(types, typ)
	}

	searchOptions := map[string]any{
		"get": map[string]any{
			"operationId": "getSearchOptions",
			"summary":     "List the valid options of one search field",
			"parameters": []any{
				queryParam("type", true, map[string]any{"type": "string", "enum": types}),
				queryParam("institutionId", false, map[string]any{"type": "string"}),
				queryParam("courseCode", false, map[string]any{"type": "string"}),
			},
			"responses": map[string]any{
				"200": jsonResponse("Option list; institutions are objects, courseTitle is a single nullable string", map[string]any{
					"oneOf": []any{
						strs,
						institutions,
						map[string]any{"type": "string", "nullable": true},
					},
				}),
				"400": jsonResponse("Missing or invalid parameter", b.errorRef),
			},
		},
	}

	searchCourse := map[string]any{
		"post": map[string]any{
			"operationId": "searchCourse",
			"summary":     "Search courses; empty values apply no filter",
			"requestBody": map[string]any{
				"required": true,
				"content": map[string]any{
					"application/x-www-form-urlencoded": map[string]any{"schema": query},
					"application/json":                  map[string]any{"schema": query},
				},
			},
			"responses": map[string]any{
				"200": jsonResponse("Matching courses ordered by institution name then code", results),
				"500": jsonResponse("Search failed", b.errorRef),
			},
		},
	}

	courseDetail := map[string]any{
		"get": map[string]any{
			"operationId": "getCourseDetail",
			"summary":     "Fetch the full record of one course",
			"parameters": []any{
				queryParam("courseId", true, map[string]any{"type": "string"}),
			},
			"responses": map[string]any{
				"200": jsonResponse("Course record", detail),
				"400": jsonResponse("Missing or invalid course id", b.errorRef),
				"404": jsonResponse("Unknown course", b.errorRef),
			},
		},
	}

	return map[string]any{
		b.path(dataservice.PathSearchOptions): searchOptions,
		b.path(dataservice.PathSearchCourse):  searchCourse,
		b.path(dataservice.PathCourseDetail):  courseDetail,
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"responses": map[string]any{
					"200": map[string]any{"description": "Catalog reachable"},
					"503": map[string]any{"description": "Catalog unreachable"},
				},
			},
		},
	}, nil
}

func queryParam(name string, required bool, schema map[string]any) map[string]any {
	return map[string]any{
		"name":     name,
		"in":       "query",
		"required": required,
		"schema":   schema,
	}
}

func jsonResponse(description string, schema map[string]any) map[string]any {
	return map[string]any{
		"description": description,
		"content": map[string]any{
			"application/json": map[string]any{"schema": schema},
		},
	}
}

func validateDocument(document map[string]any) error {
	if document == nil {
		return fmt.Errorf("openapi: document cannot be nil")
	}
	openapi, _ := document["openapi"].(string)
	if openapi == "" {
		return fmt.Errorf("openapi: document missing version string")
	}
	info, _ := document["info"].(map[string]any)
	if info == nil {
		return fmt.Errorf("openapi: document missing info section")
	}
	if title, _ := info["title"].(string); title == "" {
		return fmt.Errorf("openapi: info.title must be set")
	}
	if version, _ := info["version"].(string); version == "" {
		return fmt.Errorf("openapi: info.version must be set")
	}
	paths, _ := document["paths"].(map[string]any)
	if len(paths) == 0 {
		return fmt.Errorf("openapi: document must define at least one path")
	}
	keys := make([]string, 0, len(paths))
	for key := range paths {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, pathKey := range keys {
		if !strings.HasPrefix(pathKey, "/") {
			return fmt.Errorf("openapi: path %q must start with /", pathKey)
		}
		pathItem, _ := paths[pathKey].(map[string]any)
		if len(pathItem) == 0 {
			return fmt.Errorf("openapi: path %q missing operations", pathKey)
		}
		for method, operationValue := range pathItem {
			operation, _ := operationValue.(map[string]any)
			if operation == nil {
				return fmt.Errorf("openapi: operation %s %s invalid payload", method, pathKey)
			}
			if _, ok := operation["operationId"].(string); !ok {
				return fmt.Errorf("openapi: operation %s %s missing operationId", method, pathKey)
			}
			switch method {
			case "post", "put", "patch":
				requestBody, _ := operation["requestBody"].(map[string]any)
				if requestBody == nil {
					return fmt.Errorf("openapi: operation %s %s missing requestBody", method, pathKey)
				}
				content, _ := requestBody["content"].(map[string]any)
				if len(content) == 0 {
					return fmt.Errorf("openapi: operation %s %s requestBody missing content", method, pathKey)
				}
			}
			if responses, _ := operation["responses"].(map[string]any); len(responses) == 0 {
				return fmt.Errorf("openapi: operation %s %s missing responses", method, pathKey)
			}
		}
	}
	return nil
}
