package openapi

import "strings"

// Version is the OpenAPI version the generated documents declare.
const Version = "3.0.3"

type generatorConfig struct {
	title       string
	version     string
	description string
	servers     []string
	basePath    string
}

func defaultGeneratorConfig() generatorConfig {
	return generatorConfig{
		title:    "Course Search Data Service",
		version:  "1.0.0",
		basePath: "/api",
	}
}

// GeneratorOption configures the OpenAPI document.
type GeneratorOption func(*generatorConfig)

// WithInfo sets the info block. Empty title or version keep the defaults.
func WithInfo(title, version, description string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if title = strings.TrimSpace(title); title != "" {
			cfg.title = title
		}
		if version = strings.TrimSpace(version); version != "" {
			cfg.version = version
		}
		cfg.description = strings.TrimSpace(description)
	}
}

// WithServer appends a server URL to the document.
func WithServer(url string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if url = strings.TrimSpace(url); url != "" {
			cfg.servers = append(cfg.servers, url)
		}
	}
}

// WithBasePath sets the prefix of every documented path (default: /api).
// "/" or "" documents the endpoints at the root.
func WithBasePath(path string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.basePath = normaliseBasePath(path)
	}
}

func normaliseBasePath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}
