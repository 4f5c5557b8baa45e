// Package config resolves coursesearch settings from flags, environment,
// a YAML file and built-in defaults, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Layer is one source of settings. Nil fields are unset and fall through to
// weaker layers.
type Layer struct {
	Service ServiceLayer `yaml:"service"`
	Server  ServerLayer  `yaml:"server"`
	Catalog CatalogLayer `yaml:"catalog"`
	Log     LogLayer     `yaml:"log"`
	Rules   RulesLayer   `yaml:"rules"`
	Presets PresetsLayer `yaml:"presets"`
}

// ServiceLayer configures the data service client.
type ServiceLayer struct {
	BaseURL   *string        `yaml:"base_url"`
	Timeout   *time.Duration `yaml:"timeout"`
	RateLimit *float64       `yaml:"rate_limit"`
	Burst     *int           `yaml:"burst"`
}

// ServerLayer configures the reference data service.
type ServerLayer struct {
	Addr     *string `yaml:"addr"`
	BasePath *string `yaml:"base_path"`
}

// CatalogLayer configures the catalog store behind the reference service.
type CatalogLayer struct {
	Driver *string `yaml:"driver"`
	DSN    *string `yaml:"dsn"`
	Seed   *string `yaml:"seed"`
}

// LogLayer configures zap.
type LogLayer struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

// RulesLayer configures precondition evaluation.
type RulesLayer struct {
	Evaluator     *string                        `yaml:"evaluator"`
	CacheSize     *int                           `yaml:"cache_size"`
	Preconditions map[string]map[string][]string `yaml:"preconditions"`
}

// PresetsLayer configures where saved searches are kept.
type PresetsLayer struct {
	Dir   *string `yaml:"dir"`
	Owner *string `yaml:"owner"`
}

// Config is the resolved configuration.
type Config struct {
	Service Service
	Server  Server
	Catalog Catalog
	Log     Log
	Rules   Rules
	Presets Presets
}

// Service is the resolved client configuration.
type Service struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// Server is the resolved reference service configuration.
type Server struct {
	Addr     string
	BasePath string
}

// Catalog is the resolved catalog configuration.
type Catalog struct {
	Driver string
	DSN    string
	Seed   string
}

// Log is the resolved logging configuration.
type Log struct {
	Level  string
	Format string
}

// Rules is the resolved precondition configuration. Preconditions are keyed
// by field wire name, then by resolution level ("root", "institution",
// "courseCode").
type Rules struct {
	Evaluator     string
	CacheSize     int
	Preconditions map[string]map[string][]string
}

// Presets is the resolved saved search configuration.
type Presets struct {
	Dir   string
	Owner string
}

// Evaluator engines accepted in Rules.Evaluator.
const (
	EvaluatorExpr = "expr"
	EvaluatorCEL  = "cel"
	EvaluatorJS   = "js"
)

func ptr[T any](v T) *T { return &v }

// Defaults is the weakest layer.
func Defaults() Layer {
	return Layer{
		Service: ServiceLayer{
			BaseURL:   ptr("http://localhost:8080/api"),
			Timeout:   ptr(10 * time.Second),
			RateLimit: ptr(20.0),
			Burst:     ptr(5),
		},
		Server: ServerLayer{
			Addr:     ptr(":8080"),
			BasePath: ptr("/api"),
		},
		Catalog: CatalogLayer{
			Driver: ptr("sqlite"),
			DSN:    ptr("catalog.db"),
			Seed:   ptr(""),
		},
		Log: LogLayer{
			Level:  ptr("info"),
			Format: ptr("console"),
		},
		Rules: RulesLayer{
			Evaluator: ptr(EvaluatorExpr),
			CacheSize: ptr(128),
		},
		Presets: PresetsLayer{
			Dir:   ptr(".coursesearch/presets"),
			Owner: ptr("local"),
		},
	}
}

// LoadFile reads a YAML layer. A missing file yields an empty layer when
// optional is true.
func LoadFile(path string, optional bool) (Layer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Layer{}, nil
		}
		return Layer{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a YAML layer. Unknown keys are rejected.
func Parse(b []byte) (Layer, error) {
	var layer Layer
	if len(bytes.TrimSpace(b)) == 0 {
		return layer, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&layer); err != nil {
		return Layer{}, fmt.Errorf("config: parse: %w", err)
	}
	return layer, nil
}

// Resolve merges layers, strongest first, over Defaults and validates the
// result.
func Resolve(layers ...Layer) (Config, error) {
	merged := MergeLayers(append(append([]Layer(nil), layers...), Defaults())...)
	cfg := Config{
		Service: Service{
			BaseURL:   deref(merged.Service.BaseURL),
			Timeout:   deref(merged.Service.Timeout),
			RateLimit: deref(merged.Service.RateLimit),
			Burst:     deref(merged.Service.Burst),
		},
		Server: Server{
			Addr:     deref(merged.Server.Addr),
			BasePath: deref(merged.Server.BasePath),
		},
		Catalog: Catalog{
			Driver: deref(merged.Catalog.Driver),
			DSN:    deref(merged.Catalog.DSN),
			Seed:   deref(merged.Catalog.Seed),
		},
		Log: Log{
			Level:  strings.ToLower(deref(merged.Log.Level)),
			Format: strings.ToLower(deref(merged.Log.Format)),
		},
		Rules: Rules{
			Evaluator:     strings.ToLower(deref(merged.Rules.Evaluator)),
			CacheSize:     deref(merged.Rules.CacheSize),
			Preconditions: merged.Rules.Preconditions,
		},
		Presets: Presets{
			Dir:   deref(merged.Presets.Dir),
			Owner: deref(merged.Presets.Owner),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Validate reports every invalid value at once.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Service.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("service.base_url %q must be an absolute URL", c.Service.BaseURL))
	}
	if c.Service.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("service.timeout must be positive"))
	}
	if c.Service.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("service.rate_limit must not be negative"))
	}
	if c.Service.Burst < 1 {
		errs = append(errs, fmt.Errorf("service.burst must be at least 1"))
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}
	switch c.Catalog.Driver {
	case "sqlite", "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("catalog.driver %q must be sqlite or postgres", c.Catalog.Driver))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not a known level", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	switch c.Rules.Evaluator {
	case EvaluatorExpr, EvaluatorCEL, EvaluatorJS:
	default:
		errs = append(errs, fmt.Errorf("rules.evaluator %q must be expr, cel or js", c.Rules.Evaluator))
	}
	if c.Rules.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("rules.cache_size must not be negative"))
	}
	if strings.TrimSpace(c.Presets.Dir) == "" {
		errs = append(errs, fmt.Errorf("presets.dir is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}
