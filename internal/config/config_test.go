package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := Config{
		Service: Service{BaseURL: "http://localhost:8080/api", Timeout: 10 * time.Second, RateLimit: 20, Burst: 5},
		Server:  Server{Addr: ":8080", BasePath: "/api"},
		Catalog: Catalog{Driver: "sqlite", DSN: "catalog.db"},
		Log:     Log{Level: "info", Format: "console"},
		Rules:   Rules{Evaluator: EvaluatorExpr, CacheSize: 128},
		Presets: Presets{Dir: ".coursesearch/presets", Owner: "local"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvePrecedence(t *testing.T) {
	file, err := LoadFile(filepath.Join("..", "..", "testdata", "coursesearch.yaml"), false)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	env, err := FromLookup(mapLookup(map[string]string{
		"COURSESEARCH_TIMEOUT":   "7s",
		"COURSESEARCH_LOG_LEVEL": "warn",
		"COURSESEARCH_ADDR":      "  ",
	}))
	if err != nil {
		t.Fatalf("env: %v", err)
	}
	flags := Layer{Log: LogLayer{Format: ptr("json")}}

	cfg, err := Resolve(flags, env, file)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Service.BaseURL != "http://catalog.internal:9090/api" {
		t.Fatalf("file should set base url, got %q", cfg.Service.BaseURL)
	}
	if cfg.Service.Timeout != 7*time.Second {
		t.Fatalf("env should override file timeout, got %s", cfg.Service.Timeout)
	}
	if cfg.Service.RateLimit != 5 || cfg.Service.Burst != 5 {
		t.Fatalf("unexpected rate settings %+v", cfg.Service)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log settings %+v", cfg.Log)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("blank env values must be ignored, got %q", cfg.Server.Addr)
	}
	if cfg.Rules.Evaluator != EvaluatorCEL || len(cfg.Rules.Preconditions["term"]["courseCode"]) != 1 {
		t.Fatalf("unexpected rules %+v", cfg.Rules)
	}
}

func TestLoadFileOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	layer, err := LoadFile(missing, true)
	if err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if diff := cmp.Diff(Layer{}, layer); diff != "" {
		t.Fatalf("expected empty layer (-want +got):\n%s", diff)
	}
	if _, err := LoadFile(missing, false); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("service:\n  base_uri: http://x\n")); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	_, err := Resolve(Layer{
		Service: ServiceLayer{BaseURL: ptr("not a url"), Burst: ptr(0)},
		Log:     LogLayer{Level: ptr("loud")},
		Rules:   RulesLayer{Evaluator: ptr("lua")},
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, fragment := range []string{"service.base_url", "service.burst", "log.level", "rules.evaluator"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in %q", fragment, msg)
		}
	}
}

func TestFromLookupRejectsBadNumbers(t *testing.T) {
	cases := map[string]string{
		"COURSESEARCH_TIMEOUT":    "soon",
		"COURSESEARCH_RATE_LIMIT": "fast",
		"COURSESEARCH_BURST":      "many",
	}
	for key, value := range cases {
		if _, err := FromLookup(mapLookup(map[string]string{key: value})); err == nil {
			t.Fatalf("%s=%s: expected error", key, value)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
