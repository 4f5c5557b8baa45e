package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/internal/catalog"
	"github.com/goliatone/go-cascade/internal/catalogserver"
	"github.com/goliatone/go-cascade/internal/config"
	"github.com/goliatone/go-cascade/pkg/dataservice"
)

func startCatalog(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	store, err := catalog.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	seed, err := catalog.LoadSeed(filepath.Join("..", "..", "testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if err := store.Apply(ctx, seed); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	srv, err := catalogserver.New(store, catalogserver.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return httpSrv.URL + "/api"
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestSearchCommandEndToEnd(t *testing.T) {
	base := startCatalog(t)

	out, err := execute(t, "search", "--base-url", base,
		"--institution", "Acme U", "--code", "CS101", "--json")
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	var view cascade.ResultsView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode view: %v\n%s", err, out)
	}
	if view.Count != 1 || len(view.Rows) != 1 {
		t.Fatalf("expected one result, got %+v", view)
	}
	row := view.Rows[0]
	if row.CourseID != "10" {
		t.Fatalf("expected course 10, got %q", row.CourseID)
	}
	want := []string{"CS101", "Intro to CS", "Acme U", "Fall2024", "Mon/Wed AM", "In-Person"}
	if strings.Join(row.Cells, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected cells %v", row.Cells)
	}
	if view.Query.CourseTitle != "Intro to CS" || view.Query.Term != "Fall2024" {
		t.Fatalf("auto-selected title and term missing from query: %+v", view.Query)
	}
}

func TestSearchCommandRendersTable(t *testing.T) {
	base := startCatalog(t)

	out, err := execute(t, "search", "--base-url", base, "--institution", "2")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, want := range []string{"Course Code", "BUS200", "Accounting Basics", "View Details", `institutionName="Beta College"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSearchCommandRejectsUnknownOption(t *testing.T) {
	base := startCatalog(t)

	_, err := execute(t, "search", "--base-url", base, "--institution", "Acme U", "--code", "MATH999")
	if err == nil {
		t.Fatal("expected error for unknown course code")
	}
	if !strings.Contains(err.Error(), "CS101") {
		t.Fatalf("expected choices in error, got %v", err)
	}
}

func TestSearchCommandReportsUnreachableService(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	if _, err := execute(t, "search", "--base-url", url, "--timeout", "1s"); err == nil {
		t.Fatal("expected error when the data service is down")
	}
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema", "--server", "http://example.test", "--api-version", "2.1.0")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if info, _ := doc["info"].(map[string]any); info["version"] != "2.1.0" || info["title"] != "Course Search Data Service" {
		t.Fatalf("unexpected info %v", doc["info"])
	}
	paths, _ := doc["paths"].(map[string]any)
	for _, path := range []string{"/api/getSearchOptions", "/api/searchCourse", "/api/getCourseDetail"} {
		if _, ok := paths[path]; !ok {
			t.Fatalf("schema missing %s: %v", path, paths)
		}
	}
}

func TestDetailCommand(t *testing.T) {
	base := startCatalog(t)

	out, err := execute(t, "detail", "--base-url", base, "20")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	for _, want := range []string{"BUS200", "Beta College", "CPA"} {
		if !strings.Contains(out, want) {
			t.Fatalf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestRuleOptions(t *testing.T) {
	client, err := dataservice.NewClient("http://127.0.0.1:1/api")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	for _, engine := range []string{"", config.EvaluatorExpr, config.EvaluatorCEL} {
		opts, err := ruleOptions(config.Rules{Evaluator: engine, CacheSize: 8})
		if err != nil {
			t.Fatalf("engine %q: %v", engine, err)
		}
		if _, err := cascade.New(client, client, opts...); err != nil {
			t.Fatalf("engine %q: new controller: %v", engine, err)
		}
	}

	opts, err := ruleOptions(config.Rules{Evaluator: "lua", CacheSize: 8})
	if err != nil {
		t.Fatalf("rule options: %v", err)
	}
	if _, err := cascade.New(client, client, opts...); !errors.Is(err, cascade.ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}

	_, err = ruleOptions(config.Rules{CacheSize: 8, Preconditions: map[string]map[string][]string{
		"term": {"campus": {"true"}},
	}})
	if !errors.Is(err, cascade.ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
}

func TestCodeNumber(t *testing.T) {
	cases := map[string]int{"CS101": 101, "bio 110a": 110, "ARCHIVE": 0, "": 0}
	for code, want := range cases {
		got, err := codeNumber(code)
		if err != nil {
			t.Fatalf("codeNumber(%q): %v", code, err)
		}
		if got != want {
			t.Fatalf("codeNumber(%q): want %d, got %v", code, want, got)
		}
	}
	if _, err := codeNumber(); err == nil {
		t.Fatal("expected arity error")
	}
}

func TestSearchHonoursCourseCodePreconditions(t *testing.T) {
	base := startCatalog(t)
	path := filepath.Join(t.TempDir(), "coursesearch.yaml")
	rules := "rules:\n  preconditions:\n    term:\n      courseCode:\n        - codeNumber(courseCode) < 102\n"
	if err := os.WriteFile(path, []byte(rules), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	search := func(code string) cascade.ResultsView {
		t.Helper()
		out, err := execute(t, "search", "--config", path, "--base-url", base,
			"--institution", "Acme U", "--code", code, "--json")
		if err != nil {
			t.Fatalf("search %s: %v", code, err)
		}
		var view cascade.ResultsView
		if err := json.Unmarshal([]byte(out), &view); err != nil {
			t.Fatalf("decode view: %v\n%s", err, out)
		}
		return view
	}

	allowed := search("CS101")
	if allowed.Query.Term != "Fall2024" || allowed.Count != 1 {
		t.Fatalf("CS101 should resolve and auto-select its term, got %+v", allowed.Query)
	}

	gated := search("CS102")
	if gated.Query.Term != "" || gated.Query.CourseTitle != "Data Structures" {
		t.Fatalf("CS102 terms should be skipped, got %+v", gated.Query)
	}
	if gated.Count != 2 {
		t.Fatalf("expected both CS102 offerings, got %d", gated.Count)
	}
}

func TestRenderTableEmpty(t *testing.T) {
	out := renderTable(cascade.Render(nil))
	if !strings.Contains(out, cascade.NoResultsText) {
		t.Fatalf("expected no-results message, got:\n%s", out)
	}
}

func TestSearchPresetsRoundTrip(t *testing.T) {
	base := startCatalog(t)
	dir := t.TempDir()

	if _, err := execute(t, "search", "--base-url", base, "--presets-dir", dir,
		"--institution", "Acme U", "--code", "CS102", "--term", "Winter2025", "--save", "winter-ds"); err != nil {
		t.Fatalf("search --save: %v", err)
	}

	out, err := execute(t, "search", "--base-url", base, "--presets-dir", dir, "--preset", "winter-ds", "--json")
	if err != nil {
		t.Fatalf("search --preset: %v", err)
	}
	var view cascade.ResultsView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode view: %v\n%s", err, out)
	}
	if view.Count != 1 || view.Rows[0].CourseID != "12" {
		t.Fatalf("expected course 12 from preset, got %+v", view.Rows)
	}

	list, err := execute(t, "presets", "--presets-dir", dir)
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	for _, want := range []string{"winter-ds", "Acme U", "CS102", "Winter2025"} {
		if !strings.Contains(list, want) {
			t.Fatalf("preset listing missing %q:\n%s", want, list)
		}
	}
}

func TestSearchPresetMissing(t *testing.T) {
	_, err := execute(t, "search", "--presets-dir", t.TempDir(), "--preset", "nope")
	if err == nil || !strings.Contains(err.Error(), `preset "nope" not found`) {
		t.Fatalf("expected missing preset error, got %v", err)
	}
}

func TestPresetsCommandEmpty(t *testing.T) {
	out, err := execute(t, "presets", "--presets-dir", t.TempDir())
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	if !strings.Contains(out, "no saved searches") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSearchCommandPrintsFields(t *testing.T) {
	base := startCatalog(t)

	out, err := execute(t, "search", "--base-url", base, "--institution", "Acme U", "--fields")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, want := range []string{"Depends On", "cascading", "static", `institution != ""`, "Acme U"} {
		if !strings.Contains(out, want) {
			t.Fatalf("fields output missing %q:\n%s", want, out)
		}
	}
}
