package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/pkg/dataservice"
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := OpenMemory(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	seed, err := LoadSeed(filepath.Join("..", "..", "testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if err := store.Apply(ctx, seed); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return store
}

func TestOptionQueries(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	institutions, err := store.Institutions(ctx)
	if err != nil {
		t.Fatalf("institutions: %v", err)
	}
	wantInstitutions := []dataservice.Institution{{ID: "1", Name: "Acme U"}, {ID: "2", Name: "Beta College"}}
	if diff := cmp.Diff(wantInstitutions, institutions); diff != "" {
		t.Fatalf("institutions mismatch (-want +got):\n%s", diff)
	}

	codes, err := store.CourseCodes(ctx, "1")
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	if diff := cmp.Diff([]string{"CS101", "CS102"}, codes); diff != "" {
		t.Fatalf("codes mismatch (-want +got):\n%s", diff)
	}

	titles, err := store.CourseTitles(ctx, "1")
	if err != nil {
		t.Fatalf("titles: %v", err)
	}
	if diff := cmp.Diff([]string{"Data Structures", "Intro to CS"}, titles); diff != "" {
		t.Fatalf("titles mismatch (-want +got):\n%s", diff)
	}

	title, err := store.CourseTitle(ctx, "1", "CS101")
	if err != nil || title != "Intro to CS" {
		t.Fatalf("course title = %q, %v", title, err)
	}
	if _, err := store.CourseTitle(ctx, "1", "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	allTerms, err := store.Terms(ctx, "1", "")
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	if diff := cmp.Diff([]string{"Fall2024", "Winter2025"}, allTerms); diff != "" {
		t.Fatalf("terms mismatch (-want +got):\n%s", diff)
	}
	codeTerms, err := store.Terms(ctx, "1", "CS101")
	if err != nil {
		t.Fatalf("terms by code: %v", err)
	}
	if diff := cmp.Diff([]string{"Fall2024"}, codeTerms); diff != "" {
		t.Fatalf("terms by code mismatch (-want +got):\n%s", diff)
	}

	empty, err := store.CourseCodes(ctx, "99")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v, %v", empty, err)
	}
	if _, err := store.CourseCodes(ctx, "acme"); err == nil {
		t.Fatalf("expected error for non-numeric institution id")
	}
}

func TestSearchFilters(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		query cascade.SearchQuery
		want  []string
	}{
		{"empty matches everything", cascade.SearchQuery{}, []string{"10", "11", "12", "20"}},
		{"institution name", cascade.SearchQuery{InstitutionName: "Beta College"}, []string{"20"}},
		{"code and term", cascade.SearchQuery{InstitutionName: "Acme U", CourseCode: "CS102", Term: "Winter2025"}, []string{"12"}},
		{"title", cascade.SearchQuery{CourseTitle: "Intro to CS"}, []string{"10"}},
		{"schedule substring", cascade.SearchQuery{Schedule: "AM"}, []string{"10", "12", "20"}},
		{"delivery method", cascade.SearchQuery{DeliveryMethod: "Online"}, []string{"11", "20"}},
		{"no match", cascade.SearchQuery{CourseCode: "ZZ999"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := store.Search(ctx, tc.query)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			ids := make([]string, 0, len(results))
			for _, result := range results {
				ids = append(ids, result.CourseID)
			}
			if diff := cmp.Diff(tc.want, ids); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCourseDetail(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	detail, err := store.CourseDetail(ctx, "10")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	want := dataservice.CourseDetail{
		CourseID:                "10",
		InstitutionID:           "1",
		InstitutionName:         "Acme U",
		Title:                   "Intro to CS",
		Code:                    "CS101",
		Term:                    "Fall2024",
		Outline:                 "Programming fundamentals.",
		Schedule:                "Mon/Wed AM",
		PreferredQualifications: "MSc Computer Science",
		DeliveryMethod:          "In-Person",
		Compensation:            5200,
	}
	if diff := cmp.Diff(want, detail); diff != "" {
		t.Fatalf("detail mismatch (-want +got):\n%s", diff)
	}
	if _, err := store.CourseDetail(ctx, "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyReplacesInstitution(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	err := store.Apply(ctx, Seed{Institutions: []SeedInstitution{{
		ID:   2,
		Name: "Beta Polytechnic",
		Courses: []SeedCourse{{
			ID: 21, Code: "ENG100", Title: "Statics", Term: "Fall2024",
		}},
	}}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	codes, err := store.CourseCodes(ctx, "2")
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	if diff := cmp.Diff([]string{"ENG100"}, codes); diff != "" {
		t.Fatalf("codes mismatch (-want +got):\n%s", diff)
	}
	results, err := store.Search(ctx, cascade.SearchQuery{InstitutionName: "Beta Polytechnic"})
	if err != nil || len(results) != 1 {
		t.Fatalf("search after replace: %v, %v", results, err)
	}
}

func TestParseSeedRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "institutions:\n  - id: 1\n    name: A\n    campus: north\n",
		"duplicate id":   "institutions:\n  - id: 1\n    name: A\n  - id: 1\n    name: B\n",
		"missing name":   "institutions:\n  - id: 1\n",
		"missing column": "institutions:\n  - id: 1\n    name: A\n    courses:\n      - id: 5\n        code: X\n",
	}
	for name, doc := range cases {
		if _, err := ParseSeed([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRebindForPostgres(t *testing.T) {
	s := &Store{driver: DriverPostgres}
	got := s.rebind("SELECT a FROM t WHERE x = ? AND y = ?")
	if got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Fatalf("unexpected rebind %q", got)
	}
	if sqlite := (&Store{driver: DriverSQLite}).rebind("x = ?"); sqlite != "x = ?" {
		t.Fatalf("sqlite should keep placeholders, got %q", sqlite)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
	if _, err := Open(context.Background(), "postgres", ""); err == nil {
		t.Fatalf("expected error for empty postgres dsn")
	}
}
