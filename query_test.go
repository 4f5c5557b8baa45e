package cascade

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildQueryUsesInstitutionLabel(t *testing.T) {
	snapshot := NewSnapshot(
		Field{Name: FieldInstitution, Selected: "acme", Options: []OptionEntry{LabeledEntry("acme", "Acme U")}},
		Field{Name: FieldCourseCode, Selected: "CS101", Options: []OptionEntry{Entry("CS101")}},
		Field{Name: FieldSchedule, Selected: "AM", Options: DefaultScheduleOptions()},
	)
	want := SearchQuery{InstitutionName: "Acme U", CourseCode: "CS101", Schedule: "AM"}
	if diff := cmp.Diff(want, BuildQuery(snapshot)); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildQueryFromEmptySnapshot(t *testing.T) {
	query := BuildQuery(NewSnapshot())
	if !query.Empty() {
		t.Fatalf("expected empty query, got %+v", query)
	}
	values := query.Values()
	if len(values) != len(QueryKeys) {
		t.Fatalf("expected all %d keys even when empty, got %v", len(QueryKeys), values)
	}
	for _, key := range QueryKeys {
		if _, ok := values[key]; !ok {
			t.Fatalf("missing key %q", key)
		}
	}
}

func TestQueryFromValuesIgnoresUnknownKeys(t *testing.T) {
	values := url.Values{
		KeyInstitutionName: {"Beta College"},
		KeyTerm:            {"Winter2025"},
		"page":             {"2"},
	}
	want := SearchQuery{InstitutionName: "Beta College", Term: "Winter2025"}
	if diff := cmp.Diff(want, QueryFromValues(values)); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotSelections(t *testing.T) {
	snapshot := NewSnapshot(Field{Name: FieldTerm, Selected: "Fall2024"})
	selections := snapshot.Selections()
	if len(selections) != len(Fields) || selections["term"] != "Fall2024" || selections["institution"] != "" {
		t.Fatalf("unexpected selections %v", selections)
	}
	if got := snapshot.Field(FieldCourseCode); got.Name != FieldCourseCode || got.Selected != "" {
		t.Fatalf("missing fields should read as empty, got %+v", got)
	}
}

func TestScopeKeyAndLevel(t *testing.T) {
	scope := NewScope(FieldTerm, map[FieldName]string{
		FieldCourseCode:  "CS101",
		FieldInstitution: "acme",
		FieldSchedule:    " ",
	})
	if scope.Key() != "term?courseCode=CS101&institution=acme" {
		t.Fatalf("unexpected key %q", scope.Key())
	}
	if scope.Level() != LevelCourseCode || scope.InstitutionID() != "acme" || scope.CourseCode() != "CS101" {
		t.Fatalf("unexpected scope accessors %+v", scope)
	}
	if _, ok := scope.Context[FieldSchedule]; ok {
		t.Fatalf("blank values must be dropped")
	}
	binding := scope.Binding()
	if binding["level"] != "courseCode" || binding["field"] != "term" {
		t.Fatalf("unexpected binding %v", binding)
	}
	root := NewScope(FieldInstitution, nil)
	if root.Level() != LevelRoot || root.Binding()["institution"] != "" {
		t.Fatalf("root scope should bind empty upstream values, got %v", root.Binding())
	}
}
