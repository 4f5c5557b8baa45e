package cascade

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestDescribeInitialForm(t *testing.T) {
	got := Describe(Dependencies, NewSnapshot())

	want := []FieldDescriptor{
		{Field: FieldInstitution, Label: "Institution", Kind: KindRoot, Level: "root"},
		{Field: FieldCourseCode, Label: "Course Code", Kind: KindCascading, DependsOn: []string{"institution"}, Level: "root"},
		{Field: FieldCourseTitle, Label: "Course Title", Kind: KindCascading, DependsOn: []string{"institution", "courseCode"}, Level: "root"},
		{Field: FieldTerm, Label: "Term", Kind: KindCascading, DependsOn: []string{"institution", "courseCode"}, Level: "root"},
		{Field: FieldSchedule, Label: "Schedule", Kind: KindStatic},
		{Field: FieldDeliveryMethod, Label: "Delivery Method", Kind: KindStatic},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestControllerDescribeTracksSelections(t *testing.T) {
	resolver := newFakeResolver()
	ctl := newTestController(t, resolver, nil,
		WithPrecondition(FieldTerm, LevelCourseCode, `courseCode != "MATH999"`))
	selectInstitution(t, ctl, "acme")
	if err := ctl.OnCourseCodeChange(context.Background(), "CS102"); err != nil {
		t.Fatalf("course code change: %v", err)
	}
	ctl.Wait()

	byField := map[FieldName]FieldDescriptor{}
	for _, desc := range ctl.Describe() {
		byField[desc.Field] = desc
	}

	institution := byField[FieldInstitution]
	if institution.Selected != "acme" || institution.Display != "Acme U" || institution.Choices != 2 {
		t.Fatalf("unexpected institution descriptor %+v", institution)
	}

	term := byField[FieldTerm]
	want := FieldDescriptor{
		Field:     FieldTerm,
		Label:     "Term",
		Kind:      KindCascading,
		DependsOn: []string{"institution", "courseCode"},
		Level:     "courseCode",
		Rules:     []string{`institution != "" && courseCode != ""`, `courseCode != "MATH999"`},
		Status:    StatusReady,
		Choices:   2,
	}
	if diff := cmp.Diff(want, term); diff != "" {
		t.Fatalf("term descriptor mismatch (-want +got):\n%s", diff)
	}

	code := byField[FieldCourseCode]
	if diff := cmp.Diff([]string{`institution != ""`}, code.Rules); diff != "" {
		t.Fatalf("course code rules mismatch (-want +got):\n%s", diff)
	}

	schedule := byField[FieldSchedule]
	if diff := cmp.Diff(FieldDescriptor{Field: FieldSchedule, Label: "Schedule", Kind: KindStatic, Status: StatusReady, Choices: 2}, schedule, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("schedule descriptor mismatch (-want +got):\n%s", diff)
	}
}
