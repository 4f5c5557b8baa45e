package cascade

import (
	"encoding/json"
	"fmt"
)

// FieldName identifies one of the search form fields. The set is closed; use
// ParseFieldName to convert wire keys.
type FieldName int

const (
	// FieldUnknown guards against misconfiguration so call sites can detect
	// unrecognised names.
	FieldUnknown FieldName = iota
	FieldInstitution
	FieldCourseCode
	FieldCourseTitle
	FieldTerm
	FieldSchedule
	FieldDeliveryMethod
)

// Fields lists every known field in form order.
var Fields = []FieldName{
	FieldInstitution,
	FieldCourseCode,
	FieldCourseTitle,
	FieldTerm,
	FieldSchedule,
	FieldDeliveryMethod,
}

func (f FieldName) String() string {
	switch f {
	case FieldInstitution:
		return "institution"
	case FieldCourseCode:
		return "courseCode"
	case FieldCourseTitle:
		return "courseTitle"
	case FieldTerm:
		return "term"
	case FieldSchedule:
		return "schedule"
	case FieldDeliveryMethod:
		return "deliveryMethod"
	default:
		return "unknown"
	}
}

// Label returns the human readable field name.
func (f FieldName) Label() string {
	switch f {
	case FieldInstitution:
		return "Institution"
	case FieldCourseCode:
		return "Course Code"
	case FieldCourseTitle:
		return "Course Title"
	case FieldTerm:
		return "Term"
	case FieldSchedule:
		return "Schedule"
	case FieldDeliveryMethod:
		return "Delivery Method"
	default:
		return "Unknown"
	}
}

// Valid reports whether f is part of the closed field set.
func (f FieldName) Valid() bool {
	return f >= FieldInstitution && f <= FieldDeliveryMethod
}

// Static reports whether the field is populated from a fixed enumeration.
func (f FieldName) Static() bool {
	return f == FieldSchedule || f == FieldDeliveryMethod
}

// Cascading reports whether edits to the field propagate to dependents.
func (f FieldName) Cascading() bool {
	return len(Dependencies.Dependents(f)) > 0
}

// ParseFieldName converts a wire key into a FieldName. Returns FieldUnknown
// for unrecognised values.
func ParseFieldName(value string) FieldName {
	switch value {
	case "institution", "institutionId":
		return FieldInstitution
	case "courseCode":
		return FieldCourseCode
	case "courseTitle":
		return FieldCourseTitle
	case "term":
		return FieldTerm
	case "schedule":
		return FieldSchedule
	case "deliveryMethod":
		return FieldDeliveryMethod
	default:
		return FieldUnknown
	}
}

func (f FieldName) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownField, int(f))
	}
	return []byte(f.String()), nil
}

func (f *FieldName) UnmarshalText(text []byte) error {
	parsed := ParseFieldName(string(text))
	if parsed == FieldUnknown {
		return fmt.Errorf("%w: %q", ErrUnknownField, string(text))
	}
	*f = parsed
	return nil
}

// Status tracks the resolution lifecycle of a field.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// OptionEntry is one selectable (or sentinel) choice of a field. For scalar
// fields Value and Label are equal.
type OptionEntry struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Sentinel bool   `json:"sentinel,omitempty"`
}

// Entry builds a scalar option entry.
func Entry(value string) OptionEntry {
	return OptionEntry{Value: value, Label: value}
}

// LabeledEntry builds an id-backed option entry.
func LabeledEntry(value, label string) OptionEntry {
	return OptionEntry{Value: value, Label: label}
}

// SentinelEntry builds the non-selectable entry that stands for "no selection".
func SentinelEntry(label string) OptionEntry {
	return OptionEntry{Value: "", Label: label, Sentinel: true}
}

// Field is a point-in-time view of one form field.
type Field struct {
	Name     FieldName     `json:"name"`
	Selected string        `json:"selected"`
	Options  []OptionEntry `json:"options"`
	Status   Status        `json:"status"`
	Seq      uint64        `json:"seq"`
	Err      error         `json:"-"`
}

// Has reports whether value is a selectable entry of the field.
func (f Field) Has(value string) bool {
	for _, option := range f.Options {
		if option.Sentinel {
			continue
		}
		if option.Value == value {
			return true
		}
	}
	return false
}

// SelectedLabel returns the label of the current selection, or "" when
// nothing is selected.
func (f Field) SelectedLabel() string {
	if f.Selected == "" {
		return ""
	}
	for _, option := range f.Options {
		if !option.Sentinel && option.Value == f.Selected {
			return option.Label
		}
	}
	return ""
}

// Choices returns the selectable entries, skipping sentinels.
func (f Field) Choices() []OptionEntry {
	out := make([]OptionEntry, 0, len(f.Options))
	for _, option := range f.Options {
		if !option.Sentinel {
			out = append(out, option)
		}
	}
	return out
}

func (f Field) clone() Field {
	out := f
	out.Options = cloneOptions(f.Options)
	return out
}

func cloneOptions(options []OptionEntry) []OptionEntry {
	if options == nil {
		return nil
	}
	return append([]OptionEntry(nil), options...)
}

const (
	placeholderInstitutionFirst = "Please select an institution first"
	placeholderNoTerms          = "No terms available"
)

func promptLabel(field FieldName) string {
	return "Select " + field.Label()
}

func failureLabel(field FieldName) string {
	return "Unable to load " + field.Label()
}

// withPrompt prepends the field prompt to entries, dropping any sentinel the
// caller passed in.
func withPrompt(field FieldName, entries []OptionEntry) []OptionEntry {
	out := make([]OptionEntry, 0, len(entries)+1)
	out = append(out, SentinelEntry(promptLabel(field)))
	for _, entry := range entries {
		if entry.Sentinel {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// DefaultScheduleOptions mirrors the fixed schedule enumeration.
func DefaultScheduleOptions() []OptionEntry {
	return []OptionEntry{
		LabeledEntry("AM", "Morning (AM)"),
		LabeledEntry("PM", "Afternoon (PM)"),
	}
}

// DefaultDeliveryMethodOptions mirrors the fixed delivery method enumeration.
func DefaultDeliveryMethodOptions() []OptionEntry {
	return []OptionEntry{
		Entry("In-Person"),
		Entry("Online"),
		Entry("Hybrid"),
	}
}
