package cascade

import "net/url"

// SearchQuery is the immutable filter set sent to the search service. An
// empty string means no filter on that dimension.
type SearchQuery struct {
	InstitutionName string `json:"institutionName"`
	CourseCode      string `json:"courseCode"`
	CourseTitle     string `json:"courseTitle"`
	Term            string `json:"term"`
	Schedule        string `json:"schedule"`
	DeliveryMethod  string `json:"deliveryMethod"`
}

// Wire keys of the search request body, in form order.
const (
	KeyInstitutionName = "institutionName"
	KeyCourseCode      = "courseCode"
	KeyCourseTitle     = "courseTitle"
	KeyTerm            = "term"
	KeySchedule        = "schedule"
	KeyDeliveryMethod  = "deliveryMethod"
)

// QueryKeys lists the six search keys in form order.
var QueryKeys = []string{
	KeyInstitutionName,
	KeyCourseCode,
	KeyCourseTitle,
	KeyTerm,
	KeySchedule,
	KeyDeliveryMethod,
}

// BuildQuery snapshots the current selections into a SearchQuery. The
// institution contributes its display name rather than its id. No field is
// required; an empty snapshot yields the match-everything query.
func BuildQuery(snapshot Snapshot) SearchQuery {
	return SearchQuery{
		InstitutionName: snapshot.Label(FieldInstitution),
		CourseCode:      snapshot.Value(FieldCourseCode),
		CourseTitle:     snapshot.Value(FieldCourseTitle),
		Term:            snapshot.Value(FieldTerm),
		Schedule:        snapshot.Value(FieldSchedule),
		DeliveryMethod:  snapshot.Value(FieldDeliveryMethod),
	}
}

// Map returns the query keyed by wire names. All six keys are always present.
func (q SearchQuery) Map() map[string]string {
	return map[string]string{
		KeyInstitutionName: q.InstitutionName,
		KeyCourseCode:      q.CourseCode,
		KeyCourseTitle:     q.CourseTitle,
		KeyTerm:            q.Term,
		KeySchedule:        q.Schedule,
		KeyDeliveryMethod:  q.DeliveryMethod,
	}
}

// Values returns the query as a form body. Empty filters are sent as empty
// values rather than omitted.
func (q SearchQuery) Values() url.Values {
	values := make(url.Values, len(QueryKeys))
	for key, value := range q.Map() {
		values.Set(key, value)
	}
	return values
}

// Empty reports whether the query applies no filter.
func (q SearchQuery) Empty() bool {
	return q == SearchQuery{}
}

// QueryFromValues reads a SearchQuery from form values. Unknown keys are
// ignored.
func QueryFromValues(values url.Values) SearchQuery {
	return SearchQuery{
		InstitutionName: values.Get(KeyInstitutionName),
		CourseCode:      values.Get(KeyCourseCode),
		CourseTitle:     values.Get(KeyCourseTitle),
		Term:            values.Get(KeyTerm),
		Schedule:        values.Get(KeySchedule),
		DeliveryMethod:  values.Get(KeyDeliveryMethod),
	}
}
