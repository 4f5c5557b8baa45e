package dataservice

import (
	"errors"
	"fmt"

	cascade "github.com/goliatone/go-cascade"
)

// Endpoint paths relative to the service base URL.
const (
	PathSearchOptions = "getSearchOptions"
	PathSearchCourse  = "searchCourse"
	PathCourseDetail  = "getCourseDetail"
)

// Option list types accepted by getSearchOptions.
const (
	TypeInstitutions = "institutions"
	TypeCourseCodes  = "courseCodes"
	TypeCourseTitles = "courseTitles"
	TypeCourseTitle  = "courseTitle"
	TypeTerms        = "terms"
)

// ErrUnsupportedScope indicates a scope the service has no option list for.
var ErrUnsupportedScope = errors.New("dataservice: unsupported scope")

// Institution is one entry of the institutions option list.
type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CourseDetail is the full course record returned for the details action.
type CourseDetail struct {
	CourseID                string  `json:"courseId"`
	InstitutionID           string  `json:"institutionId"`
	InstitutionName         string  `json:"institutionName"`
	Title                   string  `json:"title"`
	Code                    string  `json:"code"`
	Term                    string  `json:"term"`
	Outline                 string  `json:"outline"`
	Schedule                string  `json:"schedule"`
	PreferredQualifications string  `json:"preferredQualifications"`
	DeliveryMethod          string  `json:"deliveryMethod"`
	Compensation            float64 `json:"compensation"`
}

// Result projects the detail onto the search result shape.
func (d CourseDetail) Result() cascade.CourseResult {
	return cascade.CourseResult{
		CourseID:        d.CourseID,
		Code:            d.Code,
		Title:           d.Title,
		InstitutionName: d.InstitutionName,
		Term:            d.Term,
		Schedule:        d.Schedule,
		DeliveryMethod:  d.DeliveryMethod,
	}
}

// OptionType maps a scope onto the getSearchOptions type parameter. Course
// titles keyed by a course code use the singular courseTitle lookup.
func OptionType(scope cascade.Scope) (string, error) {
	switch scope.Field {
	case cascade.FieldInstitution:
		return TypeInstitutions, nil
	case cascade.FieldCourseCode:
		return TypeCourseCodes, nil
	case cascade.FieldCourseTitle:
		if scope.Level() == cascade.LevelCourseCode {
			return TypeCourseTitle, nil
		}
		return TypeCourseTitles, nil
	case cascade.FieldTerm:
		return TypeTerms, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScope, scope.Field)
	}
}
