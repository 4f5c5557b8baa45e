package cascade

// Results table headers. The first column holds the selection control and
// the last the details action.
var ResultHeaders = []string{
	"",
	"Course Code",
	"Course Title",
	"Institution",
	"Term",
	"Schedule",
	"Delivery Method",
	"",
}

const (
	// NoResultsText is shown in the single informational row of an empty
	// result set.
	NoResultsText = "No results found"
	// ViewDetailsText labels the per-row details action.
	ViewDetailsText = "View Details"
)

// Control is an interactive element of a result row, keyed by course id.
type Control struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// Row is one display-ready line of the results table. Informational rows
// carry Message and Span instead of cells and controls.
type Row struct {
	CourseID string   `json:"courseId,omitempty"`
	Cells    []string `json:"cells,omitempty"`
	Select   *Control `json:"select,omitempty"`
	Details  *Control `json:"details,omitempty"`
	Message  string   `json:"message,omitempty"`
	Span     int      `json:"span,omitempty"`
}

// Informational reports whether the row is a message row.
func (r Row) Informational() bool {
	return r.Message != ""
}

// Render turns results into rows, preserving input order. An empty result
// set yields exactly one informational row spanning every column.
func Render(results []CourseResult) []Row {
	if len(results) == 0 {
		return []Row{{Message: NoResultsText, Span: len(ResultHeaders)}}
	}
	rows := make([]Row, 0, len(results))
	for _, result := range results {
		rows = append(rows, Row{
			CourseID: result.CourseID,
			Cells: []string{
				result.Code,
				result.Title,
				result.InstitutionName,
				result.Term,
				result.Schedule,
				result.DeliveryMethod,
			},
			Select:  &Control{Name: "selectedCourses", Value: result.CourseID},
			Details: &Control{Name: "view-details", Value: result.CourseID, Label: ViewDetailsText},
		})
	}
	return rows
}

// ResultsView is the controller-owned render target for the results table.
type ResultsView struct {
	Rows     []Row          `json:"rows"`
	Results  []CourseResult `json:"results,omitempty"`
	Query    SearchQuery    `json:"query"`
	Notice   string         `json:"notice,omitempty"`
	Count    int            `json:"count"`
	Searched bool           `json:"searched"`
	Pending  bool           `json:"pending"`
}

func (v ResultsView) clone() ResultsView {
	out := v
	out.Rows = make([]Row, len(v.Rows))
	for i, row := range v.Rows {
		row.Cells = append([]string(nil), row.Cells...)
		if row.Select != nil {
			sel := *row.Select
			row.Select = &sel
		}
		if row.Details != nil {
			details := *row.Details
			row.Details = &details
		}
		out.Rows[i] = row
	}
	out.Results = append([]CourseResult(nil), v.Results...)
	return out
}
