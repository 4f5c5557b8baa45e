package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	cascade "github.com/goliatone/go-cascade"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
)

// renderTable draws result rows. The select column shows the course id and
// the last column the details action. An informational row is printed as a
// message under the headers.
func renderTable(rows []cascade.Row) string {
	headers := append([]string(nil), cascade.ResultHeaders...)
	headers[0] = "ID"

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	var messages []string
	for _, row := range rows {
		if row.Informational() {
			messages = append(messages, row.Message)
			continue
		}
		cells := make([]string, 0, len(headers))
		cells = append(cells, row.Select.Value)
		cells = append(cells, row.Cells...)
		cells = append(cells, row.Details.Label)
		t.Row(cells...)
	}

	out := t.Render()
	if len(messages) > 0 {
		out += "\n" + noticeStyle.Render(strings.Join(messages, "\n"))
	}
	return out
}

func describeQuery(q cascade.SearchQuery) string {
	parts := make([]string, 0, len(cascade.QueryKeys))
	values := q.Map()
	for _, key := range cascade.QueryKeys {
		if value := values[key]; value != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", key, value))
		}
	}
	if len(parts) == 0 {
		return noticeStyle.Render("search: all courses")
	}
	return noticeStyle.Render("search: " + strings.Join(parts, " "))
}

// renderFields draws one line per form field with its dependencies, the
// rules gating it and its current selection.
func renderFields(descriptors []cascade.FieldDescriptor) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Field", "Kind", "Depends On", "Status", "Selected", "Choices", "Rules").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, desc := range descriptors {
		selected := desc.Display
		if selected == "" {
			selected = desc.Selected
		}
		t.Row(
			desc.Label,
			desc.Kind,
			strings.Join(desc.DependsOn, ", "),
			desc.Status.String(),
			selected,
			fmt.Sprint(desc.Choices),
			strings.Join(desc.Rules, "\n"),
		)
	}
	return t.Render()
}
