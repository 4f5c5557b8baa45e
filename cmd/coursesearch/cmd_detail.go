package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-cascade/pkg/dataservice"
)

func newDetailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detail [course-id]",
		Short: "Show the full record behind a result row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			detail, err := client.CourseDetail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDetail(detail))
			return nil
		},
	}
}

func renderDetail(d dataservice.CourseDetail) string {
	label := lipgloss.NewStyle().Bold(true).Width(26)
	rows := [][2]string{
		{"Course", d.Code + " " + d.Title},
		{"Institution", d.InstitutionName},
		{"Term", d.Term},
		{"Schedule", d.Schedule},
		{"Delivery Method", d.DeliveryMethod},
		{"Preferred Qualifications", d.PreferredQualifications},
		{"Compensation", strconv.FormatFloat(d.Compensation, 'f', 2, 64)},
		{"Outline", d.Outline},
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, label.Render(row[0]), row[1]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
