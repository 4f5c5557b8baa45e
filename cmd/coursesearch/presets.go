package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-cascade/pkg/state"
)

// savedSearch is the persisted form of a search command's selections.
type savedSearch struct {
	Institution    string `yaml:"institution,omitempty"`
	CourseCode     string `yaml:"courseCode,omitempty"`
	CourseTitle    string `yaml:"courseTitle,omitempty"`
	Term           string `yaml:"term,omitempty"`
	Schedule       string `yaml:"schedule,omitempty"`
	DeliveryMethod string `yaml:"deliveryMethod,omitempty"`
}

func (s savedSearch) Validate() error {
	if s == (savedSearch{}) {
		return errors.New("saved search has no selections")
	}
	return nil
}

func savedFromFlags(f *searchFlags) savedSearch {
	return savedSearch{
		Institution:    strings.TrimSpace(f.institution),
		CourseCode:     strings.TrimSpace(f.courseCode),
		CourseTitle:    strings.TrimSpace(f.courseTitle),
		Term:           strings.TrimSpace(f.term),
		Schedule:       strings.TrimSpace(f.schedule),
		DeliveryMethod: strings.TrimSpace(f.deliveryMethod),
	}
}

// applyTo fills the flags the user left empty.
func (s savedSearch) applyTo(f *searchFlags) {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&f.institution, s.Institution)
	fill(&f.courseCode, s.CourseCode)
	fill(&f.courseTitle, s.CourseTitle)
	fill(&f.term, s.Term)
	fill(&f.schedule, s.Schedule)
	fill(&f.deliveryMethod, s.DeliveryMethod)
}

func (a *app) presets() state.Presets[savedSearch] {
	return state.Presets[savedSearch]{Store: state.NewFileStore[savedSearch](a.cfg.Presets.Dir)}
}

func (a *app) presetRef(name string) state.Ref {
	return state.Ref{Owner: a.cfg.Presets.Owner, Name: strings.TrimSpace(name)}
}

func (a *app) loadPreset(ctx context.Context, name string) (savedSearch, error) {
	saved, _, ok, err := a.presets().Get(ctx, a.presetRef(name))
	if err != nil {
		return savedSearch{}, err
	}
	if !ok {
		return savedSearch{}, fmt.Errorf("preset %q not found in %s", name, a.cfg.Presets.Dir)
	}
	return saved, nil
}

func (a *app) savePreset(ctx context.Context, name string, saved savedSearch) (state.Meta, error) {
	return a.presets().Put(ctx, a.presetRef(name), saved, state.Meta{
		Extra: map[string]string{"base_url": a.cfg.Service.BaseURL},
	})
}

func newPresetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List saved searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			refs, err := a.presets().Store.List(ctx, a.cfg.Presets.Owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(refs) == 0 {
				fmt.Fprintf(out, "no saved searches in %s\n", a.cfg.Presets.Dir)
				return nil
			}
			t := table.New().Headers("Name", "Institution", "Course Code", "Term", "Updated")
			for _, ref := range refs {
				saved, meta, _, err := a.presets().Get(ctx, ref)
				if err != nil {
					return err
				}
				t.Row(ref.Name, saved.Institution, saved.CourseCode, saved.Term, meta.UpdatedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
}
