package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/internal/config"
	"github.com/goliatone/go-cascade/pkg/activity"
	"github.com/goliatone/go-cascade/pkg/dataservice"
	"github.com/goliatone/go-cascade/pkg/zaplog"
)

type searchFlags struct {
	institution    string
	courseCode     string
	courseTitle    string
	term           string
	schedule       string
	deliveryMethod string
	asJSON         bool
	preset         string
	save           string
	fields         bool
}

func newSearchCmd(a *app) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Walk the search form with the given selections and run the search",
		Long: `Loads institutions, applies each selection in form order and submits.

Institutions may be given by name or id. Every value must be one of the
options the data service offers for the current upstream selections.

--preset fills any selection not given on the command line from a saved
search; --save stores the final selections under a name.

Example:
  coursesearch search --institution "Acme U" --code CS101 --term Fall2024 --save fall-cs
  coursesearch search --preset fall-cs --delivery Online`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSearch(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.institution, "institution", "", "institution name or id")
	flags.StringVar(&f.courseCode, "code", "", "course code")
	flags.StringVar(&f.courseTitle, "title", "", "course title")
	flags.StringVar(&f.term, "term", "", "term")
	flags.StringVar(&f.schedule, "schedule", "", "schedule (AM or PM)")
	flags.StringVar(&f.deliveryMethod, "delivery", "", "delivery method")
	flags.BoolVar(&f.asJSON, "json", false, "print the results view as JSON")
	flags.StringVar(&f.preset, "preset", "", "load unset selections from a saved search")
	flags.StringVar(&f.save, "save", "", "save the selections under this name")
	flags.BoolVar(&f.fields, "fields", false, "print the form state before the results")
	return cmd
}

func (a *app) newClient() (*dataservice.Client, error) {
	return dataservice.NewClient(a.cfg.Service.BaseURL,
		dataservice.WithTimeout(a.cfg.Service.Timeout),
		dataservice.WithRateLimit(a.cfg.Service.RateLimit, a.cfg.Service.Burst),
	)
}

func (a *app) newController(client *dataservice.Client) (*cascade.Controller, error) {
	logger := zaplog.New(a.logger)
	rules, err := ruleOptions(a.cfg.Rules)
	if err != nil {
		return nil, err
	}
	opts := append([]cascade.Option{
		cascade.WithLogger(logger),
		cascade.WithEvaluatorLogger(logger),
		cascade.WithActivityHooks(activity.Hooks{logger.ActivityHook()}),
	}, rules...)
	ctl, err := cascade.New(client, client, opts...)
	if errors.Is(err, cascade.ErrEngineUnavailable) {
		return nil, fmt.Errorf("%w: rebuild with -tags js_eval", err)
	}
	return ctl, err
}

// ruleOptions turns the rules configuration into controller options: the
// engine, a shared program cache, the CLI rule functions and every
// configured precondition.
func ruleOptions(rules config.Rules) ([]cascade.Option, error) {
	cache, err := cascade.NewLRUProgramCache(rules.CacheSize)
	if err != nil {
		return nil, err
	}
	functions, err := ruleFunctions()
	if err != nil {
		return nil, err
	}
	opts := []cascade.Option{
		cascade.WithEngine(rules.Evaluator),
		cascade.WithProgramCache(cache),
		cascade.WithFunctionRegistry(functions),
	}
	for name, levels := range rules.Preconditions {
		field := cascade.ParseFieldName(name)
		if field == cascade.FieldUnknown {
			return nil, fmt.Errorf("%w: precondition for %q", cascade.ErrUnknownField, name)
		}
		for levelName, exprs := range levels {
			level, ok := cascade.ParseLevel(levelName)
			if !ok {
				return nil, fmt.Errorf("%w: %q for %s preconditions", cascade.ErrUnknownLevel, levelName, name)
			}
			for _, expr := range exprs {
				opts = append(opts, cascade.WithPrecondition(field, level, expr))
			}
		}
	}
	return opts, nil
}

// ruleFunctions are the helpers configured rules can call on top of the
// builtins:
//
//	codeNumber(code)  the numeric part of a course code, 0 when it has none
func ruleFunctions() (*cascade.FunctionRegistry, error) {
	functions := cascade.NewFunctionRegistry()
	if err := functions.Register("codeNumber", codeNumber); err != nil {
		return nil, err
	}
	return functions, nil
}

func codeNumber(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("codeNumber expects 1 argument, got %d", len(args))
	}
	digits := strings.TrimLeftFunc(fmt.Sprint(args[0]), func(r rune) bool { return !unicode.IsDigit(r) })
	if end := strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }); end >= 0 {
		digits = digits[:end]
	}
	if digits == "" {
		return 0, nil
	}
	return strconv.Atoi(digits)
}

func (a *app) runSearch(cmd *cobra.Command, f *searchFlags) error {
	ctx := cmd.Context()
	if f.preset != "" {
		saved, err := a.loadPreset(ctx, f.preset)
		if err != nil {
			return err
		}
		saved.applyTo(f)
	}
	client, err := a.newClient()
	if err != nil {
		return err
	}
	ctl, err := a.newController(client)
	if err != nil {
		return err
	}

	if err := ctl.Init(ctx); err != nil {
		return err
	}
	ctl.Wait()
	if err := fieldError(ctl, cascade.FieldInstitution); err != nil {
		return err
	}

	steps := []struct {
		field cascade.FieldName
		want  string
	}{
		{cascade.FieldInstitution, f.institution},
		{cascade.FieldCourseCode, f.courseCode},
		{cascade.FieldCourseTitle, f.courseTitle},
		{cascade.FieldTerm, f.term},
		{cascade.FieldSchedule, f.schedule},
		{cascade.FieldDeliveryMethod, f.deliveryMethod},
	}
	for _, step := range steps {
		if strings.TrimSpace(step.want) == "" {
			continue
		}
		if err := selectOption(ctx, ctl, step.field, step.want); err != nil {
			return err
		}
	}

	query := ctl.Submit(ctx)
	ctl.Wait()
	if err := ctl.SearchErr(); err != nil {
		return err
	}
	view := ctl.Results()

	out := cmd.OutOrStdout()
	if f.save != "" {
		meta, err := a.savePreset(ctx, f.save, savedFromFlags(f))
		if err != nil {
			return err
		}
		a.logger.Info("search saved", zap.String("name", f.save), zap.String("etag", meta.ETag))
	}
	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	if f.fields {
		fmt.Fprintln(out, renderFields(ctl.Describe()))
	}
	fmt.Fprintln(out, describeQuery(query))
	fmt.Fprintln(out, renderTable(view.Rows))
	return nil
}

// selectOption applies want to field, matching option values first and
// labels second, then waits for any cascade it triggers.
func selectOption(ctx context.Context, ctl *cascade.Controller, field cascade.FieldName, want string) error {
	current, err := ctl.Field(field)
	if err != nil {
		return err
	}
	if err := current.Err; err != nil {
		return err
	}
	value, ok := matchOption(current, want)
	if !ok {
		return fmt.Errorf("%w: %s %q (choices: %s)", cascade.ErrUnknownOption, field.Label(), want, describeChoices(current))
	}
	if current.Selected == value {
		return nil
	}
	if err := ctl.Change(ctx, field, value); err != nil {
		return err
	}
	ctl.Wait()
	for _, dependent := range ctl.Graph().Dependents(field) {
		if err := fieldError(ctl, dependent); err != nil {
			return err
		}
	}
	return nil
}

func matchOption(field cascade.Field, want string) (string, bool) {
	want = strings.TrimSpace(want)
	choices := field.Choices()
	for _, option := range choices {
		if option.Value == want {
			return option.Value, true
		}
	}
	for _, option := range choices {
		if strings.EqualFold(option.Label, want) {
			return option.Value, true
		}
	}
	return "", false
}

func describeChoices(field cascade.Field) string {
	choices := field.Choices()
	if len(choices) == 0 {
		return "none"
	}
	labels := make([]string, 0, len(choices))
	for _, option := range choices {
		labels = append(labels, option.Label)
	}
	return strings.Join(labels, ", ")
}

func fieldError(ctl *cascade.Controller, name cascade.FieldName) error {
	field, err := ctl.Field(name)
	if err != nil {
		return err
	}
	if field.Status == cascade.StatusError {
		return field.Err
	}
	return nil
}
