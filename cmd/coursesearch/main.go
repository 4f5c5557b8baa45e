// Command coursesearch drives the cascading course search against a data
// service and can serve the reference data service itself.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-cascade/internal/config"
	"github.com/goliatone/go-cascade/pkg/zaplog"
)

const defaultConfigPath = "coursesearch.yaml"

// app holds the state shared by every command of one invocation.
type app struct {
	configPath string
	verbose    bool
	baseURL    string
	logFormat  string
	evaluator  string
	timeout    time.Duration
	presetsDir string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "coursesearch",
		Short: "Cascading course search client and reference data service",
		Long: `coursesearch drives the dependent course search form from the terminal.

Selecting an institution loads its course codes, titles and terms; selecting a
course code narrows titles and terms further. The search command walks those
steps with the given flags and prints the matching courses.

Settings resolve from flags, then COURSESEARCH_* environment variables, then
the YAML file given by --config, then built-in defaults.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", defaultConfigPath, "YAML configuration file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&a.baseURL, "base-url", "", "data service base URL")
	flags.StringVar(&a.logFormat, "log-format", "", "log encoding: console or json")
	flags.StringVar(&a.evaluator, "evaluator", "", "precondition engine: expr, cel or js")
	flags.DurationVar(&a.timeout, "timeout", 0, "per-request timeout")
	flags.StringVar(&a.presetsDir, "presets-dir", "", "directory for saved searches")

	root.AddCommand(
		newSearchCmd(a),
		newDetailCmd(a),
		newServeCmd(a),
		newSchemaCmd(a),
		newPresetsCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	file, err := config.LoadFile(a.configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	env, err := config.FromEnv()
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(a.flagLayer(), env, file)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := zaplog.Build(level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

func (a *app) flagLayer() config.Layer {
	var layer config.Layer
	if v := strings.TrimSpace(a.baseURL); v != "" {
		layer.Service.BaseURL = &v
	}
	if v := strings.TrimSpace(a.logFormat); v != "" {
		layer.Log.Format = &v
	}
	if v := strings.TrimSpace(a.evaluator); v != "" {
		layer.Rules.Evaluator = &v
	}
	if v := strings.TrimSpace(a.presetsDir); v != "" {
		layer.Presets.Dir = &v
	}
	if a.timeout > 0 {
		v := a.timeout
		layer.Service.Timeout = &v
	}
	return layer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
