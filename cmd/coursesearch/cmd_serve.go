package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-cascade/internal/catalog"
	"github.com/goliatone/go-cascade/internal/catalogserver"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr string
		seed string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reference data service over a SQLite or Postgres catalog",
		Long: `Serves getSearchOptions, searchCourse and getCourseDetail, plus
/openapi.json, /metrics and /healthz.

Example:
  coursesearch serve --seed testdata/catalog.yaml --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if seed == "" {
				seed = a.cfg.Catalog.Seed
			}

			store, err := catalog.Open(ctx, a.cfg.Catalog.Driver, a.cfg.Catalog.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if seed != "" {
				doc, err := catalog.LoadSeed(seed)
				if err != nil {
					return err
				}
				if err := store.Apply(ctx, doc); err != nil {
					return err
				}
				a.logger.Info("catalog seeded", zap.String("seed", seed), zap.Int("institutions", len(doc.Institutions)))
			}

			srv, err := catalogserver.New(store,
				catalogserver.WithLogger(a.logger),
				catalogserver.WithBasePath(a.cfg.Server.BasePath),
			)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&seed, "seed", "", "YAML catalog seed applied on start")
	return cmd
}
