package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-cascade/schema/openapi"
)

func newSchemaCmd(a *app) *cobra.Command {
	var server, title, version string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the data service OpenAPI document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := openapi.JSON(
				openapi.WithBasePath(a.cfg.Server.BasePath),
				openapi.WithServer(server),
				openapi.WithInfo(title, version, "Options and search endpoints behind the course search form."),
			)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server URL to list in the document")
	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&version, "api-version", "", "document version")
	return cmd
}
