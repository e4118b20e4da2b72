package commands

import (
	"github.com/spf13/cobra"

	"github.com/romanzzaa/catalog-price-watcher/internal/query"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the history API and generated reports without polling.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.Migrate(ctx); err != nil {
			return err
		}

		// No runs happen in this process, so the feed stays quiet.
		hub := query.NewHub(a.logger)
		server := query.NewServer(a.cfg.HTTP.Addr, query.NewService(a.repo), hub, a.cfg.Report.OutputDir, a.logger)
		return server.Run(ctx)
	},
}
