package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
	"github.com/romanzzaa/catalog-price-watcher/internal/query"
	"github.com/romanzzaa/catalog-price-watcher/internal/worker"
)

var scheduleWithHTTP *bool

func init() {
	scheduleWithHTTP = scheduleCmd.Flags().Bool("http", false, "Also serve the history API, reports and the live change feed.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--http]",
	Short: "Runs every source on the configured cron schedule until interrupted.",
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

		var observers []domain.RunObserver
		var hub *query.Hub
		if *scheduleWithHTTP {
			hub = query.NewHub(a.logger)
			observers = append(observers, hub)
		}

		svc, err := a.ingest(observers...)
		if err != nil {
			return err
		}

		manager := worker.NewManager(svc, a.cfg.Sources, worker.Options{
			Cron:        a.cfg.Schedule.Cron,
			RunOnStart:  a.cfg.Schedule.RunOnStart,
			MaxParallel: a.cfg.Schedule.MaxParallel,
		}, a.logger)

		a.logger.Info("Starting watcher",
			slog.String("env", a.cfg.Env),
			slog.String("driver", a.db.Driver()),
			slog.Bool("http", *scheduleWithHTTP))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return manager.Start(gctx) })
		if hub != nil {
			server := query.NewServer(a.cfg.HTTP.Addr, query.NewService(a.repo), hub, a.cfg.Report.OutputDir, a.logger)
			g.Go(func() error { return server.Run(gctx) })
		}

		err = g.Wait()
		a.logger.Info("Watcher stopped gracefully")
		return err
	},
}
