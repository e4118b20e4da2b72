package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
	"github.com/romanzzaa/catalog-price-watcher/internal/worker"
)

var runSource *string

func init() {
	runSource = runCmd.Flags().String("source", "", "Run only this source (by name). All sources when empty.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--source <name>]",
	Short: "Runs one fetch-ingest-diff-report cycle and exits.",
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

		svc, err := a.ingest()
		if err != nil {
			return err
		}

		sources := a.cfg.Sources
		if *runSource != "" {
			src, ok := a.cfg.Source(*runSource)
			if !ok {
				return fmt.Errorf("unknown source %q", *runSource)
			}
			sources = []domain.Source{src}
		}

		manager := worker.NewManager(svc, sources, worker.Options{MaxParallel: a.cfg.Schedule.MaxParallel}, a.logger)
		results := manager.RunAll(ctx)
		printResults(results)

		failed := 0
		for _, r := range results {
			if r.Failed() {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d runs failed", failed, len(results))
		}
		return nil
	},
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func printResults(results []domain.RunResult) {
	t := newTable()
	t.AppendHeader(table.Row{"Source", "Pages", "Items", "Rejected", "New", "▼", "▲", "Report", "Error"})
	for _, r := range results {
		falls, rises := r.Counts()
		report := ""
		if r.ReportPath != "" {
			report = filepath.Base(r.ReportPath)
		}
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Source, r.Pages, r.Items, r.Rejected, len(r.NewItems), falls, rises, report, errText})
	}
	t.Render()
}
