package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/romanzzaa/catalog-price-watcher/internal/query"
)

var historyFull *bool

func init() {
	historyFull = historyCmd.Flags().Bool("full", false, "Print every observation instead of only price changes.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <product_id> [--full]",
	Short: "Prints the recorded price history of a product.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		history, err := query.NewService(a.repo).ProductHistory(ctx, args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		if history.Metadata != nil {
			fmt.Printf("%s (%s)\n", history.Metadata.Name, history.Metadata.GenderCategory)
		}

		for _, g := range history.Groups {
			t := newTable()
			t.SetTitle("%s/%s  min %d  max %d  current %d", history.ProductID, g.PriceGroup, g.Stats.Min, g.Stats.Max, g.Stats.Current)
			t.AppendHeader(table.Row{"Observed", "Price"})
			t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

			points := g.Timeline
			if *historyFull {
				points = g.Series
			}
			for _, p := range points {
				t.AppendRow(table.Row{p.Date.Local().Format(time.DateTime), p.Price})
			}
			t.Render()
		}
		return nil
	},
}
