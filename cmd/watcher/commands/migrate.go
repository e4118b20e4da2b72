package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates the price history and product tables if they are missing.",
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
		products, err := a.repo.CountProducts(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("Schema is up to date",
			slog.String("driver", a.db.Driver()),
			slog.Int64("products", products))
		return nil
	},
}
