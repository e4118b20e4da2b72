package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/romanzzaa/catalog-price-watcher/internal/config"
	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
	"github.com/romanzzaa/catalog-price-watcher/internal/infrastructure/database"
	"github.com/romanzzaa/catalog-price-watcher/internal/report"
	"github.com/romanzzaa/catalog-price-watcher/internal/usecase"
)

// demoCatalog отдаёт один и тот же набор товаров, меняя цены по дням.
type demoCatalog struct {
	day int
}

var demoItems = []domain.Item{
	{ProductID: "E465185-000", PriceGroup: "00", Name: "Ultra Light Down Jacket", GenderCategory: "MEN", Price: 5990},
	{ProductID: "E465185-000", PriceGroup: "01", Name: "Ultra Light Down Jacket", GenderCategory: "MEN", Price: 4990},
	{ProductID: "E455498-000", PriceGroup: "00", Name: "AIRism Cotton T-Shirt", GenderCategory: "UNISEX", Price: 1990},
	{ProductID: "E460318-000", PriceGroup: "00", Name: "Heattech Socks", GenderCategory: "WOMEN", Price: 590},
}

// Per-day discount in yen, indexed [day][item].
var demoDiscounts = [][]int64{
	{0, 0, 0, 0},
	{1000, 0, 0, 0},
	{1000, 0, 500, 0},
	{0, 0, 500, 200},
	{2000, 1000, 0, 200},
}

func (d *demoCatalog) Pages(ctx context.Context, src domain.Source) iter.Seq2[domain.Page, error] {
	return func(yield func(domain.Page, error) bool) {
		items := make([]domain.Item, len(demoItems))
		for i, it := range demoItems {
			it.Price -= demoDiscounts[d.day][i]
			items[i] = it
		}
		yield(domain.Page{Offset: 0, Total: len(items), Items: items}, nil)
	}
}

var configPath *string

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "Path to the JSON5 config file.")
}

var rootCmd = &cobra.Command{
	Use:           "seeder",
	Short:         "seeder fills a local database with a few days of demo price history.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return seed(cmd.Context(), *configPath)
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, path string) error {
	// 1. Config
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if cfg.Env != "local" {
		return errors.New("seeder allowed only in local environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// 2. Database
	db, err := database.NewConnection(database.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	repo := database.NewPriceRepository(db)

	existing, err := repo.CountProducts(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		logger.Info("[Seeder] Products already present, skipping seeding", slog.Int64("products", existing))
		return nil
	}

	builder, err := report.NewBuilder(cfg.Report.OutputDir)
	if err != nil {
		return err
	}

	// 3. Прогоняем несколько "дней" через настоящий конвейер.
	catalog := &demoCatalog{}
	start := time.Now().Add(-time.Duration(len(demoDiscounts)) * 24 * time.Hour)
	clock := start
	svc := usecase.NewIngestService(catalog, repo, builder, logger).WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	src := domain.Source{Name: "DEMO", ProductURLTemplate: "https://www.uniqlo.com/jp/ja/products/{productId}/{priceGroup}"}
	for day := range demoDiscounts {
		catalog.day = day
		clock = start.Add(time.Duration(day) * 24 * time.Hour)

		result := svc.RunOnce(ctx, src)
		if result.Err != nil {
			return fmt.Errorf("seed run for day %d failed: %w", day, result.Err)
		}
		fmt.Printf("✅ Day %d: %d items, %d new, %d changes %s\n", day, result.Items, len(result.NewItems), len(result.Events), result.ReportPath)
	}
	return nil
}
