package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/romanzzaa/catalog-price-watcher/internal/bot"
	"github.com/romanzzaa/catalog-price-watcher/internal/config"
	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
	"github.com/romanzzaa/catalog-price-watcher/internal/infrastructure/catalog"
	"github.com/romanzzaa/catalog-price-watcher/internal/infrastructure/database"
	"github.com/romanzzaa/catalog-price-watcher/internal/report"
	"github.com/romanzzaa/catalog-price-watcher/internal/telemetry"
	"github.com/romanzzaa/catalog-price-watcher/internal/usecase"
)

const serviceName = "catalog-price-watcher"

// app holds everything a subcommand needs. Build it with newApp and always
// Close it.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.DB
	repo     *database.PriceRepository
	shutdown func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.Env, cfg.SlogLevel())
	slog.SetDefault(logger)

	shutdown, err := telemetry.Setup(ctx, serviceName, telemetry.OtlpConfig{
		Endpoint: cfg.Otlp.Endpoint,
		Headers:  cfg.Otlp.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	db, err := database.NewConnection(database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		repo:     database.NewPriceRepository(db),
		shutdown: shutdown,
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.db.Close(), a.shutdown(context.Background()))
}

// ingest wires the fetcher, store and report builder. The telegram notifier
// is appended to the observers when a bot token is configured.
func (a *app) ingest(observers ...domain.RunObserver) (*usecase.IngestService, error) {
	builder, err := report.NewBuilder(a.cfg.Report.OutputDir)
	if err != nil {
		return nil, err
	}

	fetcher := catalog.NewClient(catalog.Options{
		PageSize: a.cfg.Fetch.PageSize,
		Timeout:  a.cfg.Fetch.Timeout.Std(),
		Retry: catalog.RetryPolicy{
			BaseDelay:   a.cfg.Fetch.Retry.BaseDelay.Std(),
			MaxDelay:    a.cfg.Fetch.Retry.MaxDelay.Std(),
			MaxAttempts: a.cfg.Fetch.Retry.MaxAttempts,
		},
	}, a.logger)

	if a.cfg.Telegram.BotToken != "" {
		notifier, err := bot.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Telegram.MaxLines, a.logger)
		if err != nil {
			// Отчёты важнее уведомлений: продолжаем без бота.
			a.logger.Error("Telegram notifier disabled", slog.String("error", err.Error()))
		} else {
			observers = append(observers, notifier)
		}
	}

	return usecase.NewIngestService(fetcher, a.repo, builder, a.logger, observers...), nil
}
