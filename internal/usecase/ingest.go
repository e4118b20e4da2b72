package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

var tracer = otel.Tracer("usecase/ingest")

// IngestService drives one run per source: fetch pages, persist every item,
// diff it against history, and render one report at the end.
type IngestService struct {
	fetcher   domain.CatalogFetcher
	store     domain.PriceStore
	differ    *Differ
	reports   domain.ReportBuilder
	observers []domain.RunObserver
	logger    *slog.Logger
	now       func() time.Time
}

func NewIngestService(
	fetcher domain.CatalogFetcher,
	store domain.PriceStore,
	reports domain.ReportBuilder,
	logger *slog.Logger,
	observers ...domain.RunObserver,
) *IngestService {
	return &IngestService{
		fetcher:   fetcher,
		store:     store,
		differ:    NewDiffer(store),
		reports:   reports,
		observers: observers,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests and the seeder.
func (s *IngestService) WithClock(now func() time.Time) *IngestService {
	s.now = now
	return s
}

// RunOnce never returns an error: a failed run is logged and reported in
// RunResult.Err. Items committed before the failure stay committed.
func (s *IngestService) RunOnce(ctx context.Context, src domain.Source) domain.RunResult {
	result := domain.RunResult{
		RunID:     uuid.New(),
		Source:    src.Name,
		StartedAt: s.now(),
	}

	ctx, span := tracer.Start(ctx, "IngestService.RunOnce")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", src.Name),
		attribute.String("run_id", result.RunID.String()),
	)

	log := s.logger.With(
		slog.String("source", src.Name),
		slog.String("run_id", result.RunID.String()),
	)
	log.Info("Fetching catalog")

pages:
	for page, err := range s.fetcher.Pages(ctx, src) {
		if err != nil {
			result.Err = err
			break
		}
		result.Pages++

		for _, rejected := range page.Rejected {
			result.Rejected++
			log.Warn("Skipping malformed item", slog.String("error", rejected.Error()))
		}

		for _, item := range page.Items {
			eval, err := s.ingestItem(ctx, src, item)
			if err != nil {
				result.Err = err
				break pages
			}
			result.Items++

			if eval.FirstSeen {
				log.Debug("New product", slog.String("code", item.Code()))
				result.NewItems = append(result.NewItems, item)
			}
			if eval.Event != nil {
				log.Info("Price changed", slog.Any("event", *eval.Event))
				result.Events = append(result.Events, *eval.Event)
			}
		}
	}

	if result.Err == nil && len(result.Events) > 0 {
		path, err := s.reports.Build(result.Events, src, result.StartedAt)
		if err != nil {
			result.Err = fmt.Errorf("build report: %w", err)
		} else {
			result.ReportPath = path
		}
	}
	result.FinishedAt = s.now()

	falls, rises := result.Counts()
	span.SetAttributes(
		attribute.Int("pages", result.Pages),
		attribute.Int("items", result.Items),
		attribute.Int("events", len(result.Events)),
		attribute.Int("new", len(result.NewItems)),
	)

	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		log.Error("Run aborted",
			slog.Int("pages", result.Pages),
			slog.Int("items", result.Items),
			slog.String("error", result.Err.Error()))
		return result
	}

	log.Info("Run completed",
		slog.Int("pages", result.Pages),
		slog.Int("items", result.Items),
		slog.Int("rejected", result.Rejected),
		slog.Int("new", len(result.NewItems)),
		slog.Int("falls", falls),
		slog.Int("rises", rises),
		slog.String("report", result.ReportPath),
		slog.Duration("took", result.FinishedAt.Sub(result.StartedAt)))

	if result.Noteworthy() {
		for _, o := range s.observers {
			o.RunFinished(ctx, src, result)
		}
	}
	return result
}

// ingestItem: append, upsert metadata, then diff. Each write commits on its
// own before the next item is touched.
func (s *IngestService) ingestItem(ctx context.Context, src domain.Source, item domain.Item) (Evaluation, error) {
	now := s.now()

	if _, err := s.store.AppendObservation(ctx, item.ProductID, item.PriceGroup, item.Price, now); err != nil {
		return Evaluation{}, err
	}
	if err := s.store.UpsertMetadata(ctx, item.Metadata(now)); err != nil {
		return Evaluation{}, err
	}
	return s.differ.Evaluate(ctx, src, item)
}
