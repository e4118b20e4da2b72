package domain

import (
	"context"
	"iter"
	"time"
)

// PriceStore - журнал цен и таблица метаданных.
type PriceStore interface {
	// Добавить одно наблюдение. Never overwrites or deletes.
	AppendObservation(ctx context.Context, productID, priceGroup string, price int64, now time.Time) (PriceRecord, error)

	// Insert-or-replace по productId
	UpsertMetadata(ctx context.Context, meta ProductMetadata) error

	// Две последние записи, observed_at DESC
	LatestTwo(ctx context.Context, productID, priceGroup string) ([]PriceRecord, error)

	// Минимальная цена за всю историю ключа
	MinPrice(ctx context.Context, productID, priceGroup string) (int64, error)
}

// HistoryReader - read side used by the query surface.
type HistoryReader interface {
	History(ctx context.Context, productID string) ([]PriceRecord, error)
	GetMetadata(ctx context.Context, productID string) (*ProductMetadata, error)
}

// CatalogFetcher - адаптер к API каталога
type CatalogFetcher interface {
	Pages(ctx context.Context, src Source) iter.Seq2[Page, error]
}

// ReportBuilder renders the events of one run into a single artifact and
// returns where it was written.
type ReportBuilder interface {
	Build(events []ChangeEvent, src Source, runAt time.Time) (string, error)
}

// RunObserver is told about every successful run that produced events or
// saw new keys.
type RunObserver interface {
	RunFinished(ctx context.Context, src Source, result RunResult)
}
