package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

// --- PriceRepository ---

// PriceRepository owns price_history (append-only) and products (latest
// metadata). Every call is a single autocommitted statement, so an item is
// durable before the caller moves on to the next one.
type PriceRepository struct {
	db *DB
}

func NewPriceRepository(db *DB) *PriceRepository {
	return &PriceRepository{db: db}
}

func (r *PriceRepository) AppendObservation(ctx context.Context, productID, priceGroup string, price int64, now time.Time) (domain.PriceRecord, error) {
	rec := domain.PriceRecord{
		ProductID:  productID,
		PriceGroup: priceGroup,
		Price:      price,
		ObservedAt: now.UTC().Truncate(time.Millisecond),
	}

	query := r.db.rebind(`
		INSERT INTO price_history (product_id, price_group, price, observed_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.QueryRowContext(ctx, query, productID, priceGroup, price, rec.ObservedAt.UnixMilli()).Scan(&rec.ID)
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("failed to append observation %s/%s: %w", productID, priceGroup, err)
	}
	return rec, nil
}

func (r *PriceRepository) UpsertMetadata(ctx context.Context, meta domain.ProductMetadata) error {
	query := r.db.rebind(`
		INSERT INTO products (product_id, name, gender_category, image_url, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET
			name = excluded.name,
			gender_category = excluded.gender_category,
			image_url = excluded.image_url,
			updated_at = excluded.updated_at
	`)

	_, err := r.db.ExecContext(ctx, query,
		meta.ProductID, meta.Name, meta.GenderCategory, meta.ImageURL, meta.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metadata %s: %w", meta.ProductID, err)
	}
	return nil
}

func (r *PriceRepository) LatestTwo(ctx context.Context, productID, priceGroup string) ([]domain.PriceRecord, error) {
	query := r.db.rebind(`
		SELECT id, product_id, price_group, price, observed_at
		FROM price_history
		WHERE product_id = ? AND price_group = ?
		ORDER BY observed_at DESC, id DESC
		LIMIT 2
	`)

	rows, err := r.db.QueryContext(ctx, query, productID, priceGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest records: %w", err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

func (r *PriceRepository) MinPrice(ctx context.Context, productID, priceGroup string) (int64, error) {
	query := r.db.rebind(`
		SELECT MIN(price)
		FROM price_history
		WHERE product_id = ? AND price_group = ?
	`)

	var lowest sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, productID, priceGroup).Scan(&lowest); err != nil {
		return 0, fmt.Errorf("failed to get min price: %w", err)
	}
	if !lowest.Valid {
		return 0, fmt.Errorf("no price history for %s/%s", productID, priceGroup)
	}
	return lowest.Int64, nil
}

func (r *PriceRepository) History(ctx context.Context, productID string) ([]domain.PriceRecord, error) {
	query := r.db.rebind(`
		SELECT id, product_id, price_group, price, observed_at
		FROM price_history
		WHERE product_id = ?
		ORDER BY price_group, observed_at, id
	`)

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

func (r *PriceRepository) GetMetadata(ctx context.Context, productID string) (*domain.ProductMetadata, error) {
	query := r.db.rebind(`
		SELECT product_id, name, gender_category, image_url, updated_at
		FROM products
		WHERE product_id = ?
	`)

	meta := &domain.ProductMetadata{}
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, query, productID).Scan(
		&meta.ProductID, &meta.Name, &meta.GenderCategory, &meta.ImageURL, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	meta.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return meta, nil
}

// CountProducts is used by the seeder and health output.
func (r *PriceRepository) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// Helpers

func (r *PriceRepository) scanRecords(rows *sql.Rows) ([]domain.PriceRecord, error) {
	var records []domain.PriceRecord
	for rows.Next() {
		var rec domain.PriceRecord
		var observedAt int64
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.PriceGroup, &rec.Price, &observedAt); err != nil {
			return nil, fmt.Errorf("scan row error: %w", err)
		}
		rec.ObservedAt = time.UnixMilli(observedAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}
