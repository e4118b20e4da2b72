package query

import (
	"context"
	"fmt"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

// ProductHistory is what the history viewer renders for one product.
type ProductHistory struct {
	ProductID string                  `json:"productId"`
	Metadata  *domain.ProductMetadata `json:"metadata,omitempty"`
	Groups    []domain.GroupHistory   `json:"groups"`
}

type Service struct {
	reader domain.HistoryReader
}

func NewService(reader domain.HistoryReader) *Service {
	return &Service{reader: reader}
}

func (s *Service) ProductHistory(ctx context.Context, productID string) (ProductHistory, error) {
	records, err := s.reader.History(ctx, productID)
	if err != nil {
		return ProductHistory{}, fmt.Errorf("history %s: %w", productID, err)
	}
	if len(records) == 0 {
		return ProductHistory{}, domain.ErrProductNotFound
	}

	// Метаданные могут отсутствовать у старых записей.
	meta, err := s.reader.GetMetadata(ctx, productID)
	if err != nil {
		return ProductHistory{}, fmt.Errorf("metadata %s: %w", productID, err)
	}

	return ProductHistory{
		ProductID: productID,
		Metadata:  meta,
		Groups:    domain.GroupHistories(records),
	}, nil
}

func (s *Service) Product(ctx context.Context, productID string) (*domain.ProductMetadata, error) {
	meta, err := s.reader.GetMetadata(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", productID, err)
	}
	if meta == nil {
		return nil, domain.ErrProductNotFound
	}
	return meta, nil
}
