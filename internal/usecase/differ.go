package usecase

import (
	"context"
	"fmt"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

// Differ compares the two most recent observations of a key. It has to run
// right after the item's observation was appended.
type Differ struct {
	store domain.PriceStore
}

func NewDiffer(store domain.PriceStore) *Differ {
	return &Differ{store: store}
}

// Evaluation is the outcome for one freshly appended observation.
type Evaluation struct {
	// Event is nil when the price did not move.
	Event *domain.ChangeEvent
	// FirstSeen is set when the appended row is the key's only observation.
	FirstSeen bool
}

// Evaluate yields no event when the key has fewer than two observations or
// the latest price equals the previous one.
func (d *Differ) Evaluate(ctx context.Context, src domain.Source, item domain.Item) (Evaluation, error) {
	records, err := d.store.LatestTwo(ctx, item.ProductID, item.PriceGroup)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", item.Code(), err)
	}
	if len(records) < 2 {
		return Evaluation{FirstSeen: len(records) == 1}, nil
	}

	latest, previous := records[0], records[1]
	direction, changed := domain.DirectionOf(previous.Price, latest.Price)
	if !changed {
		return Evaluation{}, nil
	}

	// Full-history scan: the lowest price must include the row just written.
	lowest, err := d.store.MinPrice(ctx, item.ProductID, item.PriceGroup)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", item.Code(), err)
	}

	return Evaluation{Event: &domain.ChangeEvent{
		Source:          src.Name,
		ProductID:       item.ProductID,
		PriceGroup:      item.PriceGroup,
		Direction:       direction,
		OldPrice:        previous.Price,
		NewPrice:        latest.Price,
		LowestPriceEver: lowest,
		ObservedAt:      latest.ObservedAt,
		Item:            item,
	}}, nil
}
