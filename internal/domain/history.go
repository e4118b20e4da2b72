package domain

import "time"

// PricePoint - точка временного ряда для просмотрщика.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price int64     `json:"price"`
}

type PriceStats struct {
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Current int64 `json:"current"`
}

// GroupHistory is the history of one price group of a product.
type GroupHistory struct {
	PriceGroup string       `json:"priceGroup"`
	Series     []PricePoint `json:"series"`
	Stats      PriceStats   `json:"stats"`
	// Only the observations whose price differs from the previous one.
	Timeline []PricePoint `json:"timeline"`
}

// GroupHistories groups records by price group. Records must already be
// ordered by price group and then by observation time, as the store returns
// them; group order follows first appearance.
func GroupHistories(records []PriceRecord) []GroupHistory {
	var groups []GroupHistory
	index := make(map[string]int)

	for _, r := range records {
		i, ok := index[r.PriceGroup]
		if !ok {
			i = len(groups)
			index[r.PriceGroup] = i
			groups = append(groups, GroupHistory{
				PriceGroup: r.PriceGroup,
				Stats:      PriceStats{Min: r.Price, Max: r.Price},
			})
		}
		g := &groups[i]

		point := PricePoint{Date: r.ObservedAt, Price: r.Price}
		g.Series = append(g.Series, point)

		if n := len(g.Timeline); n == 0 || g.Timeline[n-1].Price != r.Price {
			g.Timeline = append(g.Timeline, point)
		}

		g.Stats.Min = min(g.Stats.Min, r.Price)
		g.Stats.Max = max(g.Stats.Max, r.Price)
		g.Stats.Current = r.Price
	}
	return groups
}
