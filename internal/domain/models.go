package domain

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Enums & Constants ---

// Direction - направление изменения цены. Only two variants exist; "no change"
// is not a direction, it is the absence of a ChangeEvent.
type Direction int

const (
	DirectionRise Direction = iota + 1
	DirectionFall
)

func DirectionOf(oldPrice, newPrice int64) (Direction, bool) {
	switch {
	case newPrice < oldPrice:
		return DirectionFall, true
	case newPrice > oldPrice:
		return DirectionRise, true
	default:
		return 0, false
	}
}

func (d Direction) String() string {
	switch d {
	case DirectionRise:
		return "rise"
	case DirectionFall:
		return "fall"
	default:
		return "unknown"
	}
}

// Arrow is used by the notifier and CLI output.
func (d Direction) Arrow() string {
	if d == DirectionFall {
		return "▼"
	}
	return "▲"
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "rise":
		*d = DirectionRise
	case "fall":
		*d = DirectionFall
	default:
		return fmt.Errorf("unknown direction %q", s)
	}
	return nil
}

// --- Entities ---

// Item - один товар из ответа каталога, уже прошедший разбор.
type Item struct {
	ProductID      string `json:"productId"`
	PriceGroup     string `json:"priceGroup"`
	Name           string `json:"name"`
	GenderCategory string `json:"genderCategory"`
	ImageURL       string `json:"imageUrl"`
	Price          int64  `json:"price"`
}

func (i Item) Code() string {
	return i.ProductID + "/" + i.PriceGroup
}

func (i Item) Metadata(now time.Time) ProductMetadata {
	return ProductMetadata{
		ProductID:      i.ProductID,
		Name:           i.Name,
		GenderCategory: i.GenderCategory,
		ImageURL:       i.ImageURL,
		UpdatedAt:      now,
	}
}

// PriceRecord - одна запись append-only журнала цен.
type PriceRecord struct {
	ID         int64
	ProductID  string
	PriceGroup string
	Price      int64
	ObservedAt time.Time
}

// ProductMetadata - последние увиденные атрибуты товара (не история).
type ProductMetadata struct {
	ProductID      string    `json:"productId"`
	Name           string    `json:"name"`
	GenderCategory string    `json:"genderCategory"`
	ImageURL       string    `json:"imageUrl"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ChangeEvent is built by the differ and consumed by the report, the notifier
// and the change feed within one run. It is never persisted.
type ChangeEvent struct {
	Source          string    `json:"source"`
	ProductID       string    `json:"productId"`
	PriceGroup      string    `json:"priceGroup"`
	Direction       Direction `json:"direction"`
	OldPrice        int64     `json:"oldPrice"`
	NewPrice        int64     `json:"newPrice"`
	LowestPriceEver int64     `json:"lowestPriceEver"`
	ObservedAt      time.Time `json:"observedAt"`
	Item            Item      `json:"item"`
}

func (e ChangeEvent) Code() string {
	return e.ProductID + "/" + e.PriceGroup
}

func (e ChangeEvent) Delta() int64 {
	return e.NewPrice - e.OldPrice
}

// ChangeRate returns the relative change in percent, rounded to one decimal.
func (e ChangeEvent) ChangeRate() decimal.Decimal {
	if e.OldPrice == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(e.Delta()).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(e.OldPrice)).
		Round(1)
}

func (e ChangeEvent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("direction", e.Direction.String()),
		slog.String("code", e.Code()),
		slog.String("name", e.Item.Name),
		slog.String("gender", e.Item.GenderCategory),
		slog.Int64("old_price", e.OldPrice),
		slog.Int64("new_price", e.NewPrice),
		slog.Int64("lowest_price", e.LowestPriceEver),
	)
}

// IsLowestEver reports whether the new price equals the lifetime minimum.
func (e ChangeEvent) IsLowestEver() bool {
	return e.NewPrice == e.LowestPriceEver
}

// --- Value Objects ---

// Source - один upstream каталог (UNIQLO, GU, ...).
type Source struct {
	Name               string            `json:"name"`
	APIURL             string            `json:"api_url"`
	ProductURLTemplate string            `json:"product_url"`
	Params             map[string]string `json:"params"`
}

func (s Source) ProductURL(productID, priceGroup string) string {
	r := strings.NewReplacer(
		"{productId}", url.PathEscape(productID),
		"{priceGroup}", url.PathEscape(priceGroup),
	)
	return r.Replace(s.ProductURLTemplate)
}

// Page - одна страница ответа каталога.
type Page struct {
	Offset   int
	Total    int
	Items    []Item
	Rejected []*DataContractError
}

// RunResult - итог одного прогона по одному источнику.
type RunResult struct {
	RunID      uuid.UUID
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Pages      int
	Items      int
	Rejected   int
	Events     []ChangeEvent
	// NewItems are keys observed for the first time in this run.
	NewItems   []Item
	ReportPath string
	Err        error
}

func (r RunResult) Failed() bool {
	return r.Err != nil
}

// Noteworthy reports whether observers have anything to show for the run.
func (r RunResult) Noteworthy() bool {
	return len(r.Events) > 0 || len(r.NewItems) > 0
}

// Counts returns the number of falls and rises among the run's events.
func (r RunResult) Counts() (falls, rises int) {
	for _, e := range r.Events {
		if e.Direction == DirectionFall {
			falls++
		} else {
			rises++
		}
	}
	return falls, rises
}
