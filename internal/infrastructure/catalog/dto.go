package catalog

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

// BaseResponse - стандартная обертка ответа commerce API
type BaseResponse[T any] struct {
	Status string `json:"status"`
	Result *T     `json:"result"` // nil when the body has no "result"
}

// ProductsResponse - /products
type ProductsResponse struct {
	Items      []json.RawMessage `json:"items"`
	Pagination *struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

// itemDTO mirrors the fields we read from one product. Pointers tell a
// missing field apart from a zero value.
type itemDTO struct {
	ProductID      *string `json:"productId"`
	PriceGroup     *string `json:"priceGroup"`
	Name           *string `json:"name"`
	GenderCategory string  `json:"genderCategory"`
	Prices         struct {
		Base *struct {
			Value *int64 `json:"value"`
		} `json:"base"`
	} `json:"prices"`
	Images struct {
		Main json.RawMessage `json:"main"`
	} `json:"images"`
}

// parseItem turns one raw item into a domain.Item or a DataContractError.
func parseItem(index int, raw json.RawMessage) (domain.Item, *domain.DataContractError) {
	var dto itemDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		field := "item"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field = typeErr.Field
		}
		return domain.Item{}, &domain.DataContractError{Index: index, ProductID: peekProductID(raw), Field: field}
	}

	productID := deref(dto.ProductID)
	missing := func(field string) *domain.DataContractError {
		return &domain.DataContractError{Index: index, ProductID: productID, Field: field}
	}

	switch {
	case productID == "":
		return domain.Item{}, missing("productId")
	case deref(dto.PriceGroup) == "":
		return domain.Item{}, missing("priceGroup")
	case dto.Name == nil:
		return domain.Item{}, missing("name")
	case dto.Prices.Base == nil || dto.Prices.Base.Value == nil:
		return domain.Item{}, missing("prices.base.value")
	}

	return domain.Item{
		ProductID:      productID,
		PriceGroup:     *dto.PriceGroup,
		Name:           *dto.Name,
		GenderCategory: dto.GenderCategory,
		ImageURL:       mainImage(dto.Images.Main),
		Price:          *dto.Prices.Base.Value,
	}, nil
}

// mainImage handles both shapes of images.main: a plain URL, or a map of
// color code -> {image: URL}. For the map the lowest color code wins.
func mainImage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}

	var byColor map[string]struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(raw, &byColor); err != nil {
		return ""
	}
	codes := make([]string, 0, len(byColor))
	for code := range byColor {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if img := byColor[code].Image; img != "" {
			return img
		}
	}
	return ""
}

func peekProductID(raw json.RawMessage) string {
	var probe struct {
		ProductID string `json:"productId"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.ProductID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
