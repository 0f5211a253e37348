package domain

import "encoding/json"

// Category is the closed product category enumeration
type Category string

const (
	CategoryBeauty      Category = "Beauty"
	CategoryFood        Category = "Food & Beverage"
	CategoryStationery  Category = "Stationery"
	CategoryElectronics Category = "Electronics"
	CategoryHome        Category = "Home & Living"
	CategoryOther       Category = "Other"
)

// Categories lists the canonical categories in display order
var Categories = []Category{
	CategoryBeauty,
	CategoryFood,
	CategoryStationery,
	CategoryElectronics,
	CategoryHome,
	CategoryOther,
}

// Valid reports whether c is one of the canonical categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Placeholder names used when an item could not be extracted
const (
	UnknownName          = "N/A"
	ImageErrorName       = "Error: Check Console"
	AudioErrorName       = "Audio Scan Error"
	UnsupportedMediaName = "Unsupported Media"
)

// Record is the canonical product record produced for every scanned item.
// Empty Unit and SKU and a nil Price mean the value is missing.
type Record struct {
	Name     string   `json:"name"`
	Price    *int64   `json:"price"`
	Unit     string   `json:"unit"`
	SKU      string   `json:"sku"`
	Category Category `json:"category"`
	IsError  bool     `json:"isError"`
}

// recordJSON mirrors Record with nullable string fields
type recordJSON struct {
	Name     string   `json:"name"`
	Price    *int64   `json:"price"`
	Unit     *string  `json:"unit"`
	SKU      *string  `json:"sku"`
	Category Category `json:"category"`
	IsError  bool     `json:"isError"`
}

// MarshalJSON renders missing unit and sku as null
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Name:     r.Name,
		Price:    r.Price,
		Unit:     nullable(r.Unit),
		SKU:      nullable(r.SKU),
		Category: r.Category,
		IsError:  r.IsError,
	})
}

// UnmarshalJSON accepts null for unit and sku
func (r *Record) UnmarshalJSON(data []byte) error {
	var aux recordJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record{
		Name:     aux.Name,
		Price:    aux.Price,
		Category: aux.Category,
		IsError:  aux.IsError,
	}
	if aux.Unit != nil {
		r.Unit = *aux.Unit
	}
	if aux.SKU != nil {
		r.SKU = *aux.SKU
	}
	return nil
}

// HasPrice reports whether the record carries a price
func (r Record) HasPrice() bool {
	return r.Price != nil
}

// PlaceholderRecord returns the visible failure entry for an item of the given kind
func PlaceholderRecord(kind MediaKind) Record {
	name := ImageErrorName
	switch kind {
	case MediaAudio:
		name = AudioErrorName
	case MediaUnknown:
		name = UnsupportedMediaName
	}
	return Record{
		Name:     name,
		Category: CategoryOther,
		IsError:  true,
	}
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 {
	return &v
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
