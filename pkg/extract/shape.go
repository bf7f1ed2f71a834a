package extract

import (
	"encoding/json"
	"fmt"
)

// Shape names the layout of a combined product+price document. Catalog pages
// nest their rows under productList.results; favorites documents carry a bare
// productList array with brand and pack data under a detail object.
type Shape int

const (
	ShapeCatalog Shape = iota
	ShapeFavorites
)

// ShapeFor returns the document shape produced by a crawl of the given kind
func ShapeFor(favoritesOnly bool) Shape {
	if favoritesOnly {
		return ShapeFavorites
	}
	return ShapeCatalog
}

// String implements fmt.Stringer for logging
func (s Shape) String() string {
	switch s {
	case ShapeCatalog:
		return "catalog"
	case ShapeFavorites:
		return "favorites"
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

func (s Shape) mapper() (mapper, error) {
	switch s {
	case ShapeCatalog:
		return catalogMapper{}, nil
	case ShapeFavorites:
		return favoritesMapper{}, nil
	}
	return nil, fmt.Errorf("unknown document shape %d", int(s))
}

// record is a product row reduced to the fields both shapes share
type record struct {
	ItemNumber    string
	Description   string
	Brand         string
	Pack          string
	SizeText      string
	UnitOfMeasure string
	ProductWeight string
	CatchWeight   bool
	StockType     string
	PhasedOut     bool
}

// mapper is the field-mapping strategy of one document shape
type mapper interface {
	records(productList json.RawMessage) ([]record, error)
	// unitOfMeasure picks the product's unit given the unit split off its size text
	unitOfMeasure(rec record, sizeUOM string) string
}

type packSizeJSON struct {
	Pack          flexString `json:"pack"`
	Size          flexString `json:"size"`
	UnitOfMeasure flexString `json:"unitOfMeasure"`
}

type catalogRow struct {
	MaterialID           flexString   `json:"materialId"`
	Description          flexString   `json:"description"`
	Brand                flexString   `json:"brand"`
	PackSize             packSizeJSON `json:"packSize"`
	AverageWeightPerCase flexString   `json:"averageWeightPerCase"`
	IsCatchWeight        flexBool     `json:"isCatchWeight"`
	StockType            flexString   `json:"stockType"`
	IsPhasedOut          flexBool     `json:"isPhasedOut"`
}

type catalogMapper struct{}

func (catalogMapper) records(productList json.RawMessage) ([]record, error) {
	if isNull(productList) {
		return nil, nil
	}
	var page struct {
		Results []catalogRow `json:"results"`
	}
	if err := json.Unmarshal(productList, &page); err != nil {
		return nil, err
	}

	out := make([]record, 0, len(page.Results))
	for _, row := range page.Results {
		out = append(out, record{
			ItemNumber:    string(row.MaterialID),
			Description:   string(row.Description),
			Brand:         string(row.Brand),
			Pack:          string(row.PackSize.Pack),
			SizeText:      string(row.PackSize.Size),
			UnitOfMeasure: string(row.PackSize.UnitOfMeasure),
			ProductWeight: string(row.AverageWeightPerCase),
			CatchWeight:   bool(row.IsCatchWeight),
			StockType:     string(row.StockType),
			PhasedOut:     bool(row.IsPhasedOut),
		})
	}
	return out, nil
}

func (catalogMapper) unitOfMeasure(rec record, _ string) string {
	return rec.UnitOfMeasure
}

type favoriteRow struct {
	ID                   flexString `json:"id"`
	Description          flexString `json:"description"`
	AverageWeightPerCase flexString `json:"averageWeightPerCase"`
	IsCatchWeight        flexBool   `json:"isCatchWeight"`
	Detail               struct {
		Brand       flexString   `json:"brand"`
		PackSize    packSizeJSON `json:"packSize"`
		StockType   flexString   `json:"stockType"`
		IsPhasedOut flexBool     `json:"isPhasedOut"`
	} `json:"detail"`
}

type favoritesMapper struct{}

func (favoritesMapper) records(productList json.RawMessage) ([]record, error) {
	if isNull(productList) {
		return nil, nil
	}
	var rows []favoriteRow
	if err := json.Unmarshal(productList, &rows); err != nil {
		return nil, err
	}

	out := make([]record, 0, len(rows))
	for _, row := range rows {
		out = append(out, record{
			ItemNumber:    string(row.ID),
			Description:   string(row.Description),
			Brand:         string(row.Detail.Brand),
			Pack:          string(row.Detail.PackSize.Pack),
			SizeText:      string(row.Detail.PackSize.Size),
			ProductWeight: string(row.AverageWeightPerCase),
			CatchWeight:   bool(row.IsCatchWeight),
			StockType:     string(row.Detail.StockType),
			PhasedOut:     bool(row.Detail.IsPhasedOut),
		})
	}
	return out, nil
}

func (favoritesMapper) unitOfMeasure(_ record, sizeUOM string) string {
	return sizeUOM
}
