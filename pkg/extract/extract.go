// Package extract maps combined product+price documents onto ParsedProduct
// records. It performs no I/O; the crawl engine and the replay path call it,
// and it is exposed on its own as the parse-only entry point.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

var sizePattern = regexp.MustCompile(`(#?[0-9\.]([ #xX\.\/-]*[0-9]+)*)([ "#a-zA-Z]*.*)`)

// Meta identifies where a document came from
type Meta struct {
	CustomerID    string
	SupplierKey   string
	RequestID     string
	Category      string
	FavoritesOnly bool
	Rules         packsize.Rules
}

// document is the combined {"productList": ..., "prices": [...]} payload
type document struct {
	ProductList json.RawMessage   `json:"productList"`
	Prices      []json.RawMessage `json:"prices"`
}

type priceRow struct {
	Supc  flexString `json:"supc"`
	Price flexString `json:"price"`
}

// Parse converts a raw combined document into products, in source order.
// The shape is chosen from meta.FavoritesOnly. A price is taken from the
// price entry at the same index only when its supc matches the item number;
// otherwise the price is "0".
func Parse(raw string, meta Meta) ([]models.ParsedProduct, error) {
	m, err := ShapeFor(meta.FavoritesOnly).mapper()
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "decode %s document %q: %v", ShapeFor(meta.FavoritesOnly), meta.Category, err)
	}

	records, err := m.records(doc.ProductList)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "decode %s rows %q: %v", ShapeFor(meta.FavoritesOnly), meta.Category, err)
	}

	products := make([]models.ParsedProduct, 0, len(records))
	for i, rec := range records {
		products = append(products, buildProduct(m, rec, priceAt(doc.Prices, i, rec.ItemNumber), meta))
	}
	return products, nil
}

func buildProduct(m mapper, rec record, price string, meta Meta) models.ParsedProduct {
	size, uom := SplitSize(strings.ReplaceAll(rec.SizeText, "0Z", "OZ"))

	// Remote-stock and phased-out items are never priced.
	if rec.StockType != "" || rec.PhasedOut {
		price = "0"
	}

	packSize := rec.Pack + "@" + size
	res := packsize.Resolve(packSize, uom, meta.Rules)

	return models.ParsedProduct{
		SupplierKey:   meta.SupplierKey,
		ItemNumber:    rec.ItemNumber,
		Title:         rec.Description,
		Description:   rec.Description,
		Brand:         rec.Brand,
		Price:         price,
		PriceInPounds: rec.CatchWeight,
		PackSize:      packSize,
		ProductWeight: rec.ProductWeight,
		SizeUOM:       uom,
		UnitOfMeasure: m.unitOfMeasure(rec, uom),
		Category:      meta.Category,
		Favorite:      meta.FavoritesOnly,
		PackQuantity:  res.PackQuantity,
		SizeQuantity:  res.SizeQuantity,
	}
}

func priceAt(prices []json.RawMessage, i int, itemNumber string) string {
	if i >= len(prices) || isNull(prices[i]) {
		return "0"
	}
	var p priceRow
	if err := json.Unmarshal(prices[i], &p); err != nil {
		return "0"
	}
	if string(p.Supc) != itemNumber {
		return "0"
	}
	return string(p.Price)
}

// SplitSize separates a leading size token ("12", "#10", "6-8") from the
// trailing unit text. Without a match the size is "1" and the unit is the
// whole input.
func SplitSize(text string) (size, uom string) {
	m := sizePattern.FindStringSubmatch(text)
	if m == nil {
		return "1", text
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[3])
}

// ItemIDs returns the item ids of a productList payload in order. For the
// catalog shape the payload is a page object with a results array; for the
// favorites shape it is the array itself.
func ItemIDs(shape Shape, productList string) ([]string, error) {
	m, err := shape.mapper()
	if err != nil {
		return nil, err
	}
	records, err := m.records(json.RawMessage(productList))
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "decode %s item ids: %v", shape, err)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ItemNumber != "" {
			ids = append(ids, rec.ItemNumber)
		}
	}
	return ids, nil
}
