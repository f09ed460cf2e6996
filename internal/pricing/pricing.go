// Package pricing picks price breaks from catalog records and rolls line
// prices up into a BOM cost.
package pricing

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"partsmatch/internal"
)

const Currency = "USD"

// Break is one step of a supplier's quantity price list.
type Break struct {
	Quantity  float64
	UnitPrice decimal.Decimal
}

// Offer is the price a supplier charges for a given quantity.
type Offer struct {
	Supplier  string          `json:"supplier,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  float64         `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total_price"`
	Stock     int64           `json:"stock,omitempty"`
}

// Line is one BOM line to price: how many go on a board and the catalog
// record chosen for it.
type Line struct {
	Reference string
	Qty       float64
	Candidate internal.Record
}

type LineCost struct {
	Reference string          `json:"reference"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  float64         `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Supplier  string          `json:"supplier,omitempty"`
}

type Summary struct {
	Boards    int             `json:"quantity"`
	Lines     []LineCost      `json:"cost_breakdown"`
	Total     decimal.Decimal `json:"total_cost"`
	Priced    int             `json:"priced_items"`
	Unpriced  int             `json:"unpriced_items"`
	Currency  string          `json:"currency"`
	Unmatched []string        `json:"unpriced_references,omitempty"`
}

var breakListKeys = []string{"price_breaks", "pricing"}

// Breaks reads a record's price list sorted by quantity. Entries without a
// usable price are skipped.
func Breaks(rec internal.Record) []Break {
	var raw []any
	for _, k := range breakListKeys {
		if list, ok := rec[k].([]any); ok {
			raw = list
			break
		}
	}
	out := make([]Break, 0, len(raw))
	for _, item := range raw {
		pb, ok := item.(map[string]any)
		if !ok {
			continue
		}
		price, ok := toDecimal(pb["price"])
		if !ok {
			price, ok = toDecimal(pb["unit_price"])
		}
		if !ok {
			continue
		}
		qty, _ := toFloat(pb["quantity"])
		out = append(out, Break{Quantity: qty, UnitPrice: price})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out
}

// PriceAt returns the unit price of the largest break whose quantity does
// not exceed qty. Below every break the smallest break applies.
func PriceAt(breaks []Break, qty float64) (decimal.Decimal, bool) {
	if len(breaks) == 0 {
		return decimal.Zero, false
	}
	price := breaks[0].UnitPrice
	for _, b := range breaks {
		if b.Quantity <= qty {
			price = b.UnitPrice
		}
	}
	return price, true
}

// UnitPrice prices qty pieces of rec. A record listing suppliers yields the
// cheapest supplier; otherwise the record's own price list is used.
func UnitPrice(rec internal.Record, qty float64) (Offer, bool) {
	offers := Offers(rec, qty)
	if len(offers) == 0 {
		return Offer{}, false
	}
	return offers[0], true
}

// Offers lists every priced supplier for qty pieces, cheapest first.
func Offers(rec internal.Record, qty float64) []Offer {
	var out []Offer
	if suppliers, ok := rec["suppliers"].([]any); ok {
		for _, s := range suppliers {
			sup, ok := s.(map[string]any)
			if !ok {
				continue
			}
			if offer, ok := offerFor(internal.Record(sup), qty); ok {
				out = append(out, offer)
			}
		}
	}
	if len(out) == 0 {
		if offer, ok := offerFor(rec, qty); ok {
			if offer.SKU == "" {
				offer.SKU, _ = rec.Text("sku")
			}
			out = append(out, offer)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total.LessThan(out[j].Total) })
	return out
}

func offerFor(rec internal.Record, qty float64) (Offer, bool) {
	price, ok := PriceAt(Breaks(rec), qty)
	if !ok {
		return Offer{}, false
	}
	offer := Offer{
		Supplier:  firstText(rec, "name", "supplier"),
		SKU:       firstText(rec, "sku", "part_number"),
		Quantity:  qty,
		UnitPrice: price,
		Total:     Extend(price, qty),
	}
	if stock, ok := toFloat(rec["stock"]); ok {
		offer.Stock = int64(stock)
	} else if stock, ok := toFloat(rec["quantity_available"]); ok {
		offer.Stock = int64(stock)
	}
	return offer, true
}

// Extend multiplies a unit price by a quantity.
func Extend(unit decimal.Decimal, qty float64) decimal.Decimal {
	return unit.Mul(decimal.NewFromFloat(qty))
}

// Cost prices one line for the given number of boards.
func Cost(line Line, boards int) (LineCost, bool) {
	qty := line.Qty
	if qty <= 0 {
		qty = 1
	}
	if boards < 1 {
		boards = 1
	}
	qty *= float64(boards)
	if line.Candidate == nil {
		return LineCost{}, false
	}
	offer, ok := UnitPrice(line.Candidate, qty)
	if !ok {
		return LineCost{}, false
	}
	return LineCost{
		Reference: line.Reference,
		SKU:       offer.SKU,
		Quantity:  qty,
		UnitPrice: offer.UnitPrice,
		LineTotal: offer.Total,
		Supplier:  offer.Supplier,
	}, true
}

// BOMCost prices every line for boards assemblies. Lines are returned most
// expensive first and the total is rounded to cents.
func BOMCost(lines []Line, boards int) Summary {
	if boards < 1 {
		boards = 1
	}
	s := Summary{Boards: boards, Total: decimal.Zero, Currency: Currency, Lines: []LineCost{}}
	for _, line := range lines {
		cost, ok := Cost(line, boards)
		if !ok {
			s.Unpriced++
			s.Unmatched = append(s.Unmatched, line.Reference)
			continue
		}
		s.Priced++
		s.Total = s.Total.Add(cost.LineTotal)
		s.Lines = append(s.Lines, cost)
	}
	sort.SliceStable(s.Lines, func(i, j int) bool {
		return s.Lines[i].LineTotal.GreaterThan(s.Lines[j].LineTotal)
	})
	s.Total = s.Total.Round(2)
	return s
}

func firstText(rec internal.Record, keys ...string) string {
	for _, k := range keys {
		if s, ok := rec.Text(k); ok {
			return s
		}
	}
	return ""
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "$"))
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
