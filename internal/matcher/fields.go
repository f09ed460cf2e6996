package matcher

import (
	"partsmatch/internal"
	"partsmatch/internal/footprint"
	"partsmatch/internal/value"
)

type Factor string

const (
	FactorMPN          Factor = "mpn"
	FactorValue        Factor = "value"
	FactorFootprint    Factor = "footprint"
	FactorManufacturer Factor = "manufacturer"
	FactorDescription  Factor = "description"
)

// Factors lists every scoring factor in reporting order.
var Factors = []Factor{FactorMPN, FactorValue, FactorFootprint, FactorManufacturer, FactorDescription}

var fieldAliases = map[Factor][]string{
	FactorMPN:          {"mpn", "MPN", "Mpn", "part_number", "Part Number", "manufacturer_part_number", "Manufacturer Part Number"},
	FactorValue:        {"value", "Value", "VALUE", "comment", "Comment"},
	FactorFootprint:    {"footprint", "Footprint", "FOOTPRINT", "package", "Package", "case", "Case"},
	FactorManufacturer: {"manufacturer", "Manufacturer", "MANUFACTURER", "mfr", "Mfr", "mfg", "Mfg"},
	FactorDescription:  {"description", "Description", "DESCRIPTION", "desc", "Desc"},
}

// FieldValue returns the first non-blank value among the key spellings
// accepted for f. BOM lines and catalog parts are read the same way.
func FieldValue(rec internal.Record, f Factor) (string, bool) {
	for _, key := range fieldAliases[f] {
		if s, ok := rec.Text(key); ok {
			return s, true
		}
	}
	return "", false
}

func FieldAliases(f Factor) []string {
	return append([]string(nil), fieldAliases[f]...)
}

func ExtractValue(rec internal.Record) (value.Parsed, bool) {
	s, ok := FieldValue(rec, FactorValue)
	if !ok {
		return value.Parsed{}, false
	}
	return value.Parse(s), true
}

func ExtractFootprint(rec internal.Record) (footprint.Parsed, bool) {
	s, ok := FieldValue(rec, FactorFootprint)
	if !ok {
		return footprint.Parsed{}, false
	}
	return footprint.Parse(s), true
}

type fields map[Factor]string

func extractFields(rec internal.Record) fields {
	out := fields{}
	for _, f := range Factors {
		if s, ok := FieldValue(rec, f); ok {
			out[f] = s
		}
	}
	return out
}
