package bom

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"partsmatch/internal"
)

type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type MissingData struct {
	Value        int `json:"value"`
	Footprint    int `json:"footprint"`
	Manufacturer int `json:"manufacturer"`
}

type Analysis struct {
	TotalComponents  int            `json:"total_components"`
	UniqueComponents int            `json:"unique_components"`
	Categories       map[string]int `json:"categories"`
	MostCommonValues []ValueCount   `json:"most_common_values"`
	HasPricing       bool           `json:"has_pricing"`
	MissingData      MissingData    `json:"missing_data"`
}

const topValues = 10

var (
	analysisRefKeys       = []string{"reference", "ref", "designator", "refdes"}
	analysisValueKeys     = []string{"value", "part", "component"}
	analysisQtyKeys       = []string{"quantity", "qty", "count"}
	analysisFootprintKeys = []string{"footprint", "package", "case"}
	analysisMfrKeys       = []string{"manufacturer", "mfr", "mfg"}
	priceKeys             = []string{"price", "cost", "unit price", "unit cost", "extended price"}

	categoryNames = map[string]string{
		"R":   "Resistors",
		"C":   "Capacitors",
		"L":   "Inductors",
		"D":   "Diodes",
		"Q":   "Transistors",
		"U":   "ICs",
		"J":   "Connectors",
		"SW":  "Switches",
		"F":   "Fuses",
		"T":   "Transformers",
		"Y":   "Crystals",
		"TP":  "Test Points",
		"M":   "Mechanical",
		"BT":  "Batteries",
		"LED": "LEDs",
	}

	reRefPrefix = regexp.MustCompile(`^([A-Za-z]+)`)
	reRefSplit  = regexp.MustCompile(`[,;\s]+`)
)

// Analyze summarises a BOM. Quantities that are not numbers count as one.
// Columns are found by lower-cased header name; the first candidate present
// in any record wins.
func Analyze(records []internal.Record) Analysis {
	a := Analysis{
		Categories:       map[string]int{},
		MostCommonValues: []ValueCount{},
	}
	if len(records) == 0 {
		return a
	}

	cols := columnSet(records)
	refCol := pickColumn(cols, analysisRefKeys)
	valueCol := pickColumn(cols, analysisValueKeys)
	qtyCol := pickColumn(cols, analysisQtyKeys)
	fpCol := pickColumn(cols, analysisFootprintKeys)
	mfrCol := pickColumn(cols, analysisMfrKeys)

	a.UniqueComponents = len(records)
	if qtyCol == "" {
		a.TotalComponents = len(records)
	}

	valueCounts := map[string]int{}
	var valueOrder []string
	for _, rec := range records {
		lower := lowerKeys(rec)

		if qtyCol != "" {
			a.TotalComponents += quantityOf(rec, lower[qtyCol])
		}
		if refCol != "" {
			if refs, ok := rec.Text(lower[refCol]); ok {
				for _, ref := range reRefSplit.Split(refs, -1) {
					m := reRefPrefix.FindStringSubmatch(ref)
					if m == nil {
						continue
					}
					a.Categories[categoryName(strings.ToUpper(m[1]))]++
				}
			}
		}
		if valueCol != "" {
			if v, ok := rec.Text(lower[valueCol]); ok {
				if _, seen := valueCounts[v]; !seen {
					valueOrder = append(valueOrder, v)
				}
				valueCounts[v]++
			} else {
				a.MissingData.Value++
			}
		}
		if fpCol != "" {
			if _, ok := rec.Text(lower[fpCol]); !ok {
				a.MissingData.Footprint++
			}
		}
		if mfrCol != "" {
			if _, ok := rec.Text(lower[mfrCol]); !ok {
				a.MissingData.Manufacturer++
			}
		}
	}

	for _, k := range priceKeys {
		if _, ok := cols[k]; ok {
			a.HasPricing = true
			break
		}
	}

	sort.SliceStable(valueOrder, func(i, j int) bool {
		return valueCounts[valueOrder[i]] > valueCounts[valueOrder[j]]
	})
	for i, v := range valueOrder {
		if i == topValues {
			break
		}
		a.MostCommonValues = append(a.MostCommonValues, ValueCount{Value: v, Count: valueCounts[v]})
	}
	return a
}

func categoryName(prefix string) string {
	if name, ok := categoryNames[prefix]; ok {
		return name
	}
	return "Other (" + prefix + ")"
}

func quantityOf(rec internal.Record, key string) int {
	s, ok := rec.Text(key)
	if !ok {
		return 1
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1
	}
	return int(n)
}

func columnSet(records []internal.Record) map[string]struct{} {
	out := map[string]struct{}{}
	for _, rec := range records {
		for k := range rec {
			out[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
		}
	}
	return out
}

func pickColumn(cols map[string]struct{}, candidates []string) string {
	for _, c := range candidates {
		if _, ok := cols[c]; ok {
			return c
		}
		spaced := strings.ReplaceAll(c, "_", " ")
		if _, ok := cols[spaced]; ok {
			return spaced
		}
	}
	return ""
}

func lowerKeys(rec internal.Record) map[string]string {
	out := make(map[string]string, len(rec))
	for k := range rec {
		out[strings.ToLower(strings.TrimSpace(k))] = k
	}
	return out
}
