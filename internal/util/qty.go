package util

import (
	"regexp"
	"strconv"
	"strings"
)

const unitAlternation = `pcs|pc|pieces|piece|ea|each|units|unit|reels|reel|rolls|roll|m|ft|kg`

var (
	unitPattern     = regexp.MustCompile(`(?i)\b(` + unitAlternation + `)\b`)
	numberPattern   = regexp.MustCompile(`(?i)(?:^|[^0-9.,A-Za-z])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)`)
	withUnitPattern = regexp.MustCompile(`(?i)(?:^|[^0-9.,A-Za-z])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)\s*(` + unitAlternation + `)\b`)
	reThousandsDot  = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reThousandsComa = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
)

type ParsedQty struct {
	Qty    *float64
	Unit   *string
	QtyRaw *string
}

// ParseQty reads a quantity cell such as "1,000 pcs", "2.5 m" or "qty: 4". The
// last number followed by a unit wins, then the last bare number.
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, "\u00A0", " ")

	qtyRaw := ""
	qtyToken := ""

	if wm := withUnitPattern.FindAllStringSubmatch(line, -1); len(wm) > 0 {
		last := wm[len(wm)-1]
		qtyRaw = strings.TrimSpace(last[1] + " " + last[2])
		qtyToken = strings.TrimSpace(last[1])
	} else if nm := numberPattern.FindAllStringSubmatch(line, -1); len(nm) > 0 {
		last := nm[len(nm)-1]
		qtyRaw = strings.TrimSpace(last[1])
		qtyToken = strings.TrimSpace(last[1])
	}

	var qtyPtr *float64
	if qtyToken != "" {
		norm := normalizeNumericToken(qtyToken)
		if parsed, err := strconv.ParseFloat(norm, 64); err == nil {
			qtyPtr = FloatPtr(parsed)
		}
	}

	var unitPtr *string
	if um := unitPattern.FindStringSubmatch(line); len(um) > 1 {
		u := normalizeUnit(um[1])
		unitPtr = &u
	}

	var qtyRawPtr *string
	if qtyRaw != "" {
		qtyRawPtr = &qtyRaw
	}

	return ParsedQty{Qty: qtyPtr, Unit: unitPtr, QtyRaw: qtyRawPtr}
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch u {
	case "pcs", "pc", "pieces", "piece", "ea", "each", "units", "unit":
		return "pcs"
	case "reels", "reel":
		return "reel"
	case "rolls", "roll":
		return "roll"
	default:
		return u
	}
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if reThousandsDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if reThousandsComa.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
