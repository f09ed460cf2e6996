// Package value parses component values such as "4k7", "100nF" or "10R 1%"
// into comparable quantities.
package value

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Unit string

const (
	Resistance  Unit = "resistance"
	Capacitance Unit = "capacitance"
	Inductance  Unit = "inductance"
	Voltage     Unit = "voltage"
	Current     Unit = "current"
	Power       Unit = "power"
)

// Symbol is the display suffix used in formatted values.
func (u Unit) Symbol() string {
	switch u {
	case Resistance:
		return "Ω"
	case Capacitance:
		return "F"
	case Inductance:
		return "H"
	case Voltage:
		return "V"
	case Current:
		return "A"
	case Power:
		return "W"
	default:
		return ""
	}
}

const DefaultEqualTolerance = 0.01

// Parsed is the structured form of a value string. Numeric is expressed in
// base units (ohms, farads, ...). Optional parts are nil or empty when absent.
type Parsed struct {
	Original  string   `json:"original"`
	Numeric   *float64 `json:"numeric_value"`
	Unit      Unit     `json:"unit,omitempty"`
	Prefix    string   `json:"prefix,omitempty"`
	Tolerance *float64 `json:"tolerance"`
	Formatted string   `json:"formatted"`
}

func (p Parsed) HasNumeric() bool {
	return p.Numeric != nil
}

// IsCompatible reports whether two values agree within tolerancePct percent.
// Values without a numeric part fall back to a case-insensitive comparison
// of their original strings.
func (p Parsed) IsCompatible(other Parsed, tolerancePct float64) bool {
	if p.Numeric == nil || other.Numeric == nil {
		return sameText(p.Original, other.Original)
	}
	if p.Unit != "" && other.Unit != "" && p.Unit != other.Unit {
		return false
	}
	return withinRelative(*p.Numeric, *other.Numeric, tolerancePct/100)
}

// Equal compares numerically within the larger of both tolerances, 1% when
// neither declares one.
func (p Parsed) Equal(other Parsed) bool {
	if p.Numeric == nil || other.Numeric == nil {
		return sameText(p.Original, other.Original)
	}
	tol := math.Max(toleranceOr(p.Tolerance), toleranceOr(other.Tolerance))
	return withinRelative(*p.Numeric, *other.Numeric, tol)
}

func toleranceOr(t *float64) float64 {
	if t == nil {
		return DefaultEqualTolerance
	}
	return *t
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func withinRelative(a, b, tol float64) bool {
	if a == 0 || b == 0 {
		return a == 0 && b == 0
	}
	diff := math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
	return diff <= tol
}

var (
	reTolerance  = regexp.MustCompile(`±?\s*(\d+(?:\.\d+)?)\s*%$`)
	reRNotation  = regexp.MustCompile(`^(\d+)[Rr](\d*)$`)
	reInfix      = regexp.MustCompile(`^(\d+)([pnuµμmkKMgGtT])(\d+)$`)
	reStructured = regexp.MustCompile(`^([-+]?(?:\d+(?:\.\d+)?|\.\d+))\s*([pnuµμmkKMgGtTPNU])?\s*([A-Za-zΩω]*)$`)
)

// Mega is the only prefix resolved case-sensitively: "M" is 1e6 while "m"
// falls through to milli in the case-insensitive table.
var casedPrefixes = map[string]float64{
	"M": 1e6,
}

var foldedPrefixes = map[string]float64{
	"p": 1e-12,
	"n": 1e-9,
	"u": 1e-6,
	"µ": 1e-6,
	"μ": 1e-6,
	"m": 1e-3,
	"k": 1e3,
	"g": 1e9,
	"t": 1e12,
}

var unitSuffixes = map[string]Unit{
	"ohm":  Resistance,
	"ohms": Resistance,
	"Ω":    Resistance,
	"ω":    Resistance,
	"r":    Resistance,
	"f":    Capacitance,
	"h":    Inductance,
	"v":    Voltage,
	"a":    Current,
	"w":    Power,
}

func lookupPrefix(p string) (string, float64, bool) {
	if p == "" {
		return "", 1, false
	}
	if m, ok := casedPrefixes[p]; ok {
		return p, m, true
	}
	lower := strings.ToLower(p)
	if m, ok := foldedPrefixes[lower]; ok {
		if lower == "μ" {
			lower = "µ"
		}
		return lower, m, true
	}
	return "", 1, false
}

func lookupUnit(suffix string) Unit {
	if suffix == "" {
		return ""
	}
	return unitSuffixes[strings.ToLower(suffix)]
}

// Parse never fails: strings it cannot read come back with Numeric nil and
// Formatted equal to the input. Original keeps the input verbatim, including
// surrounding whitespace; parsing itself works on the trimmed text.
func Parse(text string) Parsed {
	out := Parsed{Original: text}
	work := strings.TrimSpace(text)

	if loc := reTolerance.FindStringSubmatchIndex(work); loc != nil {
		if tol, err := strconv.ParseFloat(work[loc[2]:loc[3]], 64); err == nil {
			tol /= 100
			out.Tolerance = &tol
			work = strings.TrimSpace(work[:loc[0]])
		}
	}

	if m := reRNotation.FindStringSubmatch(work); m != nil {
		frac := m[2]
		if frac == "" {
			frac = "0"
		}
		if v, err := strconv.ParseFloat(m[1]+"."+frac, 64); err == nil {
			return out.with(v, Resistance, "")
		}
	}

	if m := reInfix.FindStringSubmatch(work); m != nil {
		if prefix, mult, ok := lookupPrefix(m[2]); ok {
			if v, err := strconv.ParseFloat(m[1]+"."+m[3], 64); err == nil {
				return out.with(v*mult, "", prefix)
			}
		}
	}

	if m := reStructured.FindStringSubmatch(work); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		prefix, mult, hasPrefix := lookupPrefix(m[2])
		if err == nil && (m[2] == "" || hasPrefix) {
			return out.with(v*mult, lookupUnit(m[3]), prefix)
		}
	}

	if v, err := strconv.ParseFloat(strings.ReplaceAll(work, ",", ""), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return out.with(v, "", "")
	}

	out.Formatted = text
	return out
}

func (p Parsed) with(v float64, unit Unit, prefix string) Parsed {
	p.Numeric = &v
	p.Unit = unit
	p.Prefix = prefix
	p.Formatted = Format(v, unit)
	return p
}

var displayPrefixes = []struct {
	symbol string
	scale  float64
}{
	{"T", 1e12},
	{"G", 1e9},
	{"M", 1e6},
	{"k", 1e3},
	{"", 1},
	{"m", 1e-3},
	{"µ", 1e-6},
	{"n", 1e-9},
	{"p", 1e-12},
}

// Format renders v with the largest prefix that keeps the mantissa at or
// above one, falling back to pico for anything smaller.
func Format(v float64, unit Unit) string {
	if v == 0 {
		return "0" + unit.Symbol()
	}
	abs := math.Abs(v)
	chosen := displayPrefixes[len(displayPrefixes)-1]
	for _, dp := range displayPrefixes {
		if abs >= dp.scale {
			chosen = dp
			break
		}
	}
	return formatMantissa(v/chosen.scale) + chosen.symbol + unit.Symbol()
}

func formatMantissa(m float64) string {
	if m == math.Trunc(m) && math.Abs(m) < 1e15 {
		return strconv.FormatFloat(m, 'f', -1, 64)
	}
	s := strconv.FormatFloat(m, 'g', 3, 64)
	if strings.ContainsAny(s, "eE") {
		s = strconv.FormatFloat(m, 'f', -1, 64)
	}
	return s
}

// Match reports whether two value strings agree within tolerancePct percent.
func Match(a, b string, tolerancePct float64) bool {
	return Parse(a).IsCompatible(Parse(b), tolerancePct)
}

// Normalize returns the numeric value (nil when unreadable) and its
// canonical display form.
func Normalize(text string) (*float64, string) {
	p := Parse(text)
	return p.Numeric, p.Formatted
}
