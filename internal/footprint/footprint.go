// Package footprint parses package and footprint names and decides whether
// two of them describe interchangeable physical packages.
package footprint

import (
	"regexp"
	"strconv"
	"strings"
)

type Parsed struct {
	Original     string   `json:"original"`
	PackageType  string   `json:"package_type,omitempty"`
	SizeImperial string   `json:"size_imperial,omitempty"`
	SizeMetric   string   `json:"size_metric,omitempty"`
	PinCount     *int     `json:"pin_count"`
	Pitch        *float64 `json:"pitch"`
	Canonical    string   `json:"canonical"`
}

const PackageChip = "chip"

var (
	rePitch     = regexp.MustCompile(`(?i)P(\d+(?:\.\d+)?)\s*mm`)
	reDimension = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*x\s*(\d+(?:\.\d+)?)\s*mm`)
	reSeparator = regexp.MustCompile(`[_\-\s]+`)
	rePinCount  = regexp.MustCompile(`-(\d+)$`)
	reKiCadChip = regexp.MustCompile(`(?i)(?:^|-)(\d{4})-(\d{4})metric(?:-|$)`)
)

// Parse never fails; an empty or unrecognised input yields a descriptor
// whose canonical name is the cleaned input.
func Parse(text string) Parsed {
	out := Parsed{Original: text}

	work := strings.TrimSpace(text)
	if i := strings.LastIndex(work, ":"); i >= 0 {
		work = work[i+1:]
	}

	// Stripping is repeated because removing one token can splice a new one
	// together; Normalize must be idempotent.
	for {
		before := work
		if loc := rePitch.FindStringSubmatchIndex(work); loc != nil {
			if out.Pitch == nil {
				if p, err := strconv.ParseFloat(work[loc[2]:loc[3]], 64); err == nil {
					out.Pitch = &p
				}
			}
			work = work[:loc[0]] + work[loc[1]:]
		}
		if loc := reDimension.FindStringIndex(work); loc != nil {
			work = work[:loc[0]] + work[loc[1]:]
		}
		if work == before {
			break
		}
	}

	work = reSeparator.ReplaceAllString(strings.TrimSpace(work), "-")
	work = strings.Trim(work, "-")

	if metric, ok := imperialToMetric[work]; ok {
		return out.chip(work, metric)
	}
	if imperial, ok := metricToImperial[work]; ok {
		return out.chip(imperial, work)
	}
	if m := reKiCadChip.FindStringSubmatch(work); m != nil && imperialToMetric[m[1]] == m[2] {
		return out.chip(m[1], m[2])
	}

	out.Canonical = work
	if canonical, ok := aliasLookup[strings.ToUpper(work)]; ok {
		out.Canonical = canonical
	}
	out.PackageType = packageFamily(work)
	out.PinCount = pinCount(work, out.Canonical)
	return out
}

func (p Parsed) chip(imperial, metric string) Parsed {
	pins := 2
	p.PackageType = PackageChip
	p.SizeImperial = imperial
	p.SizeMetric = metric
	p.PinCount = &pins
	p.Canonical = imperial
	return p
}

func pinCount(cleaned, canonical string) *int {
	if n, ok := knownPinCounts[strings.ToUpper(canonical)]; ok {
		return &n
	}
	for _, s := range []string{cleaned, canonical} {
		if m := rePinCount.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return &n
			}
		}
	}
	return nil
}

// packageFamily returns the longest family name found in the token so that
// TSSOP is not reported as SOP; ties keep table order.
func packageFamily(token string) string {
	upper := strings.ToUpper(token)
	best := ""
	for _, family := range packageFamilies {
		if len(family) > len(best) && strings.Contains(upper, family) {
			best = family
		}
	}
	return best
}

// aliasKey resolves a canonical name to its alias-table entry, or to itself
// when the table has none.
func aliasKey(canonical string) string {
	upper := strings.ToUpper(canonical)
	if entry, ok := aliasLookup[upper]; ok {
		return strings.ToUpper(entry)
	}
	return upper
}

// IsCompatible is symmetric and reflexive.
func (p Parsed) IsCompatible(other Parsed) bool {
	if aliasKey(p.Canonical) == aliasKey(other.Canonical) {
		return true
	}
	if p.SizeImperial != "" && other.SizeMetric != "" && imperialToMetric[p.SizeImperial] == other.SizeMetric {
		return true
	}
	if p.SizeMetric != "" && other.SizeImperial != "" && metricToImperial[p.SizeMetric] == other.SizeImperial {
		return true
	}
	if p.SizeImperial != "" && p.SizeImperial == other.SizeImperial {
		return true
	}
	return p.SizeMetric != "" && p.SizeMetric == other.SizeMetric
}

func Compatible(a, b string) bool {
	return Parse(a).IsCompatible(Parse(b))
}

// Normalize returns the canonical package name for text.
func Normalize(text string) string {
	return Parse(text).Canonical
}

// EquivalentSizes lists code followed by its imperial or metric counterpart.
// Codes outside the chip table come back alone.
func EquivalentSizes(code string) []string {
	out := []string{code}
	if metric, ok := imperialToMetric[code]; ok {
		out = append(out, metric)
	}
	if imperial, ok := metricToImperial[code]; ok && imperial != code {
		out = append(out, imperial)
	}
	return out
}

// MetricSize returns the metric code for an imperial chip size.
func MetricSize(imperial string) (string, bool) {
	m, ok := imperialToMetric[imperial]
	return m, ok
}

// ImperialSize returns the imperial code for a metric chip size.
func ImperialSize(metric string) (string, bool) {
	i, ok := metricToImperial[metric]
	return i, ok
}
