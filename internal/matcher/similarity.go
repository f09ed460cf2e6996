package matcher

import (
	"strings"

	"github.com/xrash/smetrics"
)

// Similarity is one minus the unit-cost edit distance over the longer
// string's length, compared case-insensitively after trimming.
func Similarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	d := smetrics.WagnerFischer(a, b, 1, 1, 1)
	return clamp01(1 - float64(d)/float64(longest))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
