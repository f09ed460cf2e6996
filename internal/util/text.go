package util

import (
	"regexp"
	"strings"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»“”]`)
	reNonAllowed = regexp.MustCompile(`[^A-Z0-9µΩ\-/\s.%±]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// NormalizeText upper-cases free text from BOM headers and part descriptions
// and reduces it to the characters that carry meaning for search.
func NormalizeText(input string) string {
	s := strings.ToUpper(input)
	repl := strings.NewReplacer("×", "X", "*", "X", "Μ", "µ", ",", " ", ";", " ", "(", " ", ")", " ")
	s = repl.Replace(s)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeCode reduces a part number to the characters distributors keep
// when they index MPNs and SKUs.
func NormalizeCode(input string) string {
	s := strings.ToUpper(input)
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' || r == '.' || r == '#' || r == '+' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func Tokenize(input string) []string {
	norm := NormalizeText(input)
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), ".-/")
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// LooksLikeCode reports whether input reads like a part number rather than
// words: at least three characters mixing ASCII letters and digits.
func LooksLikeCode(input string) bool {
	input = strings.TrimSpace(input)
	if len(input) < 3 {
		return false
	}
	isLetter := func(r rune) bool { return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') }
	isDigit := func(r rune) bool { return r >= '0' && r <= '9' }
	return strings.IndexFunc(input, isLetter) >= 0 && strings.IndexFunc(input, isDigit) >= 0
}

// DiceCoefficient is the Dice overlap of the two strings' adjacent
// rune pairs, counted as multisets.
func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	counts := make(map[[2]rune]int, len(rb)-1)
	for i := 1; i < len(rb); i++ {
		counts[[2]rune{rb[i-1], rb[i]}]++
	}
	shared := 0
	for i := 1; i < len(ra); i++ {
		k := [2]rune{ra[i-1], ra[i]}
		if counts[k] > 0 {
			counts[k]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ra)-1+len(rb)-1)
}
