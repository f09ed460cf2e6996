package pipeline

import (
	"strings"

	"partsmatch/internal/bom"
)

type DetectResult struct {
	IsBOM  bool
	Score  float64
	Reason string
}

const DefaultDetectThreshold = 0.45

var detectKeywords = []string{"bom", "bill of materials", "parts list", "quote", "rfq", "quotation", "qty", "quantity", "mpn", "designator"}

// DetectBOM scores a message for carrying a bill of materials. Keywords in
// the subject weigh twice as much as in the body.
func DetectBOM(subject, text, html string, attachmentNames []string, threshold float64) DetectResult {
	if threshold <= 0 {
		threshold = DefaultDetectThreshold
	}
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if containsWord(subject, kw) {
			score += 0.2
		}
		if containsWord(text, kw) || containsWord(html, kw) {
			score += 0.1
		}
	}

	qtyHits := countQtyPatterns(text)
	if qtyHits >= 2 {
		score += 0.2
	} else if qtyHits == 1 {
		score += 0.1
	}

	for _, name := range attachmentNames {
		if bom.IsBOMAttachment(name) {
			score += 0.35
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isBOM := score >= threshold
	reason := "rules_negative"
	if isBOM {
		reason = "rules_positive"
	}

	return DetectResult{IsBOM: isBOM, Score: score, Reason: reason}
}

// containsWord matches kw only where it is not part of a longer word.
func containsWord(s, kw string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func countQtyPatterns(text string) int {
	count := 0
	for i := 0; i < len(text); i++ {
		if text[i] >= '0' && text[i] <= '9' {
			count++
			for i+1 < len(text) && text[i+1] >= '0' && text[i+1] <= '9' {
				i++
			}
		}
	}
	return count
}
