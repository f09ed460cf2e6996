package util

import "strings"

func StringPtr(s string) *string {
	return &s
}

// NonEmpty returns nil for blank strings.
func NonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func FloatPtr(f float64) *float64 {
	return &f
}
