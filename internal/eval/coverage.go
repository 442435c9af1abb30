package eval

import (
	"math"
	"strings"
)

// Covered reports whether keyword is present in text. text must already be
// lower-cased. "hara" also matches "hazard analysis"; "verification_plan"
// matches text containing both "verification" and "plan", or "test plan".
// Any other keyword matches with underscores read as spaces.
func Covered(keyword, text string) bool {
	key := strings.ToLower(keyword)
	switch key {
	case "hara":
		return strings.Contains(text, "hara") || strings.Contains(text, "hazard analysis")
	case "verification_plan":
		return (strings.Contains(text, "verification") && strings.Contains(text, "plan")) ||
			strings.Contains(text, "test plan")
	default:
		return strings.Contains(text, strings.ReplaceAll(key, "_", " "))
	}
}

// Coverage counts the expected keywords found in text and returns the
// percentage rounded half to even at one decimal. An empty expectation
// yields 0.
func Coverage(expected []string, text string) (covered int, percent float64) {
	lower := strings.ToLower(text)
	for _, kw := range expected {
		if Covered(kw, lower) {
			covered++
		}
	}
	ratio := float64(covered) / float64(max(1, len(expected)))
	return covered, math.RoundToEven(ratio*1000) / 10
}
