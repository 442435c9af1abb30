// Package risk implements the coarse keyword-based risk classifier.
//
// This is a demo heuristic, not a hazard analysis.
package risk

import (
	"fmt"
	"strings"
)

// Level is a coarse risk classification.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

func (l Level) String() string { return string(l) }

// ParseLevel parses a level name, ignoring case and surrounding space.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case Low:
		return Low, nil
	case Medium:
		return Medium, nil
	case High:
		return High, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

const (
	highWeight   = 2
	mediumWeight = 1

	highThreshold   = 3
	mediumThreshold = 1
)

// The two sets are disjoint. Matching is an unanchored substring test, so
// "train" also matches "constraint".
var (
	highRiskKeywords = []string{
		"brake",
		"braking",
		"steering",
		"train",
		"railway",
		"high-voltage",
		"high voltage",
		"battery",
		"bms",
		"powertrain",
		"airbag",
		"collision avoidance",
	}

	mediumRiskKeywords = []string{
		"monitor",
		"monitoring",
		"diagnostic",
		"diagnostics",
		"emergency",
		"fail-safe",
		"failsafe",
		"stability control",
		"safety monitoring",
	}
)

// Score sums the keyword weights found in description. Each keyword counts
// at most once.
func Score(description string) int {
	text := strings.ToLower(description)
	score := 0
	for _, kw := range highRiskKeywords {
		if strings.Contains(text, kw) {
			score += highWeight
		}
	}
	for _, kw := range mediumRiskKeywords {
		if strings.Contains(text, kw) {
			score += mediumWeight
		}
	}
	return score
}

// Estimate classifies description as low, medium or high risk.
func Estimate(description string) Level {
	return Classify(Score(description))
}

// Classify maps a keyword score onto a level.
func Classify(score int) Level {
	switch {
	case score >= highThreshold:
		return High
	case score >= mediumThreshold:
		return Medium
	default:
		return Low
	}
}
