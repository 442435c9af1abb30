package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"safetycopilot/internal/risk"
)

// Report is one evaluated system.
type Report struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Domain          string     `json:"domain"`
	Risk            risk.Level `json:"risk"`
	ExpectedTopics  int        `json:"expected_topics"`
	CoveredTopics   int        `json:"covered_topics"`
	CoveragePercent float64    `json:"coverage_%"`
}

// Stats summarises a batch.
type Stats struct {
	Systems       int     `json:"systems"`
	MeanCoverage  float64 `json:"mean_coverage_%"`
	FullyCovered  int     `json:"fully_covered"`
	ExpectedTotal int     `json:"expected_topics"`
	CoveredTotal  int     `json:"covered_topics"`
}

// Summary aggregates reports. The mean is rounded to one decimal.
func Summary(reports []Report) Stats {
	s := Stats{Systems: len(reports)}
	if len(reports) == 0 {
		return s
	}
	var sum float64
	for _, r := range reports {
		sum += r.CoveragePercent
		s.ExpectedTotal += r.ExpectedTopics
		s.CoveredTotal += r.CoveredTopics
		if r.ExpectedTopics > 0 && r.CoveredTopics == r.ExpectedTopics {
			s.FullyCovered++
		}
	}
	mean := sum / float64(len(reports))
	s.MeanCoverage = math.RoundToEven(mean*10) / 10
	return s
}

// WriteJSON writes the reports as an indented JSON array.
func WriteJSON(w io.Writer, reports []Report) error {
	if reports == nil {
		reports = []Report{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

var tableColumns = []string{"id", "name", "domain", "risk", "expected_topics", "covered_topics", "coverage_%"}

// RenderTable renders the reports as an aligned table followed by a
// one-line summary.
func RenderTable(reports []Report) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.ID,
			r.Name,
			r.Domain,
			string(r.Risk),
			fmt.Sprintf("%d", r.ExpectedTopics),
			fmt.Sprintf("%d", r.CoveredTopics),
			fmt.Sprintf("%.1f", r.CoveragePercent),
		})
	}

	widths := make([]int, len(tableColumns))
	for i, h := range tableColumns {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	header := make([]string, len(tableColumns))
	for i, h := range tableColumns {
		header[i] = headerStyle.Render(pad(h, widths[i]))
	}
	sb.WriteString(strings.Join(header, "  "))
	sb.WriteString("\n")

	sep := make([]string, len(tableColumns))
	for i := range tableColumns {
		sep[i] = mutedStyle.Render(strings.Repeat("─", widths[i]))
	}
	sb.WriteString(strings.Join(sep, "  "))
	sb.WriteString("\n")

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			padded := pad(cell, widths[i])
			if i == 3 {
				padded = riskStyle(risk.Level(cell)).Render(padded)
			}
			cells[i] = padded
		}
		sb.WriteString(strings.Join(cells, "  "))
		sb.WriteString("\n")
	}

	s := Summary(reports)
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%d systems, mean coverage %.1f%%, %d fully covered",
		s.Systems, s.MeanCoverage, s.FullyCovered)))
	sb.WriteString("\n")
	return sb.String()
}

func riskStyle(l risk.Level) lipgloss.Style {
	switch l {
	case risk.High:
		return highStyle
	case risk.Medium:
		return mediumStyle
	default:
		return lowStyle
	}
}

func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
