package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxSummaryFieldChars = 200

// ParseStructuredSummary decodes the summary stage's structured JSON
// emission. Model output is frequently fenced in markdown; the fence is
// stripped before decoding. The decoded object is normalized in place:
// model_confidence clamped to [0,100], risk score clamped to [0,10], risk
// level defaulted to Medium, and the two plaintext fields truncated to
// their 200-char cap.
func ParseStructuredSummary(raw string) (*StructuredSummary, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var summary StructuredSummary
	if err := json.Unmarshal([]byte(trimmed), &summary); err != nil {
		return nil, fmt.Errorf("structured summary: %w", err)
	}
	if summary.FinalSignal != "Buy" && summary.FinalSignal != "Sell" && summary.FinalSignal != "Hold" {
		return nil, fmt.Errorf("structured summary: invalid final_signal %q", summary.FinalSignal)
	}

	summary.ModelConfidence = clamp(summary.ModelConfidence, 0, 100)
	summary.RiskAssessment.Score = clamp(summary.RiskAssessment.Score, 0, 10)
	switch summary.RiskAssessment.Level {
	case "High", "Medium", "Low":
	default:
		summary.RiskAssessment.Level = "Medium"
	}
	summary.AnalysisSummary = truncateRunes(summary.AnalysisSummary, maxSummaryFieldChars)
	summary.InvestmentRecommendation = truncateRunes(summary.InvestmentRecommendation, maxSummaryFieldChars)
	return &summary, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
