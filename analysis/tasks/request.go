// Package tasks implements the analysis task lifecycle: submit, run,
// track, cancel, and reclaim equity-analysis tasks over the
// agent/persistence.TaskStore family, extended with analysis-domain fields.
package tasks

import (
	"fmt"

	"github.com/BaSui01/tradeflow/market/providers"
)

// AnalysisTaskType is the AsyncTask.Type value this manager creates.
const AnalysisTaskType = "equity_analysis"

// MaxBatchSize bounds a single batch submission.
const MaxBatchSize = 10

// AnalysisRequest is the user-facing submission payload.
type AnalysisRequest struct {
	Symbol       string   `json:"symbol"`
	Analysts     []string `json:"analysts"`
	DebateRounds int      `json:"debate_rounds"`
	RiskRounds   int      `json:"risk_rounds"`
	UserID       string   `json:"user_id,omitempty"`
}

// Validate enforces submission-time validation; a violation is a 4xx with
// no side effects.
func (r AnalysisRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("analysis request: symbol is required")
	}
	if len(r.Analysts) == 0 {
		return fmt.Errorf("analysis request: at least one analyst is required")
	}
	if r.DebateRounds < 0 || r.RiskRounds < 0 {
		return fmt.Errorf("analysis request: rounds must be non-negative")
	}
	return nil
}

func (r AnalysisRequest) toInput() map[string]any {
	return map[string]any{
		"symbol":        r.Symbol,
		"analysts":      r.Analysts,
		"debate_rounds": r.DebateRounds,
		"risk_rounds":   r.RiskRounds,
		"user_id":       r.UserID,
		"market":        string(providers.ParseSymbol(r.Symbol).Market),
	}
}
