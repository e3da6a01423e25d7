// Package graph implements the deterministic, sequential analysis state
// machine: per-analyst report generation, a bull/bear
// investment debate, a three-way risk debate, and a structured summary.
package graph

import (
	"sync"
	"time"

	"github.com/BaSui01/tradeflow/types"
)

// Round is one speaker turn recorded in a debate transcript.
type Round struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// InvestmentDebateState is the bull/bear debate's rolling transcript and
// bookkeeping. Rounds is the single source of truth; the flat transcripts
// are derived for display.
type InvestmentDebateState struct {
	Rounds         []Round `json:"rounds"`
	Count          int     `json:"count"` // total statements made so far
	BullHistory    string  `json:"bull_history"`
	BearHistory    string  `json:"bear_history"`
	History        string  `json:"history"` // combined, for prompt injection
	CurrentResponse string `json:"current_response"`
	LatestSpeaker  string  `json:"latest_speaker"` // e.g. "Bull Researcher", "Bear Researcher"
	JudgeDecision  string  `json:"judge_decision"`
}

// RiskDebateState is the risky/safe/neutral debate's rolling transcript.
type RiskDebateState struct {
	Rounds          []Round `json:"rounds"`
	Count           int     `json:"count"`
	RiskyHistory    string  `json:"risky_history"`
	SafeHistory     string  `json:"safe_history"`
	NeutralHistory  string  `json:"neutral_history"`
	History         string  `json:"history"`
	LatestSpeaker   string  `json:"latest_speaker"` // "Risky Analyst", "Safe Analyst", "Neutral Analyst"
	JudgeDecision   string  `json:"judge_decision"`
}

// KeyIndicators are the price levels the summary agent extracts from the
// analyst reports; absent levels stay null, never fabricated.
type KeyIndicators struct {
	EntryPrice      *float64 `json:"entry_price"`
	TargetPrice     *float64 `json:"target_price"`
	StopLoss        *float64 `json:"stop_loss"`
	SupportLevel    *float64 `json:"support_level"`
	ResistanceLevel *float64 `json:"resistance_level"`
}

// RiskAssessment is the summary agent's risk verdict.
type RiskAssessment struct {
	Level       string  `json:"level"` // High, Medium, Low
	Score       float64 `json:"score"` // 0..10
	Description string  `json:"description"`
}

// StructuredSummary is the machine-readable decision payload the summary
// stage emits.
type StructuredSummary struct {
	KeyIndicators            KeyIndicators  `json:"key_indicators"`
	ModelConfidence          float64        `json:"model_confidence"` // 0..100
	RiskAssessment           RiskAssessment `json:"risk_assessment"`
	AnalysisSummary          string         `json:"analysis_summary"`           // plaintext, <= 200 chars
	InvestmentRecommendation string         `json:"investment_recommendation"` // plaintext, <= 200 chars
	AnalysisReference        []string       `json:"analysis_reference"`
	FinalSignal              string         `json:"final_signal"` // Buy, Sell, Hold
	DataUnavailable          bool           `json:"data_unavailable,omitempty"`
}

// AnalysisState is the mutable context threaded through every node. Report
// fields are write-once per the owning stage: once a stage writes
// state.Reports[key], no later stage overwrites it.
type AnalysisState struct {
	mu sync.Mutex

	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name"`
	TradeDate   string `json:"trade_date"`
	Currency    string `json:"currency"`

	// Reports holds every "<internal_key>_report" entry, dynamically keyed
	// so new analysts need no controller changes.
	Reports map[string]string `json:"reports"`

	// Messages is the append-only fallback locator: one message per report,
	// carrying Name = "<internal_key>_report".
	Messages []types.Message `json:"messages"`

	InvestmentDebate InvestmentDebateState `json:"investment_debate_state"`
	RiskDebate       RiskDebateState       `json:"risk_debate_state"`

	TraderInvestmentPlan string `json:"trader_investment_plan"`

	// FinalTradeDecision is write-once: the first successful write wins.
	finalDecisionSet   bool
	FinalTradeDecision string `json:"final_trade_decision"`

	StructuredSummary *StructuredSummary `json:"structured_summary,omitempty"`

	LastError string `json:"last_error,omitempty"`
}

// NewAnalysisState seeds an empty state for one analysis run.
func NewAnalysisState(symbol, companyName, tradeDate, currency string) *AnalysisState {
	return &AnalysisState{
		Symbol:      symbol,
		CompanyName: companyName,
		TradeDate:   tradeDate,
		Currency:    currency,
		Reports:     make(map[string]string),
	}
}

// WriteReport performs the belt-and-suspenders double write: the Reports
// map entry keyed "<key>_report" and an append-only message with
// Name = "<key>_report" as a fallback locator. There is no separate
// per-analyst struct field; Reports is the typed home of every report. A
// key already present in Reports is left untouched; once written, a report
// is never overwritten by a later stage.
func (s *AnalysisState) WriteReport(internalKey, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	field := internalKey + "_report"
	if _, exists := s.Reports[field]; exists {
		return
	}
	s.Reports[field] = content
	s.Messages = append(s.Messages, types.Message{
		Role:      types.RoleAssistant,
		Content:   content,
		Name:      field,
		Timestamp: time.Now(),
	})
}

// Report reads back a previously written report by internal key.
func (s *AnalysisState) Report(internalKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Reports[internalKey+"_report"]
	return v, ok
}

// AllReports returns a snapshot copy of every "<key>_report" entry written
// so far, safe for a concurrent reader (e.g. the result hydrator) to range
// over without racing a still-running graph.
func (s *AnalysisState) AllReports() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.Reports))
	for k, v := range s.Reports {
		out[k] = v
	}
	return out
}

// FinalDecision returns the final trade decision and whether it has been
// set yet.
func (s *AnalysisState) FinalDecision() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FinalTradeDecision, s.finalDecisionSet
}

// SetFinalTradeDecision is write-once: subsequent calls are no-ops, so a
// racing or retried Stage-C risk-judge node cannot clobber the first
// decision.
func (s *AnalysisState) SetFinalTradeDecision(decision string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalDecisionSet {
		return
	}
	s.finalDecisionSet = true
	s.FinalTradeDecision = decision
}

// SetLastError records a node failure without aborting the run; the
// summary stage still executes with the partial state.
func (s *AnalysisState) SetLastError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = err.Error()
}
