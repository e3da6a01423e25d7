package graph

import (
	"fmt"
	"strings"
	"time"
)

// sectionTitle builds the sentinel line the controller checks before
// appending a round's content, preventing the same round from being
// appended twice across retries.
func sectionTitle(speaker string, round int) string {
	return fmt.Sprintf("### %s — Round %d", speaker, round)
}

// AppendDebateRound appends one speaker's statement to the investment
// debate, updating both per-side and combined history, guarded by the
// section-title anti-duplication check.
func AppendDebateRound(state *InvestmentDebateState, speaker, content string, round int) {
	title := sectionTitle(speaker, round)
	if strings.Contains(state.History, title) {
		return // already appended; retries are idempotent
	}

	entry := title + "\n" + content
	state.Rounds = append(state.Rounds, Round{Speaker: speaker, Content: content, Timestamp: time.Now()})
	state.Count++
	state.CurrentResponse = speaker + ": " + content
	state.LatestSpeaker = speaker
	state.History = appendSection(state.History, entry)

	if strings.HasPrefix(speaker, "Bull") {
		state.BullHistory = appendSection(state.BullHistory, entry)
	} else if strings.HasPrefix(speaker, "Bear") {
		state.BearHistory = appendSection(state.BearHistory, entry)
	}
}

// AppendRiskRound appends one speaker's statement to the three-way risk
// debate, mirroring AppendDebateRound's anti-duplication guard.
func AppendRiskRound(state *RiskDebateState, speaker, content string, round int) {
	title := sectionTitle(speaker, round)
	if strings.Contains(state.History, title) {
		return
	}

	entry := title + "\n" + content
	state.Rounds = append(state.Rounds, Round{Speaker: speaker, Content: content, Timestamp: time.Now()})
	state.Count++
	state.LatestSpeaker = speaker
	state.History = appendSection(state.History, entry)

	switch {
	case strings.HasPrefix(speaker, "Risky"):
		state.RiskyHistory = appendSection(state.RiskyHistory, entry)
	case strings.HasPrefix(speaker, "Safe"):
		state.SafeHistory = appendSection(state.SafeHistory, entry)
	case strings.HasPrefix(speaker, "Neutral"):
		state.NeutralHistory = appendSection(state.NeutralHistory, entry)
	}
}

func appendSection(existing, entry string) string {
	if existing == "" {
		return entry
	}
	return existing + "\n\n" + entry
}

// RebuttalPrompt builds the round-specific human message for rounds 1..N:
// the opening Stage-A reports context, the speaker's own prior rounds
// labelled "回顾 / my previous", and the opponent's prior rounds labelled
// "回顾 / opponent". The system prompt stays static; only this message
// varies per round, keeping the conversation cache-friendly.
func RebuttalPrompt(stageAReports string, ownHistory, opponentHistory string) string {
	var b strings.Builder
	b.WriteString("## Stage A reports\n")
	b.WriteString(stageAReports)
	b.WriteString("\n\n## 回顾 / my previous\n")
	if ownHistory == "" {
		b.WriteString("(none yet)")
	} else {
		b.WriteString(ownHistory)
	}
	b.WriteString("\n\n## 回顾 / opponent\n")
	if opponentHistory == "" {
		b.WriteString("(none yet)")
	} else {
		b.WriteString(opponentHistory)
	}
	return b.String()
}
