package graph

import "strings"

// NextDebateSpeaker decides whether the bull/bear investment debate should
// continue and, if so, who speaks next. Compatible with both the English
// "Bull"/"Bear" prefixes and the Chinese "【多头"/"【空头" markers,
// defaulting to Bull when the latest speaker can't be identified.
func NextDebateSpeaker(state InvestmentDebateState, maxDebateRounds int) (speaker string, done bool) {
	maxCount := 2 * (maxDebateRounds + 1)
	if state.Count >= maxCount {
		return "Research Manager", true
	}

	latest := state.CurrentResponse
	isBull := strings.HasPrefix(latest, "Bull") || strings.Contains(latest, "【多头")
	isBear := strings.HasPrefix(latest, "Bear") || strings.Contains(latest, "【空头")

	switch {
	case isBull:
		return "Bear Researcher", false
	case isBear:
		return "Bull Researcher", false
	default:
		return "Bull Researcher", false
	}
}

// NextRiskSpeaker decides whether the three-way risk debate should continue
// and who speaks next: Risky -> Safe -> Neutral -> Risky, terminating once
// count reaches 3 * maxRiskRounds.
func NextRiskSpeaker(state RiskDebateState, maxRiskRounds int) (speaker string, done bool) {
	maxCount := 3 * maxRiskRounds
	if state.Count >= maxCount {
		return "Risk Manager", true
	}

	latest := state.LatestSpeaker
	switch {
	case strings.HasPrefix(latest, "Risky"):
		return "Safe Analyst", false
	case strings.HasPrefix(latest, "Safe"):
		return "Neutral Analyst", false
	default:
		return "Risky Analyst", false
	}
}
