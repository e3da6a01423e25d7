package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendDebateRound_TracksCounters(t *testing.T) {
	state := &InvestmentDebateState{}
	AppendDebateRound(state, "Bull Researcher", "opening", 0)
	AppendDebateRound(state, "Bear Researcher", "rebuttal", 1)

	assert.Equal(t, 2, state.Count)
	assert.Equal(t, "Bear Researcher", state.LatestSpeaker)
	assert.Contains(t, state.BullHistory, "opening")
	assert.Contains(t, state.BearHistory, "rebuttal")
	assert.Contains(t, state.History, "opening")
	assert.Contains(t, state.History, "rebuttal")
}

func TestAppendDebateRound_AntiDuplication(t *testing.T) {
	state := &InvestmentDebateState{}
	AppendDebateRound(state, "Bull Researcher", "opening", 0)
	AppendDebateRound(state, "Bull Researcher", "opening retried", 0) // same section title

	assert.Equal(t, 1, state.Count, "retried append with the same section title must be a no-op")
}

func TestAppendRiskRound_TracksPerSideHistory(t *testing.T) {
	state := &RiskDebateState{}
	AppendRiskRound(state, "Risky Analyst", "go big", 0)
	AppendRiskRound(state, "Safe Analyst", "hedge", 1)
	AppendRiskRound(state, "Neutral Analyst", "balance", 2)

	assert.Equal(t, 3, state.Count)
	assert.Contains(t, state.RiskyHistory, "go big")
	assert.Contains(t, state.SafeHistory, "hedge")
	assert.Contains(t, state.NeutralHistory, "balance")
}

func TestRebuttalPrompt_LabelsBothSides(t *testing.T) {
	prompt := RebuttalPrompt("stage a context", "my prior round", "opponent's prior round")
	assert.Contains(t, prompt, "回顾 / my previous")
	assert.Contains(t, prompt, "回顾 / opponent")
	assert.Contains(t, prompt, "my prior round")
	assert.Contains(t, prompt, "opponent's prior round")
}
