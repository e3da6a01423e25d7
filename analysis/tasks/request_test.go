package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalysisRequest_Validate(t *testing.T) {
	cases := []struct {
		name    string
		req     AnalysisRequest
		wantErr bool
	}{
		{"valid", AnalysisRequest{Symbol: "600519", Analysts: []string{"market-analyst"}}, false},
		{"missing symbol", AnalysisRequest{Analysts: []string{"market-analyst"}}, true},
		{"missing analysts", AnalysisRequest{Symbol: "600519"}, true},
		{"negative debate rounds", AnalysisRequest{Symbol: "600519", Analysts: []string{"market-analyst"}, DebateRounds: -1}, true},
		{"negative risk rounds", AnalysisRequest{Symbol: "600519", Analysts: []string{"market-analyst"}, RiskRounds: -1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnalysisRequest_ToInputCarriesDomainFields(t *testing.T) {
	req := AnalysisRequest{Symbol: "600519", Analysts: []string{"market-analyst", "news-analyst"}, DebateRounds: 2, RiskRounds: 1, UserID: "alice"}
	input := req.toInput()

	assert.Equal(t, "600519", input["symbol"])
	assert.Equal(t, []string{"market-analyst", "news-analyst"}, input["analysts"])
	assert.Equal(t, 2, input["debate_rounds"])
	assert.Equal(t, 1, input["risk_rounds"])
	assert.Equal(t, "alice", input["user_id"])
}
