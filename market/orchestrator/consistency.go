package orchestrator

import (
	"context"

	"github.com/BaSui01/tradeflow/market/providers"
)

// ConsistencyVerdict is the result of comparing two adapters' bars for the
// same request.
type ConsistencyVerdict struct {
	IsConsistent bool
	Confidence   float64 // in [0, 1]
	// RecommendedAction is one of "use-primary", "use-secondary", "merge",
	// "flag-for-review".
	RecommendedAction string
	Differences       []string
}

// ConsistencyChecker compares results from the top-two available adapters
// for the same operation. It never influences the value the orchestrator
// returns; this path is telemetry-only unless a
// future caller chooses to consume the verdict explicitly.
type ConsistencyChecker interface {
	Check(ctx context.Context, code string, primary, secondary []providers.Bar) (ConsistencyVerdict, error)
}

// CloseCompareChecker is a simple ConsistencyChecker comparing closing
// prices on matching trade dates; it flags a divergence beyond Tolerance
// as inconsistent. Used as the default implementation wired in cmd/tradeflow.
type CloseCompareChecker struct {
	// Tolerance is the maximum relative difference between closes before
	// the pair is flagged; e.g. 0.02 for 2%.
	Tolerance float64
}

func (c CloseCompareChecker) Check(ctx context.Context, code string, primary, secondary []providers.Bar) (ConsistencyVerdict, error) {
	byDate := make(map[string]float64, len(secondary))
	for _, b := range secondary {
		byDate[b.TradeDate.Format("2006-01-02")] = b.Close
	}

	tolerance := c.Tolerance
	if tolerance <= 0 {
		tolerance = 0.02
	}

	var diffs []string
	compared := 0
	for _, b := range primary {
		other, ok := byDate[b.TradeDate.Format("2006-01-02")]
		if !ok || other == 0 {
			continue
		}
		compared++
		rel := (b.Close - other) / other
		if rel < 0 {
			rel = -rel
		}
		if rel > tolerance {
			diffs = append(diffs, b.TradeDate.Format("2006-01-02"))
		}
	}

	if compared == 0 {
		return ConsistencyVerdict{IsConsistent: true, Confidence: 0, RecommendedAction: "use-primary"}, nil
	}

	confidence := 1 - float64(len(diffs))/float64(compared)
	if len(diffs) == 0 {
		return ConsistencyVerdict{IsConsistent: true, Confidence: confidence, RecommendedAction: "use-primary"}, nil
	}
	action := "flag-for-review"
	if float64(len(diffs))/float64(compared) < 0.25 {
		action = "use-primary"
	}
	return ConsistencyVerdict{
		IsConsistent:      false,
		Confidence:        confidence,
		RecommendedAction: action,
		Differences:       diffs,
	}, nil
}
