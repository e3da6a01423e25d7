package records

// FixedAnchor is one non-analyst stage's node label, display name, and
// fixed progress percent.
type FixedAnchor struct {
	NodeLabel   string
	DisplayName string
	Percent     float64
}

// FixedAnchors is the ordered, fixed percent table for every stage after
// the analyst fan-out: bull/bear debate through the final report.
var FixedAnchors = []FixedAnchor{
	{NodeLabel: "Bull Researcher", DisplayName: "🐂 看涨研究员", Percent: 51.25},
	{NodeLabel: "Bear Researcher", DisplayName: "🐻 看跌研究员", Percent: 57.5},
	{NodeLabel: "Research Manager", DisplayName: "👔 研究经理", Percent: 70},
	{NodeLabel: "Trader", DisplayName: "💼 交易员决策", Percent: 78},
	{NodeLabel: "Risky Analyst", DisplayName: "🔥 激进风险评估", Percent: 81.75},
	{NodeLabel: "Safe Analyst", DisplayName: "🛡️ 保守风险评估", Percent: 85.5},
	{NodeLabel: "Neutral Analyst", DisplayName: "⚖️ 中性风险评估", Percent: 89.25},
	{NodeLabel: "Risk Manager", DisplayName: "🎯 风险经理", Percent: 93},
	{NodeLabel: "Report Generator", DisplayName: "📊 生成报告", Percent: 97},
}

// ProgressMaps are the two derived lookup tables the progress channel
// uses to turn a node completion into a percent and a human label.
type ProgressMaps struct {
	// NodeLabelToDisplayName maps a node's internal label (e.g. "Market
	// Analyst", "Bull Researcher") to its user-facing display name.
	NodeLabelToDisplayName map[string]string
	// DisplayNameToPercent maps a display name to its completion percent.
	DisplayNameToPercent map[string]float64
}

// BuildProgressMaps distributes [10, 50] evenly across enabled (falling
// back to all known, if enabled is empty), then appends the fixed anchors
// for every stage after the analyst fan-out.
func BuildProgressMaps(enabled []Record, all []Record) ProgressMaps {
	analysts := enabled
	if len(analysts) == 0 {
		analysts = all
	}

	nodeToDisplay := make(map[string]string, len(analysts)+len(FixedAnchors))
	displayToPercent := make(map[string]float64, len(analysts)+len(FixedAnchors))

	const rangeStart, rangeEnd = 10.0, 50.0
	n := len(analysts)
	for i, r := range analysts {
		label := DeriveNodeLabel(InternalKey(r.Slug))
		icon := DeriveIcon(r.Slug, r.Name)
		display := icon + " " + r.Name

		percent := rangeStart
		if n > 1 {
			percent = rangeStart + (rangeEnd-rangeStart)*float64(i+1)/float64(n)
		} else {
			percent = rangeEnd
		}

		nodeToDisplay[label] = display
		displayToPercent[display] = percent
	}

	for _, a := range FixedAnchors {
		nodeToDisplay[a.NodeLabel] = a.DisplayName
		displayToPercent[a.DisplayName] = a.Percent
	}

	return ProgressMaps{NodeLabelToDisplayName: nodeToDisplay, DisplayNameToPercent: displayToPercent}
}
