package rca

import (
	"fmt"
	"sort"
	"strings"

	"payscope/pkg/config"
	"payscope/pkg/engine"
	"payscope/pkg/txn"
)

// ModeImpact is one payment mode affected by a flagged gateway, with the
// mode-local counterfactual SR.
type ModeImpact struct {
	Mode             string  `json:"mode"`
	Failures         int64   `json:"failures"`
	CounterfactualSR float64 `json:"counterfactual_sr"`
}

// Insight is one ranked natural-language finding.
type Insight struct {
	Statement string       `json:"statement"`
	Gateway   string       `json:"gateway"`
	Impact    float64      `json:"impact"` // absolute counterfactual SR delta
	Modes     []ModeImpact `json:"modes,omitempty"`
	Evidence  []string     `json:"evidence,omitempty"` // top raw failure reasons
}

// GenerateInsights ranks flagged gateway-level dimension values by absolute
// counterfactual impact, cross-references each against the payment modes it
// affects, attaches top failure reasons as evidence, and emits a bounded
// list of statements sorted by impact descending.
func GenerateInsights(current []*txn.Transaction, analyses []DimensionAnalysis, cur Metrics) []Insight {
	var flagged []DimensionAnalysis
	for _, a := range analyses {
		if a.Dimension == engine.DimGateway && a.Flagged {
			flagged = append(flagged, a)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		return abs(flagged[i].CounterfactualDelta) > abs(flagged[j].CounterfactualDelta)
	})

	insights := make([]Insight, 0, len(flagged))
	for _, a := range flagged {
		if len(insights) == config.MaxInsights {
			break
		}

		modes := modeImpacts(current, a.Value)
		evidence := topReasons(current, a.Value, config.MaxEvidenceReasons)

		in := Insight{
			Gateway:  a.Value,
			Impact:   abs(a.CounterfactualDelta),
			Modes:    modes,
			Evidence: evidence,
		}
		in.Statement = buildStatement(a, modes, evidence)
		insights = append(insights, in)
	}
	return insights
}

// modeImpacts recomputes a per-mode counterfactual SR for one gateway: the
// mode's SR if the gateway's failures inside that mode were removed from
// the denominator.
func modeImpacts(current []*txn.Transaction, gateway string) []ModeImpact {
	type modeTally struct {
		total    int64
		success  int64
		failures int64 // gateway failures within this mode
	}
	tallies := make(map[string]*modeTally)
	var order []string

	for _, t := range current {
		mode := t.PaymentMode
		if mode == "" {
			mode = txn.Unknown
		}
		tally := tallies[mode]
		if tally == nil {
			tally = &modeTally{}
			tallies[mode] = tally
			order = append(order, mode)
		}
		tally.total++
		if t.IsSuccess {
			tally.success++
		} else if engine.DimensionValue(engine.DimGateway, t) == gateway {
			tally.failures++
		}
	}

	var impacts []ModeImpact
	for _, mode := range order {
		tally := tallies[mode]
		if tally.failures == 0 {
			continue
		}
		impacts = append(impacts, ModeImpact{
			Mode:             mode,
			Failures:         tally.failures,
			CounterfactualSR: engine.SuccessRate(tally.success, tally.total-tally.failures),
		})
	}
	sort.SliceStable(impacts, func(i, j int) bool {
		return impacts[i].Failures > impacts[j].Failures
	})
	return impacts
}

// topReasons returns up to limit distinct failure labels for one gateway's
// failure subset, by descending frequency.
func topReasons(current []*txn.Transaction, gateway string, limit int) []string {
	counts := make(map[string]int64)
	var order []string
	for _, t := range current {
		if t.IsSuccess || engine.DimensionValue(engine.DimGateway, t) != gateway {
			continue
		}
		label := txn.FailureLabel(t)
		if _, seen := counts[label]; !seen {
			order = append(order, label)
		}
		counts[label]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

func buildStatement(a DimensionAnalysis, modes []ModeImpact, evidence []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Gateway %s drove %d failures (%.2f%% of all failures, %+.2f pts vs previous period)",
		a.Value, a.CurrentFailures, a.FailureShare, a.FailureShareDelta)
	if a.CounterfactualSR != nil {
		fmt.Fprintf(&b, "; removing them would move SR by %+.2f pts to %.2f%%", a.CounterfactualDelta, *a.CounterfactualSR)
	}
	if len(modes) > 0 {
		names := make([]string, len(modes))
		for i, m := range modes {
			names[i] = m.Mode
		}
		fmt.Fprintf(&b, ". Affected modes: %s", strings.Join(names, ", "))
	}
	if len(evidence) > 0 {
		fmt.Fprintf(&b, ". Top reasons: %s", strings.Join(evidence, "; "))
	}
	b.WriteString(".")
	return b.String()
}
