package rca

import (
	"sort"

	"payscope/pkg/config"
	"payscope/pkg/engine"
	"payscope/pkg/txn"
)

// Flag reasons. A value carries at most one; evaluation order is
// VOLUME_SPIKE -> SR_DEGRADATION -> FAILURE_EXPLOSION, later checks
// overwriting earlier ones when both apply.
const (
	FlagVolumeSpike      = "VOLUME_SPIKE"
	FlagSRDegradation    = "SR_DEGRADATION"
	FlagFailureExplosion = "FAILURE_EXPLOSION"
)

// DimensionAnalysis is the current/previous comparison of one dimension
// value, computed over the failure subset (status != SUCCESS) of each
// period.
type DimensionAnalysis struct {
	Dimension engine.Dimension `json:"dimension"`
	Value     string           `json:"value"`

	CurrentFailures  int64 `json:"current_failures"`
	PreviousFailures int64 `json:"previous_failures"`

	// Share of the period's total failures, in percent.
	FailureShare      float64 `json:"failure_share"`
	PrevFailureShare  float64 `json:"prev_failure_share"`
	FailureShareDelta float64 `json:"failure_share_delta"`

	// Failure rate as percent of the period's total transactions.
	FailureRate      float64 `json:"failure_rate"`
	PrevFailureRate  float64 `json:"prev_failure_rate"`
	FailureRateDelta float64 `json:"failure_rate_delta"`

	// Per-value SR over the full (not failure-only) sets.
	ValueSR      float64 `json:"value_sr"`
	PrevValueSR  float64 `json:"prev_value_sr"`
	ValueSRDelta float64 `json:"value_sr_delta"`

	Flagged    bool   `json:"flagged"`
	FlagReason string `json:"flag_reason,omitempty"`

	// CounterfactualSR is the global SR with this value's failures removed
	// from the denominator, success held constant. Set only for flagged
	// values. This assumes segment independence; see package notes.
	CounterfactualSR    *float64 `json:"counterfactual_sr,omitempty"`
	CounterfactualDelta float64  `json:"counterfactual_delta,omitempty"`
}

type valueCounts struct {
	failures int64
	total    int64
	success  int64
}

// AnalyzeDimension compares one dimension across the two periods. Returned
// rows are sorted by current failures descending.
func AnalyzeDimension(dim engine.Dimension, current, previous []*txn.Transaction, cur, prev Metrics) []DimensionAnalysis {
	curValues, curOrder := tallyByValue(dim, current)
	prevValues, _ := tallyByValue(dim, previous)

	// Values seen only in the previous period still matter: their failures
	// disappearing is part of the story.
	for value := range prevValues {
		if _, ok := curValues[value]; !ok {
			curValues[value] = &valueCounts{}
			curOrder = append(curOrder, value)
		}
	}

	results := make([]DimensionAnalysis, 0, len(curOrder))
	for _, value := range curOrder {
		cv := curValues[value]
		pv := prevValues[value]
		if pv == nil {
			pv = &valueCounts{}
		}

		a := DimensionAnalysis{
			Dimension:        dim,
			Value:            value,
			CurrentFailures:  cv.failures,
			PreviousFailures: pv.failures,
			FailureShare:     share(cv.failures, cur.Failures),
			PrevFailureShare: share(pv.failures, prev.Failures),
			FailureRate:      share(cv.failures, cur.Total),
			PrevFailureRate:  share(pv.failures, prev.Total),
			ValueSR:          engine.SuccessRate(cv.success, cv.total),
			PrevValueSR:      engine.SuccessRate(pv.success, pv.total),
		}
		a.FailureShareDelta = engine.Round2(a.FailureShare - a.PrevFailureShare)
		a.FailureRateDelta = engine.Round2(a.FailureRate - a.PrevFailureRate)
		a.ValueSRDelta = engine.Round2(a.ValueSR - a.PrevValueSR)

		if a.FailureShareDelta > config.FailureShareSpikePts {
			a.Flagged = true
			a.FlagReason = FlagVolumeSpike
		}
		if a.FailureRateDelta > config.FailureRateDegradedPts {
			a.Flagged = true
			a.FlagReason = FlagSRDegradation
		}
		if dim == engine.DimFailureReason && pv.failures > 0 &&
			float64(cv.failures) > config.FailureExplosionRatio*float64(pv.failures) {
			a.Flagged = true
			a.FlagReason = FlagFailureExplosion
		}

		if a.Flagged {
			cf := engine.SuccessRate(cur.Success, cur.Total-cv.failures)
			a.CounterfactualSR = &cf
			a.CounterfactualDelta = engine.Round2(cf - cur.SR)
		}

		results = append(results, a)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CurrentFailures > results[j].CurrentFailures
	})
	return results
}

// tallyByValue counts, per dimension value, the failure subset and the full
// set (for per-value SR). Order preserves first appearance.
func tallyByValue(dim engine.Dimension, set []*txn.Transaction) (map[string]*valueCounts, []string) {
	values := make(map[string]*valueCounts)
	var order []string
	for _, t := range set {
		value := engine.DimensionValue(dim, t)
		vc := values[value]
		if vc == nil {
			vc = &valueCounts{}
			values[value] = vc
			order = append(order, value)
		}
		vc.total++
		if t.IsSuccess {
			vc.success++
		} else {
			vc.failures++
		}
	}
	return values, order
}

func share(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return engine.Round2(100 * float64(part) / float64(whole))
}
