package rca

import (
	"sort"

	"payscope/pkg/engine"
	"payscope/pkg/txn"
)

// VolumeMixEntry tracks how one dimension value's share of total traffic
// shifted between periods, independent of failure status. SRImpact
// attributes the composition effect: traffic moving toward a segment with a
// systematically different SR moves the blended SR even if nothing
// degraded.
type VolumeMixEntry struct {
	Dimension engine.Dimension `json:"dimension"`
	Value     string           `json:"value"`

	CurrentShare  float64 `json:"current_share"`  // % of current total volume
	PreviousShare float64 `json:"previous_share"` // % of previous total volume
	ShareDelta    float64 `json:"share_delta"`    // points

	CurrentSR float64 `json:"current_sr"`

	// SRImpact = (segment current SR - overall current SR) * share delta
	// (as a fraction), in SR points. Same independence approximation as
	// the counterfactual SR.
	SRImpact float64 `json:"sr_impact"`
}

// AnalyzeVolumeMix computes the volume-mix shift for one dimension, sorted
// by absolute SR impact descending.
func AnalyzeVolumeMix(dim engine.Dimension, current, previous []*txn.Transaction, cur Metrics) []VolumeMixEntry {
	curValues, curOrder := tallyByValue(dim, current)
	prevValues, _ := tallyByValue(dim, previous)

	for value := range prevValues {
		if _, ok := curValues[value]; !ok {
			curValues[value] = &valueCounts{}
			curOrder = append(curOrder, value)
		}
	}

	prevTotal := int64(len(previous))

	entries := make([]VolumeMixEntry, 0, len(curOrder))
	for _, value := range curOrder {
		cv := curValues[value]
		pv := prevValues[value]
		if pv == nil {
			pv = &valueCounts{}
		}

		var curShare, prevShare float64
		if cur.Total > 0 {
			curShare = float64(cv.total) / float64(cur.Total)
		}
		if prevTotal > 0 {
			prevShare = float64(pv.total) / float64(prevTotal)
		}
		shareDelta := curShare - prevShare
		valueSR := engine.SuccessRate(cv.success, cv.total)

		entries = append(entries, VolumeMixEntry{
			Dimension:     dim,
			Value:         value,
			CurrentShare:  engine.Round2(100 * curShare),
			PreviousShare: engine.Round2(100 * prevShare),
			ShareDelta:    engine.Round2(100 * shareDelta),
			CurrentSR:     valueSR,
			SRImpact:      engine.Round2((valueSR - cur.SR) * shareDelta),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return abs(entries[i].SRImpact) > abs(entries[j].SRImpact)
	})
	return entries
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
