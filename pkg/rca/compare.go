package rca

import (
	"payscope/pkg/config"
	"payscope/pkg/engine"
	"payscope/pkg/txn"
)

// Primary-cause classifications for an SR movement.
const (
	CauseFailureSpike       = "FAILURE_SPIKE"
	CauseVolumeMix          = "VOLUME_MIX"
	CauseSegmentDegradation = "SEGMENT_DEGRADATION"
	CauseMixed              = "MIXED"
)

// Metrics is the aggregate view of one period.
type Metrics struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	UserDropped int64   `json:"user_dropped"`
	Failures    int64   `json:"failures"` // status != SUCCESS
	SR          float64 `json:"sr"`
	FailedRate  float64 `json:"failed_rate"`
	SuccessGMV  float64 `json:"success_gmv"`
}

// ComputeMetrics aggregates one period's set.
func ComputeMetrics(set []*txn.Transaction) Metrics {
	var m Metrics
	for _, t := range set {
		m.Total++
		switch {
		case t.IsSuccess:
			m.Success++
			m.SuccessGMV += t.Amount
		case t.IsUserDropped:
			m.UserDropped++
		case t.IsFailed:
			m.Failed++
		}
		if !t.IsSuccess {
			m.Failures++
		}
	}
	m.SR = engine.SuccessRate(m.Success, m.Total)
	m.FailedRate = share(m.Failed, m.Total)
	m.SuccessGMV = engine.Round2(m.SuccessGMV)
	return m
}

// PeriodComparison is the full RCA payload for a current/previous pair.
type PeriodComparison struct {
	Mode     string  `json:"mode"`
	Current  Metrics `json:"current"`
	Previous Metrics `json:"previous"`
	SRDelta  float64 `json:"sr_delta"`

	PrimaryCause string                `json:"primary_cause"`
	Dimensions   []DimensionAnalysis   `json:"dimensions"`
	Insights     []Insight             `json:"insights"`
	Segments     []SegmentStat         `json:"segments"`
	Problematic  []ProblematicCustomer `json:"problematic_customers"`
	VolumeMix    []VolumeMixEntry      `json:"volume_mix"`
}

// Compare runs the full RCA over two materialized sets, restricted to the
// selected payment-mode group ("ALL" or empty keeps every mode).
//
// The counterfactual and volume-mix formulas assume segment independence:
// removing one segment's failures is presumed not to change any other
// segment's outcomes. That is an attribution approximation consumers are
// calibrated to, not a causal claim.
func Compare(currentSet, previousSet []*txn.Transaction, mode string) *PeriodComparison {
	modes := ExpandMode(mode)
	current := filterByModes(currentSet, modes)
	previous := filterByModes(previousSet, modes)

	cur := ComputeMetrics(current)
	prev := ComputeMetrics(previous)

	var analyses []DimensionAnalysis
	for _, dim := range ModeDimensions(mode) {
		analyses = append(analyses, AnalyzeDimension(dim, current, previous, cur, prev)...)
	}

	var volumeMix []VolumeMixEntry
	for _, dim := range ModeDimensions(mode) {
		if dim == engine.DimFailureReason {
			continue // reason labels are failure-derived; mix over them is meaningless
		}
		volumeMix = append(volumeMix, AnalyzeVolumeMix(dim, current, previous, cur)...)
	}

	_, segments := SegmentTransactions(current)

	return &PeriodComparison{
		Mode:         mode,
		Current:      cur,
		Previous:     prev,
		SRDelta:      engine.Round2(cur.SR - prev.SR),
		PrimaryCause: classifyPrimaryCause(cur, prev, analyses),
		Dimensions:   analyses,
		Insights:     GenerateInsights(current, analyses, cur),
		Segments:     segments,
		Problematic: DetectProblematicCustomers(current,
			config.ProblematicMinRetries, config.ProblematicMaxRetrySRPt),
		VolumeMix: volumeMix,
	}
}

// classifyPrimaryCause picks the dominant explanation. When several
// conditions hold, or none does, the answer is MIXED.
func classifyPrimaryCause(cur, prev Metrics, analyses []DimensionAnalysis) string {
	failureSpike := cur.FailedRate-prev.FailedRate > config.FailedRateSpikePts

	var volumeMix, segmentDegradation bool
	for _, a := range analyses {
		if a.FlagReason == FlagVolumeSpike {
			volumeMix = true
		}
		if a.ValueSRDelta < -config.FailureRateDegradedPts {
			segmentDegradation = true
		}
	}

	conditions := 0
	for _, c := range []bool{failureSpike, volumeMix, segmentDegradation} {
		if c {
			conditions++
		}
	}
	if conditions != 1 {
		return CauseMixed
	}
	switch {
	case failureSpike:
		return CauseFailureSpike
	case volumeMix:
		return CauseVolumeMix
	default:
		return CauseSegmentDegradation
	}
}
