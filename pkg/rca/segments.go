package rca

import (
	"sort"
	"time"

	"payscope/pkg/config"
	"payscope/pkg/engine"
	"payscope/pkg/txn"
)

// Segment is the mutually exclusive per-transaction behavior class.
type Segment string

const (
	SegmentRetryCustomer Segment = "RETRY_CUSTOMER"
	SegmentUserDropped   Segment = "USER_DROPPED"
	SegmentHighValue     Segment = "HIGH_VALUE"
	SegmentLowValue      Segment = "LOW_VALUE"
	SegmentSingleAttempt Segment = "SINGLE_ATTEMPT"
)

// SegmentStat is the aggregate for one segment.
type SegmentStat struct {
	Segment       Segment `json:"segment"`
	Volume        int64   `json:"volume"`
	Success       int64   `json:"success"`
	SR            float64 `json:"sr"`
	ShareOfVolume float64 `json:"share_of_volume"`

	// ImpactOnSR = (segment SR - overall SR) * (segment volume / total
	// volume), in SR points. Negative means the segment drags overall SR.
	ImpactOnSR float64 `json:"impact_on_sr"`
}

// SegmentTransactions classifies every transaction into exactly one
// segment and aggregates per-segment stats.
//
// Classification invariant: for each card/UPI identifier, the transaction
// with the earliest timestamp is the first attempt; every strictly later
// transaction for that identifier is RETRY_CUSTOMER regardless of value.
// USER_DROPPED status wins over everything. First attempts split into
// HIGH_VALUE / LOW_VALUE at the 75th percentile of positive amounts, or
// SINGLE_ATTEMPT when the amount is non-positive.
//
// The returned slice is aligned with the input.
func SegmentTransactions(set []*txn.Transaction) ([]Segment, []SegmentStat) {
	first := firstAttempts(set)
	threshold := percentile(positiveAmounts(set), config.HighValuePercentile)

	assignments := make([]Segment, len(set))
	tallies := make(map[Segment]*segmentTally, 5)

	for i, t := range set {
		seg := classifyOne(t, first, threshold)
		assignments[i] = seg

		tally := tallies[seg]
		if tally == nil {
			tally = &segmentTally{}
			tallies[seg] = tally
		}
		tally.volume++
		if t.IsSuccess {
			tally.success++
		}
	}

	total := int64(len(set))
	var totalSuccess int64
	for _, tally := range tallies {
		totalSuccess += tally.success
	}
	overallSR := engine.SuccessRate(totalSuccess, total)

	stats := make([]SegmentStat, 0, len(tallies))
	for _, seg := range []Segment{
		SegmentRetryCustomer, SegmentUserDropped, SegmentHighValue,
		SegmentLowValue, SegmentSingleAttempt,
	} {
		tally := tallies[seg]
		if tally == nil {
			continue
		}
		segSR := engine.SuccessRate(tally.success, tally.volume)
		shareFraction := float64(tally.volume) / float64(total)
		stats = append(stats, SegmentStat{
			Segment:       seg,
			Volume:        tally.volume,
			Success:       tally.success,
			SR:            segSR,
			ShareOfVolume: engine.Round2(100 * shareFraction),
			ImpactOnSR:    engine.Round2((segSR - overallSR) * shareFraction),
		})
	}

	// Most damaging segments first.
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].ImpactOnSR < stats[j].ImpactOnSR
	})
	return assignments, stats
}

type segmentTally struct {
	volume  int64
	success int64
}

func classifyOne(t *txn.Transaction, first map[string]time.Time, threshold float64) Segment {
	if t.IsUserDropped {
		return SegmentUserDropped
	}
	if t.MaskedID != "" && t.Timestamp.After(first[t.MaskedID]) {
		return SegmentRetryCustomer
	}
	if t.Amount <= 0 {
		return SegmentSingleAttempt
	}
	if t.Amount >= threshold && threshold > 0 {
		return SegmentHighValue
	}
	return SegmentLowValue
}

// firstAttempts finds the earliest timestamp per identifier.
func firstAttempts(set []*txn.Transaction) map[string]time.Time {
	first := make(map[string]time.Time)
	for _, t := range set {
		if t.MaskedID == "" {
			continue
		}
		cur, seen := first[t.MaskedID]
		if !seen || t.Timestamp.Before(cur) {
			first[t.MaskedID] = t.Timestamp
		}
	}
	return first
}

func positiveAmounts(set []*txn.Transaction) []float64 {
	amounts := make([]float64, 0, len(set))
	for _, t := range set {
		if t.Amount > 0 {
			amounts = append(amounts, t.Amount)
		}
	}
	return amounts
}

// percentile returns the p-th percentile (0..1) by nearest-rank on the
// sorted values. Empty input yields 0.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	rank := int(p * float64(len(values)-1))
	return values[rank]
}

// ProblematicCustomer is an identifier whose retries are numerous and
// nearly always failing.
type ProblematicCustomer struct {
	Identifier    string  `json:"identifier"`
	RetryAttempts int64   `json:"retry_attempts"`
	RetrySR       float64 `json:"retry_sr"`
	FailedCount   int64   `json:"failed_count"`

	// ImpactSR is the SR lift if every failed transaction of this
	// identifier (first attempt included) left the denominator.
	ImpactSR float64 `json:"impact_sr"`
}

// DetectProblematicCustomers flags identifiers with at least minRetries
// retry attempts (strictly excluding the first attempt) whose retry SR is
// at or below maxRetrySR percent.
func DetectProblematicCustomers(set []*txn.Transaction, minRetries int64, maxRetrySR float64) []ProblematicCustomer {
	first := firstAttempts(set)

	type idTally struct {
		retries      int64
		retrySuccess int64
		failed       int64
	}
	tallies := make(map[string]*idTally)
	var order []string

	var total, success int64
	for _, t := range set {
		total++
		if t.IsSuccess {
			success++
		}
		if t.MaskedID == "" {
			continue
		}
		tally := tallies[t.MaskedID]
		if tally == nil {
			tally = &idTally{}
			tallies[t.MaskedID] = tally
			order = append(order, t.MaskedID)
		}
		if !t.IsSuccess {
			tally.failed++
		}
		if t.Timestamp.After(first[t.MaskedID]) {
			tally.retries++
			if t.IsSuccess {
				tally.retrySuccess++
			}
		}
	}

	overallSR := engine.SuccessRate(success, total)

	var flagged []ProblematicCustomer
	for _, id := range order {
		tally := tallies[id]
		if tally.retries < minRetries {
			continue
		}
		retrySR := engine.SuccessRate(tally.retrySuccess, tally.retries)
		if retrySR > maxRetrySR {
			continue
		}
		cf := engine.SuccessRate(success, total-tally.failed)
		flagged = append(flagged, ProblematicCustomer{
			Identifier:    id,
			RetryAttempts: tally.retries,
			RetrySR:       retrySR,
			FailedCount:   tally.failed,
			ImpactSR:      engine.Round2(cf - overallSR),
		})
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].ImpactSR > flagged[j].ImpactSR
	})
	return flagged
}
