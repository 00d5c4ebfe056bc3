package engine

import (
	"math"
	"sort"

	"payscope/pkg/txn"
)

// Dimension names a grouping axis.
type Dimension string

const (
	DimGateway         Dimension = "gateway"
	DimPaymentMode     Dimension = "payment_mode"
	DimCardType        Dimension = "card_type"
	DimCardScope       Dimension = "card_scope"
	DimBank            Dimension = "bank"
	DimBankTier        Dimension = "bank_tier"
	DimProcessingType  Dimension = "processing_type"
	DimAuthType        Dimension = "auth_type"
	DimPSP             Dimension = "psp"
	DimHandle          Dimension = "handle"
	DimFlow            Dimension = "flow"
	DimFailureCategory Dimension = "failure_category"
	DimFailureReason   Dimension = "failure_reason"
)

// DimensionValue extracts a transaction's value on a dimension. Blank and
// unrecognized values collapse to Unknown rather than being dropped.
func DimensionValue(d Dimension, t *txn.Transaction) string {
	var v string
	switch d {
	case DimGateway:
		v = t.Gateway
	case DimPaymentMode:
		v = t.PaymentMode
	case DimCardType:
		v = t.CardType
	case DimCardScope:
		return txn.CardScope(t.CardCountry)
	case DimBank:
		v = t.BankName
	case DimBankTier:
		return txn.BankTier(t.BankName)
	case DimProcessingType:
		v = t.ProcessingType
	case DimAuthType:
		v = t.AuthType
	case DimPSP:
		v = t.PSP
	case DimHandle:
		return txn.UPIHandle(t.MaskedID)
	case DimFlow:
		return txn.UPIFlow(t.BankName)
	case DimFailureCategory:
		return string(txn.ClassifyFailure(t))
	case DimFailureReason:
		return txn.FailureLabel(t)
	}
	if v == "" {
		return txn.Unknown
	}
	return v
}

// Counts is the four-way status breakdown of a set of transactions.
// Invariant: Volume == Success + Failed + UserDropped + Other.
type Counts struct {
	Volume      int64 `json:"volume"`
	Success     int64 `json:"success"`
	Failed      int64 `json:"failed"`
	UserDropped int64 `json:"user_dropped"`
	Other       int64 `json:"other"`
}

func (c *Counts) add(t *txn.Transaction) {
	c.Volume++
	switch {
	case t.IsSuccess:
		c.Success++
	case t.IsFailed:
		c.Failed++
	case t.IsUserDropped:
		c.UserDropped++
	default:
		c.Other++
	}
}

// SR is the success rate of the counts, in [0, 100].
func (c Counts) SR() float64 {
	return SuccessRate(c.Success, c.Volume)
}

// SuccessRate computes round(100 * success / volume, 2). A zero volume
// yields exactly 0, never NaN or Inf.
func SuccessRate(success, volume int64) float64 {
	if volume == 0 {
		return 0
	}
	return Round2(100 * float64(success) / float64(volume))
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// groupAggregate is one (dimension, value) cell: running counters plus the
// per-date sub-aggregates.
type groupAggregate struct {
	counts Counts
	daily  map[string]*Counts
}

// DailyPoint is one date of a group's trend.
type DailyPoint struct {
	Date        string  `json:"date"`
	Volume      int64   `json:"volume"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	UserDropped int64   `json:"user_dropped"`
	SR          float64 `json:"sr"`
}

// GroupResult is one finalized (dimension, value) row.
type GroupResult struct {
	Value       string       `json:"value"`
	Volume      int64        `json:"volume"`
	Success     int64        `json:"success"`
	Failed      int64        `json:"failed"`
	UserDropped int64        `json:"user_dropped"`
	Other       int64        `json:"other"`
	SR          float64      `json:"sr"`
	Trend       []DailyPoint `json:"trend,omitempty"`
}

// ReasonCount is one bucket of the failure-reason histogram.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// Aggregator maintains a bank of grouped counters over one forward pass:
// one GroupAggregate map per requested dimension, global counters, a daily
// global trend, success GMV, and a failure-reason histogram.
type Aggregator struct {
	matcher *Matcher
	dims    []Dimension

	groups map[Dimension]map[string]*groupAggregate
	order  map[Dimension][]string // insertion order, for stable ties

	global      Counts
	globalDaily map[string]*Counts
	successGMV  float64

	reasons     map[string]int64
	reasonOrder []string

	matched int64
}

// NewAggregator creates an aggregator grouping on the given dimensions,
// filtered by the shared matcher.
func NewAggregator(m *Matcher, dims ...Dimension) *Aggregator {
	a := &Aggregator{
		matcher:     m,
		dims:        dims,
		groups:      make(map[Dimension]map[string]*groupAggregate, len(dims)),
		order:       make(map[Dimension][]string, len(dims)),
		globalDaily: make(map[string]*Counts),
		reasons:     make(map[string]int64),
	}
	for _, d := range dims {
		a.groups[d] = make(map[string]*groupAggregate)
	}
	return a
}

// Consume implements RowFunc. The aggregator never stops the scan itself.
func (a *Aggregator) Consume(t *txn.Transaction) bool {
	if !a.matcher.Matches(t) {
		return true
	}
	a.matched++
	a.global.add(t)

	if t.IsSuccess {
		a.successGMV += t.Amount
	}

	if t.HasTime {
		day := a.globalDaily[t.DateKey]
		if day == nil {
			day = &Counts{}
			a.globalDaily[t.DateKey] = day
		}
		day.add(t)
	}

	if t.IsFailed || t.IsUserDropped {
		label := txn.FailureLabel(t)
		if _, seen := a.reasons[label]; !seen {
			a.reasonOrder = append(a.reasonOrder, label)
		}
		a.reasons[label]++
	}

	for _, d := range a.dims {
		value := DimensionValue(d, t)
		group := a.groups[d][value]
		if group == nil {
			group = &groupAggregate{daily: make(map[string]*Counts)}
			a.groups[d][value] = group
			a.order[d] = append(a.order[d], value)
		}
		group.counts.add(t)
		if t.HasTime {
			day := group.daily[t.DateKey]
			if day == nil {
				day = &Counts{}
				group.daily[t.DateKey] = day
			}
			day.add(t)
		}
	}
	return true
}

// Matched returns how many rows passed the filter.
func (a *Aggregator) Matched() int64 {
	return a.matched
}

// Global returns the global counters.
func (a *Aggregator) Global() Counts {
	return a.global
}

// SuccessGMV returns the summed amount of successful transactions.
func (a *Aggregator) SuccessGMV() float64 {
	return Round2(a.successGMV)
}

// GlobalTrend returns the global daily trend sorted ascending by date.
func (a *Aggregator) GlobalTrend() []DailyPoint {
	return trendOf(a.globalDaily)
}

// Results finalizes one dimension: SR per group, per-group trends sorted by
// date, groups sorted by descending volume with ties kept in insertion
// order (stable sort).
func (a *Aggregator) Results(d Dimension) []GroupResult {
	return a.ResultsExcluding(d, "")
}

// ResultsExcluding finalizes a dimension while dropping one literal value
// from the output (e.g. Unknown handles). The excluded group still
// participated in every upstream counter; only the final row is withheld.
func (a *Aggregator) ResultsExcluding(d Dimension, exclude string) []GroupResult {
	values := a.order[d]
	results := make([]GroupResult, 0, len(values))
	for _, value := range values {
		if exclude != "" && value == exclude {
			continue
		}
		g := a.groups[d][value]
		results = append(results, GroupResult{
			Value:       value,
			Volume:      g.counts.Volume,
			Success:     g.counts.Success,
			Failed:      g.counts.Failed,
			UserDropped: g.counts.UserDropped,
			Other:       g.counts.Other,
			SR:          g.counts.SR(),
			Trend:       trendOf(g.daily),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Volume > results[j].Volume
	})
	return results
}

// FailureReasons returns the failure-reason histogram sorted by descending
// count, ties in first-seen order, truncated to limit (0 = all).
func (a *Aggregator) FailureReasons(limit int) []ReasonCount {
	results := make([]ReasonCount, 0, len(a.reasonOrder))
	for _, reason := range a.reasonOrder {
		results = append(results, ReasonCount{Reason: reason, Count: a.reasons[reason]})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Count > results[j].Count
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func trendOf(daily map[string]*Counts) []DailyPoint {
	points := make([]DailyPoint, 0, len(daily))
	for date, c := range daily {
		points = append(points, DailyPoint{
			Date:        date,
			Volume:      c.Volume,
			Success:     c.Success,
			Failed:      c.Failed,
			UserDropped: c.UserDropped,
			SR:          c.SR(),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date < points[j].Date
	})
	return points
}
