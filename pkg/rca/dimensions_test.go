package rca

import (
	"testing"

	"github.com/stretchr/testify/require"
	"payscope/pkg/engine"
	"payscope/pkg/txn"
)

func succeeded(gateway string) *txn.Transaction {
	return &txn.Transaction{Status: txn.StatusSuccess, Gateway: gateway, PaymentMode: "UPI", IsSuccess: true}
}

func failed(gateway, code string) *txn.Transaction {
	return &txn.Transaction{Status: txn.StatusFailed, Gateway: gateway, PaymentMode: "UPI", IsFailed: true, ErrorCode: code}
}

func repeat(n int, build func() *txn.Transaction) []*txn.Transaction {
	out := make([]*txn.Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, build())
	}
	return out
}

func findValue(analyses []DimensionAnalysis, value string) *DimensionAnalysis {
	for i := range analyses {
		if analyses[i].Value == value {
			return &analyses[i]
		}
	}
	return nil
}

func TestAnalyzeDimension_VolumeSpikeFlag(t *testing.T) {
	// Previous period: gateway G carries 5% of failures, current: 12%.
	// Failure rates stay below the degradation threshold, so the +7 point
	// share jump is the only trigger.
	var current, previous []*txn.Transaction
	current = append(current, repeat(12, func() *txn.Transaction { return failed("G", "U30") })...)
	current = append(current, repeat(88, func() *txn.Transaction { return failed("OTHER", "U30") })...)
	current = append(current, repeat(900, func() *txn.Transaction { return succeeded("G") })...)

	previous = append(previous, repeat(5, func() *txn.Transaction { return failed("G", "U30") })...)
	previous = append(previous, repeat(95, func() *txn.Transaction { return failed("OTHER", "U30") })...)
	previous = append(previous, repeat(900, func() *txn.Transaction { return succeeded("G") })...)

	cur := ComputeMetrics(current)
	prev := ComputeMetrics(previous)
	analyses := AnalyzeDimension(engine.DimGateway, current, previous, cur, prev)

	g := findValue(analyses, "G")
	require.NotNil(t, g)
	require.Equal(t, 12.0, g.FailureShare)
	require.Equal(t, 5.0, g.PrevFailureShare)
	require.Equal(t, 7.0, g.FailureShareDelta)
	require.True(t, g.Flagged)
	require.Equal(t, FlagVolumeSpike, g.FlagReason)

	// Counterfactual: success held constant, G's failures leave the denominator
	require.NotNil(t, g.CounterfactualSR)
	require.Equal(t, engine.SuccessRate(cur.Success, cur.Total-g.CurrentFailures), *g.CounterfactualSR)
	require.Greater(t, g.CounterfactualDelta, 0.0)
}

func TestAnalyzeDimension_SRDegradationOverwritesVolumeSpike(t *testing.T) {
	// G's failure rate jumps well past the degradation threshold; the later
	// check overwrites any earlier share-based flag.
	var current, previous []*txn.Transaction
	current = append(current, repeat(30, func() *txn.Transaction { return failed("G", "U30") })...)
	current = append(current, repeat(70, func() *txn.Transaction { return succeeded("G") })...)

	previous = append(previous, repeat(5, func() *txn.Transaction { return failed("G", "U30") })...)
	previous = append(previous, repeat(95, func() *txn.Transaction { return succeeded("G") })...)

	cur := ComputeMetrics(current)
	prev := ComputeMetrics(previous)
	analyses := AnalyzeDimension(engine.DimGateway, current, previous, cur, prev)

	g := findValue(analyses, "G")
	require.NotNil(t, g)
	require.True(t, g.Flagged)
	require.Equal(t, FlagSRDegradation, g.FlagReason)
}

func TestAnalyzeDimension_FailureExplosion(t *testing.T) {
	// Reason U30 grows 10 -> 16 failures (past the 1.5x ratio) while share
	// and rate deltas stay under their thresholds.
	var current, previous []*txn.Transaction
	current = append(current, repeat(16, func() *txn.Transaction { return failed("G", "U30") })...)
	current = append(current, repeat(984, func() *txn.Transaction { return succeeded("G") })...)

	previous = append(previous, repeat(10, func() *txn.Transaction { return failed("G", "U30") })...)
	previous = append(previous, repeat(990, func() *txn.Transaction { return succeeded("G") })...)

	cur := ComputeMetrics(current)
	prev := ComputeMetrics(previous)
	analyses := AnalyzeDimension(engine.DimFailureReason, current, previous, cur, prev)

	u30 := findValue(analyses, "U30")
	require.NotNil(t, u30)
	require.True(t, u30.Flagged)
	require.Equal(t, FlagFailureExplosion, u30.FlagReason)

	// The explosion check never applies outside the failure-reason dimension
	gw := AnalyzeDimension(engine.DimGateway, current, previous, cur, prev)
	g := findValue(gw, "G")
	require.NotNil(t, g)
	require.False(t, g.Flagged)
}

func TestAnalyzeDimension_ValueOnlyInPreviousPeriod(t *testing.T) {
	current := repeat(10, func() *txn.Transaction { return succeeded("A") })
	var previous []*txn.Transaction
	previous = append(previous, repeat(5, func() *txn.Transaction { return failed("GONE", "U30") })...)
	previous = append(previous, repeat(5, func() *txn.Transaction { return succeeded("A") })...)

	cur := ComputeMetrics(current)
	prev := ComputeMetrics(previous)
	analyses := AnalyzeDimension(engine.DimGateway, current, previous, cur, prev)

	gone := findValue(analyses, "GONE")
	require.NotNil(t, gone)
	require.Equal(t, int64(0), gone.CurrentFailures)
	require.Equal(t, int64(5), gone.PreviousFailures)
	require.False(t, gone.Flagged)
}

func TestAnalyzeDimension_SortedByCurrentFailures(t *testing.T) {
	var current []*txn.Transaction
	current = append(current, repeat(3, func() *txn.Transaction { return failed("SMALL", "x") })...)
	current = append(current, repeat(9, func() *txn.Transaction { return failed("BIG", "x") })...)

	cur := ComputeMetrics(current)
	analyses := AnalyzeDimension(engine.DimGateway, current, nil, cur, Metrics{})
	require.Equal(t, "BIG", analyses[0].Value)
	require.Equal(t, "SMALL", analyses[1].Value)
}

func TestComputeMetrics(t *testing.T) {
	set := []*txn.Transaction{
		{IsSuccess: true, Amount: 100},
		{IsSuccess: true, Amount: 50.5},
		{IsFailed: true},
		{IsUserDropped: true},
		{}, // other status: neither success nor failed
	}
	m := ComputeMetrics(set)
	require.Equal(t, int64(5), m.Total)
	require.Equal(t, int64(2), m.Success)
	require.Equal(t, int64(1), m.Failed)
	require.Equal(t, int64(1), m.UserDropped)
	require.Equal(t, int64(3), m.Failures) // everything that is not a success
	require.Equal(t, 40.0, m.SR)
	require.Equal(t, 20.0, m.FailedRate)
	require.Equal(t, 150.5, m.SuccessGMV)
}
