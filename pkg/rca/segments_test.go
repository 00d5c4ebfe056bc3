package rca

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"payscope/pkg/txn"
)

func at(minute int) time.Time {
	return time.Date(2025, 10, 3, 12, minute, 0, 0, time.UTC)
}

func TestSegmentTransactions_RetryAfterFirstAttempt(t *testing.T) {
	// Same identifier, t1 then t2: the strictly later transaction is a
	// retry no matter its value.
	set := []*txn.Transaction{
		{MaskedID: "417290XX1234", Timestamp: at(0), Amount: 5000, IsFailed: true},
		{MaskedID: "417290XX1234", Timestamp: at(5), Amount: 5000, IsSuccess: true},
	}
	assignments, _ := SegmentTransactions(set)
	require.NotEqual(t, SegmentRetryCustomer, assignments[0])
	require.Equal(t, SegmentRetryCustomer, assignments[1])
}

func TestSegmentTransactions_UserDroppedWins(t *testing.T) {
	set := []*txn.Transaction{
		{MaskedID: "id1", Timestamp: at(0), Amount: 100, IsSuccess: true},
		{MaskedID: "id1", Timestamp: at(1), Amount: 100, IsUserDropped: true},
	}
	assignments, _ := SegmentTransactions(set)
	require.Equal(t, SegmentUserDropped, assignments[1])
}

func TestSegmentTransactions_ValueSplit(t *testing.T) {
	// Positive amounts 10,20,30,40: p75 by nearest rank is 30, so 30 and 40
	// are high value.
	set := []*txn.Transaction{
		{Amount: 10, IsSuccess: true},
		{Amount: 20, IsSuccess: true},
		{Amount: 30, IsFailed: true},
		{Amount: 40, IsSuccess: true},
		{Amount: 0, IsFailed: true},
		{Amount: -5, IsFailed: true},
	}
	assignments, stats := SegmentTransactions(set)
	require.Equal(t, SegmentLowValue, assignments[0])
	require.Equal(t, SegmentLowValue, assignments[1])
	require.Equal(t, SegmentHighValue, assignments[2])
	require.Equal(t, SegmentHighValue, assignments[3])
	require.Equal(t, SegmentSingleAttempt, assignments[4])
	require.Equal(t, SegmentSingleAttempt, assignments[5])

	// Every transaction lands in exactly one segment
	var total int64
	for _, s := range stats {
		total += s.Volume
	}
	require.Equal(t, int64(len(set)), total)
}

func TestSegmentTransactions_ImpactOrdering(t *testing.T) {
	// A failing high-volume segment must sort before a healthy one.
	set := []*txn.Transaction{
		{Amount: 100, IsSuccess: true},
		{Amount: 100, IsSuccess: true},
		{Amount: 100, IsSuccess: true},
		{Amount: 1, IsFailed: true},
		{Amount: 1, IsFailed: true},
		{Amount: 1, IsFailed: true},
	}
	_, stats := SegmentTransactions(set)
	require.NotEmpty(t, stats)
	require.Equal(t, SegmentLowValue, stats[0].Segment)
	require.Negative(t, stats[0].ImpactOnSR)

	// Impacts across all segments are bounded by the SR scale
	for _, s := range stats {
		require.GreaterOrEqual(t, s.SR, 0.0)
		require.LessOrEqual(t, s.SR, 100.0)
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	require.Equal(t, 0.0, percentile(nil, 0.75))
	require.Equal(t, 30.0, percentile([]float64{40, 10, 30, 20}, 0.75))
	require.Equal(t, 10.0, percentile([]float64{10}, 0.75))
}

func TestDetectProblematicCustomers(t *testing.T) {
	var set []*txn.Transaction

	// Identifier with a first attempt and 10 all-failing retries
	set = append(set, &txn.Transaction{MaskedID: "bad", Timestamp: at(0), IsFailed: true})
	for i := 1; i <= 10; i++ {
		set = append(set, &txn.Transaction{MaskedID: "bad", Timestamp: at(i), IsFailed: true})
	}

	// Identifier with retries that mostly succeed
	set = append(set, &txn.Transaction{MaskedID: "fine", Timestamp: at(0), IsFailed: true})
	for i := 1; i <= 10; i++ {
		set = append(set, &txn.Transaction{MaskedID: "fine", Timestamp: at(i), IsSuccess: true})
	}

	// Background successes
	for i := 0; i < 20; i++ {
		set = append(set, &txn.Transaction{IsSuccess: true})
	}

	flagged := DetectProblematicCustomers(set, 10, 1.0)
	require.Len(t, flagged, 1)
	require.Equal(t, "bad", flagged[0].Identifier)
	require.Equal(t, int64(10), flagged[0].RetryAttempts)
	require.Equal(t, 0.0, flagged[0].RetrySR)
	require.Equal(t, int64(11), flagged[0].FailedCount)
	require.Positive(t, flagged[0].ImpactSR)
}

func TestDetectProblematicCustomers_BelowRetryFloor(t *testing.T) {
	var set []*txn.Transaction
	set = append(set, &txn.Transaction{MaskedID: "few", Timestamp: at(0), IsFailed: true})
	for i := 1; i <= 9; i++ {
		set = append(set, &txn.Transaction{MaskedID: "few", Timestamp: at(i), IsFailed: true})
	}
	require.Empty(t, DetectProblematicCustomers(set, 10, 1.0))
}
