package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"payscope/pkg/txn"
)

func TestMatcher_EmptyFilterMatchesEverything(t *testing.T) {
	m := Filter{}.Compile()
	require.True(t, m.Matches(&txn.Transaction{Status: "SUCCESS"}))
	require.True(t, m.Matches(&txn.Transaction{}))
}

func TestMatcher_CaseInsensitiveSets(t *testing.T) {
	m := Filter{Gateways: []string{"PayU"}, Modes: []string{"upi"}}.Compile()

	row := &txn.Transaction{Gateway: "PAYU", PaymentMode: "UPI"}
	require.True(t, m.Matches(row))

	row.Gateway = "RAZORPAY"
	require.False(t, m.Matches(row))
}

func TestMatcher_DateBoundsRejectTimelessRows(t *testing.T) {
	from := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)
	m := Filter{}.WithWindow(from, to).Compile()

	inside := &txn.Transaction{HasTime: true, Timestamp: time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)}
	require.True(t, m.Matches(inside))

	before := &txn.Transaction{HasTime: true, Timestamp: from.Add(-time.Second)}
	require.False(t, m.Matches(before))

	after := &txn.Transaction{HasTime: true, Timestamp: to.Add(time.Second)}
	require.False(t, m.Matches(after))

	timeless := &txn.Transaction{}
	require.False(t, m.Matches(timeless))

	// Without date bounds the timeless row passes
	require.True(t, Filter{}.Compile().Matches(timeless))
}

func TestMatcher_CompiledOnceSharedAcrossPasses(t *testing.T) {
	f := Filter{Gateways: []string{"PAYU"}}
	m := f.Compile()

	row := &txn.Transaction{Gateway: "payu", HasTime: true, Timestamp: time.Now()}

	// Same matcher instance drives both a discovery and an aggregation pass
	require.True(t, m.Matches(row))
	agg := NewAggregator(m, DimGateway)
	require.True(t, agg.Consume(row))
	require.Equal(t, int64(1), agg.Matched())
}
