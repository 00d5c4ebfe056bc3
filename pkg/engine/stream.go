package engine

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"time"

	"payscope/pkg/errs"
	"payscope/pkg/txn"
)

// RowFunc consumes one normalized row. Returning false stops the scan
// early (sampling caps, cancellation by the consumer).
type RowFunc func(t *txn.Transaction) bool

// ScanStats summarizes one forward pass.
type ScanStats struct {
	RowsRead  int64 `json:"rows_read"`
	Malformed int64 `json:"malformed"`
}

// Scan performs one forward pass over a CSV byte stream. The first row is
// the header; every following row is normalized and handed to fn. Malformed
// rows are counted and skipped, never fatal. Memory stays O(1) in the file
// size: nothing is retained unless fn retains it.
func Scan(ctx context.Context, r io.Reader, fn RowFunc) (ScanStats, error) {
	var stats ScanStats

	cr := csv.NewReader(bufio.NewReaderSize(r, 256*1024))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return stats, errs.New(errs.KindValidation, "scan", "empty file: no header row")
		}
		return stats, errs.Wrap(err, errs.KindValidation, "scan", "unreadable header row")
	}

	idx := txn.HeaderIndex(header)
	if len(idx) == 0 {
		return stats, errs.New(errs.KindValidation, "scan", "no recognizable columns in header")
	}

	for {
		if stats.RowsRead%1000 == 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			default:
			}
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			// Row-local parse failure: skip, never abort the pass.
			stats.Malformed++
			continue
		}
		stats.RowsRead++

		t := txn.Normalize(record, idx)
		if t == nil {
			stats.Malformed++
			continue
		}

		if !fn(t) {
			return stats, nil
		}
	}
}

// DiscoverWindow is the first pass of a two-pass query: it finds the
// min/max timestamp over the rows matching m. Rows without a parseable
// timestamp never contribute. ok is false when no row matched.
func DiscoverWindow(ctx context.Context, r io.Reader, m *Matcher) (min, max time.Time, ok bool, err error) {
	_, err = Scan(ctx, r, func(t *txn.Transaction) bool {
		if !t.HasTime || !m.Matches(t) {
			return true
		}
		if !ok {
			min, max = t.Timestamp, t.Timestamp
			ok = true
			return true
		}
		if t.Timestamp.Before(min) {
			min = t.Timestamp
		}
		if t.Timestamp.After(max) {
			max = t.Timestamp
		}
		return true
	})
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return min, max, ok, nil
}

// Sampler materializes matching rows up to a cap, then stops the scan so
// no further I/O is wasted on arbitrarily large files.
type Sampler struct {
	matcher *Matcher
	cap     int
	rows    []*txn.Transaction
}

// NewSampler creates a bounded sampler.
func NewSampler(m *Matcher, capacity int) *Sampler {
	return &Sampler{matcher: m, cap: capacity}
}

// Consume implements RowFunc.
func (s *Sampler) Consume(t *txn.Transaction) bool {
	if s.matcher.Matches(t) {
		s.rows = append(s.rows, t)
	}
	return len(s.rows) < s.cap
}

// Rows returns the retained transactions.
func (s *Sampler) Rows() []*txn.Transaction {
	return s.rows
}

// Capped reports whether the sampler stopped the scan at its ceiling.
func (s *Sampler) Capped() bool {
	return len(s.rows) >= s.cap
}
