// Package engine is the streaming aggregation engine. It consumes an
// assembled export as a byte stream in one forward pass, normalizing each
// row and feeding it to consumers: grouped aggregates, window discovery, or
// a bounded sampler.
package engine

import (
	"strings"
	"time"

	"payscope/pkg/txn"
)

// Filter is the declarative predicate set applied to every row. The same
// compiled filter is shared by both passes of a two-pass query, so the
// window-discovery pass and the aggregation pass can never drift apart.
type Filter struct {
	From time.Time // zero = unbounded
	To   time.Time // zero = unbounded

	Statuses  []string // canonical statuses, e.g. SUCCESS
	Modes     []string // payment modes (raw values, not mode groups)
	Merchants []string
	Gateways  []string
	Banks     []string
	CardTypes []string
}

// Matcher is the compiled, reusable form of a Filter.
type Matcher struct {
	from, to  time.Time
	statuses  map[string]bool
	modes     map[string]bool
	merchants map[string]bool
	gateways  map[string]bool
	banks     map[string]bool
	cardTypes map[string]bool
}

// Compile folds the allow-lists for case-insensitive matching.
func (f Filter) Compile() *Matcher {
	return &Matcher{
		from:      f.From,
		to:        f.To,
		statuses:  foldSet(f.Statuses),
		modes:     foldSet(f.Modes),
		merchants: foldSet(f.Merchants),
		gateways:  foldSet(f.Gateways),
		banks:     foldSet(f.Banks),
		cardTypes: foldSet(f.CardTypes),
	}
}

// Matches reports whether a transaction passes every predicate. Rows
// without a parseable timestamp fail any date-bounded filter.
func (m *Matcher) Matches(t *txn.Transaction) bool {
	if !m.from.IsZero() || !m.to.IsZero() {
		if !t.HasTime {
			return false
		}
		if !m.from.IsZero() && t.Timestamp.Before(m.from) {
			return false
		}
		if !m.to.IsZero() && t.Timestamp.After(m.to) {
			return false
		}
	}

	if !inSet(m.statuses, t.Status) {
		return false
	}
	if !inSet(m.modes, t.PaymentMode) {
		return false
	}
	if !inSet(m.merchants, t.MerchantID) {
		return false
	}
	if !inSet(m.gateways, t.Gateway) {
		return false
	}
	if !inSet(m.banks, t.BankName) {
		return false
	}
	if !inSet(m.cardTypes, t.CardType) {
		return false
	}
	return true
}

// WithWindow returns a copy of the filter bounded to [from, to]. The
// allow-lists are carried over untouched.
func (f Filter) WithWindow(from, to time.Time) Filter {
	f.From = from
	f.To = to
	return f
}

func foldSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// inSet is true when the allow-list is empty (no filtering) or contains the
// folded value.
func inSet(set map[string]bool, value string) bool {
	if set == nil {
		return true
	}
	return set[strings.ToLower(strings.TrimSpace(value))]
}
