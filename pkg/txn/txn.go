// Package txn defines the canonical transaction record and the pure
// normalization and classification helpers that produce it from raw export
// rows. Everything downstream (aggregation, RCA) trusts the derived fields
// computed here and never re-derives them.
package txn

import "time"

// Transaction statuses seen in exports. Anything else counts as "other".
const (
	StatusSuccess     = "SUCCESS"
	StatusCharged     = "CHARGED"
	StatusFailed      = "FAILED"
	StatusFailure     = "FAILURE"
	StatusAuthFailed  = "AUTHENTICATION_FAILED"
	StatusAuthzFailed = "AUTHORIZATION_FAILED"
	StatusUserDropped = "USER_DROPPED"
)

// Unknown is the collapsed value for blank or unrecognized dimension values.
const Unknown = "Unknown"

// Transaction is the fixed-shape canonical record. Derived fields
// (IsSuccess, IsFailed, IsUserDropped, DateKey) are computed once at
// normalization time.
type Transaction struct {
	Status      string
	PaymentMode string
	MerchantID  string
	Gateway     string
	BankName    string

	// Card attributes
	CardType       string
	CardCountry    string
	ProcessingType string
	Frictionless   string
	AuthType       string

	// UPI attributes
	PSP      string
	MaskedID string

	// Error taxonomy: one code/reason/source/description set from the
	// primary upstream, one code/message pair from the gateway.
	ErrorCode    string
	ErrorReason  string
	ErrorSource  string
	ErrorDesc    string
	GatewayCode  string
	GatewayError string

	Timestamp time.Time
	HasTime   bool
	DateKey   string // "2006-01-02", empty when HasTime is false

	Amount         float64
	CapturedAmount float64
	OrderAmount    float64

	IsSuccess     bool
	IsFailed      bool
	IsUserDropped bool
}

// deriveFlags computes the status booleans and date key. Called exactly once
// per record, at the end of normalization.
func (t *Transaction) deriveFlags() {
	switch t.Status {
	case StatusSuccess, StatusCharged:
		t.IsSuccess = true
	case StatusUserDropped:
		t.IsUserDropped = true
	case StatusFailed, StatusFailure, StatusAuthFailed, StatusAuthzFailed:
		t.IsFailed = true
	}
	if t.HasTime {
		t.DateKey = t.Timestamp.Format("2006-01-02")
	}
}
