// Package rca compares two materialized transaction sets (current and
// previous period) and explains the SR movement between them: failure-side
// dimension attribution, customer-behavior segmentation, volume-mix shifts,
// and ranked natural-language insights.
package rca

import (
	"strings"

	"payscope/pkg/engine"
	"payscope/pkg/txn"
)

// Payment mode groups accepted by Compare.
const (
	ModeUPI        = "UPI"
	ModeCard       = "CARD"
	ModeNetbanking = "NB"
	ModeWallet     = "WALLET"
	ModeAll        = "ALL"
)

// ExpandMode expands a mode group into the raw payment-mode values that the
// exports carry for it.
func ExpandMode(group string) []string {
	switch strings.ToUpper(strings.TrimSpace(group)) {
	case ModeUPI:
		return []string{"UPI", "UPI_COLLECT", "UPI_INTENT"}
	case ModeCard:
		return []string{"CARD", "CREDIT_CARD", "DEBIT_CARD"}
	case ModeNetbanking, "NETBANKING":
		return []string{"NB", "NETBANKING", "NET_BANKING"}
	case ModeWallet:
		return []string{"WALLET"}
	case ModeAll, "":
		return nil // no restriction
	default:
		return []string{strings.ToUpper(strings.TrimSpace(group))}
	}
}

// ModeDimensions is the fixed dimension list analyzed per payment mode.
func ModeDimensions(group string) []engine.Dimension {
	switch strings.ToUpper(strings.TrimSpace(group)) {
	case ModeUPI:
		return []engine.Dimension{
			engine.DimGateway, engine.DimFlow, engine.DimHandle,
			engine.DimPSP, engine.DimFailureReason,
		}
	case ModeCard:
		return []engine.Dimension{
			engine.DimGateway, engine.DimCardType, engine.DimCardScope,
			engine.DimBank, engine.DimProcessingType, engine.DimAuthType,
		}
	case ModeNetbanking, "NETBANKING":
		return []engine.Dimension{engine.DimGateway, engine.DimBank}
	default:
		return []engine.Dimension{engine.DimGateway, engine.DimPaymentMode, engine.DimFailureReason}
	}
}

// filterByModes keeps transactions whose payment mode is in the expansion.
// A nil expansion keeps everything.
func filterByModes(set []*txn.Transaction, modes []string) []*txn.Transaction {
	if len(modes) == 0 {
		return set
	}
	allowed := make(map[string]bool, len(modes))
	for _, m := range modes {
		allowed[m] = true
	}
	out := make([]*txn.Transaction, 0, len(set))
	for _, t := range set {
		if allowed[t.PaymentMode] {
			out = append(out, t)
		}
	}
	return out
}
