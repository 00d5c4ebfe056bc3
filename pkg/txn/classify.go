package txn

import "strings"

// FailureCategory buckets a failed transaction by the party responsible.
type FailureCategory string

const (
	CategoryCustomer           FailureCategory = "CUSTOMER"
	CategoryIssuerBank         FailureCategory = "ISSUER_BANK"
	CategoryPSPApp             FailureCategory = "PSP_APP"
	CategoryGatewayOrProcessor FailureCategory = "GATEWAY_OR_PROCESSOR"
	CategoryFraudOrRisk        FailureCategory = "FRAUD_OR_RISK"
	CategoryMerchant           FailureCategory = "MERCHANT_OR_VALIDATION"
	CategoryUnknown            FailureCategory = "UNKNOWN"
)

// UPI flow labels
const (
	FlowCollect = "COLLECT"
	FlowIntent  = "INTENT"
)

// Card scope labels
const (
	ScopeDomestic      = "DOMESTIC"
	ScopeInternational = "INTERNATIONAL"
)

// UPIFlow infers the UPI initiation flow from the bank field. A blank bank
// means a collect request; the INTENT literal means intent flow; anything
// else is a named flow and passes through as-is.
func UPIFlow(bank string) string {
	b := strings.TrimSpace(bank)
	if b == "" {
		return FlowCollect
	}
	if strings.EqualFold(b, FlowIntent) {
		return FlowIntent
	}
	return b
}

// CardScope maps an issuer country code to DOMESTIC/INTERNATIONAL, or
// Unknown when absent.
func CardScope(country string) string {
	c := strings.TrimSpace(country)
	if c == "" {
		return Unknown
	}
	if strings.EqualFold(c, "IN") {
		return ScopeDomestic
	}
	return ScopeInternational
}

// tier1Banks is the fixed allow-list of major banks. Matching is
// case-insensitive.
var tier1Banks = map[string]bool{
	"hdfc bank":            true,
	"icici bank":           true,
	"state bank of india":  true,
	"sbi":                  true,
	"axis bank":            true,
	"kotak mahindra bank":  true,
	"punjab national bank": true,
	"bank of baroda":       true,
	"yes bank":             true,
	"indusind bank":        true,
}

// BankTier classifies a bank name as Tier 1 or Tier 2.
func BankTier(name string) string {
	if tier1Banks[strings.ToLower(strings.TrimSpace(name))] {
		return "Tier 1 Bank"
	}
	return "Tier 2 Bank"
}

// UPIHandle extracts the handle from a VPA-style identifier
// ("name@okhdfc" -> "okhdfc"). Identifiers without a handle collapse to
// Unknown.
func UPIHandle(maskedID string) string {
	at := strings.LastIndexByte(maskedID, '@')
	if at < 0 || at == len(maskedID)-1 {
		return Unknown
	}
	return strings.ToLower(maskedID[at+1:])
}

// sourceCategories is the exact small vocabulary checked against the
// error-source field before any text matching.
var sourceCategories = map[string]FailureCategory{
	"customer": CategoryCustomer,
	"user":     CategoryCustomer,
	"issuer":   CategoryIssuerBank,
	"bank":     CategoryIssuerBank,
	"psp":      CategoryPSPApp,
	"gateway":  CategoryGatewayOrProcessor,
	"acquirer": CategoryGatewayOrProcessor,
	"merchant": CategoryMerchant,
	"risk":     CategoryFraudOrRisk,
}

// categoryRule maps a keyword group to a category. Rules are evaluated in
// order; the first keyword hit wins, which keeps precedence auditable.
type categoryRule struct {
	category FailureCategory
	keywords []string
}

var categoryRules = []categoryRule{
	{CategoryCustomer, []string{
		"user dropped", "cancelled by user", "canceled by user",
		"transaction cancelled", "abandon", "user aborted",
		"collect request expired", "timed out", "timeout",
	}},
	{CategoryFraudOrRisk, []string{
		"fraud", "risk", "suspect", "blacklist", "velocity", "suspicious",
	}},
	{CategoryIssuerBank, []string{
		"insufficient", "do not honour", "do not honor", "declined by issuer",
		"issuer", "limit exceed", "invalid pin", "incorrect pin",
		"expired card", "card expired", "account blocked", "account frozen",
		"debit failed", "remitter bank",
	}},
	{CategoryPSPApp, []string{
		"psp", "upi app", "npci", "payer app", "app not responding",
	}},
	{CategoryGatewayOrProcessor, []string{
		"gateway", "acquirer", "processor", "internal server",
		"connection", "unable to process", "service unavailable",
		"switch", "bad gateway",
	}},
	{CategoryMerchant, []string{
		"invalid merchant", "invalid request", "validation", "mandatory",
		"missing param", "hash mismatch", "invalid vpa", "invalid card",
		"invalid account", "checksum",
	}},
}

// ClassifyFailure buckets a transaction's failure. USER_DROPPED status
// short-circuits to CUSTOMER before any text matching; then the
// error-source vocabulary; then the ordered keyword rules over the
// concatenated error texts.
func ClassifyFailure(t *Transaction) FailureCategory {
	if t.IsUserDropped {
		return CategoryCustomer
	}

	if cat, ok := sourceCategories[strings.ToLower(strings.TrimSpace(t.ErrorSource))]; ok {
		return cat
	}

	text := strings.ToLower(strings.Join([]string{
		t.ErrorReason, t.ErrorDesc, t.GatewayError, t.ErrorCode,
	}, " "))

	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

// FailureLabel builds a stable, informative label for a failed transaction:
// a stable code (either upstream taxonomy) or raw message as the primary,
// plus up to two distinct enrichment fragments.
func FailureLabel(t *Transaction) string {
	primary := firstNonEmpty(t.ErrorCode, t.GatewayCode, t.GatewayError)
	if primary == "" {
		primary = Unknown
	}

	label := primary
	appended := 0
	for _, fragment := range []string{t.ErrorReason, t.ErrorSource, t.ErrorDesc} {
		if appended == 2 {
			break
		}
		f := strings.TrimSpace(fragment)
		if f == "" || strings.EqualFold(f, primary) || strings.Contains(strings.ToLower(label), strings.ToLower(f)) {
			continue
		}
		label += " | " + f
		appended++
	}
	return label
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
