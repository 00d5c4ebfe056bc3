package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUPIFlow(t *testing.T) {
	require.Equal(t, FlowCollect, UPIFlow(""))
	require.Equal(t, FlowCollect, UPIFlow("   "))
	require.Equal(t, FlowIntent, UPIFlow("intent"))
	require.Equal(t, FlowIntent, UPIFlow("INTENT"))
	require.Equal(t, "HDFC Bank", UPIFlow("HDFC Bank"))
}

func TestCardScope(t *testing.T) {
	require.Equal(t, Unknown, CardScope(""))
	require.Equal(t, ScopeDomestic, CardScope("IN"))
	require.Equal(t, ScopeDomestic, CardScope("in"))
	require.Equal(t, ScopeInternational, CardScope("US"))
}

func TestBankTier(t *testing.T) {
	require.Equal(t, "Tier 1 Bank", BankTier("HDFC Bank"))
	require.Equal(t, "Tier 1 Bank", BankTier("  sbi "))
	require.Equal(t, "Tier 2 Bank", BankTier("Some Cooperative Bank"))
	require.Equal(t, "Tier 2 Bank", BankTier(""))
}

func TestUPIHandle(t *testing.T) {
	require.Equal(t, "okhdfc", UPIHandle("name@okhdfc"))
	require.Equal(t, "ybl", UPIHandle("user@sub@YBL"))
	require.Equal(t, Unknown, UPIHandle("no-handle"))
	require.Equal(t, Unknown, UPIHandle("trailing@"))
	require.Equal(t, Unknown, UPIHandle(""))
}

func TestClassifyFailure_UserDroppedShortCircuits(t *testing.T) {
	tx := &Transaction{Status: StatusUserDropped, ErrorSource: "gateway"}
	tx.deriveFlags()
	require.Equal(t, CategoryCustomer, ClassifyFailure(tx))
}

func TestClassifyFailure_SourceVocabulary(t *testing.T) {
	cases := map[string]FailureCategory{
		"customer": CategoryCustomer,
		"Issuer":   CategoryIssuerBank,
		"BANK":     CategoryIssuerBank,
		"psp":      CategoryPSPApp,
		"gateway":  CategoryGatewayOrProcessor,
		"acquirer": CategoryGatewayOrProcessor,
		"merchant": CategoryMerchant,
		"risk":     CategoryFraudOrRisk,
	}
	for source, want := range cases {
		tx := &Transaction{Status: StatusFailed, ErrorSource: source, ErrorReason: "insufficient funds"}
		tx.deriveFlags()
		// Source vocabulary wins over keyword matches
		require.Equal(t, want, ClassifyFailure(tx), source)
	}
}

func TestClassifyFailure_KeywordPrecedence(t *testing.T) {
	cases := []struct {
		reason string
		want   FailureCategory
	}{
		{"Collect request expired", CategoryCustomer},
		{"Suspected fraud, declined", CategoryFraudOrRisk},
		{"Insufficient funds in account", CategoryIssuerBank},
		{"Do not honour", CategoryIssuerBank},
		{"Payer app not responding", CategoryPSPApp},
		{"Internal server error at switch", CategoryGatewayOrProcessor},
		{"Hash mismatch in request", CategoryMerchant},
		{"E1234 something novel", CategoryUnknown},
	}
	for _, c := range cases {
		tx := &Transaction{Status: StatusFailed, ErrorReason: c.reason}
		tx.deriveFlags()
		require.Equal(t, c.want, ClassifyFailure(tx), c.reason)
	}
}

func TestFailureLabel(t *testing.T) {
	tx := &Transaction{
		ErrorCode:   "U30",
		ErrorReason: "Debit has failed",
		ErrorSource: "bank",
	}
	require.Equal(t, "U30 | Debit has failed | bank", FailureLabel(tx))

	// Duplicate fragments are suppressed
	tx = &Transaction{ErrorCode: "U30", ErrorReason: "U30"}
	require.Equal(t, "U30", FailureLabel(tx))

	// Gateway code as fallback primary
	tx = &Transaction{GatewayCode: "ZA", ErrorDesc: "declined"}
	require.Equal(t, "ZA | declined", FailureLabel(tx))

	// Nothing at all
	require.Equal(t, Unknown, FailureLabel(&Transaction{}))
}
