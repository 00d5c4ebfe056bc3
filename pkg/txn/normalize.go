package txn

import "strings"

// Field identifies a canonical column of the transaction record.
type Field string

const (
	FieldStatus         Field = "status"
	FieldPaymentMode    Field = "payment_mode"
	FieldMerchantID     Field = "merchant_id"
	FieldGateway        Field = "gateway"
	FieldBank           Field = "bank"
	FieldCardType       Field = "card_type"
	FieldCardCountry    Field = "card_country"
	FieldProcessingType Field = "processing_type"
	FieldFrictionless   Field = "frictionless"
	FieldAuthType       Field = "auth_type"
	FieldPSP            Field = "psp"
	FieldMaskedID       Field = "masked_id"
	FieldErrorCode      Field = "error_code"
	FieldErrorReason    Field = "error_reason"
	FieldErrorSource    Field = "error_source"
	FieldErrorDesc      Field = "error_desc"
	FieldGatewayCode    Field = "gateway_code"
	FieldGatewayError   Field = "gateway_error"
	FieldTime           Field = "time"
	FieldAmount         Field = "amount"
	FieldCapturedAmount Field = "captured_amount"
	FieldOrderAmount    Field = "order_amount"
)

// headerAliases maps folded header names (lowercase, separators stripped) to
// canonical fields. Covers the spellings seen across upstream exports.
var headerAliases = map[string]Field{
	"status":            FieldStatus,
	"txstatus":          FieldStatus,
	"txnstatus":         FieldStatus,
	"transactionstatus": FieldStatus,

	"paymentmode":       FieldPaymentMode,
	"paymentmethod":     FieldPaymentMode,
	"paymethod":         FieldPaymentMode,
	"paymentinstrument": FieldPaymentMode,
	"mode":              FieldPaymentMode,

	"merchantid": FieldMerchantID,
	"merchant":   FieldMerchantID,
	"mid":        FieldMerchantID,

	"gateway":        FieldGateway,
	"pg":             FieldGateway,
	"pgname":         FieldGateway,
	"paymentgateway": FieldGateway,

	"bank":       FieldBank,
	"bankname":   FieldBank,
	"issuerbank": FieldBank,

	"cardtype":   FieldCardType,
	"typeofcard": FieldCardType,

	"cardcountry":       FieldCardCountry,
	"cardissuercountry": FieldCardCountry,
	"issuercountry":     FieldCardCountry,
	"countrycode":       FieldCardCountry,

	"processingtype":     FieldProcessingType,
	"cardprocessingtype": FieldProcessingType,

	"frictionless":     FieldFrictionless,
	"isfrictionless":   FieldFrictionless,
	"frictionlessflag": FieldFrictionless,

	"authtype": FieldAuthType,
	"otptype":  FieldAuthType,

	"psp":      FieldPSP,
	"upipsp":   FieldPSP,
	"pspapp":   FieldPSP,
	"payerapp": FieldPSP,

	"maskedid":            FieldMaskedID,
	"maskedcardnumber":    FieldMaskedID,
	"cardnumber":          FieldMaskedID,
	"maskedaccountnumber": FieldMaskedID,
	"payervpa":            FieldMaskedID,
	"vpa":                 FieldMaskedID,
	"upiid":               FieldMaskedID,

	"errorcode":     FieldErrorCode,
	"errcode":       FieldErrorCode,
	"bankerrorcode": FieldErrorCode,

	"errorreason":   FieldErrorReason,
	"errreason":     FieldErrorReason,
	"failurereason": FieldErrorReason,
	"reason":        FieldErrorReason,

	"errorsource": FieldErrorSource,
	"errsource":   FieldErrorSource,
	"source":      FieldErrorSource,

	"errordescription": FieldErrorDesc,
	"errordesc":        FieldErrorDesc,
	"errormessage":     FieldErrorDesc,
	"description":      FieldErrorDesc,

	"gatewayerrorcode": FieldGatewayCode,
	"pgerrorcode":      FieldGatewayCode,
	"gatewaycode":      FieldGatewayCode,

	"gatewayerrormessage": FieldGatewayError,
	"pgerrormessage":      FieldGatewayError,
	"gatewayerror":        FieldGatewayError,

	"txtime":          FieldTime,
	"txdate":          FieldTime,
	"transactiontime": FieldTime,
	"transactiondate": FieldTime,
	"datetime":        FieldTime,
	"createdat":       FieldTime,
	"date":            FieldTime,

	"txamount":          FieldAmount,
	"amount":            FieldAmount,
	"transactionamount": FieldAmount,

	"capturedamount": FieldCapturedAmount,
	"amountcaptured": FieldCapturedAmount,

	"orderamount": FieldOrderAmount,
	"amtorder":    FieldOrderAmount,
}

// foldHeader lowercases a raw header and strips whitespace, underscores and
// dashes so "Transaction Status", "tx_status" and "TxStatus" all fold the
// same way.
func foldHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		switch r {
		case ' ', '\t', '_', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HeaderIndex resolves a raw CSV header row into a canonical field -> column
// index map. Unrecognized headers are ignored; the first column claiming a
// field wins.
func HeaderIndex(headers []string) map[Field]int {
	idx := make(map[Field]int, len(headers))
	for i, h := range headers {
		field, ok := headerAliases[foldHeader(h)]
		if !ok {
			continue
		}
		if _, claimed := idx[field]; !claimed {
			idx[field] = i
		}
	}
	return idx
}

// Normalize maps one raw CSV record into a canonical Transaction. Returns
// nil only when the row carries no parseable identity at all (every mapped
// column blank). Rows with an unparseable timestamp are kept with
// HasTime=false; time-windowed consumers exclude them, global totals may
// still count them.
func Normalize(record []string, idx map[Field]int) *Transaction {
	get := func(f Field) string {
		i, ok := idx[f]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	empty := true
	for f := range idx {
		if get(f) != "" {
			empty = false
			break
		}
	}
	if empty {
		return nil
	}

	t := &Transaction{
		Status:         strings.ToUpper(get(FieldStatus)),
		PaymentMode:    strings.ToUpper(get(FieldPaymentMode)),
		MerchantID:     get(FieldMerchantID),
		Gateway:        get(FieldGateway),
		BankName:       get(FieldBank),
		CardType:       strings.ToUpper(get(FieldCardType)),
		CardCountry:    get(FieldCardCountry),
		ProcessingType: strings.ToUpper(get(FieldProcessingType)),
		Frictionless:   strings.ToUpper(get(FieldFrictionless)),
		AuthType:       strings.ToUpper(get(FieldAuthType)),
		PSP:            get(FieldPSP),
		MaskedID:       get(FieldMaskedID),
		ErrorCode:      get(FieldErrorCode),
		ErrorReason:    get(FieldErrorReason),
		ErrorSource:    get(FieldErrorSource),
		ErrorDesc:      get(FieldErrorDesc),
		GatewayCode:    get(FieldGatewayCode),
		GatewayError:   get(FieldGatewayError),
		Amount:         ParseAmount(get(FieldAmount)),
		CapturedAmount: ParseAmount(get(FieldCapturedAmount)),
		OrderAmount:    ParseAmount(get(FieldOrderAmount)),
	}

	t.Timestamp, t.HasTime = ParseTimestamp(get(FieldTime))
	t.deriveFlags()
	return t
}
