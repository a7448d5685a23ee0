package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cediguard/cediguard/internal/domain"
)

// Each field has its own named extraction rule. Rules are independent full
// scans of the message text so provider formats can evolve without touching
// each other.

// providerKeyword maps a case-insensitive substring to a provider. The
// table is ordered: specific brand names come before generic ones and the
// first match wins.
type providerKeyword struct {
	keyword  string
	provider domain.Provider
}

var providerKeywords = []providerKeyword{
	{"telecel cash", domain.ProviderTelecelCash},
	{"telecel", domain.ProviderTelecelCash},
	{"vodafone cash", domain.ProviderVodafone},
	{"vodafone", domain.ProviderVodafone},
	{"airteltigo", domain.ProviderAirtelTigo},
	{"airtel tigo", domain.ProviderAirtelTigo},
	{"at money", domain.ProviderAirtelTigo},
	{"mtn", domain.ProviderMTN},
	{"momo", domain.ProviderMTN},
	{"mobile money", domain.ProviderMTN},
}

// extractProvider resolves the sending network from brand keywords.
func extractProvider(text string) domain.Provider {
	lower := strings.ToLower(text)
	for _, pk := range providerKeywords {
		if strings.Contains(lower, pk.keyword) {
			return pk.provider
		}
	}
	return domain.ProviderUnknown
}

// typeKeyword maps a phrase to a transaction type. Ordered so the specific
// outflow phrasings win before the generic sent/received markers; a message
// containing both "sent" and "received" wording resolves to the earlier
// entry, never both.
type typeKeyword struct {
	keyword string
	txType  domain.TransactionType
}

var typeKeywords = []typeKeyword{
	{"cash out", domain.TypeCashOut},
	{"cash-out", domain.TypeCashOut},
	{"cashout", domain.TypeCashOut},
	{"withdraw", domain.TypeWithdrawal},
	{"deposit", domain.TypeDeposit},
	{"airtime", domain.TypeAirtime},
	{"recharge", domain.TypeAirtime},
	{"bill payment", domain.TypeBillPayment},
	{"bill pay", domain.TypeBillPayment},
	{"sent", domain.TypeSent},
	{"transferred", domain.TypeSent},
	{"received", domain.TypeReceived},
	{"credited", domain.TypeReceived},
}

// extractType resolves the transaction type from keyword phrases.
func extractType(text string) domain.TransactionType {
	lower := strings.ToLower(text)
	for _, tk := range typeKeywords {
		if strings.Contains(lower, tk.keyword) {
			return tk.txType
		}
	}
	return domain.TypeUnknown
}

// Currency-marked numeral: GHS / GH₵ / ₵ followed by a number with optional
// comma thousands separators and up to two decimal places. Decimal point
// only; comma is strictly a thousands separator.
var currencyAmountRe = regexp.MustCompile(`(?i)(?:GHS|GH₵|₵)\s*((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?)`)

// Labels that claim the currency numeral that follows them, making it
// ineligible as the transaction amount.
var claimedLabels = []string{"balance", "charged", "fee", "levy"}

// extractAmount finds the first currency-marked numeral not claimed by a
// preceding balance/fee/levy label. Non-positive results are rejected.
func extractAmount(text string) *float64 {
	lower := strings.ToLower(text)
	for _, m := range currencyAmountRe.FindAllStringSubmatchIndex(text, -1) {
		prefixStart := m[0] - 28
		if prefixStart < 0 {
			prefixStart = 0
		}
		prefix := lower[prefixStart:m[0]]
		claimed := false
		for _, label := range claimedLabels {
			if strings.Contains(prefix, label) {
				claimed = true
				break
			}
		}
		if claimed {
			continue
		}

		v, ok := parseDecimal(text[m[2]:m[3]])
		if !ok || v <= 0 {
			continue
		}
		return &v
	}
	return nil
}

// Balance keyword variants ("new balance", "current balance",
// "your ... balance is") followed by a currency-marked numeral.
var balanceRe = regexp.MustCompile(`(?i)balance(?:\s+is)?\s*:?\s*(?:GHS|GH₵|₵)\s*((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?)`)

func extractBalance(text string) *float64 {
	m := balanceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, ok := parseDecimal(m[1])
	if !ok {
		return nil
	}
	return &v
}

var feeRe = regexp.MustCompile(`(?i)(?:you were charged|fee charged(?:\s+is)?|fee)\s*:?\s*(?:GHS|GH₵|₵)\s*((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?)`)

func extractFee(text string) *float64 {
	m := feeRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, ok := parseDecimal(m[1])
	if !ok {
		return nil
	}
	return &v
}

var eLevyRe = regexp.MustCompile(`(?i)e-?levy(?:\s+charge)?(?:\s+is)?\s*:?\s*(?:GHS|GH₵|₵)\s*((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?)`)

func extractELevy(text string) *float64 {
	m := eLevyRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, ok := parseDecimal(m[1])
	if !ok {
		return nil
	}
	return &v
}

// Reference extraction tries the provider batch format first (a long
// numeric prefix at the head of the message), then an explicit label.
var (
	leadingRefRe = regexp.MustCompile(`^\s*(\d{8,})`)
	labeledRefRe = regexp.MustCompile(`(?i)\b(?:transaction\s*id|reference|ref)\b\s*[:.]?\s*([A-Za-z0-9]+)`)
)

func extractReference(text string) string {
	if m := leadingRefRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := labeledRefRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// Counterparty patterns are type-dependent. Phone numbers are 9-13 digits;
// names run until an " on <date>" clause, punctuation, or end of text.
var (
	receivedNumDashNameRe = regexp.MustCompile(`(?i)\bfrom\s+(\d{9,13})\s*-\s*([A-Za-z][A-Za-z .'-]*?)(?:\s+on\b|\s*[.,]|$)`)
	receivedNumNameRe     = regexp.MustCompile(`(?i)\bfrom\s+(\d{9,13})\s+([A-Za-z][A-Za-z .'-]*?)(?:\s+on\b|\s*[.,]|$)`)
	sentNumNameRe         = regexp.MustCompile(`(?i)\bsent\s+to\s+(\d{9,13})\s+([A-Za-z][A-Za-z .'-]*?)(?:\s+on\b|\s*[.,]|$)`)
	sentNameNumRe         = regexp.MustCompile(`(?i)\bsent\s+to\s+([A-Za-z][A-Za-z .'-]*?)\s+(\d{9,13})\b`)
	cashOutMerchantRe     = regexp.MustCompile(`(?i)\bto\s+([A-Za-z][A-Za-z0-9 .'&-]*?)\s*[.,]?\s+(?:current|your)\b`)
)

// extractCounterparty fills the counterparty name and number according to
// the detected transaction type.
func extractCounterparty(text string, txType domain.TransactionType) (name, number string) {
	switch txType {
	case domain.TypeReceived:
		if m := receivedNumDashNameRe.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[2]), m[1]
		}
		if m := receivedNumNameRe.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[2]), m[1]
		}
	case domain.TypeSent:
		if m := sentNumNameRe.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[2]), m[1]
		}
		if m := sentNameNumRe.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), m[2]
		}
	case domain.TypeCashOut:
		if m := cashOutMerchantRe.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), ""
		}
	}
	return "", ""
}

var (
	isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dmyDateRe = regexp.MustCompile(`\b(\d{2})-(\d{2})-(\d{4})\b`)
)

// extractDate returns the transaction date normalized to YYYY-MM-DD, or ""
// when the text carries none.
func extractDate(text string) string {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	if m := dmyDateRe.FindStringSubmatch(text); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1]
	}
	return ""
}

var timeRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AaPp][Mm])?`)

// extractTime returns the canonical 12-hour display string plus the
// 24-hour components. ok is false when no time is present.
func extractTime(text string) (display string, hour24, minute int, ok bool) {
	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return "", 0, 0, false
	}

	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if min > 59 {
		return "", 0, 0, false
	}

	meridiem := strings.ToUpper(m[4])
	switch meridiem {
	case "AM":
		if h > 12 {
			return "", 0, 0, false
		}
		if h == 12 {
			h = 0
		}
	case "PM":
		if h > 12 {
			return "", 0, 0, false
		}
		if h != 12 {
			h += 12
		}
	default:
		if h > 23 {
			return "", 0, 0, false
		}
	}

	return formatClock(h, min), h, min, true
}

// formatClock renders a 24-hour time as the canonical "H:MM AM/PM" string.
func formatClock(hour24, minute int) string {
	meridiem := "AM"
	h := hour24
	if h >= 12 {
		meridiem = "PM"
	}
	if h == 0 {
		h = 12
	} else if h > 12 {
		h -= 12
	}
	return strconv.Itoa(h) + ":" + pad2(minute) + " " + meridiem
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// parseDecimal parses a currency numeral, stripping comma thousands
// separators.
func parseDecimal(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
