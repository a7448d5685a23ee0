package parser

import (
	"testing"
	"time"

	"github.com/cediguard/cediguard/internal/domain"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 15, 9, 45, 0, 0, time.UTC)
}

func testParser() *Parser {
	return New(WithClock(fixedClock))
}

func TestParseReceivedMTN(t *testing.T) {
	raw := "MTN MoMo: You received GHS 200.00 from 0551234567 John Doe on 2024-01-12 at 14:30:00. New Balance: GHS 2,450.50"

	tx := testParser().Parse(raw)

	if tx.Provider != domain.ProviderMTN {
		t.Errorf("provider = %s, want MTN", tx.Provider)
	}
	if tx.Type != domain.TypeReceived {
		t.Errorf("type = %s, want received", tx.Type)
	}
	if tx.Amount == nil || *tx.Amount != 200.00 {
		t.Errorf("amount = %v, want 200.00", tx.Amount)
	}
	if tx.CounterpartyNumber != "0551234567" {
		t.Errorf("counterparty number = %q, want 0551234567", tx.CounterpartyNumber)
	}
	if tx.CounterpartyName != "John Doe" {
		t.Errorf("counterparty name = %q, want John Doe", tx.CounterpartyName)
	}
	if tx.Balance == nil || *tx.Balance != 2450.50 {
		t.Errorf("balance = %v, want 2450.50", tx.Balance)
	}
	if tx.Date != "2024-01-12" {
		t.Errorf("date = %q, want 2024-01-12", tx.Date)
	}
	if tx.Time != "2:30 PM" {
		t.Errorf("time = %q, want 2:30 PM", tx.Time)
	}
	if tx.Hour24 != 14 {
		t.Errorf("hour24 = %d, want 14", tx.Hour24)
	}
	if !tx.IsValid {
		t.Errorf("isValid = false, parseErrors = %v", tx.ParseErrors)
	}
}

func TestParseUnrecognized(t *testing.T) {
	tx := testParser().Parse("Vodafone Cash: transaction processed")

	if tx.IsValid {
		t.Error("expected isValid = false")
	}
	if tx.Provider != domain.ProviderVodafone {
		t.Errorf("provider = %s, want Vodafone", tx.Provider)
	}

	wantErrs := []string{"Amount not found", "Transaction type not detected"}
	for _, want := range wantErrs {
		found := false
		for _, got := range tx.ParseErrors {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("parseErrors missing %q, got %v", want, tx.ParseErrors)
		}
	}
}

func TestParseIdempotent(t *testing.T) {
	raw := "MTN MoMo: GHS 50.00 sent to 0244000000 Ama Mensah on 2024-02-01 at 08:15. Ref: 77310011223. Fee charged: GHS 0.50"
	p := testParser()

	a := p.Parse(raw)
	b := p.Parse(raw)

	if a.Amount == nil || b.Amount == nil || *a.Amount != *b.Amount ||
		a.Type != b.Type || a.Provider != b.Provider ||
		a.CounterpartyName != b.CounterpartyName || a.Time != b.Time ||
		a.IsValid != b.IsValid {
		t.Errorf("parse not idempotent: %+v vs %+v", a, b)
	}
}

func TestProviderPrecedence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.Provider
	}{
		{"mtn brand", "MTN Mobile Money payment", domain.ProviderMTN},
		{"momo keyword", "MoMo: payment confirmed", domain.ProviderMTN},
		{"generic mobile money", "Mobile Money transfer done", domain.ProviderMTN},
		{"vodafone", "Vodafone Cash transfer", domain.ProviderVodafone},
		{"telecel before vodafone", "Telecel Cash (formerly Vodafone Cash)", domain.ProviderTelecelCash},
		{"airteltigo", "AirtelTigo Money notice", domain.ProviderAirtelTigo},
		{"at money", "AT Money: you received", domain.ProviderAirtelTigo},
		{"none", "Your OTP code is 123456", domain.ProviderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractProvider(tt.text); got != tt.want {
				t.Errorf("extractProvider(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestTypePrecedence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.TransactionType
	}{
		{"received", "You received GHS 10", domain.TypeReceived},
		{"credited", "Your wallet was credited with GHS 10", domain.TypeReceived},
		{"sent", "You sent GHS 10 to Kofi", domain.TypeSent},
		{"transferred", "You transferred GHS 10", domain.TypeSent},
		{"cash out wins over sent", "Cash Out sent to agent", domain.TypeCashOut},
		{"sent wins over received", "Amount sent. Receiver has received it", domain.TypeSent},
		{"withdrawal", "You withdrew cash. Withdrawal complete", domain.TypeWithdrawal},
		{"deposit", "Deposit of GHS 10 made", domain.TypeDeposit},
		{"airtime", "Airtime purchase of GHS 5", domain.TypeAirtime},
		{"bill payment", "Bill payment to ECG", domain.TypeBillPayment},
		{"none", "Welcome to our service", domain.TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractType(tt.text); got != tt.want {
				t.Errorf("extractType(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
		none bool
	}{
		{"plain", "You sent GHS 200.00 to Kofi", 200, false},
		{"cedi symbol", "You sent ₵75.50", 75.50, false},
		{"gh cedi symbol", "You sent GH₵ 13", 13, false},
		{"thousands", "Received GHS 12,345.67", 12345.67, false},
		{"skips balance label", "New Balance: GHS 900.00 after sending GHS 20.00", 20, false},
		{"skips fee label", "Fee charged: GHS 0.50. Sent GHS 40", 40, false},
		{"no currency marker", "You sent 200.00 cedis", 0, true},
		{"zero rejected", "Sent GHS 0.00 to Kofi", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractAmount(tt.text)
			if tt.none {
				if got != nil {
					t.Errorf("extractAmount(%q) = %v, want nil", tt.text, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("extractAmount(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractBalance(t *testing.T) {
	tests := []struct {
		text string
		want float64
		none bool
	}{
		{"New Balance: GHS 2,450.50", 2450.50, false},
		{"Current balance GHS 10", 10, false},
		{"Your wallet balance is ₵99.99", 99.99, false},
		{"no balance here GHS 5", 0, true},
	}

	for _, tt := range tests {
		got := extractBalance(tt.text)
		if tt.none {
			if got != nil {
				t.Errorf("extractBalance(%q) = %v, want nil", tt.text, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("extractBalance(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtractFeeAndELevy(t *testing.T) {
	text := "You sent GHS 500.00. You were charged GHS 2.50. E-levy charge is GHS 5.00"

	fee := extractFee(text)
	if fee == nil || *fee != 2.50 {
		t.Errorf("fee = %v, want 2.50", fee)
	}

	levy := extractELevy(text)
	if levy == nil || *levy != 5.00 {
		t.Errorf("elevy = %v, want 5.00", levy)
	}
}

func TestExtractReference(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"leading batch id", "77310011223 Confirmed. Payment received", "77310011223"},
		{"labeled reference", "Payment done. Reference: ABC123XYZ", "ABC123XYZ"},
		{"transaction id label", "Transaction ID: 99887766", "99887766"},
		{"ref label", "Ref. 5544332211", "5544332211"},
		{"none", "Payment done", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractReference(tt.text); got != tt.want {
				t.Errorf("extractReference(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractCounterparty(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		txType     domain.TransactionType
		wantName   string
		wantNumber string
	}{
		{"received dash", "received GHS 5 from 0551234567-Ama Serwaa on 2024-01-01", domain.TypeReceived, "Ama Serwaa", "0551234567"},
		{"received space", "received GHS 5 from 0551234567 Ama Serwaa on 2024-01-01", domain.TypeReceived, "Ama Serwaa", "0551234567"},
		{"sent number name", "sent to 0244000000 Kwame Asante on 2024-01-01", domain.TypeSent, "Kwame Asante", "0244000000"},
		{"sent name number", "sent to Kwame Asante 0244000000", domain.TypeSent, "Kwame Asante", "0244000000"},
		{"cash out merchant", "Cash Out for GHS 100 to AgentMart. Current Balance: GHS 20", domain.TypeCashOut, "AgentMart", ""},
		{"no match", "You sent GHS 5", domain.TypeSent, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, number := extractCounterparty(tt.text, tt.txType)
			if name != tt.wantName || number != tt.wantNumber {
				t.Errorf("extractCounterparty() = (%q, %q), want (%q, %q)", name, number, tt.wantName, tt.wantNumber)
			}
		})
	}
}

func TestExtractDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"on 2024-01-12 at noon", "2024-01-12"},
		{"on 12-01-2024 at noon", "2024-01-12"},
		{"no date here", ""},
	}

	for _, tt := range tests {
		if got := extractDate(tt.text); got != tt.want {
			t.Errorf("extractDate(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractTime(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantDisplay string
		wantHour    int
		wantOK      bool
	}{
		{"24h with seconds", "at 14:30:00 today", "2:30 PM", 14, true},
		{"24h short", "at 08:15 today", "8:15 AM", 8, true},
		{"12h pm", "at 2:30 PM", "2:30 PM", 14, true},
		{"12h am", "at 12:05 AM", "12:05 AM", 0, true},
		{"noon", "at 12:00 PM", "12:00 PM", 12, true},
		{"midnight 24h", "at 00:10", "12:10 AM", 0, true},
		{"none", "no clock in here", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display, hour, _, ok := extractTime(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("extractTime(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if display != tt.wantDisplay || hour != tt.wantHour {
				t.Errorf("extractTime(%q) = (%q, %d), want (%q, %d)", tt.text, display, hour, tt.wantDisplay, tt.wantHour)
			}
		})
	}
}

func TestDateTimeFallback(t *testing.T) {
	tx := testParser().Parse("MTN MoMo: You received GHS 20.00 from 0551234567 Kojo Yeboah")

	if tx.Date != "2024-03-15" {
		t.Errorf("date = %q, want clock fallback 2024-03-15", tx.Date)
	}
	if tx.Time != "9:45 AM" || tx.Hour24 != 9 {
		t.Errorf("time = %q hour=%d, want clock fallback 9:45 AM / 9", tx.Time, tx.Hour24)
	}
	if !tx.IsValid {
		t.Errorf("expected valid with fallback date/time, errors = %v", tx.ParseErrors)
	}
}

func TestValidationPerType(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantValid bool
		wantErr   string
	}{
		{
			"received without sender",
			"MTN MoMo: You received GHS 20.00 on 2024-01-12 at 14:30",
			false, "Sender information not found",
		},
		{
			"sent without receiver",
			"MTN MoMo: You sent GHS 20.00 on 2024-01-12 at 14:30",
			false, "Receiver information not found",
		},
		{
			"cash out without merchant",
			"MTN MoMo: Cash Out of GHS 20.00 on 2024-01-12 at 14:30",
			false, "Merchant name not found",
		},
		{
			"cash out with merchant",
			"MTN MoMo: Cash Out of GHS 20.00 to AgentMart. Current Balance: GHS 5.00 on 2024-01-12 at 14:30",
			true, "",
		},
		{
			"withdrawal needs no counterparty",
			"MTN MoMo: Withdrawal of GHS 20.00 on 2024-01-12 at 14:30",
			true, "",
		},
		{
			"deposit needs no counterparty",
			"Vodafone Cash: Deposit of GHS 20.00 on 2024-01-12 at 14:30",
			true, "",
		},
		{
			"missing amount",
			"MTN MoMo: You received money from 0551234567 John Doe on 2024-01-12 at 14:30",
			false, "Amount not found",
		},
		{
			"unknown provider",
			"You received GHS 20.00 from 0551234567 John Doe on 2024-01-12 at 14:30",
			false, "Provider not recognized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testParser().Parse(tt.text)
			if tx.IsValid != tt.wantValid {
				t.Fatalf("isValid = %v, want %v (errors %v)", tx.IsValid, tt.wantValid, tx.ParseErrors)
			}
			if tt.wantErr == "" {
				return
			}
			found := false
			for _, e := range tx.ParseErrors {
				if e == tt.wantErr {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("parseErrors = %v, want to include %q", tx.ParseErrors, tt.wantErr)
			}
		})
	}
}
