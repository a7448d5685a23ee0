// Package domain defines the core interfaces and types for CediGuard.
package domain

import (
	"time"
)

// Provider identifies the mobile-money network that sent an SMS.
type Provider string

const (
	ProviderMTN         Provider = "MTN"
	ProviderVodafone    Provider = "Vodafone"
	ProviderAirtelTigo  Provider = "AirtelTigo"
	ProviderTelecelCash Provider = "TelecelCash"
	ProviderUnknown     Provider = "Unknown"
)

// TransactionType classifies a mobile-money transaction.
type TransactionType string

const (
	TypeSent        TransactionType = "sent"
	TypeReceived    TransactionType = "received"
	TypeWithdrawal  TransactionType = "withdrawal"
	TypeDeposit     TransactionType = "deposit"
	TypeCashOut     TransactionType = "cash_out"
	TypeAirtime     TransactionType = "airtime"
	TypeBillPayment TransactionType = "bill_payment"
	TypeUnknown     TransactionType = "unknown"
)

// IsOutflow reports whether the transaction type moves money out of the
// wallet. Unknown types are treated as inflows.
func (t TransactionType) IsOutflow() bool {
	switch t {
	case TypeSent, TypeWithdrawal, TypeCashOut, TypeAirtime, TypeBillPayment:
		return true
	}
	return false
}

// ParsedTransaction is the structured result of parsing a provider SMS.
// Optional decimal fields are pointers: nil means the field was not present
// in the message text. Amounts are GHS.
type ParsedTransaction struct {
	Provider Provider        `json:"provider"`
	Type     TransactionType `json:"transactionType"`

	Amount *float64 `json:"amount,omitempty"`

	// Counterparty: sender for received, receiver for sent, merchant for
	// cash_out.
	CounterpartyName   string `json:"counterpartyName,omitempty"`
	CounterpartyNumber string `json:"counterpartyNumber,omitempty"`

	Balance *float64 `json:"balance,omitempty"`
	Fee     *float64 `json:"fee,omitempty"`
	ELevy   *float64 `json:"eLevy,omitempty"`

	ReferenceID string `json:"referenceId,omitempty"`

	// Date is the transaction date as YYYY-MM-DD. Time is the canonical
	// 12-hour display string ("2:05 PM"); Hour24 is the 24-hour value used
	// for time-of-day risk checks.
	Date   string `json:"transactionDate,omitempty"`
	Time   string `json:"time,omitempty"`
	Hour24 int    `json:"-"`
	Minute int    `json:"-"`

	// IsValid is derived purely from the presence of the required fields
	// for Type. ParseErrors lists each missing required field in order.
	IsValid     bool     `json:"isValid"`
	ParseErrors []string `json:"parseErrors,omitempty"`
}

// Counterparty returns the best identifier for the other party: the name
// when known, otherwise the number.
func (p *ParsedTransaction) Counterparty() string {
	if p.CounterpartyName != "" {
		return p.CounterpartyName
	}
	return p.CounterpartyNumber
}

// AmountValue returns the amount or 0 when absent.
func (p *ParsedTransaction) AmountValue() float64 {
	if p.Amount == nil {
		return 0
	}
	return *p.Amount
}

// BalanceValue returns the post-transaction balance or 0 when absent.
func (p *ParsedTransaction) BalanceValue() float64 {
	if p.Balance == nil {
		return 0
	}
	return *p.Balance
}

// Transaction is a persisted, parsed SMS transaction.
type Transaction struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	AccountID string `json:"accountId"`

	Parsed ParsedTransaction `json:"parsed"`

	// RawMessage is the original SMS text, kept for audit and re-parsing.
	RawMessage string `json:"rawMessage"`

	CreatedAt time.Time `json:"createdAt"`
}

// SMSRequest is the API request payload for SMS evaluation.
type SMSRequest struct {
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
	Sender    string `json:"sender,omitempty"`
}
