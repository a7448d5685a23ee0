// Package parser extracts structured transactions from mobile-money SMS
// text. Parsing is pure and never fails: missing fields are reported via
// ParsedTransaction.IsValid and ParseErrors.
package parser

import (
	"time"

	"github.com/cediguard/cediguard/internal/domain"
)

// Parser converts raw SMS text into ParsedTransaction values. The zero
// clock is the wall clock; tests inject a fixed one.
type Parser struct {
	now func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock fixes the clock used for date/time fallback.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse runs every extraction rule over the message and validates the
// result. Each rule scans the full text independently; no rule aborts the
// others.
func (p *Parser) Parse(raw string) *domain.ParsedTransaction {
	tx := &domain.ParsedTransaction{
		Provider: extractProvider(raw),
		Type:     extractType(raw),
	}

	tx.Amount = extractAmount(raw)
	tx.Balance = extractBalance(raw)
	tx.Fee = extractFee(raw)
	tx.ELevy = extractELevy(raw)
	tx.ReferenceID = extractReference(raw)
	tx.CounterpartyName, tx.CounterpartyNumber = extractCounterparty(raw, tx.Type)

	tx.Date = extractDate(raw)
	if display, hour, minute, ok := extractTime(raw); ok {
		tx.Time = display
		tx.Hour24 = hour
		tx.Minute = minute
	}

	// Providers occasionally omit the timestamp; fall back to the current
	// clock so downstream time-of-day checks still have an hour to work
	// with.
	if tx.Date == "" || tx.Time == "" {
		now := p.now()
		if tx.Date == "" {
			tx.Date = now.Format("2006-01-02")
		}
		if tx.Time == "" {
			tx.Hour24 = now.Hour()
			tx.Minute = now.Minute()
			tx.Time = formatClock(tx.Hour24, tx.Minute)
		}
	}

	validate(tx)
	return tx
}

// Parse is a convenience wrapper using a wall-clock parser.
func Parse(raw string) *domain.ParsedTransaction {
	return New().Parse(raw)
}

// validate derives IsValid purely from the presence of the required fields
// for the detected type, collecting one error per missing field. All checks
// run; nothing short-circuits.
func validate(tx *domain.ParsedTransaction) {
	var errs []string

	if tx.Type == domain.TypeUnknown {
		errs = append(errs, "Transaction type not detected")
	}
	if tx.Provider == domain.ProviderUnknown {
		errs = append(errs, "Provider not recognized")
	}
	if tx.Amount == nil {
		errs = append(errs, "Amount not found")
	}
	if tx.Date == "" {
		errs = append(errs, "Transaction date not found")
	}
	if tx.Time == "" {
		errs = append(errs, "Transaction time not found")
	}

	switch tx.Type {
	case domain.TypeReceived:
		if tx.CounterpartyName == "" && tx.CounterpartyNumber == "" {
			errs = append(errs, "Sender information not found")
		}
	case domain.TypeSent:
		if tx.CounterpartyName == "" && tx.CounterpartyNumber == "" {
			errs = append(errs, "Receiver information not found")
		}
	case domain.TypeCashOut:
		if tx.CounterpartyName == "" {
			errs = append(errs, "Merchant name not found")
		}
	}

	tx.ParseErrors = errs
	tx.IsValid = len(errs) == 0
}
