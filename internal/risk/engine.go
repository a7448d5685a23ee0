// Package risk implements the weighted heuristic scoring engine for parsed
// mobile-money transactions. Scoring is a fixed rule table: deterministic,
// side-effect free, and safe to call concurrently.
package risk

import (
	"fmt"
	"math"

	"github.com/cediguard/cediguard/internal/domain"
)

// Rule weights.
const (
	pointsDeadHours      = 40 // 2 AM - 5 AM
	pointsLateNight      = 20 // 10 PM - 1 AM
	pointsVeryLargeAmt   = 50 // > 5000
	pointsLargeAmt       = 30 // > 1000
	pointsAboveAverage   = 25 // > 3x user average
	pointsDailyLimit     = 25
	pointsVelocity1h     = 20 // >= 3 in 1h
	pointsVelocity3h     = 30 // >= 5 in 3h
	pointsVelocity24h    = 40 // >= 10 in 24h
	pointsBlockedMerch   = 50
	pointsBlacklisted    = 60
	pointsTrustedMerch   = -10
	pointsRoundAmount    = 15
	pointsBalanceDrained = 30 // < 10
	pointsBalanceLow     = 20 // < 50
	pointsBalanceDrop    = 15 // post balance < 50% of expected
)

// Amounts below this never contribute to the amount category.
const minScorableAmount = 10.0

var roundAmounts = map[float64]bool{
	100: true, 500: true, 1000: true, 2000: true, 5000: true, 10000: true,
}

// Engine evaluates the fixed rule table. It is stateless; a single Engine
// serves any number of goroutines.
type Engine struct{}

// NewEngine creates a scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// category accumulates one rule category's contribution and reasons.
type category struct {
	name    string
	points  int
	reasons []string
}

func (c *category) add(points int, reason string) {
	c.points += points
	c.reasons = append(c.reasons, reason)
}

// escalate raises the category to at least points; the two thresholds are
// never summed.
func (c *category) escalate(points int, reason string) {
	if points > c.points {
		c.points = points
	}
	c.reasons = append(c.reasons, reason)
}

// Score evaluates every rule category against the transaction and context
// and returns the clamped score, level, reasons, and per-category
// breakdown. All categories are always evaluated; nothing short-circuits.
// Callers are expected to check tx.IsValid first, but malformed input never
// panics: out-of-domain amounts simply contribute nothing.
func (e *Engine) Score(tx *domain.ParsedTransaction, rc *domain.RiskContext) *domain.RiskResult {
	if rc == nil {
		rc = &domain.RiskContext{}
	}

	categories := []category{
		e.checkTimeOfDay(tx),
		e.checkAmount(tx, rc),
		e.checkDailyLimit(rc),
		e.checkVelocity(rc),
		e.checkMerchant(tx, rc),
		e.checkRoundAmount(tx),
		e.checkBalance(tx, rc),
	}

	total := 0
	reasons := []string{}
	breakdown := make(map[string]int, len(categories))
	for _, c := range categories {
		total += c.points
		breakdown[c.name] = c.points
		reasons = append(reasons, c.reasons...)
	}

	// Clamp strictly after summation; partial sums are never clamped.
	score := total
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &domain.RiskResult{
		Score:     score,
		Level:     domain.LevelForScore(score),
		Reasons:   reasons,
		Breakdown: breakdown,
	}
}

func (e *Engine) checkTimeOfDay(tx *domain.ParsedTransaction) category {
	c := category{name: domain.CategoryTimeOfDay}
	h := tx.Hour24

	switch {
	case h >= 2 && h < 5:
		c.add(pointsDeadHours, fmt.Sprintf("Transaction between 2 AM and 5 AM (%s)", tx.Time))
	case h >= 22 || h < 1:
		c.add(pointsLateNight, fmt.Sprintf("Late-night transaction (%s)", tx.Time))
	}
	return c
}

func (e *Engine) checkAmount(tx *domain.ParsedTransaction, rc *domain.RiskContext) category {
	c := category{name: domain.CategoryAmount}

	amt, ok := scorableAmount(tx)
	if !ok {
		return c
	}

	switch {
	case amt > 5000:
		c.add(pointsVeryLargeAmt, fmt.Sprintf("Very large amount (GHS %.2f)", amt))
	case amt > 1000:
		c.add(pointsLargeAmt, fmt.Sprintf("Large amount (GHS %.2f)", amt))
	}

	if rc.UserAverageAmount != nil && *rc.UserAverageAmount > 0 && amt > 3*(*rc.UserAverageAmount) {
		c.escalate(pointsAboveAverage, fmt.Sprintf("Amount is over 3x your average of GHS %.2f", *rc.UserAverageAmount))
	}

	// Trivial amounts never contribute, whatever fired above.
	if amt < minScorableAmount {
		c.points = 0
		c.reasons = nil
	}
	return c
}

func (e *Engine) checkDailyLimit(rc *domain.RiskContext) category {
	c := category{name: domain.CategoryDailyLimit}
	if rc.DailySpent > rc.DailyLimit {
		c.add(pointsDailyLimit, fmt.Sprintf("Daily spending limit exceeded (GHS %.2f of GHS %.2f)", rc.DailySpent, rc.DailyLimit))
	}
	return c
}

func (e *Engine) checkVelocity(rc *domain.RiskContext) category {
	c := category{name: domain.CategoryVelocity}

	if rc.CountLastHour >= 3 {
		c.escalate(pointsVelocity1h, fmt.Sprintf("%d transactions in the last hour", rc.CountLastHour))
	}
	if rc.Count3Hours >= 5 {
		c.escalate(pointsVelocity3h, fmt.Sprintf("%d transactions in the last 3 hours", rc.Count3Hours))
	}
	if rc.Count24Hours >= 10 {
		c.escalate(pointsVelocity24h, fmt.Sprintf("%d transactions in the last 24 hours", rc.Count24Hours))
	}
	return c
}

func (e *Engine) checkMerchant(tx *domain.ParsedTransaction, rc *domain.RiskContext) category {
	c := category{name: domain.CategoryMerchant}
	counterparty := tx.Counterparty()

	blocked := counterparty != "" && rc.BlockedMerchants[counterparty]
	if blocked {
		c.add(pointsBlockedMerch, fmt.Sprintf("Recipient %q is on your blocked list", counterparty))
	}
	if rc.IsGloballyBlacklisted {
		c.add(pointsBlacklisted, "Recipient is on the global fraud blacklist")
	}

	// The trust discount never applies to blocked or blacklisted parties.
	if !blocked && !rc.IsGloballyBlacklisted &&
		counterparty != "" && rc.TrustedMerchants[counterparty] {
		c.add(pointsTrustedMerch, fmt.Sprintf("Recipient %q is on your trusted list", counterparty))
	}
	return c
}

func (e *Engine) checkRoundAmount(tx *domain.ParsedTransaction) category {
	c := category{name: domain.CategoryRoundAmount}

	amt, ok := scorableAmount(tx)
	if ok && roundAmounts[amt] {
		c.add(pointsRoundAmount, fmt.Sprintf("Suspiciously round amount (GHS %.0f)", amt))
	}
	return c
}

func (e *Engine) checkBalance(tx *domain.ParsedTransaction, rc *domain.RiskContext) category {
	c := category{name: domain.CategoryBalance}

	if tx.Balance == nil || !isFinite(*tx.Balance) {
		return c
	}
	bal := *tx.Balance

	switch {
	case bal < 10:
		c.add(pointsBalanceDrained, fmt.Sprintf("Balance nearly depleted (GHS %.2f)", bal))
	case bal < 50:
		c.add(pointsBalanceLow, fmt.Sprintf("Low remaining balance (GHS %.2f)", bal))
	}

	// Sudden drop: the post-transaction balance fell below half of the
	// expected pre-transaction balance. Skipped when the expected balance
	// is not positive, since the intent for that edge is ambiguous.
	if amt, ok := scorableAmount(tx); ok {
		expected := bal - amt
		if tx.Type.IsOutflow() {
			expected = bal + amt
		}
		if expected > 0 && bal < expected*0.5 {
			c.escalate(pointsBalanceDrop, "Balance dropped by more than half in one transaction")
		}
	}
	return c
}

// scorableAmount returns the transaction amount when it is usable for
// amount-based rules. Absent, negative, or non-finite amounts report false
// rather than panicking; the scorer must never throw for malformed input.
func scorableAmount(tx *domain.ParsedTransaction) (float64, bool) {
	if tx.Amount == nil {
		return 0, false
	}
	amt := *tx.Amount
	if amt < 0 || !isFinite(amt) {
		return 0, false
	}
	return amt, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
