package domain

import (
	"time"
)

// RiskLevel is the coarse bucketing of a numeric risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Risk category names used as Breakdown keys.
const (
	CategoryTimeOfDay   = "time_of_day"
	CategoryAmount      = "amount"
	CategoryDailyLimit  = "daily_limit"
	CategoryVelocity    = "velocity"
	CategoryMerchant    = "merchant"
	CategoryRoundAmount = "round_amount"
	CategoryBalance     = "balance"
	CategoryCustom      = "custom"
)

// RiskContext carries the caller-gathered signals the scoring engine needs.
// All lookups (history store, settings store, blacklist store) happen before
// scoring; the engine itself performs no I/O.
type RiskContext struct {
	// UserAverageAmount is the average of the user's historical sent
	// amounts. Nil when the user has no history.
	UserAverageAmount *float64 `json:"userAverageAmount,omitempty"`

	DailySpent float64 `json:"dailySpent"`
	DailyLimit float64 `json:"dailyLimit"`

	// Transaction counts in rolling windows ending now.
	CountLastHour int `json:"countLastHour"`
	Count3Hours   int `json:"count3Hours"`
	Count24Hours  int `json:"count24Hours"`

	BlockedMerchants map[string]bool `json:"blockedMerchants,omitempty"`
	TrustedMerchants map[string]bool `json:"trustedMerchants,omitempty"`

	IsGloballyBlacklisted bool `json:"isGloballyBlacklisted"`
}

// RiskResult is the output of the scoring engine.
type RiskResult struct {
	// Score is the summed rule contributions clamped to [0, 100].
	Score int `json:"score"`

	// Level is a pure function of Score.
	Level RiskLevel `json:"level"`

	// Reasons holds one displayable string per triggered rule, in
	// evaluation order.
	Reasons []string `json:"reasons"`

	// Breakdown maps each category name to its final contribution,
	// including zero entries. The trust discount makes the merchant
	// category negative.
	Breakdown map[string]int `json:"breakdown"`
}

// LevelForScore maps a clamped score to its risk level.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Assessment is a persisted risk evaluation for a transaction.
type Assessment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	TxID      string    `json:"txId"`
	AccountID string    `json:"accountId"`
	Result    RiskResult `json:"result"`
	Timestamp time.Time `json:"timestamp"`

	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata records processing information for observability.
type AssessmentMetadata struct {
	TraceID       string `json:"traceId"`
	ParseMs       int64  `json:"parseMs"`
	ContextMs     int64  `json:"contextMs"`
	ScoreMs       int64  `json:"scoreMs"`
	TotalMs       int64  `json:"totalMs"`
	CustomRules   int    `json:"customRulesEvaluated"`
	EngineVersion string `json:"engineVersion"`
}

// UserSettings holds the per-account configuration consulted during
// context building.
type UserSettings struct {
	TenantID   string    `json:"tenantId"`
	AccountID  string    `json:"accountId"`
	DailyLimit float64   `json:"dailyLimit"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DefaultDailyLimit applies when an account has no stored settings.
const DefaultDailyLimit = 2000.0
