package domain

import "time"

// CustomRule is an operator-defined scoring extension evaluated after the
// built-in checks. When Expression evaluates true the rule adds Points to
// the score and Reason to the triggered reasons.
type CustomRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression over the transaction and context
	// variables (amount, balance, hour, tx_type, provider, counterparty,
	// count_1h, count_3h, count_24h, daily_spent, daily_limit). It must
	// evaluate to bool.
	Expression string `json:"expression"`

	// Points added to the score when the expression is true. May be
	// negative for discounts.
	Points int `json:"points"`

	Reason  string `json:"reason"`
	Enabled bool   `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// CustomRuleResult is the outcome of one custom rule evaluation.
type CustomRuleResult struct {
	RuleID    string `json:"ruleId"`
	Triggered bool   `json:"triggered"`
	Points    int    `json:"points"`
	Reason    string `json:"reason,omitempty"`
	Err       string `json:"error,omitempty"`
}
