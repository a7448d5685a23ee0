// Package rules provides the CEL-Go engine for operator-defined custom
// scoring rules, evaluated on top of the built-in risk checks.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/cediguard/cediguard/internal/domain"
)

// Engine compiles custom rule expressions once at load time and evaluates
// them against parsed transactions. It is safe for concurrent use; loading
// and reloading swap the compiled set under a write lock.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule pairs a rule definition with its pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.CustomRule
	Program cel.Program
}

// NewEngine creates a rule engine with the cediguard expression vocabulary.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("balance", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("provider", cel.StringType),
		cel.Variable("counterparty", cel.StringType),
		cel.Variable("count_1h", cel.IntType),
		cel.Variable("count_3h", cel.IntType),
		cel.Variable("count_24h", cel.IntType),
		cel.Variable("daily_spent", cel.DoubleType),
		cel.Variable("daily_limit", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.CustomRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a single rule into the engine.
func (e *Engine) LoadRule(rule *domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled
	return nil
}

// LoadRules compiles and loads the enabled rules from the slice.
func (e *Engine) LoadRules(rules []*domain.CustomRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded set with the enabled rules
// from the slice. A compile failure leaves the previous set in place.
func (e *Engine) ReloadRules(rules []*domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// ReloadTenantRules atomically replaces one tenant's rules with the enabled
// rules from the slice, leaving other tenants untouched. A compile failure
// leaves the tenant's previous rules in place.
func (e *Engine) ReloadTenantRules(tenantID string, rules []*domain.CustomRule) error {
	compiled := make(map[string]*CompiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		c, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		compiled[rule.ID] = c
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, rule := range e.compiledRules {
		if rule.Rule.TenantID == tenantID {
			delete(e.compiledRules, id)
		}
	}
	for id, rule := range compiled {
		e.compiledRules[id] = rule
	}
	return nil
}

// EvaluateAll runs every loaded rule belonging to the tenant against the
// transaction and context. Expression errors are reported per rule; one
// broken rule never blocks the others.
func (e *Engine) EvaluateAll(ctx context.Context, tenantID string, tx *domain.ParsedTransaction, rc *domain.RiskContext) []domain.CustomRuleResult {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if rule.Rule.TenantID == tenantID {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := buildActivation(tx, rc)

	results := make([]domain.CustomRuleResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()
	return results
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule definitions.
func (e *Engine) GetLoadedRules() []*domain.CustomRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.CustomRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close clears the loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.CustomRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

func evaluateRule(rule *CompiledRule, activation map[string]any) domain.CustomRuleResult {
	result := domain.CustomRuleResult{RuleID: rule.Rule.ID}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	if triggered(out) {
		result.Triggered = true
		result.Points = rule.Rule.Points
		result.Reason = rule.Rule.Reason
		if result.Reason == "" {
			result.Reason = fmt.Sprintf("Custom rule %q triggered", rule.Rule.Name)
		}
	}
	return result
}

func triggered(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}

// buildActivation flattens the transaction and context into the CEL
// variable set. Missing optional fields bind to zero values so every
// expression stays evaluable.
func buildActivation(tx *domain.ParsedTransaction, rc *domain.RiskContext) map[string]any {
	if rc == nil {
		rc = &domain.RiskContext{}
	}

	return map[string]any{
		"amount":       tx.AmountValue(),
		"balance":      tx.BalanceValue(),
		"hour":         int64(tx.Hour24),
		"tx_type":      string(tx.Type),
		"provider":     string(tx.Provider),
		"counterparty": tx.Counterparty(),
		"count_1h":     int64(rc.CountLastHour),
		"count_3h":     int64(rc.Count3Hours),
		"count_24h":    int64(rc.Count24Hours),
		"daily_spent":  rc.DailySpent,
		"daily_limit":  rc.DailyLimit,
	}
}
