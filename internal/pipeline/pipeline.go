// Package pipeline wires the SMS parser, context builder, risk engine, and
// custom rules into the end-to-end evaluation flow.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/cediguard/cediguard/internal/domain"
	"github.com/cediguard/cediguard/internal/parser"
	"github.com/cediguard/cediguard/internal/risk"
	"github.com/cediguard/cediguard/internal/rules"
	"github.com/cediguard/cediguard/internal/velocity"
)

const engineVersion = "cediguard-1.0"

// contextTTL bounds how stale a cached account snapshot may be. Velocity
// counts are part of the snapshot, so this stays short.
const contextTTL = 30 * time.Second

// Processor runs the full evaluation flow: parse, build context, score,
// apply custom rules, persist, publish.
type Processor struct {
	parser   *parser.Parser
	engine   *risk.Engine
	rules    *rules.Engine
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	velocity *velocity.Service
	logger   *slog.Logger
}

// Config holds the processor's collaborators. Rules, Cache, and Bus are
// optional; the flow degrades to parse-and-score-only without them.
type Config struct {
	Parser   *parser.Parser
	Engine   *risk.Engine
	Rules    *rules.Engine
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Velocity *velocity.Service
	Logger   *slog.Logger
}

// NewProcessor creates an evaluation processor.
func NewProcessor(cfg Config) *Processor {
	p := cfg.Parser
	if p == nil {
		p = parser.New()
	}
	e := cfg.Engine
	if e == nil {
		e = risk.NewEngine()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		parser:   p,
		engine:   e,
		rules:    cfg.Rules,
		repo:     cfg.Repo,
		cache:    cfg.Cache,
		bus:      cfg.Bus,
		velocity: cfg.Velocity,
		logger:   logger,
	}
}

// Result is the outcome of one SMS evaluation. Assessment is nil when the
// message did not parse to a valid transaction.
type Result struct {
	Transaction *domain.Transaction `json:"transaction"`
	Assessment  *domain.Assessment  `json:"assessment,omitempty"`
}

// Evaluate runs the full flow for one SMS. Invalid messages are persisted
// for audit but not scored.
func (p *Processor) Evaluate(ctx context.Context, tenantID string, req *domain.SMSRequest) (*Result, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if req == nil || req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if req.AccountID == "" {
		return nil, fmt.Errorf("accountId is required")
	}

	start := time.Now()

	parsed := p.parser.Parse(req.Message)
	parseMs := time.Since(start).Milliseconds()

	tx := &domain.Transaction{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		AccountID:  req.AccountID,
		Parsed:     *parsed,
		RawMessage: req.Message,
		CreatedAt:  time.Now().UTC(),
	}

	if !parsed.IsValid {
		p.logger.Info("sms did not parse to a valid transaction",
			"tenant_id", tenantID,
			"account_id", req.AccountID,
			"parse_errors", parsed.ParseErrors,
		)
		if p.repo != nil {
			if err := p.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
				return nil, fmt.Errorf("failed to save transaction: %w", err)
			}
		}
		return &Result{Transaction: tx}, nil
	}

	// Context building runs before the transaction is persisted so the
	// history signals cover prior activity only.
	ctxStart := time.Now()
	rc, err := p.BuildContext(ctx, tenantID, req.AccountID, parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to build risk context: %w", err)
	}
	contextMs := time.Since(ctxStart).Milliseconds()

	scoreStart := time.Now()
	result := p.engine.Score(parsed, rc)

	customResults := p.applyCustomRules(ctx, tenantID, parsed, rc, result)
	scoreMs := time.Since(scoreStart).Milliseconds()

	assessment := &domain.Assessment{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		TxID:      tx.ID,
		AccountID: req.AccountID,
		Result:    *result,
		Timestamp: time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			TraceID:       traceID(ctx),
			ParseMs:       parseMs,
			ContextMs:     contextMs,
			ScoreMs:       scoreMs,
			TotalMs:       time.Since(start).Milliseconds(),
			CustomRules:   len(customResults),
			EngineVersion: engineVersion,
		},
	}

	if p.repo != nil {
		if err := p.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			return nil, fmt.Errorf("failed to save transaction: %w", err)
		}
		if err := p.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			return nil, fmt.Errorf("failed to save assessment: %w", err)
		}
	}

	p.publish(ctx, tenantID, assessment)

	return &Result{Transaction: tx, Assessment: assessment}, nil
}

// BuildContext gathers the account's scoring signals. The account-level
// snapshot (limits, history, merchant lists) is cached; the blacklist
// lookup depends on the transaction's counterparty and is always fresh.
func (p *Processor) BuildContext(ctx context.Context, tenantID, accountID string, parsed *domain.ParsedTransaction) (*domain.RiskContext, error) {
	rc := p.cachedContext(ctx, tenantID, accountID)
	if rc == nil {
		var err error
		rc, err = p.buildAccountContext(ctx, tenantID, accountID)
		if err != nil {
			return nil, err
		}
		if p.cache != nil {
			if err := p.cache.SetContext(ctx, tenantID, accountID, rc, contextTTL); err != nil {
				p.logger.Warn("failed to cache risk context", "error", err)
			}
		}
	}

	rc.IsGloballyBlacklisted = false
	if counterparty := parsed.Counterparty(); counterparty != "" && p.repo != nil {
		hit, err := p.repo.IsBlacklisted(ctx, tenantID, counterparty)
		if err != nil {
			return nil, fmt.Errorf("blacklist lookup failed: %w", err)
		}
		rc.IsGloballyBlacklisted = hit
	}

	return rc, nil
}

func (p *Processor) cachedContext(ctx context.Context, tenantID, accountID string) *domain.RiskContext {
	if p.cache == nil {
		return nil
	}
	rc, err := p.cache.GetContext(ctx, tenantID, accountID)
	if err != nil {
		p.logger.Warn("risk context cache read failed", "error", err)
		return nil
	}
	return rc
}

func (p *Processor) buildAccountContext(ctx context.Context, tenantID, accountID string) (*domain.RiskContext, error) {
	rc := &domain.RiskContext{DailyLimit: domain.DefaultDailyLimit}

	if p.repo == nil {
		return rc, nil
	}

	settings, err := p.repo.GetUserSettings(ctx, tenantID, accountID)
	if err == nil && settings.DailyLimit > 0 {
		rc.DailyLimit = settings.DailyLimit
	}

	if p.velocity != nil {
		counts, err := p.velocity.GetCounts(ctx, tenantID, accountID)
		if err != nil {
			return nil, err
		}
		rc.CountLastHour = counts.LastHour
		rc.Count3Hours = counts.Last3Hours
		rc.Count24Hours = counts.Last24Hours

		spent, err := p.velocity.DailySpent(ctx, tenantID, accountID)
		if err != nil {
			return nil, err
		}
		rc.DailySpent = spent

		avg, err := p.velocity.AverageSentAmount(ctx, tenantID, accountID)
		if err != nil {
			return nil, err
		}
		rc.UserAverageAmount = avg
	}

	blocked, err := p.repo.ListMerchants(ctx, tenantID, accountID, domain.MerchantBlocked)
	if err != nil {
		return nil, err
	}
	trusted, err := p.repo.ListMerchants(ctx, tenantID, accountID, domain.MerchantTrusted)
	if err != nil {
		return nil, err
	}
	rc.BlockedMerchants = toSet(blocked)
	rc.TrustedMerchants = toSet(trusted)

	return rc, nil
}

// applyCustomRules evaluates the tenant's CEL rules and folds triggered
// points into the result as the custom category. The clamp is redone over
// the raw category contributions so custom points combine with the fixed
// layers before clamping, not after.
func (p *Processor) applyCustomRules(ctx context.Context, tenantID string, parsed *domain.ParsedTransaction, rc *domain.RiskContext, result *domain.RiskResult) []domain.CustomRuleResult {
	if p.rules == nil {
		return nil
	}

	customResults := p.rules.EvaluateAll(ctx, tenantID, parsed, rc)

	points := 0
	for _, r := range customResults {
		if r.Err != "" {
			p.logger.Warn("custom rule evaluation failed", "rule_id", r.RuleID, "error", r.Err)
			continue
		}
		if r.Triggered {
			points += r.Points
			result.Reasons = append(result.Reasons, r.Reason)
		}
	}

	result.Breakdown[domain.CategoryCustom] = points

	total := 0
	for _, contribution := range result.Breakdown {
		total += contribution
	}
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	result.Score = total
	result.Level = domain.LevelForScore(total)

	return customResults
}

// ShouldAlert reports whether an assessment level warrants an alert.
func ShouldAlert(level domain.RiskLevel) bool {
	return level == domain.RiskHigh || level == domain.RiskCritical
}

func (p *Processor) publish(ctx context.Context, tenantID string, a *domain.Assessment) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		p.logger.Error("failed to encode assessment for publish", "error", err)
		return
	}

	if err := p.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, payload); err != nil {
		p.logger.Error("failed to publish assessment", "error", err)
	}

	if ShouldAlert(a.Result.Level) {
		if err := p.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			p.logger.Error("failed to publish alert", "error", err)
		}
	}
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
