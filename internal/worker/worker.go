// Package worker provides async SMS processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cediguard/cediguard/internal/domain"
	"github.com/cediguard/cediguard/internal/pipeline"
)

// Worker consumes incoming SMS messages from the EventBus and runs each one
// through the evaluation pipeline.
type Worker struct {
	bus       domain.EventBus
	processor *pipeline.Processor

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via a global subscription)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, processor *pipeline.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicSMSReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSMSReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processSMS(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicSMSReceived,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processSMS(ctx, msg.TenantID, msg)
}

// SMSMessage is the message payload for async SMS evaluation.
type SMSMessage struct {
	TenantID  string `json:"tenantId,omitempty"`
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
}

// processSMS evaluates one SMS through the pipeline. The pipeline handles
// persistence and downstream publishing itself.
func (w *Worker) processSMS(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var smsMsg SMSMessage
	if err := json.Unmarshal(msg.Payload, &smsMsg); err != nil {
		slog.Error("failed to parse sms message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if smsMsg.TenantID != "" {
		tenantID = smsMsg.TenantID
	}

	slog.Debug("processing sms",
		"tenant_id", tenantID,
		"account_id", smsMsg.AccountID,
	)

	res, err := w.processor.Evaluate(ctx, tenantID, &domain.SMSRequest{
		AccountID: smsMsg.AccountID,
		Message:   smsMsg.Message,
	})
	if err != nil {
		slog.Error("sms evaluation failed",
			"tenant_id", tenantID,
			"account_id", smsMsg.AccountID,
			"error", err,
		)
		return err
	}

	if res.Assessment != nil {
		slog.Info("sms processed",
			"tenant_id", tenantID,
			"tx_id", res.Transaction.ID,
			"score", res.Assessment.Result.Score,
			"level", res.Assessment.Result.Level,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		slog.Info("sms did not parse",
			"tenant_id", tenantID,
			"tx_id", res.Transaction.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
