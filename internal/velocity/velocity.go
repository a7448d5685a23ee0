// Package velocity computes per-account transaction frequency over the
// scoring windows.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/cediguard/cediguard/internal/domain"
)

// Counts holds the window counts the risk engine consumes.
type Counts struct {
	LastHour    int
	Last3Hours  int
	Last24Hours int
}

// Service answers window-count and spending queries for one account from
// the repository. An optional injectable clock keeps the windows
// deterministic in tests.
type Service struct {
	repo domain.Repository
	now  func() time.Time
}

// NewService creates a velocity service backed by the repository.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetCounts returns the transaction counts for the 1h, 3h, and 24h windows
// ending now.
func (s *Service) GetCounts(ctx context.Context, tenantID, accountID string) (Counts, error) {
	if tenantID == "" || accountID == "" {
		return Counts{}, fmt.Errorf("tenantID and accountID are required")
	}

	now := s.now()
	var counts Counts

	c1, err := s.repo.CountTransactionsSince(ctx, tenantID, accountID, now.Add(-time.Hour))
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count 1h window: %w", err)
	}
	counts.LastHour = int(c1)

	c3, err := s.repo.CountTransactionsSince(ctx, tenantID, accountID, now.Add(-3*time.Hour))
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count 3h window: %w", err)
	}
	counts.Last3Hours = int(c3)

	c24, err := s.repo.CountTransactionsSince(ctx, tenantID, accountID, now.Add(-24*time.Hour))
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count 24h window: %w", err)
	}
	counts.Last24Hours = int(c24)

	return counts, nil
}

// DailySpent returns the sum of outgoing amounts recorded since local
// midnight for the account.
func (s *Service) DailySpent(ctx context.Context, tenantID, accountID string) (float64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("tenantID and accountID are required")
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sum, err := s.repo.SumSentSince(ctx, tenantID, accountID, midnight)
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily spend: %w", err)
	}
	return sum, nil
}

// AverageSentAmount returns the account's average outgoing amount, or nil
// when the account has no outgoing history.
func (s *Service) AverageSentAmount(ctx context.Context, tenantID, accountID string) (*float64, error) {
	if tenantID == "" || accountID == "" {
		return nil, fmt.Errorf("tenantID and accountID are required")
	}

	avg, err := s.repo.AverageSentAmount(ctx, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average: %w", err)
	}
	return avg, nil
}
