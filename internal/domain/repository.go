package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	GetTransactionsByAccount(ctx context.Context, tenantID string, accountID string, since time.Time) ([]*Transaction, error)

	// Context-building queries for the scoring pipeline.
	CountTransactionsSince(ctx context.Context, tenantID string, accountID string, since time.Time) (int64, error)
	SumSentSince(ctx context.Context, tenantID string, accountID string, since time.Time) (float64, error)
	AverageSentAmount(ctx context.Context, tenantID string, accountID string) (*float64, error)

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, a *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, id string) (*Assessment, error)

	// Per-account settings
	SaveUserSettings(ctx context.Context, tenantID string, s *UserSettings) error
	GetUserSettings(ctx context.Context, tenantID string, accountID string) (*UserSettings, error)

	// Merchant lists. kind is "blocked" or "trusted".
	AddMerchant(ctx context.Context, tenantID string, accountID string, kind string, merchant string) error
	RemoveMerchant(ctx context.Context, tenantID string, accountID string, kind string, merchant string) error
	ListMerchants(ctx context.Context, tenantID string, accountID string, kind string) ([]string, error)

	// Global blacklist (provider-independent, shared across accounts
	// within a tenant).
	AddToBlacklist(ctx context.Context, tenantID string, identifier string, reason string) error
	IsBlacklisted(ctx context.Context, tenantID string, identifier string) (bool, error)
	ListBlacklist(ctx context.Context, tenantID string) ([]string, error)

	// Custom rule configuration
	SaveCustomRule(ctx context.Context, tenantID string, rule *CustomRule) error
	GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*CustomRule, error)
	ListCustomRules(ctx context.Context, tenantID string) ([]*CustomRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Merchant list kinds.
const (
	MerchantBlocked = "blocked"
	MerchantTrusted = "trusted"
)

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
