// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cediguard/cediguard/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Transaction types that move money out of the wallet, used by the
// spending queries. Must stay in sync with domain.TransactionType.IsOutflow.
const outflowTypes = `('sent', 'withdrawal', 'cash_out', 'airtime', 'bill_payment')`

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a parsed transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	parsed, err := json.Marshal(tx.Parsed)
	if err != nil {
		return fmt.Errorf("failed to encode parsed transaction: %w", err)
	}

	var amount sql.NullFloat64
	if tx.Parsed.Amount != nil {
		amount = sql.NullFloat64{Float64: *tx.Parsed.Amount, Valid: true}
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, account_id, provider, type, amount,
			counterparty, parsed, raw_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.AccountID,
		string(tx.Parsed.Provider), string(tx.Parsed.Type), amount,
		tx.Parsed.Counterparty(), string(parsed), tx.RawMessage, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, account_id, parsed, raw_message, created_at
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var tx domain.Transaction
	var parsed string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&tx.ID, &tx.TenantID, &tx.AccountID, &parsed, &tx.RawMessage, &tx.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(parsed), &tx.Parsed); err != nil {
		return nil, fmt.Errorf("failed to decode parsed transaction: %w", err)
	}
	return &tx, nil
}

// GetTransactionsByAccount retrieves an account's transactions since a
// point in time, newest first.
func (r *SQLRepository) GetTransactionsByAccount(ctx context.Context, tenantID string, accountID string, since time.Time) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, account_id, parsed, raw_message, created_at
		FROM transactions
		WHERE tenant_id = ? AND account_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var parsed string

		if err := rows.Scan(&tx.ID, &tx.TenantID, &tx.AccountID, &parsed, &tx.RawMessage, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(parsed), &tx.Parsed); err != nil {
			return nil, fmt.Errorf("failed to decode parsed transaction %s: %w", tx.ID, err)
		}
		transactions = append(transactions, &tx)
	}
	return transactions, rows.Err()
}

// CountTransactionsSince counts an account's transactions recorded at or
// after since.
func (r *SQLRepository) CountTransactionsSince(ctx context.Context, tenantID string, accountID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE tenant_id = ? AND account_id = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// SumSentSince sums an account's outgoing amounts recorded at or after
// since. Transactions without an amount are ignored.
func (r *SQLRepository) SumSentSince(ctx context.Context, tenantID string, accountID string, since time.Time) (float64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE tenant_id = ? AND account_id = ? AND created_at >= ?
		  AND amount IS NOT NULL AND type IN ` + outflowTypes

	var sum float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum sent amounts: %w", err)
	}
	return sum, nil
}

// AverageSentAmount returns the account's average outgoing amount, or nil
// when there is no outgoing history.
func (r *SQLRepository) AverageSentAmount(ctx context.Context, tenantID string, accountID string) (*float64, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT AVG(amount) FROM transactions
		WHERE tenant_id = ? AND account_id = ?
		  AND amount IS NOT NULL AND type IN ` + outflowTypes

	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average sent amounts: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// SaveAssessment stores an assessment with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := json.Marshal(a.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, tx_id, account_id, score, level, timestamp, result, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.TxID, a.AccountID,
		a.Result.Score, string(a.Result.Level), a.Timestamp,
		string(result), string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, id string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, account_id, timestamp, result, metadata
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.Assessment
	var result, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&a.ID, &a.TenantID, &a.TxID, &a.AccountID, &a.Timestamp, &result, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(result), &a.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &a, nil
}

// SaveUserSettings upserts the per-account settings.
func (r *SQLRepository) SaveUserSettings(ctx context.Context, tenantID string, s *domain.UserSettings) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO user_settings (tenant_id, account_id, daily_limit, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, account_id) DO UPDATE SET
			daily_limit = excluded.daily_limit,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, s.AccountID, s.DailyLimit, now)
	return err
}

// GetUserSettings retrieves an account's settings, or ErrNotFound when the
// account has never been configured.
func (r *SQLRepository) GetUserSettings(ctx context.Context, tenantID string, accountID string) (*domain.UserSettings, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, account_id, daily_limit, updated_at
		FROM user_settings
		WHERE tenant_id = ? AND account_id = ?
	`

	var s domain.UserSettings
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID).Scan(
		&s.TenantID, &s.AccountID, &s.DailyLimit, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AddMerchant adds a merchant to an account's blocked or trusted list.
// Re-adding an existing entry is a no-op.
func (r *SQLRepository) AddMerchant(ctx context.Context, tenantID string, accountID string, kind string, merchant string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if kind != domain.MerchantBlocked && kind != domain.MerchantTrusted {
		return fmt.Errorf("%w: unknown merchant list kind %q", ErrInvalidInput, kind)
	}
	if merchant == "" {
		return fmt.Errorf("%w: merchant is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO merchant_lists (tenant_id, account_id, kind, merchant, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, account_id, kind, merchant) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, accountID, kind, merchant, time.Now().UTC())
	return err
}

// RemoveMerchant removes a merchant from an account's list.
func (r *SQLRepository) RemoveMerchant(ctx context.Context, tenantID string, accountID string, kind string, merchant string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		DELETE FROM merchant_lists
		WHERE tenant_id = ? AND account_id = ? AND kind = ? AND merchant = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, accountID, kind, merchant)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMerchants returns an account's blocked or trusted merchants.
func (r *SQLRepository) ListMerchants(ctx context.Context, tenantID string, accountID string, kind string) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT merchant FROM merchant_lists
		WHERE tenant_id = ? AND account_id = ? AND kind = ?
		ORDER BY merchant
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, accountID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merchants []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// AddToBlacklist adds an identifier to the tenant-wide fraud blacklist.
func (r *SQLRepository) AddToBlacklist(ctx context.Context, tenantID string, identifier string, reason string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO global_blacklist (tenant_id, identifier, reason, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, identifier) DO UPDATE SET reason = excluded.reason
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, identifier, reason, time.Now().UTC())
	return err
}

// IsBlacklisted reports whether an identifier is on the tenant's blacklist.
func (r *SQLRepository) IsBlacklisted(ctx context.Context, tenantID string, identifier string) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if identifier == "" {
		return false, nil
	}

	query := `
		SELECT COUNT(*) FROM global_blacklist
		WHERE tenant_id = ? AND identifier = ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, identifier).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListBlacklist returns the tenant's blacklisted identifiers.
func (r *SQLRepository) ListBlacklist(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT identifier FROM global_blacklist
		WHERE tenant_id = ?
		ORDER BY identifier
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identifiers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		identifiers = append(identifiers, id)
	}
	return identifiers, rows.Err()
}

// SaveCustomRule upserts a custom rule definition.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, tenantID string, rule *domain.CustomRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, tenant_id, name, description, expression, points, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			points = excluded.points,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Expression, rule.Points, rule.Reason, enabled,
		now, now,
	)
	return err
}

// GetCustomRule retrieves a custom rule with tenant isolation.
func (r *SQLRepository) GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*domain.CustomRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, points, reason, enabled, created_at, updated_at
		FROM custom_rules
		WHERE tenant_id = ? AND id = ?
	`

	var rule domain.CustomRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Expression, &rule.Points, &rule.Reason, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListCustomRules returns all of a tenant's custom rules, enabled or not.
func (r *SQLRepository) ListCustomRules(ctx context.Context, tenantID string) ([]*domain.CustomRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, points, reason, enabled, created_at, updated_at
		FROM custom_rules
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Points, &rule.Reason, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
