// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentic-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

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

	// Configure connection pool
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

	// Run migrations
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

// SaveTransaction stores a finalized transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, recipient, amount, purpose, status, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Recipient, tx.Amount, tx.Purpose,
		string(tx.Status), tx.Timestamp, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, recipient, amount, purpose, status, timestamp, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var status string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.Recipient, &tx.Amount, &tx.Purpose,
		&status, &tx.Timestamp, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Status = domain.TransactionStatus(status)

	return &tx, nil
}

// ListTransactions retrieves all transactions in time order.
func (r *SQLRepository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	query := `
		SELECT id, recipient, amount, purpose, status, timestamp, created_at
		FROM transactions
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListTransactionsByRecipient retrieves a recipient's transactions in
// time order.
func (r *SQLRepository) ListTransactionsByRecipient(ctx context.Context, recipient string) ([]*domain.Transaction, error) {
	query := `
		SELECT id, recipient, amount, purpose, status, timestamp, created_at
		FROM transactions
		WHERE recipient = ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), recipient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var status string

		if err := rows.Scan(
			&tx.ID, &tx.Recipient, &tx.Amount, &tx.Purpose,
			&status, &tx.Timestamp, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.Status = domain.TransactionStatus(status)
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SavePattern upserts a pattern. Repeat detections merge into one row;
// the full occurrence list is stored as JSON.
func (r *SQLRepository) SavePattern(ctx context.Context, p *domain.EconomicPattern) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: pattern id is required", ErrInvalidInput)
	}

	occurrences, _ := json.Marshal(p.Occurrences)

	active := 0
	if p.Active {
		active = 1
	}

	query := `
		INSERT INTO patterns (
			id, type, recipient, description, detected_at,
			occurrences, threat_level, estimated_impact, active, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			occurrences = excluded.occurrences,
			threat_level = excluded.threat_level,
			estimated_impact = excluded.estimated_impact,
			active = excluded.active,
			confidence = excluded.confidence
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, string(p.Type), p.Recipient, p.Description, p.DetectedAt,
		string(occurrences), string(p.ThreatLevel), p.EstimatedImpact,
		active, p.Confidence,
	)
	return err
}

// ListPatterns retrieves every stored pattern, oldest detection first.
func (r *SQLRepository) ListPatterns(ctx context.Context) ([]*domain.EconomicPattern, error) {
	query := `
		SELECT id, type, recipient, description, detected_at,
			   occurrences, threat_level, estimated_impact, active, confidence
		FROM patterns
		ORDER BY detected_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*domain.EconomicPattern
	for rows.Next() {
		var p domain.EconomicPattern
		var ptype, threat, occurrences string
		var active int

		if err := rows.Scan(
			&p.ID, &ptype, &p.Recipient, &p.Description, &p.DetectedAt,
			&occurrences, &threat, &p.EstimatedImpact, &active, &p.Confidence,
		); err != nil {
			return nil, err
		}

		p.Type = domain.PatternType(ptype)
		p.ThreatLevel = domain.ThreatLevel(threat)
		p.Active = active == 1
		if err := json.Unmarshal([]byte(occurrences), &p.Occurrences); err != nil {
			return nil, fmt.Errorf("failed to parse occurrences for pattern %s: %w", p.ID, err)
		}

		patterns = append(patterns, &p)
	}

	return patterns, rows.Err()
}

// SaveSignal upserts a risk signal. Resolution rewrites the same row.
func (r *SQLRepository) SaveSignal(ctx context.Context, s *domain.RiskSignal) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: signal id is required", ErrInvalidInput)
	}

	relatedTxIDs, _ := json.Marshal(s.RelatedTxIDs)

	resolved := 0
	if s.Resolved {
		resolved = 1
	}

	query := `
		INSERT INTO risk_signals (
			id, pattern_type, severity, description, detected_at, related_tx_ids, resolved
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			related_tx_ids = excluded.related_tx_ids,
			resolved = excluded.resolved
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		s.ID, string(s.PatternType), s.Severity, s.Description,
		s.DetectedAt, string(relatedTxIDs), resolved,
	)
	return err
}

// ListSignals retrieves every stored signal, oldest first.
func (r *SQLRepository) ListSignals(ctx context.Context) ([]*domain.RiskSignal, error) {
	query := `
		SELECT id, pattern_type, severity, description, detected_at, related_tx_ids, resolved
		FROM risk_signals
		ORDER BY detected_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*domain.RiskSignal
	for rows.Next() {
		var s domain.RiskSignal
		var ptype, relatedTxIDs string
		var resolved int

		if err := rows.Scan(
			&s.ID, &ptype, &s.Severity, &s.Description,
			&s.DetectedAt, &relatedTxIDs, &resolved,
		); err != nil {
			return nil, err
		}

		s.PatternType = domain.PatternType(ptype)
		s.Resolved = resolved == 1
		json.Unmarshal([]byte(relatedTxIDs), &s.RelatedTxIDs)

		signals = append(signals, &s)
	}

	return signals, rows.Err()
}

// SaveAdaptation appends an adaptation event to the audit trail.
func (r *SQLRepository) SaveAdaptation(ctx context.Context, e *domain.AdaptationEvent) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: adaptation id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO adaptation_events (
			id, timestamp, pattern_type, direction, reason, outcome
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		e.ID, e.Timestamp, string(e.PatternType),
		string(e.Direction), e.Reason, string(e.Outcome),
	)
	return err
}

// ListAdaptations retrieves the audit trail, oldest first.
func (r *SQLRepository) ListAdaptations(ctx context.Context) ([]*domain.AdaptationEvent, error) {
	query := `
		SELECT id, timestamp, pattern_type, direction, reason, outcome
		FROM adaptation_events
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AdaptationEvent
	for rows.Next() {
		var e domain.AdaptationEvent
		var ptype, direction, outcome string

		if err := rows.Scan(
			&e.ID, &e.Timestamp, &ptype, &direction, &e.Reason, &outcome,
		); err != nil {
			return nil, err
		}

		e.PatternType = domain.PatternType(ptype)
		e.Direction = domain.AdjustmentDirection(direction)
		e.Outcome = domain.AdaptationOutcome(outcome)

		events = append(events, &e)
	}

	return events, rows.Err()
}

// SaveMemoryState upserts the single persisted resilience score row.
func (r *SQLRepository) SaveMemoryState(ctx context.Context, score float64, updatedAt time.Time) error {
	query := `
		INSERT INTO memory_state (id, score, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), score, updatedAt)
	return err
}

// GetMemoryState retrieves the persisted resilience score. Returns
// ErrNotFound for a fresh database.
func (r *SQLRepository) GetMemoryState(ctx context.Context) (float64, time.Time, error) {
	query := `SELECT score, updated_at FROM memory_state WHERE id = 1`

	var score float64
	var updatedAt time.Time

	err := r.db.QueryRowContext(ctx, query).Scan(&score, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, ErrNotFound
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	return score, updatedAt, nil
}

// SavePolicy upserts a policy configuration.
func (r *SQLRepository) SavePolicy(ctx context.Context, p *domain.PolicyConfig) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: policy id is required", ErrInvalidInput)
	}

	enabled := 0
	if p.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO policies (
			id, name, description, expression, message, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			message = excluded.message,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.Name, p.Description, p.Expression, p.Message,
		enabled, createdAt, now,
	)
	return err
}

// GetPolicy retrieves a policy by ID, enabled or not.
func (r *SQLRepository) GetPolicy(ctx context.Context, policyID string) (*domain.PolicyConfig, error) {
	query := `
		SELECT id, name, description, expression, message, enabled, created_at, updated_at
		FROM policies
		WHERE id = ?
	`

	var p domain.PolicyConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), policyID).Scan(
		&p.ID, &p.Name, &p.Description, &p.Expression, &p.Message,
		&enabled, &p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Enabled = enabled == 1

	return &p, nil
}

// ListPolicies retrieves all policy configurations ordered by name.
func (r *SQLRepository) ListPolicies(ctx context.Context) ([]*domain.PolicyConfig, error) {
	query := `
		SELECT id, name, description, expression, message, enabled, created_at, updated_at
		FROM policies
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.PolicyConfig
	for rows.Next() {
		var p domain.PolicyConfig
		var enabled int

		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Expression, &p.Message,
			&enabled, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}

		p.Enabled = enabled == 1
		policies = append(policies, &p)
	}

	return policies, rows.Err()
}

// DeletePolicy removes a policy.
func (r *SQLRepository) DeletePolicy(ctx context.Context, policyID string) error {
	query := `DELETE FROM policies WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), policyID)
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
