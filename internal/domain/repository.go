// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. One deployment
// serves one agent and one wallet.
type Repository interface {
	// Transaction ledger operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context) ([]*Transaction, error)
	ListTransactionsByRecipient(ctx context.Context, recipient string) ([]*Transaction, error)

	// Pattern operations
	SavePattern(ctx context.Context, p *EconomicPattern) error
	ListPatterns(ctx context.Context) ([]*EconomicPattern, error)

	// Risk signal operations
	SaveSignal(ctx context.Context, s *RiskSignal) error
	ListSignals(ctx context.Context) ([]*RiskSignal, error)

	// Adaptation audit trail
	SaveAdaptation(ctx context.Context, e *AdaptationEvent) error
	ListAdaptations(ctx context.Context) ([]*AdaptationEvent, error)

	// Resilience score state
	SaveMemoryState(ctx context.Context, score float64, updatedAt time.Time) error
	GetMemoryState(ctx context.Context) (float64, time.Time, error)

	// Policy rule configuration
	SavePolicy(ctx context.Context, p *PolicyConfig) error
	GetPolicy(ctx context.Context, policyID string) (*PolicyConfig, error)
	ListPolicies(ctx context.Context) ([]*PolicyConfig, error)
	DeletePolicy(ctx context.Context, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

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
