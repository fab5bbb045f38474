// Package domain defines the core types and interfaces for FraudGuard.
package domain

import (
	"context"
	"time"
)

// AnalysisFilter narrows ListAnalyses results.
type AnalysisFilter struct {
	RiskLevel RiskLevel // empty = all levels
	Page      int       // 1-based
	PerPage   int
}

// RiskStats summarizes stored analyses for the stats endpoint.
type RiskStats struct {
	TotalTransactions int               `json:"totalTransactions"`
	RiskDistribution  map[RiskLevel]int `json:"riskDistribution"`
	AlertCount        int               `json:"alertsCount"`
}

// Repository defines the interface for data persistence.
type Repository interface {
	// Analysis operations
	SaveAnalysis(ctx context.Context, a *Analysis) error
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)
	GetAnalysisByTransaction(ctx context.Context, txID string) (*Analysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*Analysis, int, error)

	// HistoryByCard returns the card's most recent prior transactions,
	// ordered most-recent-last, at most limit entries.
	HistoryByCard(ctx context.Context, cardNumber string, limit int) (History, error)

	// Alert operations
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, severity string, limit int) ([]*Alert, error)

	// Stats returns aggregate counts for reporting.
	Stats(ctx context.Context) (*RiskStats, error)

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
