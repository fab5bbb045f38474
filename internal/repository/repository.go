// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fintechco/fraudguard/internal/domain"
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

// SaveAnalysis stores a completed analysis.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: analysis with ID is required", ErrInvalidInput)
	}

	txJSON, err := json.Marshal(a.Transaction)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	rulesJSON, _ := json.Marshal(a.Rules)
	assessmentJSON, _ := json.Marshal(a.Assessment)
	decisionJSON, _ := json.Marshal(a.Decision)
	warningsJSON, _ := json.Marshal(a.Warnings)

	var predictionJSON []byte
	if a.Prediction != nil {
		predictionJSON, _ = json.Marshal(a.Prediction)
	}

	query := `
		INSERT INTO analyses (
			id, transaction_id, card_number, merchant, location,
			amount, currency, tx_timestamp, risk_level, action,
			final_risk_score, transaction_json, rules_json,
			assessment_json, prediction_json, decision_json,
			warnings_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.Transaction.ID, a.Transaction.CardNumber,
		a.Transaction.Merchant, a.Transaction.Location,
		a.Transaction.Amount.String(), a.Transaction.Currency,
		a.Transaction.Timestamp, string(a.Assessment.RiskLevel),
		string(a.Decision.Action), a.Decision.FinalRiskScore,
		string(txJSON), string(rulesJSON), string(assessmentJSON),
		nullableString(predictionJSON), string(decisionJSON),
		string(warningsJSON), a.CreatedAt,
	)
	return err
}

// GetAnalysis retrieves an analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, id string) (*domain.Analysis, error) {
	query := `
		SELECT id, transaction_json, rules_json, assessment_json,
			   prediction_json, decision_json, warnings_json, created_at
		FROM analyses
		WHERE id = ?
	`
	return r.scanAnalysis(r.db.QueryRowContext(ctx, r.rebind(query), id))
}

// GetAnalysisByTransaction retrieves the analysis for a transaction ID.
func (r *SQLRepository) GetAnalysisByTransaction(ctx context.Context, txID string) (*domain.Analysis, error) {
	query := `
		SELECT id, transaction_json, rules_json, assessment_json,
			   prediction_json, decision_json, warnings_json, created_at
		FROM analyses
		WHERE transaction_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanAnalysis(r.db.QueryRowContext(ctx, r.rebind(query), txID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var a domain.Analysis
	var txJSON, rulesJSON, assessmentJSON, decisionJSON string
	var predictionJSON, warningsJSON sql.NullString

	err := row.Scan(&a.ID, &txJSON, &rulesJSON, &assessmentJSON,
		&predictionJSON, &decisionJSON, &warningsJSON, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(txJSON), &a.Transaction); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &a.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rule report: %w", err)
	}
	if err := json.Unmarshal([]byte(assessmentJSON), &a.Assessment); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	if err := json.Unmarshal([]byte(decisionJSON), &a.Decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}
	if predictionJSON.Valid && predictionJSON.String != "" {
		if err := json.Unmarshal([]byte(predictionJSON.String), &a.Prediction); err != nil {
			return nil, fmt.Errorf("failed to decode prediction: %w", err)
		}
	}
	if warningsJSON.Valid && warningsJSON.String != "" {
		_ = json.Unmarshal([]byte(warningsJSON.String), &a.Warnings)
	}

	return &a, nil
}

// ListAnalyses returns a page of analyses plus the total count for the
// filter, newest first.
func (r *SQLRepository) ListAnalyses(ctx context.Context, filter domain.AnalysisFilter) ([]*domain.Analysis, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 20
	}

	where := ""
	args := []any{}
	if filter.RiskLevel != "" {
		where = " WHERE risk_level = ?"
		args = append(args, string(filter.RiskLevel))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM analyses" + where
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, transaction_json, rules_json, assessment_json,
			   prediction_json, decision_json, warnings_json, created_at
		FROM analyses` + where + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var analyses []*domain.Analysis
	for rows.Next() {
		a, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, 0, err
		}
		analyses = append(analyses, a)
	}

	return analyses, total, rows.Err()
}

// HistoryByCard returns the card's most recent transactions ordered
// most-recent-last, at most limit entries.
func (r *SQLRepository) HistoryByCard(ctx context.Context, cardNumber string, limit int) (domain.History, error) {
	if cardNumber == "" {
		return nil, fmt.Errorf("%w: cardNumber is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 30
	}

	query := `
		SELECT transaction_id, card_number, merchant, location,
			   amount, currency, tx_timestamp
		FROM analyses
		WHERE card_number = ?
		ORDER BY tx_timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), cardNumber, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history domain.History
	for rows.Next() {
		var tx domain.Transaction
		var amount string
		if err := rows.Scan(&tx.ID, &tx.CardNumber, &tx.Merchant,
			&tx.Location, &amount, &tx.Currency, &tx.Timestamp); err != nil {
			return nil, err
		}
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for %s: %w", tx.ID, err)
		}
		history = append(history, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; callers expect most-recent-last.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

// SaveAlert stores a fraud alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert with ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, transaction_id, severity, risk_score, action_required,
			reason, merchant, amount, location, created_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.TransactionID, alert.Severity, alert.RiskScore,
		string(alert.ActionRequired), alert.Reason, alert.Merchant,
		alert.Amount.String(), alert.Location, alert.CreatedAt, alert.Status,
	)
	return err
}

// ListAlerts returns alerts newest first, optionally filtered by severity.
func (r *SQLRepository) ListAlerts(ctx context.Context, severity string, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	where := ""
	args := []any{}
	if severity != "" {
		where = " WHERE severity = ?"
		args = append(args, severity)
	}

	query := `
		SELECT id, transaction_id, severity, risk_score, action_required,
			   reason, merchant, amount, location, created_at, status
		FROM alerts` + where + `
		ORDER BY created_at DESC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var action, amount string
		if err := rows.Scan(&a.ID, &a.TransactionID, &a.Severity,
			&a.RiskScore, &action, &a.Reason, &a.Merchant,
			&amount, &a.Location, &a.CreatedAt, &a.Status); err != nil {
			return nil, err
		}
		a.ActionRequired = domain.Action(action)
		a.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for alert %s: %w", a.ID, err)
		}
		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// Stats returns aggregate counts over stored analyses and alerts.
func (r *SQLRepository) Stats(ctx context.Context) (*domain.RiskStats, error) {
	stats := &domain.RiskStats{
		RiskDistribution: make(map[domain.RiskLevel]int),
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT risk_level, COUNT(*) FROM analyses GROUP BY risk_level")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		stats.RiskDistribution[domain.RiskLevel(level)] = count
		stats.TotalTransactions += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts").Scan(&stats.AlertCount); err != nil {
		return nil, err
	}

	return stats, nil
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

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
