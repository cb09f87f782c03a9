// Package audit persists calculation records for the dosing audit trail.
// Records capture what was recommended and when; they never feed back into
// the engine's computation.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vanco-dosing-server/internal/domain"
)

// SQLiteStore implements domain.CalculationStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite calculation store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

const recordColumns = `id, request_id, population_type, indication, severity, crcl_method,
	bayesian, observation_count, dose_mg, interval_hr, auc24_median, status,
	processing_time_ms, created_at`

// scanRecord scans a row into a CalculationRecord.
func scanRecord(s scanner) (*domain.CalculationRecord, error) {
	r := &domain.CalculationRecord{}
	var population, indication, severity, crclMethod, status string

	err := s.Scan(
		&r.ID, &r.RequestID, &population, &indication, &severity, &crclMethod,
		&r.Bayesian, &r.ObservationCount, &r.DoseMg, &r.IntervalHours,
		&r.AUC24Median, &status, &r.ProcessingTimeMs, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Population = domain.PopulationType(population)
	r.Indication = domain.Indication(indication)
	r.Severity = domain.InfectionSeverity(severity)
	r.CrClMethod = domain.CrClMethod(crclMethod)
	r.Status = domain.OptimizationStatus(status)
	return r, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS calculations (
		id TEXT PRIMARY KEY,
		request_id TEXT DEFAULT '',
		population_type TEXT NOT NULL,
		indication TEXT NOT NULL,
		severity TEXT NOT NULL,
		crcl_method TEXT NOT NULL,
		bayesian INTEGER NOT NULL DEFAULT 0,
		observation_count INTEGER NOT NULL DEFAULT 0,
		dose_mg REAL NOT NULL,
		interval_hr REAL NOT NULL,
		auc24_median REAL NOT NULL,
		status TEXT NOT NULL,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_calculations_request_id ON calculations(request_id);
	CREATE INDEX IF NOT EXISTS idx_calculations_created_at ON calculations(created_at);
	CREATE INDEX IF NOT EXISTS idx_calculations_indication ON calculations(indication);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores a calculation record.
func (s *SQLiteStore) Save(ctx context.Context, record *domain.CalculationRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO calculations (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.RequestID,
		string(record.Population),
		string(record.Indication),
		string(record.Severity),
		string(record.CrClMethod),
		record.Bayesian,
		record.ObservationCount,
		record.DoseMg,
		record.IntervalHours,
		record.AUC24Median,
		string(record.Status),
		record.ProcessingTimeMs,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save calculation: %w", err)
	}
	return nil
}

// Get retrieves a calculation record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.CalculationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM calculations WHERE id = ?`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calculation: %w", err)
	}
	return record, nil
}

// List returns calculation records ordered newest first, with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.CalculationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM calculations ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	defer rows.Close()

	var records []*domain.CalculationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calculation: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Count returns the total number of calculation records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calculations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count calculations: %w", err)
	}
	return count, nil
}

// Latest returns the most recent calculation record.
func (s *SQLiteStore) Latest(ctx context.Context) (*domain.CalculationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM calculations ORDER BY created_at DESC, id DESC LIMIT 1`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest calculation: %w", err)
	}
	return record, nil
}

// ExportJSON exports all calculation records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	records, err := s.List(ctx, 1000000, 0)
	if err != nil {
		return err
	}

	export := Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Records:    records,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Export is the JSON export format for the audit trail.
type Export struct {
	Version    string                      `json:"version"`
	ExportedAt time.Time                   `json:"exported_at"`
	Count      int                         `json:"count"`
	Records    []*domain.CalculationRecord `json:"records"`
}
