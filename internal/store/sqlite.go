package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/faultlens/faultlens-agent/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS investigations (
	id           TEXT PRIMARY KEY,
	service      TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	record       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_investigations_service ON investigations (service, started_at DESC);
`

// SQLiteStore persists records as JSON rows in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path.
// ":memory:" gives an ephemeral store for tests and localdev.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "faultlens.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrStorage, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts a record keyed by investigation id.
func (s *SQLiteStore) Save(ctx context.Context, rec models.InvestigationRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal record %s: %v", ErrStorage, rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO investigations (id, service, status, started_at, completed_at, record)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			record = excluded.record`,
		rec.ID, rec.Alert.Service, string(rec.Status), rec.StartedAt, rec.CompletedAt, string(payload))
	if err != nil {
		return fmt.Errorf("%w: save record %s: %v", ErrStorage, rec.ID, err)
	}
	return nil
}

// Load fetches one record by id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (models.InvestigationRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM investigations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.InvestigationRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.InvestigationRecord{}, fmt.Errorf("%w: load record %s: %v", ErrStorage, id, err)
	}

	var rec models.InvestigationRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return models.InvestigationRecord{}, fmt.Errorf("%w: decode record %s: %v", ErrStorage, id, err)
	}
	return rec, nil
}

// List returns records newest first, optionally filtered by service.
func (s *SQLiteStore) List(ctx context.Context, service string, limit int) ([]models.InvestigationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT record FROM investigations ORDER BY started_at DESC LIMIT ?`
	args := []any{limit}
	if service != "" {
		query = `SELECT record FROM investigations WHERE service = ? ORDER BY started_at DESC LIMIT ?`
		args = []any{service, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", ErrStorage, err)
	}
	defer rows.Close()

	records := make([]models.InvestigationRecord, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", ErrStorage, err)
		}
		var rec models.InvestigationRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("%w: decode record: %v", ErrStorage, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %v", ErrStorage, err)
	}
	return records, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
