package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=60000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS transfers (
		row_key TEXT NOT NULL,
		input TEXT NOT NULL,
		destination TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (row_key, destination)
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save upserts one entry. Writes are serialized to keep concurrent
// workers from tripping SQLITE_BUSY.
func (s *SQLiteStore) Save(entry *Entry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	entry.UpdatedAt = time.Now()
	query := `
	INSERT INTO transfers (row_key, input, destination, status, attempts, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(row_key, destination) DO UPDATE SET
		input = excluded.input,
		status = excluded.status,
		attempts = excluded.attempts,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query,
		entry.RowKey,
		entry.Input,
		entry.Destination,
		entry.Status,
		entry.Attempts,
		entry.LastError,
		entry.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) Get(rowKey, destination string) (*Entry, error) {
	row := s.db.QueryRow(`
	SELECT row_key, input, destination, status, attempts, last_error, updated_at
	FROM transfers WHERE row_key = ? AND destination = ?
	`, rowKey, destination)
	return scanEntry(row)
}

func (s *SQLiteStore) ListFailed() ([]*Entry, error) {
	rows, err := s.db.Query(`
	SELECT row_key, input, destination, status, attempts, last_error, updated_at
	FROM transfers WHERE status = ? ORDER BY updated_at ASC
	`, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var entry Entry
	var lastError sql.NullString
	err := row.Scan(
		&entry.RowKey,
		&entry.Input,
		&entry.Destination,
		&entry.Status,
		&entry.Attempts,
		&lastError,
		&entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastError.Valid {
		entry.LastError = lastError.String
	}
	return &entry, nil
}
