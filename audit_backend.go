// audit_backend.go: Storage backends for the audit trail
//
// Two backends behind one interface: SQLite for a queryable unified
// trail (preferred), JSONL as the fallback when SQLite cannot be
// initialized. Selection degrades gracefully so audit storage never
// prevents startup.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditBackend abstracts audit storage so SQLite and JSONL are
// interchangeable behind the same logger.
type auditBackend interface {
	// Write persists a batch of audit events.
	Write(events []AuditEvent) error

	// Flush commits pending writes to durable storage.
	Flush() error

	// Close releases all resources; the backend must not be used after.
	Close() error
}

// createAuditBackend selects a backend: explicit .jsonl paths get the
// JSONL backend, everything else tries SQLite first and falls back to
// JSONL. Both failing is the only fatal outcome.
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config)
	}

	backend, err := newSQLiteBackend(config)
	if err == nil {
		return backend, nil
	}

	jsonlBackend, jsonlErr := newJSONLBackend(config)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

// defaultAuditDBPath returns the unified SQLite audit database path.
func defaultAuditDBPath() string {
	return filepath.Join(os.TempDir(), "pupman", "audit.db")
}

// sqliteAuditBackend stores audit events in a single SQLite database
// with WAL journaling for concurrent access.
type sqliteAuditBackend struct {
	db         *sql.DB
	dbPath     string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteBackend(config AuditConfig) (*sqliteAuditBackend, error) {
	dbPath := config.OutputFile
	if dbPath == "" || filepath.Ext(dbPath) != ".db" {
		dbPath = defaultAuditDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	db, err := openSQLiteDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	backend := &sqliteAuditBackend{db: db, dbPath: dbPath}
	if err := backend.initializeSchema(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to prepare audit statements: %w", err)
	}
	return backend, nil
}

// openSQLiteDatabase opens the database with pragmas tuned for a
// write-mostly audit workload: WAL so readers never block the flusher,
// a busy timeout for multi-process access, NORMAL sync as the
// durability/performance balance.
func openSQLiteDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=1000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	return db, nil
}

func (s *sqliteAuditBackend) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		level TEXT NOT NULL,
		event TEXT NOT NULL,
		component TEXT NOT NULL,
		file_path TEXT,
		process_id INTEGER NOT NULL,
		process_name TEXT NOT NULL,
		context TEXT,
		checksum TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_events(event, timestamp);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create audit_events table: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) prepareStatements() error {
	insertSQL := `
	INSERT INTO audit_events (
		timestamp, level, event, component,
		file_path, process_id, process_name, context, checksum
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := s.db.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	s.insertStmt = stmt
	return nil
}

// Write persists a batch of events inside one transaction.
func (s *sqliteAuditBackend) Write(events []AuditEvent) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	s.mu.RUnlock()

	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txStmt := tx.Stmt(s.insertStmt)
	defer func() { _ = txStmt.Close() }()

	for _, event := range events {
		if err = s.insertEvent(txStmt, event); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) insertEvent(stmt *sql.Stmt, event AuditEvent) error {
	contextJSON := ""
	if event.Context != nil {
		data, err := json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("failed to serialize context: %w", err)
		}
		contextJSON = string(data)
	}

	_, err := stmt.Exec(
		event.Timestamp.Format(time.RFC3339Nano),
		event.Level.String(),
		event.Event,
		event.Component,
		event.FilePath,
		event.ProcessID,
		event.ProcessName,
		contextJSON,
		event.Checksum,
	)
	return err
}

// Flush forces a WAL checkpoint so recent transactions are durable.
func (s *sqliteAuditBackend) Flush() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite audit backend: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close insert statement: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %v", errs)
	}
	return nil
}

// AuditQuery filters for QueryAuditEvents.
type AuditQuery struct {
	Since time.Time
	Event string
	Limit int
}

// QueryAuditEvents reads events back from a SQLite audit database,
// newest first. Used by the audit CLI; the live logger only writes.
func QueryAuditEvents(dbPath string, query AuditQuery) ([]AuditEvent, error) {
	if dbPath == "" {
		dbPath = defaultAuditDBPath()
	}
	db, err := openSQLiteDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	sqlText := `
	SELECT timestamp, level, event, component, file_path, process_id, process_name, context, checksum
	FROM audit_events WHERE 1=1`
	var args []interface{}
	if !query.Since.IsZero() {
		sqlText += " AND timestamp >= ?"
		args = append(args, query.Since.Format(time.RFC3339Nano))
	}
	if query.Event != "" {
		sqlText += " AND event = ?"
		args = append(args, query.Event)
	}
	sqlText += " ORDER BY id DESC"
	if query.Limit > 0 {
		sqlText += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := db.Query(sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []AuditEvent
	for rows.Next() {
		var (
			event       AuditEvent
			timestamp   string
			level       string
			contextJSON string
		)
		if err := rows.Scan(&timestamp, &level, &event.Event, &event.Component,
			&event.FilePath, &event.ProcessID, &event.ProcessName, &contextJSON, &event.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
			event.Timestamp = parsed
		}
		switch level {
		case "WARN":
			event.Level = AuditWarn
		case "CRITICAL":
			event.Level = AuditCritical
		default:
			event.Level = AuditInfo
		}
		if contextJSON != "" {
			_ = json.Unmarshal([]byte(contextJSON), &event.Context)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// jsonlAuditBackend appends events as line-delimited JSON, one object
// per line. Fallback when SQLite is unavailable.
type jsonlAuditBackend struct {
	file   *os.File
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(config AuditConfig) (*jsonlAuditBackend, error) {
	if config.OutputFile == "" {
		return nil, fmt.Errorf("JSONL backend requires OutputFile to be specified")
	}
	if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit log directory: %w", err)
	}

	file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log file: %w", err)
	}
	return &jsonlAuditBackend{file: file}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		if _, err := j.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write audit event to JSONL: %w", err)
		}
	}
	return nil
}

func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL audit file: %w", err)
	}
	return nil
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}
