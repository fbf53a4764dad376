package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyHandled is the expected outcome of losing an acknowledgment
// race: the delivery exists but was already transitioned to handled. It is
// a signal, not a failure.
var ErrAlreadyHandled = errors.New("delivery already handled")

// Store is the durable fingerprint ledger: every ingested message and,
// per destination, its delivery and acknowledgment state. All operations
// are individually atomic and safe under concurrent callers.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the SQLite database at dbPath, enables WAL mode
// and runs any pending schema migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Pragmas go on the DSN so every pooled connection gets them. WAL
	// keeps readers unblocked while the dispatcher writes; the busy
	// timeout covers the ingestion/acknowledgment writer overlap.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Fingerprint returns the deterministic digest identifying a message
// independent of source account or delivery attempt. Two mail items with
// equal fingerprint are the same message.
func Fingerprint(messageID, sender, subject string) string {
	sum := sha256.Sum256([]byte(messageID + "|" + sender + "|" + subject))
	return hex.EncodeToString(sum[:])
}
