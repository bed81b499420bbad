package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/prgf87/socket-io-chat/internal/models"
)

// SQLiteLog is the default MessageLog, backed by a single SQLite file
// shared by every worker process on the host.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens (creating if needed) the message log at dbPath.
// If dbPath is empty, defaults to "./data/chat.db".
func NewSQLiteLog(ctx context.Context, dbPath string) (*SQLiteLog, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// WAL so concurrent workers can read during a write; busy_timeout so
	// a worker blocked on another worker's write retries instead of
	// failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	log := &SQLiteLog{db: db}

	if err := log.initSchema(ctx); err != nil {
		return nil, err
	}

	return log, nil
}

// initSchema creates the messages table if it doesn't exist.
func (s *SQLiteLog) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_offset TEXT UNIQUE,
		content TEXT
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteLog) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteLog) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append commits a message, assigning the next id. A uniqueness
// constraint hit on client_offset resolves to the already-stored row.
func (s *SQLiteLog) Append(ctx context.Context, content, clientOffset string) (int64, AppendOutcome, error) {
	if clientOffset == "" {
		return 0, 0, ErrEmptyClientOffset
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (content, client_offset) VALUES (?, ?)
	`, content, clientOffset)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return s.existingID(ctx, clientOffset)
		}
		return 0, 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}
	return id, Inserted, nil
}

// existingID resolves a duplicate submission to the id assigned when the
// offset was first committed.
func (s *SQLiteLog) existingID(ctx context.Context, clientOffset string) (int64, AppendOutcome, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM messages WHERE client_offset = ?
	`, clientOffset).Scan(&id)
	if err != nil {
		return 0, 0, err
	}
	return id, AlreadyExists, nil
}

// ReadRange streams messages with id > afterID in ascending id order.
func (s *SQLiteLog) ReadRange(ctx context.Context, afterID int64, fn func(models.Message) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_offset, content FROM messages
		WHERE id > ?
		ORDER BY id ASC
	`, afterID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.Message
		var offset sql.NullString
		if err := rows.Scan(&msg.ID, &offset, &msg.Content); err != nil {
			return err
		}
		msg.ClientOffset = offset.String

		if err := fn(msg); err != nil {
			if errors.Is(err, ErrStopRange) {
				return nil
			}
			return err
		}
	}

	return rows.Err()
}

// Count returns the number of stored messages.
func (s *SQLiteLog) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
