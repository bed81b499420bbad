package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prgf87/socket-io-chat/internal/models"
)

// PostgresLog is a MessageLog backed by PostgreSQL, for deployments where
// the worker processes span more than one host.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog creates a new PostgreSQL-backed log with a connection pool.
func NewPostgresLog(ctx context.Context, databaseURL string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	log := &PostgresLog{pool: pool}

	if err := log.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return log, nil
}

// initSchema creates the messages table if it doesn't exist.
func (s *PostgresLog) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			client_offset TEXT UNIQUE NOT NULL,
			content TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the connection pool.
func (s *PostgresLog) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresLog) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append commits a message, assigning the next id. ON CONFLICT DO NOTHING
// returns no row for a duplicate offset, which resolves to the id assigned
// when the offset was first committed.
func (s *PostgresLog) Append(ctx context.Context, content, clientOffset string) (int64, AppendOutcome, error) {
	if clientOffset == "" {
		return 0, 0, ErrEmptyClientOffset
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (content, client_offset)
		VALUES ($1, $2)
		ON CONFLICT (client_offset) DO NOTHING
		RETURNING id
	`, content, clientOffset).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.existingID(ctx, clientOffset)
		}
		return 0, 0, err
	}
	return id, Inserted, nil
}

func (s *PostgresLog) existingID(ctx context.Context, clientOffset string) (int64, AppendOutcome, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM messages WHERE client_offset = $1
	`, clientOffset).Scan(&id)
	if err != nil {
		return 0, 0, err
	}
	return id, AlreadyExists, nil
}

// ReadRange streams messages with id > afterID in ascending id order.
func (s *PostgresLog) ReadRange(ctx context.Context, afterID int64, fn func(models.Message) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_offset, content FROM messages
		WHERE id > $1
		ORDER BY id ASC
	`, afterID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ClientOffset, &msg.Content); err != nil {
			return err
		}

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
func (s *PostgresLog) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
