package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS chat_messages (
	id         BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, id);
`

// PostgresStore keeps sessions in PostgreSQL through the pgx driver. All
// messages are kept; History returns only the most recent exchanges.
type PostgresStore struct {
	db         *sql.DB
	maxHistory int
}

// OpenPostgres connects with the pgx stdlib driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB, maxHistory int) *PostgresStore {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &PostgresStore{db: db, maxHistory: maxHistory}
}

// Migrate creates the session tables if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate session schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context) (string, error) {
	id := newID()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO chat_sessions (id) VALUES ($1)`, id); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) History(ctx context.Context, sessionID string) (string, error) {
	if s.maxHistory == 0 {
		return "", nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT id, role, content FROM chat_messages
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent ORDER BY id ASC`, sessionID, s.maxHistory*2)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return "", fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to iterate history: %w", err)
	}
	return FormatHistory(msgs), nil
}

func (s *PostgresStore) AddExchange(ctx context.Context, sessionID, question, answer string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn().Err(rbErr).Str("session_id", sessionID).Msg("rollback failed")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO chat_sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, sessionID); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content) VALUES ($1, $2, $3), ($1, $4, $5)`,
		sessionID, string(RoleUser), question, string(RoleAssistant), answer); err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exchange: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
