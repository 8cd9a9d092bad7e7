package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/opsdesk/deskbot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStore keeps sessions in a single table with an expires_at column.
// Reads filter on the deadline, so an expired row is absent even before the
// reaper has deleted it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(config DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, threadID string) (*models.Session, bool, error) {
	query := `
		SELECT state FROM conversation_sessions
		WHERE thread_id = $1 AND expires_at > now()`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session %q: %w", threadID, err)
	}
	return &sess, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, threadID string, sess *models.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session %q: %w", threadID, err)
	}

	query := `
		INSERT INTO conversation_sessions (thread_id, state, expires_at)
		VALUES ($1, $2, now() + $3 * interval '1 second')
		ON CONFLICT (thread_id)
		DO UPDATE SET state = EXCLUDED.state, expires_at = EXCLUDED.expires_at`

	if _, err := s.db.ExecContext(ctx, query, threadID, data, int(ttl.Seconds())); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, threadID string) error {
	query := `DELETE FROM conversation_sessions WHERE thread_id = $1`
	if _, err := s.db.ExecContext(ctx, query, threadID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Reap deletes rows whose deadline has passed. Expiry is already enforced on
// read; this only keeps the table from growing without bound.
func (s *PostgresStore) Reap(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE expires_at <= now()`)
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
