package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/xaenox/kontify-triage/internal/models"
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

func (c DatabaseConfig) connString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_sessions WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStorage) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_sessions (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("error writing key %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_sessions WHERE key = $1`, key); err != nil {
		return fmt.Errorf("error removing key %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) SaveLead(ctx context.Context, lead *models.Lead) error {
	summary, contact, err := encodeLeadColumns(lead)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO leads (id, session_id, level, urgency, summary, contact, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.db.ExecContext(ctx, query,
		lead.ID,
		lead.SessionID,
		string(lead.Summary.Level),
		string(lead.Summary.Urgency),
		summary,
		contact,
		string(lead.Status),
		lead.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating lead: %w", err)
	}
	return nil
}

func (s *PostgresStorage) RecentLeads(ctx context.Context, limit int) ([]*models.Lead, error) {
	query := `
		SELECT id, session_id, summary, contact, status, created_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying leads: %w", err)
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		lead := &models.Lead{}
		var summary string
		var contact sql.NullString
		if err := rows.Scan(&lead.ID, &lead.SessionID, &summary, &contact, &lead.Status, &lead.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning lead: %w", err)
		}
		var contactPtr *string
		if contact.Valid {
			contactPtr = &contact.String
		}
		if err := decodeLeadColumns(lead, summary, contactPtr); err != nil {
			return nil, fmt.Errorf("lead %s: %w", lead.ID, err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
