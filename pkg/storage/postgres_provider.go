package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/connectrunner/connectrunner/pkg/config"
)

// PostgreSQLProvider implements RunStore using PostgreSQL
type PostgreSQLProvider struct {
	db *sql.DB
}

// NewPostgreSQLProvider creates a new PostgreSQL run store and ensures the
// schema exists.
func NewPostgreSQLProvider(cfg config.PostgresConfig) (*PostgreSQLProvider, error) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	p := &PostgreSQLProvider{db: db}
	if err := p.initialize(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgreSQLProvider) initialize() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			candidates_discovered INTEGER NOT NULL DEFAULT 0,
			candidates_evaluated INTEGER NOT NULL DEFAULT 0,
			connections_sent INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

// SaveRun stores the terminal snapshot of a run
func (p *PostgreSQLProvider) SaveRun(summary RunSummary) error {
	_, err := p.db.Exec(`
		INSERT INTO runs (
			id, status, started_at, finished_at, last_error,
			candidates_discovered, candidates_evaluated, connections_sent, skipped
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			last_error = EXCLUDED.last_error,
			candidates_discovered = EXCLUDED.candidates_discovered,
			candidates_evaluated = EXCLUDED.candidates_evaluated,
			connections_sent = EXCLUDED.connections_sent,
			skipped = EXCLUDED.skipped
	`,
		summary.ID, summary.Status, summary.StartedAt, summary.FinishedAt,
		summary.LastError, summary.CandidatesDiscovered, summary.CandidatesEvaluated,
		summary.ConnectionsSent, summary.Skipped,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (p *PostgreSQLProvider) GetRun(id string) (RunSummary, error) {
	row := p.db.QueryRow(`
		SELECT id, status, started_at, finished_at, last_error,
			candidates_discovered, candidates_evaluated, connections_sent, skipped
		FROM runs WHERE id = $1
	`, id)

	var s RunSummary
	err := row.Scan(
		&s.ID, &s.Status, &s.StartedAt, &s.FinishedAt, &s.LastError,
		&s.CandidatesDiscovered, &s.CandidatesEvaluated, &s.ConnectionsSent, &s.Skipped,
	)
	if err == sql.ErrNoRows {
		return RunSummary{}, ErrRunNotFound
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to get run: %w", err)
	}
	return s, nil
}

// ListRuns returns runs most-recent-first, up to limit (0 for all)
func (p *PostgreSQLProvider) ListRuns(limit int) ([]RunSummary, error) {
	query := `
		SELECT id, status, started_at, finished_at, last_error,
			candidates_discovered, candidates_evaluated, connections_sent, skipped
		FROM runs ORDER BY started_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(
			&s.ID, &s.Status, &s.StartedAt, &s.FinishedAt, &s.LastError,
			&s.CandidatesDiscovered, &s.CandidatesEvaluated, &s.ConnectionsSent, &s.Skipped,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the database connection
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}
