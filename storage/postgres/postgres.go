// Package postgres provides a PostgreSQL implementation of the storage
// interface. This is the backend for server deployments.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/codexlens/codexlens/storage"
)

// PostgreSQL provides storage operations using PostgreSQL.
type PostgreSQL struct {
	db *sql.DB
}

// New creates a new PostgreSQL storage instance.
func New(db *sql.DB) *PostgreSQL {
	return &PostgreSQL{db: db}
}

// NewFromDSN creates a new PostgreSQL storage instance from a connection string.
func NewFromDSN(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// Close closes the database connection.
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

// Migrate creates the required database tables.
func (p *PostgreSQL) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS pull_requests (
			id SERIAL PRIMARY KEY,
			github_id BIGINT NOT NULL UNIQUE,
			repo_name TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			title TEXT,
			author TEXT,
			state TEXT,
			action TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS findings (
			id SERIAL PRIMARY KEY,
			pr_github_id BIGINT NOT NULL,
			tool TEXT NOT NULL,
			rule_code TEXT NOT NULL,
			severity TEXT NOT NULL,
			file_path TEXT NOT NULL,
			line INTEGER NOT NULL,
			col INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_findings_pr ON findings(pr_github_id);
	`

	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// UpsertPullRequest creates or updates a pull request record by github_id.
func (p *PostgreSQL) UpsertPullRequest(ctx context.Context, pr *storage.PullRequestRecord) error {
	query := `
		INSERT INTO pull_requests (github_id, repo_name, pr_number, title, author, state, action)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (github_id) DO UPDATE SET
			title = EXCLUDED.title,
			state = EXCLUDED.state,
			action = EXCLUDED.action,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		pr.GithubID,
		pr.RepoName,
		pr.PRNumber,
		pr.Title,
		pr.Author,
		pr.State,
		pr.Action,
	)
	if err != nil {
		return &storage.PersistenceError{Op: "upsert pull request", Err: err}
	}

	return nil
}

// GetPullRequest retrieves a pull request record by github_id.
func (p *PostgreSQL) GetPullRequest(ctx context.Context, githubID int64) (*storage.PullRequestRecord, error) {
	query := `
		SELECT id, github_id, repo_name, pr_number, title, author, state, action, created_at, updated_at
		FROM pull_requests
		WHERE github_id = $1
	`

	var pr storage.PullRequestRecord
	var title, author, state, action sql.NullString

	err := p.db.QueryRowContext(ctx, query, githubID).Scan(
		&pr.ID,
		&pr.GithubID,
		&pr.RepoName,
		&pr.PRNumber,
		&title,
		&author,
		&state,
		&action,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get pull request", Err: err}
	}

	pr.Title = title.String
	pr.Author = author.String
	pr.State = state.String
	pr.Action = action.String

	return &pr, nil
}

// ReplaceFindings replaces all findings for a pull request in one
// transaction, so retried attempts never double-count.
func (p *PostgreSQL) ReplaceFindings(ctx context.Context, prGithubID int64, findings []*storage.FindingRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.PersistenceError{Op: "begin replace findings", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE pr_github_id = $1`, prGithubID); err != nil {
		return &storage.PersistenceError{Op: "delete findings", Err: err}
	}

	insert := `
		INSERT INTO findings (pr_github_id, tool, rule_code, severity, file_path, line, col, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, f := range findings {
		if _, err := tx.ExecContext(ctx, insert,
			prGithubID, f.Tool, f.RuleCode, f.Severity, f.FilePath, f.Line, f.Column, f.Message,
		); err != nil {
			return &storage.PersistenceError{Op: "insert finding", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &storage.PersistenceError{Op: "commit replace findings", Err: err}
	}

	return nil
}

// ListFindings retrieves all findings for a pull request.
func (p *PostgreSQL) ListFindings(ctx context.Context, prGithubID int64) ([]*storage.FindingRecord, error) {
	query := `
		SELECT id, pr_github_id, tool, rule_code, severity, file_path, line, col, message, created_at
		FROM findings
		WHERE pr_github_id = $1
		ORDER BY file_path ASC, line ASC, id ASC
	`

	rows, err := p.db.QueryContext(ctx, query, prGithubID)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "list findings", Err: err}
	}
	defer rows.Close()

	var findings []*storage.FindingRecord
	for rows.Next() {
		var f storage.FindingRecord
		if err := rows.Scan(
			&f.ID,
			&f.PRGithubID,
			&f.Tool,
			&f.RuleCode,
			&f.Severity,
			&f.FilePath,
			&f.Line,
			&f.Column,
			&f.Message,
			&f.CreatedAt,
		); err != nil {
			return nil, &storage.PersistenceError{Op: "scan finding", Err: err}
		}
		findings = append(findings, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "list findings", Err: err}
	}
	return findings, nil
}

// Verify PostgreSQL implements Storage at compile time.
var _ storage.Storage = (*PostgreSQL)(nil)
