// Package sqlite provides a SQLite implementation of the storage interface
// for single-node and local deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/codexlens/codexlens/storage"
)

// SQLite provides storage operations using an embedded SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an ephemeral database.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pull_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			github_id INTEGER NOT NULL UNIQUE,
			repo_name TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			title TEXT,
			author TEXT,
			state TEXT,
			action TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS findings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pr_github_id INTEGER NOT NULL,
			tool TEXT NOT NULL,
			rule_code TEXT NOT NULL,
			severity TEXT NOT NULL,
			file_path TEXT NOT NULL,
			line INTEGER NOT NULL,
			col INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_pr ON findings(pr_github_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// UpsertPullRequest creates or updates a pull request record by github_id.
func (s *SQLite) UpsertPullRequest(ctx context.Context, pr *storage.PullRequestRecord) error {
	query := `
		INSERT INTO pull_requests (github_id, repo_name, pr_number, title, author, state, action)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (github_id) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			action = excluded.action,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query,
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
func (s *SQLite) GetPullRequest(ctx context.Context, githubID int64) (*storage.PullRequestRecord, error) {
	query := `
		SELECT id, github_id, repo_name, pr_number, title, author, state, action, created_at, updated_at
		FROM pull_requests
		WHERE github_id = ?
	`

	var pr storage.PullRequestRecord
	var title, author, state, action sql.NullString

	err := s.db.QueryRowContext(ctx, query, githubID).Scan(
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
func (s *SQLite) ReplaceFindings(ctx context.Context, prGithubID int64, findings []*storage.FindingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.PersistenceError{Op: "begin replace findings", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE pr_github_id = ?`, prGithubID); err != nil {
		return &storage.PersistenceError{Op: "delete findings", Err: err}
	}

	insert := `
		INSERT INTO findings (pr_github_id, tool, rule_code, severity, file_path, line, col, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
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
func (s *SQLite) ListFindings(ctx context.Context, prGithubID int64) ([]*storage.FindingRecord, error) {
	query := `
		SELECT id, pr_github_id, tool, rule_code, severity, file_path, line, col, message, created_at
		FROM findings
		WHERE pr_github_id = ?
		ORDER BY file_path ASC, line ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, prGithubID)
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

// Verify SQLite implements Storage at compile time.
var _ storage.Storage = (*SQLite)(nil)
