// Package storage defines the persistence interface for CodexLens.
package storage

import (
	"context"
	"fmt"
)

// Storage defines the interface for CodexLens storage backends.
// Implementations must be safe for concurrent use by multiple goroutines.
type Storage interface {
	// UpsertPullRequest creates or updates a pull request record keyed by
	// its global GitHub id: create if absent, otherwise refresh the mutable
	// fields (title, state, action). A github_id never maps to more than
	// one row.
	UpsertPullRequest(ctx context.Context, pr *PullRequestRecord) error

	// GetPullRequest retrieves a pull request by its global GitHub id.
	// Returns nil when no record exists.
	GetPullRequest(ctx context.Context, githubID int64) (*PullRequestRecord, error)

	// ReplaceFindings atomically replaces all stored findings for a pull
	// request with the given set, so a retried attempt replaces rather than
	// appends to an earlier attempt's findings.
	ReplaceFindings(ctx context.Context, prGithubID int64, findings []*FindingRecord) error

	// ListFindings retrieves all findings for a pull request.
	ListFindings(ctx context.Context, prGithubID int64) ([]*FindingRecord, error)
}

// PersistenceError wraps a failed storage operation. It is retryable at the
// task level.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
