package storage

import "time"

// PullRequestRecord is the persistent record of a pull request seen by the
// reviewer. GithubID is GitHub's global identifier and the only identity
// used for upserts; PRNumber is unique only within one repository and is
// kept for display.
type PullRequestRecord struct {
	ID        int64
	GithubID  int64
	RepoName  string
	PRNumber  int
	Title     string
	Author    string
	State     string
	Action    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FindingRecord is one persisted static-analysis finding, keyed to its pull
// request by the PR's global GitHub id.
type FindingRecord struct {
	ID         int64
	PRGithubID int64
	Tool       string
	RuleCode   string
	Severity   string
	FilePath   string
	Line       int
	Column     int
	Message    string
	CreatedAt  time.Time
}
