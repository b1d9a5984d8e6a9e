package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codexlens/codexlens/analysis"
	"github.com/codexlens/codexlens/config"
	"github.com/codexlens/codexlens/github"
	"github.com/codexlens/codexlens/storage"
)

// State is the pipeline stage a review run is in. Transitions only move
// forward; a retried attempt restarts from StateFetching.
type State string

const (
	StateFetching   State = "fetching"
	StateAnalyzing  State = "analyzing"
	StatePersisting State = "persisting"
	StateCommenting State = "commenting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryDelay     = 60 * time.Second
	defaultPostRetryDelay = 5 * time.Second
	defaultFetchWorkers   = 8
	commentPostRetries    = 2
)

// CommentPostError indicates posting review comments failed after analysis
// and persistence succeeded. It never fails the run.
type CommentPostError struct {
	Repo     string
	PRNumber int
	Err      error
}

func (e *CommentPostError) Error() string {
	return fmt.Sprintf("failed to post review comments on %s#%d: %v", e.Repo, e.PRNumber, e.Err)
}

func (e *CommentPostError) Unwrap() error {
	return e.Err
}

// Input identifies the pull request a task reviews.
type Input struct {
	// PRGithubID is GitHub's global PR id, the persistence key.
	PRGithubID int64
	// RepoName is the "owner/repo" full name.
	RepoName string
	// PRNumber is the repo-local PR number, used for API routes and display.
	PRNumber int
	// InstallationID scopes authentication to the installed repository.
	InstallationID int64
}

// Result summarizes a finished review run.
type Result struct {
	State          State
	Attempts       int
	FilesAnalyzed  int
	FindingCount   int
	CommentsPosted int
	// PartialFailure is set when analysis and persistence succeeded but the
	// review comments could not be posted.
	PartialFailure bool
}

// Task drives one pull request through the review pipeline: fetch metadata
// and content, analyze, persist findings, post comments.
type Task struct {
	client       *github.Client
	orchestrator *analysis.Orchestrator
	aggregator   *Aggregator
	store        storage.Storage
	configLoader *config.Loader
	logger       *slog.Logger

	maxAttempts    int
	retryDelay     time.Duration
	postRetryDelay time.Duration
}

// NewTask wires a review task over its collaborators.
func NewTask(
	client *github.Client,
	orchestrator *analysis.Orchestrator,
	aggregator *Aggregator,
	store storage.Storage,
	configLoader *config.Loader,
	logger *slog.Logger,
) *Task {
	return &Task{
		client:       client,
		orchestrator: orchestrator,
		aggregator:   aggregator,
		store:        store,
		configLoader: configLoader,
		logger:         logger,
		maxAttempts:    defaultMaxAttempts,
		retryDelay:     defaultRetryDelay,
		postRetryDelay: defaultPostRetryDelay,
	}
}

// SetRetryPolicy overrides the attempt budget and the fixed delays between
// attempts and between comment post retries, primarily for tests.
func (t *Task) SetRetryPolicy(maxAttempts int, delay time.Duration) {
	if maxAttempts > 0 {
		t.maxAttempts = maxAttempts
	}
	if delay >= 0 {
		t.retryDelay = delay
		t.postRetryDelay = delay
	}
}

// Run executes the pipeline with retries. Retryable failures (auth, network,
// persistence) restart the attempt after a fixed delay up to the attempt
// budget; credential failures and context cancellation fail immediately.
func (t *Task) Run(ctx context.Context, in Input) (*Result, error) {
	logger := t.logger.With("repo", in.RepoName, "pr", in.PRNumber)

	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			logger.Info("retrying review", "attempt", attempt, "delay", t.retryDelay)
			select {
			case <-time.After(t.retryDelay):
			case <-ctx.Done():
				return &Result{State: StateFailed, Attempts: attempt - 1}, ctx.Err()
			}
		}

		result, err := t.runAttempt(ctx, logger, in)
		if err == nil {
			result.Attempts = attempt
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			logger.Error("review failed", "attempt", attempt, "error", err)
			return &Result{State: StateFailed, Attempts: attempt}, err
		}
		logger.Warn("review attempt failed", "attempt", attempt, "error", err)
	}

	logger.Error("review failed after all attempts", "attempts", t.maxAttempts, "error", lastErr)
	return &Result{State: StateFailed, Attempts: t.maxAttempts}, lastErr
}

// isRetryable classifies an attempt failure. Auth, network, and persistence
// errors are transient; anything else aborts the task.
func isRetryable(err error) bool {
	var credErr *github.CredentialError
	if errors.As(err, &credErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var authErr *github.AuthError
	var netErr *github.NetworkError
	var persistErr *storage.PersistenceError
	return errors.As(err, &authErr) || errors.As(err, &netErr) || errors.As(err, &persistErr)
}

func (t *Task) runAttempt(ctx context.Context, logger *slog.Logger, in Input) (*Result, error) {
	owner, repo, err := splitRepoName(in.RepoName)
	if err != nil {
		return nil, err
	}

	// Fetching
	logger.Info("review started", "state", StateFetching)

	pr, err := t.client.GetPullRequest(ctx, in.InstallationID, owner, repo, in.PRNumber)
	if err != nil {
		return nil, err
	}

	record := &storage.PullRequestRecord{
		GithubID: pr.ID,
		RepoName: in.RepoName,
		PRNumber: pr.Number,
		Title:    pr.Title,
		State:    pr.State,
	}
	if pr.User != nil {
		record.Author = pr.User.Login
	}
	if err := t.store.UpsertPullRequest(ctx, record); err != nil {
		return nil, err
	}

	headSHA := ""
	if pr.Head != nil {
		headSHA = pr.Head.SHA
	}

	repoCfg, err := t.configLoader.Load(ctx, in.InstallationID, owner, repo, headSHA)
	if err != nil {
		// Config problems never block a review; fall back to defaults.
		logger.Warn("failed to load repo config, using defaults", "error", err)
		repoCfg = config.DefaultConfig()
	}
	if !repoCfg.ShouldReviewOnEvent() {
		logger.Info("reviews disabled for repository")
		return &Result{State: StateCompleted}, nil
	}

	changed, err := t.client.ListPullRequestFiles(ctx, in.InstallationID, owner, repo, in.PRNumber)
	if err != nil {
		return nil, err
	}

	eligible := make([]github.PullRequestFile, 0, len(changed))
	for _, f := range changed {
		if f.Status != "added" && f.Status != "modified" {
			continue
		}
		if !analysis.IsSupported(f.Filename) {
			continue
		}
		if repoCfg.ShouldExcludeFile(f.Filename) {
			logger.Info("file excluded by config", "file", f.Filename)
			continue
		}
		eligible = append(eligible, f)
	}

	// Analyzing
	logger.Info("fetching file content", "state", StateAnalyzing, "files", len(eligible))

	files := t.fetchContent(ctx, logger, in.InstallationID, eligible)
	findings := t.orchestrator.Analyze(ctx, files)

	if len(repoCfg.Tools) > 0 {
		kept := findings[:0]
		for _, f := range findings {
			if repoCfg.ToolEnabled(f.Tool.String()) {
				kept = append(kept, f)
			}
		}
		findings = kept
	}

	// Persisting
	logger.Info("persisting findings", "state", StatePersisting, "findings", len(findings))

	records := make([]*storage.FindingRecord, 0, len(findings))
	for _, f := range findings {
		records = append(records, &storage.FindingRecord{
			PRGithubID: pr.ID,
			Tool:       f.Tool.String(),
			RuleCode:   f.RuleCode,
			Severity:   f.Severity.String(),
			FilePath:   f.FilePath,
			Line:       f.Line,
			Column:     f.Column,
			Message:    f.Message,
		})
	}
	if err := t.store.ReplaceFindings(ctx, pr.ID, records); err != nil {
		return nil, err
	}

	// Commenting
	comments := t.aggregator.Comments(findings)
	result := &Result{
		State:         StateCompleted,
		FilesAnalyzed: len(files),
		FindingCount:  len(findings),
	}

	if len(comments) == 0 {
		logger.Info("review completed", "findings", 0)
		return result, nil
	}

	logger.Info("posting review", "state", StateCommenting, "comments", len(comments))

	if err := t.postComments(ctx, in, owner, repo, headSHA, comments); err != nil {
		// Best effort: the findings are persisted, so a failed post degrades
		// rather than fails the run.
		logger.Warn("failed to post review comments", "error", &CommentPostError{
			Repo:     in.RepoName,
			PRNumber: in.PRNumber,
			Err:      err,
		})
		result.PartialFailure = true
		return result, nil
	}

	result.CommentsPosted = len(comments)
	logger.Info("review completed", "findings", len(findings), "comments", len(comments))
	return result, nil
}

// fetchContent pulls raw file content concurrently. A file whose fetch fails
// is skipped; the rest of the review proceeds.
func (t *Task) fetchContent(ctx context.Context, logger *slog.Logger, installationID int64, files []github.PullRequestFile) []analysis.SourceFile {
	results := make([]analysis.SourceFile, len(files))
	fetched := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(defaultFetchWorkers)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			content, err := t.client.FetchRawContent(gctx, installationID, f.ContentsURL)
			if err != nil {
				logger.Warn("failed to fetch file content, skipping", "file", f.Filename, "error", err)
				return nil
			}
			results[i] = analysis.SourceFile{Path: f.Filename, Content: content}
			fetched[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]analysis.SourceFile, 0, len(files))
	for i := range results {
		if fetched[i] {
			out = append(out, results[i])
		}
	}
	return out
}

// postComments posts all comments as a single review, retrying a bounded
// number of times with a fixed delay before giving up.
func (t *Task) postComments(ctx context.Context, in Input, owner, repo, headSHA string, comments []Comment) error {
	reviewComments := make([]github.ReviewComment, 0, len(comments))
	for _, c := range comments {
		reviewComments = append(reviewComments, github.ReviewComment{
			Path:     c.Path,
			Line:     c.Line,
			Side:     "RIGHT",
			Body:     c.Body,
			Position: c.Line,
		})
	}

	req := &github.ReviewRequest{
		CommitID: headSHA,
		Body:     fmt.Sprintf("CodexLens found issues in %d location(s).", len(comments)),
		Event:    "COMMENT",
		Comments: reviewComments,
	}

	var lastErr error
	for attempt := 0; attempt <= commentPostRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(t.postRetryDelay):
			case <-ctx.Done():
				return lastErr
			}
		}

		_, err := t.client.CreateReview(ctx, in.InstallationID, owner, repo, in.PRNumber, req)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func splitRepoName(full string) (owner, repo string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository name: %q", full)
	}
	return parts[0], parts[1], nil
}
