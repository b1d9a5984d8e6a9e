// Package main provides a local CLI for running CodexLens analysis against
// files in a checkout, without a GitHub App installation.
package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"github.com/codexlens/codexlens/analysis"
	"github.com/codexlens/codexlens/review"
	"github.com/codexlens/codexlens/storage"
	"github.com/codexlens/codexlens/storage/sqlite"
)

var (
	flagChanged bool
	flagRepoDir string
	flagDBPath  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:          "codexlens",
		Short:        "Run static-analysis reviews locally",
		SilenceUsage: true,
	}

	reviewCmd := &cobra.Command{
		Use:   "review [files...]",
		Short: "Analyze files and print the review comments that would be posted",
		RunE:  runReview,
	}
	reviewCmd.Flags().BoolVar(&flagChanged, "changed", false, "analyze files changed in the git worktree instead of explicit paths")
	reviewCmd.Flags().StringVar(&flagRepoDir, "repo", ".", "repository directory for --changed")
	reviewCmd.Flags().StringVar(&flagDBPath, "db", "", "optionally persist findings to this sqlite database")
	reviewCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	root.AddCommand(reviewCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReview(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	paths := args
	if flagChanged {
		changed, err := changedFiles(flagRepoDir)
		if err != nil {
			return err
		}
		paths = changed
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files to analyze (pass paths or --changed)")
	}

	files := make([]analysis.SourceFile, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "file", path, "error", err)
			continue
		}
		files = append(files, analysis.SourceFile{Path: path, Content: string(content)})
	}

	runners := []analysis.Runner{
		analysis.NewRuffRunner(),
		analysis.NewBanditRunner(),
		analysis.NewSemgrepRunner(),
	}
	orchestrator := analysis.NewOrchestrator(runners, logger)

	findings := orchestrator.Analyze(cmd.Context(), files)

	if flagDBPath != "" {
		if err := persistFindings(flagDBPath, flagRepoDir, findings); err != nil {
			return err
		}
	}

	comments := review.NewAggregator().Comments(findings)
	if len(comments) == 0 {
		fmt.Println("No issues found.")
		return nil
	}

	for _, c := range comments {
		fmt.Printf("== %s:%d ==\n%s\n\n", c.Path, c.Line, c.Body)
	}
	fmt.Printf("%d issue(s) in %d location(s)\n", len(findings), len(comments))

	return nil
}

// changedFiles lists added, modified, and untracked files in the worktree.
func changedFiles(dir string) ([]string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}

	var files []string
	for path, s := range status {
		switch {
		case s.Worktree == git.Modified || s.Worktree == git.Added || s.Worktree == git.Untracked:
			files = append(files, path)
		case s.Staging == git.Modified || s.Staging == git.Added:
			files = append(files, path)
		}
	}
	sort.Strings(files)

	return files, nil
}

// persistFindings stores the run's findings in a local sqlite database,
// keyed by a synthetic id derived from the repository directory.
func persistFindings(dbPath, repoDir string, findings []analysis.Finding) error {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	id := localRunID(repoDir)
	ctx := context.Background()

	record := &storage.PullRequestRecord{
		GithubID: id,
		RepoName: repoDir,
		State:    "local",
		Action:   "local-review",
	}
	if err := db.UpsertPullRequest(ctx, record); err != nil {
		return err
	}

	records := make([]*storage.FindingRecord, 0, len(findings))
	for _, f := range findings {
		records = append(records, &storage.FindingRecord{
			PRGithubID: id,
			Tool:       f.Tool.String(),
			RuleCode:   f.RuleCode,
			Severity:   f.Severity.String(),
			FilePath:   f.FilePath,
			Line:       f.Line,
			Column:     f.Column,
			Message:    f.Message,
		})
	}

	return db.ReplaceFindings(ctx, id, records)
}

func localRunID(repoDir string) int64 {
	h := fnv.New64a()
	h.Write([]byte(repoDir))
	// Negative ids keep local runs out of the GitHub id space.
	return -int64(h.Sum64() >> 1)
}
