package analysis

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency caps how many (file, tool) invocations run at once to
// avoid exhausting subprocess and network resources.
const DefaultConcurrency = 4

// Runner is one external analyzer applied to one file. Run returns the
// normalized findings for the file, or a ToolError when the analyzer
// crashed, timed out, or produced unparseable output.
type Runner interface {
	Kind() AnalyzerKind
	Run(ctx context.Context, path, content string) ([]Finding, error)
}

// SourceFile is one changed file eligible for analysis.
type SourceFile struct {
	Path    string
	Content string
}

// Orchestrator runs every registered Runner against every supported file.
// A failing runner is isolated: it contributes zero findings and never
// aborts analysis of the same file by other tools.
type Orchestrator struct {
	runners []Runner
	limit   int64
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given runners.
func NewOrchestrator(runners []Runner, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runners: runners,
		limit:   DefaultConcurrency,
		logger:  logger,
	}
}

// SetConcurrency overrides the bound on simultaneous tool invocations.
func (o *Orchestrator) SetConcurrency(n int64) {
	if n > 0 {
		o.limit = n
	}
}

// Analyze returns the union of findings from all tools across all supported
// files. Files outside the supported languages are skipped without error.
// The result order is not guaranteed; ordering is the aggregator's job.
func (o *Orchestrator) Analyze(ctx context.Context, files []SourceFile) []Finding {
	var mu sync.Mutex
	var all []Finding

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(o.limit)

	for _, file := range files {
		if !IsSupported(file.Path) {
			o.logger.Info("skipping unsupported file", "file", file.Path)
			continue
		}

		for _, runner := range o.runners {
			file, runner := file, runner
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)

				findings, err := runner.Run(gctx, file.Path, file.Content)
				if err != nil {
					// Tool failures are absorbed: log and move on.
					o.logger.Warn("analyzer failed",
						"tool", runner.Kind(),
						"file", file.Path,
						"error", err,
					)
					return nil
				}

				if len(findings) > 0 {
					mu.Lock()
					all = append(all, findings...)
					mu.Unlock()
				}
				return nil
			})
		}
	}

	_ = g.Wait()

	o.logger.Info("analysis finished", "files", len(files), "findings", len(all))
	return all
}
