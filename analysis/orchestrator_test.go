package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	kind     AnalyzerKind
	findings []Finding
	err      error

	mu    sync.Mutex
	paths []string
}

func (s *stubRunner) Kind() AnalyzerKind { return s.kind }

func (s *stubRunner) Run(ctx context.Context, path, content string) ([]Finding, error) {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	out := make([]Finding, len(s.findings))
	for i, f := range s.findings {
		f.FilePath = path
		out[i] = f
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrchestratorCollectsAllRunners(t *testing.T) {
	ruff := &stubRunner{kind: AnalyzerRuff, findings: []Finding{
		{Tool: AnalyzerRuff, Severity: SeverityError, RuleCode: "E501", Line: 1},
	}}
	bandit := &stubRunner{kind: AnalyzerBandit, findings: []Finding{
		{Tool: AnalyzerBandit, Severity: SeverityWarning, RuleCode: "B105", Line: 2},
	}}

	o := NewOrchestrator([]Runner{ruff, bandit}, testLogger())
	findings := o.Analyze(context.Background(), []SourceFile{
		{Path: "a.py", Content: "x = 1"},
		{Path: "b.py", Content: "y = 2"},
	})

	// 2 files x 2 runners, one finding each
	assert.Len(t, findings, 4)
	assert.Len(t, ruff.paths, 2)
	assert.Len(t, bandit.paths, 2)
}

func TestOrchestratorIsolatesFailingRunner(t *testing.T) {
	crashing := &stubRunner{kind: AnalyzerSemgrep, err: &ToolError{
		Tool: AnalyzerSemgrep,
		Path: "a.py",
		Err:  errors.New("timed out after 30s"),
	}}
	healthy := &stubRunner{kind: AnalyzerRuff, findings: []Finding{
		{Tool: AnalyzerRuff, Severity: SeverityInfo, RuleCode: "F401", Line: 1},
	}}

	o := NewOrchestrator([]Runner{crashing, healthy}, testLogger())
	findings := o.Analyze(context.Background(), []SourceFile{{Path: "a.py", Content: "import os"}})

	// The crash contributes zero findings and does not abort the other tool.
	require.Len(t, findings, 1)
	assert.Equal(t, AnalyzerRuff, findings[0].Tool)
}

func TestOrchestratorSkipsUnsupportedFiles(t *testing.T) {
	ruff := &stubRunner{kind: AnalyzerRuff}

	o := NewOrchestrator([]Runner{ruff}, testLogger())
	findings := o.Analyze(context.Background(), []SourceFile{
		{Path: "main.go", Content: "package main"},
		{Path: "README.md", Content: "# readme"},
		{Path: "app.py", Content: "x = 1"},
	})

	assert.Empty(t, findings)
	assert.Equal(t, []string{"app.py"}, ruff.paths)
}

func TestOrchestratorNoFiles(t *testing.T) {
	o := NewOrchestrator([]Runner{&stubRunner{kind: AnalyzerRuff}}, testLogger())
	findings := o.Analyze(context.Background(), nil)
	assert.Empty(t, findings)
}

type countingRunner struct {
	kind    AnalyzerKind
	active  atomic.Int64
	maxSeen atomic.Int64
}

func (c *countingRunner) Kind() AnalyzerKind { return c.kind }

func (c *countingRunner) Run(ctx context.Context, path, content string) ([]Finding, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		max := c.maxSeen.Load()
		if n <= max || c.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	return nil, nil
}

func TestOrchestratorBoundsConcurrency(t *testing.T) {
	runner := &countingRunner{kind: AnalyzerRuff}

	o := NewOrchestrator([]Runner{runner}, testLogger())
	o.SetConcurrency(2)

	files := make([]SourceFile, 16)
	for i := range files {
		files[i] = SourceFile{Path: "f.py", Content: ""}
	}
	o.Analyze(context.Background(), files)

	assert.LessOrEqual(t, runner.maxSeen.Load(), int64(2))
}
