package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RuffRunner invokes the ruff linter on a single file.
//
// ruff exits 0 when no issues are found and 1 with a JSON array on stdout
// when issues exist; any other exit code is a crash.
type RuffRunner struct {
	Timeout time.Duration
}

// NewRuffRunner creates a ruff runner with the default timeout.
func NewRuffRunner() *RuffRunner {
	return &RuffRunner{Timeout: DefaultToolTimeout}
}

// Kind returns the analyzer identity for this runner.
func (r *RuffRunner) Kind() AnalyzerKind {
	return AnalyzerRuff
}

// Run analyzes one file and returns normalized findings.
func (r *RuffRunner) Run(ctx context.Context, path, content string) ([]Finding, error) {
	tmpPath, cleanup, err := writeAnalysisFile(path, content)
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerRuff, Path: path, Err: err}
	}
	defer cleanup()

	res, err := runTool(ctx, r.Timeout, "ruff", "check", tmpPath, "--output-format=json")
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerRuff, Path: path, Err: err}
	}

	if res.exitCode == 0 {
		return nil, nil
	}

	findings, err := parseRuffOutput(path, res.stdout)
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerRuff, Path: path, Err: err}
	}
	return findings, nil
}

type ruffIssue struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Location ruffLocation `json:"location"`
}

type ruffLocation struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// parseRuffOutput maps ruff's JSON issue array into findings. FilePath is
// the repository-relative path, not the temp file ruff actually saw.
func parseRuffOutput(path string, output []byte) ([]Finding, error) {
	var issues []ruffIssue
	if err := json.Unmarshal(output, &issues); err != nil {
		return nil, fmt.Errorf("parse ruff output: %w", err)
	}

	findings := make([]Finding, 0, len(issues))
	for _, issue := range issues {
		findings = append(findings, Finding{
			Tool:     AnalyzerRuff,
			Severity: ruffSeverity(issue.Code),
			RuleCode: issue.Code,
			Message:  issue.Message,
			FilePath: path,
			Line:     clampNonNegative(issue.Location.Row),
			Column:   clampNonNegative(issue.Location.Column),
		})
	}
	return findings, nil
}

// ruffSeverity maps ruff rule codes onto the canonical scale by prefix:
// E (pycodestyle errors) -> error, W (warnings) -> warning, everything
// else -> info.
func ruffSeverity(code string) Severity {
	switch {
	case strings.HasPrefix(code, "E"):
		return SeverityError
	case strings.HasPrefix(code, "W"):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
