package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SemgrepRunner invokes the semgrep pattern matcher on a single file using
// its auto config. Like bandit, semgrep reports findings in its JSON payload
// regardless of exit code.
type SemgrepRunner struct {
	Timeout time.Duration
}

// NewSemgrepRunner creates a semgrep runner with the default timeout.
func NewSemgrepRunner() *SemgrepRunner {
	return &SemgrepRunner{Timeout: DefaultToolTimeout}
}

// Kind returns the analyzer identity for this runner.
func (r *SemgrepRunner) Kind() AnalyzerKind {
	return AnalyzerSemgrep
}

// Run analyzes one file and returns normalized findings.
func (r *SemgrepRunner) Run(ctx context.Context, path, content string) ([]Finding, error) {
	tmpPath, cleanup, err := writeAnalysisFile(path, content)
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerSemgrep, Path: path, Err: err}
	}
	defer cleanup()

	res, err := runTool(ctx, r.Timeout, "semgrep", "--json", "--config=auto", tmpPath)
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerSemgrep, Path: path, Err: err}
	}

	findings, err := parseSemgrepOutput(path, res.stdout)
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerSemgrep, Path: path, Err: err}
	}
	return findings, nil
}

type semgrepReport struct {
	Results []semgrepResult `json:"results"`
}

type semgrepResult struct {
	CheckID string          `json:"check_id"`
	Start   semgrepPosition `json:"start"`
	Extra   semgrepExtra    `json:"extra"`
}

type semgrepPosition struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type semgrepExtra struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// parseSemgrepOutput maps semgrep's JSON report into findings.
func parseSemgrepOutput(path string, output []byte) ([]Finding, error) {
	var report semgrepReport
	if err := json.Unmarshal(output, &report); err != nil {
		return nil, fmt.Errorf("parse semgrep output: %w", err)
	}

	findings := make([]Finding, 0, len(report.Results))
	for _, result := range report.Results {
		findings = append(findings, Finding{
			Tool:     AnalyzerSemgrep,
			Severity: semgrepSeverity(result.Extra.Severity),
			RuleCode: result.CheckID,
			Message:  result.Extra.Message,
			FilePath: path,
			Line:     clampNonNegative(result.Start.Line),
			Column:   clampNonNegative(result.Start.Col),
		})
	}
	return findings, nil
}

// semgrepSeverity maps semgrep's ERROR/WARNING/INFO vocabulary onto the
// canonical scale. Unknown values map to info, never dropped.
func semgrepSeverity(severity string) Severity {
	switch strings.ToUpper(severity) {
	case "ERROR":
		return SeverityError
	case "WARNING":
		return SeverityWarning
	case "INFO":
		return SeverityInfo
	default:
		return SeverityInfo
	}
}
