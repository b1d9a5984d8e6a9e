package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BanditRunner invokes the bandit security scanner on a single file.
//
// bandit reports findings in its JSON payload regardless of exit code, so
// stdout is parsed whenever the process ran to completion.
type BanditRunner struct {
	Timeout time.Duration
}

// NewBanditRunner creates a bandit runner with the default timeout.
func NewBanditRunner() *BanditRunner {
	return &BanditRunner{Timeout: DefaultToolTimeout}
}

// Kind returns the analyzer identity for this runner.
func (r *BanditRunner) Kind() AnalyzerKind {
	return AnalyzerBandit
}

// Run analyzes one file and returns normalized findings.
func (r *BanditRunner) Run(ctx context.Context, path, content string) ([]Finding, error) {
	tmpPath, cleanup, err := writeAnalysisFile(path, content)
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerBandit, Path: path, Err: err}
	}
	defer cleanup()

	res, err := runTool(ctx, r.Timeout, "bandit", "-f", "json", "-r", tmpPath)
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerBandit, Path: path, Err: err}
	}

	findings, err := parseBanditOutput(path, res.stdout)
	if err != nil {
		return nil, &ToolError{Tool: AnalyzerBandit, Path: path, Err: err}
	}
	return findings, nil
}

type banditReport struct {
	Results []banditIssue `json:"results"`
}

type banditIssue struct {
	TestID        string `json:"test_id"`
	IssueSeverity string `json:"issue_severity"`
	IssueText     string `json:"issue_text"`
	LineNumber    int    `json:"line_number"`
}

// parseBanditOutput maps bandit's JSON report into findings. bandit does not
// report column information, so column is always 0.
func parseBanditOutput(path string, output []byte) ([]Finding, error) {
	var report banditReport
	if err := json.Unmarshal(output, &report); err != nil {
		return nil, fmt.Errorf("parse bandit output: %w", err)
	}

	findings := make([]Finding, 0, len(report.Results))
	for _, issue := range report.Results {
		findings = append(findings, Finding{
			Tool:     AnalyzerBandit,
			Severity: banditSeverity(issue.IssueSeverity),
			RuleCode: issue.TestID,
			Message:  issue.IssueText,
			FilePath: path,
			Line:     clampNonNegative(issue.LineNumber),
			Column:   0,
		})
	}
	return findings, nil
}

// banditSeverity maps bandit's LOW/MEDIUM/HIGH vocabulary onto the canonical
// scale. Unknown values map to info, never dropped.
func banditSeverity(severity string) Severity {
	switch strings.ToUpper(severity) {
	case "HIGH":
		return SeverityError
	case "MEDIUM":
		return SeverityWarning
	case "LOW":
		return SeverityInfo
	default:
		return SeverityInfo
	}
}
