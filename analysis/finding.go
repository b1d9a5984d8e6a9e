// Package analysis runs external static analyzers against changed files and
// normalizes their heterogeneous output into canonical findings.
package analysis

import "strings"

// Severity is the canonical three-level severity scale every analyzer's
// vocabulary is mapped onto.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rank returns an integer rank for ordering (error > warning > info).
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// AnalyzerKind identifies one of the registered external analyzers.
type AnalyzerKind string

const (
	AnalyzerRuff    AnalyzerKind = "ruff"
	AnalyzerBandit  AnalyzerKind = "bandit"
	AnalyzerSemgrep AnalyzerKind = "semgrep"
)

func (k AnalyzerKind) String() string {
	return string(k)
}

// Finding is one normalized static-analysis result. It is immutable once
// created; line and column are never negative.
type Finding struct {
	Tool     AnalyzerKind `json:"tool"`
	Severity Severity     `json:"severity"`
	RuleCode string       `json:"rule_code"`
	Message  string       `json:"message"`
	FilePath string       `json:"file_path"`
	Line     int          `json:"line"`
	Column   int          `json:"column"`
}

// clampNonNegative guards against analyzers reporting negative positions.
func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// IsSupported reports whether a file can be analyzed by the registered
// tools. Unsupported files are skipped without error.
func IsSupported(path string) bool {
	return strings.HasSuffix(path, ".py")
}
