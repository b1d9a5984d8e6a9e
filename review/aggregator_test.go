package review

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlens/codexlens/analysis"
)

func TestGroupByLocation(t *testing.T) {
	findings := []analysis.Finding{
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityError, RuleCode: "E501", FilePath: "a.py", Line: 10},
		{Tool: analysis.AnalyzerBandit, Severity: analysis.SeverityWarning, RuleCode: "B105", FilePath: "a.py", Line: 10},
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityInfo, RuleCode: "F401", FilePath: "a.py", Line: 1},
		{Tool: analysis.AnalyzerSemgrep, Severity: analysis.SeverityError, RuleCode: "eval", FilePath: "b.py", Line: 10},
	}

	groups := NewAggregator().Group(findings)
	require.Len(t, groups, 3)
	assert.Len(t, groups[CommentKey{Path: "a.py", Line: 10}], 2)
	assert.Len(t, groups[CommentKey{Path: "a.py", Line: 1}], 1)
	assert.Len(t, groups[CommentKey{Path: "b.py", Line: 10}], 1)
}

func TestGroupOrdersWithinLocation(t *testing.T) {
	// Same location: severity descending, then tool name, then rule code.
	findings := []analysis.Finding{
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityInfo, RuleCode: "F401", FilePath: "a.py", Line: 10},
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityError, RuleCode: "E501", FilePath: "a.py", Line: 10},
		{Tool: analysis.AnalyzerBandit, Severity: analysis.SeverityError, RuleCode: "B105", FilePath: "a.py", Line: 10},
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityError, RuleCode: "E302", FilePath: "a.py", Line: 10},
	}

	group := NewAggregator().Group(findings)[CommentKey{Path: "a.py", Line: 10}]
	require.Len(t, group, 4)

	// Errors first; among errors bandit sorts before ruff, then rule code.
	assert.Equal(t, "B105", group[0].RuleCode)
	assert.Equal(t, "E302", group[1].RuleCode)
	assert.Equal(t, "E501", group[2].RuleCode)
	assert.Equal(t, "F401", group[3].RuleCode)
}

func TestCommentsDeterministicUnderShuffle(t *testing.T) {
	findings := []analysis.Finding{
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityError, RuleCode: "E501", Message: "too long", FilePath: "a.py", Line: 10},
		{Tool: analysis.AnalyzerBandit, Severity: analysis.SeverityError, RuleCode: "B105", Message: "password", FilePath: "a.py", Line: 10},
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityInfo, RuleCode: "F401", Message: "unused", FilePath: "a.py", Line: 1},
		{Tool: analysis.AnalyzerSemgrep, Severity: analysis.SeverityWarning, RuleCode: "audit.eval", Message: "eval", FilePath: "b.py", Line: 3},
		{Tool: analysis.AnalyzerBandit, Severity: analysis.SeverityInfo, RuleCode: "B101", Message: "assert", FilePath: "b.py", Line: 3},
	}

	agg := NewAggregator()
	baseline := agg.Comments(findings)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]analysis.Finding, len(findings))
		copy(shuffled, findings)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		assert.Equal(t, baseline, agg.Comments(shuffled), "comments must not depend on input order")
	}
}

func TestCommentsSortedByPathThenLine(t *testing.T) {
	findings := []analysis.Finding{
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityInfo, RuleCode: "F401", FilePath: "z.py", Line: 1},
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityInfo, RuleCode: "F401", FilePath: "a.py", Line: 20},
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityInfo, RuleCode: "F401", FilePath: "a.py", Line: 5},
	}

	comments := NewAggregator().Comments(findings)
	require.Len(t, comments, 3)
	assert.Equal(t, CommentKey{Path: "a.py", Line: 5}, CommentKey{Path: comments[0].Path, Line: comments[0].Line})
	assert.Equal(t, CommentKey{Path: "a.py", Line: 20}, CommentKey{Path: comments[1].Path, Line: comments[1].Line})
	assert.Equal(t, CommentKey{Path: "z.py", Line: 1}, CommentKey{Path: comments[2].Path, Line: comments[2].Line})
}

func TestCommentsEmptyInput(t *testing.T) {
	assert.Empty(t, NewAggregator().Comments(nil))
}

func TestSynthesizeCommentBody(t *testing.T) {
	group := []analysis.Finding{
		{Tool: analysis.AnalyzerBandit, Severity: analysis.SeverityError, RuleCode: "B105", Message: "Possible hardcoded password", FilePath: "a.py", Line: 10},
		{Tool: analysis.AnalyzerRuff, Severity: analysis.SeverityInfo, RuleCode: "F401", Message: "'os' imported but unused", FilePath: "a.py", Line: 10},
	}

	body := NewAggregator().SynthesizeComment(group)

	assert.Contains(t, body, "Found **2 issue(s)** on this line:")
	assert.Contains(t, body, "**1 error(s)**")
	assert.Contains(t, body, "**1 info(s)**")
	assert.Contains(t, body, "### 1.")
	assert.Contains(t, body, "BANDIT - ERROR")
	assert.Contains(t, body, "### 2.")
	assert.Contains(t, body, "RUFF - INFO")
	assert.Contains(t, body, "`B105`")
	assert.Contains(t, body, "Use environment variables or secure configuration for passwords.")
	assert.Contains(t, body, "Remove unused import or use it in your code.")
	assert.True(t, strings.HasSuffix(body, "*Powered by CodexLens Code Review*"))

	// Error count line appears before the info count line.
	assert.Less(t, strings.Index(body, "error(s)"), strings.Index(body, "info(s)"))
}

func TestSuggestionFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		finding analysis.Finding
		want    string
	}{
		{
			"mapped ruff code",
			analysis.Finding{Tool: analysis.AnalyzerRuff, RuleCode: "E501"},
			"Break the long line into multiple lines or use line continuation.",
		},
		{
			"unmapped ruff code",
			analysis.Finding{Tool: analysis.AnalyzerRuff, RuleCode: "E999"},
			"Consider following Python style guidelines (PEP 8).",
		},
		{
			"unmapped bandit code",
			analysis.Finding{Tool: analysis.AnalyzerBandit, RuleCode: "B999"},
			"Review this code for potential security vulnerabilities.",
		},
		{
			"semgrep always generic",
			analysis.Finding{Tool: analysis.AnalyzerSemgrep, RuleCode: "audit.eval"},
			"Review this code for potential issues.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestionFor(tt.finding))
		})
	}
}
