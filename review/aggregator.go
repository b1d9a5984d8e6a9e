// Package review turns raw analyzer findings into pull request review
// comments and drives the review pipeline end to end.
package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codexlens/codexlens/analysis"
)

// CommentKey identifies the code location a group of findings share.
type CommentKey struct {
	Path string
	Line int
}

// Comment is one synthesized review comment covering every finding at a
// single location.
type Comment struct {
	Path string
	Line int
	Body string
}

// Aggregator groups findings by location and synthesizes comment bodies. It
// is pure: the same findings produce byte-identical comments regardless of
// input order.
type Aggregator struct{}

// NewAggregator creates an aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Group buckets findings by (path, line) and orders each bucket by severity
// descending, then tool name, then rule code. Locations with no findings are
// absent from the result.
func (a *Aggregator) Group(findings []analysis.Finding) map[CommentKey][]analysis.Finding {
	groups := make(map[CommentKey][]analysis.Finding)
	for _, f := range findings {
		key := CommentKey{Path: f.FilePath, Line: f.Line}
		groups[key] = append(groups[key], f)
	}

	for key := range groups {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Severity.Rank() != group[j].Severity.Rank() {
				return group[i].Severity.Rank() > group[j].Severity.Rank()
			}
			if group[i].Tool != group[j].Tool {
				return group[i].Tool < group[j].Tool
			}
			return group[i].RuleCode < group[j].RuleCode
		})
	}

	return groups
}

// Comments groups the findings and synthesizes one comment per location,
// ordered by path then line for a stable posting order.
func (a *Aggregator) Comments(findings []analysis.Finding) []Comment {
	groups := a.Group(findings)

	comments := make([]Comment, 0, len(groups))
	for key, group := range groups {
		comments = append(comments, Comment{
			Path: key.Path,
			Line: key.Line,
			Body: a.SynthesizeComment(group),
		})
	}

	sort.Slice(comments, func(i, j int) bool {
		if comments[i].Path != comments[j].Path {
			return comments[i].Path < comments[j].Path
		}
		return comments[i].Line < comments[j].Line
	})

	return comments
}

// SynthesizeComment renders the markdown body for one ordered group of
// findings at a single location.
func (a *Aggregator) SynthesizeComment(group []analysis.Finding) string {
	var b strings.Builder

	b.WriteString("🔍 **CodexLens Review**\n\n")
	fmt.Fprintf(&b, "Found **%d issue(s)** on this line:\n", len(group))

	counts := make(map[analysis.Severity]int)
	for _, f := range group {
		counts[f.Severity]++
	}
	for _, sev := range []analysis.Severity{analysis.SeverityError, analysis.SeverityWarning, analysis.SeverityInfo} {
		if counts[sev] > 0 {
			fmt.Fprintf(&b, "- %s **%d %s(s)**\n", severityEmoji(sev), counts[sev], sev)
		}
	}
	b.WriteString("\n")

	for i, f := range group {
		fmt.Fprintf(&b, "### %d. %s %s - %s\n", i+1, severityEmoji(f.Severity), strings.ToUpper(f.Tool.String()), strings.ToUpper(f.Severity.String()))
		fmt.Fprintf(&b, "**Code:** `%s`\n", f.RuleCode)
		fmt.Fprintf(&b, "**Message:** %s\n", f.Message)
		fmt.Fprintf(&b, "**💡 Suggestion:** %s\n", SuggestionFor(f))
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	b.WriteString("*Powered by CodexLens Code Review*")

	return b.String()
}

func severityEmoji(s analysis.Severity) string {
	switch s {
	case analysis.SeverityError:
		return "🔴"
	case analysis.SeverityWarning:
		return "🟡"
	default:
		return "🔵"
	}
}
