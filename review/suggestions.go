package review

import "github.com/codexlens/codexlens/analysis"

// suggestions maps analyzer rule codes to remediation hints shown in review
// comments. Codes without an entry fall back to a per-tool generic hint.
var suggestions = map[analysis.AnalyzerKind]map[string]string{
	analysis.AnalyzerRuff: {
		"F401": "Remove unused import or use it in your code.",
		"F841": "Remove the unused variable or use it in your code.",
		"E501": "Break the long line into multiple lines or use line continuation.",
		"E302": "Add two blank lines before this class/function definition.",
		"E303": "Remove extra blank lines.",
	},
	analysis.AnalyzerBandit: {
		"B101": "Use assert statements only for debugging, not for production logic.",
		"B102": "Avoid using exec() as it can execute arbitrary code.",
		"B103": "Avoid using set_badkey() as it can be a security risk.",
		"B104": "Avoid using hardcoded bind addresses.",
		"B105": "Use environment variables or secure configuration for passwords.",
		"B106": "Avoid using hardcoded passwords in source code.",
		"B107": "Avoid using hardcoded passwords in source code.",
	},
}

// SuggestionFor returns the remediation hint for a finding. Every finding
// gets a suggestion: unmapped codes receive a generic hint for their tool.
func SuggestionFor(f analysis.Finding) string {
	if byCode, ok := suggestions[f.Tool]; ok {
		if s, ok := byCode[f.RuleCode]; ok {
			return s
		}
	}

	switch f.Tool {
	case analysis.AnalyzerRuff:
		return "Consider following Python style guidelines (PEP 8)."
	case analysis.AnalyzerBandit:
		return "Review this code for potential security vulnerabilities."
	default:
		return "Review this code for potential issues."
	}
}
