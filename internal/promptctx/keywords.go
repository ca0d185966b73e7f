// Package promptctx implements PromptEnhancer, the YAML frontmatter
// context matcher, and the content deduplicator (spec §4.7). There is no
// direct teacher analog for keyword-driven mode detection; this file
// follows the doc-comment-heavy, pure-function style of goclaw's
// internal/sessions/key.go and the YAML-parsing conventions of
// internal/config/config.go.
package promptctx

import (
	"regexp"
	"strings"
)

// Mode is one of the three activation-keyword families.
type Mode string

const (
	ModeUltrawork Mode = "ULTRAWORK"
	ModeSearch    Mode = "SEARCH"
	ModeAnalysis  Mode = "ANALYSIS"
)

var modeInstructions = map[Mode]string{
	ModeUltrawork: "ULTRAWORK MODE ACTIVATED: prioritize thoroughness and exhaustive verification over speed; " +
		"decompose the task, check edge cases, and do not stop at the first plausible answer.",
	ModeSearch: "SEARCH MODE ACTIVATED: prioritize locating relevant existing code/docs before writing anything " +
		"new; prefer Grep/Glob/Read over assumptions.",
	ModeAnalysis: "ANALYSIS MODE ACTIVATED: prioritize explaining and diagnosing over modifying; do not make " +
		"edits unless explicitly asked to.",
}

// keywordPattern groups one family's multilingual surface forms, including
// bracketed variants like "[ultrawork]" or "[search-mode]".
type keywordPattern struct {
	mode  Mode
	regex *regexp.Regexp
}

var keywordPatterns = buildKeywordPatterns()

func buildKeywordPatterns() []keywordPattern {
	// Each list entry is a bare alternative; an optional surrounding
	// bracket pair is added mechanically below for every language. No
	// word-boundary anchoring is applied.
	families := map[Mode][]string{
		ModeUltrawork: {
			`ultrawork`, `ultra-work`, `ultra work`,
			`울트라워크`, `전력질주`,
			`ウルトラワーク`, `全力モード`,
			`超负荷工作`, `全力模式`,
			`siêu tải`, `chế độ nỗ lực tối đa`,
		},
		ModeSearch: {
			`search[- ]?mode`, `deep search`,
			`검색모드`, `딥서치`,
			`検索モード`, `ディープサーチ`,
			`搜索模式`, `深度搜索`,
			`chế độ tìm kiếm`, `tìm kiếm sâu`,
		},
		ModeAnalysis: {
			`analysis[- ]?mode`, `deep analysis`,
			`분석모드`, `심층분석`,
			`分析モード`, `深層分析`,
			`分析模式`, `深度分析`,
			`chế độ phân tích`, `phân tích sâu`,
		},
	}

	var patterns []keywordPattern
	for _, mode := range []Mode{ModeUltrawork, ModeSearch, ModeAnalysis} {
		for _, alt := range families[mode] {
			bare := regexp.MustCompile(`(?i)\[?` + alt + `\]?`)
			patterns = append(patterns, keywordPattern{mode: mode, regex: bare})
		}
	}
	return patterns
}

var (
	tripleFence   = regexp.MustCompile("(?s)```.*?```")
	inlineBacktic = regexp.MustCompile("`[^`]*`")
)

// stripCodeFences removes triple-backtick blocks and inline backtick spans
// before keyword matching, so code containing the word "search" does not
// spuriously activate a mode.
func stripCodeFences(text string) string {
	text = tripleFence.ReplaceAllString(text, "")
	text = inlineBacktic.ReplaceAllString(text, "")
	return text
}

// DetectKeywords scans text for activation keywords (after stripping code
// fences) and returns the corresponding instruction blocks joined by "---".
// Matching the same mode more than once only contributes its block once.
// Empty input, or input where every occurrence lives inside a fence,
// returns "".
func DetectKeywords(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	stripped := stripCodeFences(text)
	if strings.TrimSpace(stripped) == "" {
		return ""
	}

	seen := make(map[Mode]bool)
	var order []Mode
	for _, kp := range keywordPatterns {
		if kp.regex.MatchString(stripped) && !seen[kp.mode] {
			seen[kp.mode] = true
			order = append(order, kp.mode)
		}
	}
	if len(order) == 0 {
		return ""
	}

	var blocks []string
	for _, m := range order {
		blocks = append(blocks, modeInstructions[m])
	}
	return strings.Join(blocks, "\n---\n")
}
