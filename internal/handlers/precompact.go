// Package handlers implements PreCompactHandler and PostToolHandler
// (spec §4.9): best-effort memory hooks that run around context
// compaction and edit-class tool use. Both are grounded on goclaw's
// internal/agent pre-compact/post-tool hook pair, generalized onto the
// Memory API contract in internal/memoryapi.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mama-run/mama/internal/memoryapi"
)

const maxDecisionsToDetect = 5

// decisionPattern pairs a detector regex with nothing else; the matched
// line itself is the candidate decision text.
var decisionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdecided:\s*(.+)`),
	regexp.MustCompile(`(?i)\bdecision:\s*(.+)`),
	regexp.MustCompile(`(?i)\bchose:\s*(.+)`),
	regexp.MustCompile(`(?i)\bwe'll use:\s*(.+)`),
	regexp.MustCompile(`(?i)\bgoing with:\s*(.+)`),
	regexp.MustCompile(`(?i)\bapproach:\s*(.+)`),
	regexp.MustCompile(`(?i)\barchitecture:\s*(.+)`),
	regexp.MustCompile(`(?i)\bstrategy:\s*(.+)`),
	regexp.MustCompile(`선택:\s*(.+)`),
	regexp.MustCompile(`결정:\s*(.+)`),
	regexp.MustCompile(`설계:\s*(.+)`),
	regexp.MustCompile(`방식:\s*(.+)`),
}

// PreCompactResult is process's return value.
type PreCompactResult struct {
	UnsavedDecisions []string
	CompactionPrompt string
	WarningMessage   string
}

// PreCompactHandler detects unsaved decisions in the turn history before
// compaction drops it, and assembles the 7-section compaction prompt.
type PreCompactHandler struct {
	memory memoryapi.Client
	logger *slog.Logger
}

// NewPreCompactHandler builds a handler against the shared Memory API
// client; memory may be nil, in which case every lookup is treated as
// "no saved results" per spec.
func NewPreCompactHandler(memory memoryapi.Client, logger *slog.Logger) *PreCompactHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreCompactHandler{memory: memory, logger: logger}
}

func detectDecisionCandidates(historyLines []string) []string {
	seen := map[string]bool{}
	var candidates []string
	for _, line := range historyLines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 10 {
			continue
		}
		for _, p := range decisionPatterns {
			m := p.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			text := strings.TrimSpace(m[1])
			if text == "" || seen[strings.ToLower(text)] {
				continue
			}
			seen[strings.ToLower(text)] = true
			candidates = append(candidates, text)
			break
		}
	}
	if len(candidates) > maxDecisionsToDetect {
		candidates = candidates[len(candidates)-maxDecisionsToDetect:]
	}
	return candidates
}

// alreadySaved reports whether the Memory API already has a decision
// whose topic or text case-insensitively contains candidate, mirroring
// spec §4.9's `mama_search({type:'decision', limit:20})` — the no-query
// list path, not the query/suggest path. Any backing error is treated
// as "assume nothing saved" (spec §4.9).
func (h *PreCompactHandler) alreadySaved(ctx context.Context, candidate string) bool {
	if h.memory == nil {
		return false
	}
	decisions, err := h.memory.ListDecisions(ctx, 20)
	if err != nil {
		h.logger.Warn("precompact: memory search failed, assuming nothing saved", "error", err)
		return false
	}
	lower := strings.ToLower(candidate)
	for _, d := range decisions {
		if strings.Contains(strings.ToLower(d.Topic), lower) || strings.Contains(strings.ToLower(d.Decision), lower) {
			return true
		}
	}
	return false
}

func buildCompactionPrompt(lineCount int, unsaved []string) string {
	var b strings.Builder
	sections := []string{
		"User Requests", "Final Goal", "Work Completed", "Remaining Tasks",
		"Active Working Context", "Explicit Constraints", "Agent Verification State",
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n", s)
	}
	if len(unsaved) > 0 {
		b.WriteString("## Unsaved Decisions\n\n")
		for _, d := range unsaved {
			fmt.Fprintf(&b, "- %s\n", d)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Conversation context: ~%d lines before compaction\n", lineCount)
	return b.String()
}

// Process implements PreCompactHandler.process: it never returns an
// error, matching the "never throw" contract in spec §4.9.
func (h *PreCompactHandler) Process(ctx context.Context, historyLines []string) PreCompactResult {
	candidates := detectDecisionCandidates(historyLines)

	var unsaved []string
	for _, c := range candidates {
		if !h.alreadySaved(ctx, c) {
			unsaved = append(unsaved, c)
		}
	}

	result := PreCompactResult{
		UnsavedDecisions: unsaved,
		CompactionPrompt: buildCompactionPrompt(len(historyLines), unsaved),
	}
	if len(unsaved) > 0 {
		result.WarningMessage = fmt.Sprintf("%d decision(s) were made this turn but not saved to memory.", len(unsaved))
	}
	return result
}
