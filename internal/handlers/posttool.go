package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/mama-run/mama/internal/memoryapi"
)

const (
	contractSaveLimit  = 20
	postToolQueueDepth = 64
)

var editClassTools = map[string]bool{
	"write_file": true, "apply_patch": true, "Edit": true, "Write": true, "test": true, "build": true,
}

var lowPriorityPath = regexp.MustCompile(
	`(?i)(/docs?/|\.test\.|\.spec\.|/tests/|/examples?/|node_modules/|\.env|\.md$|\.json$|\.yaml$|\.yml$)`,
)

func isEditClassTool(tool string) bool { return editClassTools[tool] }

// IsEditClassTool reports whether tool is one of the edit-class tools
// AgentLoop should route through ProcessInBackground after dispatch.
func IsEditClassTool(tool string) bool { return isEditClassTool(tool) }

func isLowPriorityPath(path string) bool { return lowPriorityPath.MatchString(path) }

// contract is an extracted {topic, decision, reasoning} triple, mirroring
// the mama_save shape so it can be submitted unchanged.
type contract struct {
	topic      string
	decision   string
	reasoning  string
	confidence float64
}

var (
	restEndpoint = regexp.MustCompile(`\bapp\.(get|post|put|delete|patch)\s*\(\s*['"]([^'"]+)['"]`)
	routerEndpoint = regexp.MustCompile(`\brouter\.(get|post|put|delete|patch)\s*\(\s*['"]([^'"]+)['"]`)
	springMapping = regexp.MustCompile(`@(Get|Post|Put|Delete|Patch|Request)Mapping\s*\(\s*["']?([^"')]*)["']?\s*\)`)
	jsFunction    = regexp.MustCompile(`\b(?:async\s+)?function\s+(\w+)\s*\(([^)]*)\)`)
	jsArrow       = regexp.MustCompile(`\b(?:export\s+)?(?:const|let)\s+(\w+)\s*=\s*(?:async\s*)?\(([^)]*)\)\s*=>`)
	pyFunction    = regexp.MustCompile(`\bdef\s+(\w+)\s*\(([^)]*)\)\s*(?:->\s*[\w\[\], ]+)?:`)
	goFunction    = regexp.MustCompile(`\bfunc\s+(?:\([^)]*\)\s*)?(\w+)\s*\(([^)]*)\)`)
	rustFunction  = regexp.MustCompile(`\bfn\s+(\w+)\s*\(([^)]*)\)`)
	tsInterface   = regexp.MustCompile(`(?s)\b(?:export\s+)?interface\s+(\w+)\s*\{([^}]*)\}`)
	tsTypeAlias   = regexp.MustCompile(`(?s)\b(?:export\s+)?type\s+(\w+)\s*=\s*\{([^}]*)\}`)
	sqlCreateTable = regexp.MustCompile(`(?is)\bCREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?["'\x60]?(\w+)["'\x60]?\s*\(([^;]+)\)`)
	sqlAlterTable  = regexp.MustCompile(`(?is)\bALTER\s+TABLE\s+["'\x60]?(\w+)["'\x60]?\s+(.+)`)
	graphqlType   = regexp.MustCompile(`(?s)\b(type|input|interface|enum)\s+(\w+)\s*\{([^}]*)\}`)
	sqlConstraintLine = regexp.MustCompile(`(?i)^\s*(PRIMARY\s+KEY|FOREIGN\s+KEY|UNIQUE|CHECK|CONSTRAINT)\b`)
	graphqlCommentLine = regexp.MustCompile(`^\s*#`)
)

func capFields(fields []string, n int) []string {
	if len(fields) > n {
		return fields[:n]
	}
	return fields
}

func splitNonEmptyLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// extractContracts scans edited file content for the closed set of
// contract shapes spec §4.9 names, each capped to keep saved decisions
// terse and diffable.
func extractContracts(path, content string) []contract {
	var out []contract

	for _, m := range restEndpoint.FindAllStringSubmatch(content, -1) {
		out = append(out, contract{
			topic: fmt.Sprintf("REST %s %s", strings.ToUpper(m[1]), m[2]),
			decision: fmt.Sprintf("%s %s", strings.ToUpper(m[1]), m[2]),
			reasoning: "endpoint defined in " + path, confidence: 0.7,
		})
	}
	for _, m := range routerEndpoint.FindAllStringSubmatch(content, -1) {
		out = append(out, contract{
			topic: fmt.Sprintf("REST %s %s", strings.ToUpper(m[1]), m[2]),
			decision: fmt.Sprintf("%s %s", strings.ToUpper(m[1]), m[2]),
			reasoning: "router endpoint defined in " + path, confidence: 0.7,
		})
	}
	for _, m := range springMapping.FindAllStringSubmatch(content, -1) {
		out = append(out, contract{
			topic: "REST " + m[1] + " " + m[2], decision: m[1] + " " + m[2],
			reasoning: "Spring mapping in " + path, confidence: 0.7,
		})
	}

	for _, re := range []*regexp.Regexp{jsFunction, jsArrow, pyFunction, goFunction, rustFunction} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			out = append(out, contract{
				topic: "function " + m[1], decision: fmt.Sprintf("%s(%s)", m[1], strings.TrimSpace(m[2])),
				reasoning: "signature defined in " + path, confidence: 0.6,
			})
		}
	}

	for _, m := range tsInterface.FindAllStringSubmatch(content, -1) {
		fields := capFields(splitNonEmptyLines(m[2]), 5)
		out = append(out, contract{
			topic: "interface " + m[1], decision: fmt.Sprintf("%s {%s}", m[1], strings.Join(fields, "; ")),
			reasoning: "interface defined in " + path, confidence: 0.6,
		})
	}
	for _, m := range tsTypeAlias.FindAllStringSubmatch(content, -1) {
		fields := capFields(splitNonEmptyLines(m[2]), 5)
		out = append(out, contract{
			topic: "type " + m[1], decision: fmt.Sprintf("%s = {%s}", m[1], strings.Join(fields, "; ")),
			reasoning: "type alias defined in " + path, confidence: 0.6,
		})
	}

	for _, m := range sqlCreateTable.FindAllStringSubmatch(content, -1) {
		cols := filterConstraintLines(splitNonEmptyLines(m[2]))
		cols = capFields(cols, 10)
		out = append(out, contract{
			topic: "table " + m[1], decision: fmt.Sprintf("CREATE TABLE %s (%s)", m[1], strings.Join(cols, ", ")),
			reasoning: "schema defined in " + path, confidence: 0.8,
		})
	}
	for _, m := range sqlAlterTable.FindAllStringSubmatch(content, -1) {
		out = append(out, contract{
			topic: "table " + m[1], decision: fmt.Sprintf("ALTER TABLE %s %s", m[1], strings.TrimSpace(m[2])),
			reasoning: "schema altered in " + path, confidence: 0.8,
		})
	}

	for _, m := range graphqlType.FindAllStringSubmatch(content, -1) {
		fields := filterCommentLines(splitNonEmptyLines(m[3]))
		fields = capFields(fields, 10)
		out = append(out, contract{
			topic: m[1] + " " + m[2], decision: fmt.Sprintf("%s %s {%s}", m[1], m[2], strings.Join(fields, "; ")),
			reasoning: "GraphQL schema defined in " + path, confidence: 0.7,
		})
	}

	return out
}

func filterConstraintLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		if !sqlConstraintLine.MatchString(l) {
			out = append(out, l)
		}
	}
	return out
}

func filterCommentLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		if !graphqlCommentLine.MatchString(l) {
			out = append(out, l)
		}
	}
	return out
}

type postToolJob struct {
	tool    string
	path    string
	content string
}

// PostToolHandler extracts contracts from edited files and persists new
// ones to the Memory API. Processing happens on a single background
// worker fed by a bounded, drop-oldest queue so a burst of edits never
// blocks the turn loop (spec §9's bounded fire-and-forget pattern).
type PostToolHandler struct {
	memory memoryapi.Client
	logger *slog.Logger

	mu        sync.Mutex
	queue     []postToolJob
	wake      chan struct{}
	savedTotal int
	saveLimit  int
}

// NewPostToolHandler starts the background worker and returns the handler.
func NewPostToolHandler(ctx context.Context, memory memoryapi.Client, logger *slog.Logger) *PostToolHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &PostToolHandler{
		memory: memory, logger: logger,
		wake: make(chan struct{}, 1), saveLimit: contractSaveLimit,
	}
	go h.run(ctx)
	return h
}

// ProcessInBackground enqueues path/content for extraction; it never
// blocks the caller and never returns an error.
func (h *PostToolHandler) ProcessInBackground(tool, path, content string) {
	if !isEditClassTool(tool) || isLowPriorityPath(path) {
		return
	}
	h.mu.Lock()
	h.queue = append(h.queue, postToolJob{tool: tool, path: path, content: content})
	if len(h.queue) > postToolQueueDepth {
		dropped := h.queue[0]
		h.queue = h.queue[1:]
		h.logger.Warn("posttool: queue full, dropped oldest job", "path", dropped.path)
	}
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *PostToolHandler) dequeue() (postToolJob, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return postToolJob{}, false
	}
	job := h.queue[0]
	h.queue = h.queue[1:]
	return job, true
}

func (h *PostToolHandler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
		}
		for {
			job, ok := h.dequeue()
			if !ok {
				break
			}
			h.processJob(ctx, job)
		}
	}
}

func (h *PostToolHandler) processJob(ctx context.Context, job postToolJob) {
	if h.memory == nil {
		return
	}
	for _, c := range extractContracts(job.path, job.content) {
		h.mu.Lock()
		if h.savedTotal >= h.saveLimit {
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()

		if h.alreadySaved(ctx, c) {
			continue
		}
		if err := h.memory.Save(ctx, memoryapi.SaveRequest{
			Topic: c.topic, Decision: c.decision, Reasoning: c.reasoning,
			Confidence: c.confidence, Type: "user_decision",
		}); err != nil {
			h.logger.Warn("posttool: save contract failed", "topic", c.topic, "error", err)
			continue
		}
		h.mu.Lock()
		h.savedTotal++
		h.mu.Unlock()
	}
}

func (h *PostToolHandler) alreadySaved(ctx context.Context, c contract) bool {
	res, err := h.memory.Suggest(ctx, c.topic, 3)
	if err != nil {
		h.logger.Warn("posttool: memory search failed, proceeding to save", "error", err)
		return false
	}
	for _, d := range res.Results {
		if d.Topic == c.topic && d.Decision == c.decision {
			return true
		}
	}
	return false
}
