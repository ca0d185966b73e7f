package gatewaytools

import (
	"context"
	"strings"

	"github.com/mama-run/mama/internal/memoryapi"
)

// typeAlias maps the caller-facing `type` argument onto the Memory API's
// internal vocabulary (spec §4.8: "type:'decision' is stored internally
// as user_decision").
func typeAlias(t string) string {
	if t == "decision" {
		return "user_decision"
	}
	return t
}

func (e *Executor) memorySearch(ctx context.Context, args map[string]interface{}) Result {
	if e.memory == nil {
		return failError("memory API unavailable")
	}
	query, ok := stringArg(args, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return failMessage("requires query")
	}
	limit := intArg(args, "limit", 5)
	res, err := e.memory.Suggest(ctx, query, limit)
	if err != nil {
		return failError(err.Error())
	}
	items := make([]map[string]interface{}, 0, len(res.Results))
	for _, d := range res.Results {
		items = append(items, map[string]interface{}{
			"id": d.ID, "topic": d.Topic, "decision": d.Decision,
			"reasoning": d.Reasoning, "type": d.Type, "confidence": d.Confidence,
		})
	}
	return ok2(map[string]interface{}{"results": items, "count": res.Count})
}

// memorySave dispatches on the caller-facing `type` argument (spec
// §4.8): `decision` requires topic/decision/reasoning and persists via
// Save with the internal `user_decision` type; `checkpoint` requires
// summary and persists via SaveCheckpoint; anything else is rejected.
func (e *Executor) memorySave(ctx context.Context, args map[string]interface{}) Result {
	if e.memory == nil {
		return failError("memory API unavailable")
	}
	t, _ := stringArg(args, "type")
	switch t {
	case "decision":
		return e.saveDecision(ctx, args)
	case "checkpoint":
		return e.saveCheckpoint(ctx, args)
	default:
		return failMessage("Invalid save type")
	}
}

func (e *Executor) saveDecision(ctx context.Context, args map[string]interface{}) Result {
	topic, ok := stringArg(args, "topic")
	if !ok || strings.TrimSpace(topic) == "" {
		return failMessage("requires topic")
	}
	decision, ok := stringArg(args, "decision")
	if !ok || strings.TrimSpace(decision) == "" {
		return failMessage("requires decision")
	}
	reasoning, ok := stringArg(args, "reasoning")
	if !ok || strings.TrimSpace(reasoning) == "" {
		return failMessage("requires reasoning")
	}
	confidence := 0.8
	if v, ok := args["confidence"]; ok {
		if f, ok := v.(float64); ok {
			confidence = f
		}
	}
	req := memoryapi.SaveRequest{
		Topic: topic, Decision: decision, Reasoning: reasoning,
		Confidence: confidence, Type: typeAlias("decision"),
	}
	if err := e.memory.Save(ctx, req); err != nil {
		return failError(err.Error())
	}
	return ok2(map[string]interface{}{"topic": topic, "type": req.Type})
}

func (e *Executor) saveCheckpoint(ctx context.Context, args map[string]interface{}) Result {
	summary, ok := stringArg(args, "summary")
	if !ok || strings.TrimSpace(summary) == "" {
		return failMessage("requires summary")
	}
	openFiles := stringSliceArg(args, "open_files")
	nextSteps := stringSliceArg(args, "next_steps")
	recent, _ := stringArg(args, "recent_conversation")
	if err := e.memory.SaveCheckpoint(ctx, summary, openFiles, nextSteps, recent); err != nil {
		return failError(err.Error())
	}
	return ok2(map[string]interface{}{"summary": summary, "type": "checkpoint"})
}

// normalizeOutcome upper-cases and validates against the closed Outcome
// set; mama_update is idempotent, so re-submitting an already-normalized
// outcome string is a no-op success (round-trip property 7).
func normalizeOutcome(raw string) (memoryapi.Outcome, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(memoryapi.OutcomeSuccess):
		return memoryapi.OutcomeSuccess, true
	case string(memoryapi.OutcomeFailed):
		return memoryapi.OutcomeFailed, true
	case string(memoryapi.OutcomePending):
		return memoryapi.OutcomePending, true
	default:
		return "", false
	}
}

func (e *Executor) memoryUpdate(ctx context.Context, args map[string]interface{}) Result {
	if e.memory == nil {
		return failError("memory API unavailable")
	}
	id, ok := stringArg(args, "id")
	if !ok || strings.TrimSpace(id) == "" {
		return failMessage("requires id")
	}
	rawOutcome, ok := stringArg(args, "outcome")
	if !ok {
		return failMessage("requires outcome")
	}
	outcome, ok := normalizeOutcome(rawOutcome)
	if !ok {
		return failMessage("outcome must be one of SUCCESS, FAILED, PENDING")
	}
	reason, _ := stringArg(args, "failure_reason")
	req := memoryapi.UpdateOutcomeRequest{Outcome: outcome, FailureReason: reason}
	if err := e.memory.UpdateOutcome(ctx, id, req); err != nil {
		return failError(err.Error())
	}
	return ok2(map[string]interface{}{"id": id, "outcome": string(outcome)})
}

func (e *Executor) memoryLoadCheckpoint(ctx context.Context) Result {
	if e.memory == nil {
		return failError("memory API unavailable")
	}
	cp, err := e.memory.LoadCheckpoint(ctx)
	if err != nil {
		return failError(err.Error())
	}
	if !cp.Success {
		return failMessage("no checkpoint available")
	}
	return ok2(map[string]interface{}{
		"summary": cp.Summary, "next_steps": cp.NextSteps, "open_files": cp.OpenFiles,
	})
}
