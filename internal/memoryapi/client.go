// Package memoryapi is the Go interface to the external memory/embedding
// collaborator (spec §1, §6): the vector index and search service live
// outside the core, so this package only defines the contract the
// executor and handlers consume plus a thin HTTP client implementation.
package memoryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SaveRequest is the payload for Save.
type SaveRequest struct {
	Topic      string  `json:"topic"`
	Decision   string  `json:"decision"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"`
}

// Decision is one item returned by ListDecisions/Suggest.
type Decision struct {
	ID        string  `json:"id"`
	Topic     string  `json:"topic"`
	Decision  string  `json:"decision"`
	Reasoning string  `json:"reasoning"`
	Type      string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// SuggestResult is Suggest's return shape.
type SuggestResult struct {
	Success bool       `json:"success"`
	Results []Decision `json:"results"`
	Count   int        `json:"count"`
}

// Checkpoint is LoadCheckpoint's return shape.
type Checkpoint struct {
	Success   bool     `json:"success"`
	Summary   string   `json:"summary"`
	NextSteps []string `json:"next_steps"`
	OpenFiles []string `json:"open_files"`
}

// Outcome is the normalized uppercase outcome mama_update accepts.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomePending Outcome = "PENDING"
)

// UpdateOutcomeRequest is the payload for UpdateOutcome.
type UpdateOutcomeRequest struct {
	Outcome       Outcome `json:"outcome"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// Client is the Memory API contract consumed by GatewayToolExecutor and
// the PreCompact/PostTool handlers (spec §6).
type Client interface {
	Save(ctx context.Context, req SaveRequest) error
	SaveCheckpoint(ctx context.Context, summary string, openFiles, nextSteps []string, recentConversation string) error
	ListDecisions(ctx context.Context, limit int) ([]Decision, error)
	Suggest(ctx context.Context, query string, limit int) (SuggestResult, error)
	UpdateOutcome(ctx context.Context, id string, req UpdateOutcomeRequest) error
	LoadCheckpoint(ctx context.Context) (Checkpoint, error)
}

// HTTPClient is an HTTP-backed Client implementation for talking to the
// out-of-scope memory/embedding service over its REST contract.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a Client pointed at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) Save(ctx context.Context, req SaveRequest) error {
	return c.post(ctx, "/save", req, nil)
}

func (c *HTTPClient) SaveCheckpoint(ctx context.Context, summary string, openFiles, nextSteps []string, recentConversation string) error {
	body := map[string]interface{}{
		"summary": summary, "open_files": openFiles, "next_steps": nextSteps,
		"recent_conversation": recentConversation,
	}
	return c.post(ctx, "/checkpoint", body, nil)
}

func (c *HTTPClient) ListDecisions(ctx context.Context, limit int) ([]Decision, error) {
	var out struct {
		Items []Decision `json:"items"`
	}
	if err := c.post(ctx, "/decisions/list", map[string]int{"limit": limit}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *HTTPClient) Suggest(ctx context.Context, query string, limit int) (SuggestResult, error) {
	var out SuggestResult
	err := c.post(ctx, "/suggest", map[string]interface{}{"query": query, "limit": limit}, &out)
	return out, err
}

func (c *HTTPClient) UpdateOutcome(ctx context.Context, id string, req UpdateOutcomeRequest) error {
	return c.post(ctx, "/decisions/"+id+"/outcome", req, nil)
}

func (c *HTTPClient) LoadCheckpoint(ctx context.Context) (Checkpoint, error) {
	var out Checkpoint
	err := c.post(ctx, "/checkpoint/load", map[string]string{}, &out)
	return out, err
}
