package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultTopN = 5

// apiClient calls the ralphbot admin API with a bearer token.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// feedbackEntry mirrors the fields of the admin API's feedback JSON
// that the tools surface to the agent.
type feedbackEntry struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Severity string  `json:"severity"`
	Text     string  `json:"text"`
	Status   string  `json:"status"`
	Priority float64 `json:"priority"`
}

// QueueSummaryParams defines the input for the queue_summary tool.
type QueueSummaryParams struct {
	Top int `json:"top,omitempty" jsonschema:"How many of the highest-priority entries to include (default 5)"`
}

// HandleQueueSummary answers the queue_summary tool call: status counts
// plus the top entries by priority.
func (c *apiClient) HandleQueueSummary(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params QueueSummaryParams,
) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP Feedback Server] queue_summary requested")

	top := params.Top
	if top <= 0 {
		top = defaultTopN
	}

	var countsResp struct {
		Counts map[string]int `json:"counts"`
	}
	if err := c.get(ctx, "/admin/queue", &countsResp); err != nil {
		return errorResult(err), nil, nil
	}

	var listResp struct {
		Feedback []feedbackEntry `json:"feedback"`
	}
	if err := c.get(ctx, "/admin/feedback?status=pending,triaged,accepted&limit=200", &listResp); err != nil {
		return errorResult(err), nil, nil
	}

	entries := listResp.Feedback
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority > entries[j].Priority
	})
	if len(entries) > top {
		entries = entries[:top]
	}

	summary := map[string]any{
		"counts": countsResp.Counts,
		"top":    entries,
	}
	text, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}, nil, nil
}

// SubmitFeedbackParams defines the input for the submit_feedback tool.
type SubmitFeedbackParams struct {
	AuthorID string `json:"author_id" jsonschema:"User ID the entry is filed under"`
	Kind     string `json:"kind" jsonschema:"One of bug, feature, praise"`
	Severity string `json:"severity" jsonschema:"One of low, medium, high, critical"`
	Text     string `json:"text" jsonschema:"The feedback text"`
}

// HandleSubmitFeedback answers the submit_feedback tool call by posting
// into the admin intake endpoint.
func (c *apiClient) HandleSubmitFeedback(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params SubmitFeedbackParams,
) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP Feedback Server] submit_feedback requested")

	if params.Text == "" {
		return nil, nil, fmt.Errorf("text parameter is required")
	}
	if params.AuthorID == "" {
		return nil, nil, fmt.Errorf("author_id parameter is required")
	}

	body := map[string]any{
		"author_id": params.AuthorID,
		"kind":      params.Kind,
		"severity":  params.Severity,
		"text":      params.Text,
	}

	var entry feedbackEntry
	if err := c.post(ctx, "/admin/feedback", body, &entry); err != nil {
		return errorResult(err), nil, nil
	}

	text, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[MCP Feedback Server] submitted feedback %s", entry.ID)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}, nil, nil
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("admin API returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return json.Unmarshal(raw, out)
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
		IsError: true,
	}
}
