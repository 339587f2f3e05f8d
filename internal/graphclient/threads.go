package graphclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// FetchHistory retrieves the full state of an existing thread: every past
// message of the active branch with its checkpoint metadata.
func (c *Client) FetchHistory(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	var state domain.ThreadState
	path := fmt.Sprintf("/v1/threads/%s/state", threadID)
	if err := c.request(ctx, http.MethodGet, path, nil, &state); err != nil {
		return nil, fmt.Errorf("failed to fetch thread history: %w", err)
	}
	return &state, nil
}

// Stop signals the Execution Service to abort the in-flight run for the
// thread. Partial streamed output is retained on the server.
func (c *Client) Stop(ctx context.Context, threadID string) error {
	path := fmt.Sprintf("/v1/threads/%s/runs/cancel", threadID)
	if err := c.request(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("failed to stop run: %w", err)
	}
	return nil
}

// SetBranch makes the named branch the active view of the thread and
// returns the wholesale state for it.
func (c *Client) SetBranch(ctx context.Context, threadID, branch string) (*domain.ThreadState, error) {
	var state domain.ThreadState
	path := fmt.Sprintf("/v1/threads/%s/branch", threadID)
	body := map[string]string{"branch": branch}
	if err := c.request(ctx, http.MethodPost, path, body, &state); err != nil {
		return nil, fmt.Errorf("failed to set branch: %w", err)
	}
	return &state, nil
}

// SearchThreads lists threads matching the params.
func (c *Client) SearchThreads(ctx context.Context, params SearchParams) ([]domain.ThreadInfo, error) {
	var resp struct {
		Threads []domain.ThreadInfo `json:"threads"`
	}
	if err := c.request(ctx, http.MethodGet, "/v1/threads"+params.query(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to search threads: %w", err)
	}
	return resp.Threads, nil
}

// DeleteThread deletes a thread by id.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	if err := c.request(ctx, http.MethodDelete, "/v1/threads/"+threadID, nil, nil); err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", threadID, err)
	}
	return nil
}

// SearchAssistants lists assistants matching the params.
func (c *Client) SearchAssistants(ctx context.Context, params SearchParams) ([]domain.Assistant, error) {
	var resp struct {
		Assistants []domain.Assistant `json:"assistants"`
	}
	if err := c.request(ctx, http.MethodGet, "/v1/assistants"+params.query(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to search assistants: %w", err)
	}
	return resp.Assistants, nil
}
