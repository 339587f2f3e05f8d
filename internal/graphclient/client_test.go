package graphclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaman2009/lang-lens/internal/domain"
)

func TestFetchHistory(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/threads/t1/state", r.URL.Path)
		json.NewEncoder(w).Encode(domain.ThreadState{
			ThreadID: "t1",
			Messages: []domain.Message{domain.HumanMessage("m1", "hi")},
			Metadata: map[string]domain.CheckpointMetadata{
				"m1": {Checkpoint: "c1", ParentCheckpoint: "c0", Branch: "main", BranchOptions: []string{"main"}},
			},
		})
	}))
	defer ts.Close()

	state, err := NewClient(ts.URL).FetchHistory(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", state.ThreadID)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, domain.CheckpointRef("c0"), state.Metadata["m1"].ParentCheckpoint)
}

func TestFetchHistoryNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "thread not found", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).FetchHistory(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestSetBranch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/threads/t1/branch", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "branch-1", body["branch"])
		json.NewEncoder(w).Encode(domain.ThreadState{ThreadID: "t1"})
	}))
	defer ts.Close()

	state, err := NewClient(ts.URL).SetBranch(context.Background(), "t1", "branch-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", state.ThreadID)
}

func TestSearchThreads(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/threads", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "updated_at", r.URL.Query().Get("sort_by"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort_order"))
		json.NewEncoder(w).Encode(map[string]any{
			"threads": []domain.ThreadInfo{{ThreadID: "t1", Title: "hi"}},
		})
	}))
	defer ts.Close()

	threads, err := NewClient(ts.URL).SearchThreads(context.Background(), SearchParams{
		Limit: 25, SortBy: "updated_at", SortOrder: "desc",
	})
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "t1", threads[0].ThreadID)
}

func TestDeleteThread(t *testing.T) {
	var deleted string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		deleted = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	require.NoError(t, NewClient(ts.URL).DeleteThread(context.Background(), "t1"))
	assert.Equal(t, "/v1/threads/t1", deleted)
}

func TestStop(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/threads/t1/runs/cancel", r.URL.Path)
	}))
	defer ts.Close()

	require.NoError(t, NewClient(ts.URL).Stop(context.Background(), "t1"))
}

func TestSearchParamsKey(t *testing.T) {
	a := SearchParams{Limit: 50, SortBy: "updated_at", SortOrder: "desc"}
	b := SearchParams{Limit: 50, SortBy: "updated_at", SortOrder: "desc"}
	c := SearchParams{Limit: 10, SortBy: "updated_at", SortOrder: "desc"}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
