package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// captureOutput redirects stdout for the duration of fn.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// useServer points the commands at a test server and clears cached queries
// left over from other tests.
func useServer(t *testing.T, url string) {
	t.Helper()
	viper.Set("server", url)
	queryCache().Invalidate("")
}

func TestThreadsList(t *testing.T) {
	var fetches int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"threads": []domain.ThreadInfo{
				{ThreadID: "t1", AssistantID: "agent", Title: "release planning", UpdatedAt: time.Now()},
				{ThreadID: "t2", AssistantID: "agent", Title: "bug triage", UpdatedAt: time.Now()},
			},
		})
	}))
	defer ts.Close()
	useServer(t, ts.URL)

	listThreadsCmd.SetContext(context.Background())
	out := captureOutput(t, func() {
		listThreadsCmd.Run(listThreadsCmd, nil)
	})
	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "release planning")
	assert.Contains(t, out, "bug triage")

	// A second identical list within the cache window does not refetch.
	captureOutput(t, func() {
		listThreadsCmd.Run(listThreadsCmd, nil)
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestThreadsDeletePatchesCachedList(t *testing.T) {
	var fetches int32
	var deleted string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
			return
		}
		atomic.AddInt32(&fetches, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"threads": []domain.ThreadInfo{
				{ThreadID: "t1", AssistantID: "agent", Title: "keep me"},
				{ThreadID: "t2", AssistantID: "agent", Title: "drop me"},
			},
		})
	}))
	defer ts.Close()
	useServer(t, ts.URL)

	listThreadsCmd.SetContext(context.Background())
	deleteThreadCmd.SetContext(context.Background())

	captureOutput(t, func() { listThreadsCmd.Run(listThreadsCmd, nil) })

	out := captureOutput(t, func() { deleteThreadCmd.Run(deleteThreadCmd, []string{"t2"}) })
	assert.Contains(t, out, "Deleted thread t2")
	assert.Equal(t, "/v1/threads/t2", deleted)

	out = captureOutput(t, func() { listThreadsCmd.Run(listThreadsCmd, nil) })
	assert.Contains(t, out, "t1")
	assert.NotContains(t, out, "t2")
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches), "the patched list serves from cache")
}

func TestThreadsGetRendersConversation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.ThreadState{
			ThreadID: "t1",
			Messages: []domain.Message{
				domain.HumanMessage("m1", "look this up"),
				{ID: "m2", Role: domain.RoleAssistant,
					Content:   []domain.ContentPart{{Kind: domain.ContentKindText, Text: "Checking."}},
					ToolCalls: []domain.ToolCall{{ID: "tc1", Name: "search"}}},
				{ID: "m3", Role: domain.RoleTool, ToolCallID: "tc1",
					Content: []domain.ContentPart{{Kind: domain.ContentKindText, Text: "raw result"}}},
			},
		})
	}))
	defer ts.Close()
	useServer(t, ts.URL)

	getThreadCmd.SetContext(context.Background())
	out := captureOutput(t, func() { getThreadCmd.Run(getThreadCmd, []string{"t1"}) })

	assert.Contains(t, out, "[you] look this up")
	assert.Contains(t, out, "[agent] Checking.")
	assert.Contains(t, out, "[tool] search")
	assert.NotContains(t, out, "raw result", "tool results never render")
}

func TestAssistantsList(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"assistants": []domain.Assistant{
				{AssistantID: "agent", Name: "Agent", GraphID: "agent"},
			},
		})
	}))
	defer ts.Close()
	useServer(t, ts.URL)

	listAssistantsCmd.SetContext(context.Background())
	out := captureOutput(t, func() { listAssistantsCmd.Run(listAssistantsCmd, nil) })
	assert.Contains(t, out, "agent")
	assert.Contains(t, out, "Agent")
}
