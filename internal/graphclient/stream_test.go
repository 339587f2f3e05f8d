package graphclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaman2009/lang-lens/internal/domain"
)

func TestParseSSE(t *testing.T) {
	stream := strings.Join([]string{
		"event: values",
		`data: {"messages":[]}`,
		"",
		": keepalive comment",
		"",
		"event: error",
		`data: {"code":"run_failed",`,
		`data: "message":"boom"}`,
		"",
		"event: done",
		"data: [DONE]",
		"",
	}, "\n")

	var events []SSEEvent
	err := parseSSE(strings.NewReader(stream), func(ev SSEEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, "values", events[0].Event)
	assert.Equal(t, "error", events[1].Event)
	assert.Equal(t, "{\"code\":\"run_failed\",\n\"message\":\"boom\"}", events[1].Data, "multi-line data joins with newlines")
	assert.Equal(t, "done", events[2].Event)
}

func TestParseSSEFinalEventWithoutTrailingBlank(t *testing.T) {
	stream := "event: done\ndata: [DONE]"
	var events []SSEEvent
	require.NoError(t, parseSSE(strings.NewReader(stream), func(ev SSEEvent) error {
		events = append(events, ev)
		return nil
	}))
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].Event)
}

func TestParseSSEHandlerErrorStopsStream(t *testing.T) {
	stream := "event: a\ndata: 1\n\nevent: b\ndata: 2\n\n"
	boom := errors.New("stop here")
	var seen int
	err := parseSSE(strings.NewReader(stream), func(ev SSEEvent) error {
		seen++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, seen)
}

func TestSubmitStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/threads/t1/runs/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: values\ndata: {\"messages\":[{\"id\":\"m1\",\"role\":\"human\",\"content\":[]}]}\n\n")
		fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	}))
	defer ts.Close()

	var events []SSEEvent
	err := NewClient(ts.URL).SubmitStream(context.Background(), "t1",
		domain.SubmitRequest{AssistantID: "agent"},
		func(ev SSEEvent) error {
			events = append(events, ev)
			return nil
		})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "values", events[0].Event)
}

func TestSubmitStreamRejectedRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "run already in flight", http.StatusConflict)
	}))
	defer ts.Close()

	err := NewClient(ts.URL).SubmitStream(context.Background(), "t1", domain.SubmitRequest{}, func(ev SSEEvent) error {
		t.Fatal("handler must not run for a rejected submission")
		return nil
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestDecodeStateUpdate(t *testing.T) {
	update, err := DecodeStateUpdate(`{"messages":[{"id":"m1","role":"human","content":[{"kind":"text","text":"hi"}]}],"metadata":{"m1":{"checkpoint":"c1","parent_checkpoint":"c0","branch":"main","branch_options":["main"]}}}`)
	require.NoError(t, err)
	require.Len(t, update.Messages, 1)
	assert.Equal(t, domain.RoleHuman, update.Messages[0].Role)
	assert.Equal(t, domain.CheckpointRef("c1"), update.Metadata["m1"].Checkpoint)

	_, err = DecodeStateUpdate("{broken")
	assert.Error(t, err)
}

func TestDecodeStreamError(t *testing.T) {
	errData := DecodeStreamError(`{"code":"run_failed","message":"boom"}`)
	assert.Equal(t, "run_failed", errData.Code)
	assert.Equal(t, "boom", errData.Message)

	errData = DecodeStreamError("not json at all")
	assert.Equal(t, "unknown", errData.Code)
	assert.Equal(t, "not json at all", errData.Message)
}
