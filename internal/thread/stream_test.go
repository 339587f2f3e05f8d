package thread

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaman2009/lang-lens/internal/domain"
	"github.com/shaman2009/lang-lens/internal/graphclient"
)

// fakeService records every call the engine makes to the Execution
// Service and lets tests script the stream.
type fakeService struct {
	mu sync.Mutex

	history    *domain.ThreadState
	historyErr error

	submits  []domain.SubmitRequest
	streamFn func(req domain.SubmitRequest, handler graphclient.EventHandler) error

	branchCalls  []string
	branchStates map[string]*domain.ThreadState

	stops int
}

func (f *fakeService) FetchHistory(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if f.history == nil {
		return &domain.ThreadState{ThreadID: threadID}, nil
	}
	return f.history, nil
}

func (f *fakeService) SubmitStream(ctx context.Context, threadID string, req domain.SubmitRequest, handler graphclient.EventHandler) error {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	fn := f.streamFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(req, handler)
}

func (f *fakeService) Stop(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeService) SetBranch(ctx context.Context, threadID, branch string) (*domain.ThreadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branchCalls = append(f.branchCalls, branch)
	if state, ok := f.branchStates[branch]; ok {
		return state, nil
	}
	return &domain.ThreadState{ThreadID: threadID}, nil
}

func (f *fakeService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeService) lastSubmit(t *testing.T) domain.SubmitRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.submits)
	return f.submits[len(f.submits)-1]
}

func valuesEvent(t *testing.T, update domain.StateUpdate) graphclient.SSEEvent {
	t.Helper()
	data, err := json.Marshal(update)
	require.NoError(t, err)
	return graphclient.SSEEvent{Event: string(domain.StreamEventValues), Data: string(data)}
}

// seededState is a [human:"hi", ai:"hello"] thread with full metadata.
func seededState() *domain.ThreadState {
	return &domain.ThreadState{
		ThreadID: "t1",
		Messages: []domain.Message{
			domain.HumanMessage("m1", "hi"),
			{ID: "m2", Role: domain.RoleAssistant, Content: []domain.ContentPart{{Kind: domain.ContentKindText, Text: "hello"}}},
		},
		Metadata: map[string]domain.CheckpointMetadata{
			"m1": {Checkpoint: "c1", ParentCheckpoint: "c0", Branch: domain.DefaultBranch, BranchOptions: []string{domain.DefaultBranch}},
			"m2": {Checkpoint: "c2", ParentCheckpoint: "c1", Branch: domain.DefaultBranch, BranchOptions: []string{domain.DefaultBranch}},
		},
	}
}

func TestAttachHydratesExistingThread(t *testing.T) {
	svc := &fakeService{history: seededState()}
	s := New(svc, "t1", "agent")

	require.NoError(t, s.Attach(context.Background()))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text())
	meta, ok := s.MetadataOf("m1")
	require.True(t, ok)
	assert.Equal(t, domain.CheckpointRef("c0"), meta.ParentCheckpoint)
}

func TestAttachNewThreadStaysOffline(t *testing.T) {
	svc := &fakeService{historyErr: errors.New("must not be called")}
	s := New(svc, "", "agent")

	require.NoError(t, s.Attach(context.Background()))
	assert.Empty(t, s.Messages())
	assert.NotEmpty(t, s.ThreadID())
}

func TestSubmitAppliesIncrementalUpdates(t *testing.T) {
	var loadingDuringStream bool
	svc := &fakeService{}
	s := New(svc, "t1", "agent")
	svc.streamFn = func(req domain.SubmitRequest, handler graphclient.EventHandler) error {
		loadingDuringStream = s.IsLoading()
		// The same assistant message id is re-delivered as it grows.
		for _, text := range []string{"he", "hello"} {
			ev := valuesEvent(t, domain.StateUpdate{
				Messages: []domain.Message{
					req.Messages[0],
					{ID: "a1", Role: domain.RoleAssistant, Content: []domain.ContentPart{{Kind: domain.ContentKindText, Text: text}}},
				},
			})
			if err := handler(ev); err != nil {
				return err
			}
		}
		return nil
	}

	require.NoError(t, s.Submit(context.Background(), "hi"))

	msgs := s.Messages()
	require.Len(t, msgs, 2, "re-delivered id must update, not duplicate")
	assert.Equal(t, "hello", msgs[1].Text())
	assert.True(t, loadingDuringStream)
	assert.False(t, s.IsLoading())

	req := svc.lastSubmit(t)
	assert.True(t, req.StreamSubgraphs)
	assert.True(t, req.StreamResumable)
	assert.True(t, req.Checkpoint.IsZero())
}

func TestSubmitWhileLoadingIsRejected(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, "t1", "agent")
	release := make(chan struct{})
	started := make(chan struct{})
	svc.streamFn = func(req domain.SubmitRequest, handler graphclient.EventHandler) error {
		close(started)
		<-release
		return nil
	}

	go s.Submit(context.Background(), "first")
	<-started

	assert.ErrorIs(t, s.Submit(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, s.StartEdit("any"), ErrBusy)
	assert.ErrorIs(t, s.Regenerate(context.Background(), "any"), ErrBusy)
	close(release)
}

func TestStreamErrorResetsLoading(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, "t1", "agent")
	svc.streamFn = func(req domain.SubmitRequest, handler graphclient.EventHandler) error {
		return handler(graphclient.SSEEvent{
			Event: string(domain.StreamEventError),
			Data:  `{"code":"run_failed","message":"boom"}`,
		})
	}

	err := s.Submit(context.Background(), "hi")
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "run_failed", streamErr.Code)
	assert.False(t, s.IsLoading())
}

func TestStopRetainsPartialContent(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, "t1", "agent")

	tokens := []string{"one", "one two", "one two three"}
	streamed := make(chan struct{})
	stopped := make(chan struct{})
	svc.streamFn = func(req domain.SubmitRequest, handler graphclient.EventHandler) error {
		for _, text := range tokens {
			ev := valuesEvent(t, domain.StateUpdate{Messages: []domain.Message{
				{ID: "a1", Role: domain.RoleAssistant, Content: []domain.ContentPart{{Kind: domain.ContentKindText, Text: text}}},
			}})
			if err := handler(ev); err != nil {
				return err
			}
		}
		close(streamed)
		// The service ends the stream once the cancel lands.
		<-stopped
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "count to five") }()

	<-streamed
	require.NoError(t, s.Stop(context.Background()))
	close(stopped)
	require.NoError(t, <-done)

	msgs := s.Messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "one two three", msgs[len(msgs)-1].Text())
	assert.False(t, s.IsLoading())
	assert.Equal(t, 1, svc.stops)
}

func TestReconnectPreservesMessagesAndResyncs(t *testing.T) {
	svc := &fakeService{history: seededState()}
	s := New(svc, "t1", "agent", WithReconnect(2, time.Millisecond))
	svc.streamFn = func(req domain.SubmitRequest, handler graphclient.EventHandler) error {
		ev := valuesEvent(t, domain.StateUpdate{Messages: []domain.Message{
			{ID: "a1", Role: domain.RoleAssistant, Content: []domain.ContentPart{{Kind: domain.ContentKindText, Text: "partial"}}},
		}})
		if err := handler(ev); err != nil {
			return err
		}
		return io.ErrUnexpectedEOF
	}

	require.NoError(t, s.Submit(context.Background(), "hi"))

	// Resynced wholesale from FetchHistory.
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].Text())
	assert.NoError(t, s.LastErr())
}

func TestReconnectExhaustionIsRecoverable(t *testing.T) {
	svc := &fakeService{historyErr: errors.New("unreachable")}
	s := New(svc, "t1", "agent", WithReconnect(2, time.Millisecond))
	svc.streamFn = func(req domain.SubmitRequest, handler graphclient.EventHandler) error {
		ev := valuesEvent(t, domain.StateUpdate{Messages: []domain.Message{
			{ID: "a1", Role: domain.RoleAssistant, Content: []domain.ContentPart{{Kind: domain.ContentKindText, Text: "partial"}}},
		}})
		if err := handler(ev); err != nil {
			return err
		}
		return io.ErrUnexpectedEOF
	}

	err := s.Submit(context.Background(), "hi")
	var recoverable *RecoverableError
	require.ErrorAs(t, err, &recoverable)

	// No visible rollback of materialized messages.
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "partial", msgs[0].Text())
	assert.False(t, s.IsLoading())
}

func TestMalformedUpdateIsDropped(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, "t1", "agent")
	svc.streamFn = func(req domain.SubmitRequest, handler graphclient.EventHandler) error {
		if err := handler(graphclient.SSEEvent{Event: string(domain.StreamEventValues), Data: "{not json"}); err != nil {
			return err
		}
		return handler(valuesEvent(t, domain.StateUpdate{Messages: req.Messages}))
	}

	require.NoError(t, s.Submit(context.Background(), "hi"))
	assert.Len(t, s.Messages(), 1)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	svc := &fakeService{history: seededState()}
	s := New(svc, "t1", "agent")

	var mu sync.Mutex
	var snaps []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	})

	require.NoError(t, s.Attach(context.Background()))
	mu.Lock()
	require.NotEmpty(t, snaps)
	assert.Len(t, snaps[len(snaps)-1].Messages, 2)
	count := len(snaps)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, s.Attach(context.Background()))
	mu.Lock()
	assert.Equal(t, count, len(snaps))
	mu.Unlock()
}
