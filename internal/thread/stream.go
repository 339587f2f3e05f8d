package thread

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaman2009/lang-lens/internal/domain"
	"github.com/shaman2009/lang-lens/internal/graphclient"
	"github.com/shaman2009/lang-lens/internal/todo"
)

const (
	defaultMaxReconnects = 3
	defaultBackoff       = 500 * time.Millisecond
)

// Snapshot is an immutable view of the thread handed to subscribers.
type Snapshot struct {
	Messages  []domain.Message
	IsLoading bool
	Todos     []domain.TodoItem
	Err       error
}

// Stream owns the state of one mounted conversation thread. It is mutated
// only by the reconciler in response to Execution Service events, or by
// branch switches that replace the sequence wholesale.
type Stream struct {
	svc         Service
	threadID    string
	assistantID string
	existing    bool

	mu        sync.RWMutex
	messages  []domain.Message
	meta      map[string]domain.CheckpointMetadata
	isLoading bool
	stopping  bool
	resetNext bool
	lastErr   error

	editingID  string
	editBuffer string

	subMu sync.Mutex
	subs  map[int]func(Snapshot)
	nextSub int

	maxReconnects int
	backoff       time.Duration
}

// Option configures a Stream.
type Option func(*Stream)

// WithReconnect overrides reconnection attempts and initial backoff.
func WithReconnect(attempts int, backoff time.Duration) Option {
	return func(s *Stream) {
		s.maxReconnects = attempts
		s.backoff = backoff
	}
}

// New creates a stream for a (threadID, assistantID) pair. An empty
// threadID denotes a new thread: an id is minted locally and the Execution
// Service is not contacted until the first submission.
func New(svc Service, threadID, assistantID string, opts ...Option) *Stream {
	s := &Stream{
		svc:           svc,
		threadID:      threadID,
		assistantID:   assistantID,
		existing:      threadID != "",
		meta:          make(map[string]domain.CheckpointMetadata),
		subs:          make(map[int]func(Snapshot)),
		maxReconnects: defaultMaxReconnects,
		backoff:       defaultBackoff,
	}
	if s.threadID == "" {
		s.threadID = uuid.New().String()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ThreadID returns the thread id (minted locally for new threads).
func (s *Stream) ThreadID() string {
	return s.threadID
}

// Attach hydrates an existing thread from the Execution Service's full
// state history, so branch metadata for every past message is available
// before the user can act on it. New threads start empty without any
// network activity.
func (s *Stream) Attach(ctx context.Context) error {
	if !s.existing {
		s.notify()
		return nil
	}
	state, err := s.svc.FetchHistory(ctx, s.threadID)
	if err != nil {
		return err
	}
	s.replaceState(state)
	return nil
}

// Messages returns a copy of the current message sequence.
func (s *Stream) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// IsLoading reports whether a turn is in flight.
func (s *Stream) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

// LastErr returns the most recent recoverable error, if any.
func (s *Stream) LastErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// MetadataOf returns the checkpoint metadata for a message id. A false
// result means "no branch/edit capability for this message", not an error.
func (s *Stream) MetadataOf(messageID string) (domain.CheckpointMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[messageID]
	return m, ok
}

// Todos returns the current todo queue derived from the message model.
func (s *Stream) Todos() []domain.TodoItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return todo.Extract(s.messages)
}

// Subscribe registers a callback invoked with a snapshot after every state
// change. It returns an unsubscribe function.
func (s *Stream) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Submit sends a new human turn on the active branch and blocks until the
// Execution Service completes or terminates the run.
func (s *Stream) Submit(ctx context.Context, text string) error {
	msg := domain.HumanMessage(uuid.New().String(), text)
	return s.run(ctx, domain.SubmitRequest{
		AssistantID:     s.assistantID,
		Messages:        []domain.Message{msg},
		StreamSubgraphs: true,
		StreamResumable: true,
	})
}

// Stop signals the Execution Service to abort the in-flight turn. The
// message sequence retains whatever partial content had streamed so far.
func (s *Stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	err := s.svc.Stop(ctx, s.threadID)

	s.mu.Lock()
	s.isLoading = false
	s.mu.Unlock()
	s.notify()
	return err
}

// run executes one submission: acquires the loading gate, streams events
// and reconciles them, then releases the gate. Exactly one run may be in
// flight per thread.
func (s *Stream) run(ctx context.Context, req domain.SubmitRequest) error {
	s.mu.Lock()
	if s.isLoading {
		s.mu.Unlock()
		return ErrBusy
	}
	s.isLoading = true
	s.stopping = false
	s.lastErr = nil
	s.existing = true
	// A checkpoint anchor forks a sibling branch: the first update of the
	// new run is a full-state refresh of that branch, not an incremental
	// merge into the old one.
	s.resetNext = !req.Checkpoint.IsZero()
	s.mu.Unlock()
	s.notify()

	err := s.svc.SubmitStream(ctx, s.threadID, req, s.handleEvent)
	if err != nil {
		err = s.recover(ctx, err)
	}

	s.mu.Lock()
	s.isLoading = false
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
	return err
}

// handleEvent reconciles one stream event into the thread state.
func (s *Stream) handleEvent(ev graphclient.SSEEvent) error {
	switch domain.StreamEventType(ev.Event) {
	case domain.StreamEventValues:
		update, err := graphclient.DecodeStateUpdate(ev.Data)
		if err != nil {
			log.Printf("thread %s: dropping malformed state update: %v", s.threadID, err)
			return nil
		}
		s.applyUpdate(update)
	case domain.StreamEventError:
		errData := graphclient.DecodeStreamError(ev.Data)
		return &StreamError{Code: errData.Code, Message: errData.Message}
	case domain.StreamEventDone:
		// Stream close follows; nothing to apply.
	}
	return nil
}

// applyUpdate merges an incremental update into the message sequence.
// Messages are appended or replaced by id, never reordered; a re-delivered
// id is a content update, which is how the latest assistant message grows
// token by token.
func (s *Stream) applyUpdate(update *domain.StateUpdate) {
	s.mu.Lock()
	if s.resetNext {
		s.resetNext = false
		s.messages = s.messages[:0]
		s.meta = make(map[string]domain.CheckpointMetadata, len(update.Metadata))
	}
	index := make(map[string]int, len(s.messages))
	for i, m := range s.messages {
		index[m.ID] = i
	}
	for _, m := range update.Messages {
		if i, ok := index[m.ID]; ok {
			s.messages[i] = m
		} else {
			index[m.ID] = len(s.messages)
			s.messages = append(s.messages, m)
		}
	}
	for id, md := range update.Metadata {
		s.meta[id] = md
	}
	s.mu.Unlock()
	s.notify()
}

// replaceState swaps the message sequence wholesale. Used for initial
// hydration and branch switches; this is an intentional full-state
// refresh, not an incremental merge.
func (s *Stream) replaceState(state *domain.ThreadState) {
	s.mu.Lock()
	s.messages = make([]domain.Message, len(state.Messages))
	copy(s.messages, state.Messages)
	s.meta = make(map[string]domain.CheckpointMetadata, len(state.Metadata))
	for id, md := range state.Metadata {
		s.meta[id] = md
	}
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

// recover handles a dropped stream: it retries with backoff, re-syncing
// state from the Execution Service while preserving the already
// materialized sequence. A stop or a terminal stream error is not retried.
func (s *Stream) recover(ctx context.Context, cause error) error {
	var streamErr *StreamError
	if errors.As(cause, &streamErr) {
		return cause
	}
	if ctx.Err() != nil {
		return cause
	}
	s.mu.RLock()
	stopping := s.stopping
	s.mu.RUnlock()
	if stopping {
		return nil
	}

	backoff := s.backoff
	for attempt := 1; attempt <= s.maxReconnects; attempt++ {
		log.Printf("thread %s: stream lost (%v), reconnect attempt %d/%d", s.threadID, cause, attempt, s.maxReconnects)
		select {
		case <-ctx.Done():
			return cause
		case <-time.After(backoff):
		}
		backoff *= 2

		state, err := s.svc.FetchHistory(ctx, s.threadID)
		if err != nil {
			cause = err
			continue
		}
		s.replaceState(state)
		return nil
	}
	return &RecoverableError{Err: cause}
}

// notify delivers a snapshot to every subscriber.
func (s *Stream) notify() {
	s.mu.RLock()
	snap := Snapshot{
		Messages:  make([]domain.Message, len(s.messages)),
		IsLoading: s.isLoading,
		Todos:     todo.Extract(s.messages),
		Err:       s.lastErr,
	}
	copy(snap.Messages, s.messages)
	s.mu.RUnlock()

	s.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
