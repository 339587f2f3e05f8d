package domain

import "encoding/json"

// StreamEventType identifies an SSE event on a run stream.
type StreamEventType string

const (
	StreamEventValues StreamEventType = "values"
	StreamEventDone   StreamEventType = "done"
	StreamEventError  StreamEventType = "error"
)

// StateUpdate is the payload of a "values" stream event: the full message
// sequence of the active branch plus per-message checkpoint metadata.
// Messages are keyed by id; a re-delivered id is a content update.
type StateUpdate struct {
	Messages []Message                     `json:"messages"`
	Metadata map[string]CheckpointMetadata `json:"metadata,omitempty"`
}

// StreamErrorData is the payload of an "error" stream event.
type StreamErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmitRequest is the body of a run submission.
//
// Checkpoint present means fork/edit/regenerate semantics: the run is
// anchored at that checkpoint and creates a sibling branch. Messages nil
// with Checkpoint present means regenerate-from-checkpoint with no new
// input.
type SubmitRequest struct {
	AssistantID      string        `json:"assistant_id"`
	Messages         []Message     `json:"messages,omitempty"`
	Checkpoint       CheckpointRef `json:"checkpoint,omitempty"`
	StreamSubgraphs  bool          `json:"stream_subgraphs,omitempty"`
	StreamResumable  bool          `json:"stream_resumable,omitempty"`
}

// WatchEventType identifies a notification on a thread watch connection.
type WatchEventType string

const (
	WatchEventRefresh WatchEventType = "refresh"
)

// WatchEvent is a live notification that the thread state changed
// out-of-band (e.g. a branch switch) and should be re-hydrated.
type WatchEvent struct {
	Type     WatchEventType  `json:"type"`
	ThreadID string          `json:"thread_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}
