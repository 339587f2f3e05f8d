package domain

import "time"

// ThreadInfo is a thread list entry returned by the Execution Service.
type ThreadInfo struct {
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	Title       string    `json:"title,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assistant is a registered assistant (graph) on the Execution Service.
type Assistant struct {
	AssistantID string `json:"assistant_id"`
	Name        string `json:"name"`
	GraphID     string `json:"graph_id"`
}

// ThreadState is the full hydrated state of one thread: the message
// sequence of the currently selected branch plus its metadata index.
type ThreadState struct {
	ThreadID string                        `json:"thread_id"`
	Messages []Message                     `json:"messages"`
	Metadata map[string]CheckpointMetadata `json:"metadata"`
}

// TitleOf derives a display title from the first message with text.
func TitleOf(messages []Message) string {
	for _, m := range messages {
		if t := m.Text(); t != "" {
			return t
		}
	}
	return "Untitled"
}
