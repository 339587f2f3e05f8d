// Package domain defines the core domain models for the thread engine.
package domain

import "strings"

// Role identifies who produced a message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind identifies the type of a content part.
type ContentKind string

const (
	ContentKindText  ContentKind = "text"
	ContentKindImage ContentKind = "image"
)

// ContentPart is one element of a message's content sequence.
type ContentPart struct {
	Kind ContentKind `json:"kind"`
	Text string      `json:"text,omitempty"`
	URL  string      `json:"url,omitempty"`
}

// ToolCall represents an assistant's request to invoke a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message represents a single turn in a conversation thread.
//
// Tool-result messages (Role == RoleTool) are never rendered directly;
// they are joined to their originating tool call via ToolCallID.
type Message struct {
	ID         string        `json:"id"`
	Role       Role          `json:"role"`
	Content    []ContentPart `json:"content"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// Text returns the rendered text of the message: the trimmed,
// blank-line-joined concatenation of its text parts.
func (m Message) Text() string {
	var parts []string
	for _, p := range m.Content {
		if p.Kind != ContentKindText {
			continue
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Renderable reports whether the message appears in the conversation view.
func (m Message) Renderable() bool {
	return m.Role != RoleTool
}

// HumanMessage builds a single-part human text message.
func HumanMessage(id, text string) Message {
	return Message{
		ID:      id,
		Role:    RoleHuman,
		Content: []ContentPart{{Kind: ContentKindText, Text: text}},
	}
}
