// Package todo extracts the task queue an assistant embeds in todo-writing
// tool calls.
package todo

import (
	"encoding/json"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// toolNames are the accepted names for the tool that writes the task list.
var toolNames = map[string]bool{
	"write_todos": true,
	"todo_write":  true,
}

// IsTodoTool reports whether a tool name writes the task list.
func IsTodoTool(name string) bool {
	return toolNames[name]
}

// Extract returns the current todo queue from a message sequence.
//
// Later todo-writing calls supersede earlier ones: the queue is replaced,
// never merged. Only the last matching tool call of the last assistant
// message with such a call counts. Pure and idempotent; a malformed or
// absent todos payload yields an empty queue rather than an error.
func Extract(messages []domain.Message) []domain.TodoItem {
	var call *domain.ToolCall
	for _, m := range messages {
		if m.Role != domain.RoleAssistant {
			continue
		}
		for i := range m.ToolCalls {
			if IsTodoTool(m.ToolCalls[i].Name) {
				call = &m.ToolCalls[i]
			}
		}
	}
	if call == nil {
		return nil
	}

	raw, ok := call.Args["todos"]
	if !ok {
		return nil
	}

	// Convert via JSON round-trip for type safety
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var todos []domain.TodoItem
	if err := json.Unmarshal(data, &todos); err != nil {
		return nil
	}
	return todos
}
