package thread

import (
	"strings"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// previousHumanIndex scans backward from position i for the nearest prior
// human message, returning -1 if none exists.
func previousHumanIndex(messages []domain.Message, i int) int {
	for j := i - 1; j >= 0; j-- {
		if messages[j].Role == domain.RoleHuman {
			return j
		}
	}
	return -1
}

// AssistantRunText aggregates the full text of an assistant response that
// may be split across multiple consecutive assistant messages (e.g.
// interleaved with tool calls): every assistant message after the
// preceding human message (exclusive) through the target (inclusive),
// blank-line-joined and trimmed. With no preceding human message it is
// the target's own rendered text. Used for copy-to-clipboard and for
// seeding downstream consumers of a whole response.
func (s *Stream) AssistantRunText(messageID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return assistantRunText(s.messages, messageID)
}

func assistantRunText(messages []domain.Message, messageID string) string {
	target := -1
	for i, m := range messages {
		if m.ID == messageID {
			target = i
			break
		}
	}
	if target < 0 {
		return ""
	}
	humanIdx := previousHumanIndex(messages, target)
	if humanIdx == -1 {
		return messages[target].Text()
	}

	var blocks []string
	for i := humanIdx + 1; i <= target; i++ {
		if messages[i].Role != domain.RoleAssistant {
			continue
		}
		if t := messages[i].Text(); t != "" {
			blocks = append(blocks, t)
		}
	}
	return strings.TrimSpace(strings.Join(blocks, "\n\n"))
}

// ToolResultFor finds the tool-result message correlated to a tool call,
// independent of arrival order. Tool results never render directly in the
// conversation view; they exist only for this join.
func (s *Stream) ToolResultFor(toolCallID string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.Role == domain.RoleTool && m.ToolCallID == toolCallID {
			return m, true
		}
	}
	return domain.Message{}, false
}
