package mockserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// tokenDelay paces values frames so streaming is visible in a UI. Tests
// override it to zero.
var tokenDelay = 30 * time.Millisecond

// SetTokenDelay overrides the pacing between streamed frames.
func SetTokenDelay(d time.Duration) {
	tokenDelay = d
}

// StreamRun accepts a run submission and streams values frames over SSE
// until the canned assistant finishes, the run errors, or it is cancelled.
// A checkpoint anchor forks a sibling branch before the run starts.
// POST /v1/threads/:thread_id/runs/stream
func (s *Server) StreamRun(c echo.Context) error {
	threadID := c.Param("thread_id")
	var req domain.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request"})
	}
	if req.Messages == nil && req.Checkpoint.IsZero() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "nothing to run"})
	}

	if err := s.store.CreateThread(threadID, req.AssistantID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	_, branch, err := s.store.GetThread(threadID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// A checkpoint anchor means fork/edit/regenerate: replay the shared
	// prefix onto a fresh sibling branch and make it active.
	if !req.Checkpoint.IsZero() {
		fork, err := s.store.NextBranchName(threadID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if err := s.store.ForkBranch(threadID, branch, fork, req.Checkpoint); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if err := s.store.SetActiveBranch(threadID, fork); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		branch = fork
	}

	cancel := make(chan struct{})
	s.mu.Lock()
	if _, busy := s.runs[threadID]; busy {
		s.mu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{"error": "a run is already in flight"})
	}
	s.runs[threadID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.runs[threadID] == cancel {
			delete(s.runs, threadID)
		}
		s.mu.Unlock()
	}()

	sse := newSSEWriter(c.Response())
	if sse == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
	}

	if err := s.runTurn(threadID, branch, req, sse, cancel); err != nil {
		sse.sendEvent(string(domain.StreamEventError), domain.StreamErrorData{Code: "run_failed", Message: err.Error()})
		return nil
	}
	sse.sendEvent(string(domain.StreamEventDone), map[string]string{"thread_id": threadID})
	return nil
}

// runTurn appends the submitted messages, then generates and streams the
// assistant response token by token, persisting every increment so a
// cancelled run keeps its partial output.
func (s *Server) runTurn(threadID, branch string, req domain.SubmitRequest, sse *sseWriter, cancel <-chan struct{}) error {
	tail, err := s.branchTail(threadID, branch)
	if err != nil {
		return err
	}

	for _, msg := range req.Messages {
		tail, err = s.appendNext(threadID, branch, tail, msg)
		if err != nil {
			return err
		}
	}
	if err := s.sendState(threadID, sse); err != nil {
		return err
	}

	prompt := s.lastHumanText(threadID, branch)

	// A "todo:" prompt exercises the task-queue path: a todo-writing tool
	// call, its tool result, then a closing assistant message.
	if items, ok := parseTodoPrompt(prompt); ok {
		return s.runTodoTurn(threadID, branch, tail, items, sse, cancel)
	}

	reply := fmt.Sprintf("You said: %s", prompt)
	_, err = s.streamAssistant(threadID, branch, tail, reply, nil, sse, cancel)
	return err
}

// runTodoTurn emits the write_todos tool call, its result, and a closing
// assistant message.
func (s *Server) runTodoTurn(threadID, branch string, tail *storedMessage, items []domain.TodoItem, sse *sseWriter, cancel <-chan struct{}) error {
	todos := make([]any, 0, len(items))
	for _, item := range items {
		todos = append(todos, map[string]any{"id": item.ID, "content": item.Content, "status": string(item.Status)})
	}
	call := domain.ToolCall{
		ID:   uuid.New().String(),
		Name: "write_todos",
		Args: map[string]any{"todos": todos},
	}

	tail, err := s.appendNext(threadID, branch, tail, domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleAssistant,
		Content:   []domain.ContentPart{},
		ToolCalls: []domain.ToolCall{call},
	})
	if err != nil {
		return err
	}
	tail, err = s.appendNext(threadID, branch, tail, domain.Message{
		ID:         uuid.New().String(),
		Role:       domain.RoleTool,
		Content:    []domain.ContentPart{{Kind: domain.ContentKindText, Text: fmt.Sprintf("Updated %d todo(s)", len(items))}},
		ToolCallID: call.ID,
	})
	if err != nil {
		return err
	}
	if err := s.sendState(threadID, sse); err != nil {
		return err
	}

	reply := fmt.Sprintf("Queued %d task(s).", len(items))
	_, err = s.streamAssistant(threadID, branch, tail, reply, nil, sse, cancel)
	return err
}

// streamAssistant grows one assistant message word by word, persisting and
// emitting a values frame per token.
func (s *Server) streamAssistant(threadID, branch string, tail *storedMessage, text string, toolCalls []domain.ToolCall, sse *sseWriter, cancel <-chan struct{}) (*storedMessage, error) {
	msg := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleAssistant,
		Content:   []domain.ContentPart{{Kind: domain.ContentKindText, Text: ""}},
		ToolCalls: toolCalls,
	}
	position, parent := nextSlot(threadID, tail)
	sm := storedMessage{
		Message:          msg,
		Branch:           branch,
		Position:         position,
		Checkpoint:       domain.CheckpointRef(uuid.New().String()),
		ParentCheckpoint: parent,
	}

	words := strings.Fields(text)
	var buf strings.Builder
	for _, word := range words {
		select {
		case <-cancel:
			return &sm, nil
		case <-time.After(tokenDelay):
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(word)
		sm.Message.Content[0].Text = buf.String()
		if err := s.store.AppendMessage(threadID, sm); err != nil {
			return nil, err
		}
		if err := s.sendState(threadID, sse); err != nil {
			return nil, err
		}
	}
	return &sm, nil
}

// sendState emits the current active-branch state as a values frame.
func (s *Server) sendState(threadID string, sse *sseWriter) error {
	state, err := s.threadState(threadID)
	if err != nil {
		return err
	}
	return sse.sendEvent(string(domain.StreamEventValues), domain.StateUpdate{
		Messages: state.Messages,
		Metadata: state.Metadata,
	})
}

// appendNext persists a message at the tail of the branch with a freshly
// minted checkpoint chained to the previous one.
func (s *Server) appendNext(threadID, branch string, tail *storedMessage, msg domain.Message) (*storedMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	position, parent := nextSlot(threadID, tail)
	sm := storedMessage{
		Message:          msg,
		Branch:           branch,
		Position:         position,
		Checkpoint:       domain.CheckpointRef(uuid.New().String()),
		ParentCheckpoint: parent,
	}
	if err := s.store.AppendMessage(threadID, sm); err != nil {
		return nil, err
	}
	return &sm, nil
}

// branchTail returns the last message row of a branch, or nil when empty.
func (s *Server) branchTail(threadID, branch string) (*storedMessage, error) {
	msgs, err := s.store.BranchMessages(threadID, branch)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[len(msgs)-1], nil
}

func nextSlot(threadID string, tail *storedMessage) (position int, parent domain.CheckpointRef) {
	if tail == nil {
		return 0, rootCheckpoint(threadID)
	}
	return tail.Position + 1, tail.Checkpoint
}

// rootCheckpoint anchors a thread's first turn so it can be edited and
// forked like any later one.
func rootCheckpoint(threadID string) domain.CheckpointRef {
	return domain.CheckpointRef("root-" + threadID)
}

// lastHumanText returns the rendered text of the branch's last human
// message, used as the canned assistant's prompt.
func (s *Server) lastHumanText(threadID, branch string) string {
	msgs, err := s.store.BranchMessages(threadID, branch)
	if err != nil {
		return ""
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Message.Role == domain.RoleHuman {
			return msgs[i].Message.Text()
		}
	}
	return ""
}

// parseTodoPrompt recognizes "todo: a, b, c" prompts and builds the items.
func parseTodoPrompt(prompt string) ([]domain.TodoItem, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(prompt), "todo:")
	if !ok {
		return nil, false
	}
	var items []domain.TodoItem
	for i, part := range strings.Split(rest, ",") {
		content := strings.TrimSpace(part)
		if content == "" {
			continue
		}
		status := domain.TodoStatusPending
		if i == 0 {
			status = domain.TodoStatusInProgress
		}
		items = append(items, domain.TodoItem{
			ID:      fmt.Sprintf("%d", i+1),
			Content: content,
			Status:  status,
		})
	}
	return items, len(items) > 0
}
