package thread

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// StartEdit enters editing mode for a human message, seeding the edit
// buffer from its rendered text. Exactly one edit session may be active
// per thread; starting a new one implicitly cancels any other.
func (s *Stream) StartEdit(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isLoading {
		return ErrBusy
	}
	msg, ok := s.findMessage(messageID)
	if !ok {
		return fmt.Errorf("unknown message %s", messageID)
	}
	if msg.Role != domain.RoleHuman {
		return fmt.Errorf("only human messages can be edited")
	}
	s.editingID = messageID
	s.editBuffer = msg.Text()
	return nil
}

// EditBuffer returns the active edit session's buffer, if any.
func (s *Stream) EditBuffer() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editBuffer, s.editingID != ""
}

// SetEditBuffer replaces the text of the active edit session.
func (s *Stream) SetEditBuffer(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editingID != "" {
		s.editBuffer = text
	}
}

// CancelEdit discards the edit session without issuing any request.
func (s *Stream) CancelEdit() {
	s.mu.Lock()
	s.editingID = ""
	s.editBuffer = ""
	s.mu.Unlock()
}

// ConfirmEdit submits the edited text as a new human message anchored at
// the original message's parent checkpoint. This creates a sibling branch
// sharing the same parent; the original message is not deleted or mutated.
// A message with no parent checkpoint cannot be forked: the edit is
// discarded without a submission.
func (s *Stream) ConfirmEdit(ctx context.Context) error {
	s.mu.Lock()
	id, text := s.editingID, s.editBuffer
	s.editingID = ""
	s.editBuffer = ""
	if id == "" {
		s.mu.Unlock()
		return nil
	}
	meta, ok := s.meta[id]
	s.mu.Unlock()

	if !ok || meta.ParentCheckpoint.IsZero() {
		log.Printf("thread %s: edit of %s ignored: no parent checkpoint to fork from", s.threadID, id)
		return nil
	}

	msg := domain.HumanMessage(uuid.New().String(), text)
	return s.run(ctx, domain.SubmitRequest{
		AssistantID:     s.assistantID,
		Messages:        []domain.Message{msg},
		Checkpoint:      meta.ParentCheckpoint,
		StreamSubgraphs: true,
		StreamResumable: true,
	})
}

// CanRegenerate reports whether the assistant message may be regenerated:
// it must be the last message of the current run, i.e. the final message
// or one immediately followed by a human message.
func (s *Stream) CanRegenerate(messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.isLoading {
		return false
	}
	i, ok := s.findIndex(messageID)
	if !ok || s.messages[i].Role != domain.RoleAssistant {
		return false
	}
	if i == len(s.messages)-1 {
		return true
	}
	return s.messages[i+1].Role == domain.RoleHuman
}

// Regenerate resubmits an empty turn anchored at the checkpoint of the
// human message preceding the target assistant message, instructing the
// Execution Service to recompute the response from that exact point. This
// forks a branch at the human message's checkpoint, sibling to the
// previously generated response. With no preceding human message or no
// checkpoint there is nothing to fork from and no request is issued.
func (s *Stream) Regenerate(ctx context.Context, messageID string) error {
	s.mu.RLock()
	if s.isLoading {
		s.mu.RUnlock()
		return ErrBusy
	}
	i, ok := s.findIndex(messageID)
	if !ok || s.messages[i].Role != domain.RoleAssistant {
		s.mu.RUnlock()
		return fmt.Errorf("only assistant messages can be regenerated")
	}
	humanIdx := previousHumanIndex(s.messages, i)
	var checkpoint domain.CheckpointRef
	if humanIdx >= 0 {
		checkpoint = s.meta[s.messages[humanIdx].ID].Checkpoint
	}
	s.mu.RUnlock()

	if humanIdx < 0 {
		log.Printf("thread %s: regenerate of %s ignored: no preceding human message", s.threadID, messageID)
		return nil
	}
	if checkpoint.IsZero() {
		log.Printf("thread %s: regenerate of %s ignored: no checkpoint on preceding human message", s.threadID, messageID)
		return nil
	}

	return s.run(ctx, domain.SubmitRequest{
		AssistantID:     s.assistantID,
		Checkpoint:      checkpoint,
		StreamSubgraphs: true,
		StreamResumable: true,
	})
}

// findMessage looks a message up by id. Callers hold s.mu.
func (s *Stream) findMessage(id string) (domain.Message, bool) {
	if i, ok := s.findIndex(id); ok {
		return s.messages[i], true
	}
	return domain.Message{}, false
}

// findIndex returns the position of a message id. Callers hold s.mu.
func (s *Stream) findIndex(id string) (int, bool) {
	for i, m := range s.messages {
		if m.ID == id {
			return i, true
		}
	}
	return 0, false
}
