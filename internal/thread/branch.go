package thread

import (
	"context"
)

// Direction selects which sibling branch to cycle to.
type Direction int

const (
	Next Direction = iota
	Previous
)

// BranchPosition returns the 1-indexed position of the message's branch
// among its siblings, for display as "i of N". n <= 1 means no alternate
// history exists at this point and branch controls must be hidden.
func (s *Stream) BranchPosition(messageID string) (i, n int) {
	meta, ok := s.MetadataOf(messageID)
	if !ok {
		return 1, 1
	}
	return indexOf(meta.Branch, meta.BranchOptions) + 1, max(len(meta.BranchOptions), 1)
}

// SwitchBranch cycles the active branch among the siblings recorded for a
// message and replaces the thread's message sequence wholesale with the
// target branch's state. A message with at most one branch option is a
// no-op. The navigator never mutates the sequence directly; the state it
// applies comes from the Execution Service.
func (s *Stream) SwitchBranch(ctx context.Context, messageID string, dir Direction) error {
	s.mu.RLock()
	if s.isLoading {
		s.mu.RUnlock()
		return ErrBusy
	}
	meta, ok := s.meta[messageID]
	s.mu.RUnlock()

	if !ok || len(meta.BranchOptions) <= 1 {
		return nil
	}

	cur := indexOf(meta.Branch, meta.BranchOptions)
	n := len(meta.BranchOptions)
	var target string
	switch dir {
	case Next:
		target = meta.BranchOptions[(cur+1)%n]
	case Previous:
		target = meta.BranchOptions[(cur-1+n)%n]
	}

	state, err := s.svc.SetBranch(ctx, s.threadID, target)
	if err != nil {
		return err
	}
	s.replaceState(state)
	return nil
}

func indexOf(v string, options []string) int {
	for i, o := range options {
		if o == v {
			return i
		}
	}
	return 0
}
