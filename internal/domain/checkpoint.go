package domain

// CheckpointRef is an opaque identifier minted by the Execution Service for
// one point in its persisted execution graph. It is never parsed locally,
// only compared for equality and passed back verbatim.
type CheckpointRef string

// IsZero reports whether the ref is absent.
func (r CheckpointRef) IsZero() bool {
	return r == ""
}

// DefaultBranch is the well-known branch every thread starts on.
const DefaultBranch = "main"

// CheckpointMetadata records, per message, where in the checkpoint graph
// that message became visible. Supplied by the Execution Service, never
// computed locally.
type CheckpointMetadata struct {
	Checkpoint       CheckpointRef `json:"checkpoint"`
	ParentCheckpoint CheckpointRef `json:"parent_checkpoint,omitempty"`
	Branch           string        `json:"branch"`
	BranchOptions    []string      `json:"branch_options"`
}

// HasSiblings reports whether an alternate history exists at this message.
func (m CheckpointMetadata) HasSiblings() bool {
	return len(m.BranchOptions) > 1
}
