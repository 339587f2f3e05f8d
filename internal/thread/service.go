// Package thread implements the conversation thread state engine: an
// ordered, branchable message history tied to the Execution Service's
// checkpoint graph, reconciled against its incremental run streams.
package thread

import (
	"context"

	"github.com/shaman2009/lang-lens/internal/domain"
	"github.com/shaman2009/lang-lens/internal/graphclient"
)

// Service is the subset of the Execution Service the engine consumes.
// *graphclient.Client satisfies it; tests substitute recording fakes.
type Service interface {
	FetchHistory(ctx context.Context, threadID string) (*domain.ThreadState, error)
	SubmitStream(ctx context.Context, threadID string, req domain.SubmitRequest, handler graphclient.EventHandler) error
	Stop(ctx context.Context, threadID string) error
	SetBranch(ctx context.Context, threadID, branch string) (*domain.ThreadState, error)
}
