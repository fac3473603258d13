package model

import (
	"context"
)

type CheckpointRepository interface {
	// Load returns the stored state for threadID, or nil when the thread is new.
	Load(ctx context.Context, threadID string) (*ConversationState, error)

	// Save replaces the stored state for threadID.
	Save(ctx context.Context, threadID string, state *ConversationState) error

	// Delete removes all state for threadID. Deleting an unknown thread is not an error.
	Delete(ctx context.Context, threadID string) error
}
