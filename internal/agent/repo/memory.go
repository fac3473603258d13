package repo

import (
	"context"
	"sync"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
)

// MemoryCheckpointRepository keeps states in process memory. States are
// copied on the way in and out, so callers never share a transcript slice.
type MemoryCheckpointRepository struct {
	mu     sync.RWMutex
	states map[string]*model.ConversationState
}

func NewMemoryCheckpointRepository() *MemoryCheckpointRepository {
	return &MemoryCheckpointRepository{states: make(map[string]*model.ConversationState)}
}

func (r *MemoryCheckpointRepository) Load(_ context.Context, threadID string) (*model.ConversationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[threadID]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (r *MemoryCheckpointRepository) Save(_ context.Context, threadID string, state *model.ConversationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[threadID] = state.Clone()
	return nil
}

func (r *MemoryCheckpointRepository) Delete(_ context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, threadID)
	return nil
}

var _ model.CheckpointRepository = (*MemoryCheckpointRepository)(nil)
