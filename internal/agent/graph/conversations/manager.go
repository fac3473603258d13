package conversations

import (
	"context"
	"strings"
	"sync"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
)

// MessagesManager mediates between turns and the checkpoint store. It also
// serializes turns per thread: one in-flight turn per thread id, while
// different threads proceed independently.
type MessagesManager struct {
	checkpoints model.CheckpointRepository

	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	ch   chan struct{}
	refs int
}

func NewMessagesManager(checkpoints model.CheckpointRepository) *MessagesManager {
	return &MessagesManager{
		checkpoints: checkpoints,
		locks:       make(map[string]*threadLock),
	}
}

// Lock waits until no other turn holds threadID. The returned func releases it.
func (cm *MessagesManager) Lock(ctx context.Context, threadID string) (func(), error) {
	cm.mu.Lock()
	l, ok := cm.locks[threadID]
	if !ok {
		l = &threadLock{ch: make(chan struct{}, 1)}
		cm.locks[threadID] = l
	}
	l.refs++
	cm.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		cm.release(threadID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			cm.release(threadID, l)
		})
	}, nil
}

func (cm *MessagesManager) release(threadID string, l *threadLock) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(cm.locks, threadID)
	}
}

// LoadState returns a private copy of the stored state, or a fresh state for
// a new thread.
func (cm *MessagesManager) LoadState(ctx context.Context, threadID string) (*model.ConversationState, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, errx.ErrThreadIDRequired
	}
	state, err := cm.checkpoints.Load(ctx, threadID)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Error loading conversation state")
		return nil, errx.WrapStore(err)
	}
	if state == nil {
		logx.Debug().Str("thread_id", threadID).Msg("New conversation thread")
		return model.NewConversationState(), nil
	}
	return state.Clone(), nil
}

// SaveState persists the state reached at the end of a turn.
func (cm *MessagesManager) SaveState(ctx context.Context, threadID string, state *model.ConversationState) error {
	if err := cm.checkpoints.Save(ctx, threadID, state); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Error saving conversation state")
		return errx.WrapStore(err)
	}
	return nil
}

// ClearThread drops all stored state of threadID.
func (cm *MessagesManager) ClearThread(ctx context.Context, threadID string) error {
	if err := cm.checkpoints.Delete(ctx, threadID); err != nil {
		return errx.WrapStore(err)
	}
	return nil
}
