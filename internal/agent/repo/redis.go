package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
)

// Fields of the per-thread metadata hash.
const (
	fieldDocumentText     = "document_text"
	fieldExtractionFailed = "extraction_failed"
	fieldPromptComposed   = "prompt_composed"
)

// RedisCheckpointRepository keeps each thread as a list of JSON messages plus
// a metadata hash. Both keys share the TTL, refreshed on every save.
type RedisCheckpointRepository struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisCheckpointRepository(rdb redis.Cmdable, ttl time.Duration, prefix string) *RedisCheckpointRepository {
	return &RedisCheckpointRepository{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (r *RedisCheckpointRepository) messagesKey(threadID string) string {
	return r.key(threadID, "messages")
}

func (r *RedisCheckpointRepository) metaKey(threadID string) string {
	return r.key(threadID, "meta")
}

func (r *RedisCheckpointRepository) key(threadID, suffix string) string {
	if r.prefix == "" {
		return fmt.Sprintf("thread:%s:%s", threadID, suffix)
	}
	return fmt.Sprintf("%s:thread:%s:%s", r.prefix, threadID, suffix)
}

func (r *RedisCheckpointRepository) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	msgKey, metaKey := r.messagesKey(threadID), r.metaKey(threadID)

	rows, err := r.rdb.LRange(ctx, msgKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", msgKey).Msg("failed to load messages from redis")
		return nil, errx.WrapRedis(err)
	}
	meta, err := r.rdb.HGetAll(ctx, metaKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", metaKey).Msg("failed to load thread metadata from redis")
		return nil, errx.WrapRedis(err)
	}
	if len(rows) == 0 && len(meta) == 0 {
		return nil, nil
	}

	state := model.NewConversationState()
	for i, s := range rows {
		var m model.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		state.Messages = append(state.Messages, m)
	}
	state.AccumulatedDocumentText = meta[fieldDocumentText]
	state.AttachmentExtractionFailed, _ = strconv.ParseBool(meta[fieldExtractionFailed])
	state.PromptComposed, _ = strconv.ParseBool(meta[fieldPromptComposed])
	return state, nil
}

// Save replaces the stored thread atomically.
func (r *RedisCheckpointRepository) Save(ctx context.Context, threadID string, state *model.ConversationState) error {
	if state == nil {
		return fmt.Errorf("nil state for thread %s", threadID)
	}
	msgKey, metaKey := r.messagesKey(threadID), r.metaKey(threadID)

	rows := make([]any, 0, len(state.Messages))
	for i, m := range state.Messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to marshal message")
			return fmt.Errorf("marshal message at index %d: %w", i, err)
		}
		rows = append(rows, b)
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, msgKey, metaKey)
		if len(rows) > 0 {
			pipe.RPush(ctx, msgKey, rows...)
		}
		pipe.HSet(ctx, metaKey,
			fieldDocumentText, state.AccumulatedDocumentText,
			fieldExtractionFailed, strconv.FormatBool(state.AttachmentExtractionFailed),
			fieldPromptComposed, strconv.FormatBool(state.PromptComposed),
		)
		// extend TTL on touch
		if r.ttl > 0 {
			pipe.Expire(ctx, msgKey, r.ttl)
			pipe.Expire(ctx, metaKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", msgKey).Msg("failed to save thread to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCheckpointRepository) Delete(ctx context.Context, threadID string) error {
	msgKey, metaKey := r.messagesKey(threadID), r.metaKey(threadID)
	if err := r.rdb.Del(ctx, msgKey, metaKey).Err(); err != nil {
		logx.Error().Err(err).Str("key", msgKey).Msg("failed to delete thread from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.CheckpointRepository = (*RedisCheckpointRepository)(nil)
