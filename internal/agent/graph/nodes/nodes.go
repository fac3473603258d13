package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/attachments"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/router"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
)

const (
	NodeAttachmentNormalizer = "AttachmentNormalizer"
	NodePromptComposer       = "PromptComposer"
	NodeModelInvoker         = "ModelInvoker"
	NodeToolDispatcher       = "ToolDispatcher"
	NodeFinalize             = "Finalize"
)

// NewAttachmentNormalizerPreHandler seeds the graph state from the turn input
func NewAttachmentNormalizerPreHandler() func(context.Context, model.TurnInput, *model.AppState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.AppState) (model.TurnInput, error) {
		s.ThreadID = in.ThreadID
		s.Conversation = in.State
		if s.Conversation == nil {
			s.Conversation = model.NewConversationState()
		}
		// Reset per-turn counters
		s.TurnHasDocument = false
		s.ModelCalls = 0
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewAttachmentNormalizerNode replaces PDF attachments of the incoming message with their text
func NewAttachmentNormalizerNode(n *attachments.Normalizer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.AttachmentUpdate, error) {
		return n.Normalize(ctx, in.Message), nil
	})
}

// NewAttachmentNormalizerPostHandler appends the normalized user message and merges the attachment update
func NewAttachmentNormalizerPostHandler() func(context.Context, model.AttachmentUpdate, *model.AppState) (model.AttachmentUpdate, error) {
	return func(ctx context.Context, out model.AttachmentUpdate, s *model.AppState) (model.AttachmentUpdate, error) {
		s.TurnHasDocument = out.HadDocument
		s.Conversation.Append(out.Message)
		s.Conversation.ApplyAttachmentUpdate(out.DocumentText, out.Failed)

		if out.HadDocument {
			logx.Debug().
				Str("thread_id", s.ThreadID).
				Str("node", NodeAttachmentNormalizer).
				Int("document_length", len(out.DocumentText)).
				Bool("extraction_failed", out.Failed).
				Msg("Attachments normalized")
		}
		return out, nil
	}
}

// NewPromptComposerNode injects the system instruction once per conversation and
// hands the transcript to the model.
func NewPromptComposerNode(basePrompt string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.AttachmentUpdate) ([]*schema.Message, error) {
		var msgs []*schema.Message
		err := compose.ProcessState(ctx, func(ctx context.Context, s *model.AppState) error {
			if err := prompts.ApplyToState(ctx, s.Conversation, basePrompt); err != nil {
				return fmt.Errorf("compose system prompt: %w", err)
			}
			msgs = model.ToSchema(s.Conversation.Messages)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return msgs, nil
	})
}

// NewModelInvokerPreHandler feeds the model the full transcript. Both entries
// (composer and dispatcher) land here, so the input is always rebuilt from state.
func NewModelInvokerPreHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, _ []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		logx.Debug().
			Str("thread_id", state.ThreadID).
			Int("messages", len(state.Conversation.Messages)).
			Int("model_call", state.ModelCalls+1).
			Msg("AI thinking...")
		return model.ToSchema(state.Conversation.Messages), nil
	}
}

// NewModelInvokerPostHandler normalizes tool call ids, accounts usage cost and
// appends the response to the transcript.
func NewModelInvokerPostHandler() func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("model returned no message")
		}
		state.ModelCalls++

		modelName, _ := out.Extra[ExtraModel].(string)
		if uc, ok := model.CostOf(modelName, out); ok {
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["usage_cost"] = uc.Extra()
			// Accumulate only total cost into state
			state.TotalCostUSD += uc.TotalCost
			out.Extra["usage_cost_total_usd"] = state.TotalCostUSD

			logx.Debug().
				Str("thread_id", state.ThreadID).
				Str("node", NodeModelInvoker).
				Str("model", modelName).
				Int("prompt_tokens", uc.PromptTokens).
				Int("completion_tokens", uc.CompletionTokens).
				Int("total_tokens", uc.TotalTokens).
				Float64("total_cost_usd", uc.TotalCost).
				Msg("LLM usage")
		}

		if n := ensureToolCallIDs(out, state); n > 0 {
			logx.Debug().Str("thread_id", state.ThreadID).Int("replaced", n).Msg("Synthesized tool call ids")
		}

		msg := model.FromSchema(out)
		msg.Role = model.RoleAssistant
		msg.Extra = out.Extra
		state.Conversation.Append(msg)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}
		return out, nil
	}
}

// NewTurnRouterCondition routes a model response to the tool dispatcher or to finalize
func NewTurnRouterCondition(maxIterations int) func(context.Context, *schema.Message) (string, error) {
	maxIterations = router.NormalizeMaxIterations(maxIterations)
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var (
			modelCalls int
			threadID   string
		)
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			modelCalls = state.ModelCalls
			threadID = state.ThreadID
			return nil
		}); err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		next, err := router.Route(input, modelCalls, maxIterations)
		if err != nil {
			logx.Warn().
				Str("thread_id", threadID).
				Int("model_calls", modelCalls).
				Int("max_iterations", maxIterations).
				Msg("Tool iteration limit exceeded")
			return "", err
		}

		if next == router.DispatchingTools {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolDispatcher")
			return NodeToolDispatcher, nil
		}
		logx.Debug().Msg("No tool calls - finalizing turn")
		return NodeFinalize, nil
	}
}

// NewToolDispatcherPreHandler logs the dispatch attempt
func NewToolDispatcherPreHandler() func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		logx.Debug().
			Str("thread_id", state.ThreadID).
			Int("tool_count", len(in.ToolCalls)).
			Msg("Tool execution attempt")
		return in, nil
	}
}

// NewToolDispatcherPostHandler appends the tool results to the transcript in call order
func NewToolDispatcherPostHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		for _, m := range out {
			if m == nil {
				continue
			}
			msg := model.FromSchema(m)
			msg.Role = model.RoleTool
			state.Conversation.Append(msg)
		}
		logx.Debug().Str("thread_id", state.ThreadID).Int("results", len(out)).Msg("Tool results recorded")
		return out, nil
	}
}

// NewFinalizeNode yields the conversation state at the end of the turn
func NewFinalizeNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*model.ConversationState, error) {
		var final *model.ConversationState
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			final = state.Conversation
			logx.Debug().
				Str("thread_id", state.ThreadID).
				Int("model_calls", state.ModelCalls).
				Float64("total_cost_usd", state.TotalCostUSD).
				Msg("Turn finished")
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return final, nil
	})
}
