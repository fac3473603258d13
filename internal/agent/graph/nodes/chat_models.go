package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
	"github.com/Chative-core-poc-v1/docagent/pkg/metrics"
)

// ExtraModel is the Extra key naming the model that produced a response.
const ExtraModel = "model"

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey     string
	BaseURL    string
	RespConfig *model.ResponseModelConfig
	// DocConfig is optional; an empty Model disables the document model.
	DocConfig *model.DocumentModelConfig
}

// ChatModels holds the tool-calling response model and the optional
// document model used for turns that carry a PDF.
type ChatModels struct {
	Response          *gemini.ChatModel
	Document          *gemini.ChatModel
	ResponseModelName string
	DocumentModelName string
}

// NewChatModels creates the Response chat model and, when configured, the Document chat model
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.RespConfig == nil {
		return nil, fmt.Errorf("response model config is nil")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModelResponse, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RespConfig.Model,
		Temperature: &config.RespConfig.Temperature,
		MaxTokens:   &config.RespConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Response model")
		return nil, fmt.Errorf("error creating Response model: %w", err)
	}

	cms := &ChatModels{
		Response:          chatModelResponse,
		ResponseModelName: config.RespConfig.Model,
	}

	if config.DocConfig == nil || config.DocConfig.Model == "" {
		return cms, nil
	}

	// The document model reasons over long resumes; it is never given tools.
	chatModelDocument, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.DocConfig.Model,
		Temperature: &config.DocConfig.Temperature,
		MaxTokens:   &config.DocConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(config.DocConfig.ThinkingBudget),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Document model")
		return nil, fmt.Errorf("error creating Document model: %w", err)
	}
	cms.Document = chatModelDocument
	cms.DocumentModelName = config.DocConfig.Model
	return cms, nil
}

// BindToolsToResponseModel binds tools to the response chat model
func (cm *ChatModels) BindToolsToResponseModel(ctx context.Context, tools []*schema.ToolInfo) error {
	if len(tools) == 0 {
		logx.Debug().Msg("No tools to bind to response model")
		return nil
	}
	err := cm.Response.BindTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to response model")
	return nil
}

// InvokerConfig returns the invoker wiring for these models.
func (cm *ChatModels) InvokerConfig(m *metrics.Metrics) InvokerConfig {
	cfg := InvokerConfig{
		Response:     cm.Response,
		ResponseName: cm.ResponseModelName,
		Metrics:      m,
	}
	if cm.Document != nil {
		cfg.Document = cm.Document
		cfg.DocumentName = cm.DocumentModelName
	}
	return cfg
}

type InvokerConfig struct {
	Response     einomodel.BaseChatModel
	ResponseName string
	// Document is optional.
	Document     einomodel.BaseChatModel
	DocumentName string
	Metrics      *metrics.Metrics
}

// Invoker is the chat model of the graph. It answers with the document model
// when the turn's user message carried a PDF and one is configured, and with
// the response model otherwise.
type Invoker struct {
	cfg InvokerConfig
}

func NewInvoker(cfg InvokerConfig) (*Invoker, error) {
	if cfg.Response == nil {
		return nil, fmt.Errorf("response chat model is nil")
	}
	return &Invoker{cfg: cfg}, nil
}

// IsCallbacksEnabled reports whether the wrapped models emit their own
// callbacks, so the graph does not report every call twice.
func (i *Invoker) IsCallbacksEnabled() bool {
	return components.IsCallbacksEnabled(i.cfg.Response)
}

func (i *Invoker) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	cm, name := i.pick(ctx)

	out, err := cm.Generate(ctx, input, opts...)
	if err != nil {
		i.cfg.Metrics.ObserveModelCall(name, metrics.OutcomeError, 0)
		logx.Error().Err(err).Str("model", name).Msg("Model invocation failed")
		return nil, errx.WrapModel(err)
	}
	if out == nil {
		i.cfg.Metrics.ObserveModelCall(name, metrics.OutcomeError, 0)
		return nil, errx.WrapModel(fmt.Errorf("model %s returned no message", name))
	}

	var cost float64
	if uc, ok := model.CostOf(name, out); ok {
		cost = uc.TotalCost
	}
	i.cfg.Metrics.ObserveModelCall(name, metrics.OutcomeOK, cost)

	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra[ExtraModel] = name
	return out, nil
}

func (i *Invoker) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	cm, name := i.pick(ctx)
	sr, err := cm.Stream(ctx, input, opts...)
	if err != nil {
		i.cfg.Metrics.ObserveModelCall(name, metrics.OutcomeError, 0)
		return nil, errx.WrapModel(err)
	}
	i.cfg.Metrics.ObserveModelCall(name, metrics.OutcomeOK, 0)
	return sr, nil
}

// pick reads the turn's document flag from graph state. Outside a graph the
// response model is used.
func (i *Invoker) pick(ctx context.Context) (einomodel.BaseChatModel, string) {
	if i.cfg.Document == nil {
		return i.cfg.Response, i.cfg.ResponseName
	}
	var hasDoc bool
	_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		hasDoc = state.TurnHasDocument
		return nil
	})
	if hasDoc {
		logx.Debug().Str("model", i.cfg.DocumentName).Msg("Using document model for PDF turn")
		return i.cfg.Document, i.cfg.DocumentName
	}
	return i.cfg.Response, i.cfg.ResponseName
}

var _ einomodel.BaseChatModel = (*Invoker)(nil)
