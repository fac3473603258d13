package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/attachments"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/conversations"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/observers"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/router"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
	"github.com/Chative-core-poc-v1/docagent/pkg/metrics"
)

// Config holds everything needed to compose the full turn graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat
// models, the tool registry and the messages manager.
type Config struct {
	APIKey          string
	BaseURL         string
	ResponseModel   model.ResponseModelConfig
	DocumentModel   model.DocumentModelConfig
	Prompt          model.PromptConfig
	Conversation    model.ConversationConfig
	Search          model.SearchConfig
	CheckpointStore model.CheckpointRepository
	Extractor       attachments.Extractor
	Metrics         *metrics.Metrics
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Invoker       *nodes.Invoker
	Normalizer    *attachments.Normalizer
	Dispatcher    *tools.Dispatcher
	BasePrompt    string
	MaxIterations int
}

// GraphBuilder handles the construction of the turn graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *model.ConversationState]
}

// BuildRunner composes chat models, tools and the checkpoint store, builds the graph, and returns a Runner.
func BuildRunner(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.CheckpointStore == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		RespConfig: &cfg.ResponseModel,
		DocConfig:  &cfg.DocumentModel,
	})
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewRegistry(ctx, tools.GetQueryTools(cfg.Search)...)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to build tool registry")
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}
	if err := cms.BindToolsToResponseModel(ctx, registry.Infos()); err != nil {
		return nil, fmt.Errorf("failed to bind tools to response model: %w", err)
	}

	policy, err := tools.ParseUnknownPolicy(cfg.Conversation.Tools.UnknownPolicy)
	if err != nil {
		return nil, err
	}
	dispatcher, err := tools.NewDispatcher(ctx, tools.DispatcherConfig{
		Registry:      registry,
		UnknownPolicy: policy,
		Parallel:      cfg.Conversation.Tools.Parallel,
		Metrics:       cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	invoker, err := nodes.NewInvoker(cms.InvokerConfig(cfg.Metrics))
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Invoker:       invoker,
		Normalizer:    attachments.NewNormalizer(cfg.Extractor, cfg.Metrics),
		Dispatcher:    dispatcher,
		BasePrompt:    cfg.Prompt.BasePrompt,
		MaxIterations: cfg.Conversation.Tools.MaxIterations,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Strs("tools", registry.Names()).Msg("Turn graph built successfully")
	return NewRunner(runnable, conversations.NewMessagesManager(cfg.CheckpointStore), cfg.Metrics), nil
}

// BuildGraph constructs and returns the compiled turn graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *model.ConversationState], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Invoker == nil {
		return nil, fmt.Errorf("model invoker is nil")
	}
	if config.Normalizer == nil {
		return nil, fmt.Errorf("attachment normalizer is nil")
	}
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is nil")
	}

	// The router and the step budget must agree on the cap.
	cfg := *config
	cfg.MaxIterations = router.NormalizeMaxIterations(cfg.MaxIterations)

	builder := &GraphBuilder{
		config: &cfg,
		graph: compose.NewGraph[model.TurnInput, *model.ConversationState](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	steps := []struct {
		name string
		add  func() error
	}{
		{nodes.NodeAttachmentNormalizer, func() error {
			return b.graph.AddLambdaNode(nodes.NodeAttachmentNormalizer,
				nodes.NewAttachmentNormalizerNode(b.config.Normalizer),
				compose.WithStatePreHandler(nodes.NewAttachmentNormalizerPreHandler()),
				compose.WithStatePostHandler(nodes.NewAttachmentNormalizerPostHandler()),
			)
		}},
		{nodes.NodePromptComposer, func() error {
			return b.graph.AddLambdaNode(nodes.NodePromptComposer,
				nodes.NewPromptComposerNode(b.config.BasePrompt),
			)
		}},
		{nodes.NodeModelInvoker, func() error {
			return b.graph.AddChatModelNode(nodes.NodeModelInvoker,
				b.config.Invoker,
				compose.WithStatePreHandler(nodes.NewModelInvokerPreHandler()),
				compose.WithStatePostHandler(nodes.NewModelInvokerPostHandler()),
			)
		}},
		{nodes.NodeToolDispatcher, func() error {
			return b.graph.AddLambdaNode(nodes.NodeToolDispatcher,
				b.config.Dispatcher.Lambda(),
				compose.WithStatePreHandler(nodes.NewToolDispatcherPreHandler()),
				compose.WithStatePostHandler(nodes.NewToolDispatcherPostHandler()),
			)
		}},
		{nodes.NodeFinalize, func() error {
			return b.graph.AddLambdaNode(nodes.NodeFinalize, nodes.NewFinalizeNode())
		}},
	}

	for _, s := range steps {
		if err := s.add(); err != nil {
			logx.Error().Err(err).Str("node", s.name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.name, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeAttachmentNormalizer},
		{nodes.NodeAttachmentNormalizer, nodes.NodePromptComposer},
		{nodes.NodePromptComposer, nodes.NodeModelInvoker},
		{nodes.NodeToolDispatcher, nodes.NodeModelInvoker},
		{nodes.NodeFinalize, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewTurnRouterCondition(b.config.MaxIterations),
		map[string]bool{
			nodes.NodeToolDispatcher: true,
			nodes.NodeFinalize:       true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeModelInvoker, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.ConversationState], error) {
	// The iteration cap is enforced by the router; this step limit is only a backstop.
	maxSteps := 10 + b.config.MaxIterations*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// Runner executes one turn per call against the stored conversation of a thread.
type Runner struct {
	runnable compose.Runnable[model.TurnInput, *model.ConversationState]
	messages *conversations.MessagesManager
	metrics  *metrics.Metrics
}

func NewRunner(runnable compose.Runnable[model.TurnInput, *model.ConversationState], mm *conversations.MessagesManager, m *metrics.Metrics) *Runner {
	return &Runner{runnable: runnable, messages: mm, metrics: m}
}

// RunTurn appends msg to the thread, runs the pipeline until the model stops
// asking for tools, saves and returns the resulting state. Any failure leaves
// the stored state untouched and surfaces as a "turn failed" AppError.
func (r *Runner) RunTurn(ctx context.Context, threadID string, msg model.Message) (state *model.ConversationState, err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		r.metrics.ObserveTurn(outcome, time.Since(start))
	}()

	if strings.TrimSpace(threadID) == "" {
		return nil, errx.TurnFailed(errx.ErrThreadIDRequired)
	}
	if err := msg.Validate(); err != nil {
		return nil, errx.TurnFailed(err)
	}
	if msg.Role != model.RoleUser {
		return nil, errx.TurnFailed(fmt.Errorf("%w: turn input must be a user message, got %s", errx.ErrInvalidMessage, msg.Role))
	}

	unlock, err := r.messages.Lock(ctx, threadID)
	if err != nil {
		return nil, errx.TurnFailed(err)
	}
	defer unlock()

	current, err := r.messages.LoadState(ctx, threadID)
	if err != nil {
		return nil, errx.TurnFailed(err)
	}

	final, err := r.runnable.Invoke(ctx, model.TurnInput{
		ThreadID: threadID,
		State:    current,
		Message:  msg,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Turn failed")
		return nil, errx.TurnFailed(err)
	}
	if final == nil {
		return nil, errx.TurnFailed(fmt.Errorf("graph returned no state"))
	}

	if err := r.messages.SaveState(ctx, threadID, final); err != nil {
		return nil, errx.TurnFailed(err)
	}
	return final, nil
}

// ResetThread drops the stored conversation of threadID. It waits for any
// running turn on the same thread.
func (r *Runner) ResetThread(ctx context.Context, threadID string) error {
	unlock, err := r.messages.Lock(ctx, threadID)
	if err != nil {
		return err
	}
	defer unlock()
	return r.messages.ClearThread(ctx, threadID)
}
