package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
	"github.com/Chative-core-poc-v1/docagent/pkg/metrics"
)

// UnknownPolicy decides what happens to a call naming an unregistered tool.
type UnknownPolicy string

const (
	// UnknownError answers the call with an error result carrying its id.
	UnknownError UnknownPolicy = "error"
	// UnknownSkip drops the call without a result message.
	UnknownSkip UnknownPolicy = "skip"
)

// Outcome label for calls naming an unregistered tool.
const OutcomeUnknown = "unknown"

func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return UnknownError, nil
	case UnknownError, UnknownSkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown tool policy %q (want error or skip)", s)
	}
}

// UnknownToolResult is the content of the result answering a call to an
// unregistered tool.
func UnknownToolResult(name string) string {
	return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name)
}

type DispatcherConfig struct {
	Registry      *Registry
	UnknownPolicy UnknownPolicy
	// Parallel runs the calls of one message concurrently. Results keep call order.
	Parallel bool
	Metrics  *metrics.Metrics
}

// Dispatcher executes the tool calls of an assistant message and returns one
// tool message per call, in call order, each carrying the call's id.
type Dispatcher struct {
	registry *Registry
	policy   UnknownPolicy
	metrics  *metrics.Metrics
	node     *compose.ToolsNode
}

func NewDispatcher(ctx context.Context, cfg DispatcherConfig) (*Dispatcher, error) {
	policy := cfg.UnknownPolicy
	if policy == "" {
		policy = UnknownError
	}
	if _, err := ParseUnknownPolicy(string(policy)); err != nil {
		return nil, err
	}

	d := &Dispatcher{registry: cfg.Registry, policy: policy, metrics: cfg.Metrics}

	names := cfg.Registry.Names()
	ts := make([]tool.BaseTool, 0, len(names))
	for _, name := range names {
		t, _ := cfg.Registry.Lookup(name)
		ts = append(ts, &instrumentedTool{InvokableTool: t, name: name, metrics: cfg.Metrics})
	}

	node, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               ts,
		ExecuteSequentially: !cfg.Parallel,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls (e.g., empty name)
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			d.metrics.ObserveToolCall(name, OutcomeUnknown)
			return UnknownToolResult(name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return normalizeArguments(name, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}
	d.node = node
	return d, nil
}

// Lambda is the dispatcher as a graph node. The tools node only runs when a
// call survives the unknown-tool policy; otherwise the node yields no results
// and the turn goes back to the model.
func (d *Dispatcher) Lambda() *compose.Lambda {
	return compose.InvokableLambda(d.Dispatch)
}

// Prepare applies the unknown-tool policy to msg. Under the skip policy the
// returned copy holds only the calls naming registered tools; msg itself is
// never modified.
func (d *Dispatcher) Prepare(msg *schema.Message) *schema.Message {
	if msg == nil || d.policy != UnknownSkip || len(msg.ToolCalls) == 0 {
		return msg
	}

	kept := make([]schema.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		if _, ok := d.registry.Lookup(tc.Function.Name); !ok {
			logx.Warn().
				Str("tool_name", tc.Function.Name).
				Str("tool_call_id", tc.ID).
				Msg("Skipping call to unknown tool")
			d.metrics.ObserveToolCall(tc.Function.Name, OutcomeUnknown)
			continue
		}
		kept = append(kept, tc)
	}
	if len(kept) == len(msg.ToolCalls) {
		return msg
	}
	cp := *msg
	cp.ToolCalls = kept
	return &cp
}

// Dispatch applies the unknown-tool policy and runs the remaining calls. A
// message left without tool calls yields no results.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *schema.Message) ([]*schema.Message, error) {
	msg = d.Prepare(msg)
	if msg == nil || len(msg.ToolCalls) == 0 {
		return nil, nil
	}
	return d.node.Invoke(ctx, msg)
}

// instrumentedTool records the outcome of each call and tags failures with
// the tool name.
type instrumentedTool struct {
	tool.InvokableTool
	name    string
	metrics *metrics.Metrics
}

func (t *instrumentedTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	out, err := t.InvokableTool.InvokableRun(ctx, argumentsInJSON, opts...)
	if err != nil {
		t.metrics.ObserveToolCall(t.name, metrics.OutcomeError)
		logx.Error().Err(err).Str("tool_name", t.name).Msg("Tool execution failed")
		return "", errx.WrapTool(t.name, err)
	}
	t.metrics.ObserveToolCall(t.name, metrics.OutcomeOK)
	return out, nil
}

// normalizeArguments sanitizes the raw JSON arguments of a call. It never
// fails: arguments that are not a JSON object are passed through unchanged.
func normalizeArguments(name, arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		return "{}"
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		// keep original if not JSON
		return arguments
	}

	switch name {
	case ToolWebSearch:
		// query: string (required)
		if v, ok := m["query"]; ok {
			switch vv := v.(type) {
			case string:
				m["query"] = strings.TrimSpace(vv)
			default:
				m["query"] = strings.TrimSpace(fmt.Sprint(v))
			}
		}
		// topic: string (optional)
		if v, ok := m["topic"]; ok {
			switch vv := v.(type) {
			case string:
				m["topic"] = strings.ToLower(strings.TrimSpace(vv))
			default:
				delete(m, "topic")
			}
		}
		// max_results: number (optional, max 10)
		if v, ok := m["max_results"]; ok {
			switch vv := v.(type) {
			case float64:
				// JSON numbers decode as float64
				m["max_results"] = clampInt(int(vv), 1, maxSearchResults)
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
					m["max_results"] = clampInt(n, 1, maxSearchResults)
				} else {
					delete(m, "max_results")
				}
			default:
				delete(m, "max_results")
			}
		}
	default:
		return arguments
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
