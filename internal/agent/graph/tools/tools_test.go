package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
	"github.com/Chative-core-poc-v1/docagent/pkg/metrics"
	"github.com/Chative-core-poc-v1/docagent/pkg/tavily"
)

// recordingTool answers every call with fn and remembers the raw arguments.
type recordingTool struct {
	name string
	fn   func(args string) (string, error)

	mu   sync.Mutex
	args []string
}

func (t *recordingTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: t.name, Desc: "test tool"}, nil
}

func (t *recordingTool) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	t.mu.Lock()
	t.args = append(t.args, args)
	t.mu.Unlock()
	return t.fn(args)
}

func echoTool(name string) *recordingTool {
	return &recordingTool{name: name, fn: func(args string) (string, error) {
		return name + ":" + args, nil
	}}
}

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func assistant(calls ...schema.ToolCall) *schema.Message {
	return &schema.Message{Role: schema.Assistant, ToolCalls: calls}
}

func newDispatcher(t *testing.T, cfg DispatcherConfig, ts ...tool.InvokableTool) *Dispatcher {
	t.Helper()
	reg, err := NewRegistry(context.Background(), ts...)
	require.NoError(t, err)
	cfg.Registry = reg
	d, err := NewDispatcher(context.Background(), cfg)
	require.NoError(t, err)
	return d
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	reg, err := NewRegistry(ctx, echoTool("b"), echoTool("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, 2, reg.Len())

	infos := reg.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[0].Name)

	_, ok := reg.Lookup("a")
	assert.True(t, ok)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	_, err = NewRegistry(ctx, echoTool("a"), echoTool("a"))
	assert.Error(t, err)
	_, err = NewRegistry(ctx, echoTool(" "))
	assert.Error(t, err)
	_, err = NewRegistry(ctx, echoTool(" search "))
	assert.Error(t, err)

	var nilReg *Registry
	_, ok = nilReg.Lookup("a")
	assert.False(t, ok)
}

func TestParseUnknownPolicy(t *testing.T) {
	p, err := ParseUnknownPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UnknownError, p)

	p, err = ParseUnknownPolicy(" SKIP ")
	require.NoError(t, err)
	assert.Equal(t, UnknownSkip, p)

	_, err = ParseUnknownPolicy("drop")
	assert.Error(t, err)
}

func TestDispatchKeepsOrderAndIDs(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			slow := &recordingTool{name: "slow", fn: func(string) (string, error) {
				time.Sleep(20 * time.Millisecond)
				return "slow-done", nil
			}}
			d := newDispatcher(t, DispatcherConfig{Parallel: parallel}, slow, echoTool("fast"))

			out, err := d.Dispatch(context.Background(), assistant(
				call("c1", "slow", `{}`),
				call("c2", "fast", `{"q":1}`),
				call("c3", "slow", `{}`),
			))
			require.NoError(t, err)

			require.Len(t, out, 3)
			for i, want := range []string{"c1", "c2", "c3"} {
				assert.Equal(t, schema.Tool, out[i].Role)
				assert.Equal(t, want, out[i].ToolCallID)
			}
			assert.Equal(t, "slow-done", out[0].Content)
			assert.Equal(t, `fast:{"q":1}`, out[1].Content)
		})
	}
}

func TestDispatchNoToolCalls(t *testing.T) {
	d := newDispatcher(t, DispatcherConfig{}, echoTool("search"))

	out, err := d.Dispatch(context.Background(), &schema.Message{Role: schema.Assistant, Content: "hi"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDispatchUnknownToolReturnsErrorResult(t *testing.T) {
	m := metrics.New()
	d := newDispatcher(t, DispatcherConfig{Metrics: m}, echoTool("search"))

	out, err := d.Dispatch(context.Background(), assistant(
		call("c1", "nonexistent", `{}`),
		call("c2", "search", `{}`),
	))
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "c1", out[0].ToolCallID)
	assert.JSONEq(t, `{"error":"unknown_tool","name":"nonexistent","note":"ignored"}`, out[0].Content)
	assert.Equal(t, "c2", out[1].ToolCallID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("nonexistent", OutcomeUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("search", metrics.OutcomeOK)))
}

func TestDispatchSkipPolicyDropsUnknownCalls(t *testing.T) {
	d := newDispatcher(t, DispatcherConfig{UnknownPolicy: UnknownSkip}, echoTool("search"))
	msg := assistant(call("c1", "nonexistent", `{}`), call("c2", "search", `{}`))

	out, err := d.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "c2", out[0].ToolCallID)
	assert.Len(t, msg.ToolCalls, 2, "input message must not be modified")

	out, err = d.Dispatch(context.Background(), assistant(call("c1", "nonexistent", `{}`)))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDispatchToolErrorPropagates(t *testing.T) {
	m := metrics.New()
	boom := errors.New("backend down")
	failing := &recordingTool{name: "search", fn: func(string) (string, error) { return "", boom }}
	d := newDispatcher(t, DispatcherConfig{Metrics: m}, failing)

	_, err := d.Dispatch(context.Background(), assistant(call("c1", "search", `{}`)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	var app *errx.AppError
	require.True(t, errors.As(err, &app))
	assert.Equal(t, errx.ToolErrorMessage, app.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("search", metrics.OutcomeError)))
}

func TestDispatchEmptyArgumentsBecomeEmptyObject(t *testing.T) {
	rec := echoTool("search")
	d := newDispatcher(t, DispatcherConfig{}, rec)

	_, err := d.Dispatch(context.Background(), assistant(call("c1", "search", "")))
	require.NoError(t, err)
	assert.Equal(t, []string{"{}"}, rec.args)
}

func TestNormalizeArguments(t *testing.T) {
	tests := []struct {
		name string
		tool string
		in   string
		want string
	}{
		{name: "empty", tool: ToolWebSearch, in: "  ", want: `{}`},
		{name: "not json", tool: ToolWebSearch, in: "query", want: "query"},
		{name: "other tool untouched", tool: "other", in: `{"query":"  x  "}`, want: `{"query":"  x  "}`},
		{name: "trim query", tool: ToolWebSearch, in: `{"query":"  go jobs "}`, want: `{"query":"go jobs"}`},
		{name: "coerce query", tool: ToolWebSearch, in: `{"query":42}`, want: `{"query":"42"}`},
		{name: "clamp high", tool: ToolWebSearch, in: `{"query":"x","max_results":50}`, want: `{"max_results":10,"query":"x"}`},
		{name: "clamp low", tool: ToolWebSearch, in: `{"query":"x","max_results":0}`, want: `{"max_results":1,"query":"x"}`},
		{name: "string number", tool: ToolWebSearch, in: `{"query":"x","max_results":" 4 "}`, want: `{"max_results":4,"query":"x"}`},
		{name: "bad number dropped", tool: ToolWebSearch, in: `{"query":"x","max_results":"many"}`, want: `{"query":"x"}`},
		{name: "bad topic dropped", tool: ToolWebSearch, in: `{"query":"x","topic":7}`, want: `{"query":"x"}`},
		{name: "topic lowered", tool: ToolWebSearch, in: `{"query":"x","topic":" News "}`, want: `{"query":"x","topic":"news"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeArguments(tt.tool, tt.in)
			if json.Valid([]byte(tt.want)) {
				assert.JSONEq(t, tt.want, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

type fakeSearcher struct {
	got  tavily.Request
	resp *tavily.Response
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, r tavily.Request) (*tavily.Response, error) {
	f.got = r
	return f.resp, f.err
}

func TestWebSearchTool(t *testing.T) {
	ctx := context.Background()
	s := &fakeSearcher{resp: &tavily.Response{Results: []tavily.Result{{Title: "Go", URL: "https://go.dev", Content: "The Go language"}}}}
	st := NewWebSearchTool(s)

	info, err := st.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, ToolWebSearch, info.Name)

	out, err := st.InvokableRun(ctx, `{"query":" golang ","max_results":99}`)
	require.NoError(t, err)
	assert.Equal(t, tavily.Request{Query: "golang", MaxResults: maxSearchResults}, s.got)

	var decoded WebSearchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "golang", decoded.Query)
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "https://go.dev", decoded.Results[0].URL)

	_, err = st.InvokableRun(ctx, `{"query":"  "}`)
	assert.Error(t, err)

	s.err = errors.New("quota")
	_, err = st.InvokableRun(ctx, `{"query":"x"}`)
	assert.Error(t, err)
}

func TestGetQueryTools(t *testing.T) {
	assert.Empty(t, GetQueryTools(model.SearchConfig{APIKey: ""}))
	ts := GetQueryTools(model.SearchConfig{APIKey: "key"})
	require.Len(t, ts, 1)
	info, err := ts[0].Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ToolWebSearch, info.Name)
}
