package nodes

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
	"github.com/Chative-core-poc-v1/docagent/pkg/metrics"
)

func TestEnsureToolCallIDs(t *testing.T) {
	tests := []struct {
		name         string
		ids          []string
		want         []string
		wantReplaced int
	}{
		{name: "all present", ids: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "missing", ids: []string{"", " "}, want: []string{"call_1", "call_2"}, wantReplaced: 2},
		{name: "duplicate", ids: []string{"x", "x"}, want: []string{"x", "call_1"}, wantReplaced: 1},
		{name: "keeps provider id", ids: []string{"", "call_1"}, want: []string{"call_2", "call_1"}, wantReplaced: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &schema.Message{Role: schema.Assistant}
			for _, id := range tt.ids {
				msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{ID: id})
			}

			n := ensureToolCallIDs(msg, &model.AppState{})

			assert.Equal(t, tt.wantReplaced, n)
			got := make([]string, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				got = append(got, tc.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureToolCallIDsContinuesTurnSequence(t *testing.T) {
	state := &model.AppState{ToolCallIDSeq: 4}
	msg := &schema.Message{ToolCalls: []schema.ToolCall{{}}}

	ensureToolCallIDs(msg, state)

	assert.Equal(t, "call_5", msg.ToolCalls[0].ID)
	assert.Equal(t, 5, state.ToolCallIDSeq)
}

type stubModel struct {
	out *schema.Message
	err error
}

func (s *stubModel) Generate(context.Context, []*schema.Message, ...einomodel.Option) (*schema.Message, error) {
	return s.out, s.err
}

func (s *stubModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{s.out}), s.err
}

func TestInvokerOutsideGraphUsesResponseModel(t *testing.T) {
	m := metrics.New()
	out := &schema.Message{
		Role:    schema.Assistant,
		Content: "hi",
		ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{
			PromptTokens: 1_000_000, CompletionTokens: 0, TotalTokens: 1_000_000,
		}},
	}
	inv, err := NewInvoker(InvokerConfig{
		Response:     &stubModel{out: out},
		ResponseName: "gemini-2.5-flash",
		Document:     &stubModel{out: &schema.Message{Role: schema.Assistant, Content: "doc"}},
		DocumentName: "gemini-2.5-pro",
		Metrics:      m,
	})
	require.NoError(t, err)

	got, err := inv.Generate(context.Background(), []*schema.Message{schema.UserMessage("hello")})
	require.NoError(t, err)

	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, "gemini-2.5-flash", got.Extra[ExtraModel])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("gemini-2.5-flash", metrics.OutcomeOK)))
	assert.InDelta(t, 0.30, testutil.ToFloat64(m.ModelCostUSD.WithLabelValues("gemini-2.5-flash")), 1e-9)
}

func TestInvokerWrapsModelErrors(t *testing.T) {
	m := metrics.New()
	quota := errors.New("quota exceeded")
	inv, err := NewInvoker(InvokerConfig{Response: &stubModel{err: quota}, ResponseName: "x", Metrics: m})
	require.NoError(t, err)

	_, err = inv.Generate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, quota))
	assert.Equal(t, 502, errx.StatusOf(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("x", metrics.OutcomeError)))

	_, err = NewInvoker(InvokerConfig{})
	assert.Error(t, err)
}
