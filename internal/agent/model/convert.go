package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// ToSchema converts a transcript into Eino messages for the model. File parts
// never reach the model: only text parts survive, joined in order.
func ToSchema(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToSchema())
	}
	return out
}

// ToSchema converts a single message.
func (m Message) ToSchema() *schema.Message {
	sm := &schema.Message{
		Role:       schema.RoleType(m.Role),
		Content:    m.Content.PlainText(),
		ToolCallID: m.ToolCallID,
	}
	if len(m.ToolCalls) > 0 {
		sm.ToolCalls = make([]schema.ToolCall, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			sm.ToolCalls = append(sm.ToolCalls, schema.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
	}
	return sm
}

// FromSchema converts a model response into a transcript message.
func FromSchema(sm *schema.Message) Message {
	if sm == nil {
		return Message{Role: RoleAssistant}
	}
	m := Message{
		Role:       Role(sm.Role),
		Content:    TextContent(sm.Content),
		ToolCallID: sm.ToolCallID,
	}
	if m.Role == "" {
		m.Role = RoleAssistant
	}
	if len(sm.ToolCalls) > 0 {
		m.ToolCalls = make([]ToolCall, 0, len(sm.ToolCalls))
		for _, tc := range sm.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, ToolCall{
				ID:        strings.TrimSpace(tc.ID),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return m
}
