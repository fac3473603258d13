package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
)

func TestPartsContentValidates(t *testing.T) {
	tests := []struct {
		name    string
		part    Part
		wantErr bool
	}{
		{name: "text", part: NewTextPart("hi")},
		{name: "pdf file", part: NewFilePart(MIMETypePDF, []byte("%PDF"), "cv.pdf")},
		{name: "file without payload struct", part: Part{Type: PartFile}, wantErr: true},
		{name: "file without mime", part: Part{Type: PartFile, File: &File{Data: []byte("x")}}, wantErr: true},
		{name: "text with file", part: Part{Type: PartText, Text: "a", File: &File{MIMEType: "x"}}, wantErr: true},
		{name: "unknown type", part: Part{Type: "image"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PartsContent(tt.part)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errx.ErrInvalidMessage))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestContentJSONRoundTripShapes(t *testing.T) {
	b, err := json.Marshal(UserMessage("Hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"Hello"}`, string(b))

	msg := Message{Role: RoleUser, Content: MustPartsContent(
		NewTextPart("see attached"),
		NewFilePart(MIMETypePDF, []byte("abc"), "cv.pdf"),
	)}
	b, err = json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	parts, ok := raw["content"].([]any)
	require.True(t, ok, "parts content must encode as an array")
	assert.Len(t, parts, 2)

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Content.IsParts())
	require.Len(t, back.Content.Parts(), 2)
	assert.Equal(t, []byte("abc"), back.Content.Parts()[1].File.Data)
	assert.Equal(t, "cv.pdf", back.Content.Parts()[1].File.Name())
}

func TestContentUnmarshalRejectsInvalidParts(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`[{"type":"file"}]`), &c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrInvalidMessage))
}

func TestPlainTextDropsFiles(t *testing.T) {
	c := MustPartsContent(
		NewTextPart("one"),
		NewFilePart("image/png", []byte{1}, "a.png"),
		NewTextPart("two"),
	)
	assert.Equal(t, "one\n\ntwo", c.PlainText())
	assert.True(t, c.HasFiles())
	assert.Equal(t, "plain", TextContent("plain").PlainText())
}

func TestNewFilePartFromBase64(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))

	p, err := NewFilePartFromBase64("", "data:application/pdf;base64,"+payload, "cv.pdf")
	require.NoError(t, err)
	assert.Equal(t, MIMETypePDF, p.File.MIMEType)
	assert.Equal(t, []byte("%PDF-1.4"), p.File.Data)
	assert.True(t, p.File.IsPDF())

	p, err = NewFilePartFromBase64(MIMETypePDF, payload, "raw.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), p.File.Data)

	_, err = NewFilePartFromBase64(MIMETypePDF, "%%%not-base64", "bad.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrInvalidMessage))
}

func TestFileNameFallbacks(t *testing.T) {
	assert.Equal(t, "cv.pdf", (&File{Filename: "cv.pdf"}).Name())
	assert.Equal(t, "meta.pdf", (&File{Metadata: map[string]string{"filename": "meta.pdf"}}).Name())
	assert.Equal(t, "unknown", (&File{}).Name())
	assert.True(t, (&File{MIMEType: "Application/PDF; charset=binary"}).IsPDF())
}

func TestMessageValidate(t *testing.T) {
	assert.NoError(t, UserMessage("x").Validate())
	assert.NoError(t, ToolMessage("c1", "{}").Validate())
	assert.Error(t, Message{Role: "robot"}.Validate())
	assert.Error(t, Message{Role: RoleTool, Content: TextContent("x")}.Validate())
	assert.Error(t, Message{Role: RoleUser, ToolCalls: []ToolCall{{ID: "a"}}}.Validate())
	assert.Error(t, AssistantMessage("", ToolCall{ID: "a"}, ToolCall{ID: "a"}).Validate())
}

func TestSchemaConversion(t *testing.T) {
	msg := AssistantMessage("thinking", ToolCall{ID: "c1", Name: "search", Arguments: `{"query":"x"}`})
	sm := msg.ToSchema()
	assert.Equal(t, schema.Assistant, sm.Role)
	require.Len(t, sm.ToolCalls, 1)
	assert.Equal(t, "c1", sm.ToolCalls[0].ID)
	assert.Equal(t, "search", sm.ToolCalls[0].Function.Name)

	back := FromSchema(sm)
	assert.Equal(t, msg.ToolCalls, back.ToolCalls)
	assert.Equal(t, "thinking", back.Content.Text())

	tool := ToolMessage("c1", "result").ToSchema()
	assert.Equal(t, schema.Tool, tool.Role)
	assert.Equal(t, "c1", tool.ToolCallID)
}

func TestConversationStateCloneAndUpdate(t *testing.T) {
	s := NewConversationState()
	s.Append(UserMessage("a"))

	cp := s.Clone()
	cp.Append(AssistantMessage("b"))
	assert.Len(t, s.Messages, 1)
	assert.Len(t, cp.Messages, 2)
	assert.Equal(t, RoleAssistant, cp.LastAssistant().Role)

	s.ApplyAttachmentUpdate("doc", true)
	assert.Equal(t, "doc", s.AccumulatedDocumentText)
	assert.True(t, s.AttachmentExtractionFailed)

	s.ApplyAttachmentUpdate("  ", false)
	assert.Equal(t, "doc", s.AccumulatedDocumentText, "empty write must not replace document text")
	assert.False(t, s.AttachmentExtractionFailed)
}
