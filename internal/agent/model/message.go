package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// PartType tags the variant held by a Part.
type PartType string

const (
	PartText PartType = "text"
	PartFile PartType = "file"
)

// MIMETypePDF is the only attachment type the normalizer extracts.
const MIMETypePDF = "application/pdf"

// File is an attachment carried inline in a message.
type File struct {
	MIMEType string            `json:"mime_type"`
	Data     []byte            `json:"data"`
	Filename string            `json:"filename,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Name returns the filename, falling back to metadata and then "unknown".
func (f *File) Name() string {
	if f == nil {
		return "unknown"
	}
	if name := strings.TrimSpace(f.Filename); name != "" {
		return name
	}
	if name := strings.TrimSpace(f.Metadata["filename"]); name != "" {
		return name
	}
	return "unknown"
}

// IsPDF reports whether the attachment is a PDF document.
func (f *File) IsPDF() bool {
	if f == nil {
		return false
	}
	mt := strings.ToLower(strings.TrimSpace(f.MIMEType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == MIMETypePDF
}

// Part is one element of a multi-part message. Exactly one variant is set,
// selected by Type.
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	File *File    `json:"file,omitempty"`
}

// NewTextPart returns a text part.
func NewTextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// NewFilePart returns a file part holding raw bytes.
func NewFilePart(mimeType string, data []byte, filename string) Part {
	return Part{Type: PartFile, File: &File{MIMEType: mimeType, Data: data, Filename: filename}}
}

// NewFilePartFromBase64 decodes a base64 payload, optionally given as a data URL
// ("data:application/pdf;base64,...."), into a file part. The MIME type embedded
// in a data URL wins over mimeType when the latter is empty.
func NewFilePartFromBase64(mimeType, payload, filename string) (Part, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok {
			return Part{}, fmt.Errorf("%w: malformed data url", errx.ErrInvalidMessage)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Part{}, fmt.Errorf("%w: decode attachment %q: %v", errx.ErrInvalidMessage, filename, err)
	}
	return NewFilePart(mimeType, data, filename), nil
}

// Validate checks that the part holds exactly the variant named by Type.
func (p Part) Validate() error {
	switch p.Type {
	case PartText:
		if p.File != nil {
			return fmt.Errorf("%w: text part carries a file", errx.ErrInvalidMessage)
		}
	case PartFile:
		if p.File == nil {
			return fmt.Errorf("%w: file part without file", errx.ErrInvalidMessage)
		}
		if p.Text != "" {
			return fmt.Errorf("%w: file part carries text", errx.ErrInvalidMessage)
		}
		if strings.TrimSpace(p.File.MIMEType) == "" {
			return fmt.Errorf("%w: file part %q without mime type", errx.ErrInvalidMessage, p.File.Name())
		}
	default:
		return fmt.Errorf("%w: unknown part type %q", errx.ErrInvalidMessage, p.Type)
	}
	return nil
}

// Content is either plain text or an ordered list of parts.
type Content struct {
	text  string
	parts []Part
	multi bool
}

// TextContent returns plain text content.
func TextContent(text string) Content {
	return Content{text: text}
}

// PartsContent returns multi-part content after validating every part.
func PartsContent(parts ...Part) (Content, error) {
	for i, p := range parts {
		if err := p.Validate(); err != nil {
			return Content{}, fmt.Errorf("part %d: %w", i, err)
		}
	}
	cp := make([]Part, len(parts))
	copy(cp, parts)
	return Content{parts: cp, multi: true}, nil
}

// MustPartsContent is PartsContent for literals known to be valid.
func MustPartsContent(parts ...Part) Content {
	c, err := PartsContent(parts...)
	if err != nil {
		panic(err)
	}
	return c
}

// IsParts reports whether the content is the multi-part variant.
func (c Content) IsParts() bool { return c.multi }

// Text returns the plain text variant; empty for multi-part content.
func (c Content) Text() string { return c.text }

// Parts returns a copy of the parts; nil for plain text content.
func (c Content) Parts() []Part {
	if !c.multi {
		return nil
	}
	cp := make([]Part, len(c.parts))
	copy(cp, c.parts)
	return cp
}

// HasFiles reports whether any part is a file attachment.
func (c Content) HasFiles() bool {
	for _, p := range c.parts {
		if p.Type == PartFile {
			return true
		}
	}
	return false
}

// PlainText flattens the content to text. File parts are dropped and text
// parts are joined with blank lines.
func (c Content) PlainText() string {
	if !c.multi {
		return c.text
	}
	texts := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// MarshalJSON encodes plain text as a JSON string and parts as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.multi {
		return json.Marshal(c.text)
	}
	if c.parts == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.parts)
}

// UnmarshalJSON accepts either a JSON string or an array of parts.
func (c *Content) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = Content{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	pc, err := PartsContent(parts...)
	if err != nil {
		return err
	}
	*c = pc
	return nil
}

// ToolCall is a structured request emitted by the model. Arguments holds the
// raw JSON argument document.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single turn unit of the conversation.
type Message struct {
	Role       Role           `json:"role"`
	Content    Content        `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// UserMessage builds a plain text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: TextContent(text)}
}

// SystemMessage builds a system instruction message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: TextContent(text)}
}

// AssistantMessage builds an assistant message with optional tool calls.
func AssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text), ToolCalls: calls}
}

// ToolMessage builds the result message answering the call with the given id.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: TextContent(content), ToolCallID: toolCallID}
}

// Validate checks role-specific invariants of a single message.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", errx.ErrInvalidMessage, m.Role)
	}
	if m.Content.IsParts() {
		for i, p := range m.Content.parts {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("part %d: %w", i, err)
			}
		}
	}
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return fmt.Errorf("%w: %s message carries tool calls", errx.ErrInvalidMessage, m.Role)
	}
	if m.Role == RoleTool && strings.TrimSpace(m.ToolCallID) == "" {
		return fmt.Errorf("%w: tool message without tool_call_id", errx.ErrInvalidMessage)
	}
	seen := make(map[string]struct{}, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		if _, dup := seen[tc.ID]; dup {
			return fmt.Errorf("%w: duplicate tool call id %q", errx.ErrInvalidMessage, tc.ID)
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m *Message) HasToolCalls() bool {
	return m != nil && len(m.ToolCalls) > 0
}
