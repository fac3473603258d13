package model

import "strings"

// ConversationState is the accumulating record threaded through every stage
// of a turn and persisted between turns.
type ConversationState struct {
	// Messages is append-only; insertion order is chronological order.
	Messages []Message `json:"messages"`
	// AccumulatedDocumentText holds the labelled text of the most recent
	// successfully extracted attachments. Last non-empty write wins.
	AccumulatedDocumentText string `json:"accumulated_document_text,omitempty"`
	// AttachmentExtractionFailed is replaced by every normalizer update.
	AttachmentExtractionFailed bool `json:"attachment_extraction_failed,omitempty"`
	// PromptComposed is set once a system instruction has been injected for
	// this conversation.
	PromptComposed bool `json:"prompt_composed,omitempty"`
}

// NewConversationState returns an empty state.
func NewConversationState() *ConversationState {
	return &ConversationState{Messages: []Message{}}
}

// Clone returns a copy whose message slice can be appended to without
// affecting s.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return NewConversationState()
	}
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

// Append adds messages to the end of the transcript.
func (s *ConversationState) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// ApplyAttachmentUpdate merges a normalizer result into the state.
func (s *ConversationState) ApplyAttachmentUpdate(documentText string, failed bool) {
	if strings.TrimSpace(documentText) != "" {
		s.AccumulatedDocumentText = documentText
	}
	s.AttachmentExtractionFailed = failed
}

// Last returns the most recent message, or nil for an empty transcript.
func (s *ConversationState) Last() *Message {
	if s == nil || len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// LastAssistant returns the most recent assistant message, or nil.
func (s *ConversationState) LastAssistant() *Message {
	if s == nil {
		return nil
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return &s.Messages[i]
		}
	}
	return nil
}
