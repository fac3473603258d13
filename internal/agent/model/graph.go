package model

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
type AppState struct {
	ThreadID     string
	Conversation *ConversationState // mutated only inside Eino state handlers

	// TurnHasDocument is set when the incoming user message carried a PDF.
	TurnHasDocument bool
	// ModelCalls counts model invocations in this turn; the router bounds it.
	ModelCalls    int
	ToolCallIDSeq int // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}

// TurnInput is the graph input for one turn.
type TurnInput struct {
	ThreadID string             `json:"thread_id"`
	State    *ConversationState `json:"-"`
	Message  Message            `json:"message"`
}

// AttachmentUpdate is the partial state update produced by the attachment
// normalizer for the incoming message.
type AttachmentUpdate struct {
	Message      Message
	DocumentText string
	Failed       bool
	HadDocument  bool
}
