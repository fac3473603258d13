package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
)

//go:embed template/document_prompt.txt
var documentPrompt string

//go:embed template/extraction_failed_prompt.txt
var extractionFailedPrompt string

// Instruction kinds, in precedence order.
const (
	KindDocument         = "document"
	KindExtractionFailed = "extraction_failed"
	KindBase             = "base"
)

// Compose returns the system instruction for the conversation. Document text
// wins over the extraction failure notice, which wins over the base prompt.
func Compose(ctx context.Context, basePrompt, documentText string, extractionFailed bool) (string, error) {
	kind := selectKind(documentText, extractionFailed)
	if kind == KindBase {
		return basePrompt, nil
	}

	tpl := documentPrompt
	if kind == KindExtractionFailed {
		tpl = extractionFailedPrompt
	}

	// Render via Eino prompt component (Go template) to both format and emit callbacks
	chat := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(tpl))
	msgs, err := chat.Format(ctx, map[string]any{
		"BasePrompt":   basePrompt,
		"DocumentText": strings.TrimSpace(documentText),
	})
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", kind, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", kind)
	}
	return strings.TrimSpace(msgs[0].Content), nil
}

func selectKind(documentText string, extractionFailed bool) string {
	switch {
	case strings.TrimSpace(documentText) != "":
		return KindDocument
	case extractionFailed:
		return KindExtractionFailed
	default:
		return KindBase
	}
}

// ApplyToState prepends the composed instruction to the transcript once per
// conversation. It is a no-op when the state is already composed, and an
// empty instruction injects nothing and leaves the state uncomposed.
func ApplyToState(ctx context.Context, state *model.ConversationState, basePrompt string) error {
	if state == nil || state.PromptComposed {
		return nil
	}

	instruction, err := Compose(ctx, basePrompt, state.AccumulatedDocumentText, state.AttachmentExtractionFailed)
	if err != nil {
		return err
	}
	if strings.TrimSpace(instruction) == "" {
		logx.Debug().Msg("Empty system instruction; nothing to compose")
		return nil
	}

	msgs := make([]model.Message, 0, len(state.Messages)+1)
	msgs = append(msgs, model.SystemMessage(instruction))
	state.Messages = append(msgs, state.Messages...)
	state.PromptComposed = true

	logx.Debug().
		Str("kind", selectKind(state.AccumulatedDocumentText, state.AttachmentExtractionFailed)).
		Int("length", len(instruction)).
		Msg("System instruction composed")
	return nil
}
