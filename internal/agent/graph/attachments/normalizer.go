package attachments

import (
	"context"
	"fmt"
	"strings"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
	"github.com/Chative-core-poc-v1/docagent/pkg/metrics"
)

// Extractor is the external text-extraction capability.
type Extractor interface {
	Extract(ctx context.Context, payload []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, payload []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, payload []byte) (string, error) {
	return f(ctx, payload)
}

// Normalizer replaces PDF attachments with their extracted text.
type Normalizer struct {
	extractor Extractor
	metrics   *metrics.Metrics
}

func NewNormalizer(extractor Extractor, m *metrics.Metrics) *Normalizer {
	return &Normalizer{extractor: extractor, metrics: m}
}

// Label is the heading placed above extracted document text.
func Label(filename string) string {
	return "### File: " + filename
}

// Placeholder is the text left in place of an attachment that could not be read.
func Placeholder(filename string) string {
	return "<" + filename + ">"
}

// Normalize rewrites msg so that no PDF file part remains. It never fails:
// extraction errors degrade to a placeholder part.
//
// Failed is true when at least one PDF could not be read and no other part
// of the message carries real text.
func (n *Normalizer) Normalize(ctx context.Context, msg model.Message) model.AttachmentUpdate {
	update := model.AttachmentUpdate{Message: msg}
	if !msg.Content.IsParts() {
		return update
	}

	parts := msg.Content.Parts()
	out := make([]model.Part, 0, len(parts))
	var (
		docs        []string
		anyFailed   bool
		hasRealText bool
	)

	for _, p := range parts {
		if p.Type != model.PartFile || !p.File.IsPDF() {
			if p.Type == model.PartText && strings.TrimSpace(p.Text) != "" {
				hasRealText = true
			}
			out = append(out, p)
			continue
		}

		update.HadDocument = true
		name := p.File.Name()
		text := n.extract(ctx, name, p.File.Data)
		if text == "" {
			anyFailed = true
			out = append(out, model.NewTextPart(Placeholder(name)))
			continue
		}

		block := Label(name) + "\n\n" + text
		docs = append(docs, block)
		hasRealText = true
		out = append(out, model.NewTextPart(block))
	}

	if !update.HadDocument {
		return update
	}

	content, err := model.PartsContent(out...)
	if err != nil {
		// Only text parts were added and the rest were validated on input.
		logx.Error().Err(err).Msg("normalized content failed validation; keeping original message")
		return model.AttachmentUpdate{Message: msg}
	}
	update.Message.Content = content
	update.DocumentText = strings.Join(docs, "\n\n")
	update.Failed = anyFailed && !hasRealText
	return update
}

// extract returns the trimmed text or "" on any failure, including a panic
// inside the extractor. NUL bytes are dropped since Postgres JSONB and TEXT
// both reject them.
func (n *Normalizer) extract(ctx context.Context, name string, payload []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("filename", name).Str("panic", fmt.Sprint(r)).Msg("PDF extractor panicked")
			text = ""
		}
		n.metrics.ObserveExtraction(text != "")
	}()

	if n.extractor == nil {
		logx.Warn().Str("filename", name).Msg("No extractor configured; leaving placeholder")
		return ""
	}

	raw, err := n.extractor.Extract(ctx, payload)
	if err != nil {
		logx.Warn().Err(err).Str("filename", name).Int("bytes", len(payload)).Msg("Failed to extract text from PDF")
		return ""
	}
	text = strings.TrimSpace(strings.ReplaceAll(raw, "\x00", ""))
	if text == "" {
		logx.Warn().Str("filename", name).Msg("PDF extraction returned no text")
		return ""
	}
	logx.Debug().Str("filename", name).Int("text_length", len(text)).Msg("PDF text extracted")
	return text
}
