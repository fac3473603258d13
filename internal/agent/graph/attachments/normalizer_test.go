package attachments

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	"github.com/Chative-core-poc-v1/docagent/pkg/metrics"
)

// fakeExtractor maps payloads to canned results.
type fakeExtractor map[string]string

func (f fakeExtractor) Extract(_ context.Context, payload []byte) (string, error) {
	text, ok := f[string(payload)]
	if !ok {
		return "", errors.New("unreadable")
	}
	return text, nil
}

func pdfPart(payload, name string) model.Part {
	return model.NewFilePart(model.MIMETypePDF, []byte(payload), name)
}

func userParts(parts ...model.Part) model.Message {
	return model.Message{Role: model.RoleUser, Content: model.MustPartsContent(parts...)}
}

func TestNormalizePlainTextPassesThrough(t *testing.T) {
	n := NewNormalizer(fakeExtractor{}, nil)
	msg := model.UserMessage("Hello")

	got := n.Normalize(context.Background(), msg)

	assert.Equal(t, msg, got.Message)
	assert.Empty(t, got.DocumentText)
	assert.False(t, got.Failed)
	assert.False(t, got.HadDocument)
}

func TestNormalizeExtractsPDF(t *testing.T) {
	m := metrics.New()
	n := NewNormalizer(fakeExtractor{"cv": "  John Doe, Engineer  "}, m)
	msg := userParts(model.NewTextPart("Review this"), pdfPart("cv", "cv.pdf"))

	got := n.Normalize(context.Background(), msg)

	require.True(t, got.Message.Content.IsParts())
	parts := got.Message.Content.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, model.NewTextPart("Review this"), parts[0])
	assert.Equal(t, model.NewTextPart("### File: cv.pdf\n\nJohn Doe, Engineer"), parts[1])
	assert.False(t, got.Message.Content.HasFiles())
	assert.Equal(t, "### File: cv.pdf\n\nJohn Doe, Engineer", got.DocumentText)
	assert.False(t, got.Failed)
	assert.True(t, got.HadDocument)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues(metrics.OutcomeOK)))
}

func TestNormalizeJoinsMultipleDocuments(t *testing.T) {
	n := NewNormalizer(fakeExtractor{"a": "first", "b": "second"}, nil)
	msg := userParts(pdfPart("a", "a.pdf"), pdfPart("b", "b.pdf"))

	got := n.Normalize(context.Background(), msg)

	assert.Equal(t, "### File: a.pdf\n\nfirst\n\n### File: b.pdf\n\nsecond", got.DocumentText)
}

func TestNormalizeFailureFlag(t *testing.T) {
	tests := []struct {
		name       string
		parts      []model.Part
		wantFailed bool
		wantDoc    string
	}{
		{
			name:       "only unreadable pdf",
			parts:      []model.Part{pdfPart("scan", "scan.pdf")},
			wantFailed: true,
		},
		{
			name:       "unreadable pdf with blank text",
			parts:      []model.Part{model.NewTextPart("   "), pdfPart("scan", "scan.pdf")},
			wantFailed: true,
		},
		{
			name:       "unreadable pdf with user text",
			parts:      []model.Part{model.NewTextPart("see attached"), pdfPart("scan", "scan.pdf")},
			wantFailed: false,
		},
		{
			name:       "one readable one unreadable",
			parts:      []model.Part{pdfPart("ok", "ok.pdf"), pdfPart("scan", "scan.pdf")},
			wantFailed: false,
			wantDoc:    "### File: ok.pdf\n\nreadable",
		},
		{
			name:       "extractor returns whitespace",
			parts:      []model.Part{pdfPart("blank", "blank.pdf")},
			wantFailed: true,
		},
	}

	n := NewNormalizer(fakeExtractor{"ok": "readable", "blank": " \n "}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(context.Background(), userParts(tt.parts...))
			assert.Equal(t, tt.wantFailed, got.Failed)
			assert.Equal(t, tt.wantDoc, got.DocumentText)
			assert.True(t, got.HadDocument)
			assert.False(t, got.Message.Content.HasFiles())
		})
	}
}

func TestNormalizeDropsNULBytes(t *testing.T) {
	n := NewNormalizer(fakeExtractor{"cv": "Jane\x00 Doe\x00", "blank": "\x00\x00 "}, nil)

	got := n.Normalize(context.Background(), userParts(pdfPart("cv", "cv.pdf")))
	assert.Equal(t, "### File: cv.pdf\n\nJane Doe", got.DocumentText)
	assert.NotContains(t, got.Message.Content.PlainText(), "\x00")

	got = n.Normalize(context.Background(), userParts(pdfPart("blank", "blank.pdf")))
	assert.True(t, got.Failed)
	assert.Equal(t, "<blank.pdf>", got.Message.Content.PlainText())
}

func TestNormalizePlaceholderUsesFilename(t *testing.T) {
	n := NewNormalizer(fakeExtractor{}, nil)

	got := n.Normalize(context.Background(), userParts(pdfPart("scan", "scan.pdf")))

	assert.Equal(t, []model.Part{model.NewTextPart("<scan.pdf>")}, got.Message.Content.Parts())
}

func TestNormalizeRecoversExtractorPanic(t *testing.T) {
	m := metrics.New()
	n := NewNormalizer(ExtractorFunc(func(context.Context, []byte) (string, error) {
		panic("boom")
	}), m)

	var got model.AttachmentUpdate
	require.NotPanics(t, func() {
		got = n.Normalize(context.Background(), userParts(pdfPart("x", "x.pdf")))
	})
	assert.True(t, got.Failed)
	assert.Equal(t, "<x.pdf>", got.Message.Content.PlainText())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues(metrics.OutcomeError)))
}

func TestNormalizeLeavesOtherFilesAlone(t *testing.T) {
	n := NewNormalizer(fakeExtractor{}, nil)
	img := model.NewFilePart("image/png", []byte{0x89, 0x50}, "photo.png")
	msg := userParts(model.NewTextPart("look"), img)

	got := n.Normalize(context.Background(), msg)

	assert.Equal(t, msg, got.Message)
	assert.False(t, got.HadDocument)
	assert.False(t, got.Failed)
}

func TestNormalizeWithoutExtractor(t *testing.T) {
	n := NewNormalizer(nil, nil)

	got := n.Normalize(context.Background(), userParts(pdfPart("x", "resume.pdf")))

	assert.True(t, got.Failed)
	assert.Equal(t, "<resume.pdf>", got.Message.Content.PlainText())
}
