// Package pdf extracts plain text from PDF payloads held in memory.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrEmptyPayload is returned for a zero-length payload.
	ErrEmptyPayload = errors.New("pdf: empty payload")
	// ErrNoText is returned when the document parsed but no page yielded text,
	// which is typical for scanned documents.
	ErrNoText = errors.New("pdf: no extractable text")
)

// Extractor turns PDF bytes into text.
type Extractor struct {
	// MaxPages bounds the number of pages read; zero reads every page.
	MaxPages int
}

// NewExtractor returns an extractor reading at most maxPages pages.
func NewExtractor(maxPages int) *Extractor {
	return &Extractor{MaxPages: maxPages}
}

// Extract returns the trimmed text of the document. It never panics: a
// malformed document surfaces as an error.
func (e *Extractor) Extract(ctx context.Context, payload []byte) (text string, err error) {
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}

	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("pdf: open: %w", err)
	}

	total := reader.NumPage()
	if e.MaxPages > 0 && total > e.MaxPages {
		total = e.MaxPages
	}

	var parts []string
	for pageNum := 1; pageNum <= total; pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if s := strings.TrimSpace(pageText); s != "" {
			parts = append(parts, s)
		}
	}

	if len(parts) == 0 {
		return "", ErrNoText
	}
	return strings.Join(parts, "\n\n"), nil
}
