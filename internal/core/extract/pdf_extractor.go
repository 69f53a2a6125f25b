package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

var _ core.PageExtractor = (*PDFExtractor)(nil)

// PDFExtractor extracts per-page plain text from PDF bytes.
// It is a pure transform: no side effects, all parser state scoped to the call.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// ExtractPages returns the plain text of every page (1-indexed, in page
// order) and the total page count. Pages without an extractable text layer
// are returned with empty text; if no page has any, the document is treated
// as unextractable (pure-image scans).
func (e *PDFExtractor) ExtractPages(ctx context.Context, data []byte) (pages []models.PageText, total int, err error) {
	// The pdf package panics on some malformed files; map that to the same
	// terminal error a parse failure produces.
	defer func() {
		if r := recover(); r != nil {
			pages, total = nil, 0
			err = &core.ExtractionError{Reason: fmt.Sprintf("malformed pdf: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, &core.ExtractionError{Reason: "not a parseable pdf", Err: err}
	}

	total = reader.NumPage()
	if total == 0 {
		return nil, 0, &core.ExtractionError{Reason: "pdf has zero pages"}
	}

	pages = make([]models.PageText, 0, total)
	hasText := false
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		page := reader.Page(n)
		text := ""
		if !page.V.IsNull() {
			if t, err := page.GetPlainText(nil); err == nil {
				text = t
			}
		}
		if strings.TrimSpace(text) != "" {
			hasText = true
		}
		pages = append(pages, models.PageText{Page: n, Text: text})
	}

	if !hasText {
		return nil, 0, &core.ExtractionError{Reason: "no extractable text layer (image-only pdf?)"}
	}
	return pages, total, nil
}
