package extract

import (
	"bytes"
	"context"
	"strings"

	"code.sajari.com/docconv"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

var _ core.PageExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor handles non-PDF uploads (DOCX, HTML, plain text) via
// docconv. docconv flattens the document to a single string, so everything
// lands on page 1; page-accurate citations are a PDF-only feature.
type DocconvExtractor struct {
	contentType    string
	useReadability bool
}

func NewDocconvExtractor(contentType string, useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{contentType: contentType, useReadability: useReadability}
}

func (e *DocconvExtractor) ExtractPages(ctx context.Context, data []byte) ([]models.PageText, int, error) {
	res, err := docconv.Convert(bytes.NewReader(data), e.contentType, e.useReadability)
	if err != nil {
		return nil, 0, &core.ExtractionError{Reason: "docconv conversion failed", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if strings.TrimSpace(res.Body) == "" {
		return nil, 0, &core.ExtractionError{Reason: "document has no extractable text"}
	}
	return []models.PageText{{Page: 1, Text: res.Body}}, 1, nil
}

// ForContentType picks the extractor matching an upload's content type.
func ForContentType(contentType string) core.PageExtractor {
	if contentType == "application/pdf" {
		return NewPDFExtractor()
	}
	return NewDocconvExtractor(contentType, false)
}
