package core

import "fmt"

// ExtractionError signals that the uploaded bytes could not be turned into
// page text: not a parseable PDF, or no page carries an extractable text
// layer. Terminal for the current processing run, never retried.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingServiceError carries the HTTP status and body of a non-success
// embedding-service response. Retry policy belongs to the caller.
type EmbeddingServiceError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service error (status %d): %s", e.StatusCode, e.Body)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// SchemaError signals that a generative model response did not match the
// expected JSON shape. Distinct from network/service errors so callers can
// degrade instead of failing.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("model response schema violation: %s", e.Detail)
}
