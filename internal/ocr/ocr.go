// Package ocr submits invoice documents to a hosted OCR service, polls the
// resulting job with explicit bounds and pre-fills invoices from the
// extracted fields.
package ocr

import (
	"context"
)

// JobStatus is the lifecycle state of an OCR job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether polling can stop.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobHandle identifies a submitted OCR job.
type JobHandle string

// Document is an uploaded invoice image or PDF.
type Document struct {
	Content  []byte
	MimeType string
	Filename string
}

// ExtractedField is one value read from the document.
type ExtractedField struct {
	Value      string  `json:"value"`
	Mention    string  `json:"mention,omitempty"`
	Confidence float32 `json:"confidence"`
}

// JobResult is the state of a job as returned by PollOCR.
type JobResult struct {
	Handle JobHandle                 `json:"handle"`
	Status JobStatus                 `json:"status"`
	Fields map[string]ExtractedField `json:"extractedFields,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// Service is the document/OCR collaborator.
type Service interface {
	RunOCR(ctx context.Context, doc Document) (JobHandle, error)
	PollOCR(ctx context.Context, handle JobHandle) (JobResult, error)
}
