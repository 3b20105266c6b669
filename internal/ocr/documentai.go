package ocr

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
)

// MaxDocumentSizeBytes is the largest document accepted for processing.
const MaxDocumentSizeBytes = 20 * 1024 * 1024

// processorClient is the Document AI call surface used here.
type processorClient interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIConfig configures the Document AI backed service.
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
	// Timeout bounds one ProcessDocument call.
	Timeout time.Duration
	// JobTTL is how long finished results stay pollable.
	JobTTL time.Duration
}

type job struct {
	result   JobResult
	finished time.Time
}

// DocumentAIService runs documents through a Document AI processor. Jobs
// are processed in the background and kept in memory until JobTTL after
// they finish.
type DocumentAIService struct {
	client processorClient
	cfg    DocumentAIConfig
	log    zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	jobs map[JobHandle]*job
	wg   sync.WaitGroup
}

// NewDocumentAIService dials Document AI with a regional endpoint.
func NewDocumentAIService(ctx context.Context, cfg DocumentAIConfig, log zerolog.Logger) (*DocumentAIService, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, apperrors.InvalidInput("documentAI", "project id and processor id are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client for location %s: %w", cfg.Location, err)
	}
	return newDocumentAIService(client, cfg, log), nil
}

func newDocumentAIService(client processorClient, cfg DocumentAIConfig, log zerolog.Logger) *DocumentAIService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 30 * time.Minute
	}
	return &DocumentAIService{
		client: client,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		jobs:   make(map[JobHandle]*job),
	}
}

func (s *DocumentAIService) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", s.cfg.ProjectID, s.cfg.Location, s.cfg.ProcessorID)
}

// RunOCR validates doc, registers a job and starts processing it.
func (s *DocumentAIService) RunOCR(ctx context.Context, doc Document) (JobHandle, error) {
	if len(doc.Content) == 0 {
		return "", apperrors.InvalidInput("document", "document is empty")
	}
	if len(doc.Content) > MaxDocumentSizeBytes {
		return "", apperrors.InvalidInput("document", fmt.Sprintf("document exceeds %d bytes", MaxDocumentSizeBytes))
	}
	if doc.MimeType == "" {
		doc.MimeType = http.DetectContentType(doc.Content)
	}

	handle := JobHandle(uuid.NewString())
	s.mu.Lock()
	s.pruneLocked()
	s.jobs[handle] = &job{result: JobResult{Handle: handle, Status: JobRunning}}
	s.mu.Unlock()

	// The job outlives the request that submitted it.
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(bg, handle, doc)
	}()

	s.log.Info().
		Str("job", string(handle)).
		Str("mime_type", doc.MimeType).
		Int("size", len(doc.Content)).
		Msg("OCR job submitted")
	return handle, nil
}

func (s *DocumentAIService) process(ctx context.Context, handle JobHandle, doc Document) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: s.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  doc.Content,
				MimeType: doc.MimeType,
			},
		},
	}

	result := JobResult{Handle: handle, Status: JobSucceeded}
	resp, err := s.client.ProcessDocument(ctx, req)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Str("job", string(handle)).Msg("OCR processing failed")
		result.Status = JobFailed
		result.Error = err.Error()
	case resp.GetDocument() == nil:
		result.Status = JobFailed
		result.Error = "no document in response"
	default:
		result.Fields = extractFields(resp.GetDocument())
	}

	s.mu.Lock()
	if j, ok := s.jobs[handle]; ok {
		j.result = result
		j.finished = s.now()
	}
	s.mu.Unlock()
}

// extractFields keeps the most confident entity per type, preferring the
// normalized text over the raw mention.
func extractFields(doc *documentaipb.Document) map[string]ExtractedField {
	fields := make(map[string]ExtractedField)
	for _, e := range doc.GetEntities() {
		if e.GetType() == "" {
			continue
		}
		value := e.GetNormalizedValue().GetText()
		if value == "" {
			value = e.GetMentionText()
		}
		if prev, ok := fields[e.GetType()]; ok && prev.Confidence >= e.GetConfidence() {
			continue
		}
		fields[e.GetType()] = ExtractedField{Value: value, Mention: e.GetMentionText(), Confidence: e.GetConfidence()}
	}
	return fields
}

// PollOCR returns the current state of handle.
func (s *DocumentAIService) PollOCR(ctx context.Context, handle JobHandle) (JobResult, error) {
	if err := ctx.Err(); err != nil {
		return JobResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	j, ok := s.jobs[handle]
	if !ok {
		return JobResult{}, apperrors.NotFound("ocr job", string(handle))
	}
	res := j.result
	if res.Fields != nil {
		fields := make(map[string]ExtractedField, len(res.Fields))
		for k, v := range res.Fields {
			fields[k] = v
		}
		res.Fields = fields
	}
	return res, nil
}

// pruneLocked drops finished jobs older than JobTTL.
func (s *DocumentAIService) pruneLocked() {
	cutoff := s.now().Add(-s.cfg.JobTTL)
	for h, j := range s.jobs {
		if !j.finished.IsZero() && j.finished.Before(cutoff) {
			delete(s.jobs, h)
		}
	}
}

// Close waits for in-flight jobs and closes the Document AI client.
func (s *DocumentAIService) Close() error {
	s.wg.Wait()
	return s.client.Close()
}
