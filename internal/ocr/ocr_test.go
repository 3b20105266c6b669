package ocr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// scriptedService returns the statuses in order, repeating the last one.
type scriptedService struct {
	mu       sync.Mutex
	statuses []JobStatus
	errs     []error
	polls    int
}

func (s *scriptedService) RunOCR(context.Context, Document) (JobHandle, error) {
	return "job_1", nil
}

func (s *scriptedService) PollOCR(_ context.Context, h JobHandle) (JobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.polls
	s.polls++
	if i < len(s.errs) && s.errs[i] != nil {
		return JobResult{}, s.errs[i]
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return JobResult{Handle: h, Status: s.statuses[i]}, nil
}

func fastConfig() PollConfig {
	return PollConfig{Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2, MaxAttempts: 10, Timeout: time.Second}
}

func TestPollerStopsOnTerminalStatus(t *testing.T) {
	svc := &scriptedService{statuses: []JobStatus{JobQueued, JobRunning, JobSucceeded}}
	res, err := NewPoller(svc, fastConfig(), zerolog.Nop()).Wait(context.Background(), "job_1")
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, res.Status)
	assert.Equal(t, 3, svc.polls)
}

func TestPollerExhaustsAttempts(t *testing.T) {
	svc := &scriptedService{statuses: []JobStatus{JobRunning}}
	cfg := fastConfig()
	cfg.MaxAttempts = 4
	res, err := NewPoller(svc, cfg, zerolog.Nop()).Wait(context.Background(), "job_1")
	assert.ErrorIs(t, err, ErrPollExhausted)
	assert.Equal(t, JobRunning, res.Status)
	assert.Equal(t, 4, svc.polls)
}

func TestPollerTimesOut(t *testing.T) {
	svc := &scriptedService{statuses: []JobStatus{JobRunning}}
	cfg := PollConfig{Interval: 20 * time.Millisecond, MaxAttempts: 1000, Timeout: 50 * time.Millisecond}
	_, err := NewPoller(svc, cfg, zerolog.Nop()).Wait(context.Background(), "job_1")
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestPollerHonoursCancellation(t *testing.T) {
	svc := &scriptedService{statuses: []JobStatus{JobRunning}}
	cfg := PollConfig{Interval: 10 * time.Millisecond, MaxAttempts: 1000, Timeout: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := NewPoller(svc, cfg, zerolog.Nop()).Wait(ctx, "job_1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollerRetriesTransientErrors(t *testing.T) {
	svc := &scriptedService{
		statuses: []JobStatus{JobRunning, JobRunning, JobFailed},
		errs:     []error{errors.New("unavailable"), nil, nil},
	}
	res, err := NewPoller(svc, fastConfig(), zerolog.Nop()).Wait(context.Background(), "job_1")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, res.Status)

	missing := &scriptedService{statuses: []JobStatus{JobRunning}, errs: []error{apperrors.NotFound("ocr job", "x")}}
	_, err = NewPoller(missing, fastConfig(), zerolog.Nop()).Wait(context.Background(), "x")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	assert.Equal(t, 1, missing.polls)
}

func TestPollConfigDefaults(t *testing.T) {
	p := NewPoller(&scriptedService{}, PollConfig{}, zerolog.Nop())
	assert.Equal(t, DefaultPollConfig(), p.cfg)
	assert.Equal(t, 3750*time.Millisecond, NewPoller(nil, DefaultPollConfig(), zerolog.Nop()).next(2500*time.Millisecond))
	assert.Equal(t, 5*time.Second, NewPoller(nil, DefaultPollConfig(), zerolog.Nop()).next(4*time.Second))
}

type fakeProcessor struct {
	resp    *documentaipb.ProcessResponse
	err     error
	release chan struct{}
	gotReq  *documentaipb.ProcessRequest
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, _ ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.gotReq = req
	if f.release != nil {
		<-f.release
	}
	return f.resp, f.err
}

func (f *fakeProcessor) Close() error { return nil }

func invoiceResponse() *documentaipb.ProcessResponse {
	return &documentaipb.ProcessResponse{Document: &documentaipb.Document{Entities: []*documentaipb.Document_Entity{
		{Type: "total_amount", MentionText: "$1,234.50", Confidence: 0.93,
			NormalizedValue: &documentaipb.Document_Entity_NormalizedValue{Text: "1234.5"}},
		{Type: "currency", MentionText: "$", Confidence: 0.4,
			NormalizedValue: &documentaipb.Document_Entity_NormalizedValue{Text: "CAD"}},
		{Type: "currency", MentionText: "USD", Confidence: 0.88,
			NormalizedValue: &documentaipb.Document_Entity_NormalizedValue{Text: "USD"}},
		{Type: "due_date", MentionText: "Apr 30, 2026", Confidence: 0.81,
			NormalizedValue: &documentaipb.Document_Entity_NormalizedValue{Text: "2026-04-30"}},
		{Type: "invoice_date", MentionText: "01/04/2026", Confidence: 0.2},
	}}}
}

func TestDocumentAIServiceRunAndPoll(t *testing.T) {
	proc := &fakeProcessor{resp: invoiceResponse(), release: make(chan struct{})}
	svc := newDocumentAIService(proc, DocumentAIConfig{ProjectID: "p", Location: "eu", ProcessorID: "proc"}, zerolog.Nop())

	handle, err := svc.RunOCR(context.Background(), Document{Content: []byte("%PDF-1.7 fake")})
	require.NoError(t, err)

	res, err := svc.PollOCR(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, res.Status)

	close(proc.release)
	res, err = NewPoller(svc, fastConfig(), zerolog.Nop()).Wait(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, res.Status)
	assert.Equal(t, "1234.5", res.Fields["total_amount"].Value)
	assert.Equal(t, "USD", res.Fields["currency"].Value, "most confident entity wins")
	assert.Equal(t, "projects/p/locations/eu/processors/proc", proc.gotReq.GetName())
	assert.Equal(t, "application/pdf", proc.gotReq.GetRawDocument().GetMimeType())
	require.NoError(t, svc.Close())
}

func TestDocumentAIServiceFailuresAndExpiry(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("PERMISSION_DENIED")}
	svc := newDocumentAIService(proc, DocumentAIConfig{ProjectID: "p", ProcessorID: "proc", JobTTL: time.Minute}, zerolog.Nop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.RunOCR(context.Background(), Document{})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))

	handle, err := svc.RunOCR(context.Background(), Document{Content: []byte("img"), MimeType: "image/png"})
	require.NoError(t, err)
	svc.wg.Wait()

	res, err := svc.PollOCR(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, res.Status)
	assert.Contains(t, res.Error, "PERMISSION_DENIED")

	now = now.Add(2 * time.Minute)
	_, err = svc.PollOCR(context.Background(), handle)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestPrefill(t *testing.T) {
	res := JobResult{Status: JobSucceeded, Fields: extractFields(invoiceResponse().GetDocument())}

	inv := &domain.Invoice{}
	applied := Prefill(inv, res)
	assert.ElementsMatch(t, []string{"amount", "currency", "dueDate"}, applied)
	assert.True(t, inv.Amount.Equal(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "USD", inv.Currency)
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, "2026-04-30", inv.DueDate.Format(domain.MetadataDateLayout))
	assert.Nil(t, inv.InvoiceDate, "low confidence is ignored")
	assert.True(t, inv.HasDocuments)

	entered := &domain.Invoice{Amount: decimal.NewFromInt(99), Currency: "EUR"}
	assert.Equal(t, []string{"dueDate"}, Prefill(entered, res))
	assert.Equal(t, "EUR", entered.Currency)

	assert.Empty(t, Prefill(&domain.Invoice{}, JobResult{Status: JobFailed}))
}

func TestParseAmount(t *testing.T) {
	tests := map[string]string{
		"1234.5":       "1234.5",
		"$1,234.50":    "1234.50",
		"1,234,567.89": "1234567.89",
		"USD 2,500":    "2500",
		"-15.00":       "-15",
	}
	for in, want := range tests {
		got, err := parseAmount(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s parsed as %s", in, got)
	}

	for _, in := range []string{"1.234,50", "1234,50", "1.234.567", "12,34.00"} {
		_, err := parseAmount(in)
		assert.ErrorIs(t, err, errAmbiguousAmount, in)
	}
}

func TestPrefillSkipsAmbiguousAmount(t *testing.T) {
	res := JobResult{Status: JobSucceeded, Fields: map[string]ExtractedField{
		FieldTotalAmount: {Value: "1.234,50", Confidence: 0.95},
		FieldCurrency:    {Value: "eur", Confidence: 0.95},
	}}
	inv := &domain.Invoice{}
	assert.Equal(t, []string{"currency"}, Prefill(inv, res))
	assert.True(t, inv.Amount.IsZero())
	assert.Equal(t, "EUR", inv.Currency)
}
