package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
)

var (
	// ErrPollTimeout is returned when the overall poll deadline passes.
	ErrPollTimeout = errors.New("ocr poll timed out")
	// ErrPollExhausted is returned after MaxAttempts non-terminal polls.
	ErrPollExhausted = errors.New("ocr poll attempts exhausted")
)

// PollConfig bounds a poll loop.
type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxAttempts int
	Timeout     time.Duration
}

// DefaultPollConfig polls every 2.5s growing to 5s, for at most 60 attempts
// or three minutes.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    2500 * time.Millisecond,
		MaxInterval: 5 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 60,
		Timeout:     3 * time.Minute,
	}
}

func (c PollConfig) withDefaults() PollConfig {
	d := DefaultPollConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxInterval < c.Interval {
		c.MaxInterval = c.Interval
	}
	if c.Multiplier == 0 {
		c.Multiplier = d.Multiplier
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Poller waits for OCR jobs to reach a terminal status.
type Poller struct {
	svc Service
	cfg PollConfig
	log zerolog.Logger
}

// NewPoller creates a Poller. Zero config fields take their defaults.
func NewPoller(svc Service, cfg PollConfig, log zerolog.Logger) *Poller {
	return &Poller{svc: svc, cfg: cfg.withDefaults(), log: log}
}

// Wait polls handle until it succeeds or fails, the attempt budget or
// timeout runs out, or ctx is cancelled. A cancelled ctx returns ctx.Err().
// Transient poll errors count as attempts; a missing job stops immediately.
func (p *Poller) Wait(ctx context.Context, handle JobHandle) (JobResult, error) {
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	delay := p.cfg.Interval
	var last JobResult
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		res, err := p.svc.PollOCR(pollCtx, handle)
		switch {
		case err == nil:
			last = res
			if res.Status.IsTerminal() {
				p.log.Debug().
					Str("job", string(handle)).
					Str("status", string(res.Status)).
					Int("attempts", attempt).
					Msg("OCR job finished")
				return res, nil
			}
		case apperrors.Is(err, apperrors.ErrCodeNotFound):
			return JobResult{}, err
		case pollCtx.Err() != nil:
			return last, p.stopErr(ctx)
		default:
			p.log.Warn().Err(err).Str("job", string(handle)).Int("attempt", attempt).Msg("OCR poll failed")
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return last, p.stopErr(ctx)
		case <-timer.C:
		}
		delay = p.next(delay)
	}
	return last, fmt.Errorf("%w after %d attempts", ErrPollExhausted, p.cfg.MaxAttempts)
}

// stopErr distinguishes caller cancellation from the poll deadline.
func (p *Poller) stopErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return ErrPollTimeout
}

func (p *Poller) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * p.cfg.Multiplier)
	if n > p.cfg.MaxInterval {
		return p.cfg.MaxInterval
	}
	return n
}
