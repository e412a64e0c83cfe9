package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

// ErrJobTimeout is returned when every poll attempt elapsed without the job
// reaching a terminal status.
var ErrJobTimeout = errors.New("generation timed out")

// JobFailedError carries the server-supplied failure message.
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string {
	return e.Message
}

// JobFetcher performs a single job status fetch.
type JobFetcher interface {
	PollJob(ctx context.Context, jobID string) (*api.JobState, error)
}

// Result is the terminal outcome of a completed generation.
type Result struct {
	JobID    string
	ImageURL string
}

// Poller converts an asynchronous backend job into a synchronous-looking
// result by polling at a fixed cadence until a terminal status or timeout.
// Transient fetch failures are skipped, never counted as job failures.
type Poller struct {
	jobs        JobFetcher
	interval    time.Duration
	maxAttempts int
	log         *slog.Logger
}

func NewPoller(jobs JobFetcher, interval time.Duration, maxAttempts int, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	return &Poller{
		jobs:        jobs,
		interval:    interval,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Wait polls until the job resolves, fails, times out, or ctx is done.
func (p *Poller) Wait(ctx context.Context, jobID string) (*Result, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.interval):
		}

		state, err := p.jobs.PollJob(ctx, jobID)
		if err != nil {
			if api.IsTransient(err) {
				if p.log != nil {
					p.log.Debug("poll skipped", "job_id", jobID, "attempt", attempt, "err", err)
				}
				continue
			}
			return nil, err
		}

		switch state.Status {
		case models.JobCompleted:
			if state.Result == nil || state.Result.ImageURL == "" {
				return nil, fmt.Errorf("completed job %s has no image url", jobID)
			}
			if p.log != nil {
				p.log.Info("generation completed", "job_id", jobID, "attempt", attempt)
			}
			return &Result{JobID: jobID, ImageURL: state.Result.ImageURL}, nil

		case models.JobFailed:
			message := state.Error
			if message == "" {
				message = "Job failed processing"
			}
			return nil, &JobFailedError{Message: message}

		default:
			// QUEUED / PROCESSING, keep polling.
		}
	}

	return nil, ErrJobTimeout
}

// Handle tracks a poll loop started with Start. Cancel stops it
// deterministically; a handle that is never cancelled runs to completion,
// failure or timeout exactly as Wait does.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	result *Result
	err    error
}

// Start launches the poll loop in the background and returns its handle.
func (p *Poller) Start(ctx context.Context, jobID string) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer cancel()
		h.result, h.err = p.Wait(ctx, jobID)
	}()

	return h
}

// Cancel stops the loop. Safe to call more than once.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the loop has finished for any reason.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the loop finishes and returns its outcome.
func (h *Handle) Result() (*Result, error) {
	<-h.done
	return h.result, h.err
}
