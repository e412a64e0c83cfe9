package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

// scriptedFetcher returns one scripted response per poll, repeating the last
// one when the script runs out.
type scriptedFetcher struct {
	polls  int
	script []func() (*api.JobState, error)
}

func (f *scriptedFetcher) PollJob(ctx context.Context, jobID string) (*api.JobState, error) {
	index := f.polls
	f.polls++
	if index >= len(f.script) {
		index = len(f.script) - 1
	}
	return f.script[index]()
}

func processing() (*api.JobState, error) {
	return &api.JobState{Status: models.JobProcessing}, nil
}

func transient() (*api.JobState, error) {
	return nil, &api.TransientError{Err: errors.New("gateway hiccup")}
}

func completed(imageURL string) func() (*api.JobState, error) {
	return func() (*api.JobState, error) {
		state := &api.JobState{Status: models.JobCompleted}
		state.Result = &struct {
			ImageURL string `json:"image_url"`
		}{ImageURL: imageURL}
		return state, nil
	}
}

func failed(message string) func() (*api.JobState, error) {
	return func() (*api.JobState, error) {
		return &api.JobState{Status: models.JobFailed, Error: message}, nil
	}
}

func TestWaitCompletesAfterTransientErrors(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		processing,
		transient,
		processing,
		transient,
		completed("https://cdn.example/out.png"),
	}}

	poller := NewPoller(fetcher, time.Millisecond, 60, nil)

	result, err := poller.Wait(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, "https://cdn.example/out.png", result.ImageURL)
	assert.Equal(t, 5, fetcher.polls)
}

func TestWaitFailedJob(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		processing,
		failed("model rejected the prompt"),
	}}

	poller := NewPoller(fetcher, time.Millisecond, 60, nil)

	_, err := poller.Wait(context.Background(), "job-2")
	var jobErr *JobFailedError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "model rejected the prompt", jobErr.Message)
}

func TestWaitFailedJobDefaultMessage(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		failed(""),
	}}

	poller := NewPoller(fetcher, time.Millisecond, 60, nil)

	_, err := poller.Wait(context.Background(), "job-3")
	var jobErr *JobFailedError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "Job failed processing", jobErr.Message)
}

func TestWaitTimesOutAfterMaxAttempts(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		processing,
	}}

	poller := NewPoller(fetcher, time.Millisecond, 7, nil)

	_, err := poller.Wait(context.Background(), "job-4")
	assert.ErrorIs(t, err, ErrJobTimeout)
	assert.Equal(t, 7, fetcher.polls)
}

func TestWaitTransientErrorsConsumeAttempts(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		transient,
	}}

	poller := NewPoller(fetcher, time.Millisecond, 5, nil)

	_, err := poller.Wait(context.Background(), "job-5")
	assert.ErrorIs(t, err, ErrJobTimeout)
	assert.Equal(t, 5, fetcher.polls)
}

func TestWaitNonTransientErrorStops(t *testing.T) {
	hardErr := errors.New("token revoked")
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		func() (*api.JobState, error) { return nil, hardErr },
	}}

	poller := NewPoller(fetcher, time.Millisecond, 60, nil)

	_, err := poller.Wait(context.Background(), "job-6")
	assert.ErrorIs(t, err, hardErr)
	assert.Equal(t, 1, fetcher.polls)
}

func TestWaitCompletedWithoutImageURL(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		func() (*api.JobState, error) {
			return &api.JobState{Status: models.JobCompleted}, nil
		},
	}}

	poller := NewPoller(fetcher, time.Millisecond, 60, nil)

	_, err := poller.Wait(context.Background(), "job-7")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobTimeout)
}

func TestWaitHonorsContextCancel(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		processing,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	poller := NewPoller(fetcher, time.Hour, 60, nil)

	_, err := poller.Wait(ctx, "job-8")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fetcher.polls)
}

func TestHandleRunsToCompletion(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		processing,
		completed("https://cdn.example/done.png"),
	}}

	poller := NewPoller(fetcher, time.Millisecond, 60, nil)
	handle := poller.Start(context.Background(), "job-9")

	result, err := handle.Result()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/done.png", result.ImageURL)

	select {
	case <-handle.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

func TestHandleCancelStopsPolling(t *testing.T) {
	fetcher := &scriptedFetcher{script: []func() (*api.JobState, error){
		processing,
	}}

	poller := NewPoller(fetcher, time.Hour, 60, nil)
	handle := poller.Start(context.Background(), "job-10")
	handle.Cancel()

	_, err := handle.Result()
	assert.ErrorIs(t, err, context.Canceled)
}
