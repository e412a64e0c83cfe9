package generation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestControllerStartStop(t *testing.T) {
	c := NewController([]string{"Summoning pixels"})

	state := c.Snapshot()
	assert.False(t, state.Generating)
	assert.Empty(t, state.Caption)

	c.Start(&Preview{URL: "blob:preview-1"})

	state = c.Snapshot()
	assert.True(t, state.Generating)
	assert.Equal(t, "Summoning pixels", state.Caption)
	assert.Equal(t, "blob:preview-1", state.PreviewURL)

	c.Stop()

	state = c.Snapshot()
	assert.False(t, state.Generating)
	assert.Empty(t, state.Caption)
	assert.Empty(t, state.Dots)
	assert.Empty(t, state.PreviewURL)
}

func TestControllerCaptionComesFromPhrases(t *testing.T) {
	phrases := []string{"One", "Two", "Three"}
	c := NewController(phrases)
	c.Start(nil)
	defer c.Stop()

	assert.Contains(t, phrases, c.Snapshot().Caption)
}

func TestControllerDotsCycle(t *testing.T) {
	c := NewController([]string{"Working"}, WithIntervals(time.Hour, 2*time.Millisecond))
	c.Start(nil)
	defer c.Stop()

	seen := map[string]bool{}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		seen[c.Snapshot().Dots] = true
		if len(seen) == 4 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	for _, dots := range []string{"", ".", "..", "..."} {
		assert.True(t, seen[dots], "expected to observe dots state %q", dots)
	}
}

func TestControllerCaptionRotates(t *testing.T) {
	phrases := []string{"Alpha", "Beta"}
	c := NewController(phrases, WithIntervals(2*time.Millisecond, time.Hour))
	c.Start(nil)
	defer c.Stop()

	first := c.Snapshot().Caption

	require.Eventually(t, func() bool {
		return c.Snapshot().Caption != first
	}, time.Second, time.Millisecond)

	assert.Contains(t, phrases, c.Snapshot().Caption)
}

func TestControllerStopReleasesPreview(t *testing.T) {
	rec := &closeRecorder{}
	c := NewController([]string{"Working"})
	c.Start(&Preview{URL: "blob:p", Closer: rec})
	c.Stop()

	assert.True(t, rec.closed)
}

func TestControllerRestartReplacesPreview(t *testing.T) {
	first := &closeRecorder{}
	second := &closeRecorder{}

	c := NewController([]string{"Working"})
	c.Start(&Preview{URL: "blob:first", Closer: first})
	c.Start(&Preview{URL: "blob:second", Closer: second})
	defer c.Stop()

	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.Equal(t, "blob:second", c.Snapshot().PreviewURL)
}

func TestControllerStopWithoutStart(t *testing.T) {
	c := NewController(nil)
	c.Stop()

	assert.False(t, c.Snapshot().Generating)
}
