package generation

import (
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	defaultWordInterval = 3 * time.Second
	defaultDotInterval  = 500 * time.Millisecond
	maxDots             = 3
)

// Preview is the locally rendered stand-in shown while a generation runs.
// Closer releases the underlying resource (a temp file, a buffer) when the
// session stops or the preview is replaced.
type Preview struct {
	URL    string
	Closer io.Closer
}

func (p *Preview) release() {
	if p != nil && p.Closer != nil {
		_ = p.Closer.Close()
	}
}

// State is a snapshot of the controller for rendering.
type State struct {
	Generating bool
	Caption    string
	Dots       string
	PreviewURL string
}

// Controller is the single-slot state machine for one generation in flight.
// The caption rotation and the dots animation are pure presentation; they say
// nothing about actual job progress. The controller does not serialize
// concurrent generations, the calling UI is responsible for that.
type Controller struct {
	mu           sync.Mutex
	phrases      []string
	wordInterval time.Duration
	dotInterval  time.Duration

	generating bool
	caption    string
	dots       int
	preview    *Preview
	stop       chan struct{}
}

type ControllerOption func(*Controller)

// WithIntervals overrides the caption and dots cadence. Tests use this.
func WithIntervals(word, dot time.Duration) ControllerOption {
	return func(c *Controller) {
		if word > 0 {
			c.wordInterval = word
		}
		if dot > 0 {
			c.dotInterval = dot
		}
	}
}

func NewController(phrases []string, opts ...ControllerOption) *Controller {
	if len(phrases) == 0 {
		phrases = []string{"Loading"}
	}
	c := &Controller{
		phrases:      phrases,
		wordInterval: defaultWordInterval,
		dotInterval:  defaultDotInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start transitions to the generating state, shows the preview and begins the
// caption loops. Starting while already started replaces the preview and
// restarts the loops.
func (c *Controller) Start(preview *Preview) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLoopsLocked()
	c.preview.release()

	c.generating = true
	c.preview = preview
	c.dots = 0

	index := rand.Intn(len(c.phrases))
	c.caption = c.phrases[index]

	c.stop = make(chan struct{})
	go c.run(index, c.stop)
}

// Stop cancels the loops, clears the caption and releases the preview.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLoopsLocked()
	c.preview.release()
	c.preview = nil
	c.generating = false
	c.caption = ""
	c.dots = 0
}

// Snapshot returns the current render state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := State{
		Generating: c.generating,
		Caption:    c.caption,
		Dots:       strings.Repeat(".", c.dots),
	}
	if c.preview != nil {
		state.PreviewURL = c.preview.URL
	}
	return state
}

func (c *Controller) stopLoopsLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Controller) run(wordIndex int, stop chan struct{}) {
	words := time.NewTicker(c.wordInterval)
	dots := time.NewTicker(c.dotInterval)
	defer words.Stop()
	defer dots.Stop()

	for {
		select {
		case <-stop:
			return
		case <-words.C:
			wordIndex = (wordIndex + 1) % len(c.phrases)
			c.mu.Lock()
			if c.stop == stop {
				c.caption = c.phrases[wordIndex]
			}
			c.mu.Unlock()
		case <-dots.C:
			c.mu.Lock()
			if c.stop == stop {
				c.dots = (c.dots + 1) % (maxDots + 1)
			}
			c.mu.Unlock()
		}
	}
}
