package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
	"github.com/mrvasilyev/pixel-pop-v2/internal/gallery"
	"github.com/mrvasilyev/pixel-pop-v2/internal/paywall"
)

// ErrPaywalled means the credit gate blocked the action and opened the
// paywall. Nothing was uploaded or enqueued.
var ErrPaywalled = errors.New("insufficient credits, paywall opened")

// Backend is the slice of the API client the flow needs.
type Backend interface {
	JobFetcher
	UploadImage(ctx context.Context, filename string, r io.Reader) (string, error)
	EnqueueGeneration(ctx context.Context, prompt, styleID, slug string, extra map[string]any) (string, error)
}

// PhotoRequest describes one user-initiated generation.
type PhotoRequest struct {
	File     io.Reader
	Filename string
	Prompt   string
	StyleID  string
	Slug     string
	Preview  *Preview
}

// Flow runs the whole generation sequence for one user action: credit gate,
// session start, upload, enqueue, poll, gallery hand-off, session stop.
type Flow struct {
	backend    Backend
	poller     *Poller
	controller *Controller
	store      *gallery.Store
	gate       *paywall.Gate
	log        *slog.Logger
}

func NewFlow(backend Backend, poller *Poller, controller *Controller, store *gallery.Store, gate *paywall.Gate, log *slog.Logger) *Flow {
	return &Flow{
		backend:    backend,
		poller:     poller,
		controller: controller,
		store:      store,
		gate:       gate,
		log:        log,
	}
}

// GeneratePhoto executes the flow. The preview shows before any network call;
// upload strictly precedes enqueue, which strictly precedes polling. All
// failures stop the session controller and propagate to the caller.
func (f *Flow) GeneratePhoto(ctx context.Context, req PhotoRequest) (*Result, error) {
	if !f.gate.RequestAction() {
		req.Preview.release()
		return nil, ErrPaywalled
	}

	f.controller.Start(req.Preview)
	defer f.controller.Stop()

	imageURL, err := f.backend.UploadImage(ctx, req.Filename, req.File)
	if err != nil {
		return nil, err
	}

	extra := map[string]any{"init_image": imageURL}
	if f.gate.PremiumMode() {
		extra["quality"] = "high"
	}

	jobID, err := f.backend.EnqueueGeneration(ctx, req.Prompt, req.StyleID, req.Slug, extra)
	if err != nil {
		return nil, err
	}
	if f.log != nil {
		f.log.Info("job enqueued", "job_id", jobID, "slug", req.Slug)
	}

	result, err := f.poller.Wait(ctx, jobID)
	if err != nil {
		return nil, err
	}

	f.store.PrependOptimistic(api.GalleryItem{
		ID:        result.JobID,
		ImageURL:  result.ImageURL,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	f.store.Refresh(ctx)

	return result, nil
}
