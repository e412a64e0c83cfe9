package generation

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
	"github.com/mrvasilyev/pixel-pop-v2/internal/gallery"
	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
	"github.com/mrvasilyev/pixel-pop-v2/internal/paywall"
)

type fakeBackend struct {
	uploads   int
	enqueues  int
	fetches   int
	lastExtra map[string]any

	serverItems []api.GalleryItem
}

func (b *fakeBackend) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	b.uploads++
	return "https://cdn.example/uploads/selfie.png", nil
}

func (b *fakeBackend) EnqueueGeneration(ctx context.Context, prompt, styleID, slug string, extra map[string]any) (string, error) {
	b.enqueues++
	b.lastExtra = extra
	return "job-42", nil
}

func (b *fakeBackend) PollJob(ctx context.Context, jobID string) (*api.JobState, error) {
	state := &api.JobState{JobID: jobID, Status: models.JobCompleted}
	state.Result = &struct {
		ImageURL string `json:"image_url"`
	}{ImageURL: "https://cdn.example/generations/job-42.png"}
	return state, nil
}

func (b *fakeBackend) FetchGalleryPage(ctx context.Context, cursor string, limit int) (*api.GalleryPage, error) {
	b.fetches++
	return &api.GalleryPage{Items: b.serverItems}, nil
}

func newTestFlow(backend *fakeBackend, user *api.UserInfo) (*Flow, *gallery.Store, *paywall.Gate) {
	gate := paywall.NewGate(nil)
	gate.SetUser(user)

	store := gallery.NewStore(backend, 20, nil, nil)
	controller := NewController([]string{"Working"})
	poller := NewPoller(backend, time.Millisecond, 60, nil)
	return NewFlow(backend, poller, controller, store, gate, nil), store, gate
}

func TestGeneratePhotoBlockedByPaywall(t *testing.T) {
	backend := &fakeBackend{}
	flow, _, gate := newTestFlow(backend, &api.UserInfo{StandardCredits: 0, PremiumCredits: 0})

	rec := &closeRecorder{}
	_, err := flow.GeneratePhoto(context.Background(), PhotoRequest{
		Filename: "selfie.png",
		Preview:  &Preview{URL: "blob:p", Closer: rec},
	})

	assert.ErrorIs(t, err, ErrPaywalled)
	assert.True(t, gate.PaywallOpen())
	assert.True(t, rec.closed)

	assert.Zero(t, backend.uploads)
	assert.Zero(t, backend.enqueues)
	assert.Zero(t, backend.fetches)
}

func TestGeneratePhotoSuccess(t *testing.T) {
	backend := &fakeBackend{}
	flow, store, _ := newTestFlow(backend, &api.UserInfo{StandardCredits: 3})

	result, err := flow.GeneratePhoto(context.Background(), PhotoRequest{
		Filename: "selfie.png",
		Prompt:   "neon portrait",
		StyleID:  "neon",
		Slug:     "neon",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-42", result.JobID)
	assert.Equal(t, "https://cdn.example/generations/job-42.png", result.ImageURL)

	assert.Equal(t, 1, backend.uploads)
	assert.Equal(t, 1, backend.enqueues)
	assert.Equal(t, "https://cdn.example/uploads/selfie.png", backend.lastExtra["init_image"])
	assert.NotContains(t, backend.lastExtra, "quality")

	// The new item is visible even before the server confirms it.
	items := store.Items()
	require.NotEmpty(t, items)
	assert.Equal(t, "job-42", items[0].ID)
	assert.Equal(t, 1, backend.fetches)
}

func TestGeneratePhotoPremiumModeRequestsHighQuality(t *testing.T) {
	backend := &fakeBackend{}
	flow, _, gate := newTestFlow(backend, &api.UserInfo{PremiumCredits: 2})
	gate.SetPremiumMode(true)

	_, err := flow.GeneratePhoto(context.Background(), PhotoRequest{
		Filename: "selfie.png",
		Prompt:   "oil painting",
	})
	require.NoError(t, err)
	assert.Equal(t, "high", backend.lastExtra["quality"])
}

func TestGeneratePhotoPremiumModeGatesOnPremiumBalance(t *testing.T) {
	backend := &fakeBackend{}
	flow, _, gate := newTestFlow(backend, &api.UserInfo{StandardCredits: 10, PremiumCredits: 0})
	gate.SetPremiumMode(true)

	_, err := flow.GeneratePhoto(context.Background(), PhotoRequest{Filename: "selfie.png"})
	assert.ErrorIs(t, err, ErrPaywalled)
	assert.Zero(t, backend.uploads)
}
