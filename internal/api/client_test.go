package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Options{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		InitData: func() string {
			return "query_id=test&hash=mockhash123"
		},
	})
	return client, srv
}

func TestLoginCachesToken(t *testing.T) {
	var logins atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "query_id=test&hash=mockhash123", body["initData"])

		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "token-1",
			"token_type":   "bearer",
		})
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	token, err := client.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	token, err = client.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	assert.Equal(t, int64(1), logins.Load())
}

func TestLoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid init data", http.StatusForbidden)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Empty(t, client.Session().Token())
}

func TestEnqueueSendsModelConfig(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})

	var captured map[string]any
	mux.HandleFunc("POST /api/generation", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1", "status": "QUEUED"})
	})

	client, _ := newTestClient(t, mux)

	jobID, err := client.EnqueueGeneration(context.Background(), "neon portrait", "style-7", "neon", map[string]any{
		"init_image": "https://cdn.example/u.png",
		"quality":    "high",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	assert.Equal(t, "neon portrait", captured["prompt"])
	assert.Equal(t, "neon", captured["slug"])

	mc, ok := captured["model_config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-image-1.5", mc["model"])
	assert.Equal(t, "high", mc["quality"])
	assert.Equal(t, "1024x1024", mc["size"])
	assert.Equal(t, "style-7", mc["style_id"])
	assert.Equal(t, "https://cdn.example/u.png", mc["init_image"])
}

func TestEnqueueUnauthorizedInvalidatesSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "stale"})
	})
	mux.HandleFunc("POST /api/generation", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	_, err := client.Login(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, client.Session().Token())

	_, err = client.EnqueueGeneration(ctx, "p", "s", "s", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, client.Session().Token())
}

func TestUploadImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "selfie.png", header.Filename)
		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/selfie.png"})
	})

	client, _ := newTestClient(t, mux)

	url, err := client.UploadImage(context.Background(), "selfie.png", strings.NewReader("fake-png"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/selfie.png", url)
}

func TestUploadImageErrorCarriesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.UploadImage(context.Background(), "big.png", strings.NewReader("x"))
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, uploadErr.Status)
}

func TestPollJobWrapsFailuresAsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("GET /api/generation/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusBadGateway)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.PollJob(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestPollJobCompleted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("GET /api/generation/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"job_id": r.PathValue("id"),
			"status": "COMPLETED",
			"result": map[string]string{"image_url": "https://cdn.example/out.png"},
		})
	})

	client, _ := newTestClient(t, mux)

	state, err := client.PollJob(context.Background(), "job-9")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, state.Status)
	require.NotNil(t, state.Result)
	assert.Equal(t, "https://cdn.example/out.png", state.Result.ImageURL)
}

func TestFetchGalleryPagePassesCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("GET /api/gallery", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(GalleryPage{
			Items: []GalleryItem{
				{ID: "g1", ImageURL: "https://cdn.example/g1.png", CreatedAt: "2026-08-30T10:00:00Z"},
			},
			NextCursor: "def",
		})
	})

	client, _ := newTestClient(t, mux)

	page, err := client.FetchGalleryPage(context.Background(), "abc", 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "g1", page.Items[0].ID)
	assert.Equal(t, "def", page.NextCursor)
}

func TestGetUserFailsSoft(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("GET /api/user/me", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	client, _ := newTestClient(t, mux)

	user, err := client.GetUser(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestSubmitFeedback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("POST /api/generation/{id}/feedback", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "like", body["verdict"])
		w.WriteHeader(http.StatusNoContent)
	})

	client, _ := newTestClient(t, mux)

	err := client.SubmitFeedback(context.Background(), "g1", models.FeedbackLike)
	assert.NoError(t, err)
}

func TestCreateInvoice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("POST /api/payment/create-invoice", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "creator", body["plan_id"])
		json.NewEncoder(w).Encode(map[string]string{"invoice_link": "https://t.me/$abc"})
	})

	client, _ := newTestClient(t, mux)

	link, err := client.CreateInvoice(context.Background(), "creator")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/$abc", link)
}
