package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mrvasilyev/pixel-pop-v2/internal/jobs"
	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
	"github.com/mrvasilyev/pixel-pop-v2/internal/paywall"
)

const maxUploadBytes = 10 << 20

type contextKey string

const userKey contextKey = "user"

type userResponse struct {
	ID              int64  `json:"id"`
	TelegramID      int64  `json:"telegram_id"`
	FirstName       string `json:"first_name"`
	Username        string `json:"username"`
	StandardCredits int    `json:"standard_credits"`
	PremiumCredits  int    `json:"premium_credits"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:              u.ID,
		TelegramID:      u.TelegramID,
		FirstName:       u.FirstName,
		Username:        u.Username,
		StandardCredits: u.StandardCredits,
		PremiumCredits:  u.PremiumCredits,
	}
}

type loginRequest struct {
	InitData string `json:"initData"`
}

// handleLogin exchanges Telegram initData for a bearer token, creating the
// user record on first contact.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	tgUser, err := s.validator.ValidateInitData(req.InitData)
	if err != nil {
		s.log.Warn("login rejected", "err", err)
		http.Error(w, "invalid init data", http.StatusForbidden)
		return
	}

	user, _, err := s.users.Ensure(r.Context(), tgUser.ID, tgUser.Username, tgUser.FirstName, tgUser.LastName)
	if err != nil {
		s.internalError(w, err)
		return
	}

	token, err := s.validator.IssueToken(tgUser.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         toUserResponse(user),
	})
}

func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			telegramID, err := s.validator.VerifyToken(r.Header.Get("Authorization"))
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			user, err := s.users.FindByTelegramID(r.Context(), telegramID)
			if err != nil {
				s.internalError(w, err)
				return
			}
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

func requestUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(userKey).(*models.User)
	return user
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toUserResponse(requestUser(r)))
}

// handleUpload stores a multipart source image and returns its durable URL.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file error", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	url, err := s.storage.Upload(r.Context(), data, contentType)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type generationRequest struct {
	Prompt      string `json:"prompt"`
	Slug        string `json:"slug"`
	ModelConfig struct {
		Model     string `json:"model"`
		Quality   string `json:"quality"`
		Size      string `json:"size"`
		StyleID   string `json:"style_id"`
		InitImage string `json:"init_image"`
	} `json:"model_config"`
}

// handleEnqueueGeneration checks the tier balance and enqueues a job. The
// credit itself is consumed by the worker when it picks the job up.
func (s *Server) handleEnqueueGeneration(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req generationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, "prompt required", http.StatusBadRequest)
		return
	}

	tier := models.TierStandard
	if req.ModelConfig.Quality == "high" {
		tier = models.TierPremium
	}

	balance := user.StandardCredits
	if tier == models.TierPremium {
		balance = user.PremiumCredits
	}
	if balance < 1 {
		http.Error(w, "insufficient credits", http.StatusPaymentRequired)
		return
	}

	job := &models.GenerationJob{
		UserID:    user.ID,
		Prompt:    req.Prompt,
		StyleID:   req.ModelConfig.StyleID,
		StyleSlug: req.Slug,
		InitImage: req.ModelConfig.InitImage,
		Tier:      tier,
	}
	jobID, err := s.jobs.Enqueue(r.Context(), job)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.log.Info("job enqueued", "job_id", jobID, "user_id", user.ID, "slug", req.Slug, "tier", tier)
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": models.JobQueued,
	})
}

func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	jobID := chi.URLParam(r, "id")

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}
	if job.UserID != user.ID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	resp := map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	}
	if job.Status == models.JobCompleted {
		resp["result"] = map[string]string{"image_url": job.ImageURL}
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	limit := s.pageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := s.generations.ListPage(r.Context(), user.ID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(page.Items))
	for _, gen := range page.Items {
		item := map[string]any{
			"id":         gen.ID,
			"image_url":  gen.ImageURL,
			"created_at": gen.CreatedAt.UTC().Format(time.RFC3339),
		}
		if gen.Feedback != nil {
			item["feedback"] = *gen.Feedback
		}
		items = append(items, item)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"next_cursor": page.NextCursor,
	})
}

func (s *Server) handleDeleteGeneration(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id := chi.URLParam(r, "id")

	deleted, err := s.generations.SoftDelete(r.Context(), user.ID, id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !deleted {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequest struct {
	Verdict models.Feedback `json:"verdict"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id := chi.URLParam(r, "id")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Verdict != models.FeedbackLike && req.Verdict != models.FeedbackDislike {
		http.Error(w, "verdict must be like or dislike", http.StatusBadRequest)
		return
	}

	updated, err := s.generations.SetFeedback(r.Context(), user.ID, id, req.Verdict)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !updated {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invoiceRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req invoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	plan := paywall.PlanByID(req.PlanID)
	if plan == nil {
		http.Error(w, "unknown plan", http.StatusBadRequest)
		return
	}

	if s.invoices == nil {
		http.Error(w, "payments unavailable", http.StatusServiceUnavailable)
		return
	}

	link, err := s.invoices.CreateInvoiceLink(r.Context(), *plan, user.TelegramID)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"invoice_link": link})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
