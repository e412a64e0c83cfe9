package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mrvasilyev/pixel-pop-v2/internal/auth"
	"github.com/mrvasilyev/pixel-pop-v2/internal/jobs"
	"github.com/mrvasilyev/pixel-pop-v2/internal/paywall"
	"github.com/mrvasilyev/pixel-pop-v2/internal/repository"
)

// ImageStorage stores an uploaded source image and returns its public URL.
type ImageStorage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// InvoiceCreator issues a Telegram Stars invoice link for a plan.
type InvoiceCreator interface {
	CreateInvoiceLink(ctx context.Context, plan paywall.Plan, telegramID int64) (string, error)
}

type Server struct {
	addr        string
	log         *slog.Logger
	validator   *auth.Validator
	users       *repository.UserRepository
	generations *repository.GenerationRepository
	jobs        *jobs.Manager
	storage     ImageStorage
	invoices    InvoiceCreator
	pageLimit   int
	router      *chi.Mux
}

func NewServer(addr string, log *slog.Logger, validator *auth.Validator, users *repository.UserRepository, generations *repository.GenerationRepository, jobManager *jobs.Manager, storage ImageStorage, invoices InvoiceCreator, pageLimit int) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:        addr,
		log:         log,
		validator:   validator,
		users:       users,
		generations: generations,
		jobs:        jobManager,
		storage:     storage,
		invoices:    invoices,
		pageLimit:   pageLimit,
		router:      r,
	}

	r.Post("/api/auth/login", s.handleLogin)
	r.Group(func(protected chi.Router) {
		protected.Use(s.authMiddleware())
		protected.Get("/api/user/me", s.handleMe)
		protected.Post("/api/upload", s.handleUpload)
		protected.Post("/api/generation", s.handleEnqueueGeneration)
		protected.Get("/api/generation/{id}", s.handleGenerationStatus)
		protected.Delete("/api/generation/{id}", s.handleDeleteGeneration)
		protected.Post("/api/generation/{id}/feedback", s.handleFeedback)
		protected.Get("/api/gallery", s.handleGallery)
		protected.Post("/api/payment/create-invoice", s.handleCreateInvoice)
	})

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}
