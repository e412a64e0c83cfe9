package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mrvasilyev/pixel-pop-v2/internal/imagegen"
	"github.com/mrvasilyev/pixel-pop-v2/internal/jobs"
	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

var errInsufficientCredits = errors.New("insufficient credits")

// Generator produces an image for a prompt and fetches its bytes.
type Generator interface {
	Generate(ctx context.Context, opts imagegen.Options) (string, error)
	Download(ctx context.Context, imageURL string) ([]byte, error)
}

// ResultStorage stores a finished generation and returns its public URL.
type ResultStorage interface {
	UploadGeneration(ctx context.Context, userID int64, jobID string, data []byte) (string, error)
}

// CreditConsumer atomically spends one credit of a tier.
type CreditConsumer interface {
	ConsumeCredit(ctx context.Context, userID int64, tier models.CreditTier) (bool, error)
}

// GenerationRecorder persists the durable gallery row.
type GenerationRecorder interface {
	Create(ctx context.Context, gen *models.Generation) error
}

// Worker drains the job queue: consume a credit, call the model, store the
// result, record the gallery row. Every failure marks the job FAILED with a
// message the client surfaces as-is.
type Worker struct {
	jobs        *jobs.Manager
	generator   Generator
	storage     ResultStorage
	credits     CreditConsumer
	generations GenerationRecorder
	log         *slog.Logger
}

func New(jobManager *jobs.Manager, generator Generator, storage ResultStorage, credits CreditConsumer, generations GenerationRecorder, log *slog.Logger) *Worker {
	return &Worker{
		jobs:        jobManager,
		generator:   generator,
		storage:     storage,
		credits:     credits,
		generations: generations,
		log:         log,
	}
}

// Run drains jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return
		default:
		}

		job, err := w.jobs.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("pop job failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one job to a terminal state.
func (w *Worker) Process(ctx context.Context, job *models.GenerationJob) {
	if err := w.jobs.Update(ctx, job.ID, func(j *models.GenerationJob) {
		j.Status = models.JobProcessing
	}); err != nil {
		w.log.Error("mark processing failed", "job_id", job.ID, "err", err)
	}

	imageURL, err := w.process(ctx, job)
	if err != nil {
		w.log.Error("job failed", "job_id", job.ID, "err", err)
		if updateErr := w.jobs.Update(ctx, job.ID, func(j *models.GenerationJob) {
			j.Status = models.JobFailed
			j.Error = err.Error()
		}); updateErr != nil {
			w.log.Error("mark failed failed", "job_id", job.ID, "err", updateErr)
		}
		return
	}

	if err := w.jobs.Update(ctx, job.ID, func(j *models.GenerationJob) {
		j.Status = models.JobCompleted
		j.ImageURL = imageURL
	}); err != nil {
		w.log.Error("mark completed failed", "job_id", job.ID, "err", err)
	}
	w.log.Info("job completed", "job_id", job.ID, "user_id", job.UserID)
}

func (w *Worker) process(ctx context.Context, job *models.GenerationJob) (string, error) {
	// The balance was only checked at enqueue time; the consume here is the
	// authoritative spend and may lose a race to another job.
	ok, err := w.credits.ConsumeCredit(ctx, job.UserID, job.Tier)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errInsufficientCredits
	}

	quality := "medium"
	if job.Tier == models.TierPremium {
		quality = "high"
	}

	modelURL, err := w.generator.Generate(ctx, imagegen.Options{
		Prompt:    job.Prompt,
		InitImage: job.InitImage,
		Quality:   quality,
	})
	if err != nil {
		return "", err
	}

	data, err := w.generator.Download(ctx, modelURL)
	if err != nil {
		return "", err
	}

	publicURL, err := w.storage.UploadGeneration(ctx, job.UserID, job.ID, data)
	if err != nil {
		return "", err
	}

	gen := &models.Generation{
		ID:        job.ID,
		UserID:    job.UserID,
		Prompt:    job.Prompt,
		StyleSlug: job.StyleSlug,
		ImageURL:  publicURL,
		Status:    models.JobCompleted,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.generations.Create(ctx, gen); err != nil {
		// The image exists; losing the gallery row is worse than a duplicate
		// log line, so surface it but keep the job completed.
		w.log.Error("record generation failed", "job_id", job.ID, "err", err)
	}

	return publicURL, nil
}
