package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

const (
	queueKey  = "generation_queue"
	jobKeyFmt = "job:%s"
	jobTTL    = 24 * time.Hour
)

// ErrNotFound is returned by Get for unknown or expired job ids.
var ErrNotFound = errors.New("job not found")

// Manager owns the generation job queue and per-job state. With a Redis URL
// configured the queue survives restarts and can be shared between the API
// and a separate worker process; without one everything lives in memory,
// which is how dev and tests run.
type Manager struct {
	redis *redis.Client
	log   *slog.Logger

	mu       sync.Mutex
	memJobs  map[string]*models.GenerationJob
	memQueue chan string
}

func NewManager(redisURL string, log *slog.Logger) *Manager {
	m := &Manager{
		log:      log,
		memJobs:  make(map[string]*models.GenerationJob),
		memQueue: make(chan string, 1024),
	}

	if redisURL == "" {
		return m
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		if log != nil {
			log.Warn("invalid redis url, falling back to in-memory jobs", "err", err)
		}
		return m
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if log != nil {
			log.Warn("redis unreachable, falling back to in-memory jobs", "err", err)
		}
		_ = client.Close()
		return m
	}

	m.redis = client
	return m
}

func (m *Manager) Close() error {
	if m.redis != nil {
		return m.redis.Close()
	}
	return nil
}

// Enqueue assigns the job an id, marks it QUEUED and appends it to the queue.
func (m *Manager) Enqueue(ctx context.Context, job *models.GenerationJob) (string, error) {
	job.ID = uuid.NewString()
	job.Status = models.JobQueued
	job.CreatedAt = time.Now().UTC()

	if m.redis != nil {
		data, err := json.Marshal(job)
		if err != nil {
			return "", fmt.Errorf("marshal job: %w", err)
		}
		pipe := m.redis.TxPipeline()
		pipe.Set(ctx, fmt.Sprintf(jobKeyFmt, job.ID), data, jobTTL)
		pipe.RPush(ctx, queueKey, job.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return "", fmt.Errorf("enqueue job: %w", err)
		}
		return job.ID, nil
	}

	m.mu.Lock()
	copied := *job
	m.memJobs[job.ID] = &copied
	m.mu.Unlock()

	select {
	case m.memQueue <- job.ID:
	default:
		return "", fmt.Errorf("job queue full")
	}
	return job.ID, nil
}

// Get returns the current job state.
func (m *Manager) Get(ctx context.Context, id string) (*models.GenerationJob, error) {
	if m.redis != nil {
		data, err := m.redis.Get(ctx, fmt.Sprintf(jobKeyFmt, id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("get job: %w", err)
		}
		var job models.GenerationJob
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		return &job, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.memJobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *job
	return &copied, nil
}

// Update applies mutate to the stored job state.
func (m *Manager) Update(ctx context.Context, id string, mutate func(*models.GenerationJob)) error {
	if m.redis != nil {
		job, err := m.Get(ctx, id)
		if err != nil {
			return err
		}
		mutate(job)
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		if err := m.redis.Set(ctx, fmt.Sprintf(jobKeyFmt, id), data, jobTTL).Err(); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.memJobs[id]
	if !ok {
		return ErrNotFound
	}
	mutate(job)
	return nil
}

// Pop takes the next queued job, waiting up to a second before returning
// nil so worker loops stay responsive to shutdown.
func (m *Manager) Pop(ctx context.Context) (*models.GenerationJob, error) {
	if m.redis != nil {
		res, err := m.redis.BLPop(ctx, time.Second, queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("pop job: %w", err)
		}
		// res[0] is the queue key, res[1] the job id.
		job, err := m.Get(ctx, res[1])
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return job, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case id := <-m.memQueue:
		job, err := m.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return job, err
	case <-time.After(time.Second):
		return nil, nil
	}
}
