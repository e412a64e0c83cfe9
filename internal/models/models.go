package models

import "time"

type CreditTier string

const (
	TierStandard CreditTier = "standard"
	TierPremium  CreditTier = "premium"
)

type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type Feedback string

const (
	FeedbackLike    Feedback = "like"
	FeedbackDislike Feedback = "dislike"
)

type User struct {
	ID              int64
	TelegramID      int64
	Username        string
	FirstName       string
	LastName        string
	StandardCredits int
	PremiumCredits  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GenerationJob is the transient queue entry for one in-flight generation.
// It lives in the job store until resolved; the durable record is Generation.
type GenerationJob struct {
	ID        string
	UserID    int64
	Prompt    string
	StyleID   string
	StyleSlug string
	InitImage string
	Tier      CreditTier
	Status    JobStatus
	ImageURL  string
	Error     string
	CreatedAt time.Time
}

// Generation is the stored gallery row for a finished generation.
type Generation struct {
	ID        string
	UserID    int64
	Prompt    string
	StyleSlug string
	ImageURL  string
	Status    JobStatus
	Feedback  *Feedback
	CreatedAt time.Time
	DeletedAt *time.Time
}

type Payment struct {
	ID             int64
	UserID         int64
	PlanID         string
	Provider       string
	ProviderCharge string
	Currency       string
	Amount         int
	Status         string
	RawPayload     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
