package studio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/ai-component-studio/internal/common"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
)

type JobStatus string

const (
	// DefaultJobStaleAfter bounds how long a running job may hold its session.
	DefaultJobStaleAfter = 5 * time.Minute
	jobWriteTimeout      = 5 * time.Second
)

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one asynchronous turn, executed by the worker.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	UserID    uint64 `gorm:"index:uniq_studio_job_idempo,unique,priority:1;not null" json:"-"`
	SessionID string `gorm:"size:26;index;not null" json:"session_id"`

	Prompt string `gorm:"type:text;not null" json:"prompt"`
	Image  string `gorm:"type:longtext" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_studio_job_idempo,unique,priority:2" json:"-"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded: seq of the assistant message the turn appended
	ResultMessageSeq *int `json:"result_message_seq"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "studio_jobs" }

// EnqueueTurn records an asynchronous turn. A repeated idempotency key returns
// the original job with created=false; the caller publishes only new jobs.
func (s *Service) EnqueueTurn(ctx context.Context, userID uint64, sessionID, text string, image []byte, idempotencyKey string) (*Job, bool, error) {
	imageURL, err := s.EncodeImage(image)
	if err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(text) == "" && imageURL == "" {
		return nil, false, fmt.Errorf("content or image required: %w", ErrInvalidInput)
	}
	if _, err := s.repo.LoadOwned(ctx, userID, sessionID); err != nil {
		return nil, false, err
	}

	var key *string
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		if len(k) > 128 {
			return nil, false, fmt.Errorf("idempotency key too long: %w", ErrInvalidInput)
		}
		key = &k
		if existing, err := s.repo.getJobByUserAndIdempotencyKey(ctx, userID, k); err == nil {
			return existing, false, nil
		}
	}

	busy, err := s.repo.HasActiveJob(ctx, sessionID, s.now().Add(-s.jobStaleAfter))
	if err != nil {
		return nil, false, fmt.Errorf("check active jobs: %w", err)
	}
	if busy {
		return nil, false, fmt.Errorf("session %s: %w", sessionID, ErrBusy)
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	job, created, err := s.repo.CreateJobOrGetExisting(ctx, &Job{
		ID:             jobID,
		UserID:         userID,
		SessionID:      sessionID,
		Prompt:         text,
		Image:          imageURL,
		IdempotencyKey: key,
		Status:         JobQueued,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	return job, created, nil
}

// GetJob returns a job owned by userID.
func (s *Service) GetJob(ctx context.Context, userID uint64, jobID string) (*Job, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, ErrNotFound
	}
	return j, nil
}

// ProcessJob runs a queued job to completion. A job that is no longer queued
// is skipped. The returned error is the turn's failure, already recorded on the job.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	log := logger.FromContext(ctx).With(zap.String("job_id", jobID))

	claimed, err := s.repo.MarkJobRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if !claimed {
		log.Info("job not queued, skipping")
		return nil
	}

	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	res, err := s.postTurn(ctx, job.UserID, job.SessionID, job.Prompt, job.Image)

	// the final state is written even when ctx was cancelled mid-turn
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobWriteTimeout)
	defer cancel()
	if err != nil {
		if markErr := s.repo.MarkJobFailed(wctx, jobID, err.Error()); markErr != nil {
			log.Error("mark job failed", zap.Error(markErr))
		}
		return err
	}
	if err := s.repo.MarkJobSucceeded(wctx, jobID, res.Message.Seq); err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	return nil
}

// AbandonJob marks a job that never reached the queue as failed, so it does
// not keep the session busy.
func (s *Service) AbandonJob(ctx context.Context, jobID, reason string) error {
	return s.repo.MarkJobFailed(ctx, jobID, reason)
}

// SetJobStaleAfter sets the age after which a running job stops counting as
// active. It should exceed the generation timeout.
func (s *Service) SetJobStaleAfter(d time.Duration) {
	if d > 0 {
		s.jobStaleAfter = d
	}
}
