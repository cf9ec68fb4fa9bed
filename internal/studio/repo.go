package studio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Omit("Messages", "History").Create(s).Error
}

// Load returns the whole aggregate, children in append order.
func (r *Repo) Load(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// LoadOwned is Load plus the ownership check; a foreign session is reported as missing.
func (r *Repo) LoadOwned(ctx context.Context, userID uint64, id string) (*Session, error) {
	s, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, ErrNotFound
	}
	return s, nil
}

// Save writes the aggregate in one transaction: the session row is rewritten
// and messages/history past what is already stored are appended. Children are
// never updated or deleted here.
func (r *Repo) Save(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) session row
		res := tx.Model(&Session{}).Where("id = ?", s.ID).Updates(map[string]any{
			"name":                s.Name,
			"component_jsx":       s.Current.JSX,
			"component_css":       s.Current.CSS,
			"component_timestamp": s.Current.Timestamp,
			"last_accessed":       s.LastAccessed,
		})
		if res.Error != nil {
			return res.Error
		}

		// 2) message tail
		var stored int64
		if err := tx.Model(&Message{}).Where("session_id = ?", s.ID).Count(&stored).Error; err != nil {
			return err
		}
		if int(stored) > len(s.Messages) {
			return fmt.Errorf("session %s: stored messages (%d) exceed aggregate (%d)", s.ID, stored, len(s.Messages))
		}
		if tail := s.Messages[stored:]; len(tail) > 0 {
			for i := range tail {
				tail[i].SessionID = s.ID
				tail[i].Seq = int(stored) + i
			}
			if err := tx.Create(&tail).Error; err != nil {
				return err
			}
		}

		// 3) history tail
		stored = 0
		if err := tx.Model(&HistoryEntry{}).Where("session_id = ?", s.ID).Count(&stored).Error; err != nil {
			return err
		}
		if int(stored) > len(s.History) {
			return fmt.Errorf("session %s: stored history (%d) exceeds aggregate (%d)", s.ID, stored, len(s.History))
		}
		if tail := s.History[stored:]; len(tail) > 0 {
			for i := range tail {
				tail[i].SessionID = s.ID
				tail[i].Seq = int(stored) + i
			}
			if err := tx.Create(&tail).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Touch bumps last_accessed for a session-scoped read.
func (r *Repo) Touch(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Update("last_accessed", at).Error
}

func (r *Repo) Rename(ctx context.Context, id, name string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "last_accessed": at}).Error
}

// Delete removes the session with its messages, history and jobs.
func (r *Repo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&HistoryEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&Job{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type summaryRow struct {
	ID           string
	Name         string
	LastAccessed time.Time
	CreatedAt    time.Time
	MessageCount int64
	JSXLen       int64
}

// ListSummaries returns the owner's sessions, most recently accessed first.
func (r *Repo) ListSummaries(ctx context.Context, userID uint64) ([]SessionSummary, error) {
	var rows []summaryRow
	err := r.db.WithContext(ctx).
		Table("studio_sessions AS s").
		Select(`s.id, s.name, s.last_accessed, s.created_at,
			(SELECT COUNT(*) FROM studio_messages m WHERE m.session_id = s.id) AS message_count,
			LENGTH(s.component_jsx) AS jsx_len`).
		Where("s.user_id = ?", userID).
		Order("s.last_accessed DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]SessionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, SessionSummary{
			ID:           row.ID,
			Name:         row.Name,
			LastAccessed: row.LastAccessed,
			Created:      row.CreatedAt,
			MessageCount: int(row.MessageCount),
			HasComponent: row.JSXLen > 0,
		})
	}
	return out, nil
}

// Job CRUD

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// HasActiveJob reports whether the session has a queued job, or a running job
// updated after staleBefore. Older running jobs belong to a worker that died
// mid-turn and no longer hold the session.
func (r *Repo) HasActiveJob(ctx context.Context, sessionID string, staleBefore time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("session_id = ?", sessionID).
		Where("status = ? OR (status = ? AND updated_at > ?)", JobQueued, JobRunning, staleBefore).
		Count(&n).Error
	return n > 0, err
}

func (r *Repo) getJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting creates job, unless (user_id, idempotency_key) already
// exists, in which case the existing job is returned with created=false.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey != nil && *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
	}
	if job.IdempotencyKey == nil {
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	existing, err := r.getJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	createErr := r.db.WithContext(ctx).Create(job).Error
	if createErr == nil {
		return job, true, nil
	}
	// lost a race on the unique index
	existing, err = r.getJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	return nil, false, createErr
}

// MarkJobRunning moves a queued job to running. It reports false when the
// job was not queued (already picked up, finished, or missing).
func (r *Repo) MarkJobRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning)
	return res.RowsAffected > 0, res.Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantSeq int) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             JobSucceeded,
			"result_message_seq": assistantSeq,
			"error":              nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             JobFailed,
			"error":              errMsg,
			"result_message_seq": nil,
		}).Error
}
