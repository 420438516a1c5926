package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"horse.fit/transync/internal/globaltime"
)

// JobSummary is one row of the job listing.
type JobSummary struct {
	JobID           int64
	JobUUID         string
	Label           string
	SourceLang      string
	TargetLang      string
	Tier            string
	State           string
	ItemCount       int64
	DataItemCount   int64
	TranslatedCount int64
}

// CreateJob inserts a job together with its items and data items.
func (p *Pool) CreateJob(ctx context.Context, job *Job) error {
	if err := p.ready(); err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if err := p.gdb.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetTranslationJob loads a job with its items and data items in position order.
func (p *Pool) GetTranslationJob(ctx context.Context, jobID int64) (*Job, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	var job Job
	err := p.gdb.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC, job_item_id ASC")
		}).
		Preload("Items.DataItems", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC, data_item_id ASC")
		}).
		Where("job_id = ?", jobID).
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query translation job: %w", err)
	}
	return &job, nil
}

func (p *Pool) ListJobs(ctx context.Context, state string, limit int) ([]JobSummary, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	query := p.gdb.WithContext(ctx).Model(&Job{}).Order("job_id DESC").Limit(limit)
	if state = strings.TrimSpace(state); state != "" {
		query = query.Where("state = ?", state)
	}
	var jobs []Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	out := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		row := JobSummary{
			JobID:      job.JobID,
			JobUUID:    job.JobUUID,
			Label:      job.Label,
			SourceLang: job.SourceLang,
			TargetLang: job.TargetLang,
			Tier:       job.Tier,
			State:      job.State,
		}
		if err := p.gdb.WithContext(ctx).Model(&JobItem{}).Where("job_id = ?", job.JobID).Count(&row.ItemCount).Error; err != nil {
			return nil, fmt.Errorf("count job items: %w", err)
		}
		if err := p.gdb.WithContext(ctx).Model(&DataItem{}).Where("job_item_id IN (?)", p.jobItemIDs(ctx, job.JobID)).Count(&row.DataItemCount).Error; err != nil {
			return nil, fmt.Errorf("count data items: %w", err)
		}
		if err := p.gdb.WithContext(ctx).Model(&DataItem{}).
			Where("job_item_id IN (?) AND translated_text IS NOT NULL", p.jobItemIDs(ctx, job.JobID)).
			Count(&row.TranslatedCount).Error; err != nil {
			return nil, fmt.Errorf("count translated data items: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// ListActiveJobIDs returns every job that has been submitted and not rejected.
func (p *Pool) ListActiveJobIDs(ctx context.Context) ([]int64, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	var ids []int64
	if err := p.gdb.WithContext(ctx).Model(&Job{}).
		Where("state = ?", JobStateActive).
		Order("job_id ASC").
		Pluck("job_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("query active jobs: %w", err)
	}
	return ids, nil
}

// MarkJobSubmitted moves a job to the active state and records message.
func (p *Pool) MarkJobSubmitted(ctx context.Context, jobID int64, message string) error {
	return p.transitionJob(ctx, jobID, JobStateActive, MessageLevelStatus, message)
}

// MarkJobRejected moves a job to the rejected state and records message.
func (p *Pool) MarkJobRejected(ctx context.Context, jobID int64, message string) error {
	return p.transitionJob(ctx, jobID, JobStateRejected, MessageLevelError, message)
}

func (p *Pool) transitionJob(ctx context.Context, jobID int64, state, level, message string) error {
	if err := p.ready(); err != nil {
		return err
	}

	return p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"state": state}
		if state == JobStateActive {
			updates["submitted_at"] = globaltime.UTC()
		}
		res := tx.Model(&Job{}).Where("job_id = ?", jobID).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update job state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNoRows
		}
		if strings.TrimSpace(message) == "" {
			return nil
		}
		if err := tx.Create(&JobMessage{JobID: jobID, Level: level, Message: message}).Error; err != nil {
			return fmt.Errorf("insert job message: %w", err)
		}
		return nil
	})
}

func (p *Pool) AppendJobMessage(ctx context.Context, jobID int64, level, message string) error {
	if err := p.ready(); err != nil {
		return err
	}
	level = strings.TrimSpace(level)
	if level == "" {
		level = MessageLevelStatus
	}
	if err := p.gdb.WithContext(ctx).Create(&JobMessage{JobID: jobID, Level: level, Message: message}).Error; err != nil {
		return fmt.Errorf("insert job message: %w", err)
	}
	return nil
}

func (p *Pool) ListJobMessages(ctx context.Context, jobID int64) ([]JobMessage, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	var out []JobMessage
	if err := p.gdb.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("job_message_id ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query job messages: %w", err)
	}
	return out, nil
}

// SetTranslatedText stores text on the data item identified by
// (jobID, jobItemID, path). Writing the same text again is a no-op in effect.
func (p *Pool) SetTranslatedText(ctx context.Context, jobID, jobItemID int64, path, text string) error {
	if err := p.ready(); err != nil {
		return err
	}

	res := p.gdb.WithContext(ctx).Model(&DataItem{}).
		Where("job_item_id = ? AND path = ? AND job_item_id IN (?)", jobItemID, path, p.jobItemIDs(ctx, jobID)).
		Updates(map[string]any{
			"translated_text": text,
			"translated_at":   globaltime.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update translated text: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

func (p *Pool) jobItemIDs(ctx context.Context, jobID int64) *gorm.DB {
	return p.gdb.WithContext(ctx).Model(&JobItem{}).Select("job_item_id").Where("job_id = ?", jobID)
}
