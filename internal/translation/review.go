package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
)

// CallbackResult reports how a pushed job record was applied.
type CallbackResult struct {
	JobID      int64  `json:"job_id"`
	Key        string `json:"key"`
	Mapped     bool   `json:"mapped"`
	Translated int    `json:"translated"`
}

// HandleCallback treats a pushed job record as a notification only. The
// record is fetched again from the translation service and must carry the same
// correlation token; the fetched copy is what gets applied. A job id seen for
// the first time fills the key's placeholder or gets a new mapping.
func (m *Manager) HandleCallback(ctx context.Context, pushed gengo.Job) (CallbackResult, error) {
	if err := m.ready(); err != nil {
		return CallbackResult{}, err
	}

	customData := strings.TrimSpace(pushed.CustomData)
	token, err := ParseToken(customData)
	if err != nil {
		return CallbackResult{}, err
	}
	if _, err := m.loadJob(ctx, token.JobID); err != nil {
		return CallbackResult{}, err
	}

	record, err := m.verifyCallback(ctx, pushed, customData)
	if err != nil {
		m.logger.Warn().Err(err).Int64("job_id", token.JobID).Str("remote_job_id", pushed.JobID.String()).Msg("callback rejected")
		return CallbackResult{}, err
	}
	if record.OrderID == "" {
		record.OrderID = pushed.OrderID
	}

	result := CallbackResult{JobID: token.JobID, Key: token.Item.String()}
	if remoteID := normalizeRemoteJobID(record.JobID); remoteID != "" {
		mappings, err := m.mapper.listByJob(ctx, token.JobID)
		if err != nil {
			return result, err
		}
		if !hasRemoteJob(mappings, remoteID) {
			if placeholder, found := findOpenPlaceholder(mappings, token.Item, nil); found {
				if _, err := m.mapper.resolvePlaceholder(ctx, placeholder.RemoteMappingID, record); err != nil {
					return result, err
				}
			} else if _, err := m.mapper.createFromJob(ctx, token.JobID, token.Item, record.OrderID.String(), record, nil); err != nil {
				return result, err
			}
			result.Mapped = true
		}
	}

	written, err := m.applyTranslation(ctx, token.JobID, token.Item, record)
	if err != nil {
		return result, err
	}
	result.Translated = written

	m.logger.Info().
		Int64("job_id", token.JobID).
		Str("key", result.Key).
		Str("status", record.Status).
		Int("translated", written).
		Msg("callback applied")
	return result, nil
}

// verifyCallback fetches the pushed job from the translation service.
func (m *Manager) verifyCallback(ctx context.Context, pushed gengo.Job, customData string) (gengo.Job, error) {
	remoteID := normalizeRemoteJobID(pushed.JobID)
	if remoteID == "" {
		return gengo.Job{}, fmt.Errorf("%w: record has no job id", ErrCallbackUnverified)
	}

	records, err := m.provider.GetJobs(ctx, []string{remoteID})
	if err != nil {
		return gengo.Job{}, fmt.Errorf("fetch remote job %s: %w", remoteID, err)
	}
	for _, record := range records {
		if normalizeRemoteJobID(record.JobID) != remoteID {
			continue
		}
		if strings.TrimSpace(record.CustomData) != customData {
			return gengo.Job{}, fmt.Errorf("%w: remote job %s belongs to %q", ErrCallbackUnverified, remoteID, record.CustomData)
		}
		return record, nil
	}
	return gengo.Job{}, fmt.Errorf("%w: remote job %s is unknown to the translation service", ErrCallbackUnverified, remoteID)
}

func hasRemoteJob(mappings []db.RemoteMapping, remoteID string) bool {
	for _, mapping := range mappings {
		if mapping.RemoteJobID == remoteID {
			return true
		}
	}
	return false
}

// Approve approves the remote job mapped to a data item.
func (m *Manager) Approve(ctx context.Context, jobID int64, key ItemKey, opts gengo.ApproveOptions) error {
	remoteID, err := m.remoteJobFor(ctx, jobID, key)
	if err != nil {
		return err
	}
	if err := m.provider.ApproveJob(ctx, remoteID, opts); err != nil {
		return fmt.Errorf("approve remote job %s: %w", remoteID, err)
	}
	m.addMessage(ctx, jobID, db.MessageLevelStatus, "Approved remote job %s for %s.", remoteID, key)
	return nil
}

// Revise asks the translator to rework the remote job mapped to a data item.
func (m *Manager) Revise(ctx context.Context, jobID int64, key ItemKey, comment string) error {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return fmt.Errorf("revision comment is required")
	}
	remoteID, err := m.remoteJobFor(ctx, jobID, key)
	if err != nil {
		return err
	}
	if err := m.provider.ReviseJob(ctx, remoteID, comment); err != nil {
		return fmt.Errorf("revise remote job %s: %w", remoteID, err)
	}
	m.addMessage(ctx, jobID, db.MessageLevelStatus, "Requested revision of remote job %s for %s: %s", remoteID, key, comment)
	return nil
}

func (m *Manager) remoteJobFor(ctx context.Context, jobID int64, key ItemKey) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	mapping, err := m.mapper.find(ctx, jobID, key)
	if err != nil {
		if db.IsNoRows(err) {
			return "", fmt.Errorf("%w: job %d key %s", ErrMappingNotFound, jobID, key)
		}
		return "", fmt.Errorf("find remote mapping %s: %w", key, err)
	}
	if mapping.RemoteJobID == "" {
		return "", fmt.Errorf("%w: job %d key %s has no remote job yet", ErrMappingNotFound, jobID, key)
	}
	return mapping.RemoteJobID, nil
}

// Quote plans the job without deduplication and returns the service's quote
// as received.
func (m *Manager) Quote(ctx context.Context, jobID int64) (json.RawMessage, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	plan, err := planSubmission(job, m.submissionOptions(true))
	if err != nil {
		return nil, err
	}
	if plan.Batch.Len() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNothingToTranslate, jobID)
	}
	raw, err := m.provider.Quote(ctx, plan.Batch)
	if err != nil {
		return nil, fmt.Errorf("quote job %d: %w", jobID, err)
	}
	return raw, nil
}

// Languages lists the languages the service supports, as local codes. With a
// source language only its targets are listed.
func (m *Manager) Languages(ctx context.Context, localSource string) ([]gengo.Language, error) {
	if m == nil || m.provider == nil {
		return nil, fmt.Errorf("translation manager is not initialized")
	}
	remoteSource := ""
	if strings.TrimSpace(localSource) != "" {
		remoteSource = m.languages.remote(localSource)
	}
	langs, err := m.provider.Languages(ctx, remoteSource)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	for idx := range langs {
		langs[idx].Code = m.languages.local(langs[idx].Code)
	}
	return langs, nil
}

func (m *Manager) LanguagePairs(ctx context.Context, localSource string) ([]gengo.LanguagePair, error) {
	if m == nil || m.provider == nil {
		return nil, fmt.Errorf("translation manager is not initialized")
	}
	remoteSource := ""
	if strings.TrimSpace(localSource) != "" {
		remoteSource = m.languages.remote(localSource)
	}
	pairs, err := m.provider.LanguagePairs(ctx, remoteSource)
	if err != nil {
		return nil, fmt.Errorf("list language pairs: %w", err)
	}
	for idx := range pairs {
		pairs[idx].LcSrc = m.languages.local(pairs[idx].LcSrc)
		pairs[idx].LcTgt = m.languages.local(pairs[idx].LcTgt)
	}
	return pairs, nil
}
