package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
)

const (
	submittedMessage  = "Job has been submitted."
	rejectedMessage   = "Job has been rejected with following error: %s"
	heldStatusMessage = "Remote job for %s is held by the translation service; it was not mapped."

	reconcileFailedMessage = "Job was accepted by the translation service but its response could not be fully recorded: %v."
)

type outcomeKind int

const (
	outcomeEmpty outcomeKind = iota
	outcomeJobs
	outcomeOrder
)

// submissionOutcome is the provider's answer to a submission, resolved once
// into one of two shapes: a list of job records or a bare order id.
type submissionOutcome struct {
	kind    outcomeKind
	jobs    []submittedJob
	orderID string
}

// submittedJob is one normalized job entry. Key is the entry's key in the
// response list (a token, or a decimal position).
type submittedJob struct {
	key    string
	record gengo.Job
	err    error
}

func classifySubmission(resp *gengo.SubmitResponse) submissionOutcome {
	if resp == nil {
		return submissionOutcome{kind: outcomeEmpty}
	}
	if len(resp.Jobs) > 0 {
		out := submissionOutcome{kind: outcomeJobs, orderID: resp.OrderID.String()}
		for _, entry := range resp.Jobs {
			record, err := decodeJobEntry(entry.Raw)
			out.jobs = append(out.jobs, submittedJob{key: entry.Key, record: record, err: err})
		}
		return out
	}
	if orderID := strings.TrimSpace(resp.OrderID.String()); orderID != "" {
		return submissionOutcome{kind: outcomeOrder, orderID: orderID}
	}
	return submissionOutcome{kind: outcomeEmpty}
}

var jobRecordFields = []string{"job_id", "status", "custom_data", "body_src"}

// decodeJobEntry decodes one job entry. Human-translation entries arrive
// wrapped in a single-key object; machine entries do not.
func decodeJobEntry(raw json.RawMessage) (gengo.Job, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return gengo.Job{}, fmt.Errorf("decode job entry: %w", err)
	}

	if !hasAnyField(fields, jobRecordFields) && len(fields) == 1 {
		for _, inner := range fields {
			trimmed := bytes.TrimSpace(inner)
			if len(trimmed) > 0 && trimmed[0] == '{' {
				raw = inner
			}
		}
	}

	var record gengo.Job
	if err := json.Unmarshal(raw, &record); err != nil {
		return gengo.Job{}, fmt.Errorf("decode job record: %w", err)
	}
	return record, nil
}

func hasAnyField(fields map[string]json.RawMessage, names []string) bool {
	for _, name := range names {
		if _, ok := fields[name]; ok {
			return true
		}
	}
	return false
}

// Submit plans the job, sends it and reconciles the answer. A provider or
// transport failure marks the job rejected and returns an error wrapping
// ErrJobRejected.
func (m *Manager) Submit(ctx context.Context, jobID int64) (SubmitResult, error) {
	if err := m.ready(); err != nil {
		return SubmitResult{}, err
	}

	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return SubmitResult{}, err
	}
	if job.State == db.JobStateActive {
		return SubmitResult{}, fmt.Errorf("%w: %d", ErrJobAlreadySubmitted, jobID)
	}

	plan, err := planSubmission(job, m.submissionOptions(false))
	if err != nil {
		return SubmitResult{}, err
	}
	if plan.Batch.Len() == 0 {
		return SubmitResult{}, fmt.Errorf("%w: %d", ErrNothingToTranslate, jobID)
	}

	logger := m.logger.With().Int64("job_id", jobID).Logger()
	resp, err := m.provider.SubmitJobs(ctx, plan.Batch)
	if err != nil {
		logger.Error().Err(err).Msg("submit job failed")
		if markErr := m.store.MarkJobRejected(ctx, jobID, fmt.Sprintf(rejectedMessage, rejectionReason(err))); markErr != nil {
			return SubmitResult{}, fmt.Errorf("mark job %d rejected: %w", jobID, markErr)
		}
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrJobRejected, err)
	}

	result := SubmitResult{JobID: jobID, Response: resp.Raw}
	result.Stats.Sent = plan.Batch.Len()
	result.Stats.Skipped = plan.Skipped
	for _, keys := range plan.Duplicates {
		result.Stats.Duplicates += len(keys)
	}

	// The provider has accepted the batch: the job is marked submitted even
	// when reconciliation fails, so it is never sent twice.
	reconcileErr := m.reconcileSubmission(ctx, plan, classifySubmission(resp), &result.Stats)

	if err := m.store.MarkJobSubmitted(ctx, jobID, submittedMessage); err != nil {
		return result, errors.Join(reconcileErr, fmt.Errorf("mark job %d submitted: %w", jobID, err))
	}
	if reconcileErr != nil {
		logger.Error().Err(reconcileErr).Msg("reconcile submission failed")
		m.addMessage(ctx, jobID, db.MessageLevelError, reconcileFailedMessage, reconcileErr)
		return result, reconcileErr
	}

	logger.Info().
		Int("sent", result.Stats.Sent).
		Int("duplicates", result.Stats.Duplicates).
		Int("mapped", result.Stats.Mapped).
		Int("placeholders", result.Stats.Placeholders).
		Str("order_id", result.Stats.OrderID).
		Msg("job submitted")
	return result, nil
}

func rejectionReason(err error) string {
	var gerr *gengo.Error
	if errors.As(err, &gerr) {
		if gerr.Code != 0 {
			return fmt.Sprintf("Gengo service returned error #%d %s", gerr.Code, gerr.Message)
		}
		if gerr.Err != nil {
			return fmt.Sprintf("Unable to connect to Gengo service: %v", gerr.Err)
		}
		if gerr.Message != "" {
			return gerr.Message
		}
	}
	return err.Error()
}

func (m *Manager) reconcileSubmission(ctx context.Context, plan submissionPlan, outcome submissionOutcome, stats *SubmitStats) error {
	switch outcome.kind {
	case outcomeJobs:
		stats.OrderID = outcome.orderID
		for idx, entry := range outcome.jobs {
			if err := m.reconcileSubmittedJob(ctx, plan, outcome.orderID, idx, entry, stats); err != nil {
				return err
			}
		}
		return nil
	case outcomeOrder:
		stats.OrderID = outcome.orderID
		for _, token := range plan.Batch.Keys() {
			parsed, err := ParseToken(token)
			if err != nil {
				return fmt.Errorf("planned token %q: %w", token, err)
			}
			if _, err := m.mapper.createPlaceholder(ctx, plan.JobID, parsed.Item, outcome.orderID, plan.duplicatesOf(parsed.Item)); err != nil {
				return err
			}
			stats.Placeholders++
		}
		return nil
	default:
		m.addMessage(ctx, plan.JobID, db.MessageLevelWarning,
			"Translation service accepted the job without returning jobs or an order.")
		return nil
	}
}

func (m *Manager) reconcileSubmittedJob(ctx context.Context, plan submissionPlan, orderID string, idx int, entry submittedJob, stats *SubmitStats) error {
	if entry.err != nil {
		stats.Inconsistent++
		m.addMessage(ctx, plan.JobID, db.MessageLevelWarning, "Ignored remote job entry %q: %v", entry.key, entry.err)
		return nil
	}
	record := entry.record

	if record.IsDuplicate() {
		stats.ProviderDuplicates++
		return nil
	}

	label := entry.key
	if _, err := strconv.Atoi(entry.key); err == nil && record.CustomData != "" {
		label = record.CustomData
	}
	if record.Status == gengo.StatusHeld {
		stats.Held++
		m.logger.Warn().Int64("job_id", plan.JobID).Str("key", label).Msg("remote job held")
		m.addMessage(ctx, plan.JobID, db.MessageLevelWarning, heldStatusMessage, label)
		return nil
	}

	token, err := resolveToken(plan, entry, idx)
	if err != nil {
		stats.Inconsistent++
		m.addMessage(ctx, plan.JobID, db.MessageLevelWarning, "Ignored remote job %s: %v", label, err)
		return nil
	}

	if record.OrderID != "" {
		orderID = record.OrderID.String()
	}
	if _, err := m.mapper.createFromJob(ctx, plan.JobID, token.Item, orderID, record, plan.duplicatesOf(token.Item)); err != nil {
		return err
	}
	stats.Mapped++

	written, err := m.applyTranslation(ctx, plan.JobID, token.Item, record)
	if err != nil {
		return err
	}
	stats.Translated += written
	return nil
}

// resolveToken finds the correlation token of a response entry. A
// non-numeric list key wins: when the provider reuses an existing
// translation it keys the entry by our token but leaves the record's
// custom_data stale. Numeric keys fall back to custom_data, then to the
// batch entry at that position.
func resolveToken(plan submissionPlan, entry submittedJob, idx int) (Token, error) {
	key := strings.TrimSpace(entry.key)
	position, convErr := strconv.Atoi(key)

	var keyErr error
	if key != "" && convErr != nil {
		token, err := tokenForJob(plan.JobID, key)
		if err == nil {
			return token, nil
		}
		keyErr = err
	}

	if custom := strings.TrimSpace(entry.record.CustomData); custom != "" {
		return tokenForJob(plan.JobID, custom)
	}
	if keyErr != nil {
		return Token{}, keyErr
	}

	if convErr != nil {
		position = idx
	}
	found, ok := plan.Batch.KeyAt(position)
	if !ok {
		return Token{}, fmt.Errorf("no submitted entry at position %d", position)
	}
	return tokenForJob(plan.JobID, found)
}

func tokenForJob(jobID int64, raw string) (Token, error) {
	token, err := ParseToken(raw)
	if err != nil {
		return Token{}, err
	}
	if token.JobID != jobID {
		return Token{}, fmt.Errorf("token %q belongs to job %d", raw, token.JobID)
	}
	return token, nil
}
