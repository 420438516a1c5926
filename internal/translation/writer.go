package translation

import (
	"context"
	"fmt"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
)

// carriesTranslation reports whether a remote status implies a finished body.
func carriesTranslation(status string) bool {
	return status == gengo.StatusReviewable || status == gengo.StatusApproved
}

// applyTranslation writes the record's translated body to key and to every
// duplicate registered on key's mapping. It returns how many data items were
// written. Re-applying the same record writes the same values again.
func (m *Manager) applyTranslation(ctx context.Context, jobID int64, key ItemKey, record gengo.Job) (int, error) {
	if !carriesTranslation(record.Status) {
		return 0, nil
	}
	if record.BodyTgt == nil {
		m.addMessage(ctx, jobID, db.MessageLevelWarning,
			"Remote job for %s has status %s but no translation.", key, record.Status)
		return 0, nil
	}
	text := *record.BodyTgt

	written, err := m.writeItem(ctx, jobID, key, text)
	if err != nil || written == 0 {
		return written, err
	}

	duplicates, err := m.mapper.duplicatesOf(ctx, jobID, key)
	if err != nil {
		return written, err
	}
	for _, raw := range duplicates {
		duplicate, err := ParseItemKey(raw)
		if err != nil {
			m.addMessage(ctx, jobID, db.MessageLevelWarning,
				"Ignored duplicate %q of %s: %v", raw, key, err)
			continue
		}
		n, err := m.writeItem(ctx, jobID, duplicate, text)
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (m *Manager) writeItem(ctx context.Context, jobID int64, key ItemKey, text string) (int, error) {
	if err := m.store.SetTranslatedText(ctx, jobID, key.JobItemID, key.Path, text); err != nil {
		if db.IsNoRows(err) {
			m.addMessage(ctx, jobID, db.MessageLevelWarning,
				"Translation received for unknown data item %s.", key)
			return 0, nil
		}
		return 0, fmt.Errorf("store translation for %s: %w", key, err)
	}
	return 1, nil
}
