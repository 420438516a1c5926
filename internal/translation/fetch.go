package translation

import (
	"context"
	"fmt"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
)

// Fetch runs one poll cycle for a job:
//  1. collect the order ids and known remote job ids of its mappings,
//  2. expand every order into job ids (an order with nothing created yet ends
//     the cycle),
//  3. fetch all known and new job records in one call,
//  4. fill placeholders or create mappings for new job ids, and apply
//     every available translation.
func (m *Manager) Fetch(ctx context.Context, jobID int64) (FetchStats, error) {
	if err := m.ready(); err != nil {
		return FetchStats{}, err
	}
	if _, err := m.loadJob(ctx, jobID); err != nil {
		return FetchStats{}, err
	}

	mappings, err := m.mapper.listByJob(ctx, jobID)
	if err != nil {
		return FetchStats{}, err
	}

	orderIDs, jobIDs := collectRemoteIDs(mappings)
	known := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		known[id] = struct{}{}
	}

	stats := FetchStats{}
	logger := m.logger.With().Int64("job_id", jobID).Logger()

	// New job id -> the order it came from.
	newJobs := map[string]string{}
	for _, orderID := range orderIDs {
		stats.Orders++
		order, err := m.provider.GetOrder(ctx, orderID)
		if err != nil {
			stats.OrdersFailed++
			logger.Warn().Err(err).Str("order_id", orderID).Msg("fetch order failed")
			m.addMessage(ctx, jobID, db.MessageLevelWarning, "Could not fetch order %s: %s", orderID, rejectionReason(err))
			continue
		}
		if order.NothingQueuedYet() {
			stats.Waiting = true
			logger.Debug().Str("order_id", orderID).Msg("order has no jobs yet")
			return stats, nil
		}
		for _, id := range order.JobIDs() {
			remoteID := normalizeRemoteJobID(id)
			if remoteID == "" {
				continue
			}
			if _, exists := known[remoteID]; exists {
				continue
			}
			known[remoteID] = struct{}{}
			jobIDs = append(jobIDs, remoteID)
			newJobs[remoteID] = orderID
		}
	}
	stats.NewJobs = len(newJobs)

	records, err := m.provider.GetJobs(ctx, jobIDs)
	if err != nil {
		logger.Error().Err(err).Msg("fetch remote jobs failed")
		m.addMessage(ctx, jobID, db.MessageLevelError, "Could not fetch remote jobs: %s", rejectionReason(err))
		return stats, fmt.Errorf("fetch remote jobs for job %d: %w", jobID, err)
	}
	if len(records) == 0 {
		return stats, nil
	}

	filled := map[int64]struct{}{}
	for _, record := range records {
		stats.Records++

		token, err := ParseToken(record.CustomData)
		if err == nil && token.JobID != jobID {
			err = fmt.Errorf("token %q belongs to job %d", record.CustomData, token.JobID)
		}
		if err != nil {
			stats.Inconsistent++
			m.addMessage(ctx, jobID, db.MessageLevelWarning, "Ignored remote job %s: %v", record.JobID, err)
			continue
		}

		remoteID := normalizeRemoteJobID(record.JobID)
		if orderID, isNew := newJobs[remoteID]; isNew {
			placeholder, found := findOpenPlaceholder(mappings, token.Item, filled)
			if found {
				if _, err := m.mapper.resolvePlaceholder(ctx, placeholder.RemoteMappingID, record); err != nil {
					return stats, err
				}
				filled[placeholder.RemoteMappingID] = struct{}{}
				stats.Filled++
			} else {
				if _, err := m.mapper.createFromJob(ctx, jobID, token.Item, orderID, record, nil); err != nil {
					return stats, err
				}
				stats.Created++
			}
		}

		written, err := m.applyTranslation(ctx, jobID, token.Item, record)
		if err != nil {
			return stats, err
		}
		stats.Translated += written
	}

	logger.Info().
		Int("orders", stats.Orders).
		Int("new_jobs", stats.NewJobs).
		Int("records", stats.Records).
		Int("translated", stats.Translated).
		Msg("job fetched")
	return stats, nil
}

// FetchActive polls every active job in turn. A failing job is counted and
// logged; the others still run.
func (m *Manager) FetchActive(ctx context.Context) (FetchActiveStats, error) {
	if err := m.ready(); err != nil {
		return FetchActiveStats{}, err
	}

	ids, err := m.store.ListActiveJobIDs(ctx)
	if err != nil {
		return FetchActiveStats{}, fmt.Errorf("list active jobs: %w", err)
	}

	out := FetchActiveStats{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Jobs++
		stats, err := m.Fetch(ctx, id)
		out.Totals.add(stats)
		if stats.Waiting {
			out.Waiting++
		}
		if err != nil {
			out.Failed++
			m.logger.Error().Err(err).Int64("job_id", id).Msg("poll job failed")
		}
	}
	return out, nil
}

// collectRemoteIDs returns the distinct order ids and remote job ids in
// mapping order.
func collectRemoteIDs(mappings []db.RemoteMapping) ([]string, []string) {
	orderIDs := make([]string, 0, 2)
	jobIDs := make([]string, 0, len(mappings))
	seenOrders := map[string]struct{}{}
	seenJobs := map[string]struct{}{}
	for _, mapping := range mappings {
		if id := mapping.RemoteOrderID; id != "" {
			if _, exists := seenOrders[id]; !exists {
				seenOrders[id] = struct{}{}
				orderIDs = append(orderIDs, id)
			}
		}
		if id := normalizeRemoteJobID(gengo.ID(mapping.RemoteJobID)); id != "" {
			if _, exists := seenJobs[id]; !exists {
				seenJobs[id] = struct{}{}
				jobIDs = append(jobIDs, id)
			}
		}
	}
	return orderIDs, jobIDs
}

func findOpenPlaceholder(mappings []db.RemoteMapping, key ItemKey, filled map[int64]struct{}) (db.RemoteMapping, bool) {
	for _, mapping := range mappings {
		if mapping.JobItemID != key.JobItemID || mapping.DataItemPath != key.Path {
			continue
		}
		if !mapping.IsPlaceholder() {
			continue
		}
		if _, done := filled[mapping.RemoteMappingID]; done {
			continue
		}
		return mapping, true
	}
	return db.RemoteMapping{}, false
}
