package translation

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
)

// MappingStore persists remote mappings.
type MappingStore interface {
	FindRemoteMapping(ctx context.Context, jobID, jobItemID int64, path string) (db.RemoteMapping, error)
	ListRemoteMappingsByJob(ctx context.Context, jobID int64) ([]db.RemoteMapping, error)
	CreateRemoteMapping(ctx context.Context, mapping *db.RemoteMapping) error
	UpdateRemoteMapping(ctx context.Context, mappingID int64, mutate func(*db.RemoteMapping) error) (db.RemoteMapping, error)
}

// identityMapper owns every write to the remote mapping table.
type identityMapper struct {
	store MappingStore
}

// normalizeRemoteJobID maps the provider's "no job" values to the empty string.
func normalizeRemoteJobID(id gengo.ID) string {
	trimmed := strings.TrimSpace(id.String())
	if strings.EqualFold(trimmed, gengo.NullJobID) || trimmed == "0" {
		return ""
	}
	return trimmed
}

func (im identityMapper) find(ctx context.Context, jobID int64, key ItemKey) (db.RemoteMapping, error) {
	return im.store.FindRemoteMapping(ctx, jobID, key.JobItemID, key.Path)
}

func (im identityMapper) listByJob(ctx context.Context, jobID int64) ([]db.RemoteMapping, error) {
	mappings, err := im.store.ListRemoteMappingsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list remote mappings for job %d: %w", jobID, err)
	}
	return mappings, nil
}

// duplicatesOf returns the duplicate keys registered on the key's mapping.
func (im identityMapper) duplicatesOf(ctx context.Context, jobID int64, key ItemKey) ([]string, error) {
	mapping, err := im.find(ctx, jobID, key)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find remote mapping %s: %w", key, err)
	}
	return mapping.RemoteData.Duplicates, nil
}

// createFromJob records a mapping for a concrete remote job record.
func (im identityMapper) createFromJob(ctx context.Context, jobID int64, key ItemKey, orderID string, record gengo.Job, duplicates []string) (db.RemoteMapping, error) {
	mapping := db.RemoteMapping{
		JobID:         jobID,
		JobItemID:     key.JobItemID,
		DataItemPath:  key.Path,
		RemoteOrderID: strings.TrimSpace(orderID),
		RemoteJobID:   normalizeRemoteJobID(record.JobID),
		WordCount:     int64(record.UnitCount),
		RemoteData: db.RemoteData{
			Credits:    float64(record.Credits),
			Tier:       record.Tier,
			Duplicates: duplicates,
		},
	}
	if err := im.store.CreateRemoteMapping(ctx, &mapping); err != nil {
		return db.RemoteMapping{}, fmt.Errorf("create remote mapping %s: %w", key, err)
	}
	return mapping, nil
}

// createPlaceholder records an order-only mapping that waits for its job id.
func (im identityMapper) createPlaceholder(ctx context.Context, jobID int64, key ItemKey, orderID string, duplicates []string) (db.RemoteMapping, error) {
	mapping := db.RemoteMapping{
		JobID:         jobID,
		JobItemID:     key.JobItemID,
		DataItemPath:  key.Path,
		RemoteOrderID: strings.TrimSpace(orderID),
		RemoteData:    db.RemoteData{Duplicates: duplicates},
	}
	if err := im.store.CreateRemoteMapping(ctx, &mapping); err != nil {
		return db.RemoteMapping{}, fmt.Errorf("create placeholder mapping %s: %w", key, err)
	}
	return mapping, nil
}

// resolvePlaceholder fills a placeholder in place with the remote job's id and
// metadata. The duplicate group is kept.
func (im identityMapper) resolvePlaceholder(ctx context.Context, mappingID int64, record gengo.Job) (db.RemoteMapping, error) {
	updated, err := im.store.UpdateRemoteMapping(ctx, mappingID, func(mapping *db.RemoteMapping) error {
		mapping.RemoteJobID = normalizeRemoteJobID(record.JobID)
		mapping.WordCount = int64(record.UnitCount)
		mapping.RemoteData.Credits = float64(record.Credits)
		mapping.RemoteData.Tier = record.Tier
		return nil
	})
	if err != nil {
		return db.RemoteMapping{}, fmt.Errorf("update remote mapping %d: %w", mappingID, err)
	}
	return updated, nil
}
