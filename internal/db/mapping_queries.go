package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindRemoteMapping returns the oldest mapping for a local data item key.
func (p *Pool) FindRemoteMapping(ctx context.Context, jobID, jobItemID int64, path string) (RemoteMapping, error) {
	if err := p.ready(); err != nil {
		return RemoteMapping{}, err
	}

	var out RemoteMapping
	err := p.gdb.WithContext(ctx).
		Where("job_id = ? AND job_item_id = ? AND data_item_path = ?", jobID, jobItemID, path).
		Order("remote_mapping_id ASC").
		Take(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RemoteMapping{}, ErrNoRows
		}
		return RemoteMapping{}, fmt.Errorf("query remote mapping: %w", err)
	}
	return out, nil
}

func (p *Pool) ListRemoteMappingsByJob(ctx context.Context, jobID int64) ([]RemoteMapping, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	var out []RemoteMapping
	if err := p.gdb.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("remote_mapping_id ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query remote mappings: %w", err)
	}
	return out, nil
}

func (p *Pool) CreateRemoteMapping(ctx context.Context, mapping *RemoteMapping) error {
	if err := p.ready(); err != nil {
		return err
	}
	if mapping == nil {
		return fmt.Errorf("remote mapping is nil")
	}
	if strings.TrimSpace(mapping.DataItemPath) == "" {
		return fmt.Errorf("remote mapping data item path is required")
	}
	if err := p.gdb.WithContext(ctx).Create(mapping).Error; err != nil {
		return fmt.Errorf("insert remote mapping: %w", err)
	}
	return nil
}

// UpdateRemoteMapping re-reads the mapping inside a transaction, applies
// mutate and saves the result. On postgres the row is locked for the duration
// so concurrent read-then-update cycles on the same key serialize.
func (p *Pool) UpdateRemoteMapping(ctx context.Context, mappingID int64, mutate func(*RemoteMapping) error) (RemoteMapping, error) {
	if err := p.ready(); err != nil {
		return RemoteMapping{}, err
	}
	if mutate == nil {
		return RemoteMapping{}, fmt.Errorf("mutate func is nil")
	}

	var out RemoteMapping
	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("remote_mapping_id = ?", mappingID)
		if p.isPostgres() {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var current RemoteMapping
		if err := query.Take(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoRows
			}
			return fmt.Errorf("lock remote mapping: %w", err)
		}

		if err := mutate(&current); err != nil {
			return err
		}
		current.RemoteMappingID = mappingID

		if err := tx.Save(&current).Error; err != nil {
			return fmt.Errorf("save remote mapping: %w", err)
		}
		out = current
		return nil
	})
	if err != nil {
		return RemoteMapping{}, err
	}
	return out, nil
}
