package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/pre_automigrate.sql
var preAutoMigrateSQL string

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

func autoMigrateModels() []any {
	return []any{
		&Job{},
		&JobItem{},
		&DataItem{},
		&JobMessage{},
		&RemoteMapping{},
	}
}

// autoMigrate creates the schema. The SQL scripts carry postgres-only
// statements (schema, partial indexes) and are skipped on SQLite.
func (p *Pool) autoMigrate(ctx context.Context) error {
	if err := p.ready(); err != nil {
		return err
	}

	if p.isPostgres() {
		if err := executeMigrationSQL(ctx, p, "pre-auto-migrate", preAutoMigrateSQL); err != nil {
			return err
		}
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	if p.isPostgres() {
		if err := executeMigrationSQL(ctx, p, "post-auto-migrate", postAutoMigrateSQL); err != nil {
			return err
		}
	}

	return nil
}

func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute %s SQL: %w", label, err)
	}
	return nil
}
