// Package repo: repository functions for the migration journal.
//
// All functions are context-aware and accept a *gorm.DB handle. They follow
// the thin repository approach used across this package: no business logic,
// only persistence and query composition. Records are ordered by start time,
// most recent first.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/mvthread/internal/domain"
	"github.com/tbourn/mvthread/internal/services"
)

// CreateMigration inserts rec. An empty ID is replaced by a new UUID and a
// zero FinishedAt by the current UTC time.
func CreateMigration(ctx context.Context, db *gorm.DB, rec *domain.MigrationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}
	return db.WithContext(ctx).Create(rec).Error
}

// GetMigration fetches a single record by run id. A missing record yields
// gorm.ErrRecordNotFound.
func GetMigration(ctx context.Context, db *gorm.DB, id string) (*domain.MigrationRecord, error) {
	var rec domain.MigrationRecord
	if err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountMigrations returns the number of journal records.
func CountMigrations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MigrationRecord{}).
		Count(&total).Error
	return total, err
}

// ListMigrationsPage returns a page of records, most recent first.
//
// The caller is responsible for computing offset and limit.
func ListMigrationsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MigrationRecord, error) {
	var out []domain.MigrationRecord
	err := db.WithContext(ctx).
		Order("started_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Journal exposes the journal functions as a value, for consumers that take
// a repository interface (services.JournalRepo).
type Journal struct{}

var _ services.JournalRepo = Journal{}

// CreateMigration proxies CreateMigration.
func (Journal) CreateMigration(ctx context.Context, db *gorm.DB, rec *domain.MigrationRecord) error {
	return CreateMigration(ctx, db, rec)
}

// CountMigrations proxies CountMigrations.
func (Journal) CountMigrations(ctx context.Context, db *gorm.DB) (int64, error) {
	return CountMigrations(ctx, db)
}

// ListMigrationsPage proxies ListMigrationsPage.
func (Journal) ListMigrationsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MigrationRecord, error) {
	return ListMigrationsPage(ctx, db, offset, limit)
}

// GetMigration proxies GetMigration.
func (Journal) GetMigration(ctx context.Context, db *gorm.DB, id string) (*domain.MigrationRecord, error) {
	return GetMigration(ctx, db, id)
}
