package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/mvthread/internal/domain"
	"github.com/tbourn/mvthread/internal/utils"
)

// maxJournalPage caps the page size of journal listings.
const maxJournalPage = 100

// JournalRepo defines the repository contract required by JournalService.
type JournalRepo interface {
	// CreateMigration inserts one journal record.
	CreateMigration(ctx context.Context, db *gorm.DB, rec *domain.MigrationRecord) error

	// CountMigrations returns the total number of records for pagination.
	CountMigrations(ctx context.Context, db *gorm.DB) (int64, error)

	// ListMigrationsPage returns a page of records, most recent first.
	ListMigrationsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MigrationRecord, error)

	// GetMigration fetches one record by run id.
	GetMigration(ctx context.Context, db *gorm.DB, id string) (*domain.MigrationRecord, error)
}

// JournalService records finished migrations in the in-process journal and
// serves them back page by page.
type JournalService struct {
	DB   *gorm.DB
	Repo JournalRepo
}

// NewJournalService constructs a JournalService.
func NewJournalService(db *gorm.DB, r JournalRepo) *JournalService {
	return &JournalService{DB: db, Repo: r}
}

// Record stores the outcome of one migration attempt. migrateErr is the
// error returned by the orchestrator, nil on success. The report may be nil
// when the attempt failed before any work was done.
func (s *JournalService) Record(ctx context.Context, runID string, req domain.MigrationRequest, report *domain.MigrationReport, migrateErr error, startedAt time.Time) (*domain.MigrationRecord, error) {
	rec := &domain.MigrationRecord{
		ID:                   runID,
		SourceThreadID:       req.SourceThreadID,
		SourceThreadName:     req.SourceThreadName,
		DestinationChannelID: req.DestinationChannelID,
		InvokedBy:            req.InvokedBy,
		Outcome:              domain.OutcomeSucceeded,
		StartedAt:            startedAt.UTC(),
		FinishedAt:           time.Now().UTC(),
	}
	if report != nil {
		rec.DestinationThreadID = report.DestinationThreadID
		rec.Fetched = report.Fetched
		rec.Replayed = report.Count(domain.ReplayPosted)
		rec.Skipped = report.Count(domain.ReplaySkipped)
		rec.Failed = report.Count(domain.ReplayFailed)
	}
	if migrateErr != nil {
		rec.Outcome = domain.OutcomeFailed
		rec.Error = migrateErr.Error()
	}

	if err := s.Repo.CreateMigration(ctx, s.DB, rec); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("run_id", runID).Msg("journal write failed")
		return nil, err
	}
	return rec, nil
}

// ListPage returns a page of journal records and the total count.
// It applies defaults for invalid page/pageSize and caps the page size.
func (s *JournalService) ListPage(ctx context.Context, page, pageSize int) ([]domain.MigrationRecord, int64, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	offset, limit := utils.Page(page, pageSize, maxJournalPage)

	total, err := s.Repo.CountMigrations(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.MigrationRecord{}, 0, nil
	}

	items, err := s.Repo.ListMigrationsPage(ctx, s.DB, offset, limit)
	return items, total, err
}

// Get returns the journal record of runID. Missing records are reported as
// ErrMigrationNotFound.
func (s *JournalService) Get(ctx context.Context, runID string) (*domain.MigrationRecord, error) {
	rec, err := s.Repo.GetMigration(ctx, s.DB, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMigrationNotFound
		}
		return nil, err
	}
	return rec, nil
}
