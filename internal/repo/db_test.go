package repo

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/mvthread/internal/domain"
)

func TestOpenSQLite_SetsPragmasAndPool(t *testing.T) {
	db, err := OpenSQLite("file:pragmas?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var fkOn, busyMS int
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 1 {
		t.Fatalf("expected MaxOpenConnections=1, got %d", stats.MaxOpenConnections)
	}
}

func TestOpenJournal_MigratesAndIsolates(t *testing.T) {
	a, err := OpenJournal()
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	b, err := OpenJournal()
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	t.Cleanup(func() {
		for _, db := range []*gorm.DB{a, b} {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	})

	if !a.Migrator().HasTable(&domain.MigrationRecord{}) {
		t.Fatalf("expected migrations table")
	}

	now := time.Now().UTC()
	rec := &domain.MigrationRecord{
		ID: "r1", SourceThreadID: "s", DestinationChannelID: "d", InvokedBy: "u",
		Outcome: domain.OutcomeSucceeded, StartedAt: now, FinishedAt: now,
	}
	if err := a.Create(rec).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	var n int64
	if err := b.Model(&domain.MigrationRecord{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("journals must not share state: n=%d err=%v", n, err)
	}
}

func TestAutoMigrate_RejectsUnknownOutcome(t *testing.T) {
	db := newJournalDB(t)
	rec := &domain.MigrationRecord{
		ID: "r1", SourceThreadID: "s", DestinationChannelID: "d", InvokedBy: "u", Outcome: "maybe",
	}
	if err := db.Create(rec).Error; err == nil {
		t.Fatalf("expected check constraint violation")
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
