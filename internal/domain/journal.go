package domain

import "time"

// Migration outcomes stored in the journal.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// MigrationRecord is one journal row describing a finished migration attempt.
// The journal lives in memory and is lost when the process exits.
//
// Fields:
//   - ID: run id (UUID) shared with logs and traces.
//   - SourceThreadID / DestinationChannelID: the request.
//   - DestinationThreadID: the created thread, empty when the seed post failed.
//   - Outcome: "succeeded" or "failed"; Error holds the failure text.
//   - Fetched / Replayed / Skipped / Failed: message counts from the report.
type MigrationRecord struct {
	ID                   string    `json:"id"                     gorm:"type:char(36);primaryKey"`
	SourceThreadID       string    `json:"source_thread_id"       gorm:"type:varchar(32);not null;index:idx_migrations_source"`
	SourceThreadName     string    `json:"source_thread_name"     gorm:"type:varchar(100)"`
	DestinationChannelID string    `json:"destination_channel_id" gorm:"type:varchar(32);not null"`
	DestinationThreadID  string    `json:"destination_thread_id"  gorm:"type:varchar(32)"`
	InvokedBy            string    `json:"invoked_by"             gorm:"type:varchar(32);not null"`
	Outcome              string    `json:"outcome"                gorm:"type:varchar(16);not null;check:outcome IN ('succeeded','failed')"`
	Error                string    `json:"error,omitempty"        gorm:"type:text"`
	Fetched              int       `json:"fetched"`
	Replayed             int       `json:"replayed"`
	Skipped              int       `json:"skipped"`
	Failed               int       `json:"failed"`
	StartedAt            time.Time `json:"started_at"             gorm:"index:idx_migrations_started"`
	FinishedAt           time.Time `json:"finished_at"`
}

// TableName returns the database table name for MigrationRecord.
func (MigrationRecord) TableName() string { return "migrations" }
