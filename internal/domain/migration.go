// Package domain defines the core types of a thread migration: the request,
// the history read from the source thread, the identities it is replayed
// under, and the report produced at the end. It also holds the GORM model of
// the in-process migration journal.
package domain

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// MigrationRequest describes one /mv invocation. It is immutable and
// discarded after the migration completes.
type MigrationRequest struct {
	SourceThreadID       string `json:"source_thread_id"`
	SourceThreadName     string `json:"source_thread_name"`
	DestinationChannelID string `json:"destination_channel_id"`
	InvokedBy            string `json:"invoked_by"`
}

// MemberOverride carries the guild-specific nickname and avatar of an author,
// when the platform embedded them in the message payload.
type MemberOverride struct {
	Nick      string
	AvatarURL string
}

// Author is the author data embedded in a historical message.
type Author struct {
	ID         string
	Username   string
	GlobalName string
	AvatarURL  string
	Bot        bool
	Member     *MemberOverride
}

// Attachment references a file hosted by the platform.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
	Size        int
}

// HistoricalMessage is a read-only snapshot of a message in the source thread.
type HistoricalMessage struct {
	ID          string
	Author      Author
	Content     string
	Attachments []Attachment
	Embeds      []*discordgo.MessageEmbed
	Timestamp   time.Time
	// System marks platform notices (pins, renames, ...) that are never replayed.
	System bool
}

// Empty reports whether the message has nothing that could be posted.
func (m HistoricalMessage) Empty() bool {
	return m.Content == "" && len(m.Attachments) == 0 && len(m.Embeds) == 0
}

// AuthorIdentity is the display name / avatar pair a message is replayed under.
type AuthorIdentity struct {
	Username    string
	DisplayName string
	AvatarURL   string
	Bot         bool
}

// Webhook is a channel webhook the bot can execute.
type Webhook struct {
	ID        string
	Token     string
	ChannelID string
	Name      string
}

// File is an attachment re-hosted in memory, ready to be uploaded again.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Post is one outgoing webhook execution.
type Post struct {
	Username         string
	AvatarURL        string
	Content          string
	ThreadName       string
	Files            []File
	Embeds           []*discordgo.MessageEmbed
	SuppressMentions bool
}

// PostedMessage is the platform's confirmation of a post.
type PostedMessage struct {
	ID        string
	ChannelID string
}

// ReplayStatus is the outcome of replaying a single message.
type ReplayStatus string

const (
	ReplayPosted  ReplayStatus = "posted"
	ReplaySkipped ReplayStatus = "skipped"
	ReplayFailed  ReplayStatus = "failed"
)

// ReplayResult records what happened to one message after the seed.
type ReplayResult struct {
	Index           int
	SourceMessageID string
	Status          ReplayStatus
	// Parts is how many posts carried the message; long content is split.
	Parts int
	Err   error
}

// MigrationReport summarizes a completed migration.
type MigrationReport struct {
	RunID                string
	SourceThreadID       string
	DestinationChannelID string
	DestinationThreadID  string
	// Fetched counts eligible messages, seed included.
	Fetched int
	Results []ReplayResult
}

// Count returns how many replay results have the given status.
func (r *MigrationReport) Count(s ReplayStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Migrated returns the number of messages present in the destination thread,
// seed included.
func (r *MigrationReport) Migrated() int {
	if r.DestinationThreadID == "" {
		return 0
	}
	return 1 + r.Count(ReplayPosted)
}

// ActiveMigration describes the migration currently holding the single-flight guard.
type ActiveMigration struct {
	RunID     string           `json:"run_id"`
	Request   MigrationRequest `json:"request"`
	StartedAt time.Time        `json:"started_at"`
}
