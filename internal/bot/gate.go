package bot

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/mvthread/internal/domain"
	"github.com/tbourn/mvthread/internal/services"
)

// Invocation is a slash command invocation stripped of transport details.
type Invocation struct {
	Command string
	UserID  string
	// HasMember is false when the platform sent no guild member data.
	HasMember   bool
	MemberRoles []string
	ChannelID   string
	// Target is the resolved channel option, nil when omitted.
	Target *discordgo.Channel
}

// ChannelLookup resolves channels by id.
type ChannelLookup interface {
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
}

// Migrator runs one migration.
type Migrator interface {
	Migrate(ctx context.Context, runID string, req domain.MigrationRequest) (*domain.MigrationReport, error)
}

// Journal records finished migrations.
type Journal interface {
	Record(ctx context.Context, runID string, req domain.MigrationRequest, report *domain.MigrationReport, migrateErr error, startedAt time.Time) (*domain.MigrationRecord, error)
}

// Gate authorizes and validates invocations and runs them through the
// single-flight guard.
type Gate struct {
	// RoleID is the role required to run commands.
	RoleID   string
	Channels ChannelLookup
	Migrator Migrator
	Guard    *services.Guard
	// Journal is optional.
	Journal Journal
}

// Handle executes inv and returns the status line addressed to the invoking
// user. respond is false for commands outside the command table, which get
// no response at all.
func (g *Gate) Handle(ctx context.Context, inv Invocation) (status string, respond bool) {
	cmd, ok := LookupCommand(inv.Command)
	if !ok {
		log.Debug().Err(ErrUnhandledCommand).Str("command", inv.Command).Msg("ignoring interaction")
		return "", false
	}
	text, err := commandHandlers[cmd](g, ctx, inv)
	if err != nil {
		text = statusText(err)
	}
	return fmt.Sprintf("<@%s> %s", inv.UserID, text), true
}

// move validates a /mv invocation and runs the migration.
func (g *Gate) move(ctx context.Context, inv Invocation) (string, error) {
	lg := log.With().
		Str("command", CommandMove.String()).
		Str("user_id", inv.UserID).
		Str("source_thread_id", inv.ChannelID).
		Logger()

	if !inv.HasMember || !slices.Contains(inv.MemberRoles, g.RoleID) {
		services.ObserveRejected()
		lg.Info().Msg("rejected: caller lacks the required role")
		return "", ErrNotAllowed
	}

	source, err := g.forumThread(ctx, inv.ChannelID)
	if err != nil {
		services.ObserveRejected()
		lg.Info().Err(err).Msg("rejected: invalid invocation context")
		return "", err
	}
	if inv.Target == nil || inv.Target.Type != discordgo.ChannelTypeGuildForum {
		services.ObserveRejected()
		lg.Info().Msg("rejected: target is not a forum")
		return "", errTargetNotForum
	}

	req := domain.MigrationRequest{
		SourceThreadID:       source.ID,
		SourceThreadName:     source.Name,
		DestinationChannelID: inv.Target.ID,
		InvokedBy:            inv.UserID,
	}
	runID := uuid.NewString()
	started := time.Now()

	release, ok := g.Guard.TryAcquire(domain.ActiveMigration{RunID: runID, Request: req, StartedAt: started})
	if !ok {
		services.ObserveRejected()
		lg.Info().Msg("rejected: another migration is in progress")
		return "", services.ErrAlreadyProcessing
	}
	defer release()

	lg = lg.With().Str("run_id", runID).Str("destination_channel_id", req.DestinationChannelID).Logger()
	ctx = lg.WithContext(ctx)
	lg.Info().Msg("migration started")

	report, err := g.Migrator.Migrate(ctx, runID, req)
	if g.Journal != nil {
		_, _ = g.Journal.Record(ctx, runID, req, report, err, started)
	}
	if err != nil {
		lg.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("migration failed")
		return "", err
	}

	skipped := report.Count(domain.ReplaySkipped) + report.Count(domain.ReplayFailed)
	lg.Info().
		Str("destination_thread_id", report.DestinationThreadID).
		Int("migrated", report.Migrated()).
		Int("skipped", skipped).
		Dur("elapsed", time.Since(started)).
		Msg("migration finished")
	return fmt.Sprintf("Thread moved to <#%s> (%d message(s) migrated, %d skipped)",
		report.DestinationThreadID, report.Migrated(), skipped), nil
}

// forumThread returns the invocation channel when it is a public thread
// whose parent is a forum channel.
func (g *Gate) forumThread(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if channelID == "" {
		return nil, ErrNoChannel
	}
	ch, err := g.Channels.Channel(ctx, channelID)
	if err != nil || ch == nil {
		return nil, ErrNoChannel
	}
	if ch.Type != discordgo.ChannelTypeGuildPublicThread || ch.ParentID == "" {
		return nil, errNotForumThread
	}
	parent, err := g.Channels.Channel(ctx, ch.ParentID)
	if err != nil || parent == nil || parent.Type != discordgo.ChannelTypeGuildForum {
		return nil, errNotForumThread
	}
	return ch, nil
}
