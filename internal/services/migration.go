package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/tbourn/mvthread/internal/domain"
)

const (
	// defaultThreadName is used when the source thread has no name.
	defaultThreadName = "Thread"
	// threadNameMax is the platform's limit on thread names.
	threadNameMax = 100
	// contentMax is the platform's limit on message content for webhooks.
	contentMax = 2000
)

// Migrator moves the history of a thread into a new forum post.
type Migrator struct {
	Webhooks *WebhookProvisioner
	History  *HistoryFetcher
	Rehost   *Rehoster

	// Pacer spaces out replay posts. Nil means no pacing.
	Pacer *rate.Limiter
}

// NewPacer builds a replay limiter; rps <= 0 disables pacing.
func NewPacer(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Migrate copies the source thread of req into a new post of the destination
// forum channel.
//
// Steps: acquire the impersonation webhook, fetch the history, post the first
// message as the seed of a new thread, then replay the remaining messages
// into that thread in order. A failing seed aborts the migration with
// ErrSendFailed; replay failures are recorded in the report and skipped.
// Nothing is rolled back. The returned report is non-nil even on error and
// reflects the work done so far.
func (m *Migrator) Migrate(ctx context.Context, runID string, req domain.MigrationRequest) (*domain.MigrationReport, error) {
	tr := otel.Tracer("services/Migrator")
	ctx, span := tr.Start(ctx, "Migrate",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("source.thread.id", req.SourceThreadID),
			attribute.String("destination.channel.id", req.DestinationChannelID),
			attribute.String("user.id", req.InvokedBy),
		),
	)
	defer span.End()

	start := time.Now()
	report := &domain.MigrationReport{
		RunID:                runID,
		SourceThreadID:       req.SourceThreadID,
		DestinationChannelID: req.DestinationChannelID,
	}

	err := m.migrate(ctx, req, report)
	migrationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		migrationsTotal.WithLabelValues("failed").Inc()
		return report, err
	}
	migrationsTotal.WithLabelValues("succeeded").Inc()
	span.SetAttributes(
		attribute.String("destination.thread.id", report.DestinationThreadID),
		attribute.Int("messages.fetched", report.Fetched),
		attribute.Int("messages.skipped", report.Count(domain.ReplaySkipped)+report.Count(domain.ReplayFailed)),
	)
	return report, nil
}

func (m *Migrator) migrate(ctx context.Context, req domain.MigrationRequest, report *domain.MigrationReport) error {
	lg := log.Ctx(ctx)

	hook, err := m.Webhooks.AcquireOrCreate(ctx, req.DestinationChannelID)
	if err != nil {
		return err
	}

	history, err := m.History.Fetch(ctx, req.SourceThreadID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return ErrNoMessages
	}
	report.Fetched = len(history)

	seed := history[0]
	parts := seedParts(seed)
	post := m.buildPost(ctx, seed)
	post.Content = parts[0]
	post.ThreadName = threadName(req.SourceThreadName)
	post.SuppressMentions = true

	posted, err := hook.Post(ctx, "", post, true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if posted == nil || posted.ChannelID == "" {
		return fmt.Errorf("%w: no message returned for the first post", ErrSendFailed)
	}
	report.DestinationThreadID = posted.ChannelID
	for _, part := range parts[1:] {
		if err := m.pace(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		cont := continuation(post, part)
		cont.SuppressMentions = true
		if _, err := hook.Post(ctx, posted.ChannelID, cont, false); err != nil {
			return fmt.Errorf("%w: first message continuation: %v", ErrSendFailed, err)
		}
	}
	lg.Info().
		Str("destination_thread_id", posted.ChannelID).
		Int("messages", len(history)).
		Int("seed_parts", len(parts)).
		Msg("seed posted, replaying thread")

	for i, msg := range history[1:] {
		res := m.replay(ctx, hook, posted.ChannelID, msg)
		res.Index = i + 1
		if res.Status == domain.ReplayFailed {
			ev := lg.Warn().Err(res.Err).
				Str("source_message_id", msg.ID).
				Int("index", res.Index)
			if at, ok := messageTime(msg.ID); ok {
				ev = ev.Time("source_message_created", at)
			}
			ev.Msg("replay failed, continuing")
		}
		messagesReplayed.WithLabelValues(string(res.Status)).Inc()
		report.Results = append(report.Results, res)
	}
	return nil
}

// replay posts one message into threadID. It never returns an error; the
// outcome is carried by the result.
func (m *Migrator) replay(ctx context.Context, hook *ImpersonationChannel, threadID string, msg domain.HistoricalMessage) domain.ReplayResult {
	res := domain.ReplayResult{SourceMessageID: msg.ID}
	if msg.Empty() {
		res.Status = domain.ReplaySkipped
		return res
	}
	if err := m.pace(ctx); err != nil {
		res.Status, res.Err = domain.ReplayFailed, err
		return res
	}
	post := m.buildPost(ctx, msg)
	if post.Content == "" && len(post.Files) == 0 && len(post.Embeds) == 0 {
		// Only attachments, and none of them could be fetched.
		res.Status = domain.ReplaySkipped
		return res
	}
	parts := splitContent(msg.Content, contentMax)
	if len(parts) > 0 {
		post.Content = parts[0]
	}
	if _, err := hook.Post(ctx, threadID, post, false); err != nil {
		res.Status, res.Err = domain.ReplayFailed, err
		return res
	}
	res.Parts = 1
	for i := 1; i < len(parts); i++ {
		if err := m.pace(ctx); err != nil {
			res.Status, res.Err = domain.ReplayFailed, err
			return res
		}
		if _, err := hook.Post(ctx, threadID, continuation(post, parts[i]), false); err != nil {
			res.Status, res.Err = domain.ReplayFailed, fmt.Errorf("part %d of %d: %w", i+1, len(parts), err)
			return res
		}
		res.Parts++
	}
	if res.Parts > 1 {
		log.Ctx(ctx).Debug().
			Str("source_message_id", msg.ID).
			Int("parts", res.Parts).
			Msg("long message split")
	}
	res.Status = domain.ReplayPosted
	return res
}

func (m *Migrator) pace(ctx context.Context) error {
	if m.Pacer == nil {
		return nil
	}
	return m.Pacer.Wait(ctx)
}

// continuation is a text-only follow-up of post under the same identity.
func continuation(post domain.Post, content string) domain.Post {
	return domain.Post{Username: post.Username, AvatarURL: post.AvatarURL, Content: content}
}

// buildPost renders msg under its author's resolved identity with its
// attachments re-hosted.
func (m *Migrator) buildPost(ctx context.Context, msg domain.HistoricalMessage) domain.Post {
	id := ResolveIdentity(msg.Author)
	post := domain.Post{
		Username:  WebhookUsername(id),
		AvatarURL: id.AvatarURL,
		Content:   msg.Content,
		Embeds:    richEmbeds(msg.Embeds),
	}
	if m.Rehost != nil {
		post.Files = m.Rehost.Rehost(ctx, msg.Attachments)
	}
	return post
}

// seedParts renders the first message as one or more posts. The
// original-poster marker closes the first post; text that does not fit
// follows in continuation posts.
func seedParts(msg domain.HistoricalMessage) []string {
	marker := fmt.Sprintf("||OP: <@%s>||", msg.Author.ID)
	body := strings.TrimRight(msg.Content, "\n")
	if body == "" {
		return []string{marker}
	}
	head, rest := cutContent(body, contentMax-utf8.RuneCountInString(marker)-1)
	return append([]string{head + "\n" + marker}, splitContent(rest, contentMax)...)
}

// splitContent breaks s into pieces of at most max runes, in order.
func splitContent(s string, max int) []string {
	var out []string
	for s != "" {
		var head string
		head, s = cutContent(s, max)
		if strings.TrimSpace(head) != "" {
			out = append(out, head)
		}
	}
	return out
}

// cutContent returns the first piece of s holding at most max runes and the
// remainder. The cut lands on a line break in the second half of the piece
// when there is one; the break itself is dropped.
func cutContent(s string, max int) (head, rest string) {
	if utf8.RuneCountInString(s) <= max {
		return s, ""
	}
	r := []rune(s)
	for i := max - 1; i >= max/2; i-- {
		if r[i] == '\n' {
			return string(r[:i]), string(r[i+1:])
		}
	}
	return string(r[:max]), string(r[max:])
}

// threadName normalizes the source thread name for the new post.
func threadName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultThreadName
	}
	return clipRunes(norm.NFC.String(name), threadNameMax)
}

// richEmbeds keeps the embeds a webhook can send. Link previews are
// regenerated by the platform from the content.
func richEmbeds(in []*discordgo.MessageEmbed) []*discordgo.MessageEmbed {
	var out []*discordgo.MessageEmbed
	for _, e := range in {
		if e == nil {
			continue
		}
		if e.Type == "" || e.Type == discordgo.EmbedTypeRich {
			out = append(out, e)
		}
	}
	return out
}
