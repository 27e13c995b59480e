package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/mvthread/internal/domain"
)

// MaxPageSize is the largest page the platform serves per history request.
const MaxPageSize = 100

// discordEpoch is the snowflake epoch of the platform, in Unix milliseconds.
const discordEpoch = 1420070400000

// MessageSource pages through a channel's history. Pages come back
// newest-first; an empty beforeID means "most recent".
type MessageSource interface {
	ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]domain.HistoricalMessage, error)
}

// HistoryFetcher retrieves the complete history of a thread.
type HistoryFetcher struct {
	Source   MessageSource
	PageSize int
}

// NewHistoryFetcher returns a fetcher requesting pageSize messages per page.
// Out-of-range sizes fall back to MaxPageSize.
func NewHistoryFetcher(src MessageSource, pageSize int) *HistoryFetcher {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &HistoryFetcher{Source: src, PageSize: pageSize}
}

// Fetch returns every non-bot, non-system message of channelID, oldest first.
//
// Paging walks backwards from the most recent message and stops on the first
// empty page. A failure on the first page is reported as ErrRetrievalFailed;
// a failure on a later page ends paging early and the messages gathered so
// far are returned.
func (f *HistoryFetcher) Fetch(ctx context.Context, channelID string) ([]domain.HistoricalMessage, error) {
	tr := otel.Tracer("services/HistoryFetcher")
	ctx, span := tr.Start(ctx, "Fetch",
		trace.WithAttributes(attribute.String("channel.id", channelID)),
	)
	defer span.End()

	var (
		out    []domain.HistoricalMessage
		before string
		pages  int
	)
	for {
		page, err := f.Source.ChannelMessages(ctx, channelID, f.PageSize, before)
		if err != nil {
			if pages == 0 {
				span.RecordError(err)
				return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
			}
			log.Ctx(ctx).Warn().Err(err).
				Str("channel_id", channelID).
				Int("pages", pages).
				Msg("history paging stopped early")
			break
		}
		if len(page) == 0 {
			break
		}
		pages++
		for _, m := range page {
			if m.Author.Bot || m.System {
				continue
			}
			out = append(out, m)
		}
		before = page[len(page)-1].ID
	}

	slices.Reverse(out)
	span.SetAttributes(attribute.Int("pages", pages), attribute.Int("messages", len(out)))
	return out, nil
}

// messageTime derives the creation time encoded in a message snowflake.
func messageTime(id string) (time.Time, bool) {
	sf, err := snowflake.ParseString(id)
	if err != nil || sf <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(sf.Int64()>>22 + discordEpoch).UTC(), true
}
