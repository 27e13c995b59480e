package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/mvthread/internal/domain"
)

// WebhookAPI is the slice of the platform API needed to provision and
// execute channel webhooks.
type WebhookAPI interface {
	ChannelWebhooks(ctx context.Context, channelID string) ([]domain.Webhook, error)
	WebhookCreate(ctx context.Context, channelID, name string) (*domain.Webhook, error)
	// WebhookExecute posts through hook. An empty threadID with a ThreadName
	// on the post creates a new forum post. When wait is false the returned
	// message may be nil.
	WebhookExecute(ctx context.Context, hook domain.Webhook, threadID string, wait bool, post domain.Post) (*domain.PostedMessage, error)
}

// WebhookProvisioner looks up or creates the marker-named webhook of a channel.
type WebhookProvisioner struct {
	API  WebhookAPI
	Name string
}

// ImpersonationChannel posts messages into a destination channel under
// arbitrary display names and avatars.
type ImpersonationChannel struct {
	api     WebhookAPI
	Webhook domain.Webhook
}

// AcquireOrCreate returns the channel's existing marker-named webhook, or
// provisions one. Listing failures are treated as "none found"; a rejected
// creation is reported as ErrWebhookCreationFailed.
func (p *WebhookProvisioner) AcquireOrCreate(ctx context.Context, channelID string) (*ImpersonationChannel, error) {
	tr := otel.Tracer("services/WebhookProvisioner")
	ctx, span := tr.Start(ctx, "AcquireOrCreate",
		trace.WithAttributes(attribute.String("channel.id", channelID)),
	)
	defer span.End()

	hooks, err := p.API.ChannelWebhooks(ctx, channelID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("channel_id", channelID).Msg("listing webhooks failed")
	}
	for _, h := range hooks {
		// Webhooks owned by other applications come back without a token.
		if h.Name == p.Name && h.Token != "" {
			span.SetAttributes(attribute.Bool("webhook.created", false))
			return &ImpersonationChannel{api: p.API, Webhook: h}, nil
		}
	}

	h, err := p.API.WebhookCreate(ctx, channelID, p.Name)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrWebhookCreationFailed, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: platform returned no webhook", ErrWebhookCreationFailed)
	}
	span.SetAttributes(attribute.Bool("webhook.created", true))
	log.Ctx(ctx).Info().Str("channel_id", channelID).Str("webhook_id", h.ID).Msg("webhook created")
	return &ImpersonationChannel{api: p.API, Webhook: *h}, nil
}

// Post executes the webhook. With an empty threadID and wait set, the post
// opens a new thread named post.ThreadName and the returned message lives in
// it; otherwise the post goes into threadID.
func (c *ImpersonationChannel) Post(ctx context.Context, threadID string, post domain.Post, wait bool) (*domain.PostedMessage, error) {
	tr := otel.Tracer("services/ImpersonationChannel")
	ctx, span := tr.Start(ctx, "Post",
		trace.WithAttributes(
			attribute.String("webhook.id", c.Webhook.ID),
			attribute.String("thread.id", threadID),
			attribute.Int("files", len(post.Files)),
			attribute.Bool("wait", wait),
		),
	)
	defer span.End()

	msg, err := c.api.WebhookExecute(ctx, c.Webhook, threadID, wait, post)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return msg, nil
}
