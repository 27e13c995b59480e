// Package discord adapts a discordgo session to the narrow interfaces the
// migration services consume: paged history, channel webhooks, webhook
// execution, channel lookups and attachment downloads.
package discord

import (
	"bytes"
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tbourn/mvthread/internal/domain"
)

// Client implements services.MessageSource, services.WebhookAPI and the
// command gate's channel lookup on top of a discordgo session.
type Client struct {
	s       *discordgo.Session
	guildID string
}

// NewClient wraps s. guildID is used to build member avatar URLs, which the
// REST history payloads do not carry a guild for.
func NewClient(s *discordgo.Session, guildID string) *Client {
	return &Client{s: s, guildID: guildID}
}

// ChannelMessages returns up to limit messages older than beforeID,
// newest first.
func (c *Client) ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]domain.HistoricalMessage, error) {
	msgs, err := c.s.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoricalMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, toHistoricalMessage(m, c.guildID))
	}
	return out, nil
}

// ChannelWebhooks lists the webhooks of channelID.
func (c *Client) ChannelWebhooks(ctx context.Context, channelID string) ([]domain.Webhook, error) {
	hooks, err := c.s.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Webhook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, toWebhook(h))
		}
	}
	return out, nil
}

// WebhookCreate provisions a webhook named name on channelID.
func (c *Client) WebhookCreate(ctx context.Context, channelID, name string) (*domain.Webhook, error) {
	h, err := c.s.WebhookCreate(channelID, name, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	w := toWebhook(h)
	return &w, nil
}

// WebhookExecute posts through hook, into threadID when set, otherwise as a
// new forum post named post.ThreadName.
func (c *Client) WebhookExecute(ctx context.Context, hook domain.Webhook, threadID string, wait bool, post domain.Post) (*domain.PostedMessage, error) {
	params := webhookParams(post, threadID)
	var (
		msg *discordgo.Message
		err error
	)
	if threadID == "" {
		msg, err = c.s.WebhookExecute(hook.ID, hook.Token, wait, params, discordgo.WithContext(ctx))
	} else {
		msg, err = c.s.WebhookThreadExecute(hook.ID, hook.Token, wait, threadID, params, discordgo.WithContext(ctx))
	}
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	return &domain.PostedMessage{ID: msg.ID, ChannelID: msg.ChannelID}, nil
}

// Channel resolves a channel from the gateway state cache, falling back to REST.
func (c *Client) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if c.s.State != nil {
		if ch, err := c.s.State.Channel(channelID); err == nil {
			return ch, nil
		}
	}
	return c.s.Channel(channelID, discordgo.WithContext(ctx))
}

// webhookParams renders a post as a webhook execution payload.
func webhookParams(post domain.Post, threadID string) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content:   post.Content,
		Username:  post.Username,
		AvatarURL: post.AvatarURL,
		Embeds:    post.Embeds,
	}
	if threadID == "" {
		params.ThreadName = post.ThreadName
	}
	if post.SuppressMentions {
		params.AllowedMentions = &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		}
	}
	for _, f := range post.Files {
		params.Files = append(params.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	return params
}

// toHistoricalMessage converts a platform message. guildID is needed for
// member avatar URLs.
func toHistoricalMessage(m *discordgo.Message, guildID string) domain.HistoricalMessage {
	out := domain.HistoricalMessage{
		ID:        m.ID,
		Content:   m.Content,
		Embeds:    m.Embeds,
		Timestamp: m.Timestamp,
		System:    m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply,
	}
	if u := m.Author; u != nil {
		out.Author = domain.Author{
			ID:         u.ID,
			Username:   u.Username,
			GlobalName: u.GlobalName,
			AvatarURL:  u.AvatarURL(""),
			Bot:        u.Bot,
		}
	}
	if mem := m.Member; mem != nil {
		override := &domain.MemberOverride{Nick: mem.Nick}
		if mem.Avatar != "" && out.Author.ID != "" {
			override.AvatarURL = memberAvatarURL(guildID, out.Author.ID, mem.Avatar)
		}
		out.Author.Member = override
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, domain.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out
}

func memberAvatarURL(guildID, userID, avatar string) string {
	if strings.HasPrefix(avatar, "a_") {
		return discordgo.EndpointGuildMemberAvatarAnimated(guildID, userID, avatar)
	}
	return discordgo.EndpointGuildMemberAvatar(guildID, userID, avatar)
}

func toWebhook(h *discordgo.Webhook) domain.Webhook {
	return domain.Webhook{ID: h.ID, Token: h.Token, ChannelID: h.ChannelID, Name: h.Name}
}
