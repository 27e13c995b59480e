package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// API is the part of the Discord session the event handlers use.
type API interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, cmdID, guildID string, options ...discordgo.RequestOption) error
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot owns the session event handlers.
type Bot struct {
	ctx     context.Context
	api     API
	gate    *Gate
	guildID string
}

// New returns a Bot serving guildID. ctx bounds every migration started
// from an interaction.
func New(ctx context.Context, api API, gate *Gate, guildID string) *Bot {
	return &Bot{ctx: ctx, api: api, gate: gate, guildID: guildID}
}

// Attach registers the bot's handlers on s.
func (b *Bot) Attach(s *discordgo.Session) {
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) { b.onReady(r) })
	s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) { b.onInteraction(i.Interaction) })
}

// onReady registers the guild commands and removes stale global
// registrations of the same names.
func (b *Bot) onReady(r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	appID := r.User.ID
	log.Info().Str("user", r.User.Username).Str("guild_id", b.guildID).Msg("logged in")

	if global, err := b.api.ApplicationCommands(appID, ""); err != nil {
		log.Warn().Err(err).Msg("listing global commands failed")
	} else {
		for _, c := range global {
			if _, known := LookupCommand(c.Name); !known {
				continue
			}
			if err := b.api.ApplicationCommandDelete(appID, c.ID, ""); err != nil {
				log.Warn().Err(err).Str("command", c.Name).Msg("deleting stale global command failed")
			}
		}
	}

	if _, err := b.api.ApplicationCommandBulkOverwrite(appID, b.guildID, Definitions()); err != nil {
		log.Error().Err(err).Str("guild_id", b.guildID).Msg("registering commands failed")
		return
	}
	log.Info().Int("commands", len(commandNames)).Msg("commands registered")
}

// onInteraction defers an ephemeral response, runs the gate, then sends the
// status line as a follow-up.
func (b *Bot) onInteraction(i *discordgo.Interaction) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	inv := invocationFrom(i)
	if _, ok := LookupCommand(inv.Command); !ok {
		log.Debug().Err(ErrUnhandledCommand).Str("command", inv.Command).Msg("ignoring interaction")
		return
	}

	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Warn().Err(err).Str("interaction_id", i.ID).Msg("deferring response failed")
	}

	status, respond := b.gate.Handle(b.ctx, inv)
	if !respond {
		return
	}
	if _, err := b.api.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
		Content: status,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); err != nil {
		log.Error().Err(err).Str("interaction_id", i.ID).Msg("cannot respond to slash command")
	}
}

// invocationFrom extracts the command, caller and channel option of i.
func invocationFrom(i *discordgo.Interaction) Invocation {
	data := i.ApplicationCommandData()
	inv := Invocation{
		Command:   data.Name,
		ChannelID: i.ChannelID,
	}
	switch {
	case i.Member != nil:
		inv.HasMember = true
		inv.MemberRoles = i.Member.Roles
		if i.Member.User != nil {
			inv.UserID = i.Member.User.ID
		}
	case i.User != nil:
		inv.UserID = i.User.ID
	}

	for _, opt := range data.Options {
		if opt.Name != optionChannel || opt.Type != discordgo.ApplicationCommandOptionChannel {
			continue
		}
		id, _ := opt.Value.(string)
		if data.Resolved != nil {
			if ch, ok := data.Resolved.Channels[id]; ok {
				inv.Target = ch
				break
			}
		}
		if id != "" {
			inv.Target = &discordgo.Channel{ID: id}
		}
	}
	return inv
}
