// Command mvthread runs the Discord bot that moves forum threads between
// forum channels with the /mv slash command.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/mvthread/internal/bot"
	"github.com/tbourn/mvthread/internal/config"
	"github.com/tbourn/mvthread/internal/discord"
	httpapi "github.com/tbourn/mvthread/internal/http"
	"github.com/tbourn/mvthread/internal/observability"
	"github.com/tbourn/mvthread/internal/repo"
	"github.com/tbourn/mvthread/internal/services"
	"github.com/tbourn/mvthread/internal/sysutil"
)

// Version is set via ldflags.
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mvthread:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "mvthread",
		Short:         "Discord bot that moves forum threads with /mv",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	return cmd
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.Ops.GinMode)

	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, Version,
		attribute.String("discord.guild.id", cfg.Discord.GuildID))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	db, err := repo.OpenJournal()
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	journal := services.NewJournalService(db, repo.Journal{})

	client := discord.NewClient(session, cfg.Discord.GuildID)
	m := cfg.Migration
	migrator := &services.Migrator{
		Webhooks: &services.WebhookProvisioner{API: client, Name: m.WebhookName},
		History:  services.NewHistoryFetcher(client, m.PageSize),
		Rehost: &services.Rehoster{
			Fetcher:     discord.NewHTTPFetcher(m.AttachmentTimeout),
			Concurrency: m.AttachmentConcurrency,
			MaxBytes:    m.AttachmentMaxBytes,
		},
		Pacer: services.NewPacer(m.ReplayRPS, m.ReplayBurst),
	}
	guard := &services.Guard{}
	gate := &bot.Gate{
		RoleID:   cfg.Discord.RoleID,
		Channels: client,
		Migrator: migrator,
		Guard:    guard,
		Journal:  journal,
	}
	bot.New(ctx, session, gate, cfg.Discord.GuildID).Attach(session)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord gateway: %w", err)
	}
	log.Info().Str("guild_id", cfg.Discord.GuildID).Str("version", Version).Msg("bot connected")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Ops.Enabled {
		g.Go(func() error {
			return httpapi.Serve(gctx, ":"+cfg.Ops.Port, httpapi.NewRouter(cfg, journal, guard))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		return session.Close()
	})
	return g.Wait()
}
