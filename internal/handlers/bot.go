package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/cuebot/internal/config"
	"github.com/sonroyaalmerol/cuebot/internal/player"
	"github.com/sonroyaalmerol/cuebot/internal/repository"
	"github.com/sonroyaalmerol/cuebot/internal/voice"
)

const shutdownTimeout = 10 * time.Second

type Bot struct {
	cfg *config.Config
	dg  *discordgo.Session
	svc *player.Service
	cmd *CommandHandler
	log *slog.Logger
}

func NewBot(cfg *config.Config, dg *discordgo.Session, svc *player.Service, repo *repository.Repo, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		cfg: cfg, dg: dg, svc: svc, log: log,
		cmd: NewCommandHandler(cfg, svc, repo, log),
	}
}

// Run connects to the gateway and serves until ctx ends, then stops every
// guild session before closing the gateway.
func (b *Bot) Run(ctx context.Context) error {
	dg := b.dg
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.onVoiceStateUpdate)
	dg.AddHandler(b.onVoiceServerUpdate)

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	<-ctx.Done()
	b.log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	b.svc.Shutdown(sctx)
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("connected", "user", s.State.User.Username)
	appID := s.State.User.ID

	if b.cfg.RegisterCommandsOnBot {
		if err := b.cmd.RegisterCommands(s, appID, ""); err != nil {
			b.log.Error("register global commands", "err", err)
		} else {
			b.log.Info("registered global application commands")
		}
		return
	}

	var wg sync.WaitGroup
	for _, g := range s.State.Guilds {
		wg.Add(1)
		go func(guildID string) {
			defer wg.Done()
			if err := b.cmd.RegisterCommands(s, appID, guildID); err != nil {
				b.log.Error("register guild commands", "guild", guildID, "err", err)
			}
		}(g.ID)
	}
	wg.Wait()

	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
		b.log.Error("clear global commands", "err", err)
	} else {
		b.log.Info("cleared global application commands")
	}
	b.log.Info("registered commands on all guilds")
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.cfg.RegisterCommandsOnBot {
		return
	}
	if err := b.cmd.RegisterCommands(s, s.State.User.ID, g.ID); err != nil {
		b.log.Error("register guild commands on join", "guild", g.ID, "err", err)
	} else {
		b.log.Info("registered commands on new guild", "guild", g.ID)
	}
}

// onVoiceStateUpdate tracks the bot's own voice state. Leaving the channel
// without a teardown opens the reconnect window; rejoining closes it.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}
	if vs.ChannelID == "" {
		b.svc.ConnectionDropped(vs.GuildID)
		return
	}
	b.svc.VoiceSignal(vs.GuildID, voice.LinkConnecting)
}

func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, vs *discordgo.VoiceServerUpdate) {
	b.svc.VoiceSignal(vs.GuildID, voice.LinkSignalling)
}
