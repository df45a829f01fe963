package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/cuebot/internal/config"
	"github.com/sonroyaalmerol/cuebot/internal/faults"
	"github.com/sonroyaalmerol/cuebot/internal/player"
	"github.com/sonroyaalmerol/cuebot/internal/repository"
	"github.com/sonroyaalmerol/cuebot/internal/ui"
	"github.com/sonroyaalmerol/cuebot/internal/utils"
)

const ephemeral = discordgo.MessageFlagsEphemeral

type CommandHandler struct {
	cfg  *config.Config
	svc  *player.Service
	repo *repository.Repo
	sel  *selections
	log  *slog.Logger
}

func NewCommandHandler(cfg *config.Config, svc *player.Service, repo *repository.Repo, log *slog.Logger) *CommandHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CommandHandler{cfg: cfg, svc: svc, repo: repo, sel: newSelections(), log: log}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	minVolume := 0.0
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song from a URL or a search",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "url",
					Description: "play a YouTube URL",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "url", Description: "video URL", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "query",
					Description: "search and pick a result",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "query", Description: "search text", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
			},
		},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "queue", Description: "Show the current queue"},
		{Name: "clean", Description: "Clear the queue except the current song"},
		{
			Name:        "config",
			Description: "Show or change guild settings",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "idle-timeout", Description: "time to wait before leaving, e.g. 90 or 2m", Type: discordgo.ApplicationCommandOptionString},
				{
					Name:        "volume",
					Description: "playback volume in percent",
					Type:        discordgo.ApplicationCommandOptionInteger,
					MinValue:    &minVolume,
					MaxValue:    repository.MaxVolumePercent,
				},
			},
		},
	}
}

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	h.log.Info("registering application commands", "appID", appID, "guildID", guildID)

	cmds := commandDefinitions()
	for _, c := range cmds {
		if _, err := s.ApplicationCommandCreate(appID, guildID, c); err != nil {
			h.log.Error("failed to create application command", "guildID", guildID, "command", c.Name, "err", err)
			return err
		}
		h.log.Debug("registered command", "guildID", guildID, "command", c.Name)
	}

	h.log.Info("finished registering commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.log.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.handleChatCommand(s, i)
	case discordgo.InteractionMessageComponent:
		h.log.Debug("interaction: component", "guildID", i.GuildID, "userID", userIDOf(i), "customID", i.MessageComponentData().CustomID)
		h.handleComponent(s, i)
	default:
		h.log.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	data := i.ApplicationCommandData()
	switch data.Name {
	case "play":
		h.cmdPlay(s, i)
	case "skip":
		h.cmdSkip(s, i)
	case "stop":
		h.cmdStop(s, i)
	case "queue":
		h.cmdQueue(s, i)
	case "clean":
		h.cmdClean(s, i)
	case "config":
		h.cmdConfig(s, i)
	default:
		h.log.Debug("unknown command", "name", data.Name, "guildID", i.GuildID, "userID", userIDOf(i))
	}
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 || len(opts[0].Options) == 0 {
		h.reply(s, i, ui.Failed("missing arguments"), true)
		return
	}
	sub := opts[0]
	arg := sub.Options[0].StringValue()

	chID, ok := userInVoice(s, i.GuildID, userIDOf(i))
	if !ok {
		h.reply(s, i, ui.MsgNotInVoice, true)
		return
	}
	req := player.Request{
		GuildID:        i.GuildID,
		VoiceChannelID: chID,
		TextChannelID:  i.ChannelID,
		RequestedBy:    userIDOf(i),
		Reference:      arg,
	}

	h.deferReply(s, i, false)
	switch sub.Name {
	case "url":
		res, err := h.svc.EnqueueAndMaybeStart(context.Background(), req)
		if err != nil {
			h.editReply(s, i, errorMessage(err))
			return
		}
		h.log.Info("cmd play", "guildID", i.GuildID, "userID", req.RequestedBy, "title", res.Song.Title, "started", res.Started)
		h.editReply(s, i, resultMessage(res))
	case "query":
		h.playQuery(s, i, req)
	}
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.svc.Skip(i.GuildID); err != nil {
		h.reply(s, i, errorMessage(err), true)
		return
	}
	h.log.Info("cmd skip", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, ui.MsgSkipped, false)
}

func (h *CommandHandler) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.deferReply(s, i, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.svc.Stop(ctx, i.GuildID); err != nil {
		h.editReply(s, i, errorMessage(err))
		return
	}
	h.log.Info("cmd stop", "guildID", i.GuildID, "userID", userIDOf(i))
	h.editReply(s, i, ui.MsgStopped)
}

func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	songs, err := h.svc.ListQueue(i.GuildID)
	if err != nil {
		h.reply(s, i, errorMessage(err), true)
		return
	}
	lines := make([]ui.SongLine, len(songs))
	for n, song := range songs {
		lines[n] = ui.SongLine{Title: song.Title, URL: song.Ref, RequestedBy: song.RequestedBy}
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{ui.BuildQueueEmbed(lines)},
		},
	}); err != nil {
		h.log.Warn("queue respond failed", "guildID", i.GuildID, "err", err)
	}
	h.log.Debug("cmd queue", "guildID", i.GuildID, "userID", userIDOf(i), "len", len(songs))
}

func (h *CommandHandler) cmdClean(s *discordgo.Session, i *discordgo.InteractionCreate) {
	n, err := h.svc.Clean(i.GuildID)
	if err != nil {
		h.reply(s, i, errorMessage(err), true)
		return
	}
	h.log.Info("cmd clean", "guildID", i.GuildID, "userID", userIDOf(i), "dropped", n)
	h.reply(s, i, ui.MsgCleaned, false)
}

// configChange holds the /config options that were given.
type configChange struct {
	idleTimeoutSec *int
	volumePercent  *int
}

func (c configChange) empty() bool {
	return c.idleTimeoutSec == nil && c.volumePercent == nil
}

func parseConfigOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) (configChange, error) {
	var c configChange
	for _, o := range opts {
		switch o.Name {
		case "idle-timeout":
			sec := utils.ParseDurationString(o.StringValue())
			if sec <= 0 {
				return c, faults.UserInputf("config", "could not read %q as a duration", o.StringValue())
			}
			c.idleTimeoutSec = &sec
		case "volume":
			v := int(o.IntValue())
			c.volumePercent = &v
		}
	}
	return c, nil
}

func (c configChange) apply(set *repository.Settings) {
	if c.idleTimeoutSec != nil {
		set.IdleTimeoutSeconds = *c.idleTimeoutSec
	}
	if c.volumePercent != nil {
		set.VolumePercent = *c.volumePercent
	}
}

func (h *CommandHandler) cmdConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	set, err := h.repo.UpsertSettings(ctx, i.GuildID)
	if err != nil {
		h.log.Error("upsert settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, ui.Failed("failed to fetch config"), true)
		return
	}

	change, err := parseConfigOptions(i.ApplicationCommandData().Options)
	if err != nil {
		h.reply(s, i, errorMessage(err), true)
		return
	}
	if !change.empty() {
		change.apply(set)
		if err := h.repo.UpdateSettings(ctx, set); err != nil {
			if !faults.Is(err, faults.UserInput) {
				h.log.Error("update settings failed", "guildID", i.GuildID, "err", err)
			}
			h.reply(s, i, errorMessage(err), true)
			return
		}
		h.log.Info("config updated", "guildID", i.GuildID, "idleTimeoutSeconds", set.IdleTimeoutSeconds, "volumePercent", set.VolumePercent)
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{ui.BuildSettingsEmbed(set.IdleTimeoutSeconds, set.VolumePercent)},
		},
	}); err != nil {
		h.log.Warn("config respond failed", "guildID", i.GuildID, "err", err)
	}
}

func resultMessage(res player.Result) string {
	if res.Started {
		return ui.NowPlaying(res.Song.Title)
	}
	return ui.AddedToQueue(res.Song.Title)
}

// errorMessage turns a command error into what the user sees.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, player.ErrNoQueue):
		return ui.MsgNoQueue
	case errors.Is(err, player.ErrQueueEmpty):
		return ui.MsgQueueEmpty
	case errors.Is(err, player.ErrDisconnecting):
		return ui.MsgDisconnecting
	}

	var fe *faults.Error
	if !errors.As(err, &fe) {
		return ui.Failed("Something went wrong.")
	}
	switch fe.Kind {
	case faults.UserInput:
		return ui.Failed(fe.Msg)
	case faults.Resolve:
		return ui.Failed("Could not look that up. Try again later.")
	case faults.Connection:
		return ui.Failed("Could not join your voice channel.")
	default:
		return ui.Failed("Something went wrong.")
	}
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, hidden bool) {
	var flags discordgo.MessageFlags
	if hidden {
		flags = ephemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		h.log.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, hidden bool) {
	var flags discordgo.MessageFlags
	if hidden {
		flags = ephemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: flags,
		},
	}); err != nil {
		h.log.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		h.log.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func userInVoice(s *discordgo.Session, guildID, userID string) (channelID string, ok bool) {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		g, _ = s.Guild(guildID)
	}
	if g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

func userIDOf(i *discordgo.InteractionCreate) string {
	switch {
	case i == nil:
		return ""
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	}
	return ""
}
