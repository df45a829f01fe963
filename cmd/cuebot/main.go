package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	ytdlp "github.com/lrstanley/go-ytdlp"

	"github.com/sonroyaalmerol/cuebot/internal/config"
	"github.com/sonroyaalmerol/cuebot/internal/handlers"
	"github.com/sonroyaalmerol/cuebot/internal/idle"
	"github.com/sonroyaalmerol/cuebot/internal/logging"
	"github.com/sonroyaalmerol/cuebot/internal/player"
	"github.com/sonroyaalmerol/cuebot/internal/repository"
	"github.com/sonroyaalmerol/cuebot/internal/resolver"
	"github.com/sonroyaalmerol/cuebot/internal/spotify"
	"github.com/sonroyaalmerol/cuebot/internal/stream"
	"github.com/sonroyaalmerol/cuebot/internal/voice"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.YtdlpInstall {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			logger.Warn("yt-dlp install failed, relying on PATH", "err", err)
		}
	}

	db, err := repository.OpenDB(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := repository.NewRepo(db, repository.Defaults{IdleTimeout: cfg.IdleTimeout, Volume: cfg.DefaultVolume})

	var tracks resolver.TrackLookup
	if cfg.SpotifyEnabled() {
		sp, err := spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			logger.Warn("spotify disabled", "err", err)
		} else {
			tracks = sp
		}
	}

	res := resolver.New(resolver.Options{
		Executable: cfg.YtdlpPath,
		Timeout:    cfg.ResolveTimeout,
		Rate:       cfg.ResolveRate,
		Burst:      2,
		Tracks:     tracks,
		Logger:     logger,
		CacheTTL:   cfg.ResolveCacheTTL,
		CacheSize:  cfg.ResolveCacheSize,
	})
	pipe := stream.New(stream.Options{
		YtdlpPath:  cfg.YtdlpPath,
		FfmpegPath: cfg.FfmpegPath,
		BufferSize: cfg.BufferBytes,
		Logger:     logger,
	})

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.LogLevel = discordgo.LogWarning

	reg := player.NewRegistry(logger)
	reclaimer := idle.NewReclaimer(idle.RealTime{}, logger)
	vm := voice.NewManager(voice.Options{
		Dialer:          voice.DiscordDialer{S: dg, Log: logger},
		Releaser:        reg,
		Idle:            reclaimer,
		Scheduler:       idle.RealTime{},
		ReconnectWindow: cfg.ReconnectTimeout,
		Logger:          logger,
	})

	// playback outlives the signal context so Shutdown can stop sessions in order
	base, stopPlayback := context.WithCancel(context.Background())
	defer stopPlayback()

	svc := player.NewService(player.Options{
		Context:  base,
		Registry: reg,
		Resolver: res,
		Opener:   player.PipelineOpener{P: pipe},
		Voice:    vm,
		Idle:     reclaimer,
		Encoder: func() (voice.Encoder, error) {
			enc, err := stream.NewOpusEncoder(cfg.OpusBitrate)
			if err != nil {
				return nil, err
			}
			return enc, nil
		},
		Settings:     repo,
		Notifier:     handlers.ChannelNotifier{S: dg, Log: logger},
		Logger:       logger,
		IdleTimeout:  cfg.IdleTimeout,
		Volume:       cfg.DefaultVolume,
		ChimePath:    cfg.ChimePath,
		ChimeVolume:  cfg.ChimeVolume,
		CleanupDelay: cfg.CleanupDelay,
	})

	bot := handlers.NewBot(cfg, dg, svc, repo, logger)
	return bot.Run(ctx)
}
