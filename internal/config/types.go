package config

import "time"

type Config struct {
	DiscordToken          string `env:"DISCORD_TOKEN"`
	SpotifyClientID       string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret   string `env:"SPOTIFY_CLIENT_SECRET"`
	DataDir               string `env:"DATA_DIR" envDefault:"./data"`
	ChimePath             string `env:"CHIME_PATH" envDefault:"./assets/destroy.mp3"`
	RegisterCommandsOnBot bool   `env:"REGISTER_COMMANDS_ON_BOT" envDefault:"false"`

	YtdlpPath    string `env:"YTDLP_PATH"`
	YtdlpInstall bool   `env:"YTDLP_INSTALL" envDefault:"false"`
	FfmpegPath   string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ReconnectTimeout time.Duration `env:"RECONNECT_TIMEOUT" envDefault:"5s"`
	SelectionTimeout time.Duration `env:"SELECTION_TIMEOUT" envDefault:"30s"`
	CleanupDelay     time.Duration `env:"CLEANUP_DELAY" envDefault:"2500ms"`
	ResolveTimeout   time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"15s"`
	ResolveRate      float64       `env:"RESOLVE_RATE" envDefault:"2"`
	ResolveCacheTTL  time.Duration `env:"RESOLVE_CACHE_TTL" envDefault:"10m"`
	ResolveCacheSize int           `env:"RESOLVE_CACHE_SIZE" envDefault:"256"`
	BufferBytes      int           `env:"BUFFER_BYTES" envDefault:"1048576"`
	DefaultVolume    float64       `env:"DEFAULT_VOLUME" envDefault:"0.5"`
	ChimeVolume      float64       `env:"CHIME_VOLUME" envDefault:"0.6"`
	OpusBitrate      int64         `env:"OPUS_BITRATE" envDefault:"128000"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// SpotifyEnabled reports whether both Spotify credentials are set.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}
