package config

import (
	"errors"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{"DISCORD_TOKEN": "t"}})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"IdleTimeout", cfg.IdleTimeout, 60 * time.Second},
		{"ReconnectTimeout", cfg.ReconnectTimeout, 5 * time.Second},
		{"SelectionTimeout", cfg.SelectionTimeout, 30 * time.Second},
		{"CleanupDelay", cfg.CleanupDelay, 2500 * time.Millisecond},
		{"ResolveTimeout", cfg.ResolveTimeout, 15 * time.Second},
		{"BufferBytes", cfg.BufferBytes, 1 << 20},
		{"DefaultVolume", cfg.DefaultVolume, 0.5},
		{"ChimeVolume", cfg.ChimeVolume, 0.6},
		{"ChimePath", cfg.ChimePath, "./assets/destroy.mp3"},
		{"DataDir", cfg.DataDir, "./data"},
		{"SpotifyEnabled", cfg.SpotifyEnabled(), false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"DISCORD_TOKEN":            "t",
		"IDLE_TIMEOUT":             "2m",
		"SPOTIFY_CLIENT_ID":        "id",
		"SPOTIFY_CLIENT_SECRET":    "secret",
		"REGISTER_COMMANDS_ON_BOT": "true",
	}})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.IdleTimeout != 2*time.Minute || !cfg.SpotifyEnabled() || !cfg.RegisterCommandsOnBot {
		t.Errorf("Parse() = %+v", cfg)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []map[string]string{
		{},
		{"DISCORD_TOKEN": "t", "IDLE_TIMEOUT": "0s"},
		{"DISCORD_TOKEN": "t", "IDLE_TIMEOUT": "1500us"},
		{"DISCORD_TOKEN": "t", "IDLE_TIMEOUT": "soon"},
		{"DISCORD_TOKEN": "t", "BUFFER_BYTES": "0"},
	}
	for _, e := range tests {
		_, err := Parse(env.Options{Environment: e})
		var ce ErrConfig
		if !errors.As(err, &ce) {
			t.Errorf("Parse(%v) error = %v, want ErrConfig", e, err)
		}
	}
}
