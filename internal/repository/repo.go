package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/sonroyaalmerol/cuebot/internal/faults"
)

const (
	MinIdleTimeoutSeconds = 5
	MaxIdleTimeoutSeconds = 3600
	MaxVolumePercent      = 200
)

func NewRepo(db *sql.DB, defaults Defaults) *Repo {
	if defaults.IdleTimeout <= 0 {
		defaults.IdleTimeout = 60 * time.Second
	}
	if defaults.Volume <= 0 {
		defaults.Volume = 0.5
	}
	return &Repo{db: db, defaults: defaults}
}

func (r *Repo) defaultSettings(guild string) *Settings {
	return &Settings{
		GuildID:            guild,
		IdleTimeoutSeconds: int(r.defaults.IdleTimeout / time.Second),
		VolumePercent:      int(math.Round(r.defaults.Volume * 100)),
	}
}

// UpsertSettings makes sure the guild has a row and returns it.
func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	d := r.defaultSettings(guild)
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id, idle_timeout_seconds, volume_percent, updated_at) VALUES (?,?,?,?)`,
		guild, d.IdleTimeoutSeconds, d.VolumePercent, time.Now().Unix(),
	); err != nil {
		return nil, err
	}
	return r.GetSettings(ctx, guild)
}

// GetSettings returns sql.ErrNoRows for guilds that never saved settings.
func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, idle_timeout_seconds, volume_percent, updated_at
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var updated int64
	if err := row.Scan(&s.GuildID, &s.IdleTimeoutSeconds, &s.VolumePercent, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	s.UpdatedAt = time.Unix(updated, 0)
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	if err := s.validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  idle_timeout_seconds=?,
		  volume_percent=?,
		  updated_at=?
		WHERE guild_id=?`,
		s.IdleTimeoutSeconds, s.VolumePercent, time.Now().Unix(), s.GuildID,
	)
	return err
}

func (s *Settings) validate() error {
	if s.IdleTimeoutSeconds < MinIdleTimeoutSeconds || s.IdleTimeoutSeconds > MaxIdleTimeoutSeconds {
		return faults.UserInputf("update settings", "idle timeout must be between %d and %d seconds", MinIdleTimeoutSeconds, MaxIdleTimeoutSeconds)
	}
	if s.VolumePercent < 0 || s.VolumePercent > MaxVolumePercent {
		return faults.UserInputf("update settings", "volume must be between 0 and %d", MaxVolumePercent)
	}
	return nil
}

// GuildPrefs returns the guild's idle timeout and volume gain, falling back
// to the defaults when nothing is stored.
func (r *Repo) GuildPrefs(ctx context.Context, guild string) (time.Duration, float64, error) {
	s, err := r.GetSettings(ctx, guild)
	if errors.Is(err, sql.ErrNoRows) {
		return r.defaults.IdleTimeout, r.defaults.Volume, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return s.IdleTimeout(), s.Volume(), nil
}
