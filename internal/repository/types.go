package repository

import (
	"database/sql"
	"time"
)

type Repo struct {
	db       *sql.DB
	defaults Defaults
}

// Defaults apply to guilds without a stored row.
type Defaults struct {
	IdleTimeout time.Duration
	Volume      float64
}

type Settings struct {
	GuildID            string
	IdleTimeoutSeconds int
	VolumePercent      int
	UpdatedAt          time.Time
}

func (s Settings) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

func (s Settings) Volume() float64 {
	return float64(s.VolumePercent) / 100
}
