package config

import "time"

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// AppURL is the base URL of the admin web app, embedded as the link
	// target of every notification embed.
	AppURL string `json:"app_url"`
}

type DiscordConfig struct {
	Token string `json:"token"`

	// RatePerSec throttles outbound Discord API calls. Zero means the
	// default (5/s).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig points at the sqlite database file.
//
// BusyTimeout is a Go duration string (e.g. "5s").
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ; empty means UTC
}

// BusyTimeoutDuration parses the busy timeout with a 5s default.
func (c StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, 5*time.Second)
}
