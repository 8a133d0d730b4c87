package config

import "time"

type Duration struct {
	Duration time.Duration
}

type FetchConfig struct {
	// Timeout bounds each attempt.
	Timeout Duration `json:"timeout" yaml:"timeout"`
	// MaxRetries is the total number of attempts per request.
	MaxRetries   int      `json:"max_retries" yaml:"max_retries"`
	BackoffBase  Duration `json:"backoff_base" yaml:"backoff_base"`
	MaxBodyBytes int64    `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty"`
}

type PersistConfig struct {
	// Driver is one of "memory", "sqlite", "postgres" or "redis".
	Driver       string   `json:"driver" yaml:"driver"`
	DSN          string   `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	ProbeTimeout Duration `json:"probe_timeout" yaml:"probe_timeout"`
	// TTL only applies to the redis driver; zero keeps entries until cleared.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

type RedisConfig struct {
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Prefix  string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

type MonitorConfig struct {
	// ProbeURL is polled for reachability; defaults to the base URL.
	ProbeURL string   `json:"probe_url,omitempty" yaml:"probe_url,omitempty"`
	Interval Duration `json:"interval" yaml:"interval"`
}

type Config struct {
	Env string `json:"env" yaml:"env"`

	// BaseURL is the root dist/ and data/ are served from. When empty it is
	// derived from PageURL, the location the catalog page is hosted at.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	PageURL string `json:"page_url,omitempty" yaml:"page_url,omitempty"`

	Fetch   FetchConfig   `json:"fetch" yaml:"fetch"`
	Persist PersistConfig `json:"persist" yaml:"persist"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`
}
