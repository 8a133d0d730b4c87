package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/materialmap/internal/catalog/basepath"
	"github.com/yungbote/materialmap/internal/catalog/fetch"
	"github.com/yungbote/materialmap/internal/platform/envutil"
)

const (
	PersistMemory   = "memory"
	PersistSQLite   = "sqlite"
	PersistPostgres = "postgres"
	PersistRedis    = "redis"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		return d.parse(u)
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!int" {
		v, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(v)
		return nil
	}
	return d.parse(n.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		Fetch: FetchConfig{
			Timeout:     Duration{Duration: 10 * time.Second},
			MaxRetries:  3,
			BackoffBase: Duration{Duration: time.Second},
		},
		Persist: PersistConfig{
			Driver:       PersistMemory,
			ProbeTimeout: Duration{Duration: 5 * time.Second},
		},
		Redis: RedisConfig{
			Channel: "materialmap",
			Prefix:  "materialmap",
		},
		Monitor: MonitorConfig{
			Interval: Duration{Duration: 30 * time.Second},
		},
	}
}

// Load reads MM_CONFIG_PATH (or ./config/config.json, or
// ./config/config.yaml) over the defaults, then applies environment
// overrides and finally each override func, before validating.
func Load(overrides ...func(*Config)) (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("MM_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			for _, name := range []string{"config.json", "config.yaml"} {
				p := filepath.Join(wd, "config", name)
				if _, err := os.Stat(p); err == nil {
					cfgPath = p
					break
				}
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := decode(cfgPath, b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.BaseURL = envutil.String("MM_BASE_URL", cfg.BaseURL)
	cfg.PageURL = envutil.String("MM_PAGE_URL", cfg.PageURL)
	cfg.Fetch.Timeout.Duration = envutil.Duration("MM_FETCH_TIMEOUT", cfg.Fetch.Timeout.Duration)
	cfg.Fetch.MaxRetries = envutil.Int("MM_MAX_RETRIES", cfg.Fetch.MaxRetries)
	cfg.Persist.Driver = envutil.String("MM_PERSIST_DRIVER", cfg.Persist.Driver)
	cfg.Persist.DSN = envutil.String("MM_PERSIST_DSN", cfg.Persist.DSN)
	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Channel = envutil.String("REDIS_CHANNEL", cfg.Redis.Channel)
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "development"
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.PageURL = strings.TrimSpace(c.PageURL)
	if c.BaseURL == "" && c.PageURL == "" {
		return errors.New("config must set base_url or page_url")
	}

	if c.Fetch.Timeout.Duration <= 0 {
		c.Fetch.Timeout = Duration{Duration: 10 * time.Second}
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("invalid fetch.max_retries=%d", c.Fetch.MaxRetries)
	}
	c.Fetch.MaxRetries = min(c.Fetch.MaxRetries, fetch.MaxRetriesLimit)
	if c.Fetch.BackoffBase.Duration <= 0 {
		c.Fetch.BackoffBase = Duration{Duration: time.Second}
	}

	c.Persist.Driver = strings.ToLower(strings.TrimSpace(c.Persist.Driver))
	switch c.Persist.Driver {
	case "":
		c.Persist.Driver = PersistMemory
	case PersistMemory:
	case PersistSQLite, PersistPostgres:
		if strings.TrimSpace(c.Persist.DSN) == "" {
			return fmt.Errorf("persist.driver=%s requires persist.dsn", c.Persist.Driver)
		}
	case PersistRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("persist.driver=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("invalid persist.driver=%q", c.Persist.Driver)
	}
	if c.Persist.ProbeTimeout.Duration <= 0 {
		c.Persist.ProbeTimeout = Duration{Duration: 5 * time.Second}
	}
	if c.Monitor.Interval.Duration <= 0 {
		c.Monitor.Interval = Duration{Duration: 30 * time.Second}
	}
	return nil
}

// ResolveBaseURL returns BaseURL, or the root derived from PageURL.
func (c *Config) ResolveBaseURL() (string, error) {
	if c.BaseURL != "" {
		return c.BaseURL, nil
	}
	return basepath.Resolve(c.PageURL)
}
