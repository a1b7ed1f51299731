// Package config loads service configuration from defaults, an optional
// YAML file and FSX_-prefixed environment variables, in increasing order
// of precedence. FSX_DB_DSN overrides db.dsn, and so on.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fanshares/exchange-core/internal/vesting"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Vesting VestingConfig `mapstructure:"vesting"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Contest ContestConfig `mapstructure:"contest"`
	WS      WSConfig      `mapstructure:"ws"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// DBConfig selects PostgreSQL when DSN is set; otherwise the in-memory
// store is used.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig enables the read-through cache when URL is set.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type CatalogConfig struct {
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	NumCounters  int64         `mapstructure:"num_counters"`
	MaxCost      int64         `mapstructure:"max_cost"`
	BufferItems  int64         `mapstructure:"buffer_items"`
	TTL          time.Duration `mapstructure:"ttl"`
}

type VestingConfig struct {
	DefaultTier string         `mapstructure:"default_tier"`
	Tiers       []vesting.Tier `mapstructure:"tiers"`
}

// LimitsConfig caps share exposure. Zero disables a cap.
type LimitsConfig struct {
	MaxPerPlayer int64 `mapstructure:"max_per_player"`
	MaxPerTeam   int64 `mapstructure:"max_per_team"`
}

type ContestConfig struct {
	CronEnabled      bool          `mapstructure:"cron_enabled"`
	ActivateSpec     string        `mapstructure:"activate_spec"`
	SweepSpec        string        `mapstructure:"sweep_spec"`
	FeedMaxAttempts  int           `mapstructure:"feed_max_attempts"`
	FeedBaseDelay    time.Duration `mapstructure:"feed_base_delay"`
	FeedMaxDelay     time.Duration `mapstructure:"feed_max_delay"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
}

type WSConfig struct {
	ClientBuffer int `mapstructure:"client_buffer"`
}

// Load reads configuration. An empty path reads defaults and the
// environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FSX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.auto_migrate", false)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", "30s")

	v.SetDefault("catalog.cache_enabled", true)
	v.SetDefault("catalog.num_counters", 100_000)
	v.SetDefault("catalog.max_cost", 10_000)
	v.SetDefault("catalog.buffer_items", 64)
	v.SetDefault("catalog.ttl", "1m")

	v.SetDefault("vesting.default_tier", "free")
	v.SetDefault("vesting.tiers", []map[string]any{
		{"name": "free", "shares_per_hour": 10, "cap_limit": 100},
		{"name": "premium", "shares_per_hour": 30, "cap_limit": 500},
	})

	v.SetDefault("limits.max_per_player", 0)
	v.SetDefault("limits.max_per_team", 0)

	v.SetDefault("contest.cron_enabled", true)
	v.SetDefault("contest.activate_spec", "0 * * * * *")
	v.SetDefault("contest.sweep_spec", "30 */5 * * * *")
	v.SetDefault("contest.feed_max_attempts", 4)
	v.SetDefault("contest.feed_base_delay", "200ms")
	v.SetDefault("contest.feed_max_delay", "5s")
	v.SetDefault("contest.fetch_concurrency", 8)

	v.SetDefault("ws.client_buffer", 256)
}

// Validate rejects configurations the services cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if len(c.Vesting.Tiers) == 0 {
		errs = append(errs, errors.New("vesting.tiers must not be empty"))
	}
	found := false
	for _, t := range c.Vesting.Tiers {
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("vesting.tiers: %w", err))
		}
		if t.Name == c.Vesting.DefaultTier {
			found = true
		}
	}
	if !found {
		errs = append(errs, fmt.Errorf("vesting.default_tier %q is not a configured tier", c.Vesting.DefaultTier))
	}
	if c.Limits.MaxPerPlayer < 0 || c.Limits.MaxPerTeam < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	if c.Contest.FetchConcurrency < 1 {
		errs = append(errs, errors.New("contest.fetch_concurrency must be at least 1"))
	}
	if c.WS.ClientBuffer < 1 {
		errs = append(errs, errors.New("ws.client_buffer must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
