package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Cache    CacheConfig    `mapstructure:"cache"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Events   EventsConfig   `mapstructure:"events"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
}

type ScoringConfig struct {
	DefaultVersion       string `mapstructure:"default_version"`
	ProfileFile          string `mapstructure:"profile_file"`
	WatchProfile         bool   `mapstructure:"watch_profile"`
	SignificantThreshold string `mapstructure:"significant_threshold"`
	BatchConcurrency     int    `mapstructure:"batch_concurrency"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("scoring_version", cfg.Scoring.DefaultVersion),
		slog.String("cache_backend", cfg.Cache.Backend),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if strings.TrimSpace(c.Scoring.DefaultVersion) == "" {
		return errors.New("scoring.default_version is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
	case "", "none", "memory", "sqlite":
	default:
		return errors.New("cache.backend must be one of none|memory|sqlite")
	}
	if c.Scoring.BatchConcurrency < 0 {
		return errors.New("scoring.batch_concurrency must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "reliability")
	v.SetDefault("app.env", "local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".data/reliability.sqlite")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.busy_timeout_ms", 5000)

	v.SetDefault("scoring.default_version", "v1")
	v.SetDefault("scoring.profile_file", "")
	v.SetDefault("scoring.watch_profile", false)
	v.SetDefault("scoring.significant_threshold", "0.10")
	v.SetDefault("scoring.batch_concurrency", 4)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("http.addr", ":8089")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "reliability")
}
