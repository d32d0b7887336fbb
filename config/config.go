// Package config loads application configuration from a YAML file with
// struct-tag defaults, environment overrides, and validation. A .env file in
// the working directory is honored for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"tickcore/internal/indicator"
	"tickcore/internal/series"
)

// Config holds all application configuration.
type Config struct {
	Service  string `yaml:"service" default:"tickcore" validate:"required"`
	LogLevel string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`

	Feed struct {
		URL      string `yaml:"url" validate:"omitempty,uri"`
		RingSize int    `yaml:"ring_size" default:"4096" validate:"gte=2"`
	} `yaml:"feed"`

	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`

	SQLite struct {
		Path string `yaml:"path" default:"data/tickcore.db" validate:"required"`
	} `yaml:"sqlite"`

	Metrics struct {
		Addr string `yaml:"addr" default:":9090" validate:"required"`
	} `yaml:"metrics"`

	Checkpoint struct {
		Interval time.Duration `yaml:"interval" default:"60s" validate:"gt=0"`
		Keep     int           `yaml:"keep" default:"5" validate:"gte=1"`
	} `yaml:"checkpoint"`

	Indicators []IndicatorSpec `yaml:"indicators" validate:"min=1,dive"`
}

// IndicatorSpec is the YAML shape of one indicator configuration.
type IndicatorSpec struct {
	Kind    string  `yaml:"kind" validate:"required"`
	Period  int     `yaml:"period" validate:"gte=0"`
	Alpha   float64 `yaml:"alpha"`
	Source  string  `yaml:"source"`
	Missing string  `yaml:"missing"`
	Seed    string  `yaml:"seed"`
	BandK   float64 `yaml:"band_k"`
	Fast    int     `yaml:"fast"`
	Slow    int     `yaml:"slow"`
	Signal  int     `yaml:"signal"`
}

// Build converts the YAML spec into a registry kind plus indicator config.
func (s IndicatorSpec) Build() (string, indicator.Config, error) {
	src, err := series.ParseSource(s.Source)
	if err != nil {
		return "", indicator.Config{}, errors.Wrapf(err, "indicator %s", s.Kind)
	}
	missing, err := indicator.ParseMissingPolicy(s.Missing)
	if err != nil {
		return "", indicator.Config{}, errors.Wrapf(err, "indicator %s", s.Kind)
	}
	seed, err := indicator.ParseSeedMode(s.Seed)
	if err != nil {
		return "", indicator.Config{}, errors.Wrapf(err, "indicator %s", s.Kind)
	}
	return s.Kind, indicator.Config{
		Period:  s.Period,
		Alpha:   s.Alpha,
		Source:  src,
		Missing: missing,
		Seed:    seed,
		BandK:   s.BandK,
		Fast:    s.Fast,
		Slow:    s.Slow,
		Signal:  s.Signal,
	}, nil
}

// Load reads configuration from path (optional), applies defaults, env
// overrides, and validates the result. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "apply defaults")
	}
	cfg.applyEnv()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment. Env wins over file so
// deployments can reconfigure without editing YAML.
func (c *Config) applyEnv() {
	setStr(&c.LogLevel, "LOG_LEVEL")
	setStr(&c.Feed.URL, "FEED_URL")
	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")
	setStr(&c.SQLite.Path, "SQLITE_PATH")
	setStr(&c.Metrics.Addr, "METRICS_ADDR")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
