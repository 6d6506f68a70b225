package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from MAPWRIGHT_* environment variables.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// SessionDriver is memory, bolt, sqlite or redis.
	SessionDriver string        `envconfig:"SESSION_DRIVER" default:"bolt"`
	SessionPath   string        `envconfig:"SESSION_PATH" default:"./data/session.db"`
	SessionKey    string        `envconfig:"SESSION_KEY" default:"session/current"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	AutosaveDelay time.Duration `envconfig:"AUTOSAVE_DELAY" default:"2s"`

	// DatabaseURL enables the postgres document store; empty keeps
	// documents in memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	MaxHistory int `envconfig:"MAX_HISTORY" default:"200"`

	JWTSecret          string `envconfig:"JWT_SECRET" default:"dev-secret-change-in-production"`
	ViewerPasscodeHash string `envconfig:"VIEWER_PASSCODE_HASH"`
	EditorPasscodeHash string `envconfig:"EDITOR_PASSCODE_HASH"`

	Advertise      bool   `envconfig:"ADVERTISE" default:"false"`
	InstanceName   string `envconfig:"INSTANCE_NAME" default:"mapwright"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"localhost:5173,localhost:3000"`
}

const Prefix = "MAPWRIGHT"

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxHistory <= 0 {
		return nil, fmt.Errorf("config: MAX_HISTORY must be positive, got %d", cfg.MaxHistory)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return l, nil
}

// SessionDSN is the path or address the session driver connects to.
func (c *Config) SessionDSN() string {
	if c.SessionDriver == "redis" {
		return c.RedisAddr
	}
	return c.SessionPath
}

func (c *Config) OriginPatterns() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
