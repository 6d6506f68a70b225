package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.SessionDriver != "bolt" || cfg.MaxHistory != 200 || cfg.AutosaveDelay != 2*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
	if lvl, _ := cfg.Level(); lvl != slog.LevelInfo {
		t.Fatalf("level = %v", lvl)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MAPWRIGHT_SESSION_DRIVER", "redis")
	t.Setenv("MAPWRIGHT_REDIS_ADDR", "cache:6379")
	t.Setenv("MAPWRIGHT_LOG_LEVEL", "debug")
	t.Setenv("MAPWRIGHT_ALLOWED_ORIGINS", " a.example , ,b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SessionDSN() != "cache:6379" {
		t.Fatalf("dsn = %q", cfg.SessionDSN())
	}
	if lvl, _ := cfg.Level(); lvl != slog.LevelDebug {
		t.Fatalf("level = %v", lvl)
	}
	if got := cfg.OriginPatterns(); len(got) != 2 || got[0] != "a.example" || got[1] != "b.example" {
		t.Fatalf("origins = %q", got)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, env := range map[string][2]string{
		"history": {"MAPWRIGHT_MAX_HISTORY", "0"},
		"level":   {"MAPWRIGHT_LOG_LEVEL", "loud"},
		"delay":   {"MAPWRIGHT_AUTOSAVE_DELAY", "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s accepted", env[0], env[1])
			}
		})
	}
}
