package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.FetchTimeoutSeconds != 15 {
		t.Fatalf("fetch timeout = %d, want 15", cfg.Sync.FetchTimeoutSeconds)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "listen: 0.0.0.0:9000\ndatabase:\n  driver: bogus\nqueue:\n  backend: redis\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("driver = %q, want sqlite3 fallback", cfg.Database.Driver)
	}
	if cfg.Queue.Backend != "redis" || cfg.Queue.RedisKey == "" {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.Messages.DaysBeforeArrival != 7 {
		t.Errorf("days before arrival = %d", cfg.Messages.DaysBeforeArrival)
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	t.Setenv("DELFIN_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DELFIN_TELEGRAM_CHAT_ID", "42")
	t.Setenv("DELFIN_BASIC_AUTH_PASSWORD", "s3cret")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.BotToken != "123:abc" || cfg.Telegram.ChatID != 42 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.BasicAuth == nil || cfg.BasicAuth.Password != "s3cret" {
		t.Errorf("basic auth = %+v", cfg.BasicAuth)
	}
}

func TestApplyEnvRejectsBadChatID(t *testing.T) {
	t.Setenv("DELFIN_TELEGRAM_CHAT_ID", "not-a-number")
	if err := DefaultConfig().ApplyEnv(""); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}
