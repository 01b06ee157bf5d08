package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != DefaultServerAddress {
		t.Fatalf("server address default: got %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.BasicConfig.Database != DefaultDatabase {
		t.Fatalf("database default: got %q", cfg.BasicConfig.Database)
	}
	if cfg.BasicConfig.ThrottleRate != DefaultThrottleRate {
		t.Fatalf("throttle default: got %q", cfg.BasicConfig.ThrottleRate)
	}
	want := filepath.Join(dir, DefaultSQLiteDSN)
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("sqlite dsn: want %q got %q", want, got)
	}
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"basic_config": {"server_address": ":9000", "database": "SQLite", "throttle_rate": "10/minute"},
		"databases": {"sqlite3": {"dsn": ":memory:"}},
		"providers": {"openai": {"base_url": "https://example.test/v1", "model": "gpt-4o-mini"}}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvPrefix+"SERVER_ADDRESS", ":9100")
	t.Setenv(EnvPrefix+"ADMIN_TOKEN", "secret")
	t.Setenv(EnvPrefix+"REDIS_HOST", "cache.local")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9100" {
		t.Fatalf("env override ignored: %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.BasicConfig.Database != "sqlite3" {
		t.Fatalf("database alias not normalized: %q", cfg.BasicConfig.Database)
	}
	if cfg.BasicConfig.ThrottleRate != "10/minute" {
		t.Fatalf("throttle from file lost: %q", cfg.BasicConfig.ThrottleRate)
	}
	if cfg.BasicConfig.AdminToken != "secret" {
		t.Fatalf("admin token not loaded from env")
	}
	if cfg.Redis.Host != "cache.local" {
		t.Fatalf("redis host not loaded from env: %q", cfg.Redis.Host)
	}
	if got := cfg.Databases["sqlite3"].DSN; got != ":memory:" {
		t.Fatalf("memory dsn rewritten: %q", got)
	}
	openai := cfg.Providers["openai"]
	if openai.APIKey != "sk-test" || openai.BaseURL != "https://example.test/v1" || openai.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected openai provider config: %+v", openai)
	}
	if cfg.Search.GoogleAPIKey != "g-key" {
		t.Fatalf("search key not loaded from env")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
