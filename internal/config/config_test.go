package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}

	if cfg.Port != 18790 {
		t.Errorf("unexpected default port %d", cfg.Port)
	}
	if cfg.Approval.AutoApprove["basic"] != "24h" {
		t.Errorf("expected basic auto-approval window of 24h, got %q", cfg.Approval.AutoApprove["basic"])
	}
	if cfg.Approval.AutoApprove["critical"] != "" {
		t.Error("critical level must not have an auto-approval window")
	}
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != Default().Port {
		t.Errorf("expected default port, got %d", cfg.Port)
	}

	// The default file should now exist on disk.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Port = 9999
	cfg.Scheduler.ConflictIncrement = "30m"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Port != 9999 {
		t.Errorf("expected port 9999, got %d", loaded.Port)
	}
	if loaded.Scheduler.ConflictIncrement != "30m" {
		t.Errorf("expected conflict increment 30m, got %q", loaded.Scheduler.ConflictIncrement)
	}
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_FOREMAN_TOKEN", "tok-123")

	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Notify.Telegram.BotToken = "${TEST_FOREMAN_TOKEN}"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Notify.Telegram.BotToken != "tok-123" {
		t.Errorf("expected expanded token, got %q", loaded.Notify.Telegram.BotToken)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"bad approval duration", func(c *Config) { c.Approval.AutoApprove["basic"] = "one day" }},
		{"bad sweep interval", func(c *Config) { c.Approval.SweepInterval = "often" }},
		{"bad tick interval", func(c *Config) { c.Scheduler.TickInterval = "fast" }},
		{"bad retry delay", func(c *Config) { c.Notify.Dispatcher.RetryDelay = "later" }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"bad rate limit window", func(c *Config) { c.Gateway.RateLimit.Window = "soon" }},
		{"zero rate limit", func(c *Config) { c.Gateway.RateLimit.Limit = 0 }},
		{"telegram enabled without token", func(c *Config) {
			c.Notify.Telegram.Enabled = true
			c.Notify.Telegram.BotToken = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSecretsFileLoading(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.env")
	secrets := "# comment\nTEST_FOREMAN_SECRET=\"quoted-value\"\n\nIGNORED_LINE\n"
	if err := os.WriteFile(secretsPath, []byte(secrets), 0600); err != nil {
		t.Fatalf("failed to write secrets file: %v", err)
	}
	os.Unsetenv("TEST_FOREMAN_SECRET")
	t.Cleanup(func() { os.Unsetenv("TEST_FOREMAN_SECRET") })

	cfg := Default()
	cfg.SecretsFile = secretsPath
	if err := cfg.loadSecretsFile(); err != nil {
		t.Fatalf("loadSecretsFile failed: %v", err)
	}

	if got := os.Getenv("TEST_FOREMAN_SECRET"); got != "quoted-value" {
		t.Errorf("expected secret to be loaded without quotes, got %q", got)
	}
}
