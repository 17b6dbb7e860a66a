package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"foreman/internal/approval"
	"foreman/internal/maintenance"
	"foreman/internal/notify"
	"foreman/internal/scheduler"
	"foreman/internal/skills"
)

// Config represents the orchestrator configuration
type Config struct {
	Port        int                `json:"port"`
	Timezone    string             `json:"timezone,omitempty"`
	DataDir     string             `json:"data_dir,omitempty"`
	SecretsFile string             `json:"secrets_file,omitempty"`
	Database    DatabaseConfig     `json:"database"`
	Gateway     GatewayConfig      `json:"gateway,omitempty"`
	Skills      skills.Config      `json:"skills,omitempty"`
	Approval    approval.Config    `json:"approval"`
	Scheduler   scheduler.Config   `json:"scheduler"`
	Notify      NotifyConfig       `json:"notify,omitempty"`
	Maintenance maintenance.Config `json:"maintenance,omitempty"`
	Debug       DebugConfig        `json:"debug,omitempty"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// GatewayConfig contains HTTP API settings
type GatewayConfig struct {
	// AuthToken guards the API with a static bearer token. Empty disables auth.
	AuthToken string          `json:"auth_token,omitempty"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// RateLimitConfig throttles API clients per address
type RateLimitConfig struct {
	Enabled bool   `json:"enabled"`
	Window  string `json:"window"`
	Limit   int    `json:"limit"`
}

// NotifyConfig groups the dispatcher and its delivery channels
type NotifyConfig struct {
	Dispatcher notify.Config         `json:"dispatcher"`
	Telegram   notify.TelegramConfig `json:"telegram,omitempty"`
}

// DebugConfig contains debugging and logging settings
type DebugConfig struct {
	VerboseLogging bool `json:"verbose_logging,omitempty"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Port: 18790,
		Database: DatabaseConfig{
			Path: "foreman.db",
		},
		Skills: skills.Config{
			AutoActivate: true,
		},
		Gateway: GatewayConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				Window:  "1m",
				Limit:   120,
			},
		},
		Approval:    approval.DefaultConfig(),
		Scheduler:   scheduler.DefaultConfig(),
		Maintenance: maintenance.DefaultConfig(),
		Notify: NotifyConfig{
			Dispatcher: notify.DefaultConfig(),
			Telegram: notify.TelegramConfig{
				Enabled:  false,
				BotToken: "${TELEGRAM_BOT_TOKEN}",
				ChatID:   "${TELEGRAM_CHAT_ID}",
			},
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Check if file exists, create default if not
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		fmt.Printf("Created default configuration at %s\n", path)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand tilde in path fields before anything else so that
	// secrets_file can reference ~/... paths.
	cfg.expandTilde()

	// Load secrets file (KEY=VALUE) into the environment before
	// expanding ${ENV_VAR} placeholders in the config.
	if err := cfg.loadSecretsFile(); err != nil {
		return nil, fmt.Errorf("failed to load secrets file: %w", err)
	}

	// Expand environment variables
	cfg.expandEnvVars()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandEnvVars expands environment variables in configuration values
func (c *Config) expandEnvVars() {
	c.DataDir = os.ExpandEnv(c.DataDir)
	c.SecretsFile = os.ExpandEnv(c.SecretsFile)
	c.Notify.Telegram.BotToken = os.ExpandEnv(c.Notify.Telegram.BotToken)
	c.Notify.Telegram.ChatID = os.ExpandEnv(c.Notify.Telegram.ChatID)
	c.Gateway.AuthToken = os.ExpandEnv(c.Gateway.AuthToken)
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	// Approval durations must parse; level names are checked when the
	// gate is built but bad durations should fail here at load time.
	for level, raw := range c.Approval.AutoApprove {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid approval auto_approve[%s]: %w", level, err)
		}
	}
	if c.Approval.SweepInterval != "" {
		if _, err := time.ParseDuration(c.Approval.SweepInterval); err != nil {
			return fmt.Errorf("invalid approval sweep_interval: %w", err)
		}
	}

	for name, raw := range map[string]string{
		"tick_interval":      c.Scheduler.TickInterval,
		"conflict_increment": c.Scheduler.ConflictIncrement,
		"retry_delay":        c.Notify.Dispatcher.RetryDelay,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if c.Gateway.RateLimit.Enabled {
		if c.Gateway.RateLimit.Limit <= 0 {
			return fmt.Errorf("gateway rate_limit.limit must be positive")
		}
		if c.Gateway.RateLimit.Window != "" {
			if _, err := time.ParseDuration(c.Gateway.RateLimit.Window); err != nil {
				return fmt.Errorf("invalid gateway rate_limit.window: %w", err)
			}
		}
	}

	if c.Notify.Telegram.Enabled && c.Notify.Telegram.BotToken == "" {
		return fmt.Errorf("telegram notifications enabled but bot_token is empty")
	}

	// Validate timezone if set
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
	}

	return nil
}

// GetLocation returns the configured timezone as a *time.Location,
// falling back to time.Local.
func (c *Config) GetLocation() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// expandTilde replaces a leading "~/" with the user's home directory in
// path-valued config fields. Called before env-var expansion so that
// both "~/foo" and "${SOME_PATH}" work.
func (c *Config) expandTilde() {
	home, err := os.UserHomeDir()
	if err != nil {
		return // can't expand, leave as-is
	}
	expand := func(p string) string {
		if p == "~" {
			return home
		}
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}

	c.DataDir = expand(c.DataDir)
	c.SecretsFile = expand(c.SecretsFile)
	c.Database.Path = expand(c.Database.Path)
}

// loadSecretsFile reads a KEY=VALUE file into the process environment.
// Blank lines and lines starting with '#' are ignored.
// Existing environment variables are NOT overridden (shell/systemd wins).
// If SecretsFile is empty or the file doesn't exist, this is a no-op.
func (c *Config) loadSecretsFile() error {
	if c.SecretsFile == "" {
		return nil
	}

	f, err := os.Open(c.SecretsFile)
	if os.IsNotExist(err) {
		return nil // missing file is fine
	}
	if err != nil {
		return fmt.Errorf("cannot open secrets file %s: %w", c.SecretsFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Strip optional surrounding quotes from value
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		// Don't override existing env vars
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
