// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required gateway credentials, use ValidateGatewayReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Discord
	DiscordToken string
	GuildID      string
	CategoryName string

	// Creation limits
	MaxChannelsPerUser int
	CreateCooldown     time.Duration

	// Lifecycle timing
	MaxLifetime     time.Duration
	InactivityGrace time.Duration
	CheckInterval   time.Duration
	DisplayRefresh  time.Duration
	WarningWindow   time.Duration

	// Platform call retry
	DeleteMaxAttempts int

	// Feature toggle at boot; admins can flip it at runtime.
	Enabled bool
}

// Load reads environment variables and applies defaults. It doesn't fail if Discord creds
// are missing; use ValidateGatewayReady() when you require the live gateway (tests don't).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.GuildID = os.Getenv("DISCORD_GUILD_ID")
	cfg.CategoryName = os.Getenv("TEMP_CATEGORY_NAME")
	if cfg.CategoryName == "" {
		cfg.CategoryName = "Temp Channels"
	}

	cfg.MaxChannelsPerUser = envInt("TEMP_MAX_PER_USER", 2)
	if cfg.MaxChannelsPerUser < 1 {
		return nil, fmt.Errorf("invalid TEMP_MAX_PER_USER: must be >= 1")
	}

	var err error
	if cfg.CreateCooldown, err = envDuration("TEMP_CREATE_COOLDOWN", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxLifetime, err = envDuration("TEMP_MAX_LIFETIME", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.InactivityGrace, err = envDuration("TEMP_INACTIVITY_GRACE", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CheckInterval, err = envDuration("TEMP_CHECK_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DisplayRefresh, err = envDuration("TEMP_DISPLAY_REFRESH", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WarningWindow, err = envDuration("TEMP_WARNING_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}

	cfg.DeleteMaxAttempts = envInt("TEMP_DELETE_MAX_ATTEMPTS", 5)
	if cfg.DeleteMaxAttempts < 1 {
		cfg.DeleteMaxAttempts = 1
	}

	cfg.Enabled = os.Getenv("TEMP_ENABLED") != "0"

	return cfg, nil
}

// ValidateGatewayReady checks required fields for connecting the Discord gateway.
func (c *Config) ValidateGatewayReady() error {
	if c.DiscordToken == "" || c.GuildID == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN, DISCORD_GUILD_ID")
	}
	return nil
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s (want positive Go duration): %q", key, s)
	}
	return d, nil
}
