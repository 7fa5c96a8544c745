package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all environment variables, e.g.
// REVIVAL_SERVER_PORT maps to server.port.
const envPrefix = "REVIVAL"

// Load reads configuration from environment variables and optionally a
// config.yaml in the working directory. Environment variables take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the environment can carry everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for settings that have a sensible value
// out of the box. Secrets and connection strings have no defaults on
// purpose.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("generation.base_url", "https://api.kie.ai")
	v.SetDefault("generation.model", "google/nano-banana-edit")
	v.SetDefault("generation.poll_interval_seconds", 3)
	v.SetDefault("generation.restyle_budget_seconds", 60)
	v.SetDefault("generation.compose_budget_seconds", 90)
	v.SetDefault("generation.submit_timeout_seconds", 30)

	v.SetDefault("storage.prefix", "artifacts")

	v.SetDefault("sweeper.interval_minutes", 2)
	v.SetDefault("sweeper.stale_ttl_minutes", 5)

	// Bind keys without defaults so AutomaticEnv picks them up during
	// Unmarshal.
	for _, key := range []string{
		"database.url",
		"generation.api_key",
		"storage.endpoint",
		"storage.region",
		"storage.access_key",
		"storage.secret_key",
		"storage.bucket",
		"storage.public_base_url",
		"storage.use_path_style",
	} {
		// BindEnv only errors on empty input, which cannot happen here.
		_ = v.BindEnv(key)
	}
}
