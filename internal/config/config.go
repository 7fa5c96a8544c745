package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage" validate:"required"`
	Sweeper    SweeperConfig    `mapstructure:"sweeper" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// GenerationConfig contains settings for the external generation job
// service. The per-step budgets are hard wall-clock ceilings enforced by
// the caller; their sum must stay under the hosting invocation's own
// execution-time limit.
type GenerationConfig struct {
	APIKey                string `mapstructure:"api_key" validate:"required"`
	BaseURL               string `mapstructure:"base_url" validate:"required,url"`
	Model                 string `mapstructure:"model" validate:"required"`
	PollIntervalSeconds   int    `mapstructure:"poll_interval_seconds" validate:"required,gt=0"`
	RestyleBudgetSeconds  int    `mapstructure:"restyle_budget_seconds" validate:"required,gt=0"`
	ComposeBudgetSeconds  int    `mapstructure:"compose_budget_seconds" validate:"required,gt=0"`
	SubmitTimeoutSeconds  int    `mapstructure:"submit_timeout_seconds" validate:"required,gt=0"`
}

// StorageConfig contains settings for the S3-compatible artifact store.
type StorageConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region" validate:"required"`
	AccessKey     string `mapstructure:"access_key" validate:"required"`
	SecretKey     string `mapstructure:"secret_key" validate:"required"`
	Bucket        string `mapstructure:"bucket" validate:"required"`
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
	UsePathStyle  bool   `mapstructure:"use_path_style"`
	Prefix        string `mapstructure:"prefix"`
}

// SweeperConfig contains settings for the stale-task recovery sweeper.
// StaleTTLMinutes must sit comfortably above the sum of the generation
// step budgets so the sweeper never races a healthy in-flight pipeline.
type SweeperConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes" validate:"required,gt=0"`
	StaleTTLMinutes int `mapstructure:"stale_ttl_minutes" validate:"required,gt=0"`
}
