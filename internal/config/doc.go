// Package config defines the application configuration structure and
// loading. Settings come from environment variables (REVIVAL_ prefix) with
// an optional config.yaml underneath, and are validated before use.
package config
