package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound = goerr.New("configuration file not found")
	ErrInvalidConfig  = goerr.New("invalid configuration")
	ErrMissingToken   = goerr.New("token environment variable is empty")
)

// Context keys for error values
const (
	ConfigPathKey     = "config_path"
	ConnectionNameKey = "connection_name"
	TokenEnvKey       = "token_env"
	EmailKey          = "email"
)
