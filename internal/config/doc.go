// Package config loads and validates the TOML configuration for readcast.
// Values resolve in order: repository defaults, then the config file
// (~/.config/readcast/config.toml or ./readcast.toml). Paths are expanded
// and normalized before validation.
package config
