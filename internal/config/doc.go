// Package config loads, normalizes, and validates the zrelay TOML
// configuration. The config file wins; environment variables fill in
// values the file leaves unset (API keys, CORS origin, STT settings),
// and built-in defaults cover the rest.
package config
