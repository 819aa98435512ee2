package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP front door settings.
type Server struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	APIKey     string `toml:"api_key"`
	CORSOrigin string `toml:"cors_origin"`
}

// Serial contains the device transport settings.
type Serial struct {
	Port             string `toml:"port"`
	Baud             int    `toml:"baud"`
	ReadTimeoutMS    int    `toml:"read_timeout_ms"`
	ResponseTimeoutS int    `toml:"response_timeout_s"`
	IdleTimeoutMS    int    `toml:"idle_timeout_ms"`
	LogTraffic       bool   `toml:"log_traffic"`
}

// Mock contains the built-in simulated agent settings.
type Mock struct {
	Enabled   bool `toml:"enabled"`
	LatencyMS int  `toml:"latency_ms"`
}

// STT contains speech-to-text provider settings shared by the voice
// sideband and the browser voice endpoint.
type STT struct {
	Provider string `toml:"provider"`
	APIKey   string `toml:"api_key"`
	APIURL   string `toml:"api_url"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
	TimeoutS int    `toml:"timeout_s"`
}

// History contains the chat exchange log settings.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for zrelay.
//
// Sections by subsystem:
//   - Server: bind address, API key, CORS origin
//   - Serial: device path, baud rate, response framing timeouts
//   - Mock: simulated agent for development without hardware
//   - STT: transcription provider credentials and model
//   - History: persistent chat exchange log
//   - Logging: log format and level
type Config struct {
	LogDir  string  `toml:"log_dir"`
	Server  Server  `toml:"server"`
	Serial  Serial  `toml:"serial"`
	Mock    Mock    `toml:"mock"`
	STT     STT     `toml:"stt"`
	History History `toml:"history"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/zrelay/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("zrelay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for relay operation.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.LogDir, err)
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// BindAddress returns the host:port pair the HTTP server listens on.
func (c *Config) BindAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SerialReadTimeout is the device-level readline timeout. It bounds the
// reader loop's blocking reads so shutdown is observed promptly; it is not
// a response deadline.
func (c *Config) SerialReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMS) * time.Millisecond
}

// ResponseTimeout is the absolute ceiling on waiting for a device reply.
func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.Serial.ResponseTimeoutS) * time.Second
}

// IdleTimeout is the quiet period after which a partial reply is considered
// complete.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Serial.IdleTimeoutMS) * time.Millisecond
}

// MockLatency is the simulated agent's response delay.
func (c *Config) MockLatency() time.Duration {
	return time.Duration(c.Mock.LatencyMS) * time.Millisecond
}

// STTTimeout is the per-request transcription deadline.
func (c *Config) STTTimeout() time.Duration {
	return time.Duration(c.STT.TimeoutS) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
