package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeoutMS <= 0 {
		return fmt.Errorf("serial.read_timeout_ms must be positive, got %d", c.Serial.ReadTimeoutMS)
	}
	if c.Serial.ResponseTimeoutS <= 0 {
		return fmt.Errorf("serial.response_timeout_s must be positive, got %d", c.Serial.ResponseTimeoutS)
	}
	if c.Serial.IdleTimeoutMS <= 0 {
		return fmt.Errorf("serial.idle_timeout_ms must be positive, got %d", c.Serial.IdleTimeoutMS)
	}
	if c.Mock.LatencyMS < 0 {
		return fmt.Errorf("mock.latency_ms must not be negative, got %d", c.Mock.LatencyMS)
	}
	switch c.STT.Provider {
	case "", "openai", "deepgram":
	default:
		return fmt.Errorf("stt.provider %q is not supported (use openai or deepgram)", c.STT.Provider)
	}
	if c.STT.TimeoutS <= 0 {
		return fmt.Errorf("stt.timeout_s must be positive, got %d", c.STT.TimeoutS)
	}
	if format := c.Logging.Format; format != "" && format != "console" && format != "json" {
		return fmt.Errorf("logging.format %q is not supported (use console or json)", format)
	}
	if strings.TrimSpace(c.LogDir) == "" {
		return fmt.Errorf("log_dir must not be empty")
	}
	return nil
}
