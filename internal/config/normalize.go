package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment variables honored for secrets and STT settings. These predate
// the config file and stay supported so provisioned hosts keep working.
const (
	EnvAPIKey      = "ZCLAW_WEB_API_KEY"
	EnvCORSOrigin  = "ZCLAW_WEB_CORS_ORIGIN"
	EnvSTTAPIKey   = "ZCLAW_STT_API_KEY"
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvSTTAPIURL   = "ZCLAW_STT_API_URL"
	EnvSTTModel    = "ZCLAW_STT_MODEL"
	EnvSTTLanguage = "ZCLAW_STT_LANGUAGE"
	EnvSTTTimeoutS = "ZCLAW_STT_TIMEOUT_S"
)

func (c *Config) normalize() error {
	expanded, err := expandPath(strings.TrimSpace(c.LogDir))
	if err != nil {
		return err
	}
	c.LogDir = expanded

	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Server.APIKey = firstNonEmpty(c.Server.APIKey, os.Getenv(EnvAPIKey))
	c.Server.CORSOrigin = firstNonEmpty(c.Server.CORSOrigin, os.Getenv(EnvCORSOrigin))

	c.Serial.Port = strings.TrimSpace(c.Serial.Port)

	c.STT.Provider = strings.ToLower(strings.TrimSpace(c.STT.Provider))
	c.STT.APIKey = firstNonEmpty(c.STT.APIKey, os.Getenv(EnvSTTAPIKey), os.Getenv(EnvOpenAIKey))
	c.STT.APIURL = firstNonEmpty(c.STT.APIURL, os.Getenv(EnvSTTAPIURL), DefaultSTTAPIURL)
	c.STT.Model = firstNonEmpty(c.STT.Model, os.Getenv(EnvSTTModel), DefaultSTTModel)
	c.STT.Language = firstNonEmpty(c.STT.Language, os.Getenv(EnvSTTLanguage))
	if raw := strings.TrimSpace(os.Getenv(EnvSTTTimeoutS)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			c.STT.TimeoutS = parsed
		}
	}

	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.LogDir, "history.db")
	}
	if strings.TrimSpace(c.History.Path) != "" {
		expanded, err := expandPath(c.History.Path)
		if err != nil {
			return err
		}
		c.History.Path = expanded
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
