package config

// Defaults mirror the behavior of a bare relay invocation: loopback bind,
// 115200 baud, a 90 second response ceiling with a 1.2 second idle window.
const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 8787
	DefaultBaud             = 115200
	DefaultReadTimeoutMS    = 150
	DefaultResponseTimeoutS = 90
	DefaultIdleTimeoutMS    = 1200
	DefaultMockLatencyMS    = 250
	DefaultSTTAPIURL        = "https://api.openai.com/v1/audio/transcriptions"
	DefaultSTTModel         = "whisper-1"
	DefaultSTTTimeoutS      = 45
)

// Default returns a configuration populated with built-in defaults.
func Default() Config {
	return Config{
		LogDir: "~/.local/share/zrelay",
		Server: Server{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Serial: Serial{
			Baud:             DefaultBaud,
			ReadTimeoutMS:    DefaultReadTimeoutMS,
			ResponseTimeoutS: DefaultResponseTimeoutS,
			IdleTimeoutMS:    DefaultIdleTimeoutMS,
		},
		Mock: Mock{
			LatencyMS: DefaultMockLatencyMS,
		},
		STT: STT{
			// APIURL and Model are filled during normalize so environment
			// overrides can still win over the built-in defaults.
			Provider: "openai",
			TimeoutS: DefaultSTTTimeoutS,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			// Format is left empty so the serve command can pick console
			// for terminals and json otherwise.
			Level: "info",
		},
	}
}
