package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DeepgramConfig controls the Deepgram streaming transcription client.
type DeepgramConfig struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Language   string
	Timeout    time.Duration
}

// DeepgramClient streams linear16 audio over a websocket and collects the
// final transcript segments. Although the provider API is streaming, this
// client presents the same one-shot Transcribe capability as the others.
type DeepgramClient struct {
	cfg DeepgramConfig
}

// NewDeepgramClient constructs a client with defaults applied.
func NewDeepgramClient(cfg DeepgramConfig) *DeepgramClient {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if strings.TrimSpace(cfg.Model) == "" || cfg.Model == "whisper-1" {
		// The OpenAI default model leaks in when the provider is switched
		// without overriding stt.model; map it to Deepgram's default.
		cfg.Model = "nova-2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &DeepgramClient{cfg: cfg}
}

// Transcribe implements Transcriber.
func (c *DeepgramClient) Transcribe(ctx context.Context, pcm []byte, sampleRateHz int) (string, error) {
	if sampleRateHz <= 0 {
		return "", fmt.Errorf("%w: sample rate must be positive, got %d", ErrTranscription, sampleRateHz)
	}

	listenURL, err := c.buildListenURL(sampleRateHz)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, listenURL, headers)
	if err != nil {
		return "", fmt.Errorf("%w: connect: %v", ErrTranscription, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.cfg.Timeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	const chunkSize = 8192
	for offset := 0; offset < len(pcm); offset += chunkSize {
		end := min(offset+chunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[offset:end]); err != nil {
			return "", fmt.Errorf("%w: send audio: %v", ErrTranscription, err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("%w: close stream: %v", ErrTranscription, err)
	}

	var segments []string
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				break
			}
			if len(segments) > 0 {
				break
			}
			return "", fmt.Errorf("%w: read provider event: %v", ErrTranscription, err)
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}
		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			return "", fmt.Errorf("%w: %s", ErrTranscription, message)
		}
		if strings.EqualFold(response.Type, "Metadata") {
			// Metadata arrives after CloseStream is processed.
			break
		}
		if !response.IsFinal && !response.SpeechFinal {
			continue
		}
		if transcript := extractTranscript(response); transcript != "" {
			segments = append(segments, transcript)
		}
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

func (c *DeepgramClient) buildListenURL(sampleRateHz int) (string, error) {
	base := strings.TrimSpace(c.cfg.APIBaseURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram base URL: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", c.cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(sampleRateHz))
	query.Set("channels", "1")
	if c.cfg.Language != "" {
		query.Set("language", c.cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
}
