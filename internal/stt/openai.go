package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// OpenAIConfig controls the OpenAI-compatible transcription client.
type OpenAIConfig struct {
	APIKey   string
	APIURL   string
	Model    string
	Language string
	Timeout  time.Duration
}

// OpenAIClient uploads WAV audio to an OpenAI-compatible transcription
// endpoint and returns the recognized text.
type OpenAIClient struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIClient constructs a client with defaults applied.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = "https://api.openai.com/v1/audio/transcriptions"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Transcribe implements Transcriber.
func (c *OpenAIClient) Transcribe(ctx context.Context, pcm []byte, sampleRateHz int) (string, error) {
	wav, err := EncodePCM16LE(pcm, sampleRateHz)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	contentType, body, err := c.buildForm(wav)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrTranscription, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: network error: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrTranscription, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(raw))
		if detail != "" {
			return "", fmt.Errorf("%w: http %d: %s", ErrTranscription, resp.StatusCode, detail)
		}
		return "", fmt.Errorf("%w: http %d", ErrTranscription, resp.StatusCode)
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: provider returned invalid JSON", ErrTranscription)
	}
	if payload.Text == nil {
		return "", fmt.Errorf("%w: provider response missing text", ErrTranscription)
	}
	return strings.TrimSpace(*payload.Text), nil
}

func (c *OpenAIClient) buildForm(wav []byte) (string, []byte, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("model", c.cfg.Model); err != nil {
		return "", nil, err
	}
	if c.cfg.Language != "" {
		if err := form.WriteField("language", c.cfg.Language); err != nil {
			return "", nil, err
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="speech.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := form.CreatePart(header)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(wav); err != nil {
		return "", nil, err
	}
	if err := form.Close(); err != nil {
		return "", nil, err
	}
	return form.FormDataContentType(), buf.Bytes(), nil
}
