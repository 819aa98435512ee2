// Package stt provides the speech-to-text capability used by the voice
// sideband and the browser voice endpoint. Providers turn raw PCM16LE mono
// audio into a transcript; failures are reported to the caller and never
// retried here.
package stt

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"zrelay/internal/config"
)

// ErrTranscription tags provider failures and empty/invalid transcripts.
var ErrTranscription = errors.New("transcription error")

// TranscriptMaxLen is the hard cap on sanitized transcript length, in
// runes. The device renders transcripts on a small display and the serial
// frame must stay a single line.
const TranscriptMaxLen = 300

// Transcriber converts PCM16LE mono audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRateHz int) (string, error)
}

// NewTranscriber builds the configured provider. It returns (nil, nil) when
// no API key is configured, which disables voice STT.
func NewTranscriber(cfg config.STT, timeout time.Duration) (Transcriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:   cfg.APIKey,
			APIURL:   cfg.APIURL,
			Model:    cfg.Model,
			Language: cfg.Language,
			Timeout:  timeout,
		}), nil
	case "deepgram":
		return NewDeepgramClient(DeepgramConfig{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Language: cfg.Language,
			Timeout:  timeout,
		}), nil
	default:
		return nil, errors.New("unsupported stt provider: " + cfg.Provider)
	}
}

// SanitizeTranscript collapses CR/LF to spaces, normalizes to NFC, trims,
// and hard-truncates to TranscriptMaxLen runes.
func SanitizeTranscript(value string) string {
	text := strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) > TranscriptMaxLen {
		text = strings.TrimSpace(string(runes[:TranscriptMaxLen]))
	}
	return text
}
