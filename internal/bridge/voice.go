package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"zrelay/internal/logging"
	"zrelay/internal/stt"
)

// Voice sideband wire protocol. The firmware interleaves these frames with
// normal output on the same serial stream; each frame is one line.
const (
	voiceRequestPrefix  = "__zclaw_voice_stt_req__:"
	voiceResponsePrefix = "__zclaw_voice_stt_resp__:"

	defaultVoiceSampleRate = 16000

	// maxVoicePCMBytes caps a single capture at 512 KiB of decoded PCM,
	// about 16 seconds of 16 kHz mono 16-bit audio.
	maxVoicePCMBytes = 512 * 1024
)

// handleVoiceLine intercepts voice sideband request frames. It returns true
// when the line was a sideband frame (valid or not) so the caller does not
// treat it as response text. Runs on the reader goroutine, which is the
// sole owner of the capture state.
func (b *Serial) handleVoiceLine(line string) bool {
	if !strings.HasPrefix(line, voiceRequestPrefix) {
		return false
	}

	rest := line[len(voiceRequestPrefix):]
	command, payload, _ := strings.Cut(rest, ":")
	command = strings.ToLower(strings.TrimSpace(command))

	switch command {
	case "begin":
		b.voiceBegin(payload)
	case "chunk":
		b.voiceChunk(payload)
	case "end":
		b.voiceEnd()
	case "cancel":
		b.voiceReset()
	default:
		if command == "" {
			command = "empty"
		}
		b.sendVoiceError("unknown command: " + command)
	}
	return true
}

func (b *Serial) voiceBegin(payload string) {
	b.voiceReset()

	rate := defaultVoiceSampleRate
	if trimmed := strings.TrimSpace(payload); trimmed != "" {
		parsed, err := strconv.Atoi(trimmed)
		if err != nil || parsed <= 0 {
			b.sendVoiceError("invalid sample rate")
			return
		}
		rate = parsed
	}

	b.voiceCollecting = true
	b.voiceSampleRate = rate
	b.logger.Info("voice capture started", logging.Int("sample_rate", rate))
}

func (b *Serial) voiceChunk(payload string) {
	if !b.voiceCollecting {
		b.sendVoiceError("chunk without begin")
		return
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		b.voiceReset()
		b.sendVoiceError("invalid base64 chunk")
		return
	}
	if len(b.voicePCM)+len(decoded) > maxVoicePCMBytes {
		b.voiceReset()
		b.sendVoiceError("audio payload too large")
		return
	}
	b.voicePCM = append(b.voicePCM, decoded...)
}

func (b *Serial) voiceEnd() {
	if !b.voiceCollecting {
		b.sendVoiceError("end without begin")
		return
	}

	pcm := b.voicePCM
	rate := b.voiceSampleRate
	b.voiceReset()

	if len(pcm) == 0 {
		b.sendVoiceError("empty audio payload")
		return
	}
	if b.transcriber == nil {
		b.sendVoiceError("stt is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.STTTimeout)
	defer cancel()

	transcript, err := b.transcriber.Transcribe(ctx, pcm, rate)
	if err != nil {
		b.logger.Warn("voice transcription failed", logging.Error(err))
		b.sendVoiceError("stt failed: " + trimErrorText(err))
		return
	}

	transcript = stt.SanitizeTranscript(transcript)
	if transcript == "" {
		b.sendVoiceError("empty transcript")
		return
	}

	b.logger.Info("voice transcript delivered",
		logging.Int("pcm_bytes", len(pcm)),
		logging.Int("transcript_len", len(transcript)),
	)
	b.sendVoiceResponse("ok", transcript)
}

func (b *Serial) voiceReset() {
	b.voiceCollecting = false
	b.voiceSampleRate = defaultVoiceSampleRate
	b.voicePCM = nil
}

func (b *Serial) sendVoiceError(reason string) {
	b.logger.Warn("voice sideband error", logging.String("reason", reason))
	b.sendVoiceResponse("err", reason)
}

// sendVoiceResponse frames a sideband reply. The payload must stay on one
// line; the firmware parses frames with a line-oriented reader.
func (b *Serial) sendVoiceResponse(status, payload string) {
	payload = strings.NewReplacer("\r", " ", "\n", " ").Replace(payload)
	frame := fmt.Sprintf("%s%s:%s", voiceResponsePrefix, status, payload)
	if err := b.writeLine(frame); err != nil {
		b.logger.Warn("write voice response", logging.Error(err))
	}
}

func trimErrorText(err error) string {
	text := strings.TrimSpace(err.Error())
	const maxLen = 200
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}
