package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"zrelay/internal/logging"
)

type stubTranscriber struct {
	gotPCM  []byte
	gotRate int
	text    string
	err     error
}

func (s *stubTranscriber) Transcribe(_ context.Context, pcm []byte, sampleRateHz int) (string, error) {
	s.gotPCM = append([]byte(nil), pcm...)
	s.gotRate = sampleRateHz
	return s.text, s.err
}

// newVoiceSerial wires a serial bridge to a fake port without starting the
// reader loop; voice frames are fed directly to handleVoiceLine, which is
// what the reader does with sideband lines.
func newVoiceSerial(transcriber *stubTranscriber) (*Serial, *fakePort) {
	port := &fakePort{}
	b := NewSerial(SerialConfig{
		Port:       "/dev/ttyTEST0",
		STTTimeout: time.Second,
	}, logging.NewNop(), nil)
	if transcriber != nil {
		b.transcriber = transcriber
	}
	b.port = port
	return b, port
}

func lastVoiceResponse(t *testing.T, port *fakePort) string {
	t.Helper()
	writes := port.writtenLines()
	if len(writes) == 0 {
		t.Fatal("no sideband response was written")
	}
	last := writes[len(writes)-1]
	if !strings.HasPrefix(last, voiceResponsePrefix) {
		t.Fatalf("last write %q is not a sideband response", last)
	}
	return strings.TrimPrefix(last, voiceResponsePrefix)
}

func TestVoiceHappyPath(t *testing.T) {
	transcriber := &stubTranscriber{text: "turn on the lights"}
	b, port := newVoiceSerial(transcriber)

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	encoded := base64.StdEncoding.EncodeToString(pcm)

	for _, frame := range []string{
		voiceRequestPrefix + "begin:16000",
		voiceRequestPrefix + "chunk:" + encoded,
		voiceRequestPrefix + "end",
	} {
		if !b.handleVoiceLine(frame) {
			t.Fatalf("frame %q was not consumed as sideband", frame)
		}
	}

	if string(transcriber.gotPCM) != string(pcm) {
		t.Fatalf("transcriber got pcm %v, want %v", transcriber.gotPCM, pcm)
	}
	if transcriber.gotRate != 16000 {
		t.Fatalf("transcriber got rate %d, want 16000", transcriber.gotRate)
	}
	if got := lastVoiceResponse(t, port); got != "ok:turn on the lights" {
		t.Fatalf("response = %q, want ok:turn on the lights", got)
	}
}

func TestVoiceBeginDefaultsSampleRate(t *testing.T) {
	transcriber := &stubTranscriber{text: "hi"}
	b, _ := newVoiceSerial(transcriber)

	b.handleVoiceLine(voiceRequestPrefix + "begin")
	b.handleVoiceLine(voiceRequestPrefix + "chunk:" + base64.StdEncoding.EncodeToString([]byte{1, 2}))
	b.handleVoiceLine(voiceRequestPrefix + "end")

	if transcriber.gotRate != 16000 {
		t.Fatalf("default rate = %d, want 16000", transcriber.gotRate)
	}
}

func TestVoiceBeginInvalidSampleRate(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	for _, payload := range []string{"abc", "0", "-8000"} {
		b.handleVoiceLine(voiceRequestPrefix + "begin:" + payload)
		if got := lastVoiceResponse(t, port); got != "err:invalid sample rate" {
			t.Fatalf("begin:%s response = %q, want err:invalid sample rate", payload, got)
		}
		if b.voiceCollecting {
			t.Fatalf("begin:%s left capture active", payload)
		}
	}
}

func TestVoiceChunkWithoutBegin(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	b.handleVoiceLine(voiceRequestPrefix + "chunk:aGk=")
	if got := lastVoiceResponse(t, port); got != "err:chunk without begin" {
		t.Fatalf("response = %q, want err:chunk without begin", got)
	}
}

func TestVoiceChunkInvalidBase64(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	b.handleVoiceLine(voiceRequestPrefix + "begin:16000")
	b.handleVoiceLine(voiceRequestPrefix + "chunk:!!!not-base64!!!")
	if got := lastVoiceResponse(t, port); got != "err:invalid base64 chunk" {
		t.Fatalf("response = %q, want err:invalid base64 chunk", got)
	}

	// The failed capture must be fully reset, so end now has no begin.
	b.handleVoiceLine(voiceRequestPrefix + "end")
	if got := lastVoiceResponse(t, port); got != "err:end without begin" {
		t.Fatalf("end after failed chunk = %q, want err:end without begin", got)
	}
}

func TestVoiceChunkEmptyPayloadIgnored(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	b.handleVoiceLine(voiceRequestPrefix + "begin:16000")
	b.handleVoiceLine(voiceRequestPrefix + "chunk:")
	b.handleVoiceLine(voiceRequestPrefix + "chunk:   ")
	if writes := port.writtenLines(); len(writes) != 0 {
		t.Fatalf("empty chunk produced responses: %v", writes)
	}
	if !b.voiceCollecting {
		t.Fatal("empty chunk aborted the capture")
	}
}

func TestVoiceCommandCaseInsensitive(t *testing.T) {
	transcriber := &stubTranscriber{text: "hi"}
	b, port := newVoiceSerial(transcriber)

	b.handleVoiceLine(voiceRequestPrefix + "BEGIN:16000")
	b.handleVoiceLine(voiceRequestPrefix + "Chunk:" + base64.StdEncoding.EncodeToString([]byte{1, 2}))
	b.handleVoiceLine(voiceRequestPrefix + "END")

	if got := lastVoiceResponse(t, port); got != "ok:hi" {
		t.Fatalf("response = %q, want ok:hi", got)
	}
}

func TestVoiceCaptureOverflow(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	b.handleVoiceLine(voiceRequestPrefix + "begin:16000")
	b.voicePCM = make([]byte, maxVoicePCMBytes)
	b.handleVoiceLine(voiceRequestPrefix + "chunk:" + base64.StdEncoding.EncodeToString([]byte{1}))

	if got := lastVoiceResponse(t, port); got != "err:audio payload too large" {
		t.Fatalf("response = %q, want err:audio payload too large", got)
	}
	if b.voiceCollecting || b.voicePCM != nil {
		t.Fatal("overflow did not reset the capture")
	}
}

func TestVoiceEndWithoutBegin(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	b.handleVoiceLine(voiceRequestPrefix + "end")
	if got := lastVoiceResponse(t, port); got != "err:end without begin" {
		t.Fatalf("response = %q, want err:end without begin", got)
	}
}

func TestVoiceEndEmptyCapture(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	b.handleVoiceLine(voiceRequestPrefix + "begin:16000")
	b.handleVoiceLine(voiceRequestPrefix + "end")
	if got := lastVoiceResponse(t, port); got != "err:empty audio payload" {
		t.Fatalf("response = %q, want err:empty audio payload", got)
	}
}

func TestVoiceEndTranscriptionFailure(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{err: errors.New("provider exploded")})

	b.handleVoiceLine(voiceRequestPrefix + "begin:16000")
	b.handleVoiceLine(voiceRequestPrefix + "chunk:" + base64.StdEncoding.EncodeToString([]byte{1, 2}))
	b.handleVoiceLine(voiceRequestPrefix + "end")

	got := lastVoiceResponse(t, port)
	if !strings.HasPrefix(got, "err:stt failed: ") {
		t.Fatalf("response = %q, want err:stt failed prefix", got)
	}
	if !strings.Contains(got, "provider exploded") {
		t.Fatalf("response %q missing failure reason", got)
	}
}

func TestVoiceEndEmptyTranscript(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{text: "   "})

	b.handleVoiceLine(voiceRequestPrefix + "begin:16000")
	b.handleVoiceLine(voiceRequestPrefix + "chunk:" + base64.StdEncoding.EncodeToString([]byte{1, 2}))
	b.handleVoiceLine(voiceRequestPrefix + "end")

	if got := lastVoiceResponse(t, port); got != "err:empty transcript" {
		t.Fatalf("response = %q, want err:empty transcript", got)
	}
}

func TestVoiceEndWithoutTranscriber(t *testing.T) {
	b, port := newVoiceSerial(nil)

	b.handleVoiceLine(voiceRequestPrefix + "begin:16000")
	b.handleVoiceLine(voiceRequestPrefix + "chunk:" + base64.StdEncoding.EncodeToString([]byte{1, 2}))
	b.handleVoiceLine(voiceRequestPrefix + "end")

	if got := lastVoiceResponse(t, port); got != "err:stt is not configured" {
		t.Fatalf("response = %q, want err:stt is not configured", got)
	}
}

func TestVoiceCancelIsSilentAndIdempotent(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	b.handleVoiceLine(voiceRequestPrefix + "begin:16000")
	b.handleVoiceLine(voiceRequestPrefix + "cancel")
	b.handleVoiceLine(voiceRequestPrefix + "cancel")

	if writes := port.writtenLines(); len(writes) != 0 {
		t.Fatalf("cancel produced responses: %v", writes)
	}
	if b.voiceCollecting {
		t.Fatal("cancel did not reset the capture")
	}
}

func TestVoiceUnknownCommand(t *testing.T) {
	b, port := newVoiceSerial(&stubTranscriber{})

	b.handleVoiceLine(voiceRequestPrefix + "bogus")
	if got := lastVoiceResponse(t, port); got != "err:unknown command: bogus" {
		t.Fatalf("response = %q, want err:unknown command: bogus", got)
	}

	b.handleVoiceLine(voiceRequestPrefix)
	if got := lastVoiceResponse(t, port); got != "err:unknown command: empty" {
		t.Fatalf("response = %q, want err:unknown command: empty", got)
	}
}

func TestVoiceNonSidebandLinePassesThrough(t *testing.T) {
	b, _ := newVoiceSerial(&stubTranscriber{})

	if b.handleVoiceLine("just a normal response line") {
		t.Fatal("ordinary line consumed as sideband")
	}
}
