package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"zrelay/internal/logging"
	"zrelay/internal/stt"
)

// Firmware log heuristics. The device interleaves leveled ESP-IDF log lines
// and ROM boot banners with genuine response text on the same stream.
var (
	espLogPrefixes  = []string{"I (", "W (", "E (", "D (", "V ("}
	bootLogPrefixes = []string{"ets ", "rst:", "boot:", "SPIWP:", "mode:", "load:", "entry "}
)

const (
	defaultQueueSize = 512
	settleDelay      = 200 * time.Millisecond
	readerJoinWait   = 1500 * time.Millisecond
	queuePollEvery   = 100 * time.Millisecond
)

// linePort is the slice of the serial device the bridge needs. Satisfied by
// go.bug.st/serial.Port; tests substitute a scripted implementation.
type linePort interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

type portOpener func(name string, baud int, readTimeout time.Duration) (linePort, error)

func openSerialPort(name string, baud int, readTimeout time.Duration) (linePort, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

// SerialConfig controls the serial bridge.
type SerialConfig struct {
	Port            string
	Baud            int
	ReadTimeout     time.Duration
	ResponseTimeout time.Duration
	IdleTimeout     time.Duration
	STTTimeout      time.Duration
	LogTraffic      bool
}

// Serial owns the serial device: it runs the single background reader loop,
// exposes the single-flight Ask, and hosts the voice sideband state machine.
type Serial struct {
	cfg         SerialConfig
	logger      *slog.Logger
	transcriber stt.Transcriber

	openPort portOpener

	// askMu serializes Ask callers; at most one logical request is in
	// flight against the transport. writeMu guards raw line writes so
	// voice sideband replies never interleave with prompt writes.
	askMu   sync.Mutex
	writeMu sync.Mutex

	// stateMu guards the fields shared with the reader loop. It is
	// separate from askMu so the reader is never blocked behind a slow
	// Ask caller.
	stateMu      sync.Mutex
	port         linePort
	promptActive bool
	readerErr    error

	respQueue chan string

	stopReader chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once

	// Voice capture state, owned by the reader goroutine.
	voiceCollecting bool
	voiceSampleRate int
	voicePCM        []byte
}

// NewSerial constructs a serial bridge. The transcriber may be nil, which
// disables voice STT; sideband end frames then report an error to the
// device instead of transcribing.
func NewSerial(cfg SerialConfig, logger *slog.Logger, transcriber stt.Transcriber) *Serial {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 150 * time.Millisecond
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 90 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 1200 * time.Millisecond
	}
	if cfg.STTTimeout <= 0 {
		cfg.STTTimeout = 45 * time.Second
	}
	return &Serial{
		cfg:             cfg,
		logger:          logging.NewComponentLogger(logger, "serial-bridge"),
		transcriber:     transcriber,
		openPort:        openSerialPort,
		respQueue:       make(chan string, defaultQueueSize),
		voiceSampleRate: defaultVoiceSampleRate,
	}
}

// VoiceSTTEnabled reports whether a transcriber is wired in.
func (b *Serial) VoiceSTTEnabled() bool {
	return b.transcriber != nil
}

// Open acquires the device and starts the reader loop. Calling Open on an
// already-open bridge is a no-op.
func (b *Serial) Open(ctx context.Context) error {
	b.stateMu.Lock()
	if b.port != nil {
		b.stateMu.Unlock()
		return nil
	}
	b.stateMu.Unlock()

	port, err := b.openPort(b.cfg.Port, b.cfg.Baud, b.cfg.ReadTimeout)
	if err != nil {
		return classifySerialError(b.cfg.Port, fmt.Errorf("open serial port %s: %w", b.cfg.Port, err))
	}

	// Let the device settle after the port toggles DTR, then drop
	// whatever booted into the buffer before we were listening.
	timer := time.NewTimer(settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		_ = port.Close()
		return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	case <-timer.C:
	}
	if err := port.ResetInputBuffer(); err != nil {
		b.logger.Warn("discard buffered input", logging.Error(err))
	}

	b.stateMu.Lock()
	b.port = port
	b.readerErr = nil
	b.stateMu.Unlock()

	b.stopReader = make(chan struct{})
	b.readerDone = make(chan struct{})
	b.closeOnce = sync.Once{}
	go b.readerLoop(port)

	b.logger.Info("serial bridge open",
		logging.String(logging.FieldPort, b.cfg.Port),
		logging.Int("baud", b.cfg.Baud),
		logging.Bool("voice_stt", b.VoiceSTTEnabled()),
	)
	return nil
}

// Close stops the reader loop and releases the device. Safe to call twice.
func (b *Serial) Close() error {
	b.closeOnce.Do(func() {
		if b.stopReader != nil {
			close(b.stopReader)
		}
		if b.readerDone != nil {
			select {
			case <-b.readerDone:
			case <-time.After(readerJoinWait):
				b.logger.Warn("reader loop did not stop in time")
			}
		}

		b.stateMu.Lock()
		port := b.port
		b.port = nil
		b.stateMu.Unlock()

		if port != nil {
			if err := port.Close(); err != nil {
				b.logger.Warn("close serial port", logging.Error(err))
			}
		}
	})
	return nil
}

// Ask writes the prompt and collects the device's reply. Callers are
// serialized; see SerialConfig for the framing timeouts.
func (b *Serial) Ask(ctx context.Context, prompt string) (string, error) {
	message := strings.TrimSpace(prompt)
	if message == "" {
		return "", fmt.Errorf("%w: message is empty", ErrValidation)
	}

	b.stateMu.Lock()
	open := b.port != nil
	b.stateMu.Unlock()
	if !open {
		return "", fmt.Errorf("%w: serial bridge is not open", ErrTransport)
	}

	b.askMu.Lock()
	defer b.askMu.Unlock()

	lines, err := b.collectResponse(ctx, message)
	if err != nil {
		return "", classifySerialError(b.cfg.Port, err)
	}

	reply := strings.TrimSpace(strings.Join(lines, "\n"))
	if reply == "" {
		return "", fmt.Errorf("%w: no response text collected", ErrTimeout)
	}
	return reply, nil
}

// collectResponse runs the response framing state machine: await the
// command echo, accumulate response lines while discarding firmware log
// noise, and finish on a quiet period bounded by the absolute ceiling.
func (b *Serial) collectResponse(ctx context.Context, message string) ([]string, error) {
	b.drainQueue()
	b.setActivePrompt()
	defer func() {
		b.clearActivePrompt()
		b.drainQueue()
	}()

	if err := b.writeLine(message); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(b.cfg.ResponseTimeout)
	idleDeadline := time.Now().Add(b.cfg.IdleTimeout)
	sawEcho := false
	var lines []string

	for time.Now().Before(deadline) {
		if err := b.readerError(); err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case line := <-b.respQueue:
			if line == "" {
				// Preserve paragraph breaks, collapsed to one blank.
				if len(lines) > 0 && lines[len(lines)-1] != "" {
					lines = append(lines, "")
				}
				continue
			}
			if !sawEcho {
				// Everything before the command echo is stale noise.
				if strings.TrimSpace(line) == message {
					sawEcho = true
				}
				continue
			}
			if isFirmwareLogLine(line) {
				continue
			}
			if strings.HasPrefix(line, voiceRequestPrefix) || strings.HasPrefix(line, voiceResponsePrefix) {
				continue
			}
			lines = append(lines, line)
			idleDeadline = time.Now().Add(b.cfg.IdleTimeout)
		case <-time.After(queuePollEvery):
			if len(lines) > 0 && !time.Now().Before(idleDeadline) {
				return lines, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: no agent response received within %s", ErrTimeout, b.cfg.ResponseTimeout)
}

func (b *Serial) readerLoop(port linePort) {
	defer close(b.readerDone)

	buf := make([]byte, 1024)
	var pending []byte

	for {
		select {
		case <-b.stopReader:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-b.stopReader:
			default:
				b.setReaderError(err)
				b.logger.Warn("reader loop terminated", logging.Error(err))
			}
			return
		}
		if n == 0 {
			// Device-level read timeout; loop to observe shutdown.
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := decodeLine(pending[:idx])
			pending = pending[idx+1:]
			b.handleLine(line)
		}
	}
}

func (b *Serial) handleLine(line string) {
	if b.cfg.LogTraffic {
		b.logger.Info("serial<<", logging.String("line", line))
	}

	if b.handleVoiceLine(line) {
		return
	}
	if strings.HasPrefix(line, voiceResponsePrefix) {
		// The firmware echoes our own sideband replies; not new data.
		return
	}

	if !b.hasActivePrompt() {
		// Nothing is listening; drop the line.
		return
	}

	select {
	case b.respQueue <- line:
	default:
		// Queue full: drop the oldest entry so the reader never blocks.
		select {
		case <-b.respQueue:
		default:
		}
		select {
		case b.respQueue <- line:
		default:
		}
	}
}

func (b *Serial) writeLine(line string) error {
	b.stateMu.Lock()
	port := b.port
	b.stateMu.Unlock()
	if port == nil {
		return fmt.Errorf("%w: serial bridge is not open", ErrTransport)
	}

	b.writeMu.Lock()
	_, err := port.Write([]byte(line + "\n"))
	b.writeMu.Unlock()

	if b.cfg.LogTraffic {
		b.logger.Info("serial>>", logging.String("line", line))
	}
	return err
}

func (b *Serial) drainQueue() {
	for {
		select {
		case <-b.respQueue:
		default:
			return
		}
	}
}

func (b *Serial) setActivePrompt() {
	b.stateMu.Lock()
	b.promptActive = true
	b.stateMu.Unlock()
}

func (b *Serial) clearActivePrompt() {
	b.stateMu.Lock()
	b.promptActive = false
	b.stateMu.Unlock()
}

func (b *Serial) hasActivePrompt() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.promptActive
}

func (b *Serial) setReaderError(err error) {
	b.stateMu.Lock()
	if b.readerErr == nil {
		b.readerErr = err
	}
	b.stateMu.Unlock()
}

func (b *Serial) readerError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.readerErr
}

// decodeLine strips the trailing CR and replaces invalid UTF-8, since the
// device occasionally emits garbage bytes during resets.
func decodeLine(raw []byte) string {
	return strings.ToValidUTF8(strings.TrimRight(string(raw), "\r"), "�")
}

func isFirmwareLogLine(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return false
	}
	for _, prefix := range espLogPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			return true
		}
	}
	for _, prefix := range bootLogPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			return true
		}
	}
	return false
}
