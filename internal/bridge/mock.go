package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockTarget is the bridge-target label reported for the mock variant.
const MockTarget = "mock-agent"

// Mock is a deterministic responder for development and UI work without
// hardware. It has no transport and no concurrency concerns.
type Mock struct {
	latency time.Duration
}

// NewMock constructs a mock bridge with the given simulated latency.
func NewMock(latency time.Duration) *Mock {
	if latency < 0 {
		latency = 0
	}
	return &Mock{latency: latency}
}

// Open implements AgentBridge.
func (m *Mock) Open(context.Context) error { return nil }

// Close implements AgentBridge.
func (m *Mock) Close() error { return nil }

// Ask implements AgentBridge.
func (m *Mock) Ask(ctx context.Context, prompt string) (string, error) {
	message := strings.TrimSpace(prompt)
	if message == "" {
		return "", fmt.Errorf("%w: message is empty", ErrValidation)
	}

	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-timer.C:
		}
	}

	switch strings.ToLower(message) {
	case "ping", "/ping":
		return "pong", nil
	case "status", "/status", "health", "/health":
		return "mock-agent online\n" +
			"mode: web relay test mode\n" +
			"device: simulated\n" +
			"latency: low", nil
	}
	return fmt.Sprintf("[mock-agent] Received: %s\nThis response is generated by the host relay (no device required).", message), nil
}
