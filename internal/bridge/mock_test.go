package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMockAskEcho(t *testing.T) {
	mock := NewMock(0)
	if err := mock.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mock.Close()

	reply, err := mock.Ask(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(reply, "hello there") {
		t.Fatalf("reply %q does not echo the prompt", reply)
	}
	if !strings.Contains(reply, MockTarget) {
		t.Fatalf("reply %q does not identify the mock target", reply)
	}
}

func TestMockAskPing(t *testing.T) {
	mock := NewMock(0)

	for _, prompt := range []string{"ping", "/ping", "PING"} {
		reply, err := mock.Ask(context.Background(), prompt)
		if err != nil {
			t.Fatalf("Ask(%q): %v", prompt, err)
		}
		if reply != "pong" {
			t.Fatalf("Ask(%q) = %q, want pong", prompt, reply)
		}
	}
}

func TestMockAskStatus(t *testing.T) {
	mock := NewMock(0)

	reply, err := mock.Ask(context.Background(), "status")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(reply, "mock-agent online") {
		t.Fatalf("status reply %q missing banner", reply)
	}
}

func TestMockAskEmptyPrompt(t *testing.T) {
	mock := NewMock(0)

	_, err := mock.Ask(context.Background(), "   ")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Ask with blank prompt err = %v, want ErrValidation", err)
	}
}

func TestMockAskRespectsContext(t *testing.T) {
	mock := NewMock(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := mock.Ask(ctx, "hello")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Ask err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("Ask blocked for %s despite cancelled context", elapsed)
	}
}
