package bridge

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifySerialErrorNil(t *testing.T) {
	if err := classifySerialError("/dev/ttyUSB0", nil); err != nil {
		t.Fatalf("classifySerialError(nil) = %v", err)
	}
}

func TestClassifySerialErrorPassThrough(t *testing.T) {
	for _, sentinel := range []error{ErrValidation, ErrTimeout, ErrTransport} {
		wrapped := fmt.Errorf("%w: detail", sentinel)
		got := classifySerialError("/dev/ttyUSB0", wrapped)
		if got != wrapped {
			t.Fatalf("classified error %v was rewrapped to %v", wrapped, got)
		}
	}
}

func TestClassifySerialErrorBusy(t *testing.T) {
	cases := []string{
		"serial: multiple access on port",
		"open /dev/ttyUSB0: Resource busy",
		"could not exclusively lock port",
		"port already in use",
	}
	for _, text := range cases {
		err := classifySerialError("/dev/ttyUSB0", errors.New(text))
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("%q classified as %v, want ErrTransport", text, err)
		}
		if !strings.Contains(err.Error(), "busy") {
			t.Fatalf("%q produced %q, missing busy remediation", text, err)
		}
	}
}

func TestClassifySerialErrorDisconnected(t *testing.T) {
	cases := []string{
		"device disconnected",
		"read returned no data",
		"input/output error",
		"open /dev/ttyUSB0: no such file or directory",
	}
	for _, text := range cases {
		err := classifySerialError("/dev/ttyUSB0", errors.New(text))
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("%q classified as %v, want ErrTransport", text, err)
		}
		if !strings.Contains(err.Error(), "unavailable") {
			t.Fatalf("%q produced %q, missing disconnect remediation", text, err)
		}
	}
}

func TestClassifySerialErrorGeneric(t *testing.T) {
	err := classifySerialError("/dev/ttyUSB0", errors.New("framing error"))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("generic failure classified as %v, want ErrTransport", err)
	}
	if !strings.Contains(err.Error(), "framing error") {
		t.Fatalf("generic failure lost cause: %q", err)
	}
}
