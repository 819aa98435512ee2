package bridge

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Substrings that identify the two actionable failure families across the
// platform serial stacks (termios, IOKit, win32).
var (
	portBusyHints = []string{
		"multiple access on port",
		"resource busy",
		"could not exclusively lock port",
		"in use",
	}
	portGoneHints = []string{
		"device disconnected",
		"returned no data",
		"input/output error",
		"no such file or directory",
	}
)

// classifySerialError maps low-level serial failures onto the bridge
// sentinels with remediation hints. Errors already carrying a sentinel pass
// through unchanged.
func classifySerialError(portName string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) {
		return err
	}

	text := strings.ToLower(err.Error())

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortBusy:
			return busyError(portName, err)
		case serial.PortNotFound, serial.PortClosed:
			return goneError(portName, err)
		}
	}

	for _, hint := range portBusyHints {
		if strings.Contains(text, hint) {
			return busyError(portName, err)
		}
	}
	for _, hint := range portGoneHints {
		if strings.Contains(text, hint) {
			return goneError(portName, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func busyError(portName string, err error) error {
	return fmt.Errorf("%w: serial port %s is busy, close other serial monitors and retry: %v",
		ErrTransport, portName, err)
}

func goneError(portName string, err error) error {
	return fmt.Errorf("%w: serial device %s is unavailable, check the USB connection: %v",
		ErrTransport, portName, err)
}
