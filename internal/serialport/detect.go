// Package serialport discovers candidate agent serial devices and watches
// for the configured device appearing or disappearing.
package serialport

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// candidatePatterns returns the glob patterns for USB serial adapters on
// the current platform.
func candidatePatterns() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/dev/cu.usbserial-*",
			"/dev/cu.usbmodem*",
			"/dev/tty.usbserial-*",
			"/dev/tty.usbmodem*",
		}
	default:
		return []string{
			"/dev/ttyUSB*",
			"/dev/ttyACM*",
		}
	}
}

// Detect lists serial devices that look like USB serial adapters, sorted
// and deduplicated.
func Detect() ([]string, error) {
	seen := make(map[string]struct{})
	var ports []string
	for _, pattern := range candidatePatterns() {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			ports = append(ports, match)
		}
	}
	sort.Strings(ports)
	return ports, nil
}

// Resolve picks the serial device to use. An explicitly requested port
// wins; otherwise exactly one detected candidate must exist.
func Resolve(requested string) (string, error) {
	if trimmed := strings.TrimSpace(requested); trimmed != "" {
		return trimmed, nil
	}

	ports, err := Detect()
	if err != nil {
		return "", err
	}
	switch len(ports) {
	case 0:
		return "", fmt.Errorf("no serial device detected; connect the device or set serial.port")
	case 1:
		return ports[0], nil
	default:
		return "", fmt.Errorf("multiple serial devices detected (%s); set serial.port to choose one",
			strings.Join(ports, ", "))
	}
}
