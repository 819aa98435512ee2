// Package bridge turns text prompts into text replies from the zclaw agent.
// Two variants implement the capability: a deterministic mock for
// development without hardware, and the serial bridge that owns the shared
// half-duplex device transport, correlates the single in-flight
// request/response pair, and hosts the voice sideband protocol.
package bridge

import (
	"context"
	"errors"
)

// Sentinel errors classifying bridge failures. The HTTP front door maps
// them onto status codes with errors.Is; nothing crosses that boundary
// unclassified.
var (
	// ErrValidation marks bad caller input, such as an empty prompt.
	ErrValidation = errors.New("validation error")
	// ErrTimeout marks a request that collected no complete response
	// within the configured window.
	ErrTimeout = errors.New("timeout")
	// ErrTransport marks fatal transport conditions: port busy, device
	// disconnected, bridge not open.
	ErrTransport = errors.New("transport error")
)

// AgentBridge is the capability contract shared by all variants.
//
// Open is idempotent setup and fails with ErrTransport when the underlying
// device cannot be acquired. Close is idempotent teardown and never fails.
// Ask performs exactly one round-trip per call with no internal retry.
type AgentBridge interface {
	Open(ctx context.Context) error
	Close() error
	Ask(ctx context.Context, prompt string) (string, error)
}
