package interfaces

import (
	"context"
	"math"
	"time"
)

// NodeController owns node identity, attestation and the node's run loop.
// The enclave core constructs at most one and only ever delegates to it.
//
// Run and Tick may be called concurrently from different goroutines; the
// implementation must be safe for that.
type NodeController interface {
	// Create bootstraps a fresh node, or restores sealed state when recover
	// is set, and returns the node certificate and attestation quote.
	Create(ctx context.Context, recover bool) (NodeIdentity, error)

	// Run blocks for the operational lifetime of the node. A nil error means
	// the node terminated cleanly.
	Run(ctx context.Context) error

	// Tick injects host time. now is the host's current time and elapsed the
	// time since the previous tick, both exactly as the host reported them.
	Tick(now TimePoint, elapsed Millis) error
}

// StagedNodeController is a NodeController that splits Create in two.
// Prepare builds the certificate and quote without persisting anything, and
// Commit persists the node state and completes creation. The enclave commits
// only after the host accepted the identity, so a rejected create leaves
// previously sealed state untouched.
type StagedNodeController interface {
	NodeController

	Prepare(ctx context.Context, recover bool) (NodeIdentity, error)
	Commit(ctx context.Context) error
}

// NodeFactory constructs a node controller from its configuration. An error
// means the configuration was rejected.
type NodeFactory func(cfg *NodeConfig) (NodeController, error)

// NodeIdentity is what a successfully created node hands back to the host.
type NodeIdentity struct {
	// Cert is the PEM encoded node certificate.
	Cert []byte
	// Quote is the attestation quote binding Cert to this enclave.
	Quote []byte
}

// TimePoint is an instant expressed in native clock ticks (nanoseconds)
// since the Unix epoch.
type TimePoint int64

// Ticks returns the raw tick count.
func (t TimePoint) Ticks() int64 { return int64(t) }

// Time returns the instant as a time.Time. Every int64 tick count is
// representable.
func (t TimePoint) Time() time.Time { return time.Unix(0, int64(t)).UTC() }

// Millis is a duration expressed in whole milliseconds.
type Millis int64

// Milliseconds returns the raw millisecond count.
func (m Millis) Milliseconds() int64 { return int64(m) }

// Duration returns m as a time.Duration, saturating at the time.Duration
// range for counts beyond roughly 292 years. The Millis value itself is
// never truncated.
func (m Millis) Duration() time.Duration {
	const maxMillis = math.MaxInt64 / int64(time.Millisecond)
	switch {
	case int64(m) > maxMillis:
		return time.Duration(math.MaxInt64)
	case int64(m) < -maxMillis:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(m) * time.Millisecond
}
