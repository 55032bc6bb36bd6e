package enclave

import (
	"context"
	"log/slog"

	"github.com/ruteri/tee-enclave-node/interfaces"
)

// Boundary is the host-callable surface of an Enclave. Every call reports
// success as a bool only; the reason for a failure is logged, never returned.
//
// ctx is the process-lifetime context handed to the node's create and run.
// The host has no way to cancel an individual call.
type Boundary struct {
	ctx     context.Context
	enclave *Enclave
	log     *slog.Logger
}

// NewBoundary exposes e to the host.
func NewBoundary(ctx context.Context, e *Enclave, log *slog.Logger) *Boundary {
	if log == nil {
		log = slog.Default()
	}
	return &Boundary{
		ctx:     ctx,
		enclave: e,
		log:     log,
	}
}

// CreateNode creates the node from cfg. The length of cert and quote is
// their capacity. On success certLen and quoteLen hold the exact number of
// bytes written to each buffer. On failure the buffers' contents are
// unspecified and the lengths are not written.
func (b *Boundary) CreateNode(cfg *interfaces.NodeConfig, cert []byte, certLen *int, quote []byte, quoteLen *int, recover bool) bool {
	if certLen == nil || quoteLen == nil {
		b.log.Warn("create_node called without length outputs")
		return false
	}

	identity, err := b.enclave.Create(b.ctx, cfg, CreateRequest{
		Recover:       recover,
		CertCapacity:  len(cert),
		QuoteCapacity: len(quote),
	})
	if err != nil {
		b.log.Debug("create_node failed", "err", err, "kind", KindOf(err))
		return false
	}

	*certLen = copy(cert, identity.Cert)
	*quoteLen = copy(quote, identity.Quote)
	return true
}

// RunNode blocks in the node's run loop and reports whether it ended
// cleanly. It returns false at once if no node exists.
func (b *Boundary) RunNode() bool {
	err := b.enclave.Run(b.ctx)
	if err != nil {
		b.log.Debug("run_node failed", "err", err, "kind", KindOf(err))
		return false
	}
	return true
}

// TickNode forwards host time to the node: now in native clock ticks since
// the Unix epoch, elapsed in milliseconds. It returns false if no node exists
// or the node rejected the tick.
func (b *Boundary) TickNode(now, elapsed int64) bool {
	return b.enclave.Tick(now, elapsed) == nil
}
