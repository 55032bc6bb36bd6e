package enclave

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-enclave-node/interfaces"
	"go.uber.org/atomic"
)

// NoCapacityLimit disables the capacity check for one output of Create.
const NoCapacityLimit = -1

// CreateRequest carries the per-call arguments of Create.
type CreateRequest struct {
	// Recover restores sealed state instead of bootstrapping a fresh node.
	Recover bool

	// CertCapacity and QuoteCapacity bound the size of the returned
	// certificate and quote. NoCapacityLimit disables the bound.
	CertCapacity  int
	QuoteCapacity int
}

// nodeHandle wraps the published controller so it can live in an atomic pointer.
type nodeHandle struct {
	ctrl interfaces.NodeController
}

// Enclave holds the single node handle of an enclave process.
//
// The handle is published at most once, under createLock, and only after the
// node was created successfully. Run and Tick read it without locking and
// never modify it.
type Enclave struct {
	createLock SpinLock
	node       atomic.Pointer[nodeHandle]

	factory interfaces.NodeFactory
	log     *slog.Logger

	// reserved is only used by builds tagged debugconfig.
	reserved []byte
}

// New creates an enclave context that constructs its node with factory.
func New(factory interfaces.NodeFactory, log *slog.Logger) *Enclave {
	if log == nil {
		log = slog.Default()
	}
	return &Enclave{
		factory: factory,
		log:     log,
	}
}

// Create constructs the node from cfg and delegates creation to it. Only the
// first call that finds no node runs; every later or concurrent call fails
// with ErrCreationConflict without touching any node.
//
// On failure no node is published and a later Create may still succeed. A
// StagedNodeController is committed only once its identity fits the
// requested capacities.
func (e *Enclave) Create(ctx context.Context, cfg *interfaces.NodeConfig, req CreateRequest) (interfaces.NodeIdentity, error) {
	e.createLock.Lock()
	defer e.createLock.Unlock()

	if e.node.Load() != nil {
		e.log.Warn("Rejected node creation", "kind", KindCreationConflict)
		return interfaces.NodeIdentity{}, ErrCreationConflict
	}

	if cfg == nil {
		return interfaces.NodeIdentity{}, fmt.Errorf("%w: missing configuration", ErrConfigurationOrAttestation)
	}

	e.reserveDebugMemory(cfg)

	ctrl, err := e.factory(cfg)
	if err != nil {
		e.log.Warn("Node rejected configuration", "err", err, "kind", KindConfigurationOrAttestation)
		return interfaces.NodeIdentity{}, fmt.Errorf("%w: %w", ErrConfigurationOrAttestation, err)
	}

	staged, isStaged := ctrl.(interfaces.StagedNodeController)

	var identity interfaces.NodeIdentity
	if isStaged {
		identity, err = staged.Prepare(ctx, req.Recover)
	} else {
		identity, err = ctrl.Create(ctx, req.Recover)
	}
	if err != nil {
		e.log.Warn("Node creation failed", "err", err, "recover", req.Recover, "kind", KindConfigurationOrAttestation)
		return interfaces.NodeIdentity{}, fmt.Errorf("%w: %w", ErrConfigurationOrAttestation, err)
	}

	if !fits(identity.Cert, req.CertCapacity) {
		e.log.Warn("Node certificate exceeds capacity", "size", len(identity.Cert), "capacity", req.CertCapacity)
		return interfaces.NodeIdentity{}, fmt.Errorf("%w: certificate is %d bytes, capacity %d", ErrCapacityExceeded, len(identity.Cert), req.CertCapacity)
	}
	if !fits(identity.Quote, req.QuoteCapacity) {
		e.log.Warn("Attestation quote exceeds capacity", "size", len(identity.Quote), "capacity", req.QuoteCapacity)
		return interfaces.NodeIdentity{}, fmt.Errorf("%w: quote is %d bytes, capacity %d", ErrCapacityExceeded, len(identity.Quote), req.QuoteCapacity)
	}

	if isStaged {
		if err := staged.Commit(ctx); err != nil {
			e.log.Warn("Node commit failed", "err", err, "recover", req.Recover, "kind", KindConfigurationOrAttestation)
			return interfaces.NodeIdentity{}, fmt.Errorf("%w: %w", ErrConfigurationOrAttestation, err)
		}
	}

	e.node.Store(&nodeHandle{ctrl: ctrl})
	e.log.Info("Node created",
		"recover", req.Recover,
		"certSize", len(identity.Cert),
		"quoteSize", len(identity.Quote))

	return identity, nil
}

// Created reports whether a node has been published.
func (e *Enclave) Created() bool {
	return e.node.Load() != nil
}

// Run blocks in the node's run loop and returns when it ends. Without a node
// it returns ErrUninitializedAccess immediately.
func (e *Enclave) Run(ctx context.Context) error {
	h := e.node.Load()
	if h == nil {
		return ErrUninitializedAccess
	}

	if err := h.ctrl.Run(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNodeFailure, err)
	}
	return nil
}

// Tick forwards host time to the node. now is in native clock ticks since
// the Unix epoch, elapsed in milliseconds since the previous tick; see
// ConvertTime. Without a node it returns ErrUninitializedAccess and nothing
// is delegated.
func (e *Enclave) Tick(now, elapsed int64) error {
	h := e.node.Load()
	if h == nil {
		return ErrUninitializedAccess
	}

	timePoint, duration := ConvertTime(now, elapsed)
	if err := h.ctrl.Tick(timePoint, duration); err != nil {
		return fmt.Errorf("%w: %w", ErrNodeFailure, err)
	}
	return nil
}

// Close releases resources tied to the enclave's lifetime. The node handle
// itself lives until process exit.
func (e *Enclave) Close() error {
	e.createLock.Lock()
	defer e.createLock.Unlock()

	e.releaseDebugMemory()
	return nil
}

func fits(data []byte, capacity int) bool {
	return capacity == NoCapacityLimit || len(data) <= capacity
}
