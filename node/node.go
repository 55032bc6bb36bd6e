// Package node implements the node controller the enclave creates: it owns
// the node identity, keeps it sealed in state stores and tracks host time.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/tee-enclave-node/cryptoutils"
	"github.com/ruteri/tee-enclave-node/interfaces"
	"go.uber.org/atomic"
)

var (
	ErrNotCreated     = errors.New("node not created")
	ErrAlreadyCreated = errors.New("node already created")
	ErrAlreadyRunning = errors.New("node run loop already started")
	ErrStopped        = errors.New("node stopped")
	ErrNotPrepared    = errors.New("node identity not prepared")
)

// maxSealFailures consecutive failed re-seals end the run loop.
const maxSealFailures = 3

// finalSealTimeout bounds the last re-seal on shutdown.
const finalSealTimeout = 10 * time.Second

// Node is the reference node controller. It owns the node identity key,
// keeps it sealed in the configured state stores and publishes a
// self-signed certificate bound to an attestation quote.
type Node struct {
	cfg      *interfaces.NodeConfig
	sealed   *sealedStore
	attester cryptoutils.AttestationProvider
	clock    HostClock
	log      *slog.Logger

	// now is only consulted for the certificate start time when the host
	// has not reported any time yet.
	now func() time.Time

	mu       sync.Mutex
	nodeID   string
	key      cryptoutils.NodeKey
	cert     cryptoutils.NodeCert
	seq      uint64
	pending  *prepared
	sealedAt int64 // host-elapsed milliseconds at the last successful seal

	created atomic.Bool
	running atomic.Bool
	stopped atomic.Bool

	ticks    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// prepared is an identity built by Prepare that was not committed yet.
type prepared struct {
	recover   bool
	notBefore time.Time
}

// New creates a node controller writing sealed state to store and quoting
// with attester.
func New(cfg *interfaces.NodeConfig, store interfaces.StateStore, attester cryptoutils.AttestationProvider, log *slog.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secret, err := cfg.SealingSecretBytes()
	if err != nil {
		return nil, err
	}

	return &Node{
		cfg: cfg,
		sealed: &sealedStore{
			store:   store,
			key:     cryptoutils.DeriveSealingKey(secret, cfg.ServiceName),
			service: cfg.ServiceName,
		},
		attester: attester,
		log:      log.With("service", cfg.ServiceName),
		now:      time.Now,
		ticks:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}, nil
}

// Create bootstraps the node identity. A fresh node generates and seals a
// new key; a recovering node unseals the key stored by a previous instance
// and restores its last known host time.
func (n *Node) Create(ctx context.Context, recover bool) (interfaces.NodeIdentity, error) {
	identity, err := n.Prepare(ctx, recover)
	if err != nil {
		return interfaces.NodeIdentity{}, err
	}
	if err := n.Commit(ctx); err != nil {
		return interfaces.NodeIdentity{}, err
	}
	return identity, nil
}

// Prepare builds the node certificate and quote without writing to the
// state store. A fresh node refuses to prepare when the store already holds
// a sealed node key.
func (n *Node) Prepare(ctx context.Context, recover bool) (interfaces.NodeIdentity, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.created.Load() || n.pending != nil {
		return interfaces.NodeIdentity{}, ErrAlreadyCreated
	}

	var err error
	if recover {
		err = n.recoverKey(ctx)
	} else {
		err = n.freshKey(ctx)
	}
	if err != nil {
		return interfaces.NodeIdentity{}, err
	}

	notBefore := n.clock.Time(n.now)
	cert, err := cryptoutils.CreateNodeCertificate(n.key, n.cfg.SubjectName, notBefore, n.cfg.CertValidity)
	if err != nil {
		return interfaces.NodeIdentity{}, fmt.Errorf("creating node certificate: %w", err)
	}

	der, err := cert.DER()
	if err != nil {
		return interfaces.NodeIdentity{}, err
	}

	quote, err := n.attester.Attest(cryptoutils.CertReportData(der))
	if err != nil {
		return interfaces.NodeIdentity{}, fmt.Errorf("attesting node certificate: %w", err)
	}

	n.cert = cert
	n.pending = &prepared{recover: recover, notBefore: notBefore}

	return interfaces.NodeIdentity{
		Cert:  []byte(cert),
		Quote: quote,
	}, nil
}

// Commit seals the prepared identity to the state store and completes
// creation. Nothing is published when it fails.
func (n *Node) Commit(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.created.Load() {
		return ErrAlreadyCreated
	}
	if n.pending == nil {
		return ErrNotPrepared
	}

	if !n.pending.recover {
		if err := n.ensureNoSealedKey(ctx); err != nil {
			return err
		}
		if err := n.sealed.put(ctx, keyItem, &keyRecord{NodeID: n.nodeID, Key: n.key}); err != nil {
			return err
		}
	}

	if err := n.sealState(ctx); err != nil {
		return err
	}

	n.created.Store(true)

	n.log.Info("Node identity created",
		slog.String("nodeID", n.nodeID),
		slog.Bool("recover", n.pending.recover),
		slog.String("attestation", n.attester.AttestationType().String()),
		slog.Time("notBefore", n.pending.notBefore))

	n.pending = nil
	return nil
}

func (n *Node) freshKey(ctx context.Context) error {
	if err := n.ensureNoSealedKey(ctx); err != nil {
		return err
	}

	key, err := cryptoutils.RandomNodeKey()
	if err != nil {
		return fmt.Errorf("generating node key: %w", err)
	}

	n.key = key
	n.nodeID = uuid.New().String()
	return nil
}

// ensureNoSealedKey fails with ErrStateExists when a previous node already
// sealed its key, so a fresh create never replaces it.
func (n *Node) ensureNoSealedKey(ctx context.Context) error {
	exists, err := n.sealed.exists(ctx, keyItem)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrStateExists, interfaces.NewStateKey(n.cfg.ServiceName, keyItem))
	}
	return nil
}

func (n *Node) recoverKey(ctx context.Context) error {
	var rec keyRecord
	if err := n.sealed.get(ctx, keyItem, &rec); err != nil {
		if errors.Is(err, interfaces.ErrStateNotFound) {
			return fmt.Errorf("%w: %w", ErrNoSealedState, err)
		}
		return err
	}

	key, err := cryptoutils.NewNodeKey(rec.Key)
	if err != nil {
		return fmt.Errorf("recovered node key: %w", err)
	}

	var state stateRecord
	switch err := n.sealed.get(ctx, stateItem, &state); {
	case err == nil:
		n.clock.Restore(interfaces.TimePoint(state.HostTime))
		n.seq = state.Seq
	case errors.Is(err, interfaces.ErrStateNotFound):
		n.log.Warn("No sealed node state found, recovering key only")
	default:
		return err
	}

	n.key = key
	n.nodeID = rec.NodeID
	return nil
}

// sealState writes the current state record. Callers hold n.mu.
func (n *Node) sealState(ctx context.Context) error {
	hostTime, _ := n.clock.Now()
	record := &stateRecord{
		NodeID:   n.nodeID,
		HostTime: hostTime.Ticks(),
		Seq:      n.seq + 1,
	}
	if err := n.sealed.put(ctx, stateItem, record); err != nil {
		return err
	}
	n.seq = record.Seq
	n.sealedAt = n.clock.Elapsed().Milliseconds()
	return nil
}

// Tick records host time and wakes the run loop without blocking.
func (n *Node) Tick(now interfaces.TimePoint, elapsed interfaces.Millis) error {
	if n.stopped.Load() {
		return ErrStopped
	}
	if !n.created.Load() {
		return ErrNotCreated
	}

	n.clock.Advance(now, elapsed)

	select {
	case n.ticks <- struct{}{}:
	default:
	}
	return nil
}

// Run re-seals node state every SealInterval of host-reported time until ctx
// is cancelled or Stop is called. It returns nil on either, and an error if
// sealing keeps failing.
func (n *Node) Run(ctx context.Context) error {
	if !n.created.Load() {
		return ErrNotCreated
	}
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer n.stopped.Store(true)

	n.log.Info("Node run loop started", slog.Duration("sealInterval", n.cfg.SealInterval))

	interval := n.cfg.SealInterval.Milliseconds()
	failures := 0

	for {
		select {
		case <-ctx.Done():
			n.finalSeal(ctx)
			return nil
		case <-n.stop:
			n.finalSeal(ctx)
			return nil
		case <-n.ticks:
		}

		n.mu.Lock()
		if n.clock.Elapsed().Milliseconds()-n.sealedAt < interval {
			n.mu.Unlock()
			continue
		}
		err := n.sealState(ctx)
		n.mu.Unlock()

		if err != nil {
			failures++
			n.log.Error("Failed to seal node state", "err", err, slog.Int("failures", failures))
			if failures >= maxSealFailures {
				return fmt.Errorf("sealing node state: %w", err)
			}
			continue
		}

		failures = 0
		n.log.Debug("Sealed node state", slog.Uint64("seq", n.Seq()))
	}
}

func (n *Node) finalSeal(ctx context.Context) {
	sealCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSealTimeout)
	defer cancel()

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.sealState(sealCtx); err != nil {
		n.log.Warn("Final state seal failed", "err", err)
		return
	}
	n.log.Info("Node run loop stopped", slog.Uint64("seq", n.seq))
}

// Stop ends the run loop. Ticks fail afterwards.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.stopped.Store(true)
		close(n.stop)
	})
}

// NodeID returns the identifier persisted with the node key.
func (n *Node) NodeID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodeID
}

// Seq returns the sequence number of the last sealed state record.
func (n *Node) Seq() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

// HostTime returns the last host time the node knows about.
func (n *Node) HostTime() (interfaces.TimePoint, bool) {
	return n.clock.Now()
}
