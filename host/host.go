// Package host drives an enclave from the untrusted side: it creates the
// node through the boolean boundary, runs it on a dedicated goroutine and
// feeds it host time on a timer.
package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/tee-enclave-node/enclave"
	"github.com/ruteri/tee-enclave-node/interfaces"
	"github.com/ruteri/tee-enclave-node/metrics"
	"go.uber.org/atomic"
)

var (
	ErrCreateFailed   = errors.New("enclave rejected node creation")
	ErrNotCreated     = errors.New("node not created")
	ErrAlreadyStarted = errors.New("host already started")
)

const (
	DefaultCertBufferSize  = 4096
	DefaultQuoteBufferSize = 16 * 1024
	DefaultTickInterval    = 100 * time.Millisecond
)

type Config struct {
	// CertBufferSize and QuoteBufferSize are the capacities offered to the
	// enclave for the node certificate and quote.
	CertBufferSize  int
	QuoteBufferSize int

	TickInterval time.Duration
	Recover      bool
}

// Status is a snapshot of the driver state.
type Status struct {
	Created     bool      `json:"created"`
	Recovered   bool      `json:"recovered"`
	Running     bool      `json:"running"`
	RunFinished bool      `json:"run_finished"`
	RunOK       bool      `json:"run_ok"`
	TicksOK     uint64    `json:"ticks_ok"`
	TicksFailed uint64    `json:"ticks_failed"`
	LastTick    time.Time `json:"last_tick"`
}

type Host struct {
	boundary *enclave.Boundary
	cfg      Config
	metrics  *metrics.NodeMetrics
	log      *slog.Logger

	// now is the host clock fed to the enclave.
	now func() time.Time

	mu       sync.RWMutex
	identity interfaces.NodeIdentity
	status   Status

	started atomic.Bool
	done    chan struct{}
}

// New creates a driver for boundary. m may be nil.
func New(boundary *enclave.Boundary, cfg Config, m *metrics.NodeMetrics, log *slog.Logger) *Host {
	if cfg.CertBufferSize <= 0 {
		cfg.CertBufferSize = DefaultCertBufferSize
	}
	if cfg.QuoteBufferSize <= 0 {
		cfg.QuoteBufferSize = DefaultQuoteBufferSize
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	return &Host{
		boundary: boundary,
		cfg:      cfg,
		metrics:  m,
		log:      log,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Create asks the enclave to create the node and keeps the published
// certificate and quote.
func (h *Host) Create(nodeCfg *interfaces.NodeConfig) error {
	cert := make([]byte, h.cfg.CertBufferSize)
	quote := make([]byte, h.cfg.QuoteBufferSize)
	var certLen, quoteLen int

	ok := h.boundary.CreateNode(nodeCfg, cert, &certLen, quote, &quoteLen, h.cfg.Recover)
	if h.metrics != nil {
		h.metrics.CreateCalls.WithLabelValues(metrics.Result(ok)).Inc()
	}
	if !ok {
		h.log.Error("Enclave node creation failed",
			slog.Bool("recover", h.cfg.Recover),
			slog.Int("certCapacity", len(cert)),
			slog.Int("quoteCapacity", len(quote)))
		return ErrCreateFailed
	}

	h.mu.Lock()
	h.identity = interfaces.NodeIdentity{
		Cert:  cert[:certLen],
		Quote: quote[:quoteLen],
	}
	h.status.Created = true
	h.status.Recovered = h.cfg.Recover
	h.mu.Unlock()

	h.log.Info("Enclave node created",
		slog.Bool("recover", h.cfg.Recover),
		slog.Int("certSize", certLen),
		slog.Int("quoteSize", quoteLen))
	return nil
}

// Start runs the node on its own goroutine and ticks it until ctx is done
// or the run loop ends. It does not block.
func (h *Host) Start(ctx context.Context) error {
	if !h.Created() {
		return ErrNotCreated
	}
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runDone := make(chan struct{})
	go h.run(runDone)
	go h.tickLoop(ctx, runDone)
	return nil
}

func (h *Host) run(runDone chan struct{}) {
	defer close(runDone)

	h.setRunning(true)
	h.log.Info("Enclave node run loop starting")

	ok := h.boundary.RunNode()

	h.mu.Lock()
	h.status.Running = false
	h.status.RunFinished = true
	h.status.RunOK = ok
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RunActive.Set(0)
		h.metrics.RunExits.WithLabelValues(metrics.Result(ok)).Inc()
	}

	if ok {
		h.log.Info("Enclave node run loop finished")
	} else {
		h.log.Error("Enclave node run loop failed")
	}
}

func (h *Host) setRunning(running bool) {
	h.mu.Lock()
	h.status.Running = running
	h.mu.Unlock()

	if h.metrics != nil && running {
		h.metrics.RunActive.Set(1)
	}
}

func (h *Host) tickLoop(ctx context.Context, runDone <-chan struct{}) {
	defer close(h.done)

	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	elapsed := elapsedTracker{last: h.now()}
	for {
		select {
		case <-ctx.Done():
			<-runDone
			return
		case <-runDone:
			return
		case <-ticker.C:
		}

		now := h.now()
		h.Tick(now, elapsed.next(now))
	}
}

// elapsedTracker reports whole milliseconds between samples. The
// sub-millisecond remainder is carried into the next sample, so the reported
// elapsed times add up to the host time that actually passed.
type elapsedTracker struct {
	last time.Time
}

func (t *elapsedTracker) next(now time.Time) time.Duration {
	elapsed := now.Sub(t.last).Truncate(time.Millisecond)
	t.last = t.last.Add(elapsed)
	return elapsed
}

// Tick forwards one host time sample to the enclave.
func (h *Host) Tick(now time.Time, elapsed time.Duration) bool {
	ok := h.boundary.TickNode(now.UnixNano(), elapsed.Milliseconds())

	h.mu.Lock()
	if ok {
		h.status.TicksOK++
	} else {
		h.status.TicksFailed++
	}
	h.status.LastTick = now
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.TickCalls.WithLabelValues(metrics.Result(ok)).Inc()
		h.metrics.LastTickMs.Set(float64(elapsed.Milliseconds()))
	}
	if !ok {
		h.log.Debug("Enclave rejected tick", slog.Time("now", now))
	}
	return ok
}

// Done is closed once the driver stopped ticking and the run loop returned.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Created reports whether the enclave accepted Create.
func (h *Host) Created() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status.Created
}

// Identity returns the certificate and quote published by the enclave.
func (h *Host) Identity() (interfaces.NodeIdentity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.identity, h.status.Created
}

func (h *Host) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}
