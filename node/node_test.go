package node

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/tee-enclave-node/cryptoutils"
	"github.com/ruteri/tee-enclave-node/interfaces"
	"github.com/ruteri/tee-enclave-node/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() *interfaces.NodeConfig {
	return &interfaces.NodeConfig{
		ServiceName:    "ledger",
		SubjectName:    "node.ledger.local",
		Attestation:    interfaces.AttestationDummy,
		StateLocations: []string{"file:///unused"},
		SealingSecret:  strings.Repeat("11", 32),
		CertValidity:   24 * time.Hour,
		SealInterval:   time.Second,
	}
}

// memStore is an in-memory state store whose writes can be made to fail.
type memStore struct {
	mu       sync.Mutex
	data     map[interfaces.StateKey][]byte
	failPuts atomic.Bool
	puts     atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{data: make(map[interfaces.StateKey][]byte)}
}

func (s *memStore) Get(_ context.Context, key interfaces.StateKey) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	if !ok {
		return nil, interfaces.ErrStateNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *memStore) Put(_ context.Context, key interfaces.StateKey, data []byte) error {
	if s.failPuts.Load() {
		return interfaces.ErrBackendUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	s.puts.Inc()
	return nil
}

func (s *memStore) Available(context.Context) bool { return true }
func (s *memStore) Name() string                   { return "mem" }
func (s *memStore) LocationURI() string            { return "mem://" }

func newTestNode(t *testing.T, cfg *interfaces.NodeConfig, store interfaces.StateStore) *Node {
	t.Helper()
	n, err := New(cfg, store, cryptoutils.DummyAttestationProvider{}, testLogger)
	require.NoError(t, err)
	return n
}

func TestCreateFresh(t *testing.T) {
	store := newMemStore()
	n := newTestNode(t, testConfig(), store)

	identity, err := n.Create(context.Background(), false)
	require.NoError(t, err)

	cert, err := cryptoutils.NewNodeCert(identity.Cert)
	require.NoError(t, err)
	x509Cert, err := cert.GetX509Cert()
	require.NoError(t, err)
	assert.Equal(t, "node.ledger.local", x509Cert.Subject.CommonName)
	assert.Equal(t, 24*time.Hour, x509Cert.NotAfter.Sub(x509Cert.NotBefore))

	der, err := cert.DER()
	require.NoError(t, err)
	require.NoError(t, cryptoutils.VerifyDummyAttestation(cryptoutils.CertReportData(der), identity.Quote))

	_, err = store.Get(context.Background(), interfaces.NewStateKey("ledger", keyItem))
	require.NoError(t, err)
	_, err = store.Get(context.Background(), interfaces.NewStateKey("ledger", stateItem))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n.Seq())
	assert.NotEmpty(t, n.NodeID())

	_, err = n.Create(context.Background(), false)
	require.ErrorIs(t, err, ErrAlreadyCreated)
}

func TestCreateRecover(t *testing.T) {
	store := newMemStore()
	cfg := testConfig()

	first := newTestNode(t, cfg, store)
	firstIdentity, err := first.Create(context.Background(), false)
	require.NoError(t, err)

	hostTime := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, first.Tick(interfaces.TimePoint(hostTime.UnixNano()), 10))

	first.Stop()
	require.NoError(t, first.Run(context.Background()))

	second := newTestNode(t, cfg, store)
	identity, err := second.Create(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, first.NodeID(), second.NodeID())

	got, ok := second.HostTime()
	require.True(t, ok)
	assert.Equal(t, hostTime, got.Time())

	firstCert, err := cryptoutils.NodeCert(firstIdentity.Cert).GetX509Cert()
	require.NoError(t, err)
	cert, err := cryptoutils.NodeCert(identity.Cert).GetX509Cert()
	require.NoError(t, err)
	assert.True(t, cert.NotBefore.Equal(hostTime))
	assert.True(t, firstCert.PublicKey.(*ecdsa.PublicKey).Equal(cert.PublicKey))
	assert.Greater(t, second.Seq(), first.Seq())
}

func TestCreateRecoverWithoutState(t *testing.T) {
	n := newTestNode(t, testConfig(), newMemStore())

	_, err := n.Create(context.Background(), true)
	require.ErrorIs(t, err, ErrNoSealedState)

	// A failed recover leaves the node uncreated
	require.ErrorIs(t, n.Tick(1, 1), ErrNotCreated)
}

func TestCreateRecoverWrongSecret(t *testing.T) {
	store := newMemStore()

	_, err := newTestNode(t, testConfig(), store).Create(context.Background(), false)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.SealingSecret = strings.Repeat("22", 32)
	_, err = newTestNode(t, cfg, store).Create(context.Background(), true)
	require.ErrorIs(t, err, cryptoutils.ErrUnseal)
}

func TestCreateStoreFailure(t *testing.T) {
	store := newMemStore()
	store.failPuts.Store(true)

	_, err := newTestNode(t, testConfig(), store).Create(context.Background(), false)
	require.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

type failingAttester struct {
	cryptoutils.DummyAttestationProvider
}

func (failingAttester) Attest([64]byte) ([]byte, error) {
	return nil, errors.New("no quote device")
}

func TestCreateAttestationFailure(t *testing.T) {
	store := newMemStore()
	n, err := New(testConfig(), store, failingAttester{}, testLogger)
	require.NoError(t, err)

	_, err = n.Create(context.Background(), false)
	require.ErrorContains(t, err, "no quote device")
	assert.EqualValues(t, 0, store.puts.Load())
}

func TestFailedCreateKeepsSealedKey(t *testing.T) {
	store := newMemStore()
	cfg := testConfig()

	first := newTestNode(t, cfg, store)
	_, err := first.Create(context.Background(), false)
	require.NoError(t, err)

	keyState := interfaces.NewStateKey(cfg.ServiceName, keyItem)
	sealedKey, err := store.Get(context.Background(), keyState)
	require.NoError(t, err)
	puts := store.puts.Load()

	// A fresh create never replaces a sealed key
	_, err = newTestNode(t, cfg, store).Create(context.Background(), false)
	require.ErrorIs(t, err, ErrStateExists)

	assert.Equal(t, puts, store.puts.Load())
	got, err := store.Get(context.Background(), keyState)
	require.NoError(t, err)
	assert.Equal(t, sealedKey, got)

	recovered := newTestNode(t, cfg, store)
	_, err = recovered.Create(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, first.NodeID(), recovered.NodeID())
}

func TestPrepareWritesNothing(t *testing.T) {
	store := newMemStore()
	n := newTestNode(t, testConfig(), store)

	require.ErrorIs(t, n.Commit(context.Background()), ErrNotPrepared)

	identity, err := n.Prepare(context.Background(), false)
	require.NoError(t, err)
	require.NotEmpty(t, identity.Cert)
	assert.EqualValues(t, 0, store.puts.Load())
	require.ErrorIs(t, n.Tick(1, 1), ErrNotCreated)

	// An abandoned prepare leaves the slot free for the next node
	other := newTestNode(t, testConfig(), store)
	_, err = other.Create(context.Background(), false)
	require.NoError(t, err)

	require.ErrorIs(t, n.Commit(context.Background()), ErrStateExists)
	require.ErrorIs(t, n.Tick(1, 1), ErrNotCreated)
}

func TestRunReseals(t *testing.T) {
	store := newMemStore()
	n := newTestNode(t, testConfig(), store)
	_, err := n.Create(context.Background(), false)
	require.NoError(t, err)

	// Below the interval nothing is sealed
	require.NoError(t, n.Tick(1_000_000_000, 400))
	require.NoError(t, n.Tick(2_000_000_000, 400))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Never(t, func() bool { return n.Seq() != 1 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, n.Tick(3_000_000_000, 400))
	require.Eventually(t, func() bool { return n.Seq() == 2 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.EqualValues(t, 3, n.Seq())

	require.ErrorIs(t, n.Tick(4_000_000_000, 1), ErrStopped)
}

func TestRunCountsTimeBeforeStart(t *testing.T) {
	n := newTestNode(t, testConfig(), newMemStore())
	_, err := n.Create(context.Background(), false)
	require.NoError(t, err)

	// Host time reported before the run loop starts counts toward the interval
	require.NoError(t, n.Tick(1_000_000_000, 1200))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.NoError(t, n.Tick(2_000_000_000, 1))
	require.Eventually(t, func() bool { return n.Seq() == 2 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunTwice(t *testing.T) {
	n := newTestNode(t, testConfig(), newMemStore())
	require.ErrorIs(t, n.Run(context.Background()), ErrNotCreated)

	_, err := n.Create(context.Background(), false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, n.running.Load, 5*time.Second, time.Millisecond)
	require.ErrorIs(t, n.Run(ctx), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}

func TestRunSealFailures(t *testing.T) {
	store := newMemStore()
	n := newTestNode(t, testConfig(), store)
	_, err := n.Create(context.Background(), false)
	require.NoError(t, err)

	store.failPuts.Store(true)

	done := make(chan error, 1)
	go func() { done <- n.Run(context.Background()) }()

	// Each tick crosses the interval and triggers a failing seal
	var runErr error
	require.Eventually(t, func() bool {
		select {
		case runErr = <-done:
			return true
		default:
			_ = n.Tick(1, 1000)
			return false
		}
	}, 5*time.Second, time.Millisecond)

	require.ErrorIs(t, runErr, interfaces.ErrBackendUnavailable)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SealingSecret = "zz"
	_, err := New(cfg, newMemStore(), cryptoutils.DummyAttestationProvider{}, testLogger)
	require.Error(t, err)
}

func TestFactory(t *testing.T) {
	factory := NewFactory(testLogger, storage.NewStorageBackendFactory(testLogger))

	cfg := testConfig()
	cfg.StateLocations = []string{"file://" + t.TempDir()}

	ctrl, err := factory(cfg)
	require.NoError(t, err)

	identity, err := ctrl.Create(context.Background(), false)
	require.NoError(t, err)
	require.NotEmpty(t, identity.Cert)
	require.NotEmpty(t, identity.Quote)

	// A second controller over the same location recovers the same node
	recovered, err := factory(cfg)
	require.NoError(t, err)
	_, err = recovered.Create(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, ctrl.(*Node).NodeID(), recovered.(*Node).NodeID())

	cfg.StateLocations = []string{"ftp://nowhere"}
	_, err = factory(cfg)
	require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	cfg = testConfig()
	cfg.Attestation = "sgx"
	_, err = factory(cfg)
	require.Error(t, err)
}

func TestHostClock(t *testing.T) {
	var c HostClock

	_, ok := c.Now()
	require.False(t, ok)
	fallback := time.Unix(42, 0).UTC()
	require.Equal(t, fallback, c.Time(func() time.Time { return fallback }))

	c.Restore(100)
	now, ok := c.Now()
	require.True(t, ok)
	require.EqualValues(t, 100, now)

	c.Advance(50, 10)
	c.Advance(60, -5)
	now, _ = c.Now()
	require.EqualValues(t, 60, now)
	require.EqualValues(t, 10, c.Elapsed())

	// Restore never overrides reported time
	c.Restore(1000)
	now, _ = c.Now()
	require.EqualValues(t, 60, now)

	c.Advance(70, interfaces.Millis(1<<62))
	c.Advance(80, interfaces.Millis(1<<62))
	require.EqualValues(t, int64(math.MaxInt64), c.Elapsed())
}
