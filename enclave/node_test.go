package enclave

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/tee-enclave-node/cryptoutils"
	"github.com/ruteri/tee-enclave-node/interfaces"
	"github.com/ruteri/tee-enclave-node/node"
	"github.com/ruteri/tee-enclave-node/storage"
	"github.com/stretchr/testify/require"
)

func nodeConfig(t *testing.T) *interfaces.NodeConfig {
	return &interfaces.NodeConfig{
		ServiceName:    "ledger",
		SubjectName:    "node.ledger.local",
		Attestation:    interfaces.AttestationDummy,
		StateLocations: []string{"file://" + t.TempDir()},
		SealingSecret:  strings.Repeat("11", 32),
		CertValidity:   time.Hour,
		SealInterval:   time.Minute,
	}
}

func TestEnclave_RejectedCreateKeepsSealedState(t *testing.T) {
	cfg := nodeConfig(t)
	factory := node.NewFactory(testLogger(), storage.NewStorageBackendFactory(testLogger()))
	ctx := context.Background()

	// A create rejected for capacity seals nothing, so a fresh create still works
	_, err := New(factory, testLogger()).Create(ctx, cfg, CreateRequest{CertCapacity: 1, QuoteCapacity: NoCapacityLimit})
	require.ErrorIs(t, err, ErrCapacityExceeded)
	_, err = New(factory, testLogger()).Create(ctx, cfg, unlimited(true))
	require.ErrorIs(t, err, node.ErrNoSealedState)

	first := New(factory, testLogger())
	firstIdentity, err := first.Create(ctx, cfg, unlimited(false))
	require.NoError(t, err)

	// A second fresh node must not replace the first one's key
	_, err = New(factory, testLogger()).Create(ctx, cfg, CreateRequest{CertCapacity: 1, QuoteCapacity: NoCapacityLimit})
	require.ErrorIs(t, err, node.ErrStateExists)

	// A recovering node rejected for capacity leaves the key in place too
	_, err = New(factory, testLogger()).Create(ctx, cfg, CreateRequest{Recover: true, CertCapacity: 1, QuoteCapacity: NoCapacityLimit})
	require.ErrorIs(t, err, ErrCapacityExceeded)

	recovered := New(factory, testLogger())
	identity, err := recovered.Create(ctx, cfg, unlimited(true))
	require.NoError(t, err)
	requireSamePublicKey(t, firstIdentity.Cert, identity.Cert)
}

func requireSamePublicKey(t *testing.T, want, got []byte) {
	t.Helper()

	wantCert, err := cryptoutils.NodeCert(want).GetX509Cert()
	require.NoError(t, err)
	gotCert, err := cryptoutils.NodeCert(got).GetX509Cert()
	require.NoError(t, err)
	require.True(t, wantCert.PublicKey.(*ecdsa.PublicKey).Equal(gotCert.PublicKey))
}
