package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/tee-enclave-node/interfaces"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("ab", 32)

func TestLoadNodeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service_name: ledger
attestation: qemu-tdx
state_locations:
  - file:///var/lib/enclave-node
sealing_secret: `+testSecret+`
seal_interval: 30s
debug:
  memory_reserve_startup: 1048576
`), 0600))

	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	require.Equal(t, "ledger", cfg.ServiceName)
	require.Equal(t, "ledger", cfg.SubjectName)
	require.Equal(t, interfaces.AttestationDCAP, cfg.Attestation)
	require.Equal(t, DefaultCertValidity, cfg.CertValidity)
	require.Equal(t, 30*time.Second, cfg.SealInterval)
	require.EqualValues(t, 1<<20, cfg.Debug.MemoryReserveStartup)
}

func TestParseNodeConfig_JSON(t *testing.T) {
	cfg, err := ParseNodeConfig([]byte(`{"service_name":"ledger","subject_name":"node.ledger","state_locations":["file:///tmp/x"],"sealing_secret":"` + testSecret + `","cert_validity":"24h"}`))
	require.NoError(t, err)
	require.Equal(t, "node.ledger", cfg.SubjectName)
	require.Equal(t, interfaces.AttestationDummy, cfg.Attestation)
	require.Equal(t, 24*time.Hour, cfg.CertValidity)
}

func TestParseNodeConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "service_name: a\nbogus: 1\n"},
		{"missing service", "state_locations: [file:///x]\nsealing_secret: " + testSecret + "\n"},
		{"no locations", "service_name: a\nsealing_secret: " + testSecret + "\n"},
		{"short secret", "service_name: a\nstate_locations: [file:///x]\nsealing_secret: abcd\n"},
		{"bad attestation", "service_name: a\nattestation: sgx\nstate_locations: [file:///x]\nsealing_secret: " + testSecret + "\n"},
		{"remote without address", "service_name: a\nattestation: remote\nstate_locations: [file:///x]\nsealing_secret: " + testSecret + "\n"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNodeConfig([]byte(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestParseNodeConfig_SecretFromEnv(t *testing.T) {
	t.Setenv(SealingSecretEnv, testSecret)

	cfg, err := ParseNodeConfig([]byte("service_name: a\nstate_locations: [file:///x]\n"))
	require.NoError(t, err)
	require.Equal(t, testSecret, cfg.SealingSecret)
}
