package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Attestation provider names accepted in NodeConfig.Attestation.
const (
	AttestationDummy  = "dummy"
	AttestationDCAP   = "qemu-tdx"
	AttestationRemote = "remote"
)

// NodeConfig is the configuration record handed to the enclave on create.
// The enclave core itself only reads Debug; everything else belongs to the
// node controller.
type NodeConfig struct {
	// ServiceName namespaces sealed state in the state stores.
	ServiceName string `yaml:"service_name" json:"service_name"`

	// SubjectName is the common name of the node certificate.
	SubjectName string `yaml:"subject_name" json:"subject_name"`

	// Attestation selects the quote provider: dummy, qemu-tdx or remote.
	Attestation string `yaml:"attestation" json:"attestation"`

	// RemoteAttestationAddr is the base URL of a remote quote provider.
	// Required when Attestation is "remote".
	RemoteAttestationAddr string `yaml:"remote_attestation_addr" json:"remote_attestation_addr"`

	// StateLocations lists storage URIs (file://, s3://, vault://) sealed
	// node state is written to and recovered from.
	StateLocations []string `yaml:"state_locations" json:"state_locations"`

	// SealingSecret is the hex encoded secret the sealing key is derived from.
	SealingSecret string `yaml:"sealing_secret" json:"sealing_secret"`

	// CertValidity is the lifetime of the node certificate.
	CertValidity time.Duration `yaml:"cert_validity" json:"cert_validity"`

	// SealInterval is how much host time passes between state re-seals
	// while the node runs.
	SealInterval time.Duration `yaml:"seal_interval" json:"seal_interval"`

	Debug DebugConfig `yaml:"debug" json:"debug"`
}

// DebugConfig carries settings that only matter for debug builds.
type DebugConfig struct {
	// MemoryReserveStartup is the size in bytes of the block reserved at
	// node creation by builds tagged debugconfig.
	MemoryReserveStartup uint64 `yaml:"memory_reserve_startup" json:"memory_reserve_startup"`
}

// SealingSecretBytes decodes SealingSecret.
func (c *NodeConfig) SealingSecretBytes() ([]byte, error) {
	secret, err := hex.DecodeString(c.SealingSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid sealing secret: %w", err)
	}
	if len(secret) < 32 {
		return nil, errors.New("sealing secret must be at least 32 bytes")
	}
	return secret, nil
}

// Validate checks the fields the node controller depends on.
func (c *NodeConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if c.SubjectName == "" {
		return errors.New("subject_name is required")
	}
	switch c.Attestation {
	case AttestationDummy, AttestationDCAP:
	case AttestationRemote:
		if c.RemoteAttestationAddr == "" {
			return errors.New("remote_attestation_addr is required for remote attestation")
		}
	default:
		return fmt.Errorf("unsupported attestation type: %q", c.Attestation)
	}
	if len(c.StateLocations) == 0 {
		return errors.New("at least one state location is required")
	}
	if _, err := c.SealingSecretBytes(); err != nil {
		return err
	}
	if c.CertValidity <= 0 {
		return errors.New("cert_validity must be positive")
	}
	if c.SealInterval <= 0 {
		return errors.New("seal_interval must be positive")
	}
	return nil
}
