// Package config loads the node configuration file handed to the enclave on
// create.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ruteri/tee-enclave-node/interfaces"
	"gopkg.in/yaml.v3"
)

// SealingSecretEnv overrides sealing_secret when set, so the secret does not
// have to live in the config file.
const SealingSecretEnv = "ENCLAVE_NODE_SEALING_SECRET"

const (
	DefaultCertValidity = 365 * 24 * time.Hour
	DefaultSealInterval = 5 * time.Minute
)

// LoadNodeConfig reads, defaults and validates a YAML (or JSON) node config.
// Unknown fields are rejected.
func LoadNodeConfig(path string) (*interfaces.NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseNodeConfig(data)
}

// ParseNodeConfig is LoadNodeConfig for an in-memory document.
func ParseNodeConfig(data []byte) (*interfaces.NodeConfig, error) {
	var cfg interfaces.NodeConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	if secret := os.Getenv(SealingSecretEnv); secret != "" {
		cfg.SealingSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills in optional fields left empty.
func ApplyDefaults(cfg *interfaces.NodeConfig) {
	if cfg.Attestation == "" {
		cfg.Attestation = interfaces.AttestationDummy
	}
	if cfg.SubjectName == "" {
		cfg.SubjectName = cfg.ServiceName
	}
	if cfg.CertValidity == 0 {
		cfg.CertValidity = DefaultCertValidity
	}
	if cfg.SealInterval == 0 {
		cfg.SealInterval = DefaultSealInterval
	}
}
