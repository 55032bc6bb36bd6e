package node

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/tee-enclave-node/cryptoutils"
	"github.com/ruteri/tee-enclave-node/interfaces"
)

// NewFactory returns the node factory the enclave uses on create. State
// stores are opened through storeFactory and the attestation provider is
// picked from the configuration.
func NewFactory(log *slog.Logger, storeFactory interfaces.StateStoreFactory) interfaces.NodeFactory {
	return func(cfg *interfaces.NodeConfig) (interfaces.NodeController, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		attester, err := AttestationProviderFor(cfg)
		if err != nil {
			return nil, err
		}

		locations := make([]interfaces.StorageBackendLocation, 0, len(cfg.StateLocations))
		for _, uri := range cfg.StateLocations {
			location, err := interfaces.NewStorageBackendLocation(uri)
			if err != nil {
				return nil, err
			}
			locations = append(locations, location)
		}

		store, err := storeFactory.CreateMultiStore(locations)
		if err != nil {
			return nil, fmt.Errorf("opening state stores: %w", err)
		}

		log.Debug("Constructing node controller",
			slog.String("attestation", attester.AttestationType().String()),
			slog.String("stateStore", store.LocationURI()))

		return New(cfg, store, attester, log)
	}
}

// AttestationProviderFor selects the quote provider named in cfg.
func AttestationProviderFor(cfg *interfaces.NodeConfig) (cryptoutils.AttestationProvider, error) {
	attestationType, err := cryptoutils.AttestationTypeFromString(cfg.Attestation)
	if err != nil {
		return nil, fmt.Errorf("attestation %q: %w", cfg.Attestation, err)
	}

	switch attestationType.StringID {
	case cryptoutils.DCAPAttestation.StringID:
		return cryptoutils.DCAPAttestationProvider{}, nil
	case cryptoutils.RemoteAttestation.StringID:
		return &cryptoutils.RemoteAttestationProvider{
			Address: cfg.RemoteAttestationAddr,
			Client:  &http.Client{Timeout: 30 * time.Second},
		}, nil
	default:
		return cryptoutils.DummyAttestationProvider{}, nil
	}
}
