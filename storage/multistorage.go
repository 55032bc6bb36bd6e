package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/tee-enclave-node/interfaces"
)

// MultiStorageBackend implements interfaces.StateStore over several backends.
// Writes must reach every backend, so any backend holding a key holds the
// last acknowledged value and reads may fall back between them.
type MultiStorageBackend struct {
	backends []interfaces.StateStore
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with read fallback
func NewMultiStorageBackend(backends []interfaces.StateStore, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Get returns the value from the first available backend holding key.
// ErrStateNotFound is returned only if every backend answered and reported
// the key as missing. An unavailable backend may hold the key, so it counts
// as a failure.
func (m *MultiStorageBackend) Get(ctx context.Context, key interfaces.StateKey) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key.String()))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := backend.Get(ctx, key)
		if err == nil {
			m.log.Info("Successfully fetched state",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrStateNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("key", key.String()),
			"err", err)
	}

	if len(errs) > 0 && notFound == len(errs) {
		return nil, interfaces.ErrStateNotFound
	}

	m.log.Error("All backends failed to fetch state",
		slog.String("key", key.String()),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("%w: all backends failed to fetch %s: %v", interfaces.ErrBackendUnavailable, key, errs)
}

// Put saves data to every backend. It fails if any backend is unavailable
// or rejects the write; backends that did accept it keep the new value.
func (m *MultiStorageBackend) Put(ctx context.Context, key interfaces.StateKey, data []byte) error {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Warn("Backend unavailable for store",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key.String()))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		if err := backend.Put(ctx, key, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key.String()),
				"err", err)
			continue
		}

		m.log.Debug("Stored state",
			slog.String("backend_name", backend.Name()),
			slog.String("key", key.String()))
	}

	if len(m.backends) == 0 {
		return fmt.Errorf("%w: no backends configured", interfaces.ErrBackendUnavailable)
	}

	if len(errs) > 0 {
		m.log.Error("Failed to store state to every backend",
			slog.String("key", key.String()),
			slog.Int("failed_backends", len(errs)),
			slog.Int("backends", len(m.backends)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("%w: %d of %d backends failed to store %s: %v", interfaces.ErrBackendUnavailable, len(errs), len(m.backends), key, errs)
	}

	return nil
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined location URI of all backends.
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
