package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// StateKey names a sealed state slot within a store.
type StateKey string

// NewStateKey builds the key for an item of a service's sealed state.
func NewStateKey(service, item string) StateKey {
	return StateKey(fmt.Sprintf("%s/%s", service, item))
}

// String returns the key as used in object paths.
func (k StateKey) String() string {
	return string(k)
}

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "vault":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme: %s", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
	}, nil
}

// String returns the URI with any password redacted.
func (loc StorageBackendLocation) String() string {
	u, err := url.Parse(loc.Raw)
	if err != nil {
		return loc.Raw
	}
	return u.Redacted()
}

// URL re-parses the location, including any embedded credentials.
func (loc StorageBackendLocation) URL() (*url.URL, error) {
	u, err := url.Parse(loc.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}
	return u, nil
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrStateNotFound is returned when no state is stored under the requested key.
	ErrStateNotFound = errors.New("state not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StateStore provides keyed storage for sealed node state. Put overwrites.
type StateStore interface {
	// Get retrieves the blob stored under key.
	Get(ctx context.Context, key StateKey) ([]byte, error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key StateKey, data []byte) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StateStoreFactory creates state stores.
type StateStoreFactory interface {
	// StateStoreFor creates a store from a location.
	// Supports file://, s3://, vault://
	StateStoreFor(location StorageBackendLocation) (StateStore, error)

	// CreateMultiStore creates an aggregated store writing to every location.
	CreateMultiStore(locations []StorageBackendLocation) (StateStore, error)
}
