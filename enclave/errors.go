package enclave

import "errors"

var (
	// ErrCreationConflict is returned by Create once a node exists.
	ErrCreationConflict = errors.New("node already created")

	// ErrCapacityExceeded is returned when the certificate or quote does not
	// fit the capacity the caller supplied.
	ErrCapacityExceeded = errors.New("output capacity exceeded")

	// ErrConfigurationOrAttestation wraps failures of node construction and
	// of the node's own create: rejected configuration, failed attestation.
	ErrConfigurationOrAttestation = errors.New("node rejected configuration or failed attestation")

	// ErrUninitializedAccess is returned by Run and Tick before any
	// successful Create.
	ErrUninitializedAccess = errors.New("node not created")

	// ErrNodeFailure wraps errors the node reports from Run or Tick.
	ErrNodeFailure = errors.New("node failure")
)

// ErrorKind classifies errors returned by Enclave.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindCreationConflict
	KindCapacityExceeded
	KindConfigurationOrAttestation
	KindUninitializedAccess
	KindNodeFailure
	KindUnknown
)

// String returns kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCreationConflict:
		return "creation_conflict"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindConfigurationOrAttestation:
		return "configuration_or_attestation"
	case KindUninitializedAccess:
		return "uninitialized_access"
	case KindNodeFailure:
		return "node_failure"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of err. A nil error is KindNone.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCreationConflict):
		return KindCreationConflict
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, ErrConfigurationOrAttestation):
		return KindConfigurationOrAttestation
	case errors.Is(err, ErrUninitializedAccess):
		return KindUninitializedAccess
	case errors.Is(err, ErrNodeFailure):
		return KindNodeFailure
	default:
		return KindUnknown
	}
}
