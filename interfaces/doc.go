// Package interfaces defines the contracts between the enclave bootstrap core,
// the node it creates and the storage the node seals its state into.
//
// The package separates interface definitions from their implementations so
// the enclave core can be tested against small test doubles while the real
// node controller, storage backends and attestation providers live in their
// own packages.
//
// # Node Interfaces
//
//   - NodeController: the collaborator the enclave delegates create, run and
//     tick to. Exactly one is ever published per enclave.
//   - StagedNodeController: a NodeController whose create persists nothing
//     until the enclave commits it.
//   - NodeFactory: constructs a NodeController from a NodeConfig.
//
// # Storage Interfaces
//
//   - StateStore: keyed blob storage for sealed node state
//   - StateStoreFactory: creates stores from location URIs
//
// # Type Definitions
//
//   - NodeConfig / DebugConfig: the node configuration record
//   - NodeIdentity: the certificate and quote produced by a node at creation
//   - TimePoint / Millis: host supplied time values, see ConvertTime in the
//     enclave package
//
// # Error Types
//
// Standard errors returned by storage operations:
//
//   - ErrStateNotFound: no state stored under the requested key
//   - ErrBackendUnavailable: storage backend is not accessible
//   - ErrInvalidLocationURI: storage location URI is malformed
package interfaces
