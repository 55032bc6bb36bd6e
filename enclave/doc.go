// Package enclave is the trusted bootstrap boundary of a confidential-computing
// node. It is the only code that may create the node's in-enclave state.
//
// An Enclave is an explicit context object constructed once per process. It
// guarantees that at most one node controller is ever published, even when
// the host calls Create concurrently, and forwards the host's run and tick
// calls to that controller.
//
// # Typed API
//
// Enclave.Create, Enclave.Run and Enclave.Tick return errors classified by
// ErrorKind:
//
//   - KindCreationConflict: a node already exists
//   - KindCapacityExceeded: certificate or quote larger than the caller allows
//   - KindConfigurationOrAttestation: the node rejected its configuration or
//     could not produce a quote
//   - KindUninitializedAccess: run or tick before any successful create
//   - KindNodeFailure: the node's run or tick reported a failure
//
// # Literal boundary
//
// Boundary collapses every error to a boolean and works on caller-owned
// output buffers, matching what an untrusted host expects from an ecall
// table. No structured error crosses it.
//
// # Time
//
// The enclave cannot read a trusted wall clock. The host injects time through
// Tick; ConvertTime reinterprets the host's integers without scaling,
// clamping or monotonicity checks. Any policy on host time belongs to the
// node controller.
//
// # Debug builds
//
// Builds tagged debugconfig reserve NodeConfig.Debug.MemoryReserveStartup
// bytes on create, held until Close, to pin address space for external memory
// inspection tooling.
package enclave
