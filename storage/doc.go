// Package storage provides keyed storage for sealed node state with pluggable
// backends.
//
// A node seals its identity key and periodic state records and writes them
// outside the enclave, so a later enclave instance started in recover mode
// can restore them. Every backend implements interfaces.StateStore:
//
//   - File system storage for local development and single-host deployments
//   - S3-compatible storage for cloud deployments
//   - Vault KV v2 storage
//
// Data handed to a store is already sealed; backends never see plaintext.
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/enclave-node/state/
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=custom.s3.com
//   - vault://vault.example.com:8200/secret/enclave-node?tls=true
//
// # Keys
//
// State is addressed by interfaces.StateKey, "<service>/<item>". Put
// replaces whatever was stored under the key.
//
// # Redundancy
//
// MultiStorageBackend acknowledges a write only once every backend holds it,
// and reads from the first backend holding the key. A key is reported
// missing only when every backend answered that it is.
// StorageBackendFactory.CreateMultiStore builds one from a list of
// locations and fails if any of them cannot be opened.
package storage
