// Package cryptoutils provides the cryptographic building blocks of an
// enclave node: its identity key and certificate, attestation quotes binding
// that certificate to the enclave, and sealing of node state for storage
// outside the enclave.
//
// # Attestation
//
// AttestationProvider produces a quote over 64 bytes of report data:
//
//   - DCAPAttestationProvider: TDX quotes via configfs-tsm or the TDX guest device
//   - RemoteAttestationProvider: quotes from an HTTP quote provider
//   - DummyAttestationProvider: deterministic non-hardware quotes for development
//
// A node binds its certificate to a quote with CertReportData, which places
// sha256(certificate DER) in the first 32 bytes of the report data.
// VerifyDCAPAttestation checks a DCAP quote and its report data and returns
// the TD measurements.
//
// # Sealing
//
// Sealed blobs use AES-256-GCM with a key derived by DeriveSealingKey
// (Argon2id over the sealing secret, salted with a purpose label). The
// format is:
//
//	[version (1 byte)][nonce (12 bytes)][ciphertext with GCM tag]
//
// # Usage Example
//
//	key := cryptoutils.DeriveSealingKey(secret, "my-service")
//	sealed, err := cryptoutils.Seal(key, plaintext, []byte("node-key"))
//	if err != nil {
//	    return err
//	}
//	plaintext, err = cryptoutils.Unseal(key, sealed, []byte("node-key"))
package cryptoutils
