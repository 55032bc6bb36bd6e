package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// NodeCert represents a node certificate in PEM format.
type NodeCert []byte

// NewNodeCert creates a new certificate object from PEM-encoded data with validation.
func NewNodeCert(data []byte) (NodeCert, error) {
	// Validate PEM format
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return NodeCert{}, errors.New("invalid certificate: not in PEM format or not a certificate")
	}

	// Validate certificate structure
	_, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return NodeCert{}, fmt.Errorf("invalid certificate structure: %w", err)
	}

	return NodeCert(data), nil
}

// Validate checks if the certificate is properly formed.
func (cert NodeCert) Validate() error {
	_, err := NewNodeCert(cert)
	return err
}

// DER returns the DER bytes of the certificate.
func (cert NodeCert) DER() ([]byte, error) {
	block, _ := pem.Decode(cert)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return block.Bytes, nil
}

// GetX509Cert returns the parsed X.509 certificate.
func (cert NodeCert) GetX509Cert() (*x509.Certificate, error) {
	der, err := cert.DER()
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

// IsExpiredAt checks if the certificate has expired at the given time.
func (cert NodeCert) IsExpiredAt(now time.Time) (bool, error) {
	x509Cert, err := cert.GetX509Cert()
	if err != nil {
		return false, err
	}
	return x509Cert.NotAfter.Before(now), nil
}

// NodeKey represents a node's private key in PEM format.
type NodeKey []byte

// NewNodeKey creates a new private key object from PEM-encoded data with validation.
func NewNodeKey(data []byte) (NodeKey, error) {
	key := NodeKey(data)
	if _, err := key.GetPrivateKey(); err != nil {
		return NodeKey{}, fmt.Errorf("invalid node key: %w", err)
	}
	return key, nil
}

// GetPrivateKey returns the parsed ECDSA private key.
func (key NodeKey) GetPrivateKey() (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(key)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, errors.New("failed to decode EC private key PEM block")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

// RandomNodeKey generates a fresh P-256 node key.
func RandomNodeKey() (NodeKey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	}), nil
}
