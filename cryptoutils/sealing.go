package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const sealFormatVersion = 1

// ErrUnseal is returned when a sealed blob cannot be opened with the given
// key and additional data.
var ErrUnseal = errors.New("failed to unseal data")

// DeriveSealingKey derives a 32-byte AES key from secret using Argon2id.
// label separates keys derived from the same secret for different purposes.
func DeriveSealingKey(secret []byte, label string) []byte {
	salt := append([]byte("TEE-NODE-SEALING-KEY-"), []byte(label)...)

	// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext with AES-GCM under key, authenticating aad.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := make([]byte, 0, 1+len(nonce)+len(plaintext)+aesGCM.Overhead())
	sealed = append(sealed, sealFormatVersion)
	sealed = append(sealed, nonce...)
	return aesGCM.Seal(sealed, nonce, plaintext, aad), nil
}

// Unseal reverses Seal. It fails with ErrUnseal on a wrong key, tampered
// data or mismatched aad.
func Unseal(key, sealed, aad []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := aesGCM.NonceSize()
	if len(sealed) < 1+nonceSize+aesGCM.Overhead() {
		return nil, fmt.Errorf("%w: sealed data too short", ErrUnseal)
	}
	if sealed[0] != sealFormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrUnseal, sealed[0])
	}

	nonce := sealed[1 : 1+nonceSize]
	plaintext, err := aesGCM.Open(nil, nonce, sealed[1+nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnseal, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
