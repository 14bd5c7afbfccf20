// Package cryptox implements field-level encryption for sensitive record
// columns. Values are sealed into versioned envelopes with AES-256-GCM, one
// fresh random IV per encryption. The cache key for a decrypted value is a
// fingerprint of the ciphertext, never of the plaintext, so cache keys leak
// nothing; the flip side is that two encryptions of the same plaintext get
// different fingerprints and miss each other in the cache.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// EnvelopeVersion is the current envelope format version.
	EnvelopeVersion byte = 1

	ivSize  = 12
	tagSize = 16
	keySize = 32
)

var (
	// ErrDecryption covers tampered ciphertext and wrong-key failures.
	ErrDecryption = errors.New("decryption failed")

	// ErrUnsupportedVersion means the envelope was written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported envelope version")

	// ErrMalformedEnvelope means the stored blob cannot be parsed at all.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")
)

// Envelope is the encrypted-at-rest representation of a single field.
// Envelopes are immutable; re-encrypting a value produces a new envelope.
type Envelope struct {
	Version    byte
	IV         []byte
	Ciphertext []byte
	AuthTag    []byte
}

// MarshalBinary encodes the envelope as version || iv || ciphertext || tag.
func (e Envelope) MarshalBinary() ([]byte, error) {
	if len(e.IV) != ivSize || len(e.AuthTag) != tagSize {
		return nil, ErrMalformedEnvelope
	}
	buf := make([]byte, 0, 1+ivSize+len(e.Ciphertext)+tagSize)
	buf = append(buf, e.Version)
	buf = append(buf, e.IV...)
	buf = append(buf, e.Ciphertext...)
	buf = append(buf, e.AuthTag...)
	return buf, nil
}

// UnmarshalEnvelope parses a stored blob back into an Envelope.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	if len(b) < 1+ivSize+tagSize {
		return Envelope{}, ErrMalformedEnvelope
	}
	e := Envelope{
		Version:    b[0],
		IV:         bytes.Clone(b[1 : 1+ivSize]),
		Ciphertext: bytes.Clone(b[1+ivSize : len(b)-tagSize]),
		AuthTag:    bytes.Clone(b[len(b)-tagSize:]),
	}
	return e, nil
}

// Fingerprint returns a non-reversible cache key derived from the ciphertext.
func Fingerprint(e Envelope) string {
	h := sha256.New()
	h.Write(e.IV)
	h.Write(e.Ciphertext)
	h.Write(e.AuthTag)
	return hex.EncodeToString(h.Sum(nil))
}

// DeriveKey derives a 256-bit key from a passphrase and salt with argon2id.
// Used when the host hands over a passphrase instead of raw key bytes.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}

// Service encrypts and decrypts field values under a single AES-256 key.
// The key is supplied once at construction and never exposed again.
type Service struct {
	aead cipher.AEAD
}

// NewService builds a Service from 32 bytes of key material.
func NewService(key []byte) (*Service, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Service{aead: aead}, nil
}

// Encrypt seals plaintext into a new envelope. The IV is generated here and
// cannot be supplied by the caller; IV reuse under one key breaks GCM.
func (s *Service) Encrypt(plaintext string) (Envelope, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("iv generation failed: %w", err)
	}

	sealed := s.aead.Seal(nil, iv, []byte(plaintext), nil)

	return Envelope{
		Version:    EnvelopeVersion,
		IV:         iv,
		Ciphertext: sealed[:len(sealed)-tagSize],
		AuthTag:    sealed[len(sealed)-tagSize:],
	}, nil
}

// Decrypt opens an envelope. It fails with ErrUnsupportedVersion for unknown
// formats and ErrDecryption when the auth tag does not validate, which covers
// both tampering and a wrong key.
func (s *Service) Decrypt(e Envelope) (string, error) {
	if e.Version != EnvelopeVersion {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, e.Version)
	}
	if len(e.IV) != ivSize || len(e.AuthTag) != tagSize {
		return "", ErrMalformedEnvelope
	}

	sealed := make([]byte, 0, len(e.Ciphertext)+tagSize)
	sealed = append(sealed, e.Ciphertext...)
	sealed = append(sealed, e.AuthTag...)

	plaintext, err := s.aead.Open(nil, e.IV, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
