// Package core implements the meshline P2P encrypted-messenger substrate:
// transactions, blocks, the proof-of-work chain, peer discovery, the framed
// TCP transport and the sync manager that ties them together.
package core

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// Signer is the narrow asymmetric-signature capability the core depends on.
// Concrete construction (curve, encoding) is an implementation detail; the
// core only ever signs and verifies opaque byte strings.
type Signer interface {
	Sign(msg []byte) (sig []byte, err error)
	Verify(pub, msg, sig []byte) bool
	PublicKey() []byte
}

// KeyAgreement is the authenticated key-agreement capability used to derive
// a per-pair symmetric key without a prior handshake round trip.
type KeyAgreement interface {
	PublicValue() []byte
	SharedSecret(peerPublicValue []byte) ([]byte, error)
}

// Cipher is the symmetric-encryption capability used to seal message
// payloads under a 32-byte key derived from a KeyAgreement.
type Cipher interface {
	Encrypt(key, plaintext []byte) (ciphertext []byte, err error)
	Decrypt(key, ciphertext []byte) (plaintext []byte, err error)
}

// Ed25519Signer is the default Signer, using Go's standard ed25519
// implementation for both signing and verification.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// NewEd25519SignerFromSeed reconstructs a signer from a fixed 32-byte seed,
// primarily for deterministic tests.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (s *Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, msg), nil
}

func (s *Ed25519Signer) Verify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

func (s *Ed25519Signer) PublicKey() []byte { return []byte(s.pub) }

// VerifyWithPublicKey is a package-level helper so transaction/block
// verification does not need to hold a live Signer instance — it only
// needs the claimed public key bytes, matching a standalone verify(pub) call.
func VerifyWithPublicKey(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// X25519Agreement is the default KeyAgreement, using x/crypto/curve25519
// directly for Diffie-Hellman key exchange.
type X25519Agreement struct {
	priv [32]byte
	pub  [32]byte
}

// NewX25519Agreement generates a fresh X25519 keypair.
func NewX25519Agreement() (*X25519Agreement, error) {
	var priv [32]byte
	if _, err := cryptorand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("generate x25519 key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive x25519 public value: %w", err)
	}
	var a X25519Agreement
	a.priv = priv
	copy(a.pub[:], pub)
	return &a, nil
}

func (a *X25519Agreement) PublicValue() []byte { return append([]byte(nil), a.pub[:]...) }

// SharedSecret derives a 32-byte secret from the peer's public value via
// X25519 scalar multiplication. The result is used directly as a symmetric
// key; a production variant should run it through a KDF (e.g. HKDF) before
// use, but this module's domain does not call for it, so neither
// does this (see DESIGN.md).
func (a *X25519Agreement) SharedSecret(peerPublicValue []byte) ([]byte, error) {
	if len(peerPublicValue) != 32 {
		return nil, errors.New("peer public value must be 32 bytes")
	}
	secret, err := curve25519.X25519(a.priv[:], peerPublicValue)
	if err != nil {
		return nil, fmt.Errorf("x25519 agreement: %w", err)
	}
	return secret, nil
}

// ChaChaCipher is the default Cipher: XChaCha20-Poly1305 with a
// nonce-prefixed ciphertext blob.
type ChaChaCipher struct{}

func (ChaChaCipher) Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("key must be 32 bytes")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := cryptorand.Read(nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

func (ChaChaCipher) Decrypt(key, blob []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("key must be 32 bytes")
	}
	minLen := chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(blob) < minLen {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}
