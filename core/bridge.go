package core

import (
	"encoding/hex"
	"sync"
)

// HostBridge is the boundary the UI implements and the core invokes. The core never blocks waiting on it; each
// method should return quickly or hand off to their own goroutine.
type HostBridge interface {
	// OnMessage is called when a message transaction addressed to this
	// node is accepted into the mempool or confirmed in a block.
	OnMessage(selfPubKey, peerPubKey []byte, tx *Transaction)
	// OnPeersChanged is called whenever the peer set changes. Optional:
	// a nil HostBridge or a no-op implementation is fine.
	OnPeersChanged(peers []Peer)
	// OnBlockAppended is called whenever a new block is appended to the
	// local chain, whether mined locally or received from a peer.
	OnBlockAppended(block *Block)
}

// NoopBridge is a HostBridge that does nothing; used when no UI is wired.
type NoopBridge struct{}

func (NoopBridge) OnMessage([]byte, []byte, *Transaction) {}
func (NoopBridge) OnPeersChanged([]Peer)                  {}
func (NoopBridge) OnBlockAppended(*Block)                 {}

// SharedKeyCache maps a peer's agreement public key to the derived 32-byte
// symmetric key, populated lazily on first send or decrypt and never
// evicted during a run.
type SharedKeyCache struct {
	mu        sync.Mutex
	agreement KeyAgreement
	cipher    Cipher
	keys      map[string][]byte
}

// NewSharedKeyCache wraps the local KeyAgreement and a Cipher used for
// encrypt/decrypt once a shared key is derived.
func NewSharedKeyCache(agreement KeyAgreement, cipher Cipher) *SharedKeyCache {
	return &SharedKeyCache{agreement: agreement, cipher: cipher, keys: make(map[string][]byte)}
}

// keyFor derives (and caches) the shared key for peerPublicValue.
func (c *SharedKeyCache) keyFor(peerPublicValue []byte) ([]byte, error) {
	id := hex.EncodeToString(peerPublicValue)
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.keys[id]; ok {
		return k, nil
	}
	k, err := c.agreement.SharedSecret(peerPublicValue)
	if err != nil {
		return nil, err
	}
	c.keys[id] = k
	return k, nil
}

// Encrypt derives the shared key for peerPublicValue (if not already
// cached) and seals plaintext under it.
func (c *SharedKeyCache) Encrypt(peerPublicValue, plaintext []byte) ([]byte, error) {
	key, err := c.keyFor(peerPublicValue)
	if err != nil {
		return nil, err
	}
	return c.cipher.Encrypt(key, plaintext)
}

// Decrypt derives the shared key for peerPublicValue (if not already
// cached) and opens ciphertext under it.
func (c *SharedKeyCache) Decrypt(peerPublicValue, ciphertext []byte) ([]byte, error) {
	key, err := c.keyFor(peerPublicValue)
	if err != nil {
		return nil, err
	}
	return c.cipher.Decrypt(key, ciphertext)
}
