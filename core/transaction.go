package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Transaction is the atomic record of value transfer: a sender, a recipient, an
// amount, an opaque payload and the signing material that authenticates it.
// A transaction with an empty Sender is a system/reward entry and is valid
// without a signature.
type Transaction struct {
	Sender        []byte `json:"sender"`
	Recipient     []byte `json:"recipient"`
	Amount        int64  `json:"amount"`
	Content       []byte `json:"content"`
	SignPublicKey []byte `json:"sign_public_key"`
	Signature     []byte `json:"signature"`
	Timestamp     int64  `json:"timestamp"` // unix nanoseconds at creation
}

// NewTransaction stamps the current time at construction.
func NewTransaction(sender, recipient []byte, amount int64, content []byte, signPub []byte) *Transaction {
	return &Transaction{
		Sender:        sender,
		Recipient:     recipient,
		Amount:        amount,
		Content:       content,
		SignPublicKey: signPub,
		Timestamp:     time.Now().UnixNano(),
	}
}

// ToCanonicalMap renders the transaction as a field->value map with byte
// fields hex-encoded and the timestamp as its decimal string. Key ordering
// in the map is irrelevant: canonicalHash sorts keys.
func (tx *Transaction) ToCanonicalMap() map[string]string {
	m := map[string]string{
		"sender":          hex.EncodeToString(tx.Sender),
		"recipient":       hex.EncodeToString(tx.Recipient),
		"amount":          strconv.FormatInt(tx.Amount, 10),
		"content":         hex.EncodeToString(tx.Content),
		"sign_public_key": hex.EncodeToString(tx.SignPublicKey),
		"timestamp":       strconv.FormatInt(tx.Timestamp, 10),
	}
	return m
}

// canonicalHash sorts map keys lexicographically, JSON-encodes the result
// and returns the SHA-256 hex digest. This is the one hashing primitive
// shared by Transaction and Block.
func canonicalHash(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		K string `json:"k"`
		V string `json:"v"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].K = k
		ordered[i].V = m[k]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		// ordered is a plain slice of strings; Marshal cannot fail.
		panic(fmt.Sprintf("canonicalHash: marshal: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CalculateHash is the SHA-256 hex of the canonical map minus the
// signature field.
func (tx *Transaction) CalculateHash() string {
	m := tx.ToCanonicalMap()
	delete(m, "signature")
	return canonicalHash(m)
}

// Sign assigns tx.Signature = signer.Sign(CalculateHash()). It fails with
// KindInvalidArgument if Sender or Recipient is absent.
func (tx *Transaction) Sign(signer Signer) error {
	if len(tx.Sender) == 0 || len(tx.Recipient) == 0 {
		return NewError(KindInvalidArgument, fmt.Errorf("sign: sender and recipient are required"))
	}
	sig, err := signer.Sign([]byte(tx.CalculateHash()))
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Verify returns true iff Signature and SignPublicKey are present and the
// signer verifies (CalculateHash, Signature) under SignPublicKey. A
// transaction with no Sender (a reward/system entry) is valid without a
// signature — see DESIGN.md's Open Question on reward transaction trust.
func (tx *Transaction) Verify() bool {
	if len(tx.Sender) == 0 {
		return true
	}
	if len(tx.Signature) == 0 || len(tx.SignPublicKey) == 0 {
		return false
	}
	return VerifyWithPublicKey(tx.SignPublicKey, []byte(tx.CalculateHash()), tx.Signature)
}

// IsReward reports whether tx is a system-minted entry (absent sender).
func (tx *Transaction) IsReward() bool { return len(tx.Sender) == 0 }
