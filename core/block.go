package core

import (
	"encoding/hex"
	"strconv"
)

// Block binds an index, previous-hash, timestamp, an ordered transaction
// list and a nonce. Hash is authoritative once set; validation recomputes
// it and requires an exact match.
type Block struct {
	Index        uint64         `json:"index"`
	PreviousHash string         `json:"previous_hash"`
	Timestamp    float64        `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
	Nonce        uint64         `json:"nonce"`
	Hash         string         `json:"hash"`
}

// GenesisBlock returns the fixed, content-independent first block shared by
// every honest node.
func GenesisBlock() *Block {
	b := &Block{
		Index:        0,
		PreviousHash: "0",
		Timestamp:    0,
		Transactions: []*Transaction{},
		Nonce:        0,
	}
	b.Hash = b.CalculateHash()
	return b
}

// ToCanonicalMap mirrors Transaction.ToCanonicalMap, emitting each
// transaction via its own canonical map.
func (b *Block) ToCanonicalMap() map[string]string {
	txHashes := make([]string, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txHashes = append(txHashes, canonicalHash(tx.ToCanonicalMap()))
	}
	return map[string]string{
		"index":         strconv.FormatUint(b.Index, 10),
		"previous_hash": b.PreviousHash,
		"timestamp":     strconv.FormatFloat(b.Timestamp, 'f', -1, 64),
		"transactions":  hex.EncodeToString([]byte(canonicalHashList(txHashes))),
		"nonce":         strconv.FormatUint(b.Nonce, 10),
	}
}

// canonicalHashList joins pre-computed per-transaction hashes into a single
// deterministic string so the block map keeps a flat string->string shape
//.
func canonicalHashList(hashes []string) string {
	out := make([]byte, 0, len(hashes)*65)
	for _, h := range hashes {
		out = append(out, h...)
		out = append(out, '|')
	}
	return string(out)
}

// CalculateHash is the SHA-256 hex of the canonical map over
// {index, previous_hash, timestamp, transactions, nonce}.
func (b *Block) CalculateHash() string {
	return canonicalHash(b.ToCanonicalMap())
}
