package core

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// txWire is the interoperable JSON shape of a Transaction: hex-or-null byte
// fields (content as a plain hex string), the timestamp as its decimal string. Transaction.MarshalJSON/
// UnmarshalJSON convert to/from this shape while the in-memory Transaction
// keeps plain []byte fields for hashing.
type txWire struct {
	Sender        *string `json:"sender"`
	Recipient     *string `json:"recipient"`
	Amount        int64   `json:"amount"`
	Content       string  `json:"content"`
	Signature     *string `json:"signature"`
	SignPublicKey *string `json:"sign_public_key"`
	Timestamp     string  `json:"timestamp"`
}

func hexOrNil(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := hex.EncodeToString(b)
	return &s
}

func nilOrHex(s *string) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return hex.DecodeString(*s)
}

// MarshalJSON renders the transaction in its interoperable wire shape.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	w := txWire{
		Sender:        hexOrNil(tx.Sender),
		Recipient:     hexOrNil(tx.Recipient),
		Amount:        tx.Amount,
		Content:       hex.EncodeToString(tx.Content),
		Signature:     hexOrNil(tx.Signature),
		SignPublicKey: hexOrNil(tx.SignPublicKey),
		Timestamp:     strconv.FormatInt(tx.Timestamp, 10),
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the interoperable wire shape back into a Transaction.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var w txWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	sender, err := nilOrHex(w.Sender)
	if err != nil {
		return err
	}
	recipient, err := nilOrHex(w.Recipient)
	if err != nil {
		return err
	}
	content, err := hex.DecodeString(w.Content)
	if err != nil {
		return err
	}
	sig, err := nilOrHex(w.Signature)
	if err != nil {
		return err
	}
	pub, err := nilOrHex(w.SignPublicKey)
	if err != nil {
		return err
	}
	ts, err := strconv.ParseInt(w.Timestamp, 10, 64)
	if err != nil {
		return err
	}
	tx.Sender = sender
	tx.Recipient = recipient
	tx.Amount = w.Amount
	tx.Content = content
	tx.Signature = sig
	tx.SignPublicKey = pub
	tx.Timestamp = ts
	return nil
}

// blockWire is the interoperable JSON shape of a Block.
type blockWire struct {
	Index        uint64         `json:"index"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
	Timestamp    float64        `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
	Nonce        uint64         `json:"nonce"`
}

// MarshalJSON renders the block in its interoperable wire shape.
func (b *Block) MarshalJSON() ([]byte, error) {
	w := blockWire{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
		Nonce:        b.Nonce,
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the interoperable wire shape back into a Block.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w blockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Index = w.Index
	b.PreviousHash = w.PreviousHash
	b.Hash = w.Hash
	b.Timestamp = w.Timestamp
	b.Transactions = w.Transactions
	b.Nonce = w.Nonce
	return nil
}
