package core

import "testing"

func TestGenesisBlockIsStable(t *testing.T) {
	a := GenesisBlock()
	b := GenesisBlock()
	if a.Hash != b.Hash {
		t.Fatalf("expected genesis hash to be deterministic, got %q and %q", a.Hash, b.Hash)
	}
	if a.Index != 0 || a.PreviousHash != "0" {
		t.Fatalf("unexpected genesis fields: %+v", a)
	}
}

func TestBlockCalculateHashChangesWithTransactions(t *testing.T) {
	b := &Block{Index: 1, PreviousHash: GenesisBlock().Hash, Timestamp: 1}
	empty := b.CalculateHash()
	b.Transactions = []*Transaction{NewTransaction(nil, []byte("miner"), 1, []byte("Mining Reward"), nil)}
	withTx := b.CalculateHash()
	if empty == withTx {
		t.Fatalf("expected hash to change once transactions are added")
	}
}

func TestBlockWireRoundTrip(t *testing.T) {
	b := &Block{
		Index:        1,
		PreviousHash: GenesisBlock().Hash,
		Timestamp:    nowSeconds(),
		Transactions: []*Transaction{NewTransaction(nil, []byte("miner"), 1, []byte("Mining Reward"), nil)},
	}
	b.Hash = b.CalculateHash()
	body, err := b.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Block
	if err := decoded.UnmarshalJSON(body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Hash != b.Hash || decoded.Index != b.Index {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, b)
	}
	if decoded.CalculateHash() != b.Hash {
		t.Fatalf("expected decoded block to recompute the same hash")
	}
}
