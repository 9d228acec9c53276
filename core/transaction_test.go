package core

import "testing"

func TestTransactionSignVerifyRoundTrip(t *testing.T) {
	signer, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	tx := NewTransaction([]byte("sender"), []byte("recipient"), 10, []byte("hi"), signer.PublicKey())
	if err := tx.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !tx.Verify() {
		t.Fatalf("expected signed transaction to verify")
	}
}

func TestTransactionVerifyFailsOnTamperedAmount(t *testing.T) {
	signer, _ := NewEd25519Signer()
	tx := NewTransaction([]byte("sender"), []byte("recipient"), 10, []byte("hi"), signer.PublicKey())
	if err := tx.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx.Amount = 1000
	if tx.Verify() {
		t.Fatalf("expected verify to fail after tampering with amount")
	}
}

func TestTransactionSignRequiresSenderAndRecipient(t *testing.T) {
	signer, _ := NewEd25519Signer()
	tx := NewTransaction(nil, []byte("recipient"), 10, nil, signer.PublicKey())
	err := tx.Sign(signer)
	if err == nil {
		t.Fatalf("expected sign to fail without a sender")
	}
	if kind, ok := KindOf(err); !ok || kind != KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}

func TestRewardTransactionVerifiesWithoutSignature(t *testing.T) {
	tx := NewTransaction(nil, []byte("miner"), 1, []byte("Mining Reward"), nil)
	if !tx.IsReward() {
		t.Fatalf("expected reward transaction")
	}
	if !tx.Verify() {
		t.Fatalf("expected reward transaction to verify without a signature")
	}
}

func TestCalculateHashExcludesSignature(t *testing.T) {
	signer, _ := NewEd25519Signer()
	tx := NewTransaction([]byte("sender"), []byte("recipient"), 10, []byte("hi"), signer.PublicKey())
	before := tx.CalculateHash()
	if err := tx.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	after := tx.CalculateHash()
	if before != after {
		t.Fatalf("expected hash to be stable across signing, got %q then %q", before, after)
	}
}

func TestTransactionWireRoundTrip(t *testing.T) {
	signer, _ := NewEd25519Signer()
	tx := NewTransaction([]byte("sender"), []byte("recipient"), 42, []byte("payload"), signer.PublicKey())
	if err := tx.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	body, err := tx.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Transaction
	if err := decoded.UnmarshalJSON(body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Verify() {
		t.Fatalf("expected round-tripped transaction to verify")
	}
	if decoded.CalculateHash() != tx.CalculateHash() {
		t.Fatalf("expected hash to survive the wire round trip")
	}
}
