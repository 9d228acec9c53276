package core

import "testing"

func newSignedTx(t *testing.T, amount int64) *Transaction {
	t.Helper()
	signer, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	tx := NewTransaction(signer.PublicKey(), []byte("recipient"), amount, []byte("hi"), signer.PublicKey())
	if err := tx.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

func TestLedgerRejectsInvalidSignature(t *testing.T) {
	l := NewLedger(nil)
	tx := newSignedTx(t, 0)
	tx.Content = []byte("tampered after signing")
	err := l.AddTransaction(tx)
	if err == nil {
		t.Fatalf("expected tampered transaction to be rejected")
	}
	if kind, ok := KindOf(err); !ok || kind != KindInvalidSignature {
		t.Fatalf("expected KindInvalidSignature, got %v", err)
	}
}

func TestLedgerRejectsInsufficientFunds(t *testing.T) {
	l := NewLedger(nil)
	tx := newSignedTx(t, 100)
	err := l.AddTransaction(tx)
	if err == nil {
		t.Fatalf("expected insufficient-funds transaction to be rejected")
	}
	if kind, ok := KindOf(err); !ok || kind != KindInsufficientFunds {
		t.Fatalf("expected KindInsufficientFunds, got %v", err)
	}
}

func TestLedgerMinePendingProducesRewardAndClearsMempool(t *testing.T) {
	l := NewLedger(nil)
	reward := NewTransaction(nil, []byte("miner"), 1, []byte("Mining Reward"), nil)
	if err := l.AddTransaction(reward); err != nil {
		t.Fatalf("seed reward tx: %v", err)
	}
	pow := NewProofOfWork(1, nil)
	block, rewardTx, err := l.MinePending(pow, []byte("miner"))
	if err != nil {
		t.Fatalf("mine pending: %v", err)
	}
	if block == nil || rewardTx == nil {
		t.Fatalf("expected a mined block and a reward transaction")
	}
	if l.Height() != 2 {
		t.Fatalf("expected chain height 2, got %d", l.Height())
	}
	if l.MempoolSize() != 1 {
		t.Fatalf("expected mempool reset to a single reward transaction, got %d", l.MempoolSize())
	}
	if !l.IsChainValid() {
		t.Fatalf("expected resulting chain to validate")
	}
}

func TestLedgerMinePendingOnEmptyMempoolIsNoop(t *testing.T) {
	l := NewLedger(nil)
	pow := NewProofOfWork(1, nil)
	block, reward, err := l.MinePending(pow, []byte("miner"))
	if err != nil || block != nil || reward != nil {
		t.Fatalf("expected a no-op on an empty mempool, got block=%v reward=%v err=%v", block, reward, err)
	}
}

func TestMergeChainAdoptsStrictlyLongerValidChain(t *testing.T) {
	l := NewLedger(nil)
	pow := NewProofOfWork(1, nil)
	chain := []*Block{GenesisBlock()}
	for i := 1; i <= 3; i++ {
		b := &Block{Index: uint64(i), PreviousHash: chain[len(chain)-1].Hash, Timestamp: nowSeconds() + float64(i)}
		pow.Mine(b)
		chain = append(chain, b)
	}
	if !l.MergeChain(chain) {
		t.Fatalf("expected longer valid chain to be adopted")
	}
	if l.Height() != 4 {
		t.Fatalf("expected height 4 after merge, got %d", l.Height())
	}
}

func TestMergeChainRejectsShorterChain(t *testing.T) {
	l := NewLedger(nil)
	pow := NewProofOfWork(1, nil)
	b := &Block{Index: 1, PreviousHash: l.GetLatestBlock().Hash, Timestamp: nowSeconds() + 1}
	pow.Mine(b)
	if !l.MergeChain([]*Block{GenesisBlock(), b}) {
		t.Fatalf("setup: expected initial merge to succeed")
	}
	if l.MergeChain([]*Block{GenesisBlock()}) {
		t.Fatalf("expected shorter chain to be rejected")
	}
}

func TestMergeChainRejectsInvalidChain(t *testing.T) {
	l := NewLedger(nil)
	tampered := []*Block{GenesisBlock(), {Index: 1, PreviousHash: "bogus", Hash: "bogus-hash", Timestamp: 1}, {Index: 2, PreviousHash: "bogus-hash", Hash: "bogus-hash-2", Timestamp: 2}}
	if l.MergeChain(tampered) {
		t.Fatalf("expected invalid chain to be rejected")
	}
}

func TestAppendBlockSkipsDuplicates(t *testing.T) {
	l := NewLedger(nil)
	pow := NewProofOfWork(1, nil)
	b := &Block{Index: 1, PreviousHash: l.GetLatestBlock().Hash, Timestamp: nowSeconds() + 1}
	pow.Mine(b)
	if err := l.AppendBlock(b, pow); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.AppendBlock(b, pow); err != nil {
		t.Fatalf("expected duplicate append to be a no-op, got %v", err)
	}
	if l.Height() != 2 {
		t.Fatalf("expected height 2 after duplicate append, got %d", l.Height())
	}
}
