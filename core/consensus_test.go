package core

import (
	"strings"
	"testing"
	"time"
)

func TestMineFindsTargetPrefix(t *testing.T) {
	pow := NewProofOfWork(2, nil)
	b := &Block{Index: 1, PreviousHash: GenesisBlock().Hash, Timestamp: nowSeconds()}
	pow.Mine(b)
	if !strings.HasPrefix(b.Hash, "00") {
		t.Fatalf("expected mined hash to start with 00, got %q", b.Hash)
	}
	if !pow.Validate(b) {
		t.Fatalf("expected mined block to validate")
	}
}

func TestRequestStopAbandonsSearch(t *testing.T) {
	pow := NewProofOfWork(64, nil)
	b := &Block{Index: 1, PreviousHash: GenesisBlock().Hash, Timestamp: nowSeconds()}
	done := make(chan struct{})
	go func() {
		pow.Mine(b)
		close(done)
	}()
	// Mine clears the stop flag on entry, so a request issued before the
	// goroutine reaches Mine is lost; keep requesting until Mine returns.
	for {
		pow.RequestStop()
		select {
		case <-done:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestValidateBlockDetectsTamperedHash(t *testing.T) {
	genesis := GenesisBlock()
	pow := NewProofOfWork(1, nil)
	next := &Block{Index: 1, PreviousHash: genesis.Hash, Timestamp: nowSeconds() + 1}
	pow.Mine(next)
	next.Hash = "deadbeef"
	if ValidateBlock(next, genesis, nil) {
		t.Fatalf("expected validation to fail on tampered hash")
	}
}

func TestValidateBlockDetectsBrokenLink(t *testing.T) {
	genesis := GenesisBlock()
	pow := NewProofOfWork(1, nil)
	next := &Block{Index: 1, PreviousHash: "not-the-genesis-hash", Timestamp: nowSeconds() + 1}
	pow.Mine(next)
	if ValidateBlock(next, genesis, nil) {
		t.Fatalf("expected validation to fail on broken previous-hash link")
	}
}

func TestValidateBlockDetectsNonIncreasingTimestamp(t *testing.T) {
	genesis := GenesisBlock()
	pow := NewProofOfWork(1, nil)
	next := &Block{Index: 1, PreviousHash: genesis.Hash, Timestamp: genesis.Timestamp}
	pow.Mine(next)
	if ValidateBlock(next, genesis, nil) {
		t.Fatalf("expected validation to fail on non-increasing timestamp")
	}
}

func TestValidateBlockchainAcceptsMinedChain(t *testing.T) {
	pow := NewProofOfWork(1, nil)
	chain := []*Block{GenesisBlock()}
	for i := 1; i <= 3; i++ {
		b := &Block{Index: uint64(i), PreviousHash: chain[len(chain)-1].Hash, Timestamp: nowSeconds() + float64(i)}
		pow.Mine(b)
		chain = append(chain, b)
	}
	if !ValidateBlockchain(chain, nil) {
		t.Fatalf("expected freshly mined chain to validate")
	}
}
