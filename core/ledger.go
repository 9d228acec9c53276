package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Ledger owns the append-only chain and the pending-transaction mempool.
// It is the one ledger a node owns; the sync manager borrows it, never
// owns it.
type Ledger struct {
	mu      sync.RWMutex
	chain   []*Block
	mempool []*Transaction
	logger  *logrus.Logger
}

// NewLedger starts a fresh chain at the genesis block.
func NewLedger(lg *logrus.Logger) *Ledger {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Ledger{
		chain:  []*Block{GenesisBlock()},
		logger: lg,
	}
}

// AddTransaction validates tx locally (signature, and — only if Sender is
// present — balance) and appends it to the mempool. Invalid transactions
// are dropped and logged; AddTransaction never returns an error to a UI
// caller, but does return one so the sync manager can decide whether to
// re-broadcast.
func (l *Ledger) AddTransaction(tx *Transaction) error {
	if !tx.Verify() {
		l.logger.WithField("kind", KindInvalidSignature).Warn("dropping transaction with invalid signature")
		return NewError(KindInvalidSignature, nil)
	}
	if !tx.IsReward() {
		balance := l.GetBalance(string(tx.Sender))
		if balance < tx.Amount {
			l.logger.WithField("kind", KindInsufficientFunds).Warn("dropping transaction: insufficient funds")
			return NewError(KindInsufficientFunds, nil)
		}
	}
	l.mu.Lock()
	l.mempool = append(l.mempool, tx)
	l.mu.Unlock()
	return nil
}

// GetBalance sums +amount for confirmed recipient entries and -amount for
// confirmed sender entries addressed to/from address. Pending transactions
// are not counted.
func (l *Ledger) GetBalance(address string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getBalanceLocked(address)
}

func (l *Ledger) getBalanceLocked(address string) int64 {
	var bal int64
	for _, b := range l.chain {
		for _, tx := range b.Transactions {
			if string(tx.Recipient) == address {
				bal += tx.Amount
			}
			if string(tx.Sender) == address {
				bal -= tx.Amount
			}
		}
	}
	return bal
}

// GetLatestBlock returns the chain tip.
func (l *Ledger) GetLatestBlock() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain[len(l.chain)-1]
}

// Height returns the number of blocks in the chain, genesis included.
func (l *Ledger) Height() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// Chain returns a shallow copy of the chain slice, safe for a caller to
// range over without holding the ledger lock.
func (l *Ledger) Chain() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Block, len(l.chain))
	copy(out, l.chain)
	return out
}

// ContainsBlock reports whether a block with this hash is already present
// in the chain.
func (l *Ledger) ContainsBlock(b *Block) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, existing := range l.chain {
		if existing.Hash == b.Hash {
			return true
		}
	}
	return false
}

// IsChainValid runs ValidateBlockchain over the current local chain.
func (l *Ledger) IsChainValid() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ValidateBlockchain(l.chain, l.logger)
}

// MempoolSize returns the number of pending transactions.
func (l *Ledger) MempoolSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.mempool)
}

// ContainsTransaction reports whether a transaction with the same
// calculated hash is already pending.
func (l *Ledger) ContainsTransaction(tx *Transaction) bool {
	h := tx.CalculateHash()
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.mempool {
		if p.CalculateHash() == h {
			return true
		}
	}
	return false
}

// MinePending builds a block over the current mempool, runs miner over it,
// validates it against the tip and appends it. On success the mempool is
// reset to a single reward transaction. Returns (nil, nil) if the mempool
// is empty.
//
// validate-against-tip and append happen inside the same critical section
// so a concurrent miner cannot fork the chain locally.
func (l *Ledger) MinePending(miner *ProofOfWork, minerAddress []byte) (*Block, *Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.mempool) == 0 {
		return nil, nil, nil
	}

	tip := l.chain[len(l.chain)-1]
	block := &Block{
		Index:        tip.Index + 1,
		PreviousHash: tip.Hash,
		Timestamp:    nowSeconds(),
		Transactions: append([]*Transaction(nil), l.mempool...),
		Nonce:        0,
	}
	miner.Mine(block)

	if !ValidateBlock(block, tip, l.logger) || !miner.Validate(block) {
		return nil, nil, NewError(KindInvalidPoW, nil)
	}

	l.chain = append(l.chain, block)

	reward := NewTransaction(nil, minerAddress, 1, []byte("Mining Reward"), nil)
	l.mempool = []*Transaction{reward}

	return block, reward, nil
}

// AppendBlock validates a block received from a peer against the current
// tip and, if valid and not already present, appends it. Used by the sync
// manager's NEW_BLOCK handler.
func (l *Ledger) AppendBlock(b *Block, pow *ProofOfWork) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.chain {
		if existing.Hash == b.Hash {
			return nil // already known, not an error
		}
	}
	tip := l.chain[len(l.chain)-1]
	if !ValidateBlock(b, tip, l.logger) {
		return NewError(KindInvalidLink, nil)
	}
	if !pow.Validate(b) {
		return NewError(KindInvalidPoW, nil)
	}
	l.chain = append(l.chain, b)
	return nil
}

// MergeChain replaces the local chain with received iff received is
// strictly longer and wholly valid.
func (l *Ledger) MergeChain(received []*Block) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(received) <= len(l.chain) {
		return false
	}
	if !ValidateBlockchain(received, l.logger) {
		return false
	}
	l.chain = append([]*Block(nil), received...)
	l.mempool = nil
	return true
}
