package core

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ProofOfWork is the miner: nonce search for a leading-zero hex prefix of
// the block hash at a fixed Difficulty. Difficulty is fixed per run;
// retargeting is out of scope.
type ProofOfWork struct {
	Difficulty int
	logger     *logrus.Logger
	stop       atomic.Bool
}

// NewProofOfWork constructs a miner at the given difficulty. A nil logger
// falls back to logrus.StandardLogger(), as core.NewSyncManager does.
func NewProofOfWork(difficulty int, lg *logrus.Logger) *ProofOfWork {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &ProofOfWork{Difficulty: difficulty, logger: lg}
}

// target returns a string of Difficulty '0' characters.
func (pow *ProofOfWork) target() string {
	return strings.Repeat("0", pow.Difficulty)
}

// Mine increments block.Nonce from its current value and recomputes
// block.Hash until the hex hash begins with the target prefix. It blocks
// the calling goroutine; callers that need cancellation should call
// RequestStop from another goroutine, which Mine observes between
// iterations.
func (pow *ProofOfWork) Mine(block *Block) {
	pow.stop.Store(false)
	target := pow.target()
	for {
		if pow.stop.Load() {
			pow.logger.WithField("index", block.Index).Warn("mining cancelled before target reached")
			return
		}
		block.Hash = block.CalculateHash()
		if strings.HasPrefix(block.Hash, target) {
			return
		}
		block.Nonce++
	}
}

// RequestStop signals a long-running Mine call to abandon its search. It
// has no effect on a Mine call that already returned.
func (pow *ProofOfWork) RequestStop() { pow.stop.Store(true) }

// Validate reports whether block.Hash already satisfies the target prefix.
// It does not recompute the hash from content — that is ValidateBlock's job.
func (pow *ProofOfWork) Validate(block *Block) bool {
	return strings.HasPrefix(block.Hash, pow.target())
}

// ValidateBlock applies three checks, in order, short-circuiting on the
// first failure and logging the corresponding error kind: hash integrity,
// previous-hash linkage, and strictly increasing timestamp.
func ValidateBlock(current, previous *Block, lg *logrus.Logger) bool {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	if current.CalculateHash() != current.Hash {
		lg.WithFields(logrus.Fields{"kind": KindInvalidHash, "index": current.Index}).Warn("block hash mismatch")
		return false
	}
	if current.PreviousHash != previous.Hash {
		lg.WithFields(logrus.Fields{"kind": KindInvalidLink, "index": current.Index}).Warn("previous-hash link broken")
		return false
	}
	if current.Timestamp <= previous.Timestamp {
		lg.WithFields(logrus.Fields{"kind": KindInvalidTimestamp, "index": current.Index}).Warn("non-increasing timestamp")
		return false
	}
	return true
}

// ValidateBlockchain reports whether every adjacent block pair in chain
// validates under ValidateBlock.
func ValidateBlockchain(chain []*Block, lg *logrus.Logger) bool {
	for i := 1; i < len(chain); i++ {
		if !ValidateBlock(chain[i], chain[i-1], lg) {
			return false
		}
	}
	return true
}

// nowSeconds returns the current wall time as float seconds, matching the
// Block.Timestamp wire type.
func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
