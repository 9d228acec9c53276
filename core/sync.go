package core

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// SyncManager handles every decoded inbound frame, gossips new
// transactions and blocks, serves chain requests and merges received
// chains under the longest-valid-chain rule. Mining runs on a dedicated
// worker goroutine consuming a trigger channel, so the frame-reading
// goroutine that tripped the mining threshold is never blocked by the
// PoW search.
type SyncManager struct {
	ledger    *Ledger
	pow       *ProofOfWork
	identity  *Identity
	threshold int
	bridge    HostBridge
	logger    *logrus.Logger

	transport *Transport
	mineReq   chan struct{}
}

// NewSyncManager wires the synchronizer with the ledger, miner and
// identity it needs. transport is assigned by Network after construction
// (see NewNetwork) to avoid a constructor cycle.
func NewSyncManager(ledger *Ledger, pow *ProofOfWork, identity *Identity, threshold int, bridge HostBridge, lg *logrus.Logger) *SyncManager {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &SyncManager{
		ledger:    ledger,
		pow:       pow,
		identity:  identity,
		threshold: threshold,
		bridge:    bridge,
		logger:    lg,
		mineReq:   make(chan struct{}, 1),
	}
}

// Start launches the background mining worker. It is safe to call before
// the transport is attached.
func (m *SyncManager) Start(ctx context.Context) {
	go m.mineWorker(ctx)
}

// mineWorker drains mining requests one at a time; a full channel (len 1)
// coalesces bursts of requests into a single pending mine, since the
// outcome only depends on the current mempool contents, not how many times
// the threshold was crossed.
func (m *SyncManager) mineWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.mineReq:
			m.mineOnce()
		}
	}
}

func (m *SyncManager) mineOnce() {
	block, reward, err := m.ledger.MinePending(m.pow, m.identity.Agreement.PublicValue())
	if err != nil {
		m.logger.Warnf("mine_pending failed: %v", err)
		return
	}
	if block == nil {
		return
	}
	m.logger.WithFields(logrus.Fields{"index": block.Index, "hash": block.Hash}).Info("mined block")
	m.bridge.OnBlockAppended(block)

	blockBody, err := block.MarshalJSON()
	if err != nil {
		m.logger.Warnf("encode mined block: %v", err)
		return
	}
	m.transport.Broadcast(TagNewBlock, blockBody, nil)

	rewardBody, err := reward.MarshalJSON()
	if err != nil {
		m.logger.Warnf("encode reward transaction: %v", err)
		return
	}
	m.transport.Broadcast(TagNewTransaction, rewardBody, nil)
}

// requestMine signals the mining worker without blocking the caller.
func (m *SyncManager) requestMine() {
	select {
	case m.mineReq <- struct{}{}:
	default:
	}
}

// HandleFrame is the Transport's FrameHandler: it dispatches on the frame
// tag.
func (m *SyncManager) HandleFrame(conn *Connection, frame Frame) {
	switch frame.Tag {
	case TagNewBlock:
		m.handleNewBlock(conn, frame.Body)
	case TagNewTransaction:
		m.handleNewTransaction(conn, frame.Body)
	case TagRequestChain:
		m.handleRequestChain(conn)
	case TagBlockchain:
		m.handleBlockchain(conn, frame.Body)
	case TagNewMessage:
		// reserved no-op placeholder.
	default:
		// any other prefix is opaque and rebroadcast verbatim.
		m.transport.Broadcast(frame.Tag, frame.Body, conn)
	}
}

func (m *SyncManager) handleNewBlock(conn *Connection, body []byte) {
	var b Block
	if err := json.Unmarshal(body, &b); err != nil {
		m.logger.WithField("kind", KindDecodeError).Warnf("decode NEW_BLOCK: %v", err)
		return
	}
	if m.ledger.ContainsBlock(&b) {
		return
	}
	if err := m.ledger.AppendBlock(&b, m.pow); err != nil {
		m.logger.WithField("kind", KindInvalidLink).Warnf("reject block %d: %v", b.Index, err)
		return
	}
	m.bridge.OnBlockAppended(&b)
	m.transport.Broadcast(TagNewBlock, body, conn)
}

func (m *SyncManager) handleNewTransaction(conn *Connection, body []byte) {
	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		m.logger.WithField("kind", KindDecodeError).Warnf("decode NEW_TRANSACTION: %v", err)
		return
	}
	if m.ledger.ContainsTransaction(&tx) {
		return
	}
	if err := m.ledger.AddTransaction(&tx); err != nil {
		return
	}
	m.transport.Broadcast(TagNewTransaction, body, conn)

	if m.ledger.MempoolSize() >= m.threshold {
		m.requestMine()
	}

	selfPub := m.identity.Agreement.PublicValue()
	if string(tx.Recipient) == string(selfPub) {
		m.bridge.OnMessage(selfPub, tx.Sender, &tx)
	}
}

func (m *SyncManager) handleRequestChain(conn *Connection) {
	chain := m.ledger.Chain()
	body, err := json.Marshal(chain)
	if err != nil {
		m.logger.Warnf("encode chain reply: %v", err)
		return
	}
	if err := conn.Send(TagBlockchain, body); err != nil {
		m.logger.WithField("kind", KindSocketError).Warnf("send BLOCKCHAIN to %s: %v", conn.Addr, err)
	}
}

func (m *SyncManager) handleBlockchain(conn *Connection, body []byte) {
	var received []*Block
	if err := json.Unmarshal(body, &received); err != nil {
		m.logger.WithField("kind", KindDecodeError).Warnf("decode BLOCKCHAIN: %v", err)
		return
	}
	if m.ledger.MergeChain(received) {
		m.logger.WithField("height", len(received)).Info("adopted longer valid chain")
		m.bridge.OnBlockAppended(m.ledger.GetLatestBlock())
	}
}
