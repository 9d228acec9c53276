package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Network is the P2P façade: it owns identity, ledger, peer registry,
// transport and sync manager, and exposes the small surface the host
// application and CLI call into. Cyclic façade<->sync references are
// avoided by construction order: Network owns the SyncManager outright,
// and the sync manager holds only the ledger, miner, identity and bridge it
// is constructed with plus the transport that NewNetwork assigns afterwards.
type Network struct {
	cfg      Config
	identity *Identity
	ledger   *Ledger
	registry *PeerRegistry
	keys     *SharedKeyCache
	pow      *ProofOfWork
	sync     *SyncManager
	transport *Transport
	discovery *Discovery
	bridge   HostBridge
	logger   *logrus.Logger
	dialer   *Dialer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNetwork wires a complete node: ledger, miner, transport, sync manager
// and discovery, around the given identity and configuration. bridge may
// be nil, in which case a NoopBridge is used.
func NewNetwork(cfg Config, identity *Identity, bridge HostBridge, lg *logrus.Logger) *Network {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	if bridge == nil {
		bridge = NoopBridge{}
	}
	self := identity.AsPeer(cfg.Host, cfg.Port)
	registry := NewPeerRegistry(self)
	ledger := NewLedger(lg)
	pow := NewProofOfWork(cfg.Difficulty, lg)
	keys := NewSharedKeyCache(identity.Agreement, ChaChaCipher{})

	n := &Network{
		cfg:      cfg,
		identity: identity,
		ledger:   ledger,
		registry: registry,
		keys:     keys,
		pow:      pow,
		bridge:   bridge,
		logger:   lg,
	}

	n.sync = NewSyncManager(ledger, pow, identity, cfg.MempoolMiningThreshold, bridge, lg)
	n.transport = NewTransport(cfg.Host, cfg.Port, cfg.MaxConnections, n.sync.HandleFrame, lg)
	n.sync.transport = n.transport
	n.dialer = NewDialer(5*time.Second, 30*time.Second)
	return n
}

// Start launches the listener task, the bootstrap-reconnect loop (if any
// bootstrap peers are configured) and the stale-connection pruning loop.
func (n *Network) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.sync.Start(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.transport.Listen(ctx); err != nil {
			n.logger.WithField("kind", KindSocketError).Errorf("listen: %v", err)
		}
	}()

	if len(n.cfg.BootstrapPeers) > 0 {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.reconnectBootstrapPeers(ctx)
		}()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.pruneStaleConnections(ctx)
	}()
}

// pruneStaleConnections periodically drops connections that have gone quiet
// for longer than three broadcast intervals.
func (n *Network) pruneStaleConnections(ctx context.Context) {
	maxAge := 3 * n.cfg.BroadcastInterval
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(n.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.transport.PruneStale(maxAge)
		}
	}
}

// reconnectBootstrapPeers periodically dials every configured bootstrap
// address that isn't already connected.
func (n *Network) reconnectBootstrapPeers(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.ReconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, addr := range n.cfg.BootstrapPeers {
				if n.hasConnectionTo(addr) {
					continue
				}
				nc, err := n.dialer.Dial(ctx, addr)
				if err != nil {
					n.logger.WithField("kind", KindSocketError).Debugf("bootstrap dial %s: %v", addr, err)
					continue
				}
				if _, err := n.transport.Adopt(ctx, nc); err != nil {
					n.logger.WithField("kind", KindConnectionCap).Debugf("adopt bootstrap conn %s: %v", addr, err)
				}
			}
		}
	}
}

func (n *Network) hasConnectionTo(addr string) bool {
	for _, c := range n.transport.Connections() {
		if c.Addr == addr {
			return true
		}
	}
	return false
}

// Close shuts the node down: cancels the context, closes the transport and
// waits for the listener goroutine to exit.
func (n *Network) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	err := n.transport.Close()
	n.wg.Wait()
	return err
}

var loopbackHosts = map[string]bool{"127.0.0.1": true, "localhost": true, "::1": true, "0.0.0.0": true}

// selfEquivalent reports whether (host, port) refers to this node, treating
// loopback addresses as equivalent to the configured host.
func (n *Network) selfEquivalent(host string, port int) bool {
	if port != n.cfg.Port {
		return false
	}
	h, self := strings.ToLower(host), strings.ToLower(n.cfg.Host)
	return h == self || (loopbackHosts[h] && loopbackHosts[self])
}

// ConnectToPeer rejects self-connections and otherwise delegates to the
// transport.
func (n *Network) ConnectToPeer(ctx context.Context, host string, port int) (*Connection, error) {
	if n.selfEquivalent(host, port) {
		n.logger.WithField("kind", KindSelfConnection).Warn("refusing self-connection")
		return nil, NewError(KindSelfConnection, nil)
	}
	return n.transport.ConnectToPeer(ctx, host, port)
}

// BroadcastMessage serializes and broadcasts an opaque frame to every peer
// except sender.
func (n *Network) BroadcastMessage(tag FrameTag, body []byte, sender *Connection) {
	n.transport.Broadcast(tag, body, sender)
}

// BroadcastTransaction serializes tx as canonical JSON and broadcasts it as
// a NEW_TRANSACTION frame, excluding sender.
func (n *Network) BroadcastTransaction(tx *Transaction, sender *Connection) error {
	body, err := tx.MarshalJSON()
	if err != nil {
		return NewError(KindDecodeError, err)
	}
	n.transport.Broadcast(TagNewTransaction, body, sender)
	return nil
}

// DiscoverPeers starts the discovery tasks and binds the resulting peer set
// to the façade.
func (n *Network) DiscoverPeers(ctx context.Context) error {
	self := n.identity.AsPeer(n.cfg.Host, n.cfg.Port)
	disc, err := NewDiscovery(self, n.registry, n.cfg.BroadcastPort, n.cfg.BroadcastInterval, n.logger)
	if err != nil {
		return err
	}
	// Close cancels this context too, so it stops the discovery tasks.
	ctx, cancel := context.WithCancel(ctx)
	if prev := n.cancel; prev != nil {
		n.cancel = func() { cancel(); prev() }
	} else {
		n.cancel = cancel
	}
	disc.OnDiscovered = func(p Peer) {
		n.bridge.OnPeersChanged(n.registry.List())
	}
	n.discovery = disc
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		disc.Run(ctx)
	}()
	return nil
}

// SyncWithPeers runs one sync pass: request the chain from every connected
// peer. Responses arrive asynchronously as BLOCKCHAIN
// frames handled by the sync manager.
func (n *Network) SyncWithPeers() {
	n.transport.Broadcast(TagRequestChain, nil, nil)
}

// SendMessage encrypts content under the shared key derived with
// recipientAgreementKey, builds and signs a message transaction, appends it
// to the local mempool and broadcasts it.
func (n *Network) SendMessage(recipientAgreementKey []byte, content []byte) (*Transaction, error) {
	ciphertext, err := n.keys.Encrypt(recipientAgreementKey, content)
	if err != nil {
		return nil, err
	}
	tx := NewTransaction(n.identity.Agreement.PublicValue(), recipientAgreementKey, 0, ciphertext, n.identity.Signer.PublicKey())
	if err := tx.Sign(n.identity.Signer); err != nil {
		return nil, err
	}
	if err := n.ledger.AddTransaction(tx); err != nil {
		return nil, err
	}
	if err := n.BroadcastTransaction(tx, nil); err != nil {
		return nil, err
	}
	return tx, nil
}

// DecryptMessage opens a message transaction's content using the shared key
// derived with the counterparty's agreement public key.
func (n *Network) DecryptMessage(counterpartyAgreementKey []byte, tx *Transaction) ([]byte, error) {
	return n.keys.Decrypt(counterpartyAgreementKey, tx.Content)
}

// Peers returns the currently known peer set.
func (n *Network) Peers() []Peer { return n.registry.List() }

// Ledger exposes the underlying ledger for CLI/status reporting.
func (n *Network) Ledger() *Ledger { return n.ledger }

// Identity exposes the local identity for CLI/status reporting.
func (n *Network) Identity() *Identity { return n.identity }
