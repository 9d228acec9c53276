package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"meshline/core"
)

var (
	node     *core.Network
	identity *core.Identity
	nodeMu   sync.RWMutex
	nodeCtx  context.Context
	nodeCancel context.CancelFunc
)

// messageBridge prints incoming messages and peer-set changes to the
// command's stdout as they arrive.
type messageBridge struct {
	out func() *cobra.Command
}

func (b messageBridge) OnMessage(selfPub, peerPub []byte, tx *core.Transaction) {
	cmd := b.out()
	plaintext, err := node.DecryptMessage(peerPub, tx)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "message from %s: <undecryptable: %v>\n", hex.EncodeToString(peerPub), err)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "message from %s: %s\n", hex.EncodeToString(peerPub), plaintext)
}

func (b messageBridge) OnPeersChanged(peers []core.Peer) {
	fmt.Fprintf(b.out().OutOrStdout(), "peer set changed: %d known\n", len(peers))
}

func (b messageBridge) OnBlockAppended(block *core.Block) {
	fmt.Fprintf(b.out().OutOrStdout(), "chain height now %d (block %s)\n", block.Index, block.Hash[:12])
}

func nodeInit(cmd *cobra.Command, _ []string) error {
	nodeMu.Lock()
	defer nodeMu.Unlock()
	if node != nil {
		return nil
	}
	_ = godotenv.Load()

	if lv, err := logrus.ParseLevel(viper.GetString("logging.level")); err == nil {
		logrus.SetLevel(lv)
	}

	cfg := core.DefaultConfig()
	if h := viper.GetString("node.host"); h != "" {
		cfg.Host = h
	}
	if p := viper.GetInt("node.port"); p != 0 {
		cfg.Port = p
	}
	cfg.Username = viper.GetString("node.username")
	if bp := viper.GetInt("network.broadcast_port"); bp != 0 {
		cfg.BroadcastPort = bp
	}
	if d := viper.GetInt("consensus.difficulty"); d != 0 {
		cfg.Difficulty = d
	}
	if ms := viper.GetInt("network.broadcast_interval_ms"); ms != 0 {
		cfg.BroadcastInterval = time.Duration(ms) * time.Millisecond
	}
	if ms := viper.GetInt("network.sync_interval_ms"); ms != 0 {
		cfg.SyncInterval = time.Duration(ms) * time.Millisecond
	}
	if mc := viper.GetInt("network.max_connections"); mc != 0 {
		cfg.MaxConnections = mc
	}
	if mt := viper.GetInt("network.mempool_mining_threshold"); mt != 0 {
		cfg.MempoolMiningThreshold = mt
	}
	cfg.BootstrapPeers = viper.GetStringSlice("network.bootstrap_peers")

	id, err := core.NewIdentity(cfg.Username)
	if err != nil {
		return err
	}

	bridge := messageBridge{out: func() *cobra.Command { return cmd.Root() }}
	identity = id
	node = core.NewNetwork(cfg, id, bridge, logrus.StandardLogger())
	return nil
}

func nodeStart(cmd *cobra.Command, _ []string) error {
	nodeMu.RLock()
	n := node
	nodeMu.RUnlock()
	if n == nil {
		return fmt.Errorf("not initialised")
	}

	ctx, cancel := context.WithCancel(context.Background())
	nodeCtx, nodeCancel = ctx, cancel
	n.Start(ctx)
	if err := n.DiscoverPeers(ctx); err != nil {
		cancel()
		return err
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.SyncWithPeers()
			}
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		_ = n.Close()
		os.Exit(0)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "node started, public key %s\n", hex.EncodeToString(identity.Agreement.PublicValue()))
	<-ctx.Done()
	return nil
}

func nodeStop(cmd *cobra.Command, _ []string) error {
	nodeMu.RLock()
	n := node
	stop := nodeCancel
	nodeMu.RUnlock()
	if n == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "not running")
		return nil
	}
	if stop != nil {
		stop()
	}
	_ = n.Close()
	nodeMu.Lock()
	node = nil
	nodeMu.Unlock()
	fmt.Fprintln(cmd.OutOrStdout(), "stopped")
	return nil
}

func nodePeers(cmd *cobra.Command, _ []string) error {
	nodeMu.RLock()
	n := node
	nodeMu.RUnlock()
	if n == nil {
		return fmt.Errorf("not running")
	}
	for _, p := range n.Peers() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%d\t%s\t%s\n", p.Host, p.Port, p.Username, hex.EncodeToString(p.AgreementKey))
	}
	return nil
}

func nodeConnect(cmd *cobra.Command, args []string) error {
	nodeMu.RLock()
	n := node
	nodeMu.RUnlock()
	if n == nil {
		return fmt.Errorf("not running")
	}
	host, port := args[0], args[1]
	p, err := parsePort(port)
	if err != nil {
		return err
	}
	ctx := nodeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := n.ConnectToPeer(ctx, host, p); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "connected")
	return nil
}

func nodeSend(cmd *cobra.Command, args []string) error {
	nodeMu.RLock()
	n := node
	nodeMu.RUnlock()
	if n == nil {
		return fmt.Errorf("not running")
	}
	recipientHex, content := args[0], args[1]
	recipient, err := hex.DecodeString(recipientHex)
	if err != nil {
		return fmt.Errorf("recipient must be hex-encoded: %w", err)
	}
	if _, err := n.SendMessage(recipient, []byte(content)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sent")
	return nil
}

func nodeChain(cmd *cobra.Command, _ []string) error {
	nodeMu.RLock()
	n := node
	nodeMu.RUnlock()
	if n == nil {
		return fmt.Errorf("not running")
	}
	for _, b := range n.Ledger().Chain() {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d tx\n", b.Index, b.Hash[:12], len(b.Transactions))
	}
	return nil
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return p, nil
}

var nodeRootCmd = &cobra.Command{Use: "node", Short: "meshline P2P node", PersistentPreRunE: nodeInit}

var nodeStartCmd = &cobra.Command{Use: "start", Short: "start the node", Args: cobra.NoArgs, RunE: nodeStart}
var nodeStopCmd = &cobra.Command{Use: "stop", Short: "stop the node", Args: cobra.NoArgs, RunE: nodeStop}
var nodePeersCmd = &cobra.Command{Use: "peers", Short: "list known peers", Args: cobra.NoArgs, RunE: nodePeers}
var nodeConnectCmd = &cobra.Command{Use: "connect <host> <port>", Short: "dial a peer", Args: cobra.ExactArgs(2), RunE: nodeConnect}
var nodeSendCmd = &cobra.Command{Use: "send <recipient-hex> <content>", Short: "send an encrypted message", Args: cobra.ExactArgs(2), RunE: nodeSend}
var nodeChainCmd = &cobra.Command{Use: "chain", Short: "print the local chain", Args: cobra.NoArgs, RunE: nodeChain}

func init() {
	nodeRootCmd.AddCommand(nodeStartCmd, nodeStopCmd, nodePeersCmd, nodeConnectCmd, nodeSendCmd, nodeChainCmd)
}

// NodeCmd exposes the node command group.
var NodeCmd = nodeRootCmd

// RegisterNode adds the node commands to the root CLI.
func RegisterNode(root *cobra.Command) { root.AddCommand(NodeCmd) }
