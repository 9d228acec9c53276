package core

import (
	"context"
	"encoding/hex"
	"net"
	"testing"
	"time"
)

func TestDiscoveryAdvertEncodeDecodeRoundTrip(t *testing.T) {
	msg := discoveryWireMessage{Host: "127.0.0.1", Port: 5555, PublicKey: "abcd", Username: "alice"}
	payload, err := encodeAdvert(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeAdvert(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != msg {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, msg)
	}
}

func TestDiscoveryOnDiscoveredFiresOnNewPeer(t *testing.T) {
	self := Peer{Host: "127.0.0.1", Port: 5555, Username: "me"}
	registry := NewPeerRegistry(self)
	disc, err := NewDiscovery(self, registry, 0, 0, nil)
	if err != nil {
		t.Fatalf("new discovery: %v", err)
	}
	defer disc.conn.Close()

	other, err := NewIdentity("bob")
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	msg := discoveryWireMessage{
		Host:      "10.0.0.2",
		Port:      6000,
		PublicKey: hex.EncodeToString(other.Agreement.PublicValue()),
		Username:  "bob",
	}
	payload, err := encodeAdvert(msg)
	if err != nil {
		t.Fatalf("encode advert: %v", err)
	}

	discovered := make(chan Peer, 1)
	disc.OnDiscovered = func(p Peer) { discovered <- p }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go disc.listen(ctx)

	listenPort := disc.conn.LocalAddr().(*net.UDPAddr).Port
	sender, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: listenPort})
	if err != nil {
		t.Fatalf("dial discovery socket: %v", err)
	}
	defer sender.Close()
	if _, err := sender.Write(payload); err != nil {
		t.Fatalf("send advert: %v", err)
	}

	var gotPeer Peer
	select {
	case gotPeer = <-discovered:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected OnDiscovered to fire for the advertised peer")
	}

	if registry.Add(gotPeer) {
		t.Fatalf("expected the discovered peer to already be in the registry")
	}

	if gotPeer.Port != 6000 || gotPeer.Username != "bob" {
		t.Fatalf("unexpected discovered peer: %+v", gotPeer)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected registry to contain exactly the discovered peer, got %d", registry.Len())
	}
}

func TestDiscoveryRejectsSelf(t *testing.T) {
	self := Peer{Host: "127.0.0.1", Port: 5555, Username: "me"}
	registry := NewPeerRegistry(self)
	if registry.Add(self) {
		t.Fatalf("expected the registry to reject the local peer")
	}
}
