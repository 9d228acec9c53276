package core

import "testing"

func TestPeerRegistryAddSkipsSelf(t *testing.T) {
	self := Peer{Host: "127.0.0.1", Port: 5555, Username: "me", AgreementKey: []byte{1, 2, 3}}
	r := NewPeerRegistry(self)
	if r.Add(self) {
		t.Fatalf("expected adding self to be rejected")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestPeerRegistryAddIsIdempotent(t *testing.T) {
	self := Peer{Host: "127.0.0.1", Port: 5555, Username: "me"}
	r := NewPeerRegistry(self)
	other := Peer{Host: "127.0.0.1", Port: 6000, Username: "them", AgreementKey: []byte{9}}
	if !r.Add(other) {
		t.Fatalf("expected first add to report newly-added")
	}
	if r.Add(other) {
		t.Fatalf("expected duplicate add to report false")
	}
	if r.Len() != 1 {
		t.Fatalf("expected exactly one peer, got %d", r.Len())
	}
}

func TestPeerRegistryRemove(t *testing.T) {
	self := Peer{Host: "127.0.0.1", Port: 5555}
	r := NewPeerRegistry(self)
	other := Peer{Host: "127.0.0.1", Port: 6000, Username: "them"}
	r.Add(other)
	r.Remove(other)
	if r.Len() != 0 {
		t.Fatalf("expected peer to be removed, got %d remaining", r.Len())
	}
}
