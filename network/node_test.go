package network

import (
	"encoding/json"
	"net"
	"testing"
)

func TestPseudonymizeAddrIsDeterministicAndHostOnly(t *testing.T) {
	a := pseudonymizeAddr("203.0.113.5:51000")
	b := pseudonymizeAddr("203.0.113.5:60001")
	if a != b {
		t.Errorf("pseudonym should depend only on host, got %q vs %q for different ports", a, b)
	}
	if a == "203.0.113.5:51000" {
		t.Error("pseudonym must not be the raw remote address")
	}
	c := pseudonymizeAddr("198.51.100.9:51000")
	if a == c {
		t.Error("different hosts must not collide to the same pseudonym")
	}
}

func TestHandleHelloRekeysPeerFromPseudonymToNodeID(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	n := NewNode("local", "127.0.0.1:0", nil, nil, nil)
	pseudonym := pseudonymizeAddr("203.0.113.5:51000")
	peer := NewPeer(pseudonym, "203.0.113.5:51000", serverConn)
	n.mu.Lock()
	n.peers[peer.ID] = peer
	n.mu.Unlock()

	payload, err := json.Marshal(HelloMsg{NodeID: "real-node-id"})
	if err != nil {
		t.Fatalf("marshal hello: %v", err)
	}
	n.handleHello(peer, Message{Type: MsgHello, Payload: payload})

	if peer.ID != "real-node-id" {
		t.Errorf("peer.ID after hello = %q, want real-node-id", peer.ID)
	}
	if n.Peer(pseudonym) != nil {
		t.Error("peer should no longer be reachable under its pre-handshake pseudonym")
	}
	if n.Peer("real-node-id") == nil {
		t.Error("peer should be reachable under its announced node_id")
	}
}

func TestHandleHelloIgnoresAlreadyIdentifiedPeer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	n := NewNode("local", "127.0.0.1:0", nil, nil, nil)
	peer := NewPeer("already-real-id", "203.0.113.5:51000", serverConn)
	n.mu.Lock()
	n.peers[peer.ID] = peer
	n.mu.Unlock()

	payload, _ := json.Marshal(HelloMsg{NodeID: "someone-else"})
	n.handleHello(peer, Message{Type: MsgHello, Payload: payload})

	if peer.ID != "already-real-id" {
		t.Errorf("an outgoing peer's already-known id must not be overwritten by a stray hello, got %q", peer.ID)
	}
}
