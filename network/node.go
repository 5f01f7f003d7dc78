package network

import (
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/crypto"
	"github.com/qnet-chain/qnetd/reputation"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers and manages outgoing connections.
type Node struct {
	nodeID     string
	listenAddr string
	mempool    *core.Mempool
	ledger     *reputation.Ledger // optional; penalizes flooding peers when set
	tlsConfig  *tls.Config
	maxPeers   int

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr.
// If tlsCfg is non-nil the listener and outgoing connections use TLS.
func NewNode(nodeID, listenAddr string, mempool *core.Mempool, ledger *reputation.Ledger, tlsCfg *tls.Config) *Node {
	n := &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		mempool:    mempool,
		ledger:     ledger,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
	n.Handle(MsgTx, n.handleTx)
	n.Handle(MsgHello, n.handleHello)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// HelloMsg is the handshake payload a peer sends right after connecting,
// announcing the persistent node_id it should be known by from then on.
type HelloMsg struct {
	NodeID string `json:"node_id"`
}

// AddPeer dials addr and registers the peer.
func (n *Node) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)

	hello, err := json.Marshal(HelloMsg{NodeID: n.nodeID})
	if err != nil {
		log.Printf("[network] marshal hello: %v", err)
		return nil
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		log.Printf("[network] send hello to %s: %v", id, err)
	}
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Broadcast sends msg to all connected peers.
func (n *Node) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[network] broadcast to %s: %v", p.ID, err)
		}
	}
}

// BroadcastTx serialises tx and sends it to all peers.
func (n *Node) BroadcastTx(tx *core.Transaction) {
	data, err := json.Marshal(tx)
	if err != nil {
		log.Printf("[network] marshal tx: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgTx, Payload: data})
}

// BroadcastMicroblock serialises block and sends it to all peers.
func (n *Node) BroadcastMicroblock(block *core.Microblock) {
	data, err := json.Marshal(block)
	if err != nil {
		log.Printf("[network] marshal microblock: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgMicroBlock, Payload: data})
}

// VRFProofMsg is the gossip payload for a leader-election proof: nodeID's
// VRF evaluation of the round seed for height.
type VRFProofMsg struct {
	NodeID string          `json:"node_id"`
	Height int64           `json:"height"`
	Proof  crypto.VRFProof `json:"proof"`
}

// BroadcastVRFProof gossips the local node's VRF proof for height to all peers.
func (n *Node) BroadcastVRFProof(height int64, proof crypto.VRFProof) {
	data, err := json.Marshal(VRFProofMsg{NodeID: n.nodeID, Height: height, Proof: proof})
	if err != nil {
		log.Printf("[network] marshal vrf proof: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgVRFProof, Payload: data})
}

// MacroCommitMsg is the gossip payload for a macroblock commit-reveal
// round's commit phase: participant's H(root||salt) commitment.
type MacroCommitMsg struct {
	Window      int64  `json:"window"`
	Participant string `json:"participant"`
	Commitment  string `json:"commitment"`
}

// MacroRevealMsg is the gossip payload for a macroblock round's reveal
// phase: participant's opened (root, salt) value.
type MacroRevealMsg struct {
	Window      int64            `json:"window"`
	Participant string           `json:"participant"`
	Reveal      core.RevealValue `json:"reveal"`
}

// BroadcastMacroCommit gossips a local commitment for window to all peers.
func (n *Node) BroadcastMacroCommit(window int64, participant, commitment string) {
	data, err := json.Marshal(MacroCommitMsg{Window: window, Participant: participant, Commitment: commitment})
	if err != nil {
		log.Printf("[network] marshal macro commit: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgMacroCommit, Payload: data})
}

// BroadcastMacroReveal gossips a local reveal for window to all peers.
func (n *Node) BroadcastMacroReveal(window int64, participant string, reveal core.RevealValue) {
	data, err := json.Marshal(MacroRevealMsg{Window: window, Participant: participant, Reveal: reveal})
	if err != nil {
		log.Printf("[network] marshal macro reveal: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgMacroReveal, Payload: data})
}

// KnownNodeIDs returns the local node id plus every currently connected
// peer id: the universe of candidates the eligibility filter and sampler
// can actually reach this round.
func (n *Node) KnownNodeIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.peers)+1)
	ids = append(ids, n.nodeID)
	for id := range n.peers {
		ids = append(ids, id)
	}
	return ids
}

// IsLive reports whether nodeID is reachable right now: either this node
// itself or a currently connected peer. Used by failover to skip
// successors it has no way to wait on.
func (n *Node) IsLive(nodeID string) bool {
	if nodeID == n.nodeID {
		return true
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.peers[nodeID]
	return ok
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		remote := conn.RemoteAddr().String()
		peer := NewPeer(pseudonymizeAddr(remote), remote, conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

// pseudonymizeAddr converts a raw remote address into a one-way pseudonym
// used as a peer's provisional identifier until its MsgHello handshake
// supplies the real, non-IP-derived node_id. Only the host is hashed (the
// ephemeral source port carries no identity and would make the same remote
// host pseudonymize differently on every connection).
func pseudonymizeAddr(addr string) string {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	sum := crypto.HashBytes([]byte("peer-pseudonym:" + host))
	return "anon-" + hex.EncodeToString(sum[:8])
}

// handleHello re-keys a newly accepted peer from its provisional address
// pseudonym to the persistent node_id it announces, so every later lookup
// (reputation, rate limiting, dedup) is keyed on node identity rather than
// network address.
func (n *Node) handleHello(peer *Peer, msg Message) {
	var hello HelloMsg
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		log.Printf("[network] unmarshal hello from %s: %v", peer.ID, err)
		return
	}
	if hello.NodeID == "" || hello.NodeID == peer.ID || !strings.HasPrefix(peer.ID, "anon-") {
		return
	}
	n.mu.Lock()
	delete(n.peers, peer.ID)
	peer.ID = hello.NodeID
	n.peers[peer.ID] = peer
	n.mu.Unlock()
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if errors.Is(err, ErrRateLimited) {
			log.Printf("[network] %s exceeded message rate limit, penalizing and disconnecting", peer.ID)
			if n.ledger != nil {
				if pErr := n.ledger.Penalty(peer.ID, reputation.OffenseNetworkFlooding, 0); pErr != nil {
					log.Printf("[network] flooding penalty failed for %s: %v", peer.ID, pErr)
				}
			}
			return
		}
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}

func (n *Node) handleTx(_ *Peer, msg Message) {
	var tx core.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		log.Printf("[network] unmarshal tx: %v", err)
		return
	}
	if err := n.mempool.Add(&tx); err != nil {
		log.Printf("[network] mempool add: %v", err)
	}
}
