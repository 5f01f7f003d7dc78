// Package network handles peer-to-peer communication over TCP using
// length-prefixed JSON messages.
package network

import (
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// MsgType labels a network message.
type MsgType string

const (
	MsgHello         MsgType = "hello"
	MsgTx            MsgType = "tx"
	MsgMicroBlock    MsgType = "microblock"
	MsgGetBlocks     MsgType = "get_blocks"
	MsgBlocks        MsgType = "blocks"
	MsgVRFProof      MsgType = "vrf_proof"
	MsgMacroCommit   MsgType = "macro_commit"
	MsgMacroReveal   MsgType = "macro_reveal"
	MsgCriticalAlert MsgType = "critical_alert"
	MsgPeerInfo      MsgType = "peer_info"
)

// Message is the envelope for all P2P communication.
type Message struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Peer represents a connected remote node.
type Peer struct {
	ID   string
	Addr string

	conn   net.Conn
	mu     sync.Mutex
	closed bool

	limiter *tokenBucket
}

// NewPeer wraps an established TCP connection as a Peer. The peer is rate
// limited to maxMsgsPerMin inbound messages per minute; callers get back
// ErrRateLimited from Receive once the budget is exhausted, so they can
// penalize the remote node for flooding.
func NewPeer(id, addr string, conn net.Conn) *Peer {
	return &Peer{ID: id, Addr: addr, conn: conn, limiter: newTokenBucket(maxMsgsPerMin)}
}

// Connect dials the remote address and returns a connected Peer.
// If tlsCfg is non-nil the connection is established over TLS.
func Connect(id, addr string, tlsCfg *tls.Config) (*Peer, error) {
	var conn net.Conn
	var err error
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewPeer(id, addr, conn), nil
}

// Send writes a length-prefixed JSON message to the peer.
func (p *Peer) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.ID)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := p.conn.Write(header[:]); err != nil {
		return err
	}
	_, err = p.conn.Write(data)
	return err
}

// ErrRateLimited is returned by Receive when the peer has exceeded its
// inbound message budget for the current window.
var ErrRateLimited = fmt.Errorf("network: peer exceeded message rate limit")

// Receive reads the next length-prefixed JSON message.
// A 30-second read deadline prevents a stalled peer from blocking indefinitely.
func (p *Peer) Receive() (Message, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var header [4]byte
	if _, err := io.ReadFull(p.conn, header[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > 32*1024*1024 { // 32 MB safety limit
		return Message{}, fmt.Errorf("message too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		return Message{}, err
	}
	if !p.limiter.Allow() {
		return Message{}, ErrRateLimited
	}
	var msg Message
	if err := json.Unmarshal(buf, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Close terminates the peer connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}

// maxMsgsPerMin is the per-peer inbound message budget before a node is
// flagged for network flooding.
const maxMsgsPerMin = 30

// tokenBucket is a simple fixed-window rate limiter: it refills fully once
// per minute rather than leaking continuously, which is cheap to check on
// every message and good enough at this budget size.
type tokenBucket struct {
	mu          sync.Mutex
	capacity    int
	remaining   int
	windowStart time.Time
}

func newTokenBucket(perMinute int) *tokenBucket {
	return &tokenBucket{capacity: perMinute, remaining: perMinute, windowStart: time.Now()}
}

func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.windowStart) > time.Minute {
		b.remaining = b.capacity
		b.windowStart = time.Now()
	}
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}
