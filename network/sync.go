package network

import (
	"encoding/json"
	"log"

	"github.com/qnet-chain/qnetd/core"
)

// GetBlocksRequest asks a peer for microblocks starting at FromHeight.
type GetBlocksRequest struct {
	FromHeight int64 `json:"from_height"`
	Limit      int   `json:"limit"`
}

// BlocksResponse carries a batch of microblocks.
type BlocksResponse struct {
	Blocks []*core.Microblock `json:"blocks"`
}

// BlockValidator validates a microblock before it is accepted into the
// chain. Implementations are expected to resolve the round's elected leader
// internally (typically a *consensus.MicroEngine).
type BlockValidator interface {
	ValidateBlock(block *core.Microblock) error
}

// BlockExecutor applies all transactions in a microblock against the state.
type BlockExecutor interface {
	ExecuteBlock(block *core.Microblock) error
}

// ForkChecker flags a candidate microblock that conflicts with one already
// stored at the same height by the same producer, penalizing the producer
// as a critical ChainFork attacker.
type ForkChecker interface {
	CheckFork(candidate *core.Microblock) (bool, error)
}

// Syncer handles microblock synchronisation between nodes.
type Syncer struct {
	node      *Node
	bc        *core.Blockchain
	validator BlockValidator
	exec      BlockExecutor // may be nil; if set, state is also required
	state     core.State    // may be nil; used with exec to commit after each block
	integrity ForkChecker   // may be nil
}

// NewSyncer creates a Syncer that requests missing blocks from peers.
// Pass non-nil exec and state so that synced blocks are fully applied to the
// local state; without them the node will have blocks but no account state.
func NewSyncer(node *Node, bc *core.Blockchain, validator BlockValidator, exec BlockExecutor, state core.State) *Syncer {
	s := &Syncer{node: node, bc: bc, validator: validator, exec: exec, state: state}
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	return s
}

// SetIntegrityMonitor wires a ForkChecker so incoming blocks are screened
// for chain-fork attempts before being accepted.
func (s *Syncer) SetIntegrityMonitor(im ForkChecker) {
	s.integrity = im
}

// RequestBlocks asks peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight int64) error {
	req, err := json.Marshal(GetBlocksRequest{FromHeight: fromHeight, Limit: 50})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	blocks := make([]*core.Microblock, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+int64(req.Limit); h++ {
		b, err := s.bc.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		return
	}
	_ = peer.Send(Message{Type: MsgBlocks, Payload: data})
}

func (s *Syncer) handleBlocks(_ *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		if s.validator != nil {
			if err := s.validator.ValidateBlock(b); err != nil {
				log.Printf("[sync] block %d validation failed: %v", b.Header.Height, err)
				continue // skip this block, try the rest
			}
		}
		if s.integrity != nil {
			if isFork, err := s.integrity.CheckFork(b); err != nil {
				log.Printf("[sync] block %d fork check failed: %v", b.Header.Height, err)
			} else if isFork {
				log.Printf("[sync] block %d rejected: producer %s double-proposed at this height", b.Header.Height, b.Header.ProducerID)
				continue
			}
		}

		var snapID int
		if s.exec != nil && s.state != nil {
			var err error
			snapID, err = s.state.Snapshot()
			if err != nil {
				log.Printf("[sync] block %d snapshot failed: %v", b.Header.Height, err)
				continue
			}
			if err := s.exec.ExecuteBlock(b); err != nil {
				_ = s.state.RevertToSnapshot(snapID)
				log.Printf("[sync] block %d execution failed: %v", b.Header.Height, err)
				continue
			}
		}

		if err := s.bc.AddBlock(b); err != nil {
			if s.exec != nil && s.state != nil {
				_ = s.state.RevertToSnapshot(snapID)
			}
			log.Printf("[sync] block %d add failed: %v", b.Header.Height, err)
			continue
		}

		if s.exec != nil && s.state != nil {
			if err := s.state.Commit(); err != nil {
				log.Fatalf("[sync] FATAL: block %d state commit failed: %v", b.Header.Height, err)
			}
		}
	}
}
