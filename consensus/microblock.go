// Package consensus implements QNet's two-tier block production: a 1-second
// VRF-weighted-reputation microblock loop and a 90-microblock commit-reveal
// macroblock finalization round.
package consensus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/crypto"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/reputation"
	"github.com/qnet-chain/qnetd/vm"
)

// RoundInfo is supplied by the network layer each tick: the candidate pool
// for this height (from the reputation-eligible set) together with VRF
// proofs gossiped in from those candidates.
type RoundInfo struct {
	Candidates []Candidate
	Proofs     map[string]crypto.VRFProof
}

// RoundProvider supplies leader-election input for a given height. The
// network package implements this by collecting VRF proof gossip.
type RoundProvider interface {
	Round(height int64, seed []byte) (RoundInfo, error)
}

// VRFBroadcaster gossips the local node's VRF proof to peers ahead of
// leader selection. The network package's Node implements this.
type VRFBroadcaster interface {
	BroadcastVRFProof(height int64, proof crypto.VRFProof)
}

// MicroEngine is the microblock production and validation engine.
type MicroEngine struct {
	cfg     *config.Config
	bc      *core.Blockchain
	state   core.State
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	ledger  *reputation.Ledger
	rounds  RoundProvider
	gossip  VRFBroadcaster // optional; set via SetBroadcaster

	privKey crypto.HybridPrivateKey
	pubKey  crypto.HybridPublicKey
	vrfPriv crypto.PrivateKey // classical key reused as the VRF signing key
}

// SetBroadcaster wires the P2P layer the engine uses to gossip its own VRF
// proof each round. Leader election still works without one (useful for
// single-node tests), but other nodes will never see this node's proof.
func (e *MicroEngine) SetBroadcaster(b VRFBroadcaster) {
	e.gossip = b
}

// New creates a MicroEngine for the local node identified by privKey.
// The classical ed25519 half of privKey (privKey.Classical) is also used as
// the VRF evaluation key.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	ledger *reputation.Ledger,
	rounds RoundProvider,
	privKey crypto.HybridPrivateKey,
) *MicroEngine {
	return &MicroEngine{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		ledger:  ledger,
		rounds:  rounds,
		privKey: privKey,
		pubKey:  privKey.Public(),
		vrfPriv: privKey.Classical,
	}
}

// RoundSeed derives the deterministic VRF seed for a height from the
// current tip hash.
func RoundSeed(prevHash string, height int64) []byte {
	return crypto.HashBytes(fmt.Appendf(nil, "%s:%d", prevHash, height))
}

// PublishProof evaluates the local node's VRF proof for the given seed, to
// be gossiped to peers ahead of leader selection.
func (e *MicroEngine) PublishProof(seed []byte) crypto.VRFProof {
	_, proof := crypto.VRFEvaluate(e.vrfPriv, seed)
	return proof
}

// ElectLeader resolves this round's leader and successor order.
func (e *MicroEngine) ElectLeader(height int64) (leader string, successors []string, err error) {
	tip := e.bc.Tip()
	prevHash := config.GenesisHash
	if tip != nil {
		prevHash = tip.Hash
	}
	seed := RoundSeed(prevHash, height)
	round, err := e.rounds.Round(height, seed)
	if err != nil {
		return "", nil, fmt.Errorf("gather round info: %w", err)
	}
	return SelectLeader(seed, round.Candidates, round.Proofs)
}

// ProduceBlock builds, signs, executes and commits the next microblock.
// Callers must have already confirmed via ElectLeader that this node won
// the round.
func (e *MicroEngine) ProduceBlock() (*core.Microblock, error) {
	limit := e.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = 500
	}
	txs := e.mempool.Pending(limit)

	tip := e.bc.Tip()
	var prevHash string
	var nextHeight int64
	if tip == nil {
		prevHash = config.GenesisHash
		nextHeight = 1
	} else {
		prevHash = tip.Hash
		nextHeight = tip.Header.Height + 1
	}

	block := core.NewMicroblock(nextHeight, prevHash, e.pubKey.Hex(), txs)

	if err := e.exec.ExecuteBlock(block); err != nil {
		return nil, fmt.Errorf("execute block: %w", err)
	}

	block.Header.StateRoot = e.state.ComputeRoot()
	block.Sign(e.privKey)

	if err := e.bc.AddBlock(block); err != nil {
		return nil, fmt.Errorf("add block: %w", err)
	}

	if err := e.state.Commit(); err != nil {
		log.Fatalf("[consensus] FATAL: block %d stored but state commit failed: %v",
			block.Header.Height, err)
	}

	if err := e.ledger.Reward(e.pubKey.Hex(), reputation.RewardBlockProduced, block.Header.Height); err != nil {
		log.Printf("[consensus] reputation reward failed: %v", err)
	}

	e.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(block.Transactions)},
	})

	txIDs := make([]string, len(txs))
	for i, tx := range txs {
		txIDs[i] = tx.ID
	}
	e.mempool.Remove(txIDs)

	return block, nil
}

// ValidateBlock checks that block was produced by the elected leader for
// its height and is internally consistent. leaderID is the result of
// ElectLeader for block.Header.Height, resolved by the caller from the same
// round info that was in effect when the block was produced.
func (e *MicroEngine) ValidateBlock(block *core.Microblock, leaderID string) error {
	if block.Header.ProducerID != leaderID {
		return fmt.Errorf("wrong producer: got %s want %s", block.Header.ProducerID, leaderID)
	}

	pub, err := crypto.HybridPubKeyFromHex(block.Header.ProducerID)
	if err != nil {
		return fmt.Errorf("invalid producer pubkey: %w", err)
	}
	if err := block.Verify(pub); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}
	if txRoot := core.ComputeTxRoot(block.Transactions); block.Header.TxRoot != txRoot {
		return fmt.Errorf("tx_root mismatch: got %s want %s", block.Header.TxRoot, txRoot)
	}

	now := time.Now().UnixNano()
	skew := block.Header.Timestamp - now
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(config.TimestampSkew) {
		return fmt.Errorf("block timestamp skew %s exceeds allowed %s", time.Duration(skew), config.TimestampSkew)
	}

	tip := e.bc.Tip()
	if tip == nil {
		if !config.IsGenesisHash(block.Header.PrevHash) {
			return errors.New("first block must reference genesis prev-hash")
		}
	} else {
		if block.Header.PrevHash != tip.Hash {
			return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
		}
		if block.Header.Height != tip.Header.Height+1 {
			return fmt.Errorf("height mismatch: got %d want %d", block.Header.Height, tip.Header.Height+1)
		}
		if block.Header.Timestamp < tip.Header.Timestamp {
			return fmt.Errorf("block timestamp %d < previous block %d", block.Header.Timestamp, tip.Header.Timestamp)
		}
	}
	return nil
}

// ValidateIncoming resolves the expected leader for block's height from the
// same round-info source used during production, then validates block
// against it. It implements network.BlockValidator.
func (e *MicroEngine) ValidateIncoming(block *core.Microblock) error {
	leader, _, err := e.ElectLeader(block.Header.Height)
	if err != nil {
		return fmt.Errorf("resolve round leader: %w", err)
	}
	return e.ValidateBlock(block, leader)
}

// Run drives the microblock production loop at config.MicroblockInterval.
// Each tick it gossips this node's VRF proof, elects the round leader, and
// either produces the block itself (if it won) or hands the round to
// failover to watch for a missed duty, in which case whichever successor
// is actually promoted produces it instead. It blocks until done is closed.
func (e *MicroEngine) Run(done <-chan struct{}, failover *FailoverMonitor, isLive func(nodeID string) bool) {
	ticker := time.NewTicker(config.MicroblockInterval)
	defer ticker.Stop()

	var watchMu sync.Mutex
	watching := make(map[int64]bool)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			height := e.bc.Height() + 1
			if e.gossip != nil {
				tip := e.bc.Tip()
				prevHash := config.GenesisHash
				if tip != nil {
					prevHash = tip.Hash
				}
				e.gossip.BroadcastVRFProof(height, e.PublishProof(RoundSeed(prevHash, height)))
			}
			leader, successors, err := e.ElectLeader(height)
			if err != nil {
				log.Printf("[consensus] leader election error: %v", err)
				continue
			}
			if leader == e.pubKey.Hex() {
				if _, err := e.ProduceBlock(); err != nil {
					log.Printf("[consensus] produce block error: %v", err)
				}
				continue
			}
			if failover == nil {
				continue
			}
			watchMu.Lock()
			alreadyWatching := watching[height]
			watching[height] = true
			watchMu.Unlock()
			if alreadyWatching {
				continue
			}
			go func(height int64, leader string, successors []string) {
				defer func() {
					watchMu.Lock()
					delete(watching, height)
					watchMu.Unlock()
				}()
				promoted, err := failover.WatchRound(height, leader, successors,
					func() bool { return e.bc.Height() >= height },
					isLive,
				)
				if err != nil {
					log.Printf("[consensus] failover exhausted for height %d: %v", height, err)
					return
				}
				if promoted == e.pubKey.Hex() {
					if _, err := e.ProduceBlock(); err != nil {
						log.Printf("[consensus] promoted producer error: %v", err)
					}
				}
			}(height, leader, successors)
		}
	}
}
