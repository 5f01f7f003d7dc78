package consensus

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/crypto"
	"github.com/qnet-chain/qnetd/reputation"
)

// MacroGossip is the subset of the P2P layer MacroDriver needs to
// participate in a window's commit-reveal round.
type MacroGossip interface {
	BroadcastMacroCommit(window int64, participant, commitment string)
	BroadcastMacroReveal(window int64, participant string, reveal core.RevealValue)
}

// MacroDriver watches the microblock chain and drives a MacroEngine
// through one commit-reveal round per config.MacroWindowSize microblocks,
// acting as one of the round's participants itself when sampled in.
type MacroDriver struct {
	engine   *MacroEngine
	bc       *core.Blockchain
	ledger   *reputation.Ledger
	registry NodeRegistry
	gossip   MacroGossip
	self     string // local node id; "" if this node never self-participates

	lastWindow int64
	salt       string // this round's reveal salt, kept secret until RevealOpen
	selfRoot   string
}

// NewMacroDriver creates a driver tying engine's lifecycle to bc's height.
func NewMacroDriver(engine *MacroEngine, bc *core.Blockchain, ledger *reputation.Ledger, registry NodeRegistry, gossip MacroGossip, self string) *MacroDriver {
	return &MacroDriver{engine: engine, bc: bc, ledger: ledger, registry: registry, gossip: gossip, self: self}
}

// Run polls at config.MicroblockInterval and advances the window
// lifecycle: starts a window on a height boundary, opens reveal once the
// commit deadline passes, and decides once the reveal deadline passes.
func (d *MacroDriver) Run(done <-chan struct{}) {
	ticker := time.NewTicker(config.MicroblockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *MacroDriver) tick() {
	height := d.bc.Height()
	window := height / config.MacroWindowSize

	switch d.engine.Phase() {
	case PhaseIdle, PhaseFinalized, PhaseAborted:
		if height > 0 && height%config.MacroWindowSize == 0 && window != d.lastWindow {
			d.startWindow(window, height)
		}
	case PhaseCommitOpen:
		if err := d.engine.OpenReveal(); err == nil {
			d.revealSelf()
		}
	case PhaseRevealOpen:
		if _, err := d.engine.Decide(); err == nil {
			log.Printf("[consensus] macroblock window %d finalized", d.lastWindow)
		}
	}
}

func (d *MacroDriver) startWindow(window, endHeight int64) {
	startHeight := endHeight - config.MacroWindowSize + 1
	startBlock, err := d.bc.GetBlockByHeight(startHeight)
	if err != nil {
		log.Printf("[consensus] macro window %d: load start block: %v", window, err)
		return
	}
	endBlock, err := d.bc.GetBlockByHeight(endHeight)
	if err != nil {
		log.Printf("[consensus] macro window %d: load end block: %v", window, err)
		return
	}
	root, err := computeWindowRoot(d.bc, startHeight, endHeight)
	if err != nil {
		log.Printf("[consensus] macro window %d: compute root: %v", window, err)
		return
	}

	seed := RoundSeed(endBlock.Hash, endHeight)
	pool, err := d.ledger.EligiblePool(d.registry.KnownNodeIDs())
	if err != nil {
		log.Printf("[consensus] macro window %d: eligible pool: %v", window, err)
		return
	}
	participants := Sample(pool, seed, config.MaxValidatorSample)
	weights := make(map[string]float64, len(participants))
	for _, id := range participants {
		state, err := d.ledger.Get(id)
		if err != nil {
			continue
		}
		weights[id] = state.Reputation
	}

	mrange := core.MicroblockRange{StartHash: startBlock.Hash, EndHash: endBlock.Hash}
	if err := d.engine.StartWindow(window, mrange, participants, weights); err != nil {
		log.Printf("[consensus] macro window %d: start: %v", window, err)
		return
	}
	d.lastWindow = window

	if d.self != "" && isIn(participants, d.self) {
		d.commitSelf(window, root)
	}
}

func (d *MacroDriver) commitSelf(window int64, root string) {
	saltBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, saltBytes); err != nil {
		log.Printf("[consensus] macro window %d: salt: %v", window, err)
		return
	}
	d.salt = hex.EncodeToString(saltBytes)
	d.selfRoot = root
	commitment := crypto.Hash([]byte(root + d.salt))
	if err := d.engine.SubmitCommit(d.self, commitment); err != nil {
		log.Printf("[consensus] macro window %d: self commit: %v", window, err)
		return
	}
	if d.gossip != nil {
		d.gossip.BroadcastMacroCommit(window, d.self, commitment)
	}
}

func (d *MacroDriver) revealSelf() {
	if d.self == "" || d.salt == "" {
		return
	}
	reveal := core.RevealValue{Root: d.selfRoot, Salt: d.salt}
	if err := d.engine.SubmitReveal(d.self, reveal); err != nil {
		log.Printf("[consensus] self reveal: %v", err)
		return
	}
	if d.gossip != nil {
		d.gossip.BroadcastMacroReveal(d.lastWindow, d.self, reveal)
	}
	d.salt = ""
}

func isIn(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// computeWindowRoot hashes the concatenated block hashes of [start, end]
// into a single 512-bit window root.
func computeWindowRoot(bc *core.Blockchain, start, end int64) (string, error) {
	buf := make([]byte, 0, 64*(end-start+1))
	for height := start; height <= end; height++ {
		block, err := bc.GetBlockByHeight(height)
		if err != nil {
			return "", fmt.Errorf("load block %d: %w", height, err)
		}
		buf = append(buf, []byte(block.Hash)...)
	}
	return crypto.Hash512(buf), nil
}
