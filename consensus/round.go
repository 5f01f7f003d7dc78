package consensus

import (
	"sync"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/crypto"
	"github.com/qnet-chain/qnetd/reputation"
)

// NodeRegistry supplies the universe of known node identifiers that the
// eligibility filter and sampler draw candidates from. The network layer
// implements this as the local node id plus every currently connected peer.
type NodeRegistry interface {
	KnownNodeIDs() []string
}

// GossipRounds implements RoundProvider by combining the reputation
// ledger's eligibility filter, the constant-cost validator sampler, and
// VRF proofs gossiped in from peers for the requested height.
type GossipRounds struct {
	ledger   *reputation.Ledger
	registry NodeRegistry

	mu     sync.Mutex
	proofs map[int64]map[string]crypto.VRFProof
}

// NewGossipRounds creates a GossipRounds backed by ledger and registry.
func NewGossipRounds(ledger *reputation.Ledger, registry NodeRegistry) *GossipRounds {
	return &GossipRounds{
		ledger:   ledger,
		registry: registry,
		proofs:   make(map[int64]map[string]crypto.VRFProof),
	}
}

// ReceiveProof records a VRF proof gossiped in from nodeID for height.
func (g *GossipRounds) ReceiveProof(height int64, nodeID string, proof crypto.VRFProof) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.proofs[height]
	if !ok {
		m = make(map[string]crypto.VRFProof)
		g.proofs[height] = m
	}
	m[nodeID] = proof

	// Bound memory: proofs for heights more than one macroblock window
	// behind can no longer be needed by a live round.
	for h := range g.proofs {
		if h < height-int64(config.MacroWindowSize) {
			delete(g.proofs, h)
		}
	}
}

// Round builds the candidate pool for height: the reputation-eligible
// subset of known nodes, capped by the constant-cost sampler, joined with
// whatever VRF proofs have arrived so far for this height.
func (g *GossipRounds) Round(height int64, seed []byte) (RoundInfo, error) {
	eligible, err := g.ledger.EligiblePool(g.registry.KnownNodeIDs())
	if err != nil {
		return RoundInfo{}, err
	}
	sampled := Sample(eligible, seed, config.MaxValidatorSample)

	g.mu.Lock()
	proofs := g.proofs[height]
	g.mu.Unlock()

	candidates := make([]Candidate, 0, len(sampled))
	for _, id := range sampled {
		pub, err := crypto.HybridPubKeyFromHex(id)
		if err != nil {
			continue // malformed node id; skip rather than fail the whole round
		}
		state, err := g.ledger.Get(id)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			NodeID:     id,
			PubKey:     pub.Classical,
			Reputation: state.Reputation,
		})
	}
	return RoundInfo{Candidates: candidates, Proofs: proofs}, nil
}
