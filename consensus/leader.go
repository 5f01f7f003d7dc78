package consensus

import (
	"fmt"
	"sort"

	"github.com/qnet-chain/qnetd/crypto"
)

// maxSuccessors is the number of failover successors designated alongside
// the leader for each slot.
const maxSuccessors = 3

// Candidate is an eligible node participating in leader selection for a
// given microblock height.
type Candidate struct {
	NodeID     string
	PubKey     crypto.PublicKey // classical half of the node's hybrid key, used for VRF
	Reputation float64
}

// rankedCandidate is a candidate with its computed selection score.
type rankedCandidate struct {
	nodeID string
	score  float64
}

// SelectLeader runs VRF-weighted leader election over candidates for seed
// (typically hash(prev_block_hash || height)). Each candidate must have
// already published a VRF proof over seed with its own key; proofs is keyed
// by NodeID. Each candidate's score is
// `vrf_value_normalized / (1 + reputation)`: higher reputation pulls the
// score down, and the lowest-scoring eligible candidate wins, with ties
// broken lexicographically on NodeID. This both selects a leader weighted
// toward reputation and yields a total order usable as the successor list
// for failover.
//
// Returns the leader's NodeID and up to maxSuccessors next-ranked
// candidates, in order, leader excluded.
func SelectLeader(seed []byte, candidates []Candidate, proofs map[string]crypto.VRFProof) (string, []string, error) {
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("consensus: no eligible candidates")
	}

	ranked := make([]rankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		proof, ok := proofs[c.NodeID]
		if !ok {
			continue // candidate did not publish a proof in time; excluded from this round
		}
		value, err := crypto.VRFVerify(c.PubKey, seed, proof)
		if err != nil {
			continue // invalid proof; treat as non-participating rather than failing the round
		}
		u := crypto.VRFNormalize(value)
		score := u / (1 + c.Reputation)
		ranked = append(ranked, rankedCandidate{nodeID: c.NodeID, score: score})
	}

	if len(ranked) == 0 {
		return "", nil, fmt.Errorf("consensus: no valid VRF proofs for this round")
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].nodeID < ranked[j].nodeID
	})

	leader := ranked[0].nodeID
	rest := ranked[1:]
	if len(rest) > maxSuccessors {
		rest = rest[:maxSuccessors]
	}
	successors := make([]string, 0, len(rest))
	for _, r := range rest {
		successors = append(successors, r.nodeID)
	}
	return leader, successors, nil
}

// SuccessorAt returns the Nth successor (1-indexed: 1 is the first
// fallback) from a previously computed successor list, or "" if the list
// is exhausted.
func SuccessorAt(successors []string, n int) string {
	idx := n - 1
	if idx < 0 || idx >= len(successors) {
		return ""
	}
	return successors[idx]
}
