package consensus

import (
	"testing"

	"github.com/qnet-chain/qnetd/crypto"
)

type keyedCandidate struct {
	priv crypto.PrivateKey
	cand Candidate
}

func makeCandidates(t *testing.T, n int) []keyedCandidate {
	t.Helper()
	out := make([]keyedCandidate, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		out[i] = keyedCandidate{
			priv: priv,
			cand: Candidate{NodeID: pub.Hex(), PubKey: pub, Reputation: 70},
		}
	}
	return out
}

func TestSelectLeaderDeterministic(t *testing.T) {
	keyed := makeCandidates(t, 5)
	seed := []byte("height-100-seed")

	candidates := make([]Candidate, len(keyed))
	proofs := make(map[string]crypto.VRFProof, len(keyed))
	for i, k := range keyed {
		candidates[i] = k.cand
		_, proof := crypto.VRFEvaluate(k.priv, seed)
		proofs[k.cand.NodeID] = proof
	}

	leader1, succ1, err := SelectLeader(seed, candidates, proofs)
	if err != nil {
		t.Fatalf("SelectLeader: %v", err)
	}
	leader2, succ2, err := SelectLeader(seed, candidates, proofs)
	if err != nil {
		t.Fatalf("SelectLeader (rerun): %v", err)
	}
	if leader1 != leader2 {
		t.Errorf("leader election is not deterministic: %s vs %s", leader1, leader2)
	}
	if len(succ1) != maxSuccessors || len(succ2) != maxSuccessors {
		t.Errorf("successor list should be capped at %d, got %d", maxSuccessors, len(succ1))
	}
	for i := range succ1 {
		if succ1[i] != succ2[i] {
			t.Errorf("successor order is not deterministic at index %d: %s vs %s", i, succ1[i], succ2[i])
		}
	}
}

func TestSelectLeaderExcludesCandidatesWithoutProof(t *testing.T) {
	keyed := makeCandidates(t, 3)
	seed := []byte("seed")

	candidates := make([]Candidate, len(keyed))
	proofs := make(map[string]crypto.VRFProof)
	for i, k := range keyed {
		candidates[i] = k.cand
	}
	// Only the first candidate actually publishes a proof.
	_, proof := crypto.VRFEvaluate(keyed[0].priv, seed)
	proofs[keyed[0].cand.NodeID] = proof

	leader, successors, err := SelectLeader(seed, candidates, proofs)
	if err != nil {
		t.Fatalf("SelectLeader: %v", err)
	}
	if leader != keyed[0].cand.NodeID {
		t.Errorf("leader should be the only candidate with a valid proof, got %s", leader)
	}
	if len(successors) != 0 {
		t.Errorf("no successors should exist when only one candidate published a proof, got %v", successors)
	}
}

func TestSelectLeaderNoCandidates(t *testing.T) {
	if _, _, err := SelectLeader([]byte("seed"), nil, nil); err == nil {
		t.Error("expected an error with zero candidates")
	}
}

func TestSelectLeaderRejectsForgedProof(t *testing.T) {
	keyed := makeCandidates(t, 2)
	seed := []byte("seed")

	otherPriv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	_, forged := crypto.VRFEvaluate(otherPriv, seed)

	candidates := []Candidate{keyed[0].cand, keyed[1].cand}
	proofs := map[string]crypto.VRFProof{keyed[0].cand.NodeID: forged}

	if _, _, err := SelectLeader(seed, candidates, proofs); err == nil {
		t.Error("a proof signed by the wrong key must not be accepted")
	}
}

func TestSuccessorAt(t *testing.T) {
	successors := []string{"a", "b", "c"}
	if got := SuccessorAt(successors, 1); got != "a" {
		t.Errorf("SuccessorAt(1) = %q, want a", got)
	}
	if got := SuccessorAt(successors, 3); got != "c" {
		t.Errorf("SuccessorAt(3) = %q, want c", got)
	}
	if got := SuccessorAt(successors, 4); got != "" {
		t.Errorf("SuccessorAt(4) should be empty (exhausted), got %q", got)
	}
	if got := SuccessorAt(successors, 0); got != "" {
		t.Errorf("SuccessorAt(0) should be empty, got %q", got)
	}
}

func TestSampleDeterministicAndBounded(t *testing.T) {
	pool := []string{"n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8"}
	seed := []byte("sample-seed")

	s1 := Sample(pool, seed, 3)
	s2 := Sample(pool, seed, 3)
	if len(s1) != 3 {
		t.Fatalf("Sample returned %d items, want 3", len(s1))
	}
	for i := range s1 {
		if s1[i] != s2[i] {
			t.Errorf("Sample is not deterministic for the same (pool, seed) at index %d", i)
		}
	}

	seen := make(map[string]bool)
	for _, id := range s1 {
		if seen[id] {
			t.Errorf("Sample returned duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestSampleCapExceedsPool(t *testing.T) {
	pool := []string{"n1", "n2"}
	got := Sample(pool, []byte("seed"), 10)
	if len(got) != len(pool) {
		t.Errorf("Sample should cap at pool size when cap > len(pool): got %d want %d", len(got), len(pool))
	}
}

func TestSampleEmptyPool(t *testing.T) {
	if got := Sample(nil, []byte("seed"), 5); got != nil {
		t.Errorf("Sample of an empty pool should return nil, got %v", got)
	}
}
