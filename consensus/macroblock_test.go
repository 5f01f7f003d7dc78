package consensus

import (
	"testing"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/crypto"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/internal/testutil"
	"github.com/qnet-chain/qnetd/reputation"
)

func newTestMacroEngine(t *testing.T) (*MacroEngine, *reputation.Ledger) {
	t.Helper()
	ledger := reputation.New(testutil.NewMemDB())
	engine := NewMacroEngine(testutil.NewMacroStore(), ledger, events.NewEmitter())
	return engine, ledger
}

func commitReveal(t *testing.T, participants []string) map[string]core.RevealValue {
	t.Helper()
	root := "window-root-abc"
	reveals := make(map[string]core.RevealValue, len(participants))
	for _, p := range participants {
		reveals[p] = core.RevealValue{Root: root, Salt: "salt-" + p}
	}
	return reveals
}

func TestMacroEngineHappyPath(t *testing.T) {
	engine, ledger := newTestMacroEngine(t)
	participants := []string{"n1", "n2", "n3"}
	for _, p := range participants {
		if err := ledger.Register(p, p, reputation.RoleFull); err != nil {
			t.Fatalf("Register %s: %v", p, err)
		}
	}
	weights := map[string]float64{"n1": 70, "n2": 70, "n3": 70}
	mrange := core.MicroblockRange{StartHash: "start", EndHash: "end"}

	if err := engine.StartWindow(1, mrange, participants, weights); err != nil {
		t.Fatalf("StartWindow: %v", err)
	}
	if engine.Phase() != PhaseCommitOpen {
		t.Fatalf("phase after StartWindow = %s, want %s", engine.Phase(), PhaseCommitOpen)
	}

	reveals := commitReveal(t, participants)
	for _, p := range participants {
		commitment := crypto.Hash([]byte(reveals[p].Root + reveals[p].Salt))
		if err := engine.SubmitCommit(p, commitment); err != nil {
			t.Fatalf("SubmitCommit(%s): %v", p, err)
		}
	}

	if err := engine.OpenReveal(); err != nil {
		t.Fatalf("OpenReveal: %v", err)
	}
	if engine.Phase() != PhaseRevealOpen {
		t.Fatalf("phase after OpenReveal = %s, want %s", engine.Phase(), PhaseRevealOpen)
	}

	for _, p := range participants {
		if err := engine.SubmitReveal(p, reveals[p]); err != nil {
			t.Fatalf("SubmitReveal(%s): %v", p, err)
		}
	}

	mb, err := engine.Decide()
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mb.MerkleRoot != "window-root-abc" {
		t.Errorf("finalized root = %q, want window-root-abc", mb.MerkleRoot)
	}
	if engine.Phase() != PhaseFinalized {
		t.Errorf("phase after Decide = %s, want %s", engine.Phase(), PhaseFinalized)
	}
}

func TestMacroEngineInvalidRevealPenalized(t *testing.T) {
	engine, ledger := newTestMacroEngine(t)
	participants := []string{"n1", "n2", "n3"}
	for _, p := range participants {
		if err := ledger.Register(p, p, reputation.RoleFull); err != nil {
			t.Fatalf("Register %s: %v", p, err)
		}
	}
	weights := map[string]float64{"n1": 70, "n2": 70, "n3": 70}
	if err := engine.StartWindow(1, core.MicroblockRange{}, participants, weights); err != nil {
		t.Fatalf("StartWindow: %v", err)
	}

	for _, p := range participants {
		commitment := crypto.Hash([]byte("root-" + p))
		if err := engine.SubmitCommit(p, commitment); err != nil {
			t.Fatalf("SubmitCommit(%s): %v", p, err)
		}
	}
	if err := engine.OpenReveal(); err != nil {
		t.Fatalf("OpenReveal: %v", err)
	}

	// n1 reveals a value that doesn't match its commitment.
	if err := engine.SubmitReveal("n1", core.RevealValue{Root: "wrong", Salt: "wrong"}); err == nil {
		t.Error("expected an error for a reveal that doesn't match its commitment")
	}

	before, err := ledger.Get("n1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if before.Reputation >= reputation.DefaultReputation {
		t.Errorf("invalid reveal should have penalized n1's reputation, got %v", before.Reputation)
	}
}

func TestMacroEngineSubmitCommitRejectsNonParticipant(t *testing.T) {
	engine, ledger := newTestMacroEngine(t)
	if err := ledger.Register("n1", "n1", reputation.RoleFull); err != nil {
		t.Fatal(err)
	}
	if err := engine.StartWindow(1, core.MicroblockRange{}, []string{"n1"}, map[string]float64{"n1": 70}); err != nil {
		t.Fatalf("StartWindow: %v", err)
	}
	if err := engine.SubmitCommit("intruder", "deadbeef"); err == nil {
		t.Error("a non-participant must not be able to submit a commit")
	}
}

func TestMacroEngineCannotStartWindowTwiceConcurrently(t *testing.T) {
	engine, ledger := newTestMacroEngine(t)
	if err := ledger.Register("n1", "n1", reputation.RoleFull); err != nil {
		t.Fatal(err)
	}
	if err := engine.StartWindow(1, core.MicroblockRange{}, []string{"n1"}, map[string]float64{"n1": 70}); err != nil {
		t.Fatalf("StartWindow: %v", err)
	}
	if err := engine.StartWindow(2, core.MicroblockRange{}, []string{"n1"}, map[string]float64{"n1": 70}); err == nil {
		t.Error("starting a second window while one is already open must fail")
	}
}
