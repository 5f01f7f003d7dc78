package activation

import (
	"errors"
	"testing"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/internal/testutil"
	"github.com/qnet-chain/qnetd/reputation"
)

type fakeBurnVerifier struct {
	amounts map[string]uint64 // proof -> amount
}

func (f *fakeBurnVerifier) VerifyBurn(wallet, proof string) (uint64, error) {
	amount, ok := f.amounts[proof]
	if !ok {
		return 0, errors.New("burn proof not found")
	}
	return amount, nil
}

func newTestService(t *testing.T, burns *fakeBurnVerifier) (*Service, *Store, *reputation.Ledger) {
	t.Helper()
	db := testutil.NewMemDB()
	store := NewStore(db)
	ledger := reputation.New(db)
	return NewService(store, ledger, burns, nil), store, ledger
}

func TestRequestActivationFullNodeRequiresSufficientBurn(t *testing.T) {
	burns := &fakeBurnVerifier{amounts: map[string]uint64{"proof-ok": 1_000, "proof-low": 500}}
	svc, _, ledger := newTestService(t, burns)

	if _, err := svc.RequestActivation("node1", "wallet1", config.NodeFull, "code1", "proof-low", "devsig", false); err == nil {
		t.Error("burn below the minimum for Full should be rejected")
	}

	rec, err := svc.RequestActivation("node2", "wallet1", config.NodeFull, "code2", "proof-ok", "devsig", false)
	if err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}
	if rec.Role != config.NodeFull {
		t.Errorf("record role = %s, want Full", rec.Role)
	}

	state, err := ledger.Get("node2")
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if state.Role != reputation.RoleFull {
		t.Errorf("ledger role = %s, want Full", state.Role)
	}
}

func TestRequestActivationLightNodeRejectsServerHardware(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeBurnVerifier{amounts: map[string]uint64{}})
	_, err := svc.RequestActivation("node1", "wallet1", config.NodeLight, "code1", "", "devsig", true)
	if !errors.Is(err, ErrLightOnServer) {
		t.Errorf("expected ErrLightOnServer, got %v", err)
	}
}

func TestRequestActivationLightNodeNeedsNoBurn(t *testing.T) {
	svc, store, _ := newTestService(t, &fakeBurnVerifier{amounts: map[string]uint64{}})
	rec, err := svc.RequestActivation("node1", "wallet1", config.NodeLight, "code1", "", "devsig", false)
	if err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}
	if rec.BurnTxHash != "" {
		t.Errorf("Light node activation should not record a burn hash, got %q", rec.BurnTxHash)
	}
	exists, err := store.Exists("node1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("activation record should have been sealed")
	}
}

func TestRequestActivationRejectsDuplicateNode(t *testing.T) {
	burns := &fakeBurnVerifier{amounts: map[string]uint64{"proof-ok": 1_000}}
	svc, _, _ := newTestService(t, burns)
	if _, err := svc.RequestActivation("node1", "wallet1", config.NodeFull, "code1", "proof-ok", "devsig", false); err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}
	if _, err := svc.RequestActivation("node1", "wallet2", config.NodeFull, "code2", "proof-ok", "devsig", false); err == nil {
		t.Error("re-activating an already-activated node must fail")
	}
}

func TestStoreRoundtripRequiresCorrectActivationCode(t *testing.T) {
	burns := &fakeBurnVerifier{amounts: map[string]uint64{"proof-ok": 1_000}}
	svc, store, _ := newTestService(t, burns)
	if _, err := svc.RequestActivation("node1", "wallet1", config.NodeFull, "the-real-code", "proof-ok", "devsig", false); err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}
	if _, err := store.Get("node1", "the-real-code"); err != nil {
		t.Errorf("Get with the correct activation code should succeed: %v", err)
	}
	if _, err := store.Get("node1", "wrong-code"); err == nil {
		t.Error("Get with the wrong activation code must fail")
	}
}

func TestMigrateRejectsLightNodeRoleChange(t *testing.T) {
	burns := &fakeBurnVerifier{amounts: map[string]uint64{"proof-ok": 10_000}}
	svc, _, _ := newTestService(t, burns)
	if _, err := svc.RequestActivation("node1", "wallet1", config.NodeLight, "code1", "", "devsig", false); err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}
	if _, err := svc.Migrate("node1", "code1", config.NodeSuper, "proof-ok"); err == nil {
		t.Error("migrating a Light node's role must be rejected")
	}
}

func TestMigrateUpgradesRoleWithSufficientBurn(t *testing.T) {
	burns := &fakeBurnVerifier{amounts: map[string]uint64{"proof-full": 1_000, "proof-super": 10_000}}
	svc, _, ledger := newTestService(t, burns)
	if _, err := svc.RequestActivation("node1", "wallet1", config.NodeFull, "code1", "proof-full", "devsig", false); err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}
	rec, err := svc.Migrate("node1", "code1", config.NodeSuper, "proof-super")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if rec.Role != config.NodeSuper {
		t.Errorf("role after migration = %s, want Super", rec.Role)
	}
	_ = ledger // ledger role isn't updated by Migrate; RequestActivation owns initial role binding
}

func TestBindMigratesDeviceAndDeactivatesPriorBinding(t *testing.T) {
	burns := &fakeBurnVerifier{amounts: map[string]uint64{"proof-ok": 1_000}}
	svc, store, _ := newTestService(t, burns)

	if _, err := svc.RequestActivation("nodeA", "wallet1", config.NodeFull, "code1", "proof-ok", "deviceA", false); err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}

	active, found, err := store.ActiveNodeForCode("code1")
	if err != nil {
		t.Fatalf("ActiveNodeForCode: %v", err)
	}
	if !found || active != "nodeA" {
		t.Fatalf("ActiveNodeForCode = %q, %v; want nodeA, true", active, found)
	}

	// A new device presents the same activation code.
	if _, err := svc.Bind("nodeB", "wallet1", config.NodeFull, "code1", "deviceB", "proof-ok"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	active, found, err = store.ActiveNodeForCode("code1")
	if err != nil {
		t.Fatalf("ActiveNodeForCode: %v", err)
	}
	if !found || active != "nodeB" {
		t.Errorf("ActiveNodeForCode after Bind = %q, %v; want nodeB, true", active, found)
	}

	priorRec, err := store.Get("nodeA", "code1")
	if err != nil {
		t.Fatalf("Get(nodeA): %v", err)
	}
	if priorRec.Active {
		t.Error("the prior device's binding should be deactivated once a new device binds the same code")
	}

	newRec, err := store.Get("nodeB", "code1")
	if err != nil {
		t.Fatalf("Get(nodeB): %v", err)
	}
	if !newRec.Active {
		t.Error("the new device's binding should be active")
	}
}

func TestBindSameNodeIsANoopMigration(t *testing.T) {
	burns := &fakeBurnVerifier{amounts: map[string]uint64{"proof-ok": 1_000}}
	svc, store, _ := newTestService(t, burns)
	if _, err := svc.RequestActivation("nodeA", "wallet1", config.NodeFull, "code1", "proof-ok", "deviceA", false); err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}
	if _, err := svc.Bind("nodeA", "wallet1", config.NodeFull, "code1", "deviceA2", "proof-ok"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	rec, err := store.Get("nodeA", "code1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Active {
		t.Error("re-binding the same node should leave it active")
	}
}
