package core

import (
	"testing"

	"github.com/qnet-chain/qnetd/crypto"
)

func signedTx(t *testing.T, priv crypto.HybridPrivateKey, from string, nonce, fee uint64) *Transaction {
	t.Helper()
	tx, err := NewTransaction(TxTransfer, from, nonce, fee, TransferPayload{To: "someone", Amount: 1})
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	tx.Sign(priv)
	return tx
}

func TestMempoolAddRejectsInvalidSignature(t *testing.T) {
	m := NewMempool()
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	tx := signedTx(t, priv, pub.Hex(), 0, 10)
	tx.Nonce = 99 // tamper after signing
	if err := m.Add(tx); err == nil {
		t.Error("Add should reject a transaction whose signature no longer matches its fields")
	}
}

func TestMempoolAddRejectsDuplicate(t *testing.T) {
	m := NewMempool()
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	tx := signedTx(t, priv, pub.Hex(), 0, 10)
	if err := m.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(tx); err == nil {
		t.Error("Add should reject a transaction already in the pool")
	}
}

func TestMempoolPendingOrdersByFeeThenNonceThenArrival(t *testing.T) {
	m := NewMempool()
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	low := signedTx(t, priv, pub.Hex(), 1, 5)
	high := signedTx(t, priv, pub.Hex(), 2, 50)
	mid := signedTx(t, priv, pub.Hex(), 0, 20)

	for _, tx := range []*Transaction{low, high, mid} {
		if err := m.Add(tx); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	pending := m.Pending(10)
	if len(pending) != 3 {
		t.Fatalf("Pending returned %d txs, want 3", len(pending))
	}
	if pending[0].ID != high.ID || pending[1].ID != mid.ID || pending[2].ID != low.ID {
		t.Errorf("Pending should order by fee descending: got %s, %s, %s",
			pending[0].ID, pending[1].ID, pending[2].ID)
	}

	// Equal fees: lower nonce first, then earlier arrival.
	m2 := NewMempool()
	priv2, pub2, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	late := signedTx(t, priv, pub.Hex(), 3, 10)
	first := signedTx(t, priv, pub.Hex(), 1, 10)
	second := signedTx(t, priv2, pub2.Hex(), 1, 10)
	for _, tx := range []*Transaction{late, first, second} {
		if err := m2.Add(tx); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	pending = m2.Pending(10)
	if len(pending) != 3 {
		t.Fatalf("Pending returned %d txs, want 3", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID || pending[2].ID != late.ID {
		t.Errorf("Pending should order equal fees by nonce, then arrival: got %s, %s, %s",
			pending[0].ID, pending[1].ID, pending[2].ID)
	}
}

func TestMempoolRemove(t *testing.T) {
	m := NewMempool()
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	tx := signedTx(t, priv, pub.Hex(), 0, 10)
	if err := m.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	m.Remove([]string{tx.ID})
	if m.Size() != 0 {
		t.Errorf("Size after Remove = %d, want 0", m.Size())
	}
	if _, ok := m.Get(tx.ID); ok {
		t.Error("Get should not find a removed transaction")
	}
}

func TestMempoolPendingCapsAtLimit(t *testing.T) {
	m := NewMempool()
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	for i := uint64(0); i < 5; i++ {
		if err := m.Add(signedTx(t, priv, pub.Hex(), i, i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if got := m.Pending(2); len(got) != 2 {
		t.Errorf("Pending(2) returned %d txs, want 2", len(got))
	}
}
