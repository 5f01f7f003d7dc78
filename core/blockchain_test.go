package core

import (
	"testing"

	"github.com/qnet-chain/qnetd/crypto"
)

type memBlockStore struct {
	blocks map[string]*Microblock
	byH    map[int64]string
	tip    string
}

func newMemBlockStore() *memBlockStore {
	return &memBlockStore{blocks: make(map[string]*Microblock), byH: make(map[int64]string)}
}

func (s *memBlockStore) GetBlock(hash string) (*Microblock, error) {
	b, ok := s.blocks[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *memBlockStore) PutBlock(block *Microblock) error {
	s.blocks[block.Hash] = block
	return nil
}

func (s *memBlockStore) GetBlockByHeight(height int64) (*Microblock, error) {
	h, ok := s.byH[height]
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetBlock(h)
}

func (s *memBlockStore) PutBlockByHeight(height int64, hash string) error {
	s.byH[height] = hash
	return nil
}

func (s *memBlockStore) GetTip() (string, error) { return s.tip, nil }

func (s *memBlockStore) SetTip(hash string) error { s.tip = hash; return nil }

func (s *memBlockStore) CommitBlock(block *Microblock) error {
	s.blocks[block.Hash] = block
	s.byH[block.Header.Height] = block.Hash
	s.tip = block.Hash
	return nil
}

func signedBlock(t *testing.T, height int64, prevHash, producer string, priv crypto.HybridPrivateKey) *Microblock {
	t.Helper()
	b := NewMicroblock(height, prevHash, producer, nil)
	b.Sign(priv)
	return b
}

func TestBlockchainAddBlockEnforcesLinkage(t *testing.T) {
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	bc := NewBlockchain(newMemBlockStore())
	if err := bc.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	genesis := signedBlock(t, 0, "genesis", pub.Hex(), priv)
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatalf("AddBlock(genesis): %v", err)
	}
	if bc.Height() != 0 {
		t.Errorf("height after genesis = %d, want 0", bc.Height())
	}

	next := signedBlock(t, 1, genesis.Hash, pub.Hex(), priv)
	if err := bc.AddBlock(next); err != nil {
		t.Fatalf("AddBlock(height 1): %v", err)
	}
	if bc.Tip().Hash != next.Hash {
		t.Error("tip should advance to the newly added block")
	}

	badHeight := signedBlock(t, 5, next.Hash, pub.Hex(), priv)
	if err := bc.AddBlock(badHeight); err == nil {
		t.Error("AddBlock should reject a block that skips heights")
	}

	badPrev := signedBlock(t, 2, "not-the-real-tip-hash", pub.Hex(), priv)
	if err := bc.AddBlock(badPrev); err == nil {
		t.Error("AddBlock should reject a block whose prev_hash doesn't match the tip")
	}
}

func TestBlockchainConflictingBlockDetectsFork(t *testing.T) {
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	bc := NewBlockchain(newMemBlockStore())
	if err := bc.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	genesis := signedBlock(t, 0, "genesis", pub.Hex(), priv)
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	first := signedBlock(t, 1, genesis.Hash, pub.Hex(), priv)
	if err := bc.AddBlock(first); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	_, conflict, err := bc.ConflictingBlock(1, first.Hash)
	if err != nil {
		t.Fatalf("ConflictingBlock: %v", err)
	}
	if conflict {
		t.Error("the same hash at the same height is not a conflict")
	}

	rival := signedBlock(t, 1, genesis.Hash, pub.Hex(), priv)
	existing, conflict, err := bc.ConflictingBlock(1, rival.Hash)
	if err != nil {
		t.Fatalf("ConflictingBlock: %v", err)
	}
	if !conflict {
		t.Error("a different block proposed at an already-filled height is a conflict")
	}
	if existing.Hash != first.Hash {
		t.Errorf("ConflictingBlock should return the originally stored block, got %s", existing.Hash)
	}
}

func TestMicroblockVerifyRejectsTamperedHeader(t *testing.T) {
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	b := signedBlock(t, 1, "prev", pub.Hex(), priv)
	if err := b.Verify(pub); err != nil {
		t.Fatalf("Verify on an untampered block failed: %v", err)
	}
	b.Header.Height = 99
	if err := b.Verify(pub); err == nil {
		t.Error("Verify should fail once the header is tampered with after signing")
	}
}
