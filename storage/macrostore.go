package storage

import (
	"encoding/json"
	"fmt"

	"github.com/qnet-chain/qnetd/core"
)

const (
	keyMacroPrefix     = "macro:"
	keyMacroTipWindow  = "macro:tip:window"
)

// MacroStore persists the append-only macroblock log and the latest
// finalized window height, keyed independently of the microblock chain.
type MacroStore struct {
	db DB
}

// NewMacroStore wraps db as a MacroStore.
func NewMacroStore(db DB) *MacroStore {
	return &MacroStore{db: db}
}

// Put stores a finalized macroblock, indexed by window height.
func (s *MacroStore) Put(mb *core.Macroblock) error {
	data, err := json.Marshal(mb)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%d", keyMacroPrefix, mb.WindowHeight)
	batch := s.db.NewBatch()
	batch.Set([]byte(key), data)
	batch.Set([]byte(keyMacroTipWindow), []byte(fmt.Sprintf("%d", mb.WindowHeight)))
	return batch.Write()
}

// Get returns the finalized macroblock for windowHeight.
func (s *MacroStore) Get(windowHeight int64) (*core.Macroblock, error) {
	key := fmt.Sprintf("%s%d", keyMacroPrefix, windowHeight)
	data, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	var mb core.Macroblock
	if err := json.Unmarshal(data, &mb); err != nil {
		return nil, err
	}
	return &mb, nil
}

// TipWindow returns the window height of the most recently finalized
// macroblock, or 0 if none has been finalized yet.
func (s *MacroStore) TipWindow() (int64, error) {
	data, err := s.db.Get([]byte(keyMacroTipWindow))
	if err == core.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var h int64
	if _, err := fmt.Sscanf(string(data), "%d", &h); err != nil {
		return 0, err
	}
	return h, nil
}
