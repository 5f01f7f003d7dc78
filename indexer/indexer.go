// Package indexer maintains secondary indexes over chain events so RPC
// clients can query reputation history by node and activation records by
// wallet without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/storage"
)

const (
	prefixNodeReputation = "idx:node:reputation:"
	prefixWalletNodes    = "idx:wallet:nodes:"
	prefixCriticalAlerts = "idx:alerts:critical:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventReputationChange, idx.onReputationChange)
	emitter.Subscribe(events.EventActivationBound, idx.onActivationBound)
	emitter.Subscribe(events.EventCriticalAlert, idx.onCriticalAlert)
	return idx
}

// GetReputationHistory returns the ordered list of reputation-change entries
// recorded on-chain for nodeID.
func (idx *Indexer) GetReputationHistory(nodeID string) ([]string, error) {
	return idx.getList(prefixNodeReputation + nodeID)
}

// GetNodesByWallet returns all node IDs a wallet has activated.
func (idx *Indexer) GetNodesByWallet(wallet string) ([]string, error) {
	return idx.getList(prefixWalletNodes + wallet)
}

// GetCriticalAlerts returns all critical-attack alert records for nodeID.
func (idx *Indexer) GetCriticalAlerts(nodeID string) ([]string, error) {
	return idx.getList(prefixCriticalAlerts + nodeID)
}

// ---- event handlers ----

func (idx *Indexer) onReputationChange(ev events.Event) {
	nodeID, _ := ev.Data["node_id"].(string)
	if nodeID == "" {
		return
	}
	reason, _ := ev.Data["reason"].(string)
	entry := fmt.Sprintf("%d:%s", ev.BlockHeight, reason)
	if err := idx.addToList(prefixNodeReputation+nodeID, entry); err != nil {
		log.Printf("[indexer] reputation index write failed (node=%s): %v", nodeID, err)
	}
}

func (idx *Indexer) onActivationBound(ev events.Event) {
	nodeID, _ := ev.Data["node_id"].(string)
	wallet, _ := ev.Data["wallet"].(string)
	if nodeID == "" || wallet == "" {
		return
	}
	if err := idx.addToList(prefixWalletNodes+wallet, nodeID); err != nil {
		log.Printf("[indexer] activation index write failed (wallet=%s node=%s): %v", wallet, nodeID, err)
	}
}

func (idx *Indexer) onCriticalAlert(ev events.Event) {
	nodeID, _ := ev.Data["node_id"].(string)
	kind, _ := ev.Data["kind"].(string)
	if nodeID == "" {
		return
	}
	entry := fmt.Sprintf("%d:%s", ev.BlockHeight, kind)
	if err := idx.addToList(prefixCriticalAlerts+nodeID, entry); err != nil {
		log.Printf("[indexer] critical-alert index write failed (node=%s): %v", nodeID, err)
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
