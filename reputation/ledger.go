package reputation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/storage"
)

const (
	prefixNode  = "rep:node:"
	prefixEvent = "rep:event:"
)

// jailSchedule is the progressive jail schedule for non-critical offenses,
// indexed by offense_count (1-based): 1h, 24h, 7d, 30d, 90d, 1y.
var jailSchedule = []time.Duration{
	1 * time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
	30 * 24 * time.Hour,
	90 * 24 * time.Hour,
	365 * 24 * time.Hour,
}

// criticalJail is the jail duration applied immediately on a critical
// attack, regardless of prior offense_count.
const criticalJail = 365 * 24 * time.Hour

// Ledger is the reputation accounting component: per-node score, history,
// jail state, offense counters.
type Ledger struct {
	mu      sync.Mutex // serializes per-node event application
	db      storage.DB
	emitter *events.Emitter // optional; set via SetEmitter
}

// New creates a Ledger backed by db.
func New(db storage.DB) *Ledger {
	return &Ledger{db: db}
}

// SetEmitter wires the event bus the ledger publishes EventReputationChange
// on. Without one, Record still applies and persists changes, but nothing
// downstream (the indexer's per-node history) observes them.
func (l *Ledger) SetEmitter(emitter *events.Emitter) {
	l.emitter = emitter
}

// Get returns the node's current state, or a freshly-defaulted one if the
// node has never been seen.
func (l *Ledger) Get(nodeID string) (*NodeState, error) {
	data, err := l.db.Get([]byte(prefixNode + nodeID))
	if errors.Is(err, core.ErrNotFound) {
		return &NodeState{NodeID: nodeID, OffenseCount: make(map[string]int)}, nil
	}
	if err != nil {
		return nil, err
	}
	var n NodeState
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal node state: %w", err)
	}
	if n.OffenseCount == nil {
		n.OffenseCount = make(map[string]int)
	}
	return &n, nil
}

func (l *Ledger) put(n *NodeState) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return l.db.Set([]byte(prefixNode+n.NodeID), data)
}

// Register creates a new node record at default reputation. Used on
// successful activation.
func (l *Ledger) Register(nodeID, wallet string, role Role) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := NewNodeState(nodeID, wallet, role)
	n.ActivationTime = time.Now().UnixNano()
	return l.put(n)
}

// Record clamps the resulting score to [0,100], appends an event, and is
// idempotent under (node_id, block_height, reason): replays have no
// additional effect.
func (l *Ledger) Record(nodeID string, delta float64, reason string, blockHeight int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := []byte(dedupKey(nodeID, blockHeight, reason))
	if _, err := l.db.Get(key); err == nil {
		return nil // already applied
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	n, err := l.Get(nodeID)
	if err != nil {
		return err
	}
	n.Reputation += delta
	if n.Reputation > 100 {
		n.Reputation = 100
	}
	if n.Reputation < 0 {
		n.Reputation = 0
	}
	if err := l.put(n); err != nil {
		return err
	}

	ev := Event{NodeID: nodeID, Delta: delta, Reason: reason, Timestamp: time.Now().UnixNano(), BlockHeight: blockHeight}
	evData, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := l.db.Set([]byte(eventKey(nodeID, blockHeight, reason)), evData); err != nil {
		return err
	}
	if err := l.db.Set(key, []byte{1}); err != nil {
		return err
	}

	if l.emitter != nil {
		l.emitter.Emit(events.Event{
			Type:        events.EventReputationChange,
			BlockHeight: blockHeight,
			Data: map[string]any{
				"node_id": nodeID,
				"delta":   delta,
				"reason":  reason,
			},
		})
	}
	return nil
}

// Penalty applies the standard delta for kind and, for critical attacks,
// saturates offense_count and jails at the terminal rung immediately
// (genesis nodes get no exemption).
func (l *Ledger) Penalty(nodeID string, kind OffenseKind, blockHeight int64) error {
	delta, ok := penaltyDelta[kind]
	if !ok {
		return fmt.Errorf("reputation: unknown offense kind %q", kind)
	}
	if err := l.Record(nodeID, delta, string(kind), blockHeight); err != nil {
		return err
	}

	l.mu.Lock()
	n, err := l.Get(nodeID)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	n.OffenseCount[string(kind)]++

	if kind.IsCritical() {
		// Saturate to the terminal rung and jail for the maximum term.
		n.OffenseCount[string(kind)] = len(jailSchedule)
		n.JailUntil = time.Now().Add(criticalJail).UnixNano()
	} else {
		count := n.OffenseCount[string(kind)]
		idx := count - 1
		if idx >= len(jailSchedule) {
			idx = len(jailSchedule) - 1
		}
		if idx >= 0 {
			n.JailUntil = time.Now().Add(jailSchedule[idx]).UnixNano()
		}
	}
	err = l.put(n)
	l.mu.Unlock()
	return err
}

// Reward applies the standard delta for kind.
func (l *Ledger) Reward(nodeID string, kind RewardKind, blockHeight int64) error {
	delta, ok := rewardDelta[kind]
	if !ok {
		return fmt.Errorf("reputation: unknown reward kind %q", kind)
	}
	return l.Record(nodeID, delta, string(kind), blockHeight)
}

// Jail sets jail_until to now+hours directly (used by the failover/attack
// path when a specific duration, not the standard schedule, is required).
func (l *Ledger) Jail(nodeID string, hours float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.Get(nodeID)
	if err != nil {
		return err
	}
	n.JailUntil = time.Now().Add(time.Duration(hours * float64(time.Hour))).UnixNano()
	return l.put(n)
}

// IsEligible reports whether nodeID may lead or vote right now.
func (l *Ledger) IsEligible(nodeID string) (bool, error) {
	n, err := l.Get(nodeID)
	if err != nil {
		return false, err
	}
	return n.IsEligible(time.Now().UnixNano()), nil
}

// EligiblePool scans all known node ids and returns those currently
// eligible. Used by the validator sampler and leader selector. ids is
// the full universe of known node identifiers, typically
// maintained by the network/activation layer.
func (l *Ledger) EligiblePool(ids []string) ([]string, error) {
	now := time.Now().UnixNano()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		if n.IsEligible(now) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Stats aggregates by-role counts for the network_stats() RPC.
type Stats struct {
	TotalNodes int            `json:"total_nodes"`
	Eligible   int            `json:"eligible"`
	ByRole     map[Role]int   `json:"by_role"`
}

// ComputeStats builds Stats by scanning the known id universe.
func (l *Ledger) ComputeStats(ids []string) (Stats, error) {
	st := Stats{ByRole: make(map[Role]int)}
	now := time.Now().UnixNano()
	for _, id := range ids {
		n, err := l.Get(id)
		if err != nil {
			return Stats{}, err
		}
		st.TotalNodes++
		st.ByRole[n.Role]++
		if n.IsEligible(now) {
			st.Eligible++
		}
	}
	return st, nil
}
