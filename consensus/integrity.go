package consensus

import (
	"log"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/reputation"
)

// IntegrityMonitor classifies the three critical attacks a node's actions
// can be caught committing: proposing two different microblocks at the
// same height (ChainFork), presenting stored data that does not match its
// committed hash (DatabaseSubstitution), and failing to produce
// previously-acknowledged state on request (StorageDeletion). All three
// carry the maximum penalty and bypass the progressive jail schedule.
type IntegrityMonitor struct {
	bc      *core.Blockchain
	ledger  *reputation.Ledger
	emitter *events.Emitter
}

// NewIntegrityMonitor wires a monitor to the chain, reputation ledger, and
// event bus.
func NewIntegrityMonitor(bc *core.Blockchain, ledger *reputation.Ledger, emitter *events.Emitter) *IntegrityMonitor {
	return &IntegrityMonitor{bc: bc, ledger: ledger, emitter: emitter}
}

// CheckFork reports whether a candidate microblock at height conflicts with
// one already stored, and if so penalizes its producer as a ChainFork.
func (im *IntegrityMonitor) CheckFork(candidate *core.Microblock) (bool, error) {
	existing, conflict, err := im.bc.ConflictingBlock(candidate.Header.Height, candidate.Hash)
	if err != nil {
		return false, err
	}
	if !conflict {
		return false, nil
	}
	// Only the producer who signed both conflicting blocks is at fault; a
	// naturally competing honest proposal at the same height (pre-failover)
	// is not a fork unless the producer IDs match.
	if existing.Header.ProducerID != candidate.Header.ProducerID {
		return false, nil
	}
	im.flagCritical(candidate.Header.ProducerID, reputation.OffenseChainFork, candidate.Header.Height)
	return true, nil
}

// CheckSubstitution reports a DatabaseSubstitution: nodeID presented data
// for hash that does not actually hash to it.
func (im *IntegrityMonitor) CheckSubstitution(nodeID string, claimedHash string, actualHash string, height int64) bool {
	if claimedHash == actualHash {
		return false
	}
	im.flagCritical(nodeID, reputation.OffenseDatabaseSubstitute, height)
	return true
}

// CheckStorageDeletion reports a StorageDeletion: nodeID failed to produce
// data it had previously acknowledged storing.
func (im *IntegrityMonitor) CheckStorageDeletion(nodeID string, found bool, height int64) bool {
	if found {
		return false
	}
	im.flagCritical(nodeID, reputation.OffenseStorageDeletion, height)
	return true
}

func (im *IntegrityMonitor) flagCritical(nodeID string, kind reputation.OffenseKind, height int64) {
	if err := im.ledger.Penalty(nodeID, kind, height); err != nil {
		log.Printf("[consensus] critical-attack penalty failed for %s (%s): %v", nodeID, kind, err)
	}
	if im.emitter != nil {
		im.emitter.Emit(events.Event{
			Type:        events.EventCriticalAlert,
			BlockHeight: height,
			Data:        map[string]any{"node_id": nodeID, "kind": string(kind)},
		})
	}
}
