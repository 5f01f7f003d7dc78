package consensus

import (
	"fmt"
	"log"
	"time"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/reputation"
)

// FailoverMonitor watches for a missed microblock duty and promotes the
// next-ranked successor after MissedDutyTimeout elapses with no block at
// the expected height.
type FailoverMonitor struct {
	engine *MicroEngine
	ledger *reputation.Ledger
}

// NewFailoverMonitor wires a monitor to engine and ledger.
func NewFailoverMonitor(engine *MicroEngine, ledger *reputation.Ledger) *FailoverMonitor {
	return &FailoverMonitor{engine: engine, ledger: ledger}
}

// WatchRound blocks until either the expected block at height arrives
// (arrived returns true) or MissedDutyTimeout elapses, in which case the
// leader is penalized for a missed duty and the live successors are tried in
// order. When the successor whose turn it is is this node, it is returned at
// once so the caller produces the block; any other successor gets its own
// timeout and is returned if the block arrives within it, or penalized and
// passed over if not.
func (f *FailoverMonitor) WatchRound(height int64, leader string, successors []string, arrived func() bool, isLive func(nodeID string) bool) (promoted string, err error) {
	deadline := time.Now().Add(MissedDutyTimeoutFor(height))
	for time.Now().Before(deadline) {
		if arrived() {
			return "", nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := f.ledger.Penalty(leader, reputation.OffenseMissedDuty, height); err != nil {
		log.Printf("[consensus] failed to record missed-duty penalty for %s: %v", leader, err)
	}

	for _, candidate := range successors {
		if !isLive(candidate) {
			continue
		}
		if f.engine != nil && candidate == f.engine.pubKey.Hex() {
			return candidate, nil
		}
		extended := time.Now().Add(MissedDutyTimeoutFor(height))
		for time.Now().Before(extended) {
			if arrived() {
				return candidate, nil
			}
			time.Sleep(50 * time.Millisecond)
		}
		if err := f.ledger.Penalty(candidate, reputation.OffenseMissedDuty, height); err != nil {
			log.Printf("[consensus] failed to record missed-duty penalty for successor %s: %v", candidate, err)
		}
	}

	return "", fmt.Errorf("consensus: all candidates for height %d missed their duty", height)
}

// MissedDutyTimeoutFor returns the grace period a leader or successor is
// given to produce the block at height before being penalized and passed
// over. Height 1 gets the longer MissedDutyTimeoutGenesis window to absorb
// simultaneous network startup; every other height uses MissedDutyTimeout.
func MissedDutyTimeoutFor(height int64) time.Duration {
	if height == 1 {
		return config.MissedDutyTimeoutGenesis
	}
	return config.MissedDutyTimeout
}
