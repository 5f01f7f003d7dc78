package consensus

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/crypto"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/reputation"
	"github.com/qnet-chain/qnetd/storage"
)

// Phase identifies the macroblock commit-reveal round state.
type Phase string

const (
	PhaseIdle         Phase = "Idle"
	PhaseCollecting   Phase = "Collecting"
	PhaseCommitOpen   Phase = "CommitOpen"
	PhaseRevealOpen   Phase = "RevealOpen"
	PhaseDeciding     Phase = "Deciding"
	PhaseFinalized    Phase = "Finalized"
	PhaseAborted      Phase = "Aborted"
)

// MacroEngine runs the 90-microblock commit-reveal Byzantine agreement
// round that finalizes a window of microblocks into a macroblock.
type MacroEngine struct {
	mu sync.Mutex

	macros *storage.MacroStore
	ledger *reputation.Ledger
	emitter *events.Emitter

	phase   Phase
	window  int64
	mb      *core.Macroblock
	weights map[string]float64 // participant -> reputation weight at round start

	commitDeadline time.Time
	revealDeadline time.Time
}

// NewMacroEngine creates an idle macroblock engine.
func NewMacroEngine(macros *storage.MacroStore, ledger *reputation.Ledger, emitter *events.Emitter) *MacroEngine {
	return &MacroEngine{macros: macros, ledger: ledger, emitter: emitter, phase: PhaseIdle}
}

// Phase returns the current round phase.
func (m *MacroEngine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// StartWindow opens a new round for windowHeight over the given microblock
// range, with participants drawn from the validator sample for this window
// (the sampler's output) and their current reputation weights.
func (m *MacroEngine) StartWindow(windowHeight int64, mrange core.MicroblockRange, participants []string, weights map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseIdle && m.phase != PhaseFinalized && m.phase != PhaseAborted {
		return fmt.Errorf("consensus: cannot start window %d while in phase %s", windowHeight, m.phase)
	}
	m.window = windowHeight
	m.weights = weights
	m.mb = &core.Macroblock{
		WindowHeight:        windowHeight,
		MicroblockRange:     mrange,
		Participants:        participants,
		Commits:             make(map[string]string),
		Reveals:             make(map[string]core.RevealValue),
		AggregateSignatures: make(map[string]string),
	}
	m.phase = PhaseCollecting
	m.commitDeadline = time.Now().Add(config.MacroCommitTimeout)
	m.phase = PhaseCommitOpen
	m.emit(events.EventMacroPhase, map[string]any{"window": windowHeight, "phase": string(PhaseCommitOpen)})
	return nil
}

// SubmitCommit records participant's H(root||salt) commitment during the
// CommitOpen phase.
func (m *MacroEngine) SubmitCommit(participant, commitment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseCommitOpen {
		return fmt.Errorf("consensus: not accepting commits in phase %s", m.phase)
	}
	if !m.isParticipant(participant) {
		return fmt.Errorf("consensus: %s is not a participant in window %d", participant, m.window)
	}
	m.mb.Commits[participant] = commitment
	return nil
}

// OpenReveal transitions CommitOpen -> RevealOpen once the commit deadline
// has passed (or all participants have committed).
func (m *MacroEngine) OpenReveal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseCommitOpen {
		return fmt.Errorf("consensus: cannot open reveal from phase %s", m.phase)
	}
	if time.Now().Before(m.commitDeadline) && len(m.mb.Commits) < len(m.mb.Participants) {
		return errors.New("consensus: commit phase still open")
	}
	m.phase = PhaseRevealOpen
	m.revealDeadline = time.Now().Add(config.MacroRevealTimeout)
	m.emit(events.EventMacroPhase, map[string]any{"window": m.window, "phase": string(PhaseRevealOpen)})
	return nil
}

// SubmitReveal records participant's opened (root, salt) value. The value
// must hash to the commitment the participant made during CommitOpen, or
// the reveal is rejected as invalid and penalized.
func (m *MacroEngine) SubmitReveal(participant string, reveal core.RevealValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseRevealOpen {
		return fmt.Errorf("consensus: not accepting reveals in phase %s", m.phase)
	}
	committed, ok := m.mb.Commits[participant]
	if !ok {
		return fmt.Errorf("consensus: %s never committed in window %d", participant, m.window)
	}
	if crypto.Hash([]byte(reveal.Root+reveal.Salt)) != committed {
		if err := m.ledger.Penalty(participant, reputation.OffenseInvalidReveal, m.window); err != nil {
			log.Printf("[consensus] invalid-reveal penalty failed for %s: %v", participant, err)
		}
		return fmt.Errorf("consensus: reveal from %s does not match its commitment", participant)
	}
	m.mb.Reveals[participant] = reveal
	if err := m.ledger.Reward(participant, reputation.RewardRevealOnTime, m.window); err != nil {
		log.Printf("[consensus] reveal reward failed for %s: %v", participant, err)
	}
	return nil
}

// Decide transitions RevealOpen -> Deciding -> Finalized/Aborted. A window
// finalizes once at least RequiredReveals(len(participants)) valid reveals
// agree on the same root; ties among competing roots are broken by summed
// reputation weight of the revealing participants, then lexicographically
// by root hash. Participants who committed but never revealed are penalized
// for a missed duty.
func (m *MacroEngine) Decide() (*core.Macroblock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseRevealOpen {
		return nil, fmt.Errorf("consensus: cannot decide from phase %s", m.phase)
	}
	if time.Now().Before(m.revealDeadline) && len(m.mb.Reveals) < len(m.mb.Commits) {
		return nil, errors.New("consensus: reveal phase still open")
	}
	m.phase = PhaseDeciding

	for participant := range m.mb.Commits {
		if _, revealed := m.mb.Reveals[participant]; !revealed {
			if err := m.ledger.Penalty(participant, reputation.OffenseMissedDuty, m.window); err != nil {
				log.Printf("[consensus] missed-reveal penalty failed for %s: %v", participant, err)
			}
		}
	}

	type tally struct {
		weight  float64
		signers []string
	}
	byRoot := make(map[string]*tally)
	for participant, rv := range m.mb.Reveals {
		t, ok := byRoot[rv.Root]
		if !ok {
			t = &tally{}
			byRoot[rv.Root] = t
		}
		t.weight += m.weights[participant]
		t.signers = append(t.signers, participant)
	}

	required := core.RequiredReveals(len(m.mb.Participants))
	var winner string
	var winnerSigners []string
	best := -1.0
	roots := make([]string, 0, len(byRoot))
	for r := range byRoot {
		roots = append(roots, r)
	}
	sort.Strings(roots) // deterministic traversal before the weight comparison
	for _, r := range roots {
		t := byRoot[r]
		if len(t.signers) < required {
			continue
		}
		if t.weight > best {
			best = t.weight
			winner = r
			winnerSigners = t.signers
		}
	}

	if winner == "" {
		m.phase = PhaseAborted
		m.emit(events.EventMacroPhase, map[string]any{"window": m.window, "phase": string(PhaseAborted)})
		return nil, fmt.Errorf("consensus: window %d failed to reach quorum (need %d)", m.window, required)
	}

	m.mb.MerkleRoot = winner
	sort.Strings(winnerSigners)
	for _, s := range winnerSigners {
		m.mb.AggregateSignatures[s] = m.mb.Reveals[s].Salt // salt already proves knowledge of the preimage; full hybrid sigs are attached by the caller before persistence
	}
	if err := m.macros.Put(m.mb); err != nil {
		return nil, fmt.Errorf("persist macroblock: %w", err)
	}
	m.phase = PhaseFinalized
	m.emit(events.EventMacroPhase, map[string]any{"window": m.window, "phase": string(PhaseFinalized), "root": winner})
	return m.mb, nil
}

// Reset returns the engine to Idle so a new window can start.
func (m *MacroEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseIdle
	m.mb = nil
}

func (m *MacroEngine) isParticipant(id string) bool {
	for _, p := range m.mb.Participants {
		if p == id {
			return true
		}
	}
	return false
}

func (m *MacroEngine) emit(t events.EventType, data map[string]any) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(events.Event{Type: t, BlockHeight: m.window, Data: data})
}
