package activation

import (
	"fmt"
	"time"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/reputation"
)

// Service drives the activation and role-migration flow: burn-proof
// verification, wallet<->node binding, and rate-limited role migration.
type Service struct {
	store   *Store
	ledger  *reputation.Ledger
	burns   BurnVerifier
	emitter *events.Emitter
}

// NewService wires a Service to its collaborators.
func NewService(store *Store, ledger *reputation.Ledger, burns BurnVerifier, emitter *events.Emitter) *Service {
	return &Service{store: store, ledger: ledger, burns: burns, emitter: emitter}
}

// ErrLightOnServer is returned when a Light-node activation request is made
// from hardware flagged as server-class. Light nodes are meant for
// resource-constrained client devices; running them on server hardware is
// rejected outright rather than silently allowed, since it would let an
// attacker cheaply mint many low-commitment identities.
var ErrLightOnServer = fmt.Errorf("activation: light nodes may not activate from server-class hardware")

// RequestActivation validates a burn proof and binds nodeID to
// activationCode for the first time. isServer is supplied by the caller's
// hardware-profile probe.
func (s *Service) RequestActivation(nodeID, wallet string, role config.NodeType, activationCode, burnProof, deviceSignature string, isServer bool) (*Record, error) {
	if role == config.NodeLight && isServer {
		return nil, ErrLightOnServer
	}

	exists, err := s.store.Exists(nodeID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("activation: node %q is already activated", nodeID)
	}

	var burnHash string
	if role != config.NodeLight {
		minBurn, ok := MinBurnForRole[string(role)]
		if !ok {
			return nil, fmt.Errorf("activation: unknown role %q", role)
		}
		amount, err := s.burns.VerifyBurn(wallet, burnProof)
		if err != nil {
			return nil, fmt.Errorf("activation: burn verification failed: %w", err)
		}
		if amount < minBurn {
			return nil, fmt.Errorf("activation: burn amount %d below minimum %d for role %s", amount, minBurn, role)
		}
		burnHash = burnProof
	}

	rec, err := s.Bind(nodeID, wallet, role, activationCode, deviceSignature, burnHash)
	if err != nil {
		return nil, err
	}

	if s.emitter != nil {
		s.emitter.Emit(events.Event{
			Type: events.EventActivationBound,
			Data: map[string]any{"node_id": nodeID, "wallet": wallet, "role": string(role)},
		})
	}
	return rec, nil
}

// Bind associates nodeID as the active device for activationCode. At most
// one node may be active under a given code at a time: if a different node
// currently holds the binding, that prior binding is atomically deactivated
// and a migration event is recorded before the new one is sealed. Calling
// Bind again with the same nodeID (e.g. a device refreshing its own record)
// is a no-op migration: no prior device to deactivate.
func (s *Service) Bind(nodeID, wallet string, role config.NodeType, activationCode, deviceSignature, burnHash string) (*Record, error) {
	priorNodeID, found, err := s.store.ActiveNodeForCode(activationCode)
	if err != nil {
		return nil, fmt.Errorf("activation: look up existing binding: %w", err)
	}
	if found && priorNodeID != nodeID {
		if err := s.store.Deactivate(priorNodeID, activationCode); err != nil {
			return nil, fmt.Errorf("activation: deactivate prior device binding: %w", err)
		}
		if s.emitter != nil {
			s.emitter.Emit(events.Event{
				Type: events.EventDeviceMigrated,
				Data: map[string]any{"from_node": priorNodeID, "to_node": nodeID, "wallet": wallet},
			})
		}
	}

	if err := s.ledger.Register(nodeID, wallet, reputationRoleFor(role)); err != nil {
		return nil, fmt.Errorf("activation: register node in reputation ledger: %w", err)
	}

	rec := &Record{
		NodeID:          nodeID,
		Wallet:          wallet,
		Role:            role,
		BurnTxHash:      burnHash,
		DeviceSignature: deviceSignature,
		ActivatedAt:     time.Now().UnixNano(),
		Active:          true,
	}
	if err := s.store.Put(rec, activationCode); err != nil {
		return nil, fmt.Errorf("activation: seal record: %w", err)
	}
	return rec, nil
}

// Migrate changes an activated node's role tier (e.g. Full -> Super),
// subject to config.MigrationCooldown between migrations. Light nodes never
// migrate through this path; they must re-activate. This is distinct from
// Bind's device migration: Migrate never changes which node holds the
// activation code.
func (s *Service) Migrate(nodeID, activationCode string, newRole config.NodeType, burnProof string) (*Record, error) {
	rec, err := s.store.Get(nodeID, activationCode)
	if err != nil {
		return nil, err
	}
	if rec.Role == config.NodeLight || newRole == config.NodeLight {
		return nil, fmt.Errorf("activation: light-node role changes must go through re-activation, not migration")
	}

	now := time.Now()
	if rec.LastMigration != 0 {
		elapsed := now.Sub(time.Unix(0, rec.LastMigration))
		if elapsed < config.MigrationCooldown {
			return nil, fmt.Errorf("activation: migration cooldown active, %s remaining", config.MigrationCooldown-elapsed)
		}
	}

	minBurn, ok := MinBurnForRole[string(newRole)]
	if !ok {
		return nil, fmt.Errorf("activation: unknown role %q", newRole)
	}
	amount, err := s.burns.VerifyBurn(rec.Wallet, burnProof)
	if err != nil {
		return nil, fmt.Errorf("activation: burn verification failed: %w", err)
	}
	if amount < minBurn {
		return nil, fmt.Errorf("activation: burn amount %d below minimum %d for role %s", amount, minBurn, newRole)
	}

	rec.Role = newRole
	rec.BurnTxHash = burnProof
	rec.LastMigration = now.UnixNano()
	if err := s.store.Put(rec, activationCode); err != nil {
		return nil, err
	}

	if s.emitter != nil {
		s.emitter.Emit(events.Event{
			Type: events.EventRoleMigrated,
			Data: map[string]any{"node_id": nodeID, "new_role": string(newRole)},
		})
	}
	return rec, nil
}
