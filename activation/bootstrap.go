package activation

import (
	"fmt"
	"time"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/reputation"
)

// Bootstrap activates the genesis set of nodes named in cfg.Genesis.BootstrapNodes
// without requiring a burn proof: there is no existing activated network yet
// to burn tokens against. It registers each bootstrap node directly in the
// reputation ledger and seals a Record for it keyed by cfg.BootstrapID,
// which every bootstrap operator must know out of band.
func Bootstrap(cfg *config.Config, store *Store, ledger *reputation.Ledger, wallets map[string]string) error {
	if cfg.BootstrapID == "" {
		return fmt.Errorf("activation: bootstrap requires a non-empty bootstrap_id")
	}
	now := time.Now().UnixNano()
	for _, nodeID := range cfg.Genesis.BootstrapNodes {
		wallet, ok := wallets[nodeID]
		if !ok {
			return fmt.Errorf("activation: no wallet supplied for bootstrap node %q", nodeID)
		}
		if err := ledger.Register(nodeID, wallet, reputationRoleFor(cfg.NodeType)); err != nil {
			return fmt.Errorf("register bootstrap node %q: %w", nodeID, err)
		}
		rec := &Record{
			NodeID:      nodeID,
			Wallet:      wallet,
			Role:        cfg.NodeType,
			BurnTxHash:  "genesis",
			ActivatedAt: now,
			Active:      true,
		}
		if err := store.Put(rec, cfg.BootstrapID); err != nil {
			return fmt.Errorf("seal bootstrap record for %q: %w", nodeID, err)
		}
	}
	return nil
}

func reputationRoleFor(t config.NodeType) reputation.Role {
	switch t {
	case config.NodeLight:
		return reputation.RoleLight
	case config.NodeSuper:
		return reputation.RoleSuper
	default:
		return reputation.RoleFull
	}
}
