package config

import (
	"strings"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis microblock.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs microblock #0 from the config's Alloc
// map. It also sets initial account balances in state and commits.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.HybridPrivateKey) (*core.Microblock, error) {
	proposerPub := proposerPriv.Public()

	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		acc := &core.Account{
			Address: pubkeyHex,
			Balance: balance,
			Nonce:   0,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewMicroblock(0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}

// IsBootstrapNode reports whether nodeID is one of the genesis bootstrap
// nodes exempt from the normal activation flow (the chain has no existing
// activated nodes to vouch for the very first ones).
func IsBootstrapNode(cfg *Config, nodeID string) bool {
	for _, id := range cfg.Genesis.BootstrapNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}
