package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// GenesisConfig describes the chain's initial state and bootstrap nodes.
type GenesisConfig struct {
	ChainID        string            `json:"chain_id"`
	Alloc          map[string]uint64 `json:"alloc"`            // hybrid pubkey hex -> initial balance
	BootstrapNodes []string          `json:"bootstrap_nodes"` // node IDs exempt from activation at genesis
}

// NodeType is the tier a node activates as.
type NodeType string

const (
	NodeLight NodeType = "Light"
	NodeFull  NodeType = "Full"
	NodeSuper NodeType = "Super"
)

// Timing constants governing the two-tier production schedule. These are
// not user-configurable: changing them is a hard fork.
const (
	MicroblockInterval       = 1 * time.Second
	MacroWindowSize          = 90 // microblocks per macroblock window
	MacroCommitTimeout       = 60 * time.Second
	MacroRevealTimeout       = 30 * time.Second
	MissedDutyTimeout        = 5 * time.Second  // grace period before failover promotes a successor
	MissedDutyTimeoutGenesis = 15 * time.Second // height 1 only, to absorb simultaneous startup
	MigrationCooldown        = 24 * time.Hour   // Full/Super role migration rate limit
	MaxValidatorSample       = 1000             // cap on the constant-cost validator sample
	TimestampSkew            = 5 * time.Second  // max |block.timestamp - local_clock| accepted
)

// Config holds all node configuration.
type Config struct {
	NodeID         string        `json:"node_id"`
	NodeType       NodeType      `json:"node_type"`
	DataDir        string        `json:"data_dir"`
	KeysDir        string        `json:"keys_dir"`
	RPCPort        int           `json:"rpc_port"`
	P2PPort        int           `json:"p2p_port"`
	MaxBlockTxs    int           `json:"max_block_txs"` // max transactions per microblock; 0 -> 500
	Genesis        GenesisConfig `json:"genesis"`
	SeedPeers      []SeedPeer    `json:"seed_peers,omitempty"`
	TLS            *TLSConfig    `json:"tls,omitempty"`
	RPCAuthToken   string        `json:"rpc_auth_token,omitempty"`
	LogLevel       string        `json:"log_level,omitempty"` // debug|info|warn|error, default info
	ActivationCode string        `json:"activation_code,omitempty"`
	BootstrapID    string        `json:"bootstrap_id,omitempty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		NodeType:    NodeFull,
		DataDir:     "./data",
		KeysDir:     "./keys",
		RPCPort:     8545,
		P2PPort:     30303,
		MaxBlockTxs: 500,
		LogLevel:    "info",
		Genesis: GenesisConfig{
			ChainID: "qnet-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.KeysDir == "" {
		return fmt.Errorf("keys_dir must not be empty")
	}
	switch c.NodeType {
	case NodeLight, NodeFull, NodeSuper:
	default:
		return fmt.Errorf("node_type must be Light, Full, or Super, got %q", c.NodeType)
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
