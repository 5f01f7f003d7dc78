// Package activation implements the anti-Sybil node-activation gate: binding
// a wallet to a node identity behind a burn proof, with encrypted-at-rest
// storage and rate-limited role migration.
package activation

import "github.com/qnet-chain/qnetd/config"

// Record is the durable result of a successful activation: the binding
// between a node identity and the wallet that activated it.
type Record struct {
	NodeID          string        `json:"node_id"`
	Wallet          string        `json:"wallet"` // hex-encoded hybrid public key
	Role            config.NodeType `json:"role"`
	BurnTxHash      string        `json:"burn_tx_hash"`
	DeviceSignature string        `json:"device_signature"`
	ActivatedAt     int64         `json:"activated_at"` // unix nanos
	LastMigration   int64         `json:"last_migration"` // unix nanos, 0 if never migrated
	Active          bool          `json:"active"` // false once a device migration has superseded this binding
}
