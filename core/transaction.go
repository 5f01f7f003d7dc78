package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qnet-chain/qnetd/crypto"
)

// TxKind identifies the kind of operation a transaction performs.
type TxKind string

const (
	TxTransfer       TxKind = "transfer"
	TxNodeActivation TxKind = "node_activation"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's hex-encoded hybrid public key.
// Signature covers all fields except Signature itself.
type Transaction struct {
	ID        string                 `json:"id"`
	Kind      TxKind                 `json:"kind"`
	From      string                 `json:"from"` // hex-encoded hybrid public key
	Nonce     uint64                 `json:"nonce"`
	Fee       uint64                 `json:"fee"`
	Timestamp int64                  `json:"timestamp"`
	Payload   json.RawMessage        `json:"payload"`
	Signature crypto.HybridSignature `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	Kind      TxKind          `json:"kind"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		Kind:      tx.Kind,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the hybrid signature and sets ID.
func (tx *Transaction) Sign(priv crypto.HybridPrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.HybridSign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the hybrid signature and that From is a valid hybrid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.HybridPubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be hybrid pubkey hex): %w", err)
	}
	return crypto.HybridVerify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(kind TxKind, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		Kind:      kind,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves native tokens between accounts.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// NodeActivationPayload binds a node identity to a wallet address during the
// anti-Sybil activation flow. ActivationCode and BurnProof are opaque to the
// executor; the activation service validates them before the tx is accepted
// into a block.
type NodeActivationPayload struct {
	NodeID         string `json:"node_id"`
	Role           string `json:"role"` // "Light" | "Full" | "Super" (config.NodeType values)
	ActivationCode string `json:"activation_code"`
	BurnProof      string `json:"burn_proof"`
	DeviceSignature string `json:"device_signature"`
}
