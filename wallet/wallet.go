package wallet

import (
	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/crypto"
)

// Wallet holds a hybrid key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.HybridPrivateKey
	pub  crypto.HybridPublicKey
}

// New creates a Wallet from an existing hybrid private key.
func New(priv crypto.HybridPrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated hybrid key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw hybrid private key (handle with care).
func (w *Wallet) PrivKey() crypto.HybridPrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded hybrid public key, used as the "from"
// address and as a node's identity when the wallet also activates a node.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address derived from the
// classical half of the key (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Classical.Address()
}

// NewTx creates a signed transaction. nonce should match the account's
// current nonce.
func (w *Wallet) NewTx(kind core.TxKind, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(kind, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}
