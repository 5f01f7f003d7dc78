package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qnet-chain/qnetd/crypto"
)

// MicroblockHeader contains the metadata that is hashed and signed.
type MicroblockHeader struct {
	Height     int64  `json:"height"`
	PrevHash   string `json:"prev_hash"`
	StateRoot  string `json:"state_root"` // hash of state after executing this block
	TxRoot     string `json:"tx_root"`    // hash of all transaction IDs
	Timestamp  int64  `json:"timestamp"`
	ProducerID string `json:"producer_id"` // hybrid pubkey hex identifier
}

// Microblock is the high-frequency (1/s) unit of transaction throughput.
type Microblock struct {
	Header       MicroblockHeader       `json:"header"`
	Transactions []*Transaction         `json:"transactions"`
	Hash         string                 `json:"hash"`
	Signature    crypto.HybridSignature `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (b *Microblock) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs the microblock with the producer's hybrid key.
func (b *Microblock) Sign(priv crypto.HybridPrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.HybridSign(priv, []byte(b.Hash))
}

// Verify checks that b.Hash matches the recomputed header hash and that the
// hybrid signature is valid. This prevents accepting microblocks whose
// header was tampered with after signing.
func (b *Microblock) Verify(pub crypto.HybridPublicKey) error {
	if computed := b.ComputeHash(); b.Hash != computed {
		return fmt.Errorf("microblock hash mismatch: stored %s computed %s", b.Hash, computed)
	}
	return crypto.HybridVerify(pub, []byte(b.Hash), b.Signature)
}

// VerifyIntegrity checks the structural integrity of a microblock
// independently of the producer signature: hash consistency and TxRoot
// correctness.
func (b *Microblock) VerifyIntegrity() error {
	if computed := b.ComputeHash(); b.Hash != computed {
		return fmt.Errorf("microblock hash mismatch: stored %s computed %s", b.Hash, computed)
	}
	if txRoot := ComputeTxRoot(b.Transactions); b.Header.TxRoot != txRoot {
		return errors.New("tx_root mismatch")
	}
	return nil
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
// Each ID is length-prefixed (4-byte big-endian) to prevent boundary ambiguity
// where different ID sets could otherwise produce the same byte sequence.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, tx := range txs {
		id := []byte(tx.ID)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(id)))
		buf.Write(lenBuf[:])
		buf.Write(id)
	}
	return crypto.Hash(buf.Bytes())
}

// NewMicroblock creates an unsigned microblock with the given parameters.
func NewMicroblock(height int64, prevHash, producerID string, txs []*Transaction) *Microblock {
	return &Microblock{
		Header: MicroblockHeader{
			Height:     height,
			PrevHash:   prevHash,
			TxRoot:     ComputeTxRoot(txs),
			Timestamp:  time.Now().UnixNano(),
			ProducerID: producerID,
		},
		Transactions: txs,
	}
}
