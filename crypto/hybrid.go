package crypto

import (
	"encoding/hex"
	"fmt"
)

// HybridPrivateKey holds both halves of the hybrid signature scheme: a fast
// classical ed25519 key and a lattice-based post-quantum Dilithium key.
// Microblock and node-activation signatures use both jointly.
type HybridPrivateKey struct {
	Classical PrivateKey
	PQ        PQPrivateKey
}

// HybridPublicKey is the public half of a HybridPrivateKey.
type HybridPublicKey struct {
	Classical PublicKey
	PQ        PQPublicKey
}

// HybridSignature carries both signature components hex-encoded, so it can
// round-trip through JSON alongside the rest of a signed block/transaction.
type HybridSignature struct {
	Classical string `json:"classical"`
	PQ        string `json:"pq"`
}

// GenerateHybridKeyPair generates a fresh classical+PQ key pair.
func GenerateHybridKeyPair() (HybridPrivateKey, HybridPublicKey, error) {
	cPriv, cPub, err := GenerateKeyPair()
	if err != nil {
		return HybridPrivateKey{}, HybridPublicKey{}, fmt.Errorf("generate classical keypair: %w", err)
	}
	pqPriv, pqPub, err := GeneratePQKeyPair()
	if err != nil {
		return HybridPrivateKey{}, HybridPublicKey{}, fmt.Errorf("generate pq keypair: %w", err)
	}
	return HybridPrivateKey{Classical: cPriv, PQ: pqPriv}, HybridPublicKey{Classical: cPub, PQ: pqPub}, nil
}

// Public derives the hybrid public key from the private key.
func (priv HybridPrivateKey) Public() HybridPublicKey {
	return HybridPublicKey{Classical: priv.Classical.Public(), PQ: priv.PQ.Public()}
}

// Hex returns a stable hex identifier for the hybrid public key: the
// concatenation of both component public keys' hex encodings, separated by
// a colon. Used as node_id / producer_id material.
func (pub HybridPublicKey) Hex() string {
	return pub.Classical.Hex() + ":" + hex.EncodeToString(pub.PQ.Bytes())
}

// HybridSign signs data with both component keys.
func HybridSign(priv HybridPrivateKey, data []byte) HybridSignature {
	return HybridSignature{
		Classical: Sign(priv.Classical, data),
		PQ:        PQSign(priv.PQ, data),
	}
}

// HybridVerify checks both signature components; the hybrid signature is
// valid only if both verify (Microblock "producer_signature (hybrid:
// classical ⊕ post-quantum)").
func HybridVerify(pub HybridPublicKey, data []byte, sig HybridSignature) error {
	if err := Verify(pub.Classical, data, sig.Classical); err != nil {
		return fmt.Errorf("classical signature: %w", err)
	}
	if err := PQVerify(pub.PQ, data, sig.PQ); err != nil {
		return fmt.Errorf("pq signature: %w", err)
	}
	return nil
}

// HybridPubKeyFromHex parses the ":"-joined hex identifier produced by Hex().
func HybridPubKeyFromHex(s string) (HybridPublicKey, error) {
	classicalHex, pqHex, err := splitHybridHex(s)
	if err != nil {
		return HybridPublicKey{}, err
	}
	cPub, err := PubKeyFromHex(classicalHex)
	if err != nil {
		return HybridPublicKey{}, fmt.Errorf("classical pubkey: %w", err)
	}
	pqBytes, err := hex.DecodeString(pqHex)
	if err != nil {
		return HybridPublicKey{}, fmt.Errorf("pq pubkey hex: %w", err)
	}
	pqPub, err := PQPubKeyFromBytes(pqBytes)
	if err != nil {
		return HybridPublicKey{}, fmt.Errorf("pq pubkey: %w", err)
	}
	return HybridPublicKey{Classical: cPub, PQ: pqPub}, nil
}

func splitHybridHex(s string) (classicalHex, pqHex string, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed hybrid pubkey identifier %q", s)
}
