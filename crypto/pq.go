package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// PQPrivateKey wraps a Dilithium (lattice-based, NIST level 3) private key,
// the post-quantum half of the hybrid signature scheme.
type PQPrivateKey struct {
	sk *mode3.PrivateKey
}

// PQPublicKey wraps a Dilithium public key.
type PQPublicKey struct {
	pk *mode3.PublicKey
}

// GeneratePQKeyPair generates a new Dilithium key pair.
func GeneratePQKeyPair() (PQPrivateKey, PQPublicKey, error) {
	pk, sk, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return PQPrivateKey{}, PQPublicKey{}, fmt.Errorf("generate pq keypair: %w", err)
	}
	return PQPrivateKey{sk: sk}, PQPublicKey{pk: pk}, nil
}

// Public derives the public key from the private key.
func (priv PQPrivateKey) Public() PQPublicKey {
	pk := priv.sk.Public().(*mode3.PublicKey)
	return PQPublicKey{pk: pk}
}

// Bytes returns the packed private key bytes.
func (priv PQPrivateKey) Bytes() []byte {
	var buf [mode3.PrivateKeySize]byte
	priv.sk.Pack(&buf)
	return buf[:]
}

// PQPrivKeyFromBytes unpacks a Dilithium private key.
func PQPrivKeyFromBytes(b []byte) (PQPrivateKey, error) {
	if len(b) != mode3.PrivateKeySize {
		return PQPrivateKey{}, fmt.Errorf("pq privkey must be %d bytes, got %d", mode3.PrivateKeySize, len(b))
	}
	var buf [mode3.PrivateKeySize]byte
	copy(buf[:], b)
	var sk mode3.PrivateKey
	sk.Unpack(&buf)
	return PQPrivateKey{sk: &sk}, nil
}

// Bytes returns the packed public key bytes.
func (pub PQPublicKey) Bytes() []byte {
	var buf [mode3.PublicKeySize]byte
	pub.pk.Pack(&buf)
	return buf[:]
}

// Hex returns the hex-encoded public key.
func (pub PQPublicKey) Hex() string {
	return hex.EncodeToString(pub.Bytes())
}

// PQPubKeyFromBytes unpacks a Dilithium public key.
func PQPubKeyFromBytes(b []byte) (PQPublicKey, error) {
	if len(b) != mode3.PublicKeySize {
		return PQPublicKey{}, fmt.Errorf("pq pubkey must be %d bytes, got %d", mode3.PublicKeySize, len(b))
	}
	var buf [mode3.PublicKeySize]byte
	copy(buf[:], b)
	var pk mode3.PublicKey
	pk.Unpack(&buf)
	return PQPublicKey{pk: &pk}, nil
}

// PQSign signs data with the Dilithium private key, returning hex-encoded
// signature bytes.
func PQSign(priv PQPrivateKey, data []byte) string {
	sig := mode3.Sign(priv.sk, data)
	return hex.EncodeToString(sig)
}

// PQVerify checks a hex-encoded Dilithium signature against data.
func PQVerify(pub PQPublicKey, data []byte, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid pq signature hex: %w", err)
	}
	if !mode3.Verify(pub.pk, data, sig) {
		return errors.New("pq signature verification failed")
	}
	return nil
}
