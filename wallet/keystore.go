// Package wallet provides key management and transaction signing helpers.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/qnet-chain/qnetd/crypto"
)

type keystoreFile struct {
	PubKey       string `json:"pub_key"`
	Salt         string `json:"salt"`
	Nonce        string `json:"nonce"`
	CipherText   string `json:"cipher_text"`
	PQCipherText string `json:"pq_cipher_text"`
	PQNonce      string `json:"pq_nonce"`
}

// SaveKey encrypts priv (both the classical and post-quantum halves) with
// password and writes it to path.
func SaveKey(path, password string, priv crypto.HybridPrivateKey) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	key := deriveKey(password, salt)

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	cipherText := gcm.Seal(nil, nonce, []byte(priv.Classical), nil)

	pqNonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, pqNonce); err != nil {
		return err
	}
	pqCipherText := gcm.Seal(nil, pqNonce, priv.PQ.Bytes(), nil)

	ks := keystoreFile{
		PubKey:       priv.Public().Hex(),
		Salt:         hex.EncodeToString(salt),
		Nonce:        hex.EncodeToString(nonce),
		CipherText:   hex.EncodeToString(cipherText),
		PQNonce:      hex.EncodeToString(pqNonce),
		PQCipherText: hex.EncodeToString(pqCipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey decrypts the keystore at path using password.
func LoadKey(path, password string) (crypto.HybridPrivateKey, error) {
	var zero crypto.HybridPrivateKey
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return zero, err
	}
	salt, err := hexDecode(ks.Salt)
	if err != nil {
		return zero, err
	}
	nonce, err := hexDecode(ks.Nonce)
	if err != nil {
		return zero, err
	}
	cipherText, err := hexDecode(ks.CipherText)
	if err != nil {
		return zero, err
	}
	pqNonce, err := hexDecode(ks.PQNonce)
	if err != nil {
		return zero, err
	}
	pqCipherText, err := hexDecode(ks.PQCipherText)
	if err != nil {
		return zero, err
	}

	key := deriveKey(password, salt)
	gcm, err := newGCM(key)
	if err != nil {
		return zero, err
	}

	classicalBytes, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return zero, errors.New("wrong password or corrupted keystore")
	}
	pqBytes, err := gcm.Open(nil, pqNonce, pqCipherText, nil)
	if err != nil {
		return zero, errors.New("wrong password or corrupted keystore")
	}
	pqPriv, err := crypto.PQPrivKeyFromBytes(pqBytes)
	if err != nil {
		return zero, err
	}
	return crypto.HybridPrivateKey{
		Classical: crypto.PrivateKey(classicalBytes),
		PQ:        pqPriv,
	}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, 210_000, 32, sha256.New)
}
