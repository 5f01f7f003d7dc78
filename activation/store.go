package activation

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/storage"
)

const (
	recordPrefix    = "activation:record:"
	codeIndexPrefix = "activation:by-code:"
)

// sealedRecord is what is actually persisted: the activation record
// encrypted with a key derived from the activation code used to create it.
// The activation code itself is never stored, so the record can only be
// read back by a caller who presents the same code.
type sealedRecord struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// Store persists activation records encrypted at rest, keyed by node ID.
type Store struct {
	db storage.DB
}

// NewStore wraps db as an activation Store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put encrypts rec with a key derived from activationCode and stores it
// under rec.NodeID. The activation code is never written to disk. If rec is
// Active, the code's node index is updated to point at rec.NodeID, so at
// most one node is ever found bound to a given code at a time.
func (s *Store) Put(rec *Record, activationCode string) error {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	gcm, err := newGCM(activationCode, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	cipherText := gcm.Seal(nil, nonce, plaintext, nil)

	sealed := sealedRecord{
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return err
	}
	if err := s.db.Set([]byte(recordPrefix+rec.NodeID), data); err != nil {
		return err
	}
	if rec.Active {
		return s.db.Set(codeIndexKey(activationCode), []byte(rec.NodeID))
	}
	return nil
}

// ActiveNodeForCode returns the node ID currently bound (active) to
// activationCode, if any. The index is keyed by a one-way hash of the code,
// so looking it up never requires (or reveals) the code itself.
func (s *Store) ActiveNodeForCode(activationCode string) (string, bool, error) {
	val, err := s.db.Get(codeIndexKey(activationCode))
	if errors.Is(err, core.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

// Deactivate decrypts the record at nodeID with activationCode, marks it
// inactive, and reseals it. Used when a different device takes over the
// same activation code, so the prior binding is atomically superseded
// rather than left live alongside the new one.
func (s *Store) Deactivate(nodeID, activationCode string) error {
	rec, err := s.Get(nodeID, activationCode)
	if err != nil {
		return err
	}
	rec.Active = false
	return s.Put(rec, activationCode)
}

func codeIndexKey(activationCode string) []byte {
	sum := sha256.Sum256([]byte(activationCode))
	return []byte(codeIndexPrefix + hex.EncodeToString(sum[:]))
}

// Get decrypts and returns the activation record for nodeID, given the
// activation code that originally sealed it. Returns core.ErrNotFound if no
// record exists, or an error if activationCode is wrong.
func (s *Store) Get(nodeID, activationCode string) (*Record, error) {
	data, err := s.db.Get([]byte(recordPrefix + nodeID))
	if err != nil {
		return nil, err
	}
	var sealed sealedRecord
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(sealed.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(sealed.Nonce)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(sealed.CipherText)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(activationCode, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, errors.New("activation: wrong activation code or corrupted record")
	}
	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Exists reports whether any activation record has been sealed for nodeID,
// without needing the activation code to decrypt it.
func (s *Store) Exists(nodeID string) (bool, error) {
	_, err := s.db.Get([]byte(recordPrefix + nodeID))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func newGCM(activationCode string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(activationCode), salt, 210_000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
