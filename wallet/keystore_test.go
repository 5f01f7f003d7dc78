package wallet

import (
	"path/filepath"
	"testing"

	"github.com/qnet-chain/qnetd/crypto"
)

func TestSaveLoadKeyRoundtrip(t *testing.T) {
	priv, pub, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	path := filepath.Join(t.TempDir(), "validator.key")
	if err := SaveKey(path, "correct horse battery staple", priv); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}

	loaded, err := LoadKey(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if loaded.Public().Hex() != pub.Hex() {
		t.Errorf("loaded public key = %s, want %s", loaded.Public().Hex(), pub.Hex())
	}
}

func TestLoadKeyRejectsWrongPassword(t *testing.T) {
	priv, _, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	path := filepath.Join(t.TempDir(), "validator.key")
	if err := SaveKey(path, "right-password", priv); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if _, err := LoadKey(path, "wrong-password"); err == nil {
		t.Error("LoadKey should reject the wrong password")
	}
}

func TestLoadKeyRejectsMissingFile(t *testing.T) {
	if _, err := LoadKey(filepath.Join(t.TempDir(), "nope.key"), "pw"); err == nil {
		t.Error("LoadKey should fail when the keystore file doesn't exist")
	}
}
