package crypto

import "testing"

func TestHybridSignVerify(t *testing.T) {
	priv, pub, err := GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	data := []byte("microblock hash material")
	sig := HybridSign(priv, data)
	if err := HybridVerify(pub, data, sig); err != nil {
		t.Errorf("valid hybrid signature failed: %v", err)
	}
	if err := HybridVerify(pub, []byte("tampered"), sig); err == nil {
		t.Error("tampered data should fail hybrid verification")
	}
}

func TestHybridVerifyRejectsClassicalOnlyTamper(t *testing.T) {
	priv, pub, err := GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	data := []byte("payload")
	sig := HybridSign(priv, data)

	other, _, err := GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	mixed := sig
	mixed.Classical = Sign(other.Classical, data)
	if err := HybridVerify(pub, data, mixed); err == nil {
		t.Error("mismatched classical half should fail hybrid verification")
	}
}

func TestHybridPubKeyHexRoundtrip(t *testing.T) {
	_, pub, err := GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("GenerateHybridKeyPair: %v", err)
	}
	hexID := pub.Hex()
	parsed, err := HybridPubKeyFromHex(hexID)
	if err != nil {
		t.Fatalf("HybridPubKeyFromHex: %v", err)
	}
	if parsed.Hex() != hexID {
		t.Errorf("roundtrip mismatch: got %s want %s", parsed.Hex(), hexID)
	}
}

func TestHybridPubKeyFromHexRejectsMalformed(t *testing.T) {
	if _, err := HybridPubKeyFromHex("not-a-valid-identifier"); err == nil {
		t.Error("expected error for identifier with no colon separator")
	}
}

func TestVRFEvaluateVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	seed := []byte("round-seed:42")
	value, proof := VRFEvaluate(priv, seed)

	verified, err := VRFVerify(pub, seed, proof)
	if err != nil {
		t.Fatalf("VRFVerify: %v", err)
	}
	if verified.Cmp(value) != 0 {
		t.Error("verified VRF output does not match evaluated output")
	}

	if _, err := VRFVerify(pub, []byte("different-seed"), proof); err == nil {
		t.Error("VRFVerify should fail for a different seed")
	}
}

func TestVRFEvaluateDeterministic(t *testing.T) {
	priv, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	seed := []byte("same-seed")
	v1, _ := VRFEvaluate(priv, seed)
	v2, _ := VRFEvaluate(priv, seed)
	if v1.Cmp(v2) != 0 {
		t.Error("VRFEvaluate must be deterministic for the same (priv, seed)")
	}
}

func TestVRFNormalizeRange(t *testing.T) {
	priv, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	value, _ := VRFEvaluate(priv, []byte("seed"))
	u := VRFNormalize(value)
	if u < 0 || u >= 1 {
		t.Errorf("normalized VRF output out of [0,1): %v", u)
	}
}
