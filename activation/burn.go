package activation

// BurnVerifier checks that a burn proof corresponds to a real, unspent
// token-burn transaction for wallet, and returns the burned amount. The
// concrete implementation talks to whatever external ledger tokens were
// burned on; activation only depends on this interface.
type BurnVerifier interface {
	VerifyBurn(wallet, proof string) (amount uint64, err error)
}

// MinBurnForRole is the minimum burn amount required to activate each role.
// Light nodes require no burn (they are not counted toward consensus).
var MinBurnForRole = map[string]uint64{
	"Full":  1_000,
	"Super": 10_000,
}
