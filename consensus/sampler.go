package consensus

import (
	"encoding/binary"
	"math/rand"

	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/crypto"
)

// Sample deterministically selects min(len(pool), cap) node IDs from pool
// using a seeded Fisher-Yates partial shuffle. Two nodes observing the same
// (pool, seed) always compute the same sample, which is what makes
// constant-cost validator sampling verifiable without re-running the
// selection: any peer can check the result against the seed.
func Sample(pool []string, seed []byte, cap int) []string {
	if cap <= 0 || len(pool) == 0 {
		return nil
	}
	if cap > len(pool) {
		cap = len(pool)
	}
	if cap > config.MaxValidatorSample {
		cap = config.MaxValidatorSample
	}

	work := make([]string, len(pool))
	copy(work, pool)

	rng := rand.New(rand.NewSource(seedToInt64(seed)))
	n := len(work)
	limit := n - cap
	for i := n - 1; i >= limit && i > 0; i-- {
		j := rng.Intn(i + 1)
		work[i], work[j] = work[j], work[i]
	}
	return work[n-cap:]
}

// seedToInt64 derives a 64-bit PRNG seed from an arbitrary-length byte seed
// via BLAKE2b, so that sampling is reproducible across processes without
// depending on pointer or map iteration order.
func seedToInt64(seed []byte) int64 {
	h := crypto.HashBytes512(seed)
	return int64(binary.BigEndian.Uint64(h[:8]))
}
