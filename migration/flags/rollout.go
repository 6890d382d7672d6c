package flags

import (
	"crypto/md5" //nolint:gosec // non-cryptographic bucket assignment, fixed by contract
	"encoding/hex"
	"math/big"
)

// RolloutBucket maps an entity ID to a stable bucket in [0, 100).
//
// The hash is contractual: the MD5 hex digest of the UTF-8 encoded entity
// ID, interpreted as an unsigned integer, reduced mod 100. Changing the
// hash or the encoding changes which entities are enrolled, so bucket
// assignment must stay identical across restarts and across independently
// implemented services.
func RolloutBucket(entityID string) int {
	sum := md5.Sum([]byte(entityID)) //nolint:gosec

	digest := new(big.Int)
	digest.SetString(hex.EncodeToString(sum[:]), 16)

	return int(digest.Mod(digest, big.NewInt(100)).Int64())
}
