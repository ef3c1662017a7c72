package host

import "golang.org/x/crypto/sha3"

// Hash derives the lookup key under which an escrow principal's allowance
// is stored on a token account, so the allowance map never holds a raw
// principal as a key. Keccak256 matches the hashing primitive already used
// elsewhere in the stack for address derivation.
func Hash(p Principal) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(p.Bytes())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
