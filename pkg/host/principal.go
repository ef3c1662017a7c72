// Package host gathers the small set of abstractions the exchange engine
// needs from its surrounding runtime but does not implement itself:
// identity, wall-clock time, and hashing. In a deployed setting these are
// supplied by the host chain/contract runtime; here they are thin,
// swappable shims so the engine stays independently testable.
package host

import "github.com/ethereum/go-ethereum/common"

// Principal identifies a wallet owner or an escrow agent authorized to
// spend on an owner's behalf. It is an alias, not a new type, so it
// composes directly with go-ethereum's Address helpers (Hex, checksum,
// comparison) used throughout the rest of the module.
type Principal = common.Address
