package exchange

import (
	"github.com/holiman/uint256"
	"github.com/onchainx/matchcore/pkg/host"
)

// Token is a registered asset: its identifier, the principal that minted
// it, and the total supply issued at registration. It is metadata only —
// actual balances live in the ledger, keyed by asset id.
type Token struct {
	ID     string
	Owner  host.Principal
	Supply *uint256.Int
}

// StandardToken is the quote asset every order book is denominated
// against, issued automatically when an exchange is created.
const StandardToken = "XDHO"

// StandardTokenSupply is the fixed supply minted for the standard token
// at genesis.
var StandardTokenSupply = uint256.NewInt(100_000_000_000)
