// Package ledger implements the multi-asset token wallets backing the
// exchange: per-owner, per-asset balances and the escrow allowances that
// let the exchange's own settlement account move funds on an owner's
// behalf during order matching.
package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/onchainx/matchcore/pkg/host"
)

// TokenAccount holds one owner's balance and outstanding escrow allowances
// for a single asset. Allowances are keyed by the hash of the escrow
// principal rather than the principal itself, matching the account
// representation it is grounded on.
type TokenAccount struct {
	Balance    *uint256.Int
	Allowances map[[32]byte]*uint256.Int
}

// NewTokenAccount returns a zero-balance account with no allowances.
func NewTokenAccount() *TokenAccount {
	return &TokenAccount{
		Balance:    uint256.NewInt(0),
		Allowances: make(map[[32]byte]*uint256.Int),
	}
}

// SetAllowance authorizes escrow to move up to amount from this account.
// An allowance of zero removes the entry entirely rather than leaving a
// zero-value stub behind.
func (a *TokenAccount) SetAllowance(escrow host.Principal, amount *uint256.Int) {
	key := host.Hash(escrow)
	if amount == nil || amount.IsZero() {
		delete(a.Allowances, key)
		return
	}
	a.Allowances[key] = new(uint256.Int).Set(amount)
}

// GetAllowance returns the amount escrow is currently authorized to move,
// or zero if no allowance was ever set.
func (a *TokenAccount) GetAllowance(escrow host.Principal) *uint256.Int {
	if v, ok := a.Allowances[host.Hash(escrow)]; ok {
		return new(uint256.Int).Set(v)
	}
	return uint256.NewInt(0)
}

// debit subtracts amount from the balance, failing if it would go negative.
func (a *TokenAccount) debit(amount *uint256.Int) error {
	if a.Balance.Lt(amount) {
		return fmt.Errorf("insufficient balance: have %s, need %s", a.Balance, amount)
	}
	a.Balance = new(uint256.Int).Sub(a.Balance, amount)
	return nil
}

// credit adds amount to the balance.
func (a *TokenAccount) credit(amount *uint256.Int) {
	a.Balance = new(uint256.Int).Add(a.Balance, amount)
}

// spendAllowance reduces escrow's allowance by amount, failing if it is
// insufficient.
func (a *TokenAccount) spendAllowance(escrow host.Principal, amount *uint256.Int) error {
	key := host.Hash(escrow)
	have, ok := a.Allowances[key]
	if !ok || have.Lt(amount) {
		return fmt.Errorf("insufficient allowance for escrow")
	}
	remaining := new(uint256.Int).Sub(have, amount)
	if remaining.IsZero() {
		delete(a.Allowances, key)
	} else {
		a.Allowances[key] = remaining
	}
	return nil
}
