package ledger

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/onchainx/matchcore/pkg/host"
)

// Ledger is the thread-safe, in-memory collection of every owner's wallet.
// It is the sole mutator of balances and allowances; callers never reach
// into a Wallet or TokenAccount directly. Durability is handled separately
// by pkg/storage, which snapshots the whole Ledger rather than each
// mutation, mirroring how the account manager it is grounded on separated
// its in-memory cache from its persistence layer.
type Ledger struct {
	mu      sync.RWMutex
	wallets map[host.Principal]*Wallet
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{wallets: make(map[host.Principal]*Wallet)}
}

func (l *Ledger) walletLocked(owner host.Principal) *Wallet {
	w, ok := l.wallets[owner]
	if !ok {
		w = NewWallet()
		l.wallets[owner] = w
	}
	return w
}

// GetBalance returns owner's balance of asset.
func (l *Ledger) GetBalance(owner host.Principal, asset string) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.walletLocked(owner).Account(asset).Balance)
}

// GetBalances returns owner's balance of every requested asset.
func (l *Ledger) GetBalances(owner host.Principal, assets []string) map[string]*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]*uint256.Int, len(assets))
	for _, asset := range assets {
		out[asset] = new(uint256.Int).Set(l.walletLocked(owner).Account(asset).Balance)
	}
	return out
}

// GetAllowance returns the amount escrow is authorized to move from
// owner's asset account.
func (l *Ledger) GetAllowance(owner, escrow host.Principal, asset string) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.walletLocked(owner).Account(asset).GetAllowance(escrow)
}

// SetAllowance authorizes escrow to move up to amount from the caller
// owner's asset account. An owner may never grant an allowance to
// themselves — escrowing to yourself can never be a legitimate settlement
// step, and allowing it would let an order forge an "approved" self-match.
func (l *Ledger) SetAllowance(owner, escrow host.Principal, asset string, amount *uint256.Int) error {
	if owner == escrow {
		return fmt.Errorf("ledger: cannot set allowance for yourself")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.walletLocked(owner).Account(asset).SetAllowance(escrow, amount)
	return nil
}

// Transfer moves amount of asset directly from owner to recipient. It is
// equivalent to TransferFrom with owner acting as its own escrow.
func (l *Ledger) Transfer(owner, recipient host.Principal, asset string, amount *uint256.Int) error {
	return l.TransferFrom(owner, owner, recipient, asset, amount)
}

// TransferFrom moves amount of asset from owner to recipient on behalf of
// caller. If caller is not owner, owner must have previously granted
// caller a sufficient allowance on this asset, which is debited by the
// transfer amount.
func (l *Ledger) TransferFrom(caller, owner, recipient host.Principal, asset string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("ledger: cannot transfer zero amount")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromAcc := l.walletLocked(owner).Account(asset)
	if err := fromAcc.debit(amount); err != nil {
		return err
	}
	if caller != owner {
		if err := fromAcc.spendAllowance(caller, amount); err != nil {
			fromAcc.credit(amount) // undo the debit, the transfer never happened
			return err
		}
	}
	l.walletLocked(recipient).Account(asset).credit(amount)
	return nil
}

// Credit adds amount of asset to recipient's balance without debiting
// anyone. Used to issue a token's initial supply when it is registered.
func (l *Ledger) Credit(recipient host.Principal, asset string, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.walletLocked(recipient).Account(asset).credit(amount)
}

// Wallets returns a snapshot of every owner's wallet, for persistence.
func (l *Ledger) Wallets() map[host.Principal]*Wallet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[host.Principal]*Wallet, len(l.wallets))
	for owner, w := range l.wallets {
		out[owner] = w
	}
	return out
}

// Restore replaces the ledger's contents wholesale, used when loading a
// persisted snapshot at startup.
func (l *Ledger) Restore(wallets map[host.Principal]*Wallet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if wallets == nil {
		wallets = make(map[host.Principal]*Wallet)
	}
	l.wallets = wallets
}
