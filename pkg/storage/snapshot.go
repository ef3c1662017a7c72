// Package storage persists the exchange's entire state as a single
// deterministic snapshot record, rather than the teacher's per-entity key
// scheme — the spec calls for one byte-stable {Wallets, Orderbooks,
// Tokens, Owner} record, and a whole-state snapshot is the natural unit of
// restart recovery for an in-memory matching engine (there is no
// replayable write-ahead log of individual fills to recover from).
package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AllowanceSnapshot is one escrow principal's approved amount, keyed by the
// keccak256 hash pkg/ledger uses for its allowance map. A slice sorted by
// Escrow, not a map, so gob encoding is byte-stable (spec.md §6).
type AllowanceSnapshot struct {
	Escrow [32]byte
	Amount *uint256.Int
}

// TokenAccountSnapshot is one owner's balance and allowances for one asset.
// Allowances is sorted by Escrow before encoding; see AllowanceSnapshot.
type TokenAccountSnapshot struct {
	Balance    *uint256.Int
	Allowances []AllowanceSnapshot
}

// AccountSnapshot is one owner's account for one asset, keyed by asset ID.
// A slice sorted by Asset, not a map, for the same byte-stability reason as
// AllowanceSnapshot.
type AccountSnapshot struct {
	Asset   string
	Account TokenAccountSnapshot
}

// WalletSnapshot is one owner's full set of asset accounts.
type WalletSnapshot struct {
	Owner    common.Address
	Accounts []AccountSnapshot
}

// OrderSnapshot is one resting order, with enough detail to restore its
// exact price-time priority.
type OrderSnapshot struct {
	ID         uint64
	BaseAsset  string
	QuoteAsset string
	Side       int8
	Price      int64
	Qty        *uint256.Int
	Creator    common.Address
	Timestamp  uint64
}

// BookSnapshot is one asset pair's resting orders and sequence position.
type BookSnapshot struct {
	BaseAsset  string
	QuoteAsset string
	Bids       []OrderSnapshot
	Asks       []OrderSnapshot
	NextSeq    uint64
}

// TokenSnapshot is one registered token's identity and issued supply.
type TokenSnapshot struct {
	ID     string
	Owner  common.Address
	Supply *uint256.Int
}

// Snapshot is the whole persisted exchange state, in the declaration order
// the external interface promises is byte-stable across restarts.
type Snapshot struct {
	Wallets    []WalletSnapshot
	Orderbooks []BookSnapshot
	Tokens     []TokenSnapshot
	Owner      common.Address
}

const snapshotKey = "snapshot"

// Store is a single-record Pebble-backed snapshot store.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a Pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save overwrites the persisted snapshot with the given state.
func (s *Store) Save(snap Snapshot) error {
	val, err := encodeGob(snap)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	if err := s.db.Set([]byte(snapshotKey), val, pebble.Sync); err != nil {
		return fmt.Errorf("storage: write snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. It returns ok=false, with no error,
// if no snapshot has ever been saved — a fresh exchange starting cold.
func (s *Store) Load() (snap Snapshot, ok bool, err error) {
	val, closer, err := s.db.Get([]byte(snapshotKey))
	if err == pebble.ErrNotFound {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("storage: read snapshot: %w", err)
	}
	defer closer.Close()

	if err := decodeGob(val, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("storage: decode snapshot: %w", err)
	}
	return snap, true, nil
}
