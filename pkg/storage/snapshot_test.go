package storage

import (
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "matchcore-snapshot-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(dir)

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	owner := common.HexToAddress("0x1")
	snap := Snapshot{
		Owner: owner,
		Tokens: []TokenSnapshot{
			{ID: "XDHO", Owner: owner, Supply: uint256.NewInt(100_000_000_000)},
		},
		Wallets: []WalletSnapshot{
			{
				Owner: owner,
				Accounts: []AccountSnapshot{
					{Asset: "XDHO", Account: TokenAccountSnapshot{Balance: uint256.NewInt(100_000_000_000), Allowances: nil}},
				},
			},
		},
		Orderbooks: []BookSnapshot{
			{
				BaseAsset:  "TEST",
				QuoteAsset: "XDHO",
				Bids: []OrderSnapshot{
					{ID: 1, BaseAsset: "TEST", QuoteAsset: "XDHO", Side: 0, Price: 125000000, Qty: uint256.NewInt(100), Creator: owner, Timestamp: 1},
				},
				NextSeq: 2,
			},
		},
	}

	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.Owner != owner {
		t.Fatalf("expected owner %v, got %v", owner, loaded.Owner)
	}
	if len(loaded.Tokens) != 1 || loaded.Tokens[0].Supply.Uint64() != 100_000_000_000 {
		t.Fatalf("unexpected tokens after round trip: %+v", loaded.Tokens)
	}
	if len(loaded.Wallets) != 1 || len(loaded.Wallets[0].Accounts) != 1 || loaded.Wallets[0].Accounts[0].Account.Balance.Uint64() != 100_000_000_000 {
		t.Fatalf("unexpected wallets after round trip: %+v", loaded.Wallets)
	}
	if len(loaded.Orderbooks) != 1 || len(loaded.Orderbooks[0].Bids) != 1 {
		t.Fatalf("unexpected orderbooks after round trip: %+v", loaded.Orderbooks)
	}
}

func TestLoadEmptyStoreReturnsNotOK(t *testing.T) {
	dir, err := os.MkdirTemp("", "matchcore-snapshot-empty-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(dir)

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for an empty store")
	}
}
