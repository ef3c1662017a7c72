package exchange

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/onchainx/matchcore/pkg/config"
	"github.com/onchainx/matchcore/pkg/host"
	"github.com/onchainx/matchcore/pkg/orderbook"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func testClock() host.EngineClock {
	return host.EngineClock{Clock: fixedClock{at: time.Unix(1700000000, 0)}}
}

func testConfig() config.Engine {
	d := config.Default()
	return d.Engine
}

var (
	owner = common.HexToAddress("0xaaaa")
	alice = common.HexToAddress("0x1111")
	bob   = common.HexToAddress("0x2222")
	carol = common.HexToAddress("0x3333")
)

func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	e := New(owner, testConfig(), testClock())
	supply := uint256.NewInt(1_000_000)
	if err := e.AddToken(owner, "FOO", supply); err != nil {
		t.Fatalf("add token: %v", err)
	}
	// Fund alice with FOO (base asset) and bob/carol with the quote asset.
	if err := e.Transfer(owner, alice, "FOO", uint256.NewInt(1000)); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if err := e.Transfer(owner, bob, StandardToken, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	if err := e.Transfer(owner, carol, StandardToken, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed carol: %v", err)
	}
	return e
}

func totalSupply(t *testing.T, e *Exchange, asset string, holders []host.Principal) *uint256.Int {
	t.Helper()
	total := uint256.NewInt(0)
	for _, h := range holders {
		total.Add(total, e.GetBalance(h, asset))
	}
	return total
}

func TestLimitAskEscrowsBaseThenSettlesOnFill(t *testing.T) {
	e := newTestExchange(t)

	aliceBaseBefore := e.GetBalance(alice, "FOO")
	if _, err := e.NewLimitOrder("FOO", orderbook.Ask, 2.0, uint256.NewInt(100), alice); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got, want := e.GetBalance(alice, "FOO"), new(uint256.Int).Sub(aliceBaseBefore, uint256.NewInt(100)); got.Cmp(want) != 0 {
		t.Fatalf("expected base escrowed from alice, got %v want %v", got, want)
	}

	results, err := e.NewLimitOrder("FOO", orderbook.Bid, 2.0, uint256.NewInt(100), bob)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	sawFill := false
	for _, r := range results {
		if r.Event != nil && r.Event.Kind == orderbook.Filled {
			sawFill = true
		}
	}
	if !sawFill {
		t.Fatalf("expected a fill, got %+v", results)
	}

	if got := e.GetBalance(alice, StandardToken); got.Cmp(uint256.NewInt(200)) != 0 {
		t.Fatalf("expected alice paid 200 quote, got %v", got)
	}
	if got := e.GetBalance(bob, "FOO"); got.Cmp(uint256.NewInt(100)) != 0 {
		t.Fatalf("expected bob received 100 base, got %v", got)
	}
}

func TestLimitBidEscrowsNotionalUpfront(t *testing.T) {
	e := newTestExchange(t)
	bobQuoteBefore := e.GetBalance(bob, StandardToken)

	if _, err := e.NewLimitOrder("FOO", orderbook.Bid, 3.0, uint256.NewInt(10), bob); err != nil {
		t.Fatalf("bid: %v", err)
	}
	want := new(uint256.Int).Sub(bobQuoteBefore, uint256.NewInt(30))
	if got := e.GetBalance(bob, StandardToken); got.Cmp(want) != 0 {
		t.Fatalf("expected 30 quote escrowed, got %v want %v", got, want)
	}
}

func TestMarketAskPreEscrowsBase(t *testing.T) {
	e := newTestExchange(t)
	if _, err := e.NewLimitOrder("FOO", orderbook.Bid, 5.0, uint256.NewInt(50), bob); err != nil {
		t.Fatalf("resting bid: %v", err)
	}

	aliceBaseBefore := e.GetBalance(alice, "FOO")
	results, err := e.NewMarketOrder("FOO", orderbook.Ask, uint256.NewInt(50), alice)
	if err != nil {
		t.Fatalf("market ask: %v", err)
	}
	sawFill := false
	for _, r := range results {
		if r.Event != nil && r.Event.Kind == orderbook.Filled {
			sawFill = true
		}
	}
	if !sawFill {
		t.Fatalf("expected fill, got %+v", results)
	}
	want := new(uint256.Int).Sub(aliceBaseBefore, uint256.NewInt(50))
	if got := e.GetBalance(alice, "FOO"); got.Cmp(want) != 0 {
		t.Fatalf("expected base escrowed+spent, got %v want %v", got, want)
	}
	if got := e.GetBalance(alice, StandardToken); got.Cmp(uint256.NewInt(250)) != 0 {
		t.Fatalf("expected alice paid 250 quote, got %v", got)
	}
}

func TestMarketBidPullsAllowanceJustInTime(t *testing.T) {
	e := newTestExchange(t)
	if _, err := e.NewLimitOrder("FOO", orderbook.Ask, 4.0, uint256.NewInt(25), alice); err != nil {
		t.Fatalf("resting ask: %v", err)
	}

	// Market bids are never pre-escrowed; the trader must pre-authorize the
	// exchange to pull the quote notional at match time.
	if err := e.SetAllowance(bob, owner, StandardToken, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("allowance: %v", err)
	}

	bobQuoteBefore := e.GetBalance(bob, StandardToken)
	results, err := e.NewMarketOrder("FOO", orderbook.Bid, uint256.NewInt(25), bob)
	if err != nil {
		t.Fatalf("market bid: %v", err)
	}
	sawFill := false
	for _, r := range results {
		if r.Event != nil && r.Event.Kind == orderbook.Filled {
			sawFill = true
		}
	}
	if !sawFill {
		t.Fatalf("expected fill, got %+v", results)
	}
	want := new(uint256.Int).Sub(bobQuoteBefore, uint256.NewInt(100))
	if got := e.GetBalance(bob, StandardToken); got.Cmp(want) != 0 {
		t.Fatalf("expected 100 quote pulled via allowance, got %v want %v", got, want)
	}
	if got := e.GetBalance(bob, "FOO"); got.Cmp(uint256.NewInt(25)) != 0 {
		t.Fatalf("expected bob received base, got %v", got)
	}
}

func TestMarketBidWithoutAllowanceFailsOnMatch(t *testing.T) {
	e := newTestExchange(t)
	if _, err := e.NewLimitOrder("FOO", orderbook.Ask, 4.0, uint256.NewInt(25), alice); err != nil {
		t.Fatalf("resting ask: %v", err)
	}
	if _, err := e.NewMarketOrder("FOO", orderbook.Bid, uint256.NewInt(25), bob); err == nil {
		t.Fatalf("expected settlement error without a pre-authorized allowance")
	}
}

func TestCancelRefundsRemainingEscrow(t *testing.T) {
	e := newTestExchange(t)
	aliceBefore := e.GetBalance(alice, "FOO")

	results, err := e.NewLimitOrder("FOO", orderbook.Ask, 2.0, uint256.NewInt(100), alice)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	id := results[0].Event.OrderID

	if _, err := e.CancelLimitOrder("FOO", id, orderbook.Ask); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := e.GetBalance(alice, "FOO"); got.Cmp(aliceBefore) != 0 {
		t.Fatalf("expected full refund on cancel, got %v want %v", got, aliceBefore)
	}
}

func TestAmendPullsAdditionalEscrowOnIncrease(t *testing.T) {
	e := newTestExchange(t)

	results, err := e.NewLimitOrder("FOO", orderbook.Bid, 2.0, uint256.NewInt(10), bob)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	id := results[0].Event.OrderID
	bobAfterInitialEscrow := e.GetBalance(bob, StandardToken)

	if _, err := e.AmendLimitOrder("FOO", id, orderbook.Bid, 2.0, uint256.NewInt(20)); err != nil {
		t.Fatalf("amend: %v", err)
	}
	want := new(uint256.Int).Sub(bobAfterInitialEscrow, uint256.NewInt(20))
	if got := e.GetBalance(bob, StandardToken); got.Cmp(want) != 0 {
		t.Fatalf("expected additional 20 quote pulled, got %v want %v", got, want)
	}
}

func TestAmendRefundsEscrowOnDecrease(t *testing.T) {
	e := newTestExchange(t)

	results, err := e.NewLimitOrder("FOO", orderbook.Bid, 2.0, uint256.NewInt(20), bob)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	id := results[0].Event.OrderID
	bobAfterInitialEscrow := e.GetBalance(bob, StandardToken)

	if _, err := e.AmendLimitOrder("FOO", id, orderbook.Bid, 2.0, uint256.NewInt(5)); err != nil {
		t.Fatalf("amend: %v", err)
	}
	want := new(uint256.Int).Add(bobAfterInitialEscrow, uint256.NewInt(30))
	if got := e.GetBalance(bob, StandardToken); got.Cmp(want) != 0 {
		t.Fatalf("expected 30 quote refunded, got %v want %v", got, want)
	}
}

func TestLedgerConservationAcrossMatchedTrades(t *testing.T) {
	e := newTestExchange(t)
	holders := []host.Principal{owner, alice, bob, carol, e.settlement}

	fooBefore := totalSupply(t, e, "FOO", holders)
	quoteBefore := totalSupply(t, e, StandardToken, holders)

	if _, err := e.NewLimitOrder("FOO", orderbook.Ask, 2.0, uint256.NewInt(100), alice); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := e.NewLimitOrder("FOO", orderbook.Bid, 2.5, uint256.NewInt(40), bob); err != nil {
		t.Fatalf("bid 1: %v", err)
	}
	if _, err := e.NewLimitOrder("FOO", orderbook.Bid, 2.0, uint256.NewInt(60), carol); err != nil {
		t.Fatalf("bid 2: %v", err)
	}

	fooAfter := totalSupply(t, e, "FOO", holders)
	quoteAfter := totalSupply(t, e, StandardToken, holders)
	if fooAfter.Cmp(fooBefore) != 0 {
		t.Fatalf("base asset supply changed across trades: before %v after %v", fooBefore, fooAfter)
	}
	if quoteAfter.Cmp(quoteBefore) != 0 {
		t.Fatalf("quote asset supply changed across trades: before %v after %v", quoteBefore, quoteAfter)
	}
}

func TestNoMatchMarketOrderRefundsEscrow(t *testing.T) {
	e := newTestExchange(t)
	aliceBefore := e.GetBalance(alice, "FOO")

	results, err := e.NewMarketOrder("FOO", orderbook.Ask, uint256.NewInt(10), alice)
	if err != nil {
		t.Fatalf("market ask: %v", err)
	}
	sawNoMatch := false
	for _, r := range results {
		if r.Failure != nil && r.Failure.Kind == orderbook.NoMatch {
			sawNoMatch = true
		}
	}
	if !sawNoMatch {
		t.Fatalf("expected NoMatch against an empty book, got %+v", results)
	}
	if got := e.GetBalance(alice, "FOO"); got.Cmp(aliceBefore) != 0 {
		t.Fatalf("expected unmatched market ask refunded, got %v want %v", got, aliceBefore)
	}
}

func TestSnapshotRoundTripPreservesBalancesAndResting(t *testing.T) {
	e := newTestExchange(t)
	if _, err := e.NewLimitOrder("FOO", orderbook.Ask, 2.0, uint256.NewInt(100), alice); err != nil {
		t.Fatalf("ask: %v", err)
	}

	snap := e.Snapshot()
	restored := Restore(snap, testConfig(), testClock())

	if got := restored.GetBalance(alice, "FOO"); got.Cmp(e.GetBalance(alice, "FOO")) != 0 {
		t.Fatalf("balance mismatch after restore: got %v", got)
	}
	asks, err := restored.GetAskOrders("FOO")
	if err != nil {
		t.Fatalf("get asks: %v", err)
	}
	if len(asks) != 1 || asks[0].Qty.Cmp(uint256.NewInt(100)) != 0 {
		t.Fatalf("expected one resting ask of qty 100 after restore, got %+v", asks)
	}
}
