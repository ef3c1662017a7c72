package orderbook

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type fixedClock struct{ t uint64 }

func (c *fixedClock) Now() uint64 { c.t++; return c.t }

func newTestBook() *Book {
	return NewBook("BTC", "USD", DefaultConfig(), &fixedClock{})
}

func qty(n uint64) *uint256.Int { return uint256.NewInt(n) }

var alice = common.HexToAddress("0x1")
var bob = common.HexToAddress("0x2")
var carol = common.HexToAddress("0x3")

func lastEvent(t *testing.T, results []Result) *Event {
	t.Helper()
	last := results[len(results)-1]
	if last.Event == nil {
		t.Fatalf("expected last result to be an event, got failure %+v", last.Failure)
	}
	return last.Event
}

func TestLimitOrderRestsWhenBookEmpty(t *testing.T) {
	b := newTestBook()
	res := b.ProcessOrder(NewLimitOrder("BTC", "USD", Bid, 100, qty(5), alice, 1))
	if len(res) != 1 || res[0].Event.Kind != Accepted {
		t.Fatalf("expected a single Accepted event, got %+v", res)
	}
	if b.bidQueue.Len() != 1 {
		t.Fatalf("expected order to rest in bid queue, got len %d", b.bidQueue.Len())
	}
}

func TestLimitOrderFullMatch(t *testing.T) {
	b := newTestBook()
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Ask, 100, qty(5), alice, 1))
	res := b.ProcessOrder(NewLimitOrder("BTC", "USD", Bid, 100, qty(5), bob, 2))

	if len(res) != 3 {
		t.Fatalf("expected Accepted+Filled+Filled, got %d results: %+v", len(res), res)
	}
	if res[1].Event.Kind != Filled || res[1].Event.Creator != bob {
		t.Fatalf("expected taker Filled for bob, got %+v", res[1].Event)
	}
	if res[2].Event.Kind != Filled || res[2].Event.Creator != alice {
		t.Fatalf("expected maker Filled for alice, got %+v", res[2].Event)
	}
	if b.askQueue.Len() != 0 || b.bidQueue.Len() != 0 {
		t.Fatalf("expected both queues empty after full match")
	}
}

func TestLimitOrderPartialMatchLeavesResidual(t *testing.T) {
	b := newTestBook()
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Ask, 100, qty(10), alice, 1))
	res := b.ProcessOrder(NewLimitOrder("BTC", "USD", Bid, 100, qty(4), bob, 2))

	if len(res) != 3 {
		t.Fatalf("expected Accepted+Filled+PartiallyFilled, got %+v", res)
	}
	if res[1].Event.Kind != Filled || res[1].Event.Creator != bob {
		t.Fatalf("expected taker Filled, got %+v", res[1].Event)
	}
	if res[2].Event.Kind != PartiallyFilled || res[2].Event.Creator != alice {
		t.Fatalf("expected maker PartiallyFilled, got %+v", res[2].Event)
	}

	remaining := b.askQueue.Orders()
	if len(remaining) != 1 || remaining[0].Qty.Uint64() != 6 {
		t.Fatalf("expected 6 remaining on resting ask, got %+v", remaining)
	}
}

func TestMarketOrderAgainstEmptyBookYieldsNoMatch(t *testing.T) {
	b := newTestBook()
	res := b.ProcessOrder(NewMarketOrder("BTC", "USD", Bid, qty(5), bob, 1))
	if len(res) != 2 || res[1].Failure == nil || res[1].Failure.Kind != NoMatch {
		t.Fatalf("expected Accepted then NoMatch, got %+v", res)
	}
}

func TestMarketOrderWalksMultipleLevels(t *testing.T) {
	b := newTestBook()
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Ask, 100, qty(3), alice, 1))
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Ask, 101, qty(10), carol, 2))

	res := b.ProcessOrder(NewMarketOrder("BTC", "USD", Bid, qty(5), bob, 3))

	kinds := make([]EventKind, 0)
	for _, r := range res {
		if r.Event != nil {
			kinds = append(kinds, r.Event.Kind)
		}
	}
	if len(kinds) != 5 {
		t.Fatalf("expected 5 events (accept, partial-bob, fill-alice, fill-bob, partial-carol), got %+v", res)
	}
	if kinds[0] != Accepted {
		t.Fatalf("expected first event Accepted, got %v", kinds[0])
	}

	remaining := b.askQueue.Orders()
	if len(remaining) != 1 || remaining[0].Qty.Uint64() != 8 {
		t.Fatalf("expected carol's resting order reduced to 8, got %+v", remaining)
	}
}

func TestPriceTimePriorityTieBreaksOnTimestamp(t *testing.T) {
	b := newTestBook()
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Ask, 100, qty(5), alice, 10))
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Ask, 100, qty(5), carol, 5))

	top, present := b.askQueue.Peek()
	if !present {
		t.Fatalf("expected a resting ask")
	}
	if top.Creator != carol {
		t.Fatalf("expected earlier timestamp (carol) to win tie at equal price, got %+v", top)
	}
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	b := newTestBook()
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Bid, 100, qty(5), alice, 1))
	orders := b.bidQueue.Orders()
	id := orders[0].ID

	res := b.ProcessOrder(NewCancelOrder(id, Bid))
	if len(res) != 1 || res[0].Event == nil || res[0].Event.Kind != Cancelled {
		t.Fatalf("expected Cancelled event, got %+v", res)
	}
	if b.bidQueue.Len() != 0 {
		t.Fatalf("expected bid queue empty after cancel")
	}

	res = b.ProcessOrder(NewCancelOrder(id, Bid))
	if len(res) != 1 || res[0].Failure == nil || res[0].Failure.Kind != OrderNotFound {
		t.Fatalf("expected OrderNotFound on double cancel, got %+v", res)
	}
}

func TestAmendChangesPriority(t *testing.T) {
	b := newTestBook()
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Bid, 100, qty(5), alice, 1))
	id := b.bidQueue.Orders()[0].ID

	res := b.ProcessOrder(NewAmendOrder(id, Bid, 105, qty(5), 2))
	if len(res) != 1 || res[0].Event == nil || res[0].Event.Kind != Amended {
		t.Fatalf("expected Amended event, got %+v", res)
	}

	top, _ := b.bidQueue.Peek()
	if top.Price != b.toTicks(105) {
		t.Fatalf("expected amended price to take effect, got %+v", top)
	}
}

func TestCurrentSpread(t *testing.T) {
	b := newTestBook()
	if _, _, present := b.CurrentSpread(); present {
		t.Fatalf("expected no spread on empty book")
	}
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Bid, 99, qty(5), alice, 1))
	b.ProcessOrder(NewLimitOrder("BTC", "USD", Ask, 101, qty(5), bob, 2))

	bid, ask, present := b.CurrentSpread()
	if !present || bid != 99 || ask != 101 {
		t.Fatalf("expected spread 99/101, got bid=%v ask=%v present=%v", bid, ask, present)
	}
}

func TestValidationFailureRejectsWrongAssetPair(t *testing.T) {
	b := newTestBook()
	res := b.ProcessOrder(NewLimitOrder("ETH", "USD", Bid, 100, qty(5), alice, 1))
	if len(res) != 1 || res[0].Failure == nil || res[0].Failure.Kind != ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %+v", res)
	}
}

func TestValidationFailureRejectsZeroQty(t *testing.T) {
	b := newTestBook()
	res := b.ProcessOrder(NewLimitOrder("BTC", "USD", Bid, 100, qty(0), alice, 1))
	if len(res) != 1 || res[0].Failure == nil || res[0].Failure.Kind != ValidationFailed {
		t.Fatalf("expected ValidationFailed for zero qty, got %+v", res)
	}
}
