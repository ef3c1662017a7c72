// Package orderbook implements the price-time priority matching engine:
// a lazy-cancelling order queue per side and the limit/market matcher that
// sits on top of a pair of queues.
package orderbook

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side is which book an order rests on.
type Side int8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "Bid"
	case Ask:
		return "Ask"
	default:
		return "Unknown"
	}
}

// OrderType distinguishes limit orders, which rest on the book, from
// market orders, which never do.
type OrderType int8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Market {
		return "Market"
	}
	return "Limit"
}

// Order is the authoritative record for a resting (or just-matched) order.
// Price is stored as integer ticks (see config.PriceScale); only limit
// orders carry a meaningful Price while at rest.
type Order struct {
	ID         uint64
	BaseAsset  string
	QuoteAsset string
	Side       Side
	Price      int64
	Qty        *uint256.Int
	Creator    common.Address
}

// clone returns a deep copy safe to hand out of the queue without aliasing
// the caller's Qty pointer.
func (o Order) clone() Order {
	c := o
	c.Qty = new(uint256.Int).Set(o.Qty)
	return c
}
