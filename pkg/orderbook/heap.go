package orderbook

import "github.com/holiman/uint256"

// OrderIndex is the heap key for one resting order: enough to order it
// against its neighbours without touching the authoritative order map.
// It may outlive the order it points at (a stale index, see indexHeap).
type OrderIndex struct {
	ID        uint64
	Price     int64
	Qty       *uint256.Int
	Timestamp uint64
	Side      Side
}

// indexHeap implements container/heap.Interface over OrderIndex, total-ordered
// by (price, timestamp) per side:
//   - Bid: higher price first, ties broken by earlier timestamp.
//   - Ask: lower price first, ties broken by earlier timestamp.
//
// Use the container/heap package (Init, Push, Pop, Fix) to manipulate it;
// do not mutate items directly.
type indexHeap struct {
	items []OrderIndex
	side  Side
}

func newIndexHeap(side Side, capacity int) *indexHeap {
	return &indexHeap{items: make([]OrderIndex, 0, capacity), side: side}
}

func (h *indexHeap) Len() int { return len(h.items) }

func (h *indexHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Price != b.Price {
		if h.side == Bid {
			return a.Price > b.Price
		}
		return a.Price < b.Price
	}
	return a.Timestamp < b.Timestamp
}

func (h *indexHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *indexHeap) Push(x any) {
	h.items = append(h.items, x.(OrderIndex))
}

func (h *indexHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// Top returns the heap's current root without removing it. The caller is
// responsible for checking staleness against the order map.
func (h *indexHeap) Top() (OrderIndex, bool) {
	if len(h.items) == 0 {
		return OrderIndex{}, false
	}
	return h.items[0], true
}
