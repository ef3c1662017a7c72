package orderbook

import "container/heap"

// Queue is a price-time priority queue for one side of one asset pair.
// Cancellation is lazy: cancel only drops the order from the authoritative
// map and bumps an operation counter; the matching heap index entry is left
// in place until compaction sweeps it, which keeps cancel at O(log n)
// instead of the O(n) an eager heap removal would cost. Amendment is the
// opposite trade: it pays an O(n) heap rebuild, because a resting order's
// price changes far less often than it gets cancelled.
type Queue struct {
	idx        *indexHeap
	orders     map[uint64]Order
	opCounter  uint64
	maxStalled uint64
	side       Side
}

// NewQueue constructs an empty queue for one side. maxStalled bounds how
// many cancellations accumulate before the heap is compacted; capacity is
// an initial-size hint only.
func NewQueue(side Side, maxStalled uint64, capacity int) *Queue {
	h := newIndexHeap(side, capacity)
	heap.Init(h)
	return &Queue{
		idx:        h,
		orders:     make(map[uint64]Order, capacity),
		maxStalled: maxStalled,
		side:       side,
	}
}

// Peek returns the highest-priority live order, dropping stale heap tops
// along the way. It returns false only once the heap is fully exhausted.
func (q *Queue) Peek() (Order, bool) {
	for {
		top, ok := q.idx.Top()
		if !ok {
			return Order{}, false
		}
		if o, present := q.orders[top.ID]; present {
			return o, true
		}
		heap.Pop(q.idx)
	}
}

// Pop removes and returns the highest-priority live order, discarding any
// stale tops it encounters first.
func (q *Queue) Pop() (Order, bool) {
	for q.idx.Len() > 0 {
		top := heap.Pop(q.idx).(OrderIndex)
		if o, present := q.orders[top.ID]; present {
			delete(q.orders, top.ID)
			return o, true
		}
	}
	return Order{}, false
}

// Insert adds a new resting order. It returns false without modifying state
// if id is already present — duplicate ids never overwrite the existing
// order.
func (q *Queue) Insert(id uint64, price int64, ts uint64, o Order) bool {
	if _, present := q.orders[id]; present {
		return false
	}
	heap.Push(q.idx, OrderIndex{ID: id, Price: price, Qty: o.Qty, Timestamp: ts, Side: q.side})
	q.orders[id] = o
	return true
}

// Amend replaces the stored order for id and rebuilds the heap so its index
// reflects the new (price, timestamp). Returns false if id is not present.
func (q *Queue) Amend(id uint64, price int64, ts uint64, o Order) bool {
	if _, present := q.orders[id]; !present {
		return false
	}
	q.orders[id] = o
	q.rebuildIndex(id, price, ts, o)
	return true
}

// Cancel removes id from the order map. The stale heap index is left for
// compaction. Returns false if id was not present.
func (q *Queue) Cancel(id uint64) bool {
	if _, present := q.orders[id]; !present {
		return false
	}
	delete(q.orders, id)
	q.cleanCheck()
	return true
}

// ModifyCurrent overwrites only the value of the current top order, not its
// price/timestamp index. The matcher uses this to shrink a resting order's
// remaining quantity without disturbing its priority.
func (q *Queue) ModifyCurrent(o Order) bool {
	top, ok := q.idx.Top()
	if !ok {
		return false
	}
	if _, present := q.orders[top.ID]; !present {
		return false
	}
	q.orders[top.ID] = o
	return true
}

// Len reports how many live orders are in the queue (not counting stale
// heap entries awaiting compaction).
func (q *Queue) Len() int { return len(q.orders) }

// Orders returns a snapshot of every live resting order, in no particular
// order (callers that need priority order should drain via Pop on a copy,
// or sort the result themselves).
func (q *Queue) Orders() []Order {
	out := make([]Order, 0, len(q.orders))
	for _, o := range q.orders {
		out = append(out, o.clone())
	}
	return out
}

// Index returns the (price, timestamp) heap key for every currently live
// order, keyed by order id. Used by snapshot persistence to recover exact
// priority on restore without re-deriving it from insertion order.
func (q *Queue) Index() map[uint64]OrderIndex {
	out := make(map[uint64]OrderIndex, len(q.orders))
	for _, entry := range q.idx.items {
		if _, present := q.orders[entry.ID]; present {
			out[entry.ID] = entry
		}
	}
	return out
}

func (q *Queue) cleanCheck() {
	q.opCounter++
	if q.opCounter > q.maxStalled {
		q.opCounter = 0
		q.removeStalled()
	}
}

// removeStalled drops every heap entry whose id no longer has a live order.
func (q *Queue) removeStalled() {
	fresh := newIndexHeap(q.side, len(q.orders))
	for _, entry := range q.idx.items {
		if _, present := q.orders[entry.ID]; present {
			fresh.items = append(fresh.items, entry)
		}
	}
	heap.Init(fresh)
	q.idx = fresh
}

// rebuildIndex drops id's old heap entry and pushes a fresh one reflecting
// the amended price/timestamp.
func (q *Queue) rebuildIndex(id uint64, price int64, ts uint64, o Order) {
	fresh := newIndexHeap(q.side, len(q.idx.items))
	for _, entry := range q.idx.items {
		if entry.ID != id {
			fresh.items = append(fresh.items, entry)
		}
	}
	fresh.items = append(fresh.items, OrderIndex{ID: id, Price: price, Qty: o.Qty, Timestamp: ts, Side: q.side})
	heap.Init(fresh)
	q.idx = fresh
}
