package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind tags the successful outcomes process_order can emit.
type EventKind int8

const (
	Accepted EventKind = iota
	Filled
	PartiallyFilled
	Amended
	Cancelled
)

func (k EventKind) String() string {
	switch k {
	case Accepted:
		return "Accepted"
	case Filled:
		return "Filled"
	case PartiallyFilled:
		return "PartiallyFilled"
	case Amended:
		return "Amended"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// FailKind tags the soft failures process_order can emit inline, as opposed
// to a Go error, which is reserved for resource-level (ledger) failures.
type FailKind int8

const (
	ValidationFailed FailKind = iota
	DuplicateOrderID
	NoMatch
	OrderNotFound
)

func (k FailKind) String() string {
	switch k {
	case ValidationFailed:
		return "ValidationFailed"
	case DuplicateOrderID:
		return "DuplicateOrderID"
	case NoMatch:
		return "NoMatch"
	case OrderNotFound:
		return "OrderNotFound"
	default:
		return "Unknown"
	}
}

// Event is one entry of the chronological result stream process_order
// returns. Only the fields relevant to Kind are populated; the rest are
// left at their zero value, mirroring which fields the source's per-variant
// enum carried.
type Event struct {
	Kind      EventKind
	OrderID   uint64
	Side      Side
	OrderType OrderType
	Price     float64
	Qty       *uint256.Int
	Creator   common.Address
	Timestamp uint64
}

// Failure is a soft, non-fatal rejection recorded in the result stream.
type Failure struct {
	Kind    FailKind
	OrderID uint64
	Reason  string
}

// Result is one entry of process_order's output: either an Event or a
// Failure, never both.
type Result struct {
	Event   *Event
	Failure *Failure
}

func ok(e Event) Result        { return Result{Event: &e} }
func failed(f Failure) Result  { return Result{Failure: &f} }

// Clock supplies the block/deal timestamp used to stamp events. It is a
// narrow, locally-defined interface (rather than importing pkg/host) so the
// matcher stays independently testable; host.EngineClock satisfies it
// structurally.
type Clock interface {
	Now() uint64
}

// RequestKind tags the four shapes of inbound request process_order accepts.
type RequestKind int8

const (
	NewLimitOrderRequest RequestKind = iota
	NewMarketOrderRequest
	AmendOrderRequest
	CancelOrderRequest
)

// Request is a tagged union over the four request shapes, following the
// source's OrderRequest enum. Only the fields relevant to Kind matter.
type Request struct {
	Kind       RequestKind
	BaseAsset  string
	QuoteAsset string
	Side       Side
	Price      float64 // NewLimitOrderRequest, AmendOrderRequest
	Qty        *uint256.Int
	Creator    common.Address
	ID         uint64 // AmendOrderRequest, CancelOrderRequest
	Timestamp  uint64 // caller-assigned arrival time, used for queue priority
}

// NewLimitOrder builds a NewLimitOrderRequest.
func NewLimitOrder(baseAsset, quoteAsset string, side Side, price float64, qty *uint256.Int, creator common.Address, ts uint64) Request {
	return Request{Kind: NewLimitOrderRequest, BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: side, Price: price, Qty: qty, Creator: creator, Timestamp: ts}
}

// NewMarketOrder builds a NewMarketOrderRequest.
func NewMarketOrder(baseAsset, quoteAsset string, side Side, qty *uint256.Int, creator common.Address, ts uint64) Request {
	return Request{Kind: NewMarketOrderRequest, BaseAsset: baseAsset, QuoteAsset: quoteAsset, Side: side, Qty: qty, Creator: creator, Timestamp: ts}
}

// NewAmendOrder builds an AmendOrderRequest. Amend never changes side: cancel
// and resubmit instead.
func NewAmendOrder(id uint64, side Side, price float64, qty *uint256.Int, ts uint64) Request {
	return Request{Kind: AmendOrderRequest, Side: side, Price: price, Qty: qty, ID: id, Timestamp: ts}
}

// NewCancelOrder builds a CancelOrderRequest.
func NewCancelOrder(id uint64, side Side) Request {
	return Request{Kind: CancelOrderRequest, Side: side, ID: id}
}

const (
	// DefaultMinSequenceID and DefaultMaxSequenceID bound the default order
	// id range; simultaneously-live orders must stay well below this width
	// or ids wrap into collision territory (surfaced as DuplicateOrderID).
	DefaultMinSequenceID = 1
	DefaultMaxSequenceID = 1000
	// DefaultMaxStalledIndices bounds how many lazy cancels accumulate in a
	// queue's heap before compaction sweeps stale entries.
	DefaultMaxStalledIndices = 10
	// DefaultQueueCapacity is the initial-size hint for a fresh queue.
	DefaultQueueCapacity = 500
	// DefaultPriceScale fixes how many integer ticks make up one unit of
	// quote asset; see SPEC_FULL.md §3 for the fixed-point rationale.
	DefaultPriceScale = int64(1e8)
)

// Book owns the bid/ask queues, sequence generator, and validator for a
// single asset pair, and is the sole entry point for order processing.
type Book struct {
	BaseAsset  string
	QuoteAsset string

	bidQueue  *Queue
	askQueue  *Queue
	seq       *Sequence
	validator *Validator
	scale     int64
	clock     Clock
}

// Config bundles the tunables for a new Book away from its required
// identity (asset pair) and collaborators (clock).
type Config struct {
	MinSequenceID     uint64
	MaxSequenceID     uint64
	MaxStalledIndices uint64
	QueueCapacity     int
	PriceScale        int64
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinSequenceID:     DefaultMinSequenceID,
		MaxSequenceID:     DefaultMaxSequenceID,
		MaxStalledIndices: DefaultMaxStalledIndices,
		QueueCapacity:     DefaultQueueCapacity,
		PriceScale:        DefaultPriceScale,
	}
}

// NewBook constructs an empty order book for one base/quote pair.
func NewBook(baseAsset, quoteAsset string, cfg Config, clock Clock) *Book {
	return &Book{
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		bidQueue:   NewQueue(Bid, cfg.MaxStalledIndices, cfg.QueueCapacity),
		askQueue:   NewQueue(Ask, cfg.MaxStalledIndices, cfg.QueueCapacity),
		seq:        NewSequence(cfg.MinSequenceID, cfg.MaxSequenceID),
		validator:  NewValidator(baseAsset, quoteAsset),
		scale:      cfg.PriceScale,
		clock:      clock,
	}
}

func (b *Book) toTicks(price float64) int64 {
	return int64(price * float64(b.scale))
}

func (b *Book) fromTicks(ticks int64) float64 {
	return float64(ticks) / float64(b.scale)
}

func (b *Book) queueFor(side Side) *Queue {
	if side == Bid {
		return b.bidQueue
	}
	return b.askQueue
}

func (b *Book) oppositeQueue(side Side) *Queue {
	if side == Bid {
		return b.askQueue
	}
	return b.bidQueue
}

// ProcessOrder is the matcher's single entry point. It returns the
// chronological sequence of events/failures this call produced; callers
// must process the slice in order.
func (b *Book) ProcessOrder(req Request) []Result {
	switch req.Kind {
	case NewMarketOrderRequest:
		if err := b.validator.ValidateMarket(req.BaseAsset, req.QuoteAsset, req.Qty); err != nil {
			return []Result{failed(Failure{Kind: ValidationFailed, Reason: err.Error()})}
		}
		return b.processMarketOrder(req)
	case NewLimitOrderRequest:
		if err := b.validator.ValidateLimit(req.BaseAsset, req.QuoteAsset, req.Price, req.Qty); err != nil {
			return []Result{failed(Failure{Kind: ValidationFailed, Reason: err.Error()})}
		}
		return b.processLimitOrder(req)
	case AmendOrderRequest:
		return b.processAmend(req)
	case CancelOrderRequest:
		return b.processCancel(req)
	default:
		panic(fmt.Sprintf("orderbook: unknown request kind %d", req.Kind))
	}
}

func (b *Book) processMarketOrder(req Request) []Result {
	results := []Result{}
	orderID := b.seq.Next()
	results = append(results, ok(Event{Kind: Accepted, OrderID: orderID, OrderType: Market, Creator: req.Creator, Timestamp: b.clock.Now()}))

	remaining := new(uint256.Int).Set(req.Qty)
	opposite := b.oppositeQueue(req.Side)

	for {
		top, present := opposite.Peek()
		if !present {
			results = append(results, failed(Failure{Kind: NoMatch, OrderID: orderID}))
			return results
		}
		complete := b.matchStep(&results, top, orderID, Market, req.Side, remaining, req.Creator)
		if complete {
			return results
		}
		remaining.Sub(remaining, top.Qty)
	}
}

func (b *Book) processLimitOrder(req Request) []Result {
	results := []Result{}
	orderID := b.seq.Next()
	results = append(results, ok(Event{Kind: Accepted, OrderID: orderID, OrderType: Limit, Creator: req.Creator, Timestamp: b.clock.Now()}))

	price := req.Price
	remaining := new(uint256.Int).Set(req.Qty)
	opposite := b.oppositeQueue(req.Side)

	for {
		top, present := opposite.Peek()
		if !present {
			b.storeNewLimitOrder(&results, orderID, req.BaseAsset, req.QuoteAsset, req.Side, price, remaining, req.Creator, req.Timestamp)
			return results
		}

		crosses := false
		if req.Side == Bid {
			crosses = b.toTicks(price) >= top.Price
		} else {
			crosses = b.toTicks(price) <= top.Price
		}
		if !crosses {
			b.storeNewLimitOrder(&results, orderID, req.BaseAsset, req.QuoteAsset, req.Side, price, remaining, req.Creator, req.Timestamp)
			return results
		}

		complete := b.matchStep(&results, top, orderID, Limit, req.Side, remaining, req.Creator)
		if complete {
			return results
		}
		remaining.Sub(remaining, top.Qty)
	}
}

// matchStep executes one pairwise match of the incoming remaining quantity
// against the opposite queue's current top, per SPEC_FULL.md §4.4.3. It
// returns true once matching is complete for this call (no residual
// incoming quantity to carry forward).
func (b *Book) matchStep(results *[]Result, top Order, orderID uint64, orderType OrderType, side Side, inQty *uint256.Int, creator common.Address) bool {
	dealTime := b.clock.Now()
	restingPrice := b.fromTicks(b.priceOf(top))
	opposite := b.oppositeQueue(side)

	switch inQty.Cmp(top.Qty) {
	case -1: // inQty < top.Qty
		*results = append(*results, ok(Event{Kind: Filled, OrderID: orderID, Side: side, OrderType: orderType, Price: restingPrice, Qty: new(uint256.Int).Set(inQty), Creator: creator, Timestamp: dealTime}))
		*results = append(*results, ok(Event{Kind: PartiallyFilled, OrderID: top.ID, Side: top.Side, OrderType: Limit, Price: restingPrice, Qty: new(uint256.Int).Set(inQty), Creator: top.Creator, Timestamp: dealTime}))

		remaining := new(uint256.Int).Sub(top.Qty, inQty)
		reduced := top
		reduced.Qty = remaining
		opposite.ModifyCurrent(reduced)
		return true

	case 1: // inQty > top.Qty
		*results = append(*results, ok(Event{Kind: PartiallyFilled, OrderID: orderID, Side: side, OrderType: orderType, Price: restingPrice, Qty: new(uint256.Int).Set(top.Qty), Creator: creator, Timestamp: dealTime}))
		*results = append(*results, ok(Event{Kind: Filled, OrderID: top.ID, Side: top.Side, OrderType: Limit, Price: restingPrice, Qty: new(uint256.Int).Set(top.Qty), Creator: top.Creator, Timestamp: dealTime}))
		opposite.Pop()
		return false

	default: // inQty == top.Qty
		*results = append(*results, ok(Event{Kind: Filled, OrderID: orderID, Side: side, OrderType: orderType, Price: restingPrice, Qty: new(uint256.Int).Set(inQty), Creator: creator, Timestamp: dealTime}))
		*results = append(*results, ok(Event{Kind: Filled, OrderID: top.ID, Side: top.Side, OrderType: Limit, Price: restingPrice, Qty: new(uint256.Int).Set(inQty), Creator: top.Creator, Timestamp: dealTime}))
		opposite.Pop()
		return true
	}
}

// priceOf returns the integer-tick price of a resting order. The price is
// kept on the Order itself (see storeNewLimitOrder), so this helper simply
// reads it back.
func (b *Book) priceOf(o Order) int64 { return o.Price }

func (b *Book) storeNewLimitOrder(results *[]Result, orderID uint64, baseAsset, quoteAsset string, side Side, price float64, qty *uint256.Int, creator common.Address, ts uint64) {
	ticks := b.toTicks(price)
	order := Order{
		ID:         orderID,
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		Side:       side,
		Price:      ticks,
		Qty:        new(uint256.Int).Set(qty),
		Creator:    creator,
	}
	if !b.queueFor(side).Insert(orderID, ticks, ts, order) {
		*results = append(*results, failed(Failure{Kind: DuplicateOrderID, OrderID: orderID}))
	}
}

func (b *Book) processAmend(req Request) []Result {
	q := b.queueFor(req.Side)
	ticks := b.toTicks(req.Price)
	order := Order{Side: req.Side, Price: ticks, Qty: new(uint256.Int).Set(req.Qty)}
	if existing, present := q.orders[req.ID]; present {
		order = existing.clone()
		order.Price = ticks
		order.Qty = new(uint256.Int).Set(req.Qty)
	}
	if q.Amend(req.ID, ticks, req.Timestamp, order) {
		return []Result{ok(Event{Kind: Amended, OrderID: req.ID, Price: req.Price, Qty: new(uint256.Int).Set(req.Qty), Timestamp: b.clock.Now()})}
	}
	return []Result{failed(Failure{Kind: OrderNotFound, OrderID: req.ID})}
}

func (b *Book) processCancel(req Request) []Result {
	q := b.queueFor(req.Side)
	if q.Cancel(req.ID) {
		return []Result{ok(Event{Kind: Cancelled, OrderID: req.ID, Timestamp: b.clock.Now()})}
	}
	return []Result{failed(Failure{Kind: OrderNotFound, OrderID: req.ID})}
}

// CurrentSpread reads the best bid/ask price via Peek (so it also compacts
// stale heap tops). It returns false if either side is empty.
func (b *Book) CurrentSpread() (bestBid, bestAsk float64, ok bool) {
	bid, present := b.bidQueue.Peek()
	if !present {
		return 0, 0, false
	}
	ask, present := b.askQueue.Peek()
	if !present {
		return 0, 0, false
	}
	return b.fromTicks(bid.Price), b.fromTicks(ask.Price), true
}

// AskOrders returns every live resting ask order.
func (b *Book) AskOrders() []Order { return b.askQueue.Orders() }

// BidOrders returns every live resting bid order.
func (b *Book) BidOrders() []Order { return b.bidQueue.Orders() }

// OrdersBy returns every live resting order on the given side created by
// creator.
func (b *Book) OrdersBy(creator common.Address, side Side) []Order {
	var out []Order
	for _, o := range b.queueFor(side).Orders() {
		if o.Creator == creator {
			out = append(out, o)
		}
	}
	return out
}

// RestingOrder pairs a live order with the timestamp backing its queue
// priority — the piece Order itself doesn't carry, but snapshot
// persistence needs to restore exact price-time ordering.
type RestingOrder struct {
	Order
	Timestamp uint64
}

func (b *Book) snapshotSide(side Side) []RestingOrder {
	q := b.queueFor(side)
	idx := q.Index()
	out := make([]RestingOrder, 0, len(idx))
	for _, o := range q.Orders() {
		if entry, ok := idx[o.ID]; ok {
			out = append(out, RestingOrder{Order: o, Timestamp: entry.Timestamp})
		}
	}
	return out
}

// Snapshot returns every live resting order on both sides, in enough
// detail to restore exact price-time priority via Restore.
func (b *Book) Snapshot() (bids, asks []RestingOrder) {
	return b.snapshotSide(Bid), b.snapshotSide(Ask)
}

// NextSequence reports the id the book's sequence generator will hand out
// next, so a restored book resumes numbering instead of restarting at lo.
func (b *Book) NextSequence() uint64 { return b.seq.current }

// Restore rebuilds a book's resting orders and sequence position from a
// prior Snapshot. Call it only on a freshly constructed, empty Book.
func (b *Book) Restore(bids, asks []RestingOrder, nextSeq uint64) {
	for _, ro := range bids {
		b.bidQueue.Insert(ro.ID, ro.Price, ro.Timestamp, ro.Order)
	}
	for _, ro := range asks {
		b.askQueue.Insert(ro.ID, ro.Price, ro.Timestamp, ro.Order)
	}
	b.seq.current = nextSeq
}
