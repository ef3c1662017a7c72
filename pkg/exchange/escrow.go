package exchange

import (
	"github.com/holiman/uint256"
	"github.com/onchainx/matchcore/pkg/host"
	"github.com/onchainx/matchcore/pkg/orderbook"
)

// escrowEntry tracks how much of an order's original pre-escrow is still
// outstanding, so Cancel can refund exactly what's left and Amend can pull
// or refund the delta. See SPEC_FULL.md §4.6: the source material never
// specifies this bookkeeping, because its reference settlement never
// refunds on cancel at all.
type escrowEntry struct {
	creator   host.Principal
	asset     string
	remaining *uint256.Int
}

// quoteNotional converts a base-asset quantity at a given price into an
// integer quote-asset amount, using the book's fixed-point tick scale: the
// float64 price is converted to ticks once (truncating), and the rest of
// the computation is integer arithmetic, so the result is reproducible.
func quoteNotional(qty *uint256.Int, price float64, scale int64) *uint256.Int {
	ticks := new(uint256.Int).SetUint64(uint64(price * float64(scale)))
	n := new(uint256.Int).Mul(qty, ticks)
	return n.Div(n, new(uint256.Int).SetUint64(uint64(scale)))
}

// requiredEscrow is how much of which asset an order must lock up before
// it can enter the book: the base asset for an ask, the notional quote
// amount for a bid.
func requiredEscrow(baseAsset, quoteAsset string, side orderbook.Side, price float64, qty *uint256.Int, scale int64) (asset string, amount *uint256.Int) {
	if side == orderbook.Ask {
		return baseAsset, new(uint256.Int).Set(qty)
	}
	return quoteAsset, quoteNotional(qty, price, scale)
}

func (e *Exchange) escrowsFor(baseAsset string) map[uint64]*escrowEntry {
	m, ok := e.escrows[baseAsset]
	if !ok {
		m = make(map[uint64]*escrowEntry)
		e.escrows[baseAsset] = m
	}
	return m
}

// consume reduces entry's outstanding amount by the traded portion,
// deleting it once nothing is left to refund or pull against.
func consume(entries map[uint64]*escrowEntry, orderID uint64, entry *escrowEntry, amount *uint256.Int) {
	if entry.remaining.Cmp(amount) <= 0 {
		delete(entries, orderID)
		return
	}
	entry.remaining = new(uint256.Int).Sub(entry.remaining, amount)
}

// refundAndDelete returns whatever remains of an order's escrow to its
// creator — used on cancel, once an order is Filled, and on the
// matching-soft failures that mean an order will never rest
// (DuplicateOrderID, a market order's trailing NoMatch).
func (e *Exchange) refundAndDelete(entries map[uint64]*escrowEntry, orderID uint64) error {
	entry, ok := entries[orderID]
	if !ok {
		return nil
	}
	delete(entries, orderID)
	if entry.remaining.IsZero() {
		return nil
	}
	return e.ledger.Transfer(e.settlement, entry.creator, entry.asset, entry.remaining)
}

// settleFill pays out one side of a single matching step from the
// exchange's settlement account, per SPEC_FULL.md §4.5.4: the creator
// receives whichever asset they were buying. A resting/limit order's
// payment is drawn down against its tracked escrow entry; an unescrowed
// market bid instead pulls its quote payment just-in-time against the
// trader's pre-authorized allowance (see spec.md §9's market-bid
// settlement note).
func (e *Exchange) settleFill(baseAsset string, entries map[uint64]*escrowEntry, ev *orderbook.Event) error {
	notional := quoteNotional(ev.Qty, ev.Price, e.cfg.PriceScale)

	if ev.Side == orderbook.Ask {
		if err := e.ledger.Transfer(e.settlement, ev.Creator, e.quoteAsset, notional); err != nil {
			return err
		}
		if entry, tracked := entries[ev.OrderID]; tracked {
			consume(entries, ev.OrderID, entry, new(uint256.Int).Set(ev.Qty))
		}
		return nil
	}

	if entry, tracked := entries[ev.OrderID]; tracked {
		consume(entries, ev.OrderID, entry, notional)
	} else {
		if err := e.ledger.TransferFrom(e.settlement, ev.Creator, e.settlement, e.quoteAsset, notional); err != nil {
			return err
		}
	}
	return e.ledger.Transfer(e.settlement, ev.Creator, baseAsset, new(uint256.Int).Set(ev.Qty))
}

// applySettlement walks one call's result stream, recording new escrow
// entries on Accepted, settling each Filled/PartiallyFilled leg, and
// refunding what is left on Filled, on Cancelled, or on a matching-soft
// failure that means the order will never rest.
func (e *Exchange) applySettlement(baseAsset string, creator host.Principal, escrowAsset string, escrowAmount *uint256.Int, results []orderbook.Result) error {
	entries := e.escrowsFor(baseAsset)

	for _, r := range results {
		switch {
		case r.Event != nil:
			ev := r.Event
			switch ev.Kind {
			case orderbook.Accepted:
				if escrowAmount != nil && !escrowAmount.IsZero() {
					entries[ev.OrderID] = &escrowEntry{creator: creator, asset: escrowAsset, remaining: new(uint256.Int).Set(escrowAmount)}
				}
			case orderbook.PartiallyFilled:
				if err := e.settleFill(baseAsset, entries, ev); err != nil {
					return err
				}
			case orderbook.Filled:
				if err := e.settleFill(baseAsset, entries, ev); err != nil {
					return err
				}
				// A bid's escrow is drawn down at each fill's actual
				// execution price, which for a resting bid may improve on
				// (be lower than) the limit price the escrow was sized
				// against; once the order is fully done, whatever surplus
				// is left over belongs back to the creator, not to the
				// settlement account.
				if err := e.refundAndDelete(entries, ev.OrderID); err != nil {
					return err
				}
			case orderbook.Cancelled:
				if err := e.refundAndDelete(entries, ev.OrderID); err != nil {
					return err
				}
			}
		case r.Failure != nil:
			f := r.Failure
			if f.Kind == orderbook.NoMatch || f.Kind == orderbook.DuplicateOrderID {
				if err := e.refundAndDelete(entries, f.OrderID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
