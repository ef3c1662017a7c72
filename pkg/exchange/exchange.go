// Package exchange wires the order-matching engine (pkg/orderbook) to the
// multi-asset ledger (pkg/ledger), settling each match through the
// exchange's own account exactly as a smart-contract-hosted venue would:
// the contract itself holds escrowed funds in flight between a trade's two
// legs. It is the external interface spec.md §6 describes.
package exchange

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/onchainx/matchcore/pkg/config"
	"github.com/onchainx/matchcore/pkg/host"
	"github.com/onchainx/matchcore/pkg/ledger"
	"github.com/onchainx/matchcore/pkg/orderbook"
)

// Exchange is the top-level aggregate: every wallet, every asset pair's
// order book, the registered token list, and the owning principal. Like
// the orderbook.Book it wraps, Exchange is not internally goroutine-safe
// by contract — one external call must complete before the next begins.
// A caller that needs concurrent access (pkg/gateway) is responsible for
// serializing calls itself.
type Exchange struct {
	owner      host.Principal
	settlement host.Principal
	quoteAsset string

	ledger *ledger.Ledger
	books  map[string]*orderbook.Book
	tokens []Token
	escrows map[string]map[uint64]*escrowEntry

	cfg   config.Engine
	clock orderbook.Clock
}

// New initializes an exchange owned by owner, minting the standard quote
// token to owner exactly as the source contract's constructor does.
func New(owner host.Principal, cfg config.Engine, clock orderbook.Clock) *Exchange {
	e := &Exchange{
		owner:      owner,
		settlement: owner,
		quoteAsset: StandardToken,
		ledger:     ledger.New(),
		books:      make(map[string]*orderbook.Book),
		escrows:    make(map[string]map[uint64]*escrowEntry),
		cfg:        cfg,
		clock:      clock,
	}
	e.registerToken(Token{ID: StandardToken, Owner: owner, Supply: StandardTokenSupply}, false)
	return e
}

// registerToken records a token and credits its supply to its owner.
// openBook controls whether a new order book is created for it — the
// standard quote token never trades against itself.
func (e *Exchange) registerToken(t Token, openBook bool) {
	e.tokens = append(e.tokens, t)
	e.ledger.Credit(t.Owner, t.ID, t.Supply)
	if openBook {
		e.books[t.ID] = orderbook.NewBook(t.ID, e.quoteAsset, bookConfig(e.cfg), e.clock)
	}
}

// AddToken registers a new tradeable asset and opens its order book
// against the standard token. Privileged: caller must be the exchange's
// owner.
func (e *Exchange) AddToken(caller host.Principal, id string, supply *uint256.Int) error {
	if caller != e.owner {
		return fmt.Errorf("exchange: only the owner may add a token")
	}
	if _, exists := e.books[id]; exists || id == e.quoteAsset {
		return fmt.Errorf("exchange: token %q already registered", id)
	}
	e.registerToken(Token{ID: id, Owner: caller, Supply: new(uint256.Int).Set(supply)}, true)
	return nil
}

// Tokens returns every registered token.
func (e *Exchange) Tokens() []Token { return append([]Token(nil), e.tokens...) }

// Owner returns the exchange's owning principal.
func (e *Exchange) Owner() host.Principal { return e.owner }

// PriceScale returns the fixed-point tick scale every book shares, so a
// caller holding a raw ticks value (orderbook.Order.Price) can render it
// back to the external float64 price.
func (e *Exchange) PriceScale() int64 { return e.cfg.PriceScale }

// bookConfig adapts the engine's config.Engine tunables to the
// orderbook.Config a Book constructor expects; the two are kept as
// separate named types so pkg/orderbook has no dependency on pkg/config.
func bookConfig(cfg config.Engine) orderbook.Config {
	return orderbook.Config{
		MinSequenceID:     cfg.MinSequenceID,
		MaxSequenceID:     cfg.MaxSequenceID,
		MaxStalledIndices: cfg.MaxStalledIndices,
		QueueCapacity:     cfg.QueueCapacity,
		PriceScale:        cfg.PriceScale,
	}
}

func (e *Exchange) book(asset string) (*orderbook.Book, error) {
	b, ok := e.books[asset]
	if !ok {
		return nil, fmt.Errorf("exchange: unknown asset %q", asset)
	}
	return b, nil
}

// SetAllowance authorizes escrow to move up to amount of asset from
// caller's wallet.
func (e *Exchange) SetAllowance(caller, escrow host.Principal, asset string, amount *uint256.Int) error {
	return e.ledger.SetAllowance(caller, escrow, asset, amount)
}

// GetAllowance returns the amount escrow may move from owner's asset
// account.
func (e *Exchange) GetAllowance(owner, escrow host.Principal, asset string) *uint256.Int {
	return e.ledger.GetAllowance(owner, escrow, asset)
}

// Transfer moves amount of asset directly from caller to recipient.
func (e *Exchange) Transfer(caller, recipient host.Principal, asset string, amount *uint256.Int) error {
	return e.ledger.Transfer(caller, recipient, asset, amount)
}

// TransferFrom moves amount of asset from owner to recipient on caller's
// behalf, spending caller's allowance on owner's account when caller !=
// owner.
func (e *Exchange) TransferFrom(caller, owner, recipient host.Principal, asset string, amount *uint256.Int) error {
	return e.ledger.TransferFrom(caller, owner, recipient, asset, amount)
}

// GetBalance returns owner's balance of asset.
func (e *Exchange) GetBalance(owner host.Principal, asset string) *uint256.Int {
	return e.ledger.GetBalance(owner, asset)
}

// GetBalances returns owner's balance of every requested asset.
func (e *Exchange) GetBalances(owner host.Principal, assets []string) map[string]*uint256.Int {
	return e.ledger.GetBalances(owner, assets)
}

// NewLimitOrder submits a limit order against asset's book, pre-escrowing
// the required funds before the order is allowed to enter the book or
// match. A resource error (insufficient balance) aborts the call entirely
// with no event emitted, per spec.md §7.
func (e *Exchange) NewLimitOrder(asset string, side orderbook.Side, price float64, qty *uint256.Int, creator host.Principal) ([]orderbook.Result, error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, err
	}

	escrowAsset, escrowAmount := requiredEscrow(asset, e.quoteAsset, side, price, qty, e.cfg.PriceScale)
	if err := e.ledger.Transfer(creator, e.settlement, escrowAsset, escrowAmount); err != nil {
		return nil, fmt.Errorf("exchange: escrow: %w", err)
	}

	results := book.ProcessOrder(orderbook.NewLimitOrder(asset, e.quoteAsset, side, price, qty, creator, e.clock.Now()))
	if err := e.applySettlement(asset, creator, escrowAsset, escrowAmount, results); err != nil {
		return results, err
	}
	return results, nil
}

// NewMarketOrder submits a market order against asset's book. A market
// ask pre-escrows its base quantity exactly like a limit ask; a market
// bid is never pre-escrowed (see spec.md §9) and instead pulls its quote
// payment per match against a pre-authorized allowance.
func (e *Exchange) NewMarketOrder(asset string, side orderbook.Side, qty *uint256.Int, creator host.Principal) ([]orderbook.Result, error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, err
	}

	var escrowAsset string
	var escrowAmount *uint256.Int
	if side == orderbook.Ask {
		escrowAsset, escrowAmount = asset, new(uint256.Int).Set(qty)
		if err := e.ledger.Transfer(creator, e.settlement, escrowAsset, escrowAmount); err != nil {
			return nil, fmt.Errorf("exchange: escrow: %w", err)
		}
	}

	results := book.ProcessOrder(orderbook.NewMarketOrder(asset, e.quoteAsset, side, qty, creator, e.clock.Now()))
	if err := e.applySettlement(asset, creator, escrowAsset, escrowAmount, results); err != nil {
		return results, err
	}
	return results, nil
}

// CancelLimitOrder cancels a resting order, refunding whatever remains of
// its original escrow.
func (e *Exchange) CancelLimitOrder(asset string, id uint64, side orderbook.Side) ([]orderbook.Result, error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, err
	}
	results := book.ProcessOrder(orderbook.NewCancelOrder(id, side))
	if err := e.applySettlement(asset, host.Principal{}, "", nil, results); err != nil {
		return results, err
	}
	return results, nil
}

// AmendLimitOrder replaces a resting order's price/quantity, pulling or
// refunding the difference in required escrow against the creator's
// wallet once the amendment succeeds. An amendment loses its original
// time priority, exactly as a cancel-then-replace would, so its new
// queue timestamp is the current time rather than a caller-supplied one.
func (e *Exchange) AmendLimitOrder(asset string, id uint64, side orderbook.Side, price float64, qty *uint256.Int) ([]orderbook.Result, error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, err
	}
	results := book.ProcessOrder(orderbook.NewAmendOrder(id, side, price, qty, e.clock.Now()))

	if len(results) == 1 && results[0].Event != nil && results[0].Event.Kind == orderbook.Amended {
		entries := e.escrowsFor(asset)
		if entry, tracked := entries[id]; tracked {
			_, newRequired := requiredEscrow(asset, e.quoteAsset, side, price, qty, e.cfg.PriceScale)
			if err := e.adjustEscrow(entry, newRequired); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func (e *Exchange) adjustEscrow(entry *escrowEntry, newRequired *uint256.Int) error {
	switch entry.remaining.Cmp(newRequired) {
	case -1:
		delta := new(uint256.Int).Sub(newRequired, entry.remaining)
		if err := e.ledger.Transfer(entry.creator, e.settlement, entry.asset, delta); err != nil {
			return err
		}
	case 1:
		delta := new(uint256.Int).Sub(entry.remaining, newRequired)
		if err := e.ledger.Transfer(e.settlement, entry.creator, entry.asset, delta); err != nil {
			return err
		}
	}
	entry.remaining = newRequired
	return nil
}

// GetAskOrders returns every live resting ask order for asset.
func (e *Exchange) GetAskOrders(asset string) ([]orderbook.Order, error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, err
	}
	return book.AskOrders(), nil
}

// GetBidOrders returns every live resting bid order for asset.
func (e *Exchange) GetBidOrders(asset string) ([]orderbook.Order, error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, err
	}
	return book.BidOrders(), nil
}

// GetOrders returns every live resting order on the given side for asset
// created by principal.
func (e *Exchange) GetOrders(asset string, principal host.Principal, side orderbook.Side) ([]orderbook.Order, error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, err
	}
	return book.OrdersBy(principal, side), nil
}

// GetCurrentSpread returns [best_bid_price, best_ask_price], or [0, 0] if
// either side of asset's book is empty.
func (e *Exchange) GetCurrentSpread(asset string) ([2]float64, error) {
	book, err := e.book(asset)
	if err != nil {
		return [2]float64{}, err
	}
	bid, ask, ok := book.CurrentSpread()
	if !ok {
		return [2]float64{0, 0}, nil
	}
	return [2]float64{bid, ask}, nil
}
