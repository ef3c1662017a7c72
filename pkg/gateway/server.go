package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/onchainx/matchcore/pkg/exchange"
	"github.com/onchainx/matchcore/pkg/orderbook"
	"github.com/onchainx/matchcore/pkg/storage"
)

// Server exposes exchange.Exchange over REST and WebSocket. Every
// Exchange call runs on the dispatch goroutine, never directly on the
// HTTP handler's goroutine, except PriceScale, which only reads the
// engine's fixed configuration.
type Server struct {
	ex       *exchange.Exchange
	router   *mux.Router
	hub      *Hub
	dispatch *dispatch
	log      *zap.SugaredLogger
}

// NewServer builds a gateway around an already-constructed exchange.
func NewServer(ex *exchange.Exchange, log *zap.SugaredLogger) *Server {
	s := &Server{
		ex:       ex,
		router:   mux.NewRouter(),
		hub:      NewHub(),
		dispatch: newDispatch(),
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/tokens", s.handleAddToken).Methods("POST")
	api.HandleFunc("/markets/{asset}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")

	api.HandleFunc("/orders", s.handleNewOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/amend", s.handleAmendOrder).Methods("POST")

	api.HandleFunc("/transfer", s.handleTransfer).Methods("POST")
	api.HandleFunc("/transfer-from", s.handleTransferFrom).Methods("POST")
	api.HandleFunc("/allowance", s.handleSetAllowance).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"status": "ok"})
	}).Methods("GET")
}

// Start starts the hub and the HTTP server on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})

	s.log.Infow("gateway_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Snapshot captures the exchange's current state through the dispatch
// goroutine, so a concurrent snapshot writer never races an in-flight
// order.
func (s *Server) Snapshot() storage.Snapshot {
	var snap storage.Snapshot
	s.dispatch.do(func() { snap = s.ex.Snapshot() })
	return snap
}

// ==============================
// REST handlers
// ==============================

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	var tokens []exchange.Token
	s.dispatch.do(func() { tokens = s.ex.Tokens() })

	out := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		out[i] = TokenInfo{ID: t.ID, Owner: t.Owner.Hex(), Supply: t.Supply.String()}
	}
	respondJSON(w, out)
}

func (s *Server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	var req AddTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	supply, err := parseAmount(req.Supply)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var callErr error
	s.dispatch.do(func() {
		callErr = s.ex.AddToken(common.HexToAddress(req.Caller), req.ID, supply)
	})
	if callErr != nil {
		respondError(w, http.StatusBadRequest, callErr)
		return
	}
	respondJSON(w, map[string]string{"status": "added"})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]

	var bids, asks []orderbook.Order
	var spread [2]float64
	var callErr error
	s.dispatch.do(func() {
		bids, callErr = s.ex.GetBidOrders(asset)
		if callErr != nil {
			return
		}
		asks, callErr = s.ex.GetAskOrders(asset)
		if callErr != nil {
			return
		}
		spread, callErr = s.ex.GetCurrentSpread(asset)
	})
	if callErr != nil {
		respondError(w, http.StatusNotFound, callErr)
		return
	}

	scale := s.ex.PriceScale()
	respondJSON(w, OrderbookSnapshot{
		Asset:   asset,
		Bids:    toPriceLevels(bids, scale),
		Asks:    toPriceLevels(asks, scale),
		BestBid: spread[0],
		BestAsk: spread[1],
	})
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid address"))
		return
	}
	owner := common.HexToAddress(address)

	assets := r.URL.Query()["asset"]
	if len(assets) == 0 {
		var tokens []exchange.Token
		s.dispatch.do(func() { tokens = s.ex.Tokens() })
		for _, t := range tokens {
			assets = append(assets, t.ID)
		}
	}

	var balances map[string]*uint256.Int
	s.dispatch.do(func() { balances = s.ex.GetBalances(owner, assets) })

	out := make(map[string]string, len(balances))
	for asset, amount := range balances {
		out[asset] = amount.String()
	}
	respondJSON(w, BalanceResponse{Owner: owner.Hex(), Balances: out})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid address"))
		return
	}
	owner := common.HexToAddress(address)
	asset := r.URL.Query().Get("asset")
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var orders []orderbook.Order
	var callErr error
	s.dispatch.do(func() { orders, callErr = s.ex.GetOrders(asset, owner, side) })
	if callErr != nil {
		respondError(w, http.StatusNotFound, callErr)
		return
	}
	respondJSON(w, toPriceLevels(orders, s.ex.PriceScale()))
}

func (s *Server) handleNewOrder(w http.ResponseWriter, r *http.Request) {
	var req NewOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	qty, err := parseAmount(req.Qty)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	creator := common.HexToAddress(req.Creator)

	var results []orderbook.Result
	var callErr error
	s.dispatch.do(func() {
		switch strings.ToLower(req.Type) {
		case "market":
			results, callErr = s.ex.NewMarketOrder(req.Asset, side, qty, creator)
		default:
			results, callErr = s.ex.NewLimitOrder(req.Asset, side, req.Price, qty, creator)
		}
	})
	if callErr != nil {
		respondError(w, http.StatusBadRequest, callErr)
		return
	}

	s.broadcastOrderbook(req.Asset)
	respondJSON(w, toOrderResults(results))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var results []orderbook.Result
	var callErr error
	s.dispatch.do(func() {
		results, callErr = s.ex.CancelLimitOrder(req.Asset, req.ID, side)
	})
	if callErr != nil {
		respondError(w, http.StatusBadRequest, callErr)
		return
	}

	s.broadcastOrderbook(req.Asset)
	respondJSON(w, toOrderResults(results))
}

func (s *Server) handleAmendOrder(w http.ResponseWriter, r *http.Request) {
	var req AmendOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	qty, err := parseAmount(req.Qty)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var results []orderbook.Result
	var callErr error
	s.dispatch.do(func() {
		results, callErr = s.ex.AmendLimitOrder(req.Asset, req.ID, side, req.Price, qty)
	})
	if callErr != nil {
		respondError(w, http.StatusBadRequest, callErr)
		return
	}

	s.broadcastOrderbook(req.Asset)
	respondJSON(w, toOrderResults(results))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var callErr error
	s.dispatch.do(func() {
		callErr = s.ex.Transfer(common.HexToAddress(req.Caller), common.HexToAddress(req.Recipient), req.Asset, amount)
	})
	if callErr != nil {
		respondError(w, http.StatusBadRequest, callErr)
		return
	}
	respondJSON(w, map[string]string{"status": "transferred"})
}

func (s *Server) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var callErr error
	s.dispatch.do(func() {
		callErr = s.ex.TransferFrom(
			common.HexToAddress(req.Caller),
			common.HexToAddress(req.Owner),
			common.HexToAddress(req.Recipient),
			req.Asset, amount)
	})
	if callErr != nil {
		respondError(w, http.StatusBadRequest, callErr)
		return
	}
	respondJSON(w, map[string]string{"status": "transferred"})
}

func (s *Server) handleSetAllowance(w http.ResponseWriter, r *http.Request) {
	var req AllowanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var callErr error
	s.dispatch.do(func() {
		callErr = s.ex.SetAllowance(common.HexToAddress(req.Owner), common.HexToAddress(req.Escrow), req.Asset, amount)
	})
	if callErr != nil {
		respondError(w, http.StatusBadRequest, callErr)
		return
	}
	respondJSON(w, map[string]string{"status": "authorized"})
}

// broadcastOrderbook pushes the current book state to every WebSocket
// client subscribed to "orderbook:<asset>". Runs on the dispatch
// goroutine's caller, after the mutating call already returned.
func (s *Server) broadcastOrderbook(asset string) {
	var bids, asks []orderbook.Order
	var spread [2]float64
	s.dispatch.do(func() {
		bids, _ = s.ex.GetBidOrders(asset)
		asks, _ = s.ex.GetAskOrders(asset)
		spread, _ = s.ex.GetCurrentSpread(asset)
	})
	scale := s.ex.PriceScale()
	s.hub.BroadcastToChannel("orderbook:"+asset, WSMessage{
		Type: "orderbook",
		Data: OrderbookSnapshot{Asset: asset, Bids: toPriceLevels(bids, scale), Asks: toPriceLevels(asks, scale), BestBid: spread[0], BestAsk: spread[1]},
	})
}

// ==============================
// Conversion and response helpers
// ==============================

func parseSide(s string) (orderbook.Side, error) {
	switch strings.ToLower(s) {
	case "bid", "buy":
		return orderbook.Bid, nil
	case "ask", "sell":
		return orderbook.Ask, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

func parseAmount(s string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}

// toPriceLevels renders resting orders for the REST/WebSocket surface.
// o.Price is the book's internal fixed-point ticks (orderbook/domain.go);
// scale converts it back to the external float64 price spec.md §6
// expects, exactly as Book.CurrentSpread does internally.
func toPriceLevels(orders []orderbook.Order, scale int64) []PriceLevel {
	out := make([]PriceLevel, len(orders))
	for i, o := range orders {
		out[i] = PriceLevel{OrderID: o.ID, Price: float64(o.Price) / float64(scale), Qty: o.Qty.String(), Creator: o.Creator.Hex()}
	}
	return out
}

func toOrderResults(results []orderbook.Result) []OrderResult {
	out := make([]OrderResult, len(results))
	for i, r := range results {
		switch {
		case r.Event != nil:
			e := r.Event
			out[i] = OrderResult{
				Kind: e.Kind.String(), OrderID: e.OrderID, Side: e.Side.String(),
				Price: e.Price, Qty: e.Qty.String(), Creator: e.Creator.Hex(), Timestamp: e.Timestamp,
			}
		case r.Failure != nil:
			f := r.Failure
			out[i] = OrderResult{Kind: f.Kind.String(), OrderID: f.OrderID, Reason: f.Reason}
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}
