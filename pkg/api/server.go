// Package api exposes the exchange over REST and WebSocket. Handlers
// translate wire requests into engine intents and map coded business
// errors onto HTTP statuses; all matching semantics live below.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/probo-exchange/probo/pkg/exchange"
	"github.com/probo-exchange/probo/pkg/exchange/engine"
)

type Server struct {
	engine *engine.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
	http   *http.Server
}

// NewServer wires the REST routes and the websocket hub, and hooks the
// engine's post-commit callbacks into the broadcast channels.
func NewServer(eng *engine.Engine, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine: eng,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()

	eng.OnBook = s.broadcastBook
	eng.OnTrade = s.broadcastTrade
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/user/create/{id}", s.handleCreateUser).Methods("POST")
	api.HandleFunc("/symbol/create/{symbol}", s.handleCreateSymbol).Methods("POST")
	api.HandleFunc("/onramp/inr", s.handleOnramp).Methods("POST")
	api.HandleFunc("/trade/mint", s.handleMint).Methods("POST")

	api.HandleFunc("/order/buy", s.handleBuy).Methods("POST")
	api.HandleFunc("/order/sell", s.handleSell).Methods("POST")
	api.HandleFunc("/order/cancel", s.handleCancel).Methods("POST")

	api.HandleFunc("/orderbook", s.handleOrderBook).Methods("GET")
	api.HandleFunc("/orderbook/{symbol}", s.handleSymbolOrderBook).Methods("GET")
	api.HandleFunc("/balances/inr", s.handleInrBalances).Methods("GET")
	api.HandleFunc("/balances/stock", s.handleStockBalances).Methods("GET")
	api.HandleFunc("/symbols", s.handleSymbols).Methods("GET")
	api.HandleFunc("/trades/{symbol}", s.handleTrades).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves until the context is cancelled, then drains connections
// within the shutdown timeout.
func (s *Server) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	go s.hub.Run(ctx)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.http = &http.Server{
		Addr:    addr,
		Handler: c.Handler(s.router),
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", addr)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	}
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.CreateUser(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, MessageResponse{Message: fmt.Sprintf("User %s created", id)})
}

func (s *Server) handleCreateSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if err := s.engine.CreateSymbol(symbol); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, MessageResponse{Message: fmt.Sprintf("Symbol %s created", symbol)})
}

func (s *Server) handleOnramp(w http.ResponseWriter, r *http.Request) {
	var req OnrampRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.engine.Deposit(req.UserID, req.Amount); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Onramped %s with amount %d", req.UserID, req.Amount),
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Mint(engine.MintIntent{
		UserID:   req.UserID,
		Symbol:   req.StockSymbol,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: res.Message})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	outcome, err := exchange.ParseOutcome(req.StockType)
	if err != nil {
		respondError(w, exchange.Invalid(err.Error()))
		return
	}
	res, err := s.engine.PlaceBuy(engine.BuyIntent{
		UserID:   req.UserID,
		Symbol:   req.StockSymbol,
		Outcome:  outcome,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: res.Message})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	outcome, err := exchange.ParseOutcome(req.StockType)
	if err != nil {
		respondError(w, exchange.Invalid(err.Error()))
		return
	}
	res, err := s.engine.PlaceSell(engine.SellIntent{
		UserID:   req.UserID,
		Symbol:   req.StockSymbol,
		Outcome:  outcome,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: res.Message})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	outcome, err := exchange.ParseOutcome(req.StockType)
	if err != nil {
		respondError(w, exchange.Invalid(err.Error()))
		return
	}
	res, err := s.engine.Cancel(engine.CancelIntent{
		UserID:   req.UserID,
		Symbol:   req.StockSymbol,
		Outcome:  outcome,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: res.Message})
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	books := s.engine.OrderBook()
	out := make(map[string]SymbolDepth, len(books))
	for symbol, view := range books {
		out[symbol] = depthFromView(view)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSymbolOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	respondJSON(w, http.StatusOK, depthFromView(s.engine.SymbolOrderBook(symbol)))
}

func (s *Server) handleInrBalances(w http.ResponseWriter, r *http.Request) {
	balances := s.engine.CurrencyBalances()
	out := make(map[string]InrBalance, len(balances))
	for user, bal := range balances {
		out[user] = InrBalance{Balance: bal.Available, Locked: bal.Locked}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleStockBalances(w http.ResponseWriter, r *http.Request) {
	tokens := s.engine.TokenBalances()
	out := make(map[string]map[string]map[string]StockBalance, len(tokens))
	for user, symbols := range tokens {
		out[user] = make(map[string]map[string]StockBalance, len(symbols))
		for symbol, outcomes := range symbols {
			out[user][symbol] = make(map[string]StockBalance, len(outcomes))
			for outcome, bal := range outcomes {
				out[user][symbol][string(outcome)] = StockBalance{
					Quantity: bal.Available,
					Locked:   bal.Locked,
				}
			}
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := s.engine.Symbols()
	names := make([]string, len(symbols))
	for i, sym := range symbols {
		names[i] = sym.Name
	}
	respondJSON(w, http.StatusOK, names)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.engine.RecentTrades(symbol, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = tradeInfo(*t)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) broadcastBook(symbol string) {
	update := BookUpdate{
		Type:      "orderbook",
		Symbol:    symbol,
		Book:      depthFromView(s.engine.SymbolOrderBook(symbol)),
		Timestamp: time.Now().UnixMilli(),
	}
	s.hub.BroadcastToChannel("orderbook:"+symbol, update)
}

func (s *Server) broadcastTrade(t exchange.Trade) {
	s.hub.BroadcastToChannel("trades:"+t.Symbol, TradeUpdate{Type: "trade", Trade: tradeInfo(t)})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, exchange.Invalid("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, err error) {
	code := exchange.CodeOf(err)
	respondJSON(w, statusFor(code), ErrorResponse{Code: string(code), Message: err.Error()})
}

func statusFor(code exchange.Code) int {
	switch code {
	case exchange.CodeValidation, exchange.CodeInsufficientFunds, exchange.CodeInsufficientStock:
		return http.StatusBadRequest
	case exchange.CodeUnknownSymbol, exchange.CodeOrderNotFound, exchange.CodeUserNotFound:
		return http.StatusNotFound
	case exchange.CodeSymbolExists, exchange.CodeUserExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
