// Package engine is the write entry point of the exchange. It owns the
// matching algorithm and the transaction coordinator: an intent comes
// in, the committed resources are reserved in the ledger, the order is
// matched against the book under price-time priority, settlement deltas
// are applied, and the whole scope commits atomically to storage.
//
// Operations on the same (symbol, outcome) are mutually exclusive via a
// per-symbol lock table; independent symbols proceed in parallel.
package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/probo-exchange/probo/pkg/exchange"
	"github.com/probo-exchange/probo/pkg/exchange/ledger"
	"github.com/probo-exchange/probo/pkg/exchange/market"
	"github.com/probo-exchange/probo/pkg/exchange/orderbook"
	"github.com/probo-exchange/probo/pkg/storage"
	"github.com/probo-exchange/probo/pkg/util"
)

// Metrics is the slice of the monitor the engine feeds. Nil disables
// collection.
type Metrics interface {
	RecordOrderPlaced()
	RecordOrderCancelled()
	RecordOrderRejected()
	RecordTrade(qty, notional int64)
	RecordMint(qty int64)
}

// TradePublisher pushes settlement records to an external feed (Kafka in
// production). Nil disables publishing.
type TradePublisher interface {
	Publish(ctx context.Context, trades []exchange.Trade) error
}

// books bundles the two outcome books of one symbol.
type books struct {
	yes *orderbook.Book
	no  *orderbook.Book
}

func (b *books) forOutcome(o exchange.Outcome) *orderbook.Book {
	if o == exchange.Yes {
		return b.yes
	}
	return b.no
}

type Engine struct {
	ledger   *ledger.Ledger
	registry *market.Registry
	store    *storage.Store
	clock    util.Clock
	log      *zap.SugaredLogger

	metrics   Metrics        // optional
	publisher TradePublisher // optional

	// OnTrade and OnBook fan out to the websocket hub after a scope
	// commits. Set once at wiring time, before any traffic.
	OnTrade func(t exchange.Trade)
	OnBook  func(symbol string)

	seq uint64 // arrival sequence for FIFO restore

	// persistMu orders account writes to disk. Every scope reads its
	// dirtied balances from the ledger and commits while holding it, so
	// concurrent operations on one user can never overwrite a newer
	// persisted balance with a staler one.
	persistMu sync.Mutex

	mu     sync.Mutex // guards locks and markets maps
	locks  map[string]*sync.Mutex
	market map[string]*books
}

// Options wires the engine's collaborators.
type Options struct {
	Store     *storage.Store
	Logger    *zap.SugaredLogger
	Clock     util.Clock
	Metrics   Metrics
	Publisher TradePublisher
}

// New builds an engine and rebuilds ledger, registry, and books from the
// persisted state, restoring the exact pre-shutdown order book (FIFO
// order included) and account balances.
func New(opts Options) (*Engine, error) {
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	e := &Engine{
		ledger:    ledger.New(),
		registry:  market.NewRegistry(),
		store:     opts.Store,
		clock:     opts.Clock,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		locks:     make(map[string]*sync.Mutex),
		market:    make(map[string]*books),
	}

	snap, err := opts.Store.Load()
	if err != nil {
		return nil, err
	}
	for userID, bal := range snap.Currency {
		e.ledger.RestoreCurrency(userID, bal)
	}
	for _, tok := range snap.Tokens {
		e.ledger.RestoreToken(tok.UserID, tok.Symbol, tok.Outcome, tok.Balance)
	}
	for _, sym := range snap.Symbols {
		e.registry.Restore(sym)
		e.ensureBooks(sym.Name)
	}
	for _, o := range snap.Orders { // sorted by Seq: FIFO preserved
		b := e.ensureBooks(o.Symbol).forOutcome(o.Outcome)
		if o.Side == exchange.Sell {
			b.AddAsk(o)
		} else {
			b.AddBid(o)
		}
	}
	atomic.StoreUint64(&e.seq, snap.MaxSeq)

	e.log.Infow("engine_restored",
		"users", len(snap.Currency),
		"symbols", len(snap.Symbols),
		"resting_orders", len(snap.Orders))
	return e, nil
}

// lockSymbol returns the mutex serializing all operations on one symbol.
func (e *Engine) lockSymbol(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.locks[symbol] = l
	}
	return l
}

func (e *Engine) ensureBooks(symbol string) *books {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.market[symbol]
	if !ok {
		b = &books{
			yes: orderbook.New(symbol, exchange.Yes),
			no:  orderbook.New(symbol, exchange.No),
		}
		e.market[symbol] = b
	}
	return b
}

func (e *Engine) nextSeq() uint64 {
	return atomic.AddUint64(&e.seq, 1)
}

// Submit dispatches a tagged intent to its operation.
func (e *Engine) Submit(in Intent) (Result, error) {
	switch v := in.(type) {
	case MintIntent:
		return e.Mint(v)
	case BuyIntent:
		return e.PlaceBuy(v)
	case SellIntent:
		return e.PlaceSell(v)
	case CancelIntent:
		return e.Cancel(v)
	default:
		return Result{Status: StatusRejected}, exchange.Internal("unknown intent type")
	}
}

// CreateUser registers a user with an empty currency account.
// Collaborator-owned setup: must precede any operation naming the user.
func (e *Engine) CreateUser(userID string) error {
	if userID == "" {
		return exchange.Invalid("userId is required")
	}
	if strings.ContainsRune(userID, ':') {
		return exchange.Invalid("userId must not contain ':'")
	}

	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if err := e.ledger.CreateUser(userID); err != nil {
		return err
	}
	bal, _ := e.ledger.CurrencyBalance(userID)
	if err := e.store.PutCurrency(userID, bal); err != nil {
		return exchange.Internal("persist user: " + err.Error())
	}
	e.log.Infow("user_created", "user", userID)
	return nil
}

// CreateSymbol registers a tradable symbol and its two outcome books.
func (e *Engine) CreateSymbol(name string) error {
	if name == "" {
		return exchange.Invalid("symbol is required")
	}
	if strings.ContainsRune(name, ':') {
		return exchange.Invalid("symbol must not contain ':'")
	}
	if err := e.registry.Create(name); err != nil {
		return err
	}
	sym, _ := e.registry.Get(name)
	if err := e.store.PutSymbol(sym); err != nil {
		return exchange.Internal("persist symbol: " + err.Error())
	}
	e.ensureBooks(name)
	e.log.Infow("symbol_created", "symbol", name)
	return nil
}

// Deposit onramps currency into a user's available balance.
func (e *Engine) Deposit(userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, exchange.Invalid("amount must be positive")
	}
	tx := e.begin()
	defer tx.rollback()

	newBal, undo, err := e.ledger.Deposit(userID, amount)
	if err != nil {
		return 0, err
	}
	tx.add(undo)
	tx.touchCurrency(userID)

	if err := tx.commit(); err != nil {
		return 0, err
	}
	e.log.Infow("deposit", "user", userID, "amount", amount, "balance", newBal)
	return newBal, nil
}

// Mint creates quantity YES/NO token pairs for the user against
// quantity*price currency. Not matched against any book.
func (e *Engine) Mint(in MintIntent) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{Status: StatusRejected}, err
	}
	if !e.registry.Exists(in.Symbol) {
		return Result{Status: StatusRejected}, exchange.ErrUnknownSymbol
	}
	if !e.ledger.HasUser(in.UserID) {
		return Result{Status: StatusRejected}, exchange.ErrUserNotFound
	}

	lock := e.lockSymbol(in.Symbol)
	lock.Lock()
	defer lock.Unlock()

	tx := e.begin()
	defer tx.rollback()

	remaining, undo, err := e.ledger.Mint(in.UserID, in.Symbol, in.Quantity, in.Price)
	if err != nil {
		return Result{Status: StatusRejected}, err
	}
	tx.add(undo)

	tx.touchCurrency(in.UserID)
	tx.touchToken(in.UserID, in.Symbol, exchange.Yes)
	tx.touchToken(in.UserID, in.Symbol, exchange.No)

	if err := tx.commit(); err != nil {
		return Result{Status: StatusRejected}, err
	}

	if e.metrics != nil {
		e.metrics.RecordMint(in.Quantity)
	}
	e.log.Infow("mint",
		"user", in.UserID, "symbol", in.Symbol,
		"quantity", in.Quantity, "price", in.Price,
		"remaining_balance", remaining)

	return Result{
		Status:           StatusFilled,
		Message:          mintMessage(in.Quantity, in.UserID, remaining),
		RemainingBalance: remaining,
	}, nil
}

// PlaceBuy reserves quantity*price currency, then walks the sell book
// from the lowest price upward while level.price <= limit. The buyer
// always pays the resting ask price; currency locked above the actual
// execution cost is released back. Any remainder rests as demand with
// its funds still locked.
func (e *Engine) PlaceBuy(in BuyIntent) (Result, error) {
	if err := in.Validate(); err != nil {
		return e.reject(err)
	}
	if !e.registry.Exists(in.Symbol) {
		return e.reject(exchange.ErrUnknownSymbol)
	}
	if !e.ledger.HasUser(in.UserID) {
		return e.reject(exchange.ErrUserNotFound)
	}

	lock := e.lockSymbol(in.Symbol)
	lock.Lock()
	defer lock.Unlock()

	tx := e.begin()
	defer tx.rollback()

	undo, err := e.ledger.ReserveCurrency(in.UserID, in.Quantity*in.Price)
	if err != nil {
		return e.reject(err)
	}
	tx.add(undo)

	book := e.ensureBooks(in.Symbol).forOutcome(in.Outcome)
	order := e.newOrder(in.UserID, in.Symbol, in.Outcome, exchange.Buy, in.Price, in.Quantity)

	m, err := e.matchBuy(tx, book, order)
	if err != nil {
		return e.reject(err)
	}

	result, err := e.finishTaker(tx, book, order, m)
	if err != nil {
		return e.reject(err)
	}
	e.afterOrder(in.Symbol, order, m)
	return result, nil
}

// PlaceSell reserves quantity tokens, then walks the resting demand from
// the highest price downward while level.price >= limit, settling each
// slice at the resting buyer's price (price priority favors whichever
// side arrived first). Any remainder posts as a new resting sell.
func (e *Engine) PlaceSell(in SellIntent) (Result, error) {
	if err := in.Validate(); err != nil {
		return e.reject(err)
	}
	if !e.registry.Exists(in.Symbol) {
		return e.reject(exchange.ErrUnknownSymbol)
	}
	if !e.ledger.HasUser(in.UserID) {
		return e.reject(exchange.ErrUserNotFound)
	}

	lock := e.lockSymbol(in.Symbol)
	lock.Lock()
	defer lock.Unlock()

	tx := e.begin()
	defer tx.rollback()

	undo, err := e.ledger.ReserveTokens(in.UserID, in.Symbol, in.Outcome, in.Quantity)
	if err != nil {
		return e.reject(err)
	}
	tx.add(undo)

	book := e.ensureBooks(in.Symbol).forOutcome(in.Outcome)
	order := e.newOrder(in.UserID, in.Symbol, in.Outcome, exchange.Sell, in.Price, in.Quantity)

	m, err := e.matchSell(tx, book, order)
	if err != nil {
		return e.reject(err)
	}

	result, err := e.finishTaker(tx, book, order, m)
	if err != nil {
		return e.reject(err)
	}
	e.afterOrder(in.Symbol, order, m)
	return result, nil
}

// Cancel removes the caller's own resting order identified by the exact
// (outcome, price, remaining quantity) key, releasing the locked tokens
// (sell) or currency (buy). A second cancel of the same key fails with
// ORDER_NOT_FOUND.
func (e *Engine) Cancel(in CancelIntent) (Result, error) {
	if err := in.Validate(); err != nil {
		return e.reject(err)
	}
	if !e.registry.Exists(in.Symbol) {
		return e.reject(exchange.ErrUnknownSymbol)
	}
	if !e.ledger.HasUser(in.UserID) {
		return e.reject(exchange.ErrUserNotFound)
	}

	lock := e.lockSymbol(in.Symbol)
	lock.Lock()
	defer lock.Unlock()

	book := e.ensureBooks(in.Symbol).forOutcome(in.Outcome)

	order := book.FindOrder(in.UserID, exchange.Sell, in.Price, in.Quantity)
	if order == nil {
		order = book.FindOrder(in.UserID, exchange.Buy, in.Price, in.Quantity)
	}
	if order == nil {
		return e.reject(exchange.ErrOrderNotFound)
	}

	tx := e.begin()
	defer tx.rollback()

	var undo ledger.Undo
	var err error
	if order.Side == exchange.Sell {
		undo, err = e.ledger.ReleaseTokens(in.UserID, in.Symbol, in.Outcome, order.Remaining)
	} else {
		undo, err = e.ledger.ReleaseCurrency(in.UserID, order.Remaining*order.Price)
	}
	if err != nil {
		return e.reject(err)
	}
	tx.add(undo)

	slot := book.RemoveOrder(order)
	prevStatus := order.Status
	order.Status = exchange.OrderCancelled
	tx.add(func() {
		order.Status = prevStatus
		book.InsertAt(order, slot)
	})

	if err := tx.batch.DeleteOrder(order); err != nil {
		return e.reject(exchange.Internal("stage order delete: " + err.Error()))
	}
	if order.Side == exchange.Sell {
		tx.touchToken(in.UserID, in.Symbol, in.Outcome)
	} else {
		tx.touchCurrency(in.UserID)
	}

	if err := tx.commit(); err != nil {
		return e.reject(err)
	}

	if e.metrics != nil {
		e.metrics.RecordOrderCancelled()
	}
	e.log.Infow("order_cancelled",
		"user", in.UserID, "symbol", in.Symbol, "outcome", in.Outcome,
		"side", order.Side.String(), "price", order.Price, "quantity", order.Remaining)
	e.notifyBook(in.Symbol)

	return Result{Status: StatusCancelled, Message: cancelMessage(order.Side)}, nil
}

// match bookkeeping shared by both taker directions.
type matchState struct {
	trades         []exchange.Trade
	bestPrice      int64 // first (best) execution price
	lastMakerLeft  int64 // remainder on the final consumed maker order
	notional       int64
	filledQuantity int64
}

func (e *Engine) matchBuy(tx *txn, book *orderbook.Book, order *exchange.Order) (*matchState, error) {
	m := &matchState{}
	for order.Remaining > 0 {
		price, ok := book.BestAsk()
		if !ok || price > order.Price {
			break
		}
		maker := book.FrontAsk(price)
		qty := min64(order.Remaining, maker.Remaining)

		// Settle at the resting price; refund the locked excess the
		// buyer committed above it.
		if err := e.settle(tx, order.UserID, maker.UserID, book, price, qty); err != nil {
			return nil, err
		}
		undo, err := e.ledger.ReleaseCurrency(order.UserID, qty*(order.Price-price))
		if err != nil {
			return nil, err
		}
		tx.add(undo)

		if err := e.consumeMaker(tx, book, maker, order, price, qty, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (e *Engine) matchSell(tx *txn, book *orderbook.Book, order *exchange.Order) (*matchState, error) {
	m := &matchState{}
	for order.Remaining > 0 {
		price, ok := book.BestBid()
		if !ok || price < order.Price {
			break
		}
		maker := book.FrontBid(price)
		qty := min64(order.Remaining, maker.Remaining)

		// The resting buyer locked exactly price per unit, so the
		// settlement consumes the reservation with nothing to refund.
		if err := e.settle(tx, maker.UserID, order.UserID, book, price, qty); err != nil {
			return nil, err
		}

		if err := e.consumeMaker(tx, book, maker, order, price, qty, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// settle moves qty*price currency from the buyer's locked leg to the
// seller's available leg, and qty tokens from the seller's locked leg to
// the buyer's available leg, marking the touched accounts for
// persistence.
func (e *Engine) settle(tx *txn, buyer, seller string, book *orderbook.Book, price, qty int64) error {
	undo, err := e.ledger.SettleCurrency(buyer, seller, qty*price)
	if err != nil {
		return err
	}
	tx.add(undo)

	undo, err = e.ledger.SettleTokens(seller, buyer, book.Symbol, book.Outcome, qty)
	if err != nil {
		return err
	}
	tx.add(undo)

	tx.touchCurrency(buyer)
	tx.touchCurrency(seller)
	tx.touchToken(buyer, book.Symbol, book.Outcome)
	tx.touchToken(seller, book.Symbol, book.Outcome)
	return nil
}

// consumeMaker applies one fill slice to the resting order, records the
// trade, and advances the taker.
func (e *Engine) consumeMaker(tx *txn, book *orderbook.Book, maker, taker *exchange.Order, price, qty int64, m *matchState) error {
	prevRemaining := maker.Remaining
	prevStatus := maker.Status
	maker.Remaining -= qty

	if maker.Remaining == 0 {
		maker.Status = exchange.OrderFilled
		if maker.Side == exchange.Sell {
			book.RemoveFrontAsk(price)
		} else {
			book.RemoveFrontBid(price)
		}
		tx.add(func() {
			maker.Remaining = prevRemaining
			maker.Status = prevStatus
			if maker.Side == exchange.Sell {
				book.ReinsertAskFront(maker)
			} else {
				book.ReinsertBidFront(maker)
			}
		})
		if err := tx.batch.DeleteOrder(maker); err != nil {
			return exchange.Internal("stage order delete: " + err.Error())
		}
	} else {
		maker.Status = exchange.OrderPartiallyFilled
		tx.add(func() {
			maker.Remaining = prevRemaining
			maker.Status = prevStatus
		})
		if err := tx.batch.PutOrder(maker); err != nil {
			return exchange.Internal("stage order update: " + err.Error())
		}
	}

	prevTaker := taker.Remaining
	taker.Remaining -= qty
	tx.add(func() { taker.Remaining = prevTaker })

	buyer, seller := taker.UserID, maker.UserID
	if taker.Side == exchange.Sell {
		buyer, seller = maker.UserID, taker.UserID
	}
	trade := exchange.Trade{
		ID:         uuid.NewString(),
		Symbol:     book.Symbol,
		Outcome:    book.Outcome,
		BuyerID:    buyer,
		SellerID:   seller,
		Price:      price,
		Quantity:   qty,
		ExecutedAt: e.clock.Now().UnixMilli(),
	}
	if err := tx.batch.PutTrade(&trade); err != nil {
		return exchange.Internal("stage trade: " + err.Error())
	}

	if len(m.trades) == 0 {
		m.bestPrice = price
	}
	m.trades = append(m.trades, trade)
	m.lastMakerLeft = maker.Remaining
	m.notional += qty * price
	m.filledQuantity += qty
	return nil
}

// finishTaker rests any remainder, derives the result, and commits.
func (e *Engine) finishTaker(tx *txn, book *orderbook.Book, order *exchange.Order, m *matchState) (Result, error) {
	var result Result
	switch {
	case order.Remaining == 0:
		order.Status = exchange.OrderFilled
		result = Result{
			Status:  StatusFilled,
			Message: matchedMessage(order.Side, m.lastMakerLeft, m.bestPrice, order.Price),
			Trades:  m.trades,
		}
	case len(m.trades) == 0:
		order.Status = exchange.OrderOpen
		e.rest(tx, book, order)
		msg := buyPendingMessage
		if order.Side == exchange.Sell {
			msg = sellPendingMessage(order.Quantity, order.Outcome, order.Price)
		}
		result = Result{Status: StatusResting, Message: msg}
	default:
		order.Status = exchange.OrderPartiallyFilled
		e.rest(tx, book, order)
		result = Result{
			Status:  StatusPartiallyFilled,
			Message: matchedMessage(order.Side, order.Remaining, m.bestPrice, order.Price),
			Trades:  m.trades,
		}
	}

	if order.Status == exchange.OrderOpen || order.Status == exchange.OrderPartiallyFilled {
		if err := tx.batch.PutOrder(order); err != nil {
			return Result{}, exchange.Internal("stage order: " + err.Error())
		}
	}
	if err := tx.commit(); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (e *Engine) rest(tx *txn, book *orderbook.Book, order *exchange.Order) {
	if order.Side == exchange.Sell {
		book.AddAsk(order)
	} else {
		book.AddBid(order)
	}
	tx.add(func() { book.RemoveOrder(order) })
}

// afterOrder runs post-commit side effects: metrics, logs, trade feed
// and book broadcasts.
func (e *Engine) afterOrder(symbol string, order *exchange.Order, m *matchState) {
	if e.metrics != nil {
		e.metrics.RecordOrderPlaced()
		for _, t := range m.trades {
			e.metrics.RecordTrade(t.Quantity, t.Quantity*t.Price)
		}
	}
	e.log.Infow("order_processed",
		"user", order.UserID, "symbol", symbol, "outcome", order.Outcome,
		"side", order.Side.String(), "price", order.Price,
		"quantity", order.Quantity, "remaining", order.Remaining,
		"status", order.Status.String(), "fills", len(m.trades))

	if e.publisher != nil && len(m.trades) > 0 {
		if err := e.publisher.Publish(context.Background(), m.trades); err != nil {
			e.log.Warnw("trade_publish_failed", "err", err)
		}
	}
	if e.OnTrade != nil {
		for _, t := range m.trades {
			e.OnTrade(t)
		}
	}
	e.notifyBook(symbol)
}

func (e *Engine) notifyBook(symbol string) {
	if e.OnBook != nil {
		e.OnBook(symbol)
	}
}

func (e *Engine) reject(err error) (Result, error) {
	if e.metrics != nil {
		e.metrics.RecordOrderRejected()
	}
	return Result{Status: StatusRejected}, err
}

func (e *Engine) newOrder(userID, symbol string, outcome exchange.Outcome, side exchange.Side, price, qty int64) *exchange.Order {
	return &exchange.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Symbol:    symbol,
		Outcome:   outcome,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		Status:    exchange.OrderOpen,
		CreatedAt: e.clock.Now().UnixMilli(),
		Seq:       e.nextSeq(),
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
