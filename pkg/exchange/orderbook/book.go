// Package orderbook keeps the resting liquidity for one (symbol, outcome)
// pair: a public ask side (resting sells) and a private demand side
// (resting buys). Price levels are FIFO queues; heaps over the level
// prices give O(log n) best-price lookup.
//
// The book carries no lock of its own. The matching engine serializes all
// access, reads included, through its per-market lock table.
package orderbook

import (
	"container/heap"
	"sort"

	"github.com/probo-exchange/probo/pkg/exchange"
)

// LevelView is a read-only aggregation of one ask price level, in the
// shape the public book listing exposes.
type LevelView struct {
	Price  int64            `json:"price"`
	Total  int64            `json:"total"`
	ByUser map[string]int64 `json:"orders"` // userID -> remaining at this level
}

type Book struct {
	Symbol  string
	Outcome exchange.Outcome

	askHeap *MinPriceHeap
	asks    map[int64][]*exchange.Order // price -> FIFO queue

	bidHeap *MaxPriceHeap
	bids    map[int64][]*exchange.Order
}

func New(symbol string, outcome exchange.Outcome) *Book {
	askHeap := &MinPriceHeap{}
	bidHeap := &MaxPriceHeap{}
	heap.Init(askHeap)
	heap.Init(bidHeap)

	return &Book{
		Symbol:  symbol,
		Outcome: outcome,
		askHeap: askHeap,
		asks:    make(map[int64][]*exchange.Order),
		bidHeap: bidHeap,
		bids:    make(map[int64][]*exchange.Order),
	}
}

// BestAsk returns the lowest resting sell price.
func (b *Book) BestAsk() (int64, bool) {
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// BestBid returns the highest resting buy price.
func (b *Book) BestBid() (int64, bool) {
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

// AddAsk rests a sell order at its limit price, behind any orders already
// at that level.
func (b *Book) AddAsk(o *exchange.Order) {
	if len(b.asks[o.Price]) == 0 {
		heap.Push(b.askHeap, o.Price)
	}
	b.asks[o.Price] = append(b.asks[o.Price], o)
}

// AddBid parks a buy order as resting demand at its limit price.
func (b *Book) AddBid(o *exchange.Order) {
	if len(b.bids[o.Price]) == 0 {
		heap.Push(b.bidHeap, o.Price)
	}
	b.bids[o.Price] = append(b.bids[o.Price], o)
}

// FrontAsk returns the first-arrived order at a price level, nil if the
// level does not exist.
func (b *Book) FrontAsk(price int64) *exchange.Order {
	level := b.asks[price]
	if len(level) == 0 {
		return nil
	}
	return level[0]
}

// FrontBid mirrors FrontAsk for the demand side.
func (b *Book) FrontBid(price int64) *exchange.Order {
	level := b.bids[price]
	if len(level) == 0 {
		return nil
	}
	return level[0]
}

// RemoveFrontAsk drops the first order at a price level, deleting the
// level and its heap entry when it empties.
func (b *Book) RemoveFrontAsk(price int64) {
	level := b.asks[price]
	if len(level) == 0 {
		return
	}
	b.asks[price] = level[1:]
	if len(b.asks[price]) == 0 {
		delete(b.asks, price)
		removeFromMinHeap(b.askHeap, price)
	}
}

// RemoveFrontBid mirrors RemoveFrontAsk for the demand side.
func (b *Book) RemoveFrontBid(price int64) {
	level := b.bids[price]
	if len(level) == 0 {
		return
	}
	b.bids[price] = level[1:]
	if len(b.bids[price]) == 0 {
		delete(b.bids, price)
		removeFromMaxHeap(b.bidHeap, price)
	}
}

// FindOrder locates a resting order by owner, side, price and exact
// remaining quantity; that tuple is the cancellation key.
func (b *Book) FindOrder(userID string, side exchange.Side, price, remaining int64) *exchange.Order {
	levels := b.asks
	if side == exchange.Buy {
		levels = b.bids
	}
	for _, o := range levels[price] {
		if o.UserID == userID && o.Remaining == remaining {
			return o
		}
	}
	return nil
}

// RemoveOrder removes one specific resting order, deleting the level if
// it empties. Returns the order's position within its price level, or -1
// if the order is not on the book.
func (b *Book) RemoveOrder(o *exchange.Order) int {
	if o.Side == exchange.Sell {
		return b.remove(b.asks, o, func(p int64) { removeFromMinHeap(b.askHeap, p) })
	}
	return b.remove(b.bids, o, func(p int64) { removeFromMaxHeap(b.bidHeap, p) })
}

func (b *Book) remove(levels map[int64][]*exchange.Order, o *exchange.Order, dropLevel func(int64)) int {
	level := levels[o.Price]
	for i, rest := range level {
		if rest.ID == o.ID {
			levels[o.Price] = append(level[:i], level[i+1:]...)
			if len(levels[o.Price]) == 0 {
				delete(levels, o.Price)
				dropLevel(o.Price)
			}
			return i
		}
	}
	return -1
}

// InsertAt puts an order back at position i within its price level,
// recreating the level and its heap entry when it was dropped. Rollback
// path only: restores the exact slot RemoveOrder vacated.
func (b *Book) InsertAt(o *exchange.Order, i int) {
	if o.Side == exchange.Sell {
		b.insertAt(b.asks, b.askHeap, o, i)
	} else {
		b.insertAt(b.bids, b.bidHeap, o, i)
	}
}

func (b *Book) insertAt(levels map[int64][]*exchange.Order, h heap.Interface, o *exchange.Order, i int) {
	level := levels[o.Price]
	if len(level) == 0 {
		heap.Push(h, o.Price)
	}
	if i < 0 || i > len(level) {
		i = len(level)
	}
	level = append(level, nil)
	copy(level[i+1:], level[i:])
	level[i] = o
	levels[o.Price] = level
}

// ReinsertAskFront puts an order back at the head of its price level.
// Rollback path only: restores FIFO position after an aborted match.
func (b *Book) ReinsertAskFront(o *exchange.Order) {
	if len(b.asks[o.Price]) == 0 {
		heap.Push(b.askHeap, o.Price)
	}
	b.asks[o.Price] = append([]*exchange.Order{o}, b.asks[o.Price]...)
}

// ReinsertBidFront mirrors ReinsertAskFront for the demand side.
func (b *Book) ReinsertBidFront(o *exchange.Order) {
	if len(b.bids[o.Price]) == 0 {
		heap.Push(b.bidHeap, o.Price)
	}
	b.bids[o.Price] = append([]*exchange.Order{o}, b.bids[o.Price]...)
}

// AskLevels aggregates the public ask side, sorted by price ascending.
// Resting demand is deliberately absent: only sell liquidity is
// enumerable through the book listing.
func (b *Book) AskLevels() []LevelView {
	views := make([]LevelView, 0, len(b.asks))
	for price, level := range b.asks {
		if len(level) == 0 {
			continue
		}
		v := LevelView{Price: price, ByUser: make(map[string]int64)}
		for _, o := range level {
			v.Total += o.Remaining
			v.ByUser[o.UserID] += o.Remaining
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Price < views[j].Price })
	return views
}

// RestingOrders returns every order on both sides, for snapshot and
// restart bookkeeping.
func (b *Book) RestingOrders() []*exchange.Order {
	var out []*exchange.Order
	for _, level := range b.asks {
		out = append(out, level...)
	}
	for _, level := range b.bids {
		out = append(out, level...)
	}
	return out
}

func removeFromMinHeap(h *MinPriceHeap, price int64) {
	for i := 0; i < h.Len(); i++ {
		if (*h)[i] == price {
			heap.Remove(h, i)
			return
		}
	}
}

func removeFromMaxHeap(h *MaxPriceHeap, price int64) {
	for i := 0; i < h.Len(); i++ {
		if (*h)[i] == price {
			heap.Remove(h, i)
			return
		}
	}
}
