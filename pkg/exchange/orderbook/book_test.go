package orderbook

import (
	"testing"

	"github.com/probo-exchange/probo/pkg/exchange"
)

var nextSeq uint64

func ask(user string, price, qty int64) *exchange.Order {
	nextSeq++
	return &exchange.Order{
		ID:        user + "-ask",
		UserID:    user,
		Side:      exchange.Sell,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		Seq:       nextSeq,
	}
}

func bid(user string, price, qty int64) *exchange.Order {
	nextSeq++
	return &exchange.Order{
		ID:        user + "-bid",
		UserID:    user,
		Side:      exchange.Buy,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		Seq:       nextSeq,
	}
}

func TestBestAskEmptyBook(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	if _, ok := b.BestAsk(); ok {
		t.Error("empty book reported a best ask")
	}
	if _, ok := b.BestBid(); ok {
		t.Error("empty book reported a best bid")
	}
}

func TestBestAskIsLowest(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	b.AddAsk(ask("u1", 1500, 100))
	b.AddAsk(ask("u2", 1400, 100))
	b.AddAsk(ask("u3", 1600, 100))

	price, ok := b.BestAsk()
	if !ok || price != 1400 {
		t.Errorf("expected best ask 1400, got %d (ok=%v)", price, ok)
	}
}

func TestBestBidIsHighest(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	b.AddBid(bid("u1", 1300, 100))
	b.AddBid(bid("u2", 1500, 100))

	price, ok := b.BestBid()
	if !ok || price != 1500 {
		t.Errorf("expected best bid 1500, got %d (ok=%v)", price, ok)
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	first := ask("first", 1400, 50)
	second := ask("second", 1400, 50)
	b.AddAsk(first)
	b.AddAsk(second)

	if front := b.FrontAsk(1400); front != first {
		t.Errorf("expected first-arrived order at front, got %s", front.UserID)
	}
	b.RemoveFrontAsk(1400)
	if front := b.FrontAsk(1400); front != second {
		t.Errorf("expected second order after pop, got %s", front.UserID)
	}
}

func TestRemoveFrontDropsEmptyLevel(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	b.AddAsk(ask("u1", 1400, 50))
	b.AddAsk(ask("u2", 1500, 50))

	b.RemoveFrontAsk(1400)
	price, ok := b.BestAsk()
	if !ok || price != 1500 {
		t.Errorf("expected best ask to advance to 1500, got %d (ok=%v)", price, ok)
	}
	if b.FrontAsk(1400) != nil {
		t.Error("removed level still has a front order")
	}
}

func TestFindOrderMatchesExactKey(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	o := ask("u1", 1400, 100)
	b.AddAsk(o)

	if got := b.FindOrder("u1", exchange.Sell, 1400, 100); got != o {
		t.Error("exact key did not locate the order")
	}
	if got := b.FindOrder("u1", exchange.Sell, 1400, 50); got != nil {
		t.Error("wrong remaining quantity located an order")
	}
	if got := b.FindOrder("u2", exchange.Sell, 1400, 100); got != nil {
		t.Error("wrong owner located an order")
	}
	if got := b.FindOrder("u1", exchange.Buy, 1400, 100); got != nil {
		t.Error("sell order visible on the demand side")
	}
}

func TestRemoveOrderMidLevel(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	first := ask("u1", 1400, 50)
	second := ask("u2", 1400, 60)
	third := ask("u3", 1400, 70)
	b.AddAsk(first)
	b.AddAsk(second)
	b.AddAsk(third)

	if slot := b.RemoveOrder(second); slot != 1 {
		t.Fatalf("expected removal from slot 1, got %d", slot)
	}
	if slot := b.RemoveOrder(second); slot != -1 {
		t.Errorf("double remove reported slot %d", slot)
	}
	// FIFO of the survivors is intact.
	if b.FrontAsk(1400) != first {
		t.Error("head changed after mid-level removal")
	}
	b.RemoveFrontAsk(1400)
	if b.FrontAsk(1400) != third {
		t.Error("tail order lost after mid-level removal")
	}
}

func TestInsertAtRestoresExactSlot(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	first := ask("u1", 1400, 50)
	second := ask("u2", 1400, 60)
	third := ask("u3", 1400, 70)
	b.AddAsk(first)
	b.AddAsk(second)
	b.AddAsk(third)

	slot := b.RemoveOrder(second)
	b.InsertAt(second, slot)

	// The level reads head to tail in the original arrival order.
	for _, want := range []*exchange.Order{first, second, third} {
		if got := b.FrontAsk(1400); got != want {
			t.Fatalf("expected %s at front, got %s", want.UserID, got.UserID)
		}
		b.RemoveFrontAsk(1400)
	}
}

func TestInsertAtRecreatesDroppedLevel(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	o := bid("u1", 1300, 40)
	b.AddBid(o)

	slot := b.RemoveOrder(o) // level emptied, heap entry dropped
	b.InsertAt(o, slot)

	price, ok := b.BestBid()
	if !ok || price != 1300 {
		t.Errorf("heap entry not restored: %d (ok=%v)", price, ok)
	}
	if b.FrontBid(1300) != o {
		t.Error("order not back at its level")
	}
}

func TestReinsertFrontRestoresPriority(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	first := ask("u1", 1400, 50)
	second := ask("u2", 1400, 50)
	b.AddAsk(first)
	b.AddAsk(second)

	b.RemoveFrontAsk(1400)
	b.ReinsertAskFront(first)

	if b.FrontAsk(1400) != first {
		t.Error("reinserted order is not at the front")
	}
}

func TestReinsertRestoresHeapEntry(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	o := ask("u1", 1400, 50)
	b.AddAsk(o)
	b.RemoveFrontAsk(1400) // level emptied, heap entry dropped

	b.ReinsertAskFront(o)
	price, ok := b.BestAsk()
	if !ok || price != 1400 {
		t.Errorf("heap entry not restored: %d (ok=%v)", price, ok)
	}
}

func TestAskLevelsAggregation(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	b.AddAsk(ask("u1", 1500, 100))
	b.AddAsk(ask("u2", 1400, 30))
	partial := ask("u1", 1400, 100)
	partial.Remaining = 70
	b.AddAsk(partial)
	b.AddBid(bid("u3", 1300, 500)) // demand must stay invisible

	levels := b.AskLevels()
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if levels[0].Price != 1400 || levels[1].Price != 1500 {
		t.Errorf("levels not ascending: %+v", levels)
	}
	if levels[0].Total != 100 {
		t.Errorf("level total should sum remaining, got %d", levels[0].Total)
	}
	if levels[0].ByUser["u2"] != 30 || levels[0].ByUser["u1"] != 70 {
		t.Errorf("per-user breakdown wrong: %+v", levels[0].ByUser)
	}
}

func TestRestingOrdersCoversBothSides(t *testing.T) {
	b := New("ETH_2024", exchange.Yes)
	b.AddAsk(ask("u1", 1400, 50))
	b.AddBid(bid("u2", 1300, 60))

	if got := len(b.RestingOrders()); got != 2 {
		t.Errorf("expected 2 resting orders, got %d", got)
	}
}
