package monitor

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.RecordOrderPlaced()
	m.RecordOrderPlaced()
	m.RecordOrderCancelled()
	m.RecordOrderRejected()
	m.RecordTrade(50, 70000)
	m.RecordTrade(30, 36000)
	m.RecordMint(200)

	if got := testutil.ToFloat64(m.ordersPlaced); got != 2 {
		t.Errorf("orders placed: %v", got)
	}
	if got := testutil.ToFloat64(m.ordersCancelled); got != 1 {
		t.Errorf("orders cancelled: %v", got)
	}
	if got := testutil.ToFloat64(m.ordersRejected); got != 1 {
		t.Errorf("orders rejected: %v", got)
	}
	if got := testutil.ToFloat64(m.tradesTotal); got != 2 {
		t.Errorf("trades total: %v", got)
	}
	if got := testutil.ToFloat64(m.tradedVolume); got != 80 {
		t.Errorf("traded volume: %v", got)
	}
	if got := testutil.ToFloat64(m.tradedValue); got != 106000 {
		t.Errorf("traded value: %v", got)
	}
	if got := testutil.ToFloat64(m.mintedTokens); got != 200 {
		t.Errorf("minted tokens: %v", got)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RecordOrderPlaced()

	if got := testutil.ToFloat64(b.ordersPlaced); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.RecordTrade(1, 100)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape status %d", rec.Code)
	}
	if body := rec.Body.String(); body == "" {
		t.Error("empty scrape body")
	}
}
