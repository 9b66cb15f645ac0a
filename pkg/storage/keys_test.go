package storage

import (
	"bytes"
	"testing"

	"github.com/probo-exchange/probo/pkg/exchange"
)

func TestTokenKeyRoundTrip(t *testing.T) {
	key := tokenKey("user1", "ETH_USD_15_Oct_2024_12_00", exchange.Yes)
	user, symbol, outcome, err := parseTokenKey(key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if user != "user1" || symbol != "ETH_USD_15_Oct_2024_12_00" || outcome != exchange.Yes {
		t.Errorf("round trip lost fields: %s %s %s", user, symbol, outcome)
	}
}

func TestParseTokenKeyMalformed(t *testing.T) {
	for _, key := range []string{"tok:user1", "tok:user1:sym:maybe", "tok:a:b:c:d"} {
		if _, _, _, err := parseTokenKey([]byte(key)); err == nil {
			t.Errorf("expected error for %q", key)
		}
	}
}

func TestOrderKeyOrdering(t *testing.T) {
	early := orderKey(&exchange.Order{Symbol: "S", Outcome: exchange.Yes, Seq: 9, ID: "a"})
	late := orderKey(&exchange.Order{Symbol: "S", Outcome: exchange.Yes, Seq: 10, ID: "b"})
	// Zero padding keeps lexicographic order aligned with arrival order.
	if bytes.Compare(early, late) >= 0 {
		t.Errorf("seq 9 key not before seq 10 key: %s vs %s", early, late)
	}
}

func TestBalanceKeyRoundTrip(t *testing.T) {
	if got := userFromBalanceKey(balanceKey("alice")); got != "alice" {
		t.Errorf("expected alice, got %s", got)
	}
}

func TestKeyUpperBoundCoversPrefix(t *testing.T) {
	prefix := []byte("ord:")
	upper := keyUpperBound(prefix)
	member := []byte("ord:zzz")
	if !(bytes.Compare(prefix, member) <= 0 && bytes.Compare(member, upper) < 0) {
		t.Errorf("member %q outside [%q, %q)", member, prefix, upper)
	}
	if bytes.HasPrefix(upper, prefix) {
		t.Errorf("upper bound %q still inside prefix", upper)
	}
}
