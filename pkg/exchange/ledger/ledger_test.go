package ledger

import (
	"errors"
	"testing"

	"github.com/probo-exchange/probo/pkg/exchange"
)

func newFundedLedger(t *testing.T, userID string, amount int64) *Ledger {
	t.Helper()
	l := New()
	if err := l.CreateUser(userID); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if amount > 0 {
		if _, _, err := l.Deposit(userID, amount); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	return l
}

func TestCreateUserDuplicate(t *testing.T) {
	l := newFundedLedger(t, "alice", 0)
	if err := l.CreateUser("alice"); !errors.Is(err, exchange.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestDepositAccumulates(t *testing.T) {
	l := newFundedLedger(t, "alice", 1000)
	newBal, _, err := l.Deposit("alice", 500)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if newBal != 1500 {
		t.Errorf("expected balance 1500, got %d", newBal)
	}
}

func TestReserveCurrencyMovesToLocked(t *testing.T) {
	l := newFundedLedger(t, "alice", 1000)
	if _, err := l.ReserveCurrency("alice", 600); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	bal, _ := l.CurrencyBalance("alice")
	if bal.Available != 400 || bal.Locked != 600 {
		t.Errorf("expected 400/600, got %d/%d", bal.Available, bal.Locked)
	}
}

func TestReserveCurrencyInsufficient(t *testing.T) {
	l := newFundedLedger(t, "alice", 100)
	if _, err := l.ReserveCurrency("alice", 101); !errors.Is(err, exchange.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// A failed reserve must leave the account untouched.
	bal, _ := l.CurrencyBalance("alice")
	if bal.Available != 100 || bal.Locked != 0 {
		t.Errorf("balance mutated by failed reserve: %+v", bal)
	}
}

func TestReserveUndoRestores(t *testing.T) {
	l := newFundedLedger(t, "alice", 1000)
	undo, err := l.ReserveCurrency("alice", 700)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	undo()
	bal, _ := l.CurrencyBalance("alice")
	if bal.Available != 1000 || bal.Locked != 0 {
		t.Errorf("undo did not restore: %+v", bal)
	}
}

func TestSettleCurrency(t *testing.T) {
	l := newFundedLedger(t, "buyer", 1000)
	if err := l.CreateUser("seller"); err != nil {
		t.Fatalf("create seller: %v", err)
	}
	if _, err := l.ReserveCurrency("buyer", 800); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := l.SettleCurrency("buyer", "seller", 800); err != nil {
		t.Fatalf("settle: %v", err)
	}

	buyer, _ := l.CurrencyBalance("buyer")
	seller, _ := l.CurrencyBalance("seller")
	if buyer.Locked != 0 || buyer.Available != 200 {
		t.Errorf("buyer after settle: %+v", buyer)
	}
	if seller.Available != 800 || seller.Locked != 0 {
		t.Errorf("seller after settle: %+v", seller)
	}
}

func TestMintPairsAndDebit(t *testing.T) {
	l := newFundedLedger(t, "alice", 500000)

	remaining, _, err := l.Mint("alice", "ETH_2024", 200, 1500)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if remaining != 200000 {
		t.Errorf("expected remaining 200000, got %d", remaining)
	}

	yes := l.TokenBalance("alice", "ETH_2024", exchange.Yes)
	no := l.TokenBalance("alice", "ETH_2024", exchange.No)
	if yes.Available != 200 || no.Available != 200 {
		t.Errorf("expected 200 of each outcome, got yes=%d no=%d", yes.Available, no.Available)
	}
	if supply := l.TokenSupply("ETH_2024", exchange.Yes); supply != l.TokenSupply("ETH_2024", exchange.No) {
		t.Errorf("outcome supplies diverged: yes=%d", supply)
	}
}

func TestMintInsufficientFunds(t *testing.T) {
	l := newFundedLedger(t, "alice", 100)
	if _, _, err := l.Mint("alice", "ETH_2024", 200, 1500); !errors.Is(err, exchange.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if bal := l.TokenBalance("alice", "ETH_2024", exchange.Yes); bal.Available != 0 {
		t.Errorf("tokens minted despite failure: %+v", bal)
	}
}

func TestMintOverflowingCost(t *testing.T) {
	l := newFundedLedger(t, "alice", 100)
	// qty*cost wraps int64; the funds check must still fail closed.
	if _, _, err := l.Mint("alice", "ETH_2024", 1<<32, 1<<32); !errors.Is(err, exchange.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	bal, _ := l.CurrencyBalance("alice")
	if bal.Available != 100 {
		t.Errorf("currency touched by rejected mint: %+v", bal)
	}
	if tok := l.TokenBalance("alice", "ETH_2024", exchange.Yes); tok.Available != 0 {
		t.Errorf("tokens minted despite overflow: %+v", tok)
	}
}

func TestMintUndo(t *testing.T) {
	l := newFundedLedger(t, "alice", 500000)
	_, undo, err := l.Mint("alice", "ETH_2024", 200, 1500)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	undo()

	bal, _ := l.CurrencyBalance("alice")
	if bal.Available != 500000 {
		t.Errorf("currency not restored: %+v", bal)
	}
	if tok := l.TokenBalance("alice", "ETH_2024", exchange.Yes); tok.Available != 0 {
		t.Errorf("tokens not reversed: %+v", tok)
	}
}

func TestTokenReserveSettleFlow(t *testing.T) {
	l := newFundedLedger(t, "seller", 500000)
	if err := l.CreateUser("buyer"); err != nil {
		t.Fatalf("create buyer: %v", err)
	}
	if _, _, err := l.Mint("seller", "ETH_2024", 100, 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := l.ReserveTokens("seller", "ETH_2024", exchange.Yes, 60); err != nil {
		t.Fatalf("reserve tokens: %v", err)
	}
	if _, err := l.SettleTokens("seller", "buyer", "ETH_2024", exchange.Yes, 60); err != nil {
		t.Fatalf("settle tokens: %v", err)
	}

	sellerTok := l.TokenBalance("seller", "ETH_2024", exchange.Yes)
	buyerTok := l.TokenBalance("buyer", "ETH_2024", exchange.Yes)
	if sellerTok.Available != 40 || sellerTok.Locked != 0 {
		t.Errorf("seller tokens after settle: %+v", sellerTok)
	}
	if buyerTok.Available != 60 {
		t.Errorf("buyer tokens after settle: %+v", buyerTok)
	}

	// Transfer conserves supply.
	if supply := l.TokenSupply("ETH_2024", exchange.Yes); supply != 100 {
		t.Errorf("supply changed by transfer: %d", supply)
	}
}

func TestReserveTokensInsufficient(t *testing.T) {
	l := newFundedLedger(t, "seller", 500000)
	if _, _, err := l.Mint("seller", "ETH_2024", 100, 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := l.ReserveTokens("seller", "ETH_2024", exchange.Yes, 101); !errors.Is(err, exchange.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestReleaseCurrencyZeroNoop(t *testing.T) {
	l := newFundedLedger(t, "alice", 1000)
	if _, err := l.ReserveCurrency("alice", 500); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := l.ReleaseCurrency("alice", 0); err != nil {
		t.Fatalf("zero release should be a no-op, got %v", err)
	}
	bal, _ := l.CurrencyBalance("alice")
	if bal.Available != 500 || bal.Locked != 500 {
		t.Errorf("zero release mutated account: %+v", bal)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	l := newFundedLedger(t, "alice", 1000)
	snap := l.CurrencySnapshot()
	snap["alice"] = exchange.Balance{Available: 0}

	bal, _ := l.CurrencyBalance("alice")
	if bal.Available != 1000 {
		t.Errorf("snapshot aliased internal state: %+v", bal)
	}
}
