package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"serialization", &pgconn.PgError{Code: "40001"}, ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrConflict},
		{"duplicate key", &pgconn.PgError{Code: "23505", ConstraintName: idempotencyKeyConstraint}, ErrConflict},
		{"duplicate email", &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}, ErrAlreadyExists},
		{"negative balance", &pgconn.PgError{Code: "23514", ConstraintName: balanceCheckConstraint}, ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.in); !errors.Is(got, tt.want) {
				t.Fatalf("classify = %v, want %v", got, tt.want)
			}
		})
	}

	other := errors.New("boom")
	if got := classify(other); got != other {
		t.Fatalf("unknown errors must pass through, got %v", got)
	}
}

func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	if os.Getenv("RUN_PG_INTEGRATION") != "true" {
		t.Skip("set RUN_PG_INTEGRATION=true and DB_SOURCE to run")
	}
	dsn := os.Getenv("DB_SOURCE")
	if dsn == "" {
		t.Skip("DB_SOURCE not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pg, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pg.pool.Exec(ctx, "TRUNCATE ledger_entries, transactions, accounts"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(pg.Close)
	return pg
}

// ledgerEntries returns how many entries were posted and their net delta,
// restricted to one transaction when txID is set.
func ledgerEntries(t *testing.T, pg *Postgres, txID *uuid.UUID) (int, domain.Amount) {
	t.Helper()
	var (
		n   int
		raw string
	)
	err := pg.pool.QueryRow(context.Background(),
		`SELECT COUNT(*), COALESCE(SUM(delta), 0)::text FROM ledger_entries
		WHERE $1::uuid IS NULL OR transaction_id = $1`, txID).Scan(&n, &raw)
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("decode sum: %v", err)
	}
	return n, sum
}

func TestPostgresConcurrentMovements(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()

	a := newAccount("a@example.com", "01", domain.RoleUser, 100)
	b := newAccount("b@example.com", "02", domain.RoleUser, 0)
	for _, acc := range []*domain.Account{a, b} {
		if err := pg.CreateAccount(ctx, acc); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			for attempt := 0; attempt < 20; attempt++ {
				_, _, err = pg.ApplyMovement(ctx, movement(a, b, 30, 30, 30, domain.TxConfirm))
				if !errors.Is(err, ErrConflict) {
					break
				}
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 3 || rejected != 7 {
		t.Fatalf("ok=%d rejected=%d", ok, rejected)
	}
	mass, err := pg.LedgerMass(ctx)
	if err != nil || !mass.Equal(domain.NewAmount(100)) {
		t.Fatalf("mass = %s, %v", mass, err)
	}
	if n, sum := ledgerEntries(t, pg, nil); n != 6 || !sum.IsZero() {
		t.Fatalf("entries = %d summing to %s", n, sum)
	}
}

func TestPostgresEntriesFollowMovement(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()

	a := newAccount("a@example.com", "01", domain.RoleUser, 100)
	b := newAccount("b@example.com", "02", domain.RoleAgent, 0)
	for _, acc := range []*domain.Account{a, b} {
		if err := pg.CreateAccount(ctx, acc); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// The sender pays a fee that leaves the system, so the entries net to -5.
	rec, _, err := pg.ApplyMovement(ctx, movement(a, b, 55, 50, 55, domain.TxConfirm))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	n, sum := ledgerEntries(t, pg, &rec.ID)
	if n != 2 || !sum.Equal(domain.NewAmount(-5)) {
		t.Fatalf("entries = %d summing to %s", n, sum)
	}
}

func TestPostgresSettleOnce(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()

	a := newAccount("a@example.com", "01", domain.RoleUser, 100)
	b := newAccount("b@example.com", "02", domain.RoleUser, 100)
	for _, acc := range []*domain.Account{a, b} {
		if err := pg.CreateAccount(ctx, acc); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	mv := movement(a, b, 0, 0, 30, domain.TxPending)
	mv.Record.Amount = domain.NewAmount(30)
	rec, _, err := pg.ApplyMovement(ctx, mv)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		settled  int
		notFound int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pg.SettlePending(ctx, rec.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				settled++
			case errors.Is(err, ErrNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if settled != 1 || notFound != 4 {
		t.Fatalf("settled=%d notFound=%d", settled, notFound)
	}
	sa, _ := pg.FindAccountByID(ctx, a.ID)
	sb, _ := pg.FindAccountByID(ctx, b.ID)
	if !sa.Balance.Equal(domain.NewAmount(130)) || !sb.Balance.Equal(domain.NewAmount(70)) {
		t.Fatalf("balances = %s / %s", sa.Balance, sb.Balance)
	}
	if n, sum := ledgerEntries(t, pg, &rec.ID); n != 2 || !sum.IsZero() {
		t.Fatalf("entries = %d summing to %s", n, sum)
	}
}
