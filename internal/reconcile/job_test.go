package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
	"github.com/Naiemjoy1/mfs-server/internal/store"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunPublishesGauges(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	for _, a := range []domain.Account{
		{ID: uuid.New(), Email: "u@example.com", Mobile: "01", Role: domain.RoleUser, Balance: domain.NewAmount(40)},
		{ID: uuid.New(), Email: "g@example.com", Mobile: "02", Role: domain.RoleAgent, Balance: domain.NewAmount(10000)},
	} {
		a := a
		if err := mem.CreateAccount(ctx, &a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	snap, err := NewJob(mem, discard()).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !snap.Mass.Equal(domain.NewAmount(10040)) || snap.Pending != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got := testutil.ToFloat64(ledgerMass); got != 10040 {
		t.Fatalf("ledger_mass = %v", got)
	}
	if got := testutil.ToFloat64(pendingTransactions); got != 0 {
		t.Fatalf("ledger_pending_transactions = %v", got)
	}
}

type failingSource struct {
	Source
}

func (failingSource) LedgerMass(context.Context) (domain.Amount, error) {
	return domain.Zero, errors.New("db down")
}

func TestRunPropagatesErrors(t *testing.T) {
	if _, err := NewJob(failingSource{}, discard()).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	if _, err := Schedule("not a schedule", NewJob(store.NewMemory(), discard()), discard()); err == nil {
		t.Fatal("expected parse error")
	}
	c, err := Schedule("@every 1h", NewJob(store.NewMemory(), discard()), discard())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	<-c.Stop().Done()
}
