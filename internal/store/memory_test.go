package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

func newAccount(email, mobile string, role domain.Role, balance int64) *domain.Account {
	return &domain.Account{
		ID:        uuid.New(),
		Email:     email,
		Mobile:    mobile,
		PINHash:   "x",
		Role:      role,
		Balance:   domain.NewAmount(balance),
		Status:    domain.AccountActive,
		CreatedAt: time.Now().UTC(),
	}
}

func movement(from, to *domain.Account, debit, credit, cover int64, status domain.TxStatus) domain.Movement {
	return domain.Movement{
		SenderID:   from.ID,
		ReceiverID: to.ID,
		Debit:      domain.NewAmount(debit),
		Credit:     domain.NewAmount(credit),
		Cover:      domain.NewAmount(cover),
		Record: domain.Transaction{
			ID:        uuid.New(),
			Type:      domain.OpSendMoney,
			Sender:    from.Email,
			Receiver:  to.Email,
			Amount:    domain.NewAmount(credit),
			Fee:       domain.NewAmount(debit - credit),
			Status:    status,
			Timestamp: time.Now().UTC(),
		},
	}
}

func TestMemoryUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := newAccount("a@example.com", "01", domain.RoleUser, 40)
	if err := m.CreateAccount(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateAccount(ctx, newAccount("a@example.com", "02", domain.RoleUser, 40)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate email: %v", err)
	}
	if err := m.CreateAccount(ctx, newAccount("b@example.com", "01", domain.RoleUser, 40)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate mobile: %v", err)
	}

	got, err := m.FindAccountByMobile(ctx, "01")
	if err != nil || got.ID != a.ID {
		t.Fatalf("find by mobile: %v %v", got, err)
	}
	// Returned values are copies.
	got.Balance = domain.NewAmount(1_000_000)
	again, _ := m.FindAccountByID(ctx, a.ID)
	if !again.Balance.Equal(domain.NewAmount(40)) {
		t.Fatal("store state leaked through returned pointer")
	}
}

func TestMemoryApplyMovement(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := newAccount("a@example.com", "01", domain.RoleUser, 200)
	b := newAccount("b@example.com", "02", domain.RoleUser, 0)
	_ = m.CreateAccount(ctx, a)
	_ = m.CreateAccount(ctx, b)

	rec, replayed, err := m.ApplyMovement(ctx, movement(a, b, 155, 150, 155, domain.TxConfirm))
	if err != nil || replayed {
		t.Fatalf("apply: %v replayed=%v", err, replayed)
	}
	if rec.Seq != 1 {
		t.Fatalf("seq = %d", rec.Seq)
	}

	if _, _, err := m.ApplyMovement(ctx, movement(a, b, 50, 50, 50, domain.TxConfirm)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	mass, _ := m.LedgerMass(ctx)
	if !mass.Equal(domain.NewAmount(195)) {
		t.Fatalf("mass = %s", mass)
	}
}

func TestMemoryIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := newAccount("a@example.com", "01", domain.RoleUser, 100)
	b := newAccount("b@example.com", "02", domain.RoleUser, 0)
	_ = m.CreateAccount(ctx, a)
	_ = m.CreateAccount(ctx, b)

	mv := movement(a, b, 10, 10, 10, domain.TxConfirm)
	mv.Record.IdempotencyKey, mv.Record.RequestHash = "k", "h"
	first, _, err := m.ApplyMovement(ctx, mv)
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	retry := mv
	retry.Record.ID = uuid.New()
	second, replayed, err := m.ApplyMovement(ctx, retry)
	if err != nil || !replayed || second.ID != first.ID {
		t.Fatalf("replay: %v replayed=%v id=%v", err, replayed, second)
	}

	mismatches := map[string]func(*domain.Movement){
		"body":      func(mv *domain.Movement) { mv.Record.RequestHash = "other" },
		"operation": func(mv *domain.Movement) { mv.Record.Type = domain.OpCashOut },
		"sender": func(mv *domain.Movement) {
			mv.SenderID, mv.ReceiverID = b.ID, a.ID
			mv.Record.Sender, mv.Record.Receiver = b.Email, a.Email
		},
	}
	for name, mutate := range mismatches {
		other := retry
		mutate(&other)
		if _, _, err := m.ApplyMovement(ctx, other); !errors.Is(err, ErrIdempotencyMismatch) {
			t.Fatalf("%s: expected mismatch, got %v", name, err)
		}
	}

	byKey, err := m.FindTransactionByKey(ctx, "k")
	if err != nil || byKey.ID != first.ID {
		t.Fatalf("find by key: %v %v", byKey, err)
	}
	if acc, _ := m.FindAccountByID(ctx, a.ID); !acc.Balance.Equal(domain.NewAmount(90)) {
		t.Fatalf("balance = %s, want 90", acc.Balance)
	}
}

func TestMemorySettlePending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := newAccount("a@example.com", "01", domain.RoleUser, 100)
	b := newAccount("b@example.com", "02", domain.RoleUser, 100)
	_ = m.CreateAccount(ctx, a)
	_ = m.CreateAccount(ctx, b)

	mv := movement(a, b, 0, 0, 30, domain.TxPending)
	mv.Record.Amount = domain.NewAmount(30)
	rec, _, err := m.ApplyMovement(ctx, mv)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	n, _ := m.CountTransactions(ctx, domain.TxPending)
	if n != 1 {
		t.Fatalf("pending = %d", n)
	}

	settled, err := m.SettlePending(ctx, rec.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != domain.TxConfirm || settled.ConfirmedAt == nil {
		t.Fatalf("settled = %+v", settled)
	}
	if _, err := m.SettlePending(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second settle: %v", err)
	}

	sa, _ := m.FindAccountByID(ctx, a.ID)
	sb, _ := m.FindAccountByID(ctx, b.ID)
	if !sa.Balance.Equal(domain.NewAmount(130)) || !sb.Balance.Equal(domain.NewAmount(70)) {
		t.Fatalf("balances = %s / %s", sa.Balance, sb.Balance)
	}

	confirmed, _ := m.ListTransactions(ctx, domain.TxConfirm)
	if len(confirmed) != 1 {
		t.Fatalf("confirmed = %d", len(confirmed))
	}
}

func TestMemoryAccountAdmin(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := newAccount("a@example.com", "01", domain.RoleUser, 40)
	_ = m.CreateAccount(ctx, a)

	if err := m.UpdateAccountStatus(ctx, "a@example.com", domain.AccountBlocked); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := m.UpdateAccountRole(ctx, a.ID, domain.RoleAgent); err != nil {
		t.Fatalf("role: %v", err)
	}
	got, _ := m.FindAccountByEmail(ctx, "a@example.com")
	if got.Status != domain.AccountBlocked || got.Role != domain.RoleAgent {
		t.Fatalf("got %+v", got)
	}

	if err := m.DeleteAccount(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.FindAccountByEmail(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := m.UpdateAccountRole(ctx, a.ID, domain.RoleUser); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
