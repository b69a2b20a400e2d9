package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
	"github.com/Naiemjoy1/mfs-server/internal/events"
	"github.com/Naiemjoy1/mfs-server/internal/store"
)

const testPIN = "12345"

// plainPINs stands in for bcrypt: a hash is "hashed:" followed by the PIN.
type plainPINs struct{}

func (plainPINs) Hash(pin string) (string, error) { return "hashed:" + pin, nil }
func (plainPINs) Verify(hash, pin string) bool   { return hash == "hashed:"+pin }

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]events.TransactionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, key string, ev events.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]events.TransactionEvent)
	}
	p.events[key] = append(p.events[key], ev)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[key])
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	t      *testing.T
	mem    *store.Memory
	engine *Engine
	pub    *recordingPublisher
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	return &fixture{
		t:      t,
		mem:    mem,
		engine: NewEngine(mem, plainPINs{}, pub, discardLogger(), opts),
		pub:    pub,
	}
}

func (f *fixture) account(role domain.Role, name string, balance string) domain.Account {
	f.t.Helper()
	a := domain.Account{
		ID:        uuid.New(),
		Name:      name,
		Email:     strings.ToLower(name) + "@example.com",
		Mobile:    "017" + uuid.NewString()[:8],
		PINHash:   "hashed:" + testPIN,
		Role:      role,
		Balance:   domain.MustAmount(balance),
		Status:    domain.AccountActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.mem.CreateAccount(context.Background(), &a); err != nil {
		f.t.Fatalf("create account %s: %v", name, err)
	}
	return a
}

func (f *fixture) balance(a domain.Account) domain.Amount {
	f.t.Helper()
	got, err := f.mem.FindAccountByID(context.Background(), a.ID)
	if err != nil {
		f.t.Fatalf("find %s: %v", a.Email, err)
	}
	return got.Balance
}

func (f *fixture) mass() domain.Amount {
	f.t.Helper()
	m, err := f.mem.LedgerMass(context.Background())
	if err != nil {
		f.t.Fatalf("ledger mass: %v", err)
	}
	return m
}

func (f *fixture) assertBalance(a domain.Account, want string) {
	f.t.Helper()
	if got := f.balance(a); !got.Equal(domain.MustAmount(want)) {
		f.t.Fatalf("balance of %s = %s, want %s", a.Email, got, want)
	}
}

func identity(a domain.Account) domain.Identity {
	return domain.Identity{AccountID: a.ID.String(), Email: a.Email}
}

func transfer(to domain.Account, amount string) TransferRequest {
	return TransferRequest{ReceiverIdentifier: to.Email, Amount: amount, PIN: testPIN}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("kind = %s (%v), want %s", got, err, want)
	}
}

// flakyLedger fails ApplyMovement with a conflict a fixed number of times.
type flakyLedger struct {
	*store.Memory
	mu        sync.Mutex
	conflicts int
	calls     int
	failWith  error
}

func (l *flakyLedger) ApplyMovement(ctx context.Context, mv domain.Movement) (*domain.Transaction, bool, error) {
	l.mu.Lock()
	l.calls++
	if l.failWith != nil {
		l.mu.Unlock()
		return nil, false, l.failWith
	}
	if l.conflicts > 0 {
		l.conflicts--
		l.mu.Unlock()
		return nil, false, errors.Join(store.ErrConflict, errors.New("could not serialize access"))
	}
	l.mu.Unlock()
	return l.Memory.ApplyMovement(ctx, mv)
}
