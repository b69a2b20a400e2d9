package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

var nowFunc = func() time.Time { return time.Now().UTC() }

// Memory is an in-process store with the same semantics as Postgres. All
// mutations run under one mutex, which makes each movement and settlement a
// single atomic step. Values are copied in and out so callers never share
// state with the store.
type Memory struct {
	mu sync.Mutex

	accounts map[uuid.UUID]*domain.Account
	byEmail  map[string]uuid.UUID
	byMobile map[string]uuid.UUID

	txs    []*domain.Transaction
	txByID map[uuid.UUID]*domain.Transaction
	txKeys map[string]*domain.Transaction
	seq    int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[uuid.UUID]*domain.Account),
		byEmail:  make(map[string]uuid.UUID),
		byMobile: make(map[string]uuid.UUID),
		txByID:   make(map[uuid.UUID]*domain.Transaction),
		txKeys:   make(map[string]*domain.Transaction),
	}
}

func (m *Memory) CreateAccount(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.byEmail[a.Email]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.byMobile[a.Mobile]; ok {
		return ErrAlreadyExists
	}
	cp := *a
	m.accounts[a.ID] = &cp
	m.byEmail[a.Email] = a.ID
	m.byMobile[a.Mobile] = a.ID
	return nil
}

func (m *Memory) FindAccountByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyAccount(id)
}

func (m *Memory) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return m.copyAccount(id)
}

func (m *Memory) FindAccountByMobile(_ context.Context, mobile string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byMobile[mobile]
	if !ok {
		return nil, ErrNotFound
	}
	return m.copyAccount(id)
}

func (m *Memory) ListAccounts(_ context.Context) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateAccountStatus(_ context.Context, email string, status domain.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	m.accounts[id].Status = status
	return nil
}

func (m *Memory) UpdateAccountRole(_ context.Context, id uuid.UUID, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Role = role
	return nil
}

func (m *Memory) DeleteAccount(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byEmail, a.Email)
	delete(m.byMobile, a.Mobile)
	delete(m.accounts, id)
	return nil
}

func (m *Memory) LedgerMass(_ context.Context) (domain.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := domain.Zero
	for _, a := range m.accounts {
		total = total.Add(a.Balance)
	}
	return total, nil
}

func (m *Memory) ApplyMovement(_ context.Context, mv domain.Movement) (*domain.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := mv.Record
	if rec.IdempotencyKey != "" {
		if existing, ok := m.txKeys[rec.IdempotencyKey]; ok {
			if !sameRequest(existing, &rec) {
				return nil, false, ErrIdempotencyMismatch
			}
			cp := *existing
			return &cp, true, nil
		}
	}

	sender, ok := m.accounts[mv.SenderID]
	if !ok {
		return nil, false, ErrNotFound
	}
	receiver, ok := m.accounts[mv.ReceiverID]
	if !ok {
		return nil, false, ErrNotFound
	}
	if sender.Balance.LessThan(mv.Cover) {
		return nil, false, ErrInsufficientFunds
	}

	sender.Balance = sender.Balance.Sub(mv.Debit)
	receiver.Balance = receiver.Balance.Add(mv.Credit)

	m.seq++
	rec.Seq = m.seq
	stored := rec
	m.txs = append(m.txs, &stored)
	m.txByID[rec.ID] = &stored
	if rec.IdempotencyKey != "" {
		m.txKeys[rec.IdempotencyKey] = &stored
	}
	return &rec, false, nil
}

func (m *Memory) SettlePending(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.txByID[id]
	if !ok || rec.Status != domain.TxPending {
		return nil, ErrNotFound
	}
	sid, okSender := m.byEmail[rec.Sender]
	rid, okReceiver := m.byEmail[rec.Receiver]
	if !okSender || !okReceiver {
		return nil, ErrNotFound
	}
	credited, debited := m.accounts[sid], m.accounts[rid]
	if debited.Balance.LessThan(rec.Amount) {
		return nil, ErrInsufficientFunds
	}

	credited.Balance = credited.Balance.Add(rec.Amount)
	debited.Balance = debited.Balance.Sub(rec.Amount)
	now := nowFunc()
	rec.Status = domain.TxConfirm
	rec.ConfirmedAt = &now

	cp := *rec
	return &cp, nil
}

func (m *Memory) FindTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.txByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) FindTransactionByKey(_ context.Context, key string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.txKeys[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) ListTransactions(_ context.Context, status domain.TxStatus) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Transaction, 0, len(m.txs))
	for _, t := range m.txs {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *Memory) CountTransactions(_ context.Context, status domain.TxStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.txs {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *Memory) copyAccount(id uuid.UUID) (*domain.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}
