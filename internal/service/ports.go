package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

// AccountStore is the account half of the storage layer.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *domain.Account) error
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	UpdateAccountStatus(ctx context.Context, email string, status domain.AccountStatus) error
	UpdateAccountRole(ctx context.Context, id uuid.UUID, role domain.Role) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	LedgerMass(ctx context.Context) (domain.Amount, error)
}

// TransactionLog is the append-only log together with the atomic mutation
// primitives that write to it.
type TransactionLog interface {
	// ApplyMovement debits and credits both accounts and appends the record
	// as one unit. The bool is true when the record was an idempotent replay.
	ApplyMovement(ctx context.Context, mv domain.Movement) (*domain.Transaction, bool, error)
	// SettlePending flips a pending record to confirm and applies its
	// deferred balance effect, at most once per id.
	SettlePending(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindTransactionByKey(ctx context.Context, key string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, status domain.TxStatus) ([]domain.Transaction, error)
	CountTransactions(ctx context.Context, status domain.TxStatus) (int64, error)
}

// Ledger is satisfied by store.Postgres and store.Memory.
type Ledger interface {
	AccountStore
	TransactionLog
}

// CredentialVerifier compares a presented PIN against a stored hash.
type CredentialVerifier interface {
	Verify(hash, pin string) bool
}

// PINHasher hashes new PINs and verifies presented ones.
type PINHasher interface {
	CredentialVerifier
	Hash(pin string) (string, error)
}

// TokenIssuer issues session tokens for a logged-in account.
type TokenIssuer interface {
	Generate(a domain.Account) (string, error)
}

// AttemptLimiter counts failed attempts per subject inside a window.
type AttemptLimiter interface {
	// Attempts reports the failures recorded in the current window without
	// adding one.
	Attempts(ctx context.Context, scope, subject string) (count int, retryAfterSeconds int, err error)
	// Consume records one failure and returns the updated count.
	Consume(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
	// Reset forgets every failure recorded for subject.
	Reset(ctx context.Context, scope, subject string) error
}
