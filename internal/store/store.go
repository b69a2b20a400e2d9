package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrAlreadyExists       = errors.New("record already exists")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different payload")

	// ErrConflict marks a mutation that lost a race with a concurrent
	// writer. Callers may retry it.
	ErrConflict = errors.New("concurrent update conflict")
)

const (
	idempotencyKeyConstraint = "transactions_idempotency_key_key"
	balanceCheckConstraint   = "accounts_balance_non_negative"
)

// sameRequest reports whether a record stored under an idempotency key was
// written by the same operation, sender and body as rec.
func sameRequest(stored, rec *domain.Transaction) bool {
	return stored.Type == rec.Type && stored.Sender == rec.Sender && stored.RequestHash == rec.RequestHash
}

// classify translates driver errors into the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "23505":
			if pgErr.ConstraintName == idempotencyKeyConstraint {
				// Another request holding the same key committed first;
				// a retry will find it and replay.
				return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
			}
			return ErrAlreadyExists
		case "23514":
			if pgErr.ConstraintName == balanceCheckConstraint {
				return ErrInsufficientFunds
			}
		}
	}
	return err
}
