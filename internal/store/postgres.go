package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

// Postgres is the pgx-backed account store and transaction log.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool against connString and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	config.MaxConns = 20
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the schema if it does not exist yet.
func (s *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE,
			mobile TEXT NOT NULL UNIQUE,
			pin_hash TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'agent', 'admin')),
			balance NUMERIC NOT NULL DEFAULT 0 CONSTRAINT accounts_balance_non_negative CHECK (balance >= 0),
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'active', 'blocked')),
			profile_image TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			seq BIGSERIAL UNIQUE,
			type TEXT NOT NULL,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL,
			amount NUMERIC NOT NULL CHECK (amount > 0),
			fee NUMERIC NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK (status IN ('pending', 'confirm')),
			idempotency_key TEXT UNIQUE,
			request_hash TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			confirmed_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS transactions_status_idx ON transactions (status);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			transaction_id UUID NOT NULL REFERENCES transactions(id),
			account_id UUID NOT NULL,
			delta NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_account_idx ON ledger_entries (account_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

const accountColumns = `id, name, email, mobile, pin_hash, role, balance::text, status, profile_image, created_at`

const transactionColumns = `id, seq, type, sender, receiver, amount::text, fee::text, status, created_at, confirmed_at,
	COALESCE(idempotency_key, ''), COALESCE(request_hash, '')`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var role, status, balance string
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Mobile, &a.PINHash, &role, &balance, &status, &a.ProfileImage, &a.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	a.Role = domain.Role(role)
	a.Status = domain.AccountStatus(status)
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("decode balance of %s: %w", a.ID, err)
	}
	return &a, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var typ, status, amount, fee string
	err := row.Scan(&t.ID, &t.Seq, &typ, &t.Sender, &t.Receiver, &amount, &fee, &status,
		&t.Timestamp, &t.ConfirmedAt, &t.IdempotencyKey, &t.RequestHash)
	if err != nil {
		return nil, classify(err)
	}
	t.Type = domain.Operation(typ)
	t.Status = domain.TxStatus(status)
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("decode amount of %s: %w", t.ID, err)
	}
	if t.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("decode fee of %s: %w", t.ID, err)
	}
	return &t, nil
}

// CreateAccount inserts a new account row.
func (s *Postgres) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, email, mobile, pin_hash, role, balance, status, profile_image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)`,
		a.ID, a.Name, a.Email, a.Mobile, a.PINHash, string(a.Role), a.Balance.String(), string(a.Status), a.ProfileImage, a.CreatedAt,
	)
	return classify(err)
}

func (s *Postgres) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
}

func (s *Postgres) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = $1", email))
}

func (s *Postgres) FindAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE mobile = $1", mobile))
}

// ListAccounts returns every account, oldest first.
func (s *Postgres) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateAccountStatus(ctx context.Context, email string, status domain.AccountStatus) error {
	tag, err := s.pool.Exec(ctx, "UPDATE accounts SET status = $1 WHERE email = $2", string(status), email)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UpdateAccountRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	tag, err := s.pool.Exec(ctx, "UPDATE accounts SET role = $1 WHERE id = $2", string(role), id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CopyAccounts bulk-inserts accounts with COPY. The whole batch fails if
// any email or mobile is already taken.
func (s *Postgres) CopyAccounts(ctx context.Context, accounts []domain.Account) (int64, error) {
	rows := make([][]interface{}, 0, len(accounts))
	for _, a := range accounts {
		// COPY uses the binary protocol, so the balance goes through pgtype.
		var balance pgtype.Numeric
		if err := balance.Scan(a.Balance.String()); err != nil {
			return 0, fmt.Errorf("encode balance of %s: %w", a.Email, err)
		}
		rows = append(rows, []interface{}{
			a.ID, a.Name, a.Email, a.Mobile, a.PINHash, string(a.Role), balance, string(a.Status), a.ProfileImage, a.CreatedAt,
		})
	}
	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"accounts"},
		[]string{"id", "name", "email", "mobile", "pin_hash", "role", "balance", "status", "profile_image", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// LedgerMass is the sum of all balances.
func (s *Postgres) LedgerMass(ctx context.Context) (domain.Amount, error) {
	var raw string
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(SUM(balance), 0)::text FROM accounts").Scan(&raw); err != nil {
		return domain.Zero, err
	}
	return decimal.NewFromString(raw)
}

// ApplyMovement debits the sender, credits the receiver and appends the
// transaction record inside one transaction with deterministic row locking.
func (s *Postgres) ApplyMovement(ctx context.Context, mv domain.Movement) (*domain.Transaction, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	rec := mv.Record

	// 1. Idempotency check
	if rec.IdempotencyKey != "" {
		existing, err := scanTransaction(tx.QueryRow(ctx,
			"SELECT "+transactionColumns+" FROM transactions WHERE idempotency_key = $1", rec.IdempotencyKey))
		switch {
		case err == nil:
			if !sameRequest(existing, &rec) {
				return nil, false, ErrIdempotencyMismatch
			}
			return existing, true, nil
		case !errors.Is(err, ErrNotFound):
			return nil, false, fmt.Errorf("idempotency query failed: %w", err)
		}
	}

	// 2. Deterministic locking (deadlock prevention)
	first, second := mv.SenderID, mv.ReceiverID
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}
	balances := make(map[uuid.UUID]domain.Amount, 2)
	for _, id := range []uuid.UUID{first, second} {
		if _, seen := balances[id]; seen {
			continue
		}
		var raw string
		err := tx.QueryRow(ctx, "SELECT balance::text FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&raw)
		if err != nil {
			return nil, false, classify(err)
		}
		if balances[id], err = decimal.NewFromString(raw); err != nil {
			return nil, false, fmt.Errorf("decode balance of %s: %w", id, err)
		}
	}

	// 3. Cover check against the locked balance
	if balances[mv.SenderID].LessThan(mv.Cover) {
		return nil, false, ErrInsufficientFunds
	}

	// 4. Record
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (id, type, sender, receiver, amount, fee, status, idempotency_key, request_hash, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, NULLIF($8, ''), NULLIF($9, ''), $10)
		RETURNING seq`,
		rec.ID, string(rec.Type), rec.Sender, rec.Receiver, rec.Amount.String(), rec.Fee.String(),
		string(rec.Status), rec.IdempotencyKey, rec.RequestHash, rec.Timestamp,
	).Scan(&rec.Seq)
	if err != nil {
		return nil, false, classify(err)
	}

	// 5. Balances and ledger entries
	if !mv.Debit.IsZero() {
		if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1::numeric WHERE id = $2", mv.Debit.String(), mv.SenderID); err != nil {
			return nil, false, classify(err)
		}
		if err := postEntry(ctx, tx, rec.ID, mv.SenderID, mv.Debit.Neg()); err != nil {
			return nil, false, err
		}
	}
	if !mv.Credit.IsZero() {
		if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1::numeric WHERE id = $2", mv.Credit.String(), mv.ReceiverID); err != nil {
			return nil, false, classify(err)
		}
		if err := postEntry(ctx, tx, rec.ID, mv.ReceiverID, mv.Credit); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, classify(err)
	}
	return &rec, false, nil
}

// postEntry appends one signed balance change to the ledger.
func postEntry(ctx context.Context, tx pgx.Tx, txID, accountID uuid.UUID, delta domain.Amount) error {
	if _, err := tx.Exec(ctx,
		"INSERT INTO ledger_entries (transaction_id, account_id, delta) VALUES ($1, $2, $3::numeric)",
		txID, accountID, delta.String()); err != nil {
		return fmt.Errorf("ledger entry insert failed: %w", classify(err))
	}
	return nil
}

// SettlePending flips a pending record to confirm and applies its deferred
// deltas: the stored sender is credited and the stored receiver debited.
// The conditional status update is the gate; a second caller sees ErrNotFound.
func (s *Postgres) SettlePending(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := scanTransaction(tx.QueryRow(ctx,
		`UPDATE transactions SET status = 'confirm', confirmed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+transactionColumns, id))
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		"SELECT id, email, balance::text FROM accounts WHERE email = ANY($1) ORDER BY id FOR UPDATE",
		[]string{rec.Sender, rec.Receiver})
	if err != nil {
		return nil, classify(err)
	}
	type locked struct {
		id      uuid.UUID
		balance domain.Amount
	}
	byEmail := make(map[string]locked, 2)
	for rows.Next() {
		var l locked
		var email, raw string
		if err := rows.Scan(&l.id, &email, &raw); err != nil {
			rows.Close()
			return nil, classify(err)
		}
		if l.balance, err = decimal.NewFromString(raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode balance of %s: %w", l.id, err)
		}
		byEmail[email] = l
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	credited, okSender := byEmail[rec.Sender]
	debited, okReceiver := byEmail[rec.Receiver]
	if !okSender || !okReceiver {
		return nil, ErrNotFound
	}
	if debited.balance.LessThan(rec.Amount) {
		return nil, ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1::numeric WHERE id = $2", rec.Amount.String(), credited.id); err != nil {
		return nil, classify(err)
	}
	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1::numeric WHERE id = $2", rec.Amount.String(), debited.id); err != nil {
		return nil, classify(err)
	}
	if err := postEntry(ctx, tx, rec.ID, credited.id, rec.Amount); err != nil {
		return nil, err
	}
	if err := postEntry(ctx, tx, rec.ID, debited.id, rec.Amount.Neg()); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

// FindTransaction retrieves a transaction by id.
func (s *Postgres) FindTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id))
}

// FindTransactionByKey retrieves the record stored under an idempotency key.
func (s *Postgres) FindTransactionByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE idempotency_key = $1", key))
}

// ListTransactions returns records in insertion order, optionally filtered
// by status.
func (s *Postgres) ListTransactions(ctx context.Context, status domain.TxStatus) ([]domain.Transaction, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = s.pool.Query(ctx, "SELECT "+transactionColumns+" FROM transactions ORDER BY seq")
	} else {
		rows, err = s.pool.Query(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE status = $1 ORDER BY seq", string(status))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Postgres) CountTransactions(ctx context.Context, status domain.TxStatus) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transactions WHERE status = $1", string(status)).Scan(&n)
	return n, err
}
