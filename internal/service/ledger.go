package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
	"github.com/Naiemjoy1/mfs-server/internal/events"
	"github.com/Naiemjoy1/mfs-server/internal/store"
)

const defaultMutationRetries = 3

// Options are the engine's policy switches.
type Options struct {
	// RequireActiveAccount treats any account whose status is not active as
	// absent for money movement.
	RequireActiveAccount bool
	// MaxMutationRetries bounds how often a conflicting atomic mutation is
	// retried before the caller sees a conflict.
	MaxMutationRetries int
	// PINLimiter and PINAttempts throttle failed PIN checks per sender.
	// A nil limiter disables throttling.
	PINLimiter  AttemptLimiter
	PINAttempts AttemptPolicy
}

// TransferRequest is one money-movement instruction from an authenticated
// caller.
type TransferRequest struct {
	ReceiverIdentifier string
	Amount             string
	PIN                string

	IdempotencyKey string
	RequestHash    string
}

// Result is what a successful movement reports back.
type Result struct {
	Sender      domain.Account
	Receiver    domain.Account
	Fee         domain.Amount
	Transaction domain.Transaction
	Replayed    bool
}

// Engine validates and executes money movements and settles pending
// requests.
type Engine struct {
	store    Ledger
	pins     CredentialVerifier
	events   events.Publisher
	logger   *slog.Logger
	opts     Options
	pinTries throttle
	now      func() time.Time
}

func NewEngine(s Ledger, pins CredentialVerifier, pub events.Publisher, logger *slog.Logger, opts Options) *Engine {
	if opts.MaxMutationRetries <= 0 {
		opts.MaxMutationRetries = defaultMutationRetries
	}
	if pub == nil {
		pub = events.Nop{Logger: logger}
	}
	return &Engine{
		store:  s,
		pins:   pins,
		events: pub,
		logger: logger,
		opts:   opts,
		pinTries: throttle{
			limiter: opts.PINLimiter,
			policy:  opts.PINAttempts,
			scope:   "pin",
			message: "Too many invalid PIN attempts",
			logger:  logger,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) SendMoney(ctx context.Context, id domain.Identity, req TransferRequest) (*Result, error) {
	return e.Execute(ctx, domain.OpSendMoney, id, req)
}

func (e *Engine) CashOut(ctx context.Context, id domain.Identity, req TransferRequest) (*Result, error) {
	return e.Execute(ctx, domain.OpCashOut, id, req)
}

func (e *Engine) CashIn(ctx context.Context, id domain.Identity, req TransferRequest) (*Result, error) {
	return e.Execute(ctx, domain.OpCashIn, id, req)
}

func (e *Engine) CashInRequest(ctx context.Context, id domain.Identity, req TransferRequest) (*Result, error) {
	return e.Execute(ctx, domain.OpCashInRequest, id, req)
}

func (e *Engine) CashOutRequest(ctx context.Context, id domain.Identity, req TransferRequest) (*Result, error) {
	return e.Execute(ctx, domain.OpCashOutRequest, id, req)
}

// Execute runs op for the caller identified by id. Validation happens in a
// fixed order and the first failure wins; nothing is mutated unless every
// check passes.
func (e *Engine) Execute(ctx context.Context, op domain.Operation, id domain.Identity, req TransferRequest) (res *Result, err error) {
	defer func() {
		ledgerOperationsTotal.WithLabelValues(string(op), outcome(err)).Inc()
	}()

	r, ok := rules[op]
	if !ok {
		return nil, newError(KindInvalidRequest, fmt.Sprintf("unknown operation %q", op))
	}

	sender, err := e.resolveSender(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		res, err := e.replay(ctx, op, sender, req)
		if res != nil || err != nil {
			return res, err
		}
	}

	receiver, err := e.resolveReceiver(ctx, req.ReceiverIdentifier)
	if err != nil {
		return nil, err
	}

	if sender.Role != r.senderRole {
		return nil, newError(KindForbidden, r.senderDenied)
	}
	if receiver.Role != r.receiverRole {
		return nil, newError(KindForbidden, r.receiverDenied)
	}
	if sender.ID == receiver.ID {
		return nil, newError(KindForbidden, "Cannot send money to yourself")
	}

	failures, err := e.pinTries.check(ctx, sender.Email)
	if err != nil {
		return nil, err
	}
	if !e.pins.Verify(sender.PINHash, req.PIN) {
		e.pinTries.fail(ctx, sender.Email)
		return nil, newError(KindUnauthorized, "Invalid PIN")
	}
	e.pinTries.succeed(ctx, sender.Email, failures)

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	q := r.price(amount)
	if sender.Balance.LessThan(q.cover) {
		return nil, ErrInsufficientBalance
	}

	mv := domain.Movement{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Debit:      q.debit,
		Credit:     q.credit,
		Cover:      q.cover,
		Record: domain.Transaction{
			ID:             uuid.New(),
			Type:           op,
			Sender:         sender.Email,
			Receiver:       receiver.Email,
			Amount:         amount,
			Fee:            q.fee,
			Status:         r.status,
			Timestamp:      e.now(),
			IdempotencyKey: req.IdempotencyKey,
			RequestHash:    req.RequestHash,
		},
	}

	rec, replayed, err := e.apply(ctx, op, mv)
	if err != nil {
		return nil, err
	}

	// Report balances as committed.
	if s, err := e.store.FindAccountByID(ctx, sender.ID); err == nil {
		sender = s
	}
	if rc, err := e.store.FindAccountByID(ctx, receiver.ID); err == nil {
		receiver = rc
	}

	if !replayed {
		e.publish(ctx, events.RoutingCreated, *rec)
		e.logger.Info("transaction committed",
			"transaction_id", rec.ID, "type", rec.Type, "amount", rec.Amount.String(),
			"fee", rec.Fee.String(), "status", rec.Status)
	}

	return &Result{Sender: *sender, Receiver: *receiver, Fee: rec.Fee, Transaction: *rec, Replayed: replayed}, nil
}

// apply hands the movement to the transaction log, retrying lost races.
func (e *Engine) apply(ctx context.Context, op domain.Operation, mv domain.Movement) (*domain.Transaction, bool, error) {
	var lastErr error
	for attempt := 0; attempt < e.opts.MaxMutationRetries; attempt++ {
		if attempt > 0 {
			ledgerMutationRetries.WithLabelValues(string(op)).Inc()
			e.logger.Warn("retrying conflicting mutation", "operation", op, "attempt", attempt+1, "error", lastErr)
		}
		rec, replayed, err := e.store.ApplyMovement(ctx, mv)
		if err == nil {
			return rec, replayed, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, false, e.translate(err)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, false, newError(KindConflict, "Concurrent update conflict, please retry")
}

// replay returns the stored outcome of a request already processed under
// the same idempotency key. A nil result and nil error mean the key is new.
// The key only replays for the same operation, sender and body.
func (e *Engine) replay(ctx context.Context, op domain.Operation, sender *domain.Account, req TransferRequest) (*Result, error) {
	rec, err := e.store.FindTransactionByKey(ctx, req.IdempotencyKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, e.translate(err)
	}
	if rec.Type != op || rec.Sender != sender.Email || rec.RequestHash != req.RequestHash {
		return nil, e.translate(store.ErrIdempotencyMismatch)
	}

	res := &Result{Sender: *sender, Fee: rec.Fee, Transaction: *rec, Replayed: true}
	if receiver, err := e.store.FindAccountByEmail(ctx, rec.Receiver); err == nil {
		res.Receiver = *receiver
	}
	return res, nil
}

func (e *Engine) resolveSender(ctx context.Context, id domain.Identity) (*domain.Account, error) {
	var (
		a   *domain.Account
		err error
	)
	switch {
	case id.Email != "":
		a, err = e.store.FindAccountByEmail(ctx, id.Email)
	case id.AccountID != "":
		uid, perr := uuid.Parse(id.AccountID)
		if perr != nil {
			return nil, newError(KindNotFound, "Sender not found")
		}
		a, err = e.store.FindAccountByID(ctx, uid)
	default:
		return nil, newError(KindUnauthorized, "Unauthorized access")
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Sender not found")
	}
	if err != nil {
		return nil, e.translate(err)
	}
	if !e.admissible(a) {
		return nil, newError(KindNotFound, "Sender not found")
	}
	return a, nil
}

// resolveReceiver looks the identifier up as an email when it contains an
// '@' and as a mobile number otherwise, falling back to the other lookup on
// a miss.
func (e *Engine) resolveReceiver(ctx context.Context, identifier string) (*domain.Account, error) {
	identifier = strings.TrimSpace(identifier)
	notFound := newError(KindNotFound, "Receiver not found")
	if identifier == "" {
		return nil, notFound
	}

	lookups := []func(context.Context, string) (*domain.Account, error){
		e.store.FindAccountByEmail,
		e.store.FindAccountByMobile,
	}
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	} else {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	for _, find := range lookups {
		a, err := find(ctx, identifier)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, e.translate(err)
		}
		if !e.admissible(a) {
			return nil, notFound
		}
		return a, nil
	}
	return nil, notFound
}

func (e *Engine) admissible(a *domain.Account) bool {
	return !e.opts.RequireActiveAccount || a.Status == domain.AccountActive
}

// History returns the transaction log in insertion order, optionally
// filtered by status.
func (e *Engine) History(ctx context.Context, status domain.TxStatus) ([]domain.Transaction, error) {
	if status != "" && status != domain.TxPending && status != domain.TxConfirm {
		return nil, newError(KindInvalidRequest, fmt.Sprintf("unknown status %q", status))
	}
	txs, err := e.store.ListTransactions(ctx, status)
	if err != nil {
		return nil, e.translate(err)
	}
	return txs, nil
}

// Transaction returns one record by id.
func (e *Engine) Transaction(ctx context.Context, rawID string) (*domain.Transaction, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, newError(KindNotFound, "Transaction not found")
	}
	t, err := e.store.FindTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Transaction not found")
	}
	if err != nil {
		return nil, e.translate(err)
	}
	return t, nil
}

func (e *Engine) publish(ctx context.Context, routingKey string, t domain.Transaction) {
	if err := e.events.Publish(ctx, routingKey, events.NewTransactionEvent(t)); err != nil {
		e.logger.Error("failed to publish transaction event",
			"routing_key", routingKey, "transaction_id", t.ID, "error", err)
	}
}

// translate maps storage errors onto the service taxonomy. Unknown errors
// are logged and reported as internal without their text.
func (e *Engine) translate(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrInsufficientFunds):
		return ErrInsufficientBalance
	case errors.Is(err, store.ErrIdempotencyMismatch):
		return newError(KindConflict, "Idempotency key reused with a different payload")
	case errors.Is(err, store.ErrConflict):
		return newError(KindConflict, "Concurrent update conflict, please retry")
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrAlreadyExists
	}
	e.logger.Error("storage failure", "error", err)
	return newError(KindInternal, "Internal server error")
}
