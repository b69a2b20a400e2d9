package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
	"github.com/Naiemjoy1/mfs-server/internal/events"
	"github.com/Naiemjoy1/mfs-server/internal/store"
)

const settleNotFound = "Transaction not found or already confirmed"

// SettlePending confirms a pending request and applies its deferred balance
// effect. The stored sender (the requester) is credited the amount and the
// stored receiver is debited. A record that is missing or already confirmed
// is reported as not found, so concurrent settlers of one id see exactly one
// success.
func (e *Engine) SettlePending(ctx context.Context, rawID string) (tx *domain.Transaction, err error) {
	defer func() {
		ledgerSettlementsTotal.WithLabelValues(outcome(err)).Inc()
	}()

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, newError(KindNotFound, settleNotFound)
	}

	for attempt := 0; ; attempt++ {
		tx, err = e.store.SettlePending(ctx, id)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrConflict) && attempt+1 < e.opts.MaxMutationRetries && ctx.Err() == nil {
			ledgerMutationRetries.WithLabelValues("settle").Inc()
			continue
		}
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Either the record or one of its parties is gone; a confirmed
			// record reads the same as a missing one.
			if cur, lookupErr := e.store.FindTransaction(ctx, id); lookupErr == nil && cur.Status == domain.TxPending {
				return nil, newError(KindNotFound, "Sender or receiver not found")
			}
			return nil, newError(KindNotFound, settleNotFound)
		case errors.Is(err, store.ErrInsufficientFunds):
			return nil, ErrInsufficientBalance
		default:
			return nil, e.translate(err)
		}
	}

	e.publish(ctx, events.RoutingConfirmed, *tx)
	e.logger.Info("transaction settled", "transaction_id", tx.ID, "type", tx.Type, "amount", tx.Amount.String())
	return tx, nil
}
