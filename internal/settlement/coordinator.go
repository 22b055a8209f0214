// Package settlement marks individual shares as paid. Settling is a
// one-way, idempotent transition guarded by the payer.
package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"splitledger/internal/amqp"
	"splitledger/internal/balance"
	"splitledger/internal/core"
	"splitledger/internal/storage"
)

// EventPublisher matches ledger.EventPublisher; redeclared locally so the
// package stands alone.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, evt *amqp.LedgerEvent) error
}

// Coordinator drives split settlement against the store, with the same
// best-effort event and cache hooks as the ledger service.
type Coordinator struct {
	store    storage.Store
	events   EventPublisher
	balances balance.Invalidator
}

func NewCoordinator(store storage.Store, events EventPublisher, balances balance.Invalidator) *Coordinator {
	return &Coordinator{
		store:    store,
		events:   events,
		balances: balances,
	}
}

// Result reports the outcome of a settle call. AlreadySettled distinguishes
// the idempotent no-op from the first transition.
type Result struct {
	Expense        core.Expense
	AlreadySettled bool
}

// SettleSplit marks userID's share of the expense as settled on behalf of
// requester. Only the payer may settle, concurrent calls resolve to exactly
// one state change, and repeats succeed without effect.
func (c *Coordinator) SettleSplit(ctx context.Context, expenseID, userID, requester uuid.UUID) (Result, error) {
	e, err := c.store.GetExpense(ctx, expenseID)
	if err != nil {
		return Result{}, err
	}
	if e.PayerID != requester {
		return Result{}, core.ErrNotAuthorized
	}
	if _, ok := e.SplitFor(userID); !ok {
		return Result{}, fmt.Errorf("%w: %s", core.ErrParticipantNotFound, userID)
	}

	changed, err := c.store.SettleSplit(ctx, expenseID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("settle split: %w", err)
	}

	e, err = c.store.GetExpense(ctx, expenseID)
	if err != nil {
		return Result{}, err
	}

	if !changed {
		return Result{Expense: e, AlreadySettled: true}, nil
	}

	if c.balances != nil {
		c.balances.InvalidateUsers(e.PayerID, userID)
		c.balances.InvalidateGroup(e.GroupID)
	}
	if c.events != nil {
		if err := c.events.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(amqp.EventSplitSettled, e.ID, e.GroupID)); err != nil {
			slog.ErrorContext(ctx, "Failed to publish settlement event",
				"expense_id", e.ID, "user_id", userID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Split settled",
		"expense_id", e.ID,
		"user_id", userID,
		"expense_settled", e.Settled)

	return Result{Expense: e}, nil
}
