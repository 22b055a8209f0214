// Package ledger owns the expense lifecycle: creation, payer-only updates
// and deletion, and filtered listing. All split mutations besides full
// replacement on update belong to the settlement package.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/amqp"
	"splitledger/internal/balance"
	"splitledger/internal/core"
	"splitledger/internal/storage"
)

// EventPublisher pushes ledger-change events to the broker. Implemented by
// *amqp.Client; nil disables publishing.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, evt *amqp.LedgerEvent) error
}

// Service orchestrates expense operations across storage, the event stream
// and the balance cache.
type Service struct {
	store    storage.Store
	events   EventPublisher
	balances balance.Invalidator
}

func NewService(store storage.Store, events EventPublisher, balances balance.Invalidator) *Service {
	return &Service{
		store:    store,
		events:   events,
		balances: balances,
	}
}

// CreateExpense describes a new expense. Payer identity arrives separately
// as the caller identity.
type CreateExpense struct {
	Description string
	Amount      core.Money
	Category    string
	Date        time.Time
	GroupID     uuid.UUID
	Splits      []core.Split
}

// Patch carries a partial expense update. Nil fields stay unchanged. When
// Amount or Splits is present the whole new split set is revalidated against
// the sum invariant; settlement flags survive only for participants whose
// share is untouched.
type Patch struct {
	Description *string
	Category    *string
	Date        *time.Time
	Amount      *core.Money
	Splits      []core.Split
}

// Create validates and persists a new expense. Creation is not idempotent:
// a retried call makes a second expense. Callers needing exactly-once
// creation supply their own idempotency key upstream.
func (s *Service) Create(ctx context.Context, payer uuid.UUID, in CreateExpense) (core.Expense, error) {
	e, err := core.NewExpense(payer, in.Amount, in.Splits, in.GroupID, in.Description, in.Category, in.Date)
	if err != nil {
		return core.Expense{}, err
	}

	if err := s.store.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.afterWrite(ctx, amqp.EventExpenseCreated, e, e.Splits)
	return e, nil
}

// Update applies a patch on behalf of requester. Only the recorded payer may
// update.
func (s *Service) Update(ctx context.Context, id, requester uuid.UUID, p Patch) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if e.PayerID != requester {
		return core.Expense{}, core.ErrNotAuthorized
	}

	oldSplits := e.Splits

	if p.Description != nil {
		if *p.Description == "" {
			return core.Expense{}, core.ErrEmptyDescription
		}
		e.Description = *p.Description
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Amount != nil || p.Splits != nil {
		amount := e.Amount
		if p.Amount != nil {
			amount = *p.Amount
		}
		splits := p.Splits
		if splits == nil {
			splits = e.Splits
		}
		if err := e.ReplaceSplits(amount, splits); err != nil {
			return core.Expense{}, err
		}
	}
	e.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	s.afterWrite(ctx, amqp.EventExpenseUpdated, e, append(oldSplits, e.Splits...))
	return e, nil
}

// Delete removes an expense and its splits. Only the payer may delete; the
// expense then vanishes from every balance computation.
func (s *Service) Delete(ctx context.Context, id, requester uuid.UUID) error {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if e.PayerID != requester {
		return core.ErrNotAuthorized
	}

	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.afterWrite(ctx, amqp.EventExpenseDeleted, e, e.Splits)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (core.Expense, error) {
	return s.store.GetExpense(ctx, id)
}

// List runs a fresh filtered query on every call.
func (s *Service) List(ctx context.Context, f storage.ExpenseFilter) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, f)
}

// afterWrite invalidates memoized balances for everyone the expense touches
// and publishes the change event. Both are nil-safe and best-effort: the
// write already committed.
func (s *Service) afterWrite(ctx context.Context, kind amqp.EventKind, e core.Expense, splits []core.Split) {
	if s.balances != nil {
		users := make([]uuid.UUID, 0, len(splits)+1)
		users = append(users, e.PayerID)
		for _, sp := range splits {
			users = append(users, sp.UserID)
		}
		s.balances.InvalidateUsers(users...)
		s.balances.InvalidateGroup(e.GroupID)
	}

	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(kind, e.ID, e.GroupID)); err != nil {
		// The export worker's pending sweep recovers lost events.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", kind, "expense_id", e.ID, "error", err)
	}
}
