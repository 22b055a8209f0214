// Package storage persists expenses, splits, groups and memberships. The
// SQLite store is the durable backend; the memory store backs local runs and
// tests. Both enforce per-record transactional semantics: a mutation either
// lands completely or not at all.
package storage

import (
	"context"

	"github.com/google/uuid"

	"splitledger/internal/core"
)

// ExpenseFilter narrows ListExpenses. Zero values mean "any". Each call runs
// a fresh query; no cursor state is retained.
type ExpenseFilter struct {
	// GroupID restricts to expenses of one group.
	GroupID uuid.UUID
	// Participant restricts to expenses the user paid for or is split into.
	Participant uuid.UUID
	// Settled restricts by the derived expense-level settled flag.
	Settled *bool
}

// Store is the persistence port shared by the ledger, settlement, group and
// balance services.
type Store interface {
	CreateExpense(ctx context.Context, e core.Expense) error
	GetExpense(ctx context.Context, id uuid.UUID) (core.Expense, error)
	// UpdateExpense replaces the stored record, splits included.
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, id uuid.UUID) error
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, error)

	// SettleSplit flips the split's settled flag with compare-and-set
	// semantics and recomputes the expense-level flag in the same
	// transaction. It returns false without error when the split was
	// already settled, core.ErrParticipantNotFound when there is no such
	// split, and core.ErrExpenseNotFound when the expense is gone.
	SettleSplit(ctx context.Context, expenseID, userID uuid.UUID) (changed bool, err error)

	CreateGroup(ctx context.Context, g core.Group) error
	GetGroup(ctx context.Context, id uuid.UUID) (core.Group, error)
	AddMember(ctx context.Context, groupID uuid.UUID, m core.Membership) error
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error

	// Export bookkeeping for the sheets mirror. Every mutation marks the
	// expense pending; the worker drains the backlog.
	PendingExports(ctx context.Context, limit int) ([]uuid.UUID, error)
	MarkExported(ctx context.Context, id uuid.UUID) error
	MarkExportError(ctx context.Context, id uuid.UUID) error

	Close() error
}
