package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/core"
)

func newTestExpense(t *testing.T, payer uuid.UUID, groupID uuid.UUID, participants ...uuid.UUID) core.Expense {
	t.Helper()
	amount := core.NewMoney(int64(len(participants))*1000, "USD")
	splits, err := core.EqualSplits(amount, participants)
	if err != nil {
		t.Fatalf("EqualSplits: %v", err)
	}
	e, err := core.NewExpense(payer, amount, splits, groupID, "test expense", "misc",
		time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewExpense: %v", err)
	}
	return e
}

func TestMemoryStoreExpenseRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	payer, a := uuid.New(), uuid.New()
	e := newTestExpense(t, payer, uuid.Nil, a)

	if err := s.CreateExpense(ctx, e); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	got, err := s.GetExpense(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.ID != e.ID || len(got.Splits) != 1 || got.Amount.Cents != 1000 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := s.GetExpense(ctx, uuid.New()); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound, got %v", err)
	}
}

func TestMemoryStoreSettleSplitCAS(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	payer, a := uuid.New(), uuid.New()
	e := newTestExpense(t, payer, uuid.Nil, a)
	if err := s.CreateExpense(ctx, e); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	changed, err := s.SettleSplit(ctx, e.ID, a)
	if err != nil || !changed {
		t.Fatalf("first settle: changed=%v err=%v", changed, err)
	}

	// Second settle is a no-op, not an error.
	changed, err = s.SettleSplit(ctx, e.ID, a)
	if err != nil {
		t.Fatalf("second settle errored: %v", err)
	}
	if changed {
		t.Error("second settle should not report a change")
	}

	got, _ := s.GetExpense(ctx, e.ID)
	if !got.Settled {
		t.Error("expense should be settled once its only non-payer split is")
	}

	if _, err := s.SettleSplit(ctx, e.ID, uuid.New()); !errors.Is(err, core.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if _, err := s.SettleSplit(ctx, uuid.New(), a); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound, got %v", err)
	}
}

func TestMemoryStoreListExpensesFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	payer, a, b := uuid.New(), uuid.New(), uuid.New()
	groupID := uuid.New()

	inGroup := newTestExpense(t, payer, groupID, a)
	solo := newTestExpense(t, payer, uuid.Nil, b)
	if err := s.CreateExpense(ctx, inGroup); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateExpense(ctx, solo); err != nil {
		t.Fatal(err)
	}

	byGroup, err := s.ListExpenses(ctx, ExpenseFilter{GroupID: groupID})
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(byGroup) != 1 || byGroup[0].ID != inGroup.ID {
		t.Fatalf("group filter returned %d expenses", len(byGroup))
	}

	byUser, err := s.ListExpenses(ctx, ExpenseFilter{Participant: b})
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(byUser) != 1 || byUser[0].ID != solo.ID {
		t.Fatalf("participant filter returned %d expenses", len(byUser))
	}

	unsettled := false
	open, err := s.ListExpenses(ctx, ExpenseFilter{Settled: &unsettled})
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open expenses, got %d", len(open))
	}
}

func TestMemoryStoreMembership(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	creator, u2 := uuid.New(), uuid.New()

	g, err := core.NewGroup(creator, "trip", "", nil)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	if err := s.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	m := core.Membership{UserID: u2, Role: core.RoleMember, JoinedAt: time.Now().UTC()}
	if err := s.AddMember(ctx, g.ID, m); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := s.AddMember(ctx, g.ID, m); !errors.Is(err, core.ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}

	if err := s.RemoveMember(ctx, g.ID, u2); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := s.RemoveMember(ctx, g.ID, u2); !errors.Is(err, core.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if err := s.AddMember(ctx, uuid.New(), m); !errors.Is(err, core.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestMemoryStorePendingExports(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	payer, a := uuid.New(), uuid.New()
	e := newTestExpense(t, payer, uuid.Nil, a)
	if err := s.CreateExpense(ctx, e); err != nil {
		t.Fatal(err)
	}

	ids, err := s.PendingExports(ctx, 10)
	if err != nil || len(ids) != 1 {
		t.Fatalf("expected 1 pending export, got %d (err=%v)", len(ids), err)
	}

	if err := s.MarkExported(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	ids, _ = s.PendingExports(ctx, 10)
	if len(ids) != 0 {
		t.Fatalf("expected no pending exports after mark, got %d", len(ids))
	}
}
