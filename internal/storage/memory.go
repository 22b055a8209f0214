package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"splitledger/internal/core"
)

// MemoryStore is the in-process Store used for the memory backend and unit
// tests. A read lock never blocks another reader, mirroring the WAL behavior
// of the SQLite store.
type MemoryStore struct {
	mu       sync.RWMutex
	expenses map[uuid.UUID]core.Expense
	groups   map[uuid.UUID]core.Group
	pending  map[uuid.UUID]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expenses: make(map[uuid.UUID]core.Expense),
		groups:   make(map[uuid.UUID]core.Group),
		pending:  make(map[uuid.UUID]bool),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[e.ID] = cloneExpense(e)
	s.pending[e.ID] = true
	return nil
}

func (s *MemoryStore) GetExpense(_ context.Context, id uuid.UUID) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, core.ErrExpenseNotFound
	}
	return cloneExpense(e), nil
}

func (s *MemoryStore) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[e.ID]; !ok {
		return core.ErrExpenseNotFound
	}
	s.expenses[e.ID] = cloneExpense(e)
	s.pending[e.ID] = true
	return nil
}

func (s *MemoryStore) DeleteExpense(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return core.ErrExpenseNotFound
	}
	delete(s.expenses, id)
	delete(s.pending, id)
	return nil
}

func (s *MemoryStore) ListExpenses(_ context.Context, f ExpenseFilter) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Expense
	for _, e := range s.expenses {
		if f.GroupID != uuid.Nil && e.GroupID != f.GroupID {
			continue
		}
		if f.Participant != uuid.Nil && !involves(e, f.Participant) {
			continue
		}
		if f.Settled != nil && e.Settled != *f.Settled {
			continue
		}
		out = append(out, cloneExpense(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func involves(e core.Expense, userID uuid.UUID) bool {
	if e.PayerID == userID {
		return true
	}
	_, ok := e.SplitFor(userID)
	return ok
}

func (s *MemoryStore) SettleSplit(_ context.Context, expenseID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[expenseID]
	if !ok {
		return false, core.ErrExpenseNotFound
	}
	for i := range e.Splits {
		if e.Splits[i].UserID != userID {
			continue
		}
		if e.Splits[i].Settled {
			return false, nil
		}
		e.Splits[i].Settled = true
		e.RecomputeSettled()
		s.expenses[expenseID] = e
		s.pending[expenseID] = true
		return true, nil
	}
	return false, core.ErrParticipantNotFound
}

func (s *MemoryStore) CreateGroup(_ context.Context, g core.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = cloneGroup(g)
	return nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id uuid.UUID) (core.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return core.Group{}, core.ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

func (s *MemoryStore) AddMember(_ context.Context, groupID uuid.UUID, m core.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return core.ErrGroupNotFound
	}
	if g.IsMember(m.UserID) {
		return core.ErrAlreadyMember
	}
	g.Members = append(g.Members, m)
	s.groups[groupID] = g
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, groupID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return core.ErrGroupNotFound
	}
	for i, m := range g.Members {
		if m.UserID == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			s.groups[groupID] = g
			return nil
		}
	}
	return core.ErrNotAMember
}

func (s *MemoryStore) PendingExports(_ context.Context, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for id := range s.pending {
		if !s.pending[id] {
			continue
		}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (s *MemoryStore) MarkExported(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	return nil
}

func (s *MemoryStore) MarkExportError(_ context.Context, id uuid.UUID) error {
	// Stays pending so the periodic sweep retries it.
	return nil
}

func cloneExpense(e core.Expense) core.Expense {
	out := e
	out.Splits = append([]core.Split(nil), e.Splits...)
	return out
}

func cloneGroup(g core.Group) core.Group {
	out := g
	out.Members = append([]core.Membership(nil), g.Members...)
	return out
}
