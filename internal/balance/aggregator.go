// Package balance derives who owes whom from ledger state. It is a pure
// read-side projection: nothing here writes, and every answer is recomputable
// from the non-deleted expenses and their splits alone.
package balance

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"splitledger/internal/core"
	"splitledger/internal/storage"
)

// GroupBalances is the per-member view of a group's ledger. Members maps each
// involved user to their net balance per currency; positive means the group
// owes them. StaleUsers lists users referenced by splits or payments who are
// no longer on the roster; their amounts stay in Members so the accounting
// trail survives roster changes.
type GroupBalances struct {
	GroupID          uuid.UUID                           `json:"group_id"`
	Members          map[uuid.UUID]map[string]core.Money `json:"members"`
	TotalsByCurrency map[string]core.Money               `json:"totals_by_currency"`
	StaleUsers       []uuid.UUID                         `json:"stale_users,omitempty"`
}

// Aggregator computes balances directly from the store on every call.
type Aggregator struct {
	store storage.Store
}

func NewAggregator(store storage.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Pairwise nets the unsettled splits between subject and counterpart, one
// signed amount per currency. Positive means the counterpart owes the
// subject. Currencies that net to zero are omitted: an empty map means the
// pair is settled up. The result is antisymmetric in its arguments.
func (a *Aggregator) Pairwise(ctx context.Context, subject, counterpart uuid.UUID) (map[string]core.Money, error) {
	expenses, err := a.store.ListExpenses(ctx, storage.ExpenseFilter{Participant: subject})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	net := make(map[string]int64)
	for _, e := range expenses {
		switch {
		case e.PayerID == subject:
			if s, ok := e.SplitFor(counterpart); ok && !s.Settled && s.UserID != e.PayerID {
				net[s.Amount.Currency] += s.Amount.Cents
			}
		case e.PayerID == counterpart:
			if s, ok := e.SplitFor(subject); ok && !s.Settled && s.UserID != e.PayerID {
				net[s.Amount.Currency] -= s.Amount.Cents
			}
		}
	}

	out := make(map[string]core.Money, len(net))
	for currency, cents := range net {
		if cents == 0 {
			continue
		}
		out[currency] = core.Money{Cents: cents, Currency: currency}
	}
	return out, nil
}

// Group computes each member's net position plus per-currency totals of all
// group expense amounts. Currencies are never summed together or converted.
func (a *Aggregator) Group(ctx context.Context, groupID uuid.UUID) (GroupBalances, error) {
	g, err := a.store.GetGroup(ctx, groupID)
	if err != nil {
		return GroupBalances{}, err
	}

	expenses, err := a.store.ListExpenses(ctx, storage.ExpenseFilter{GroupID: groupID})
	if err != nil {
		return GroupBalances{}, fmt.Errorf("list group expenses: %w", err)
	}

	roster := make(map[uuid.UUID]bool, len(g.Members))
	for _, m := range g.Members {
		roster[m.UserID] = true
	}

	net := make(map[uuid.UUID]map[string]int64)
	totals := make(map[string]core.Money)
	stale := make(map[uuid.UUID]bool)

	add := func(userID uuid.UUID, currency string, cents int64) {
		if net[userID] == nil {
			net[userID] = make(map[string]int64)
		}
		net[userID][currency] += cents
		if !roster[userID] {
			stale[userID] = true
		}
	}

	for _, e := range expenses {
		t := totals[e.Amount.Currency]
		t.Currency = e.Amount.Currency
		t.Cents += e.Amount.Cents
		totals[e.Amount.Currency] = t

		for _, s := range e.Splits {
			if s.Settled || s.UserID == e.PayerID {
				continue
			}
			add(e.PayerID, s.Amount.Currency, s.Amount.Cents)
			add(s.UserID, s.Amount.Currency, -s.Amount.Cents)
		}
	}

	members := make(map[uuid.UUID]map[string]core.Money, len(net))
	for userID, byCurrency := range net {
		for currency, cents := range byCurrency {
			if cents == 0 {
				continue
			}
			if members[userID] == nil {
				members[userID] = make(map[string]core.Money)
			}
			members[userID][currency] = core.Money{Cents: cents, Currency: currency}
		}
	}

	staleUsers := make([]uuid.UUID, 0, len(stale))
	for userID := range stale {
		staleUsers = append(staleUsers, userID)
	}
	sort.Slice(staleUsers, func(i, j int) bool {
		return staleUsers[i].String() < staleUsers[j].String()
	})
	if len(staleUsers) == 0 {
		staleUsers = nil
	}

	return GroupBalances{
		GroupID:          groupID,
		Members:          members,
		TotalsByCurrency: totals,
		StaleUsers:       staleUsers,
	}, nil
}
