package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Split is one participant's share of an expense. A split whose user is the
// expense's payer is bookkeeping only and is created already settled: a payer
// cannot owe themselves.
type Split struct {
	UserID  uuid.UUID `json:"user_id"`
	Amount  Money     `json:"amount"`
	Settled bool      `json:"settled"`
}

// Expense is the unit of record. Its splits always sum exactly to Amount, in
// Amount's currency; the invariant is enforced at creation and on every
// update.
type Expense struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Amount      Money     `json:"amount"`
	Category    string    `json:"category,omitempty"`
	Date        time.Time `json:"date"`
	GroupID     uuid.UUID `json:"group_id,omitempty"`
	PayerID     uuid.UUID `json:"payer_id"`
	Splits      []Split   `json:"splits"`
	// Settled is derived: true once every non-payer split is settled.
	Settled   bool      `json:"settled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExpense validates and assembles an expense. The payer's own split, if
// present, comes back settled; everything else starts unsettled.
func NewExpense(payer uuid.UUID, amount Money, splits []Split, groupID uuid.UUID, description, category string, date time.Time) (Expense, error) {
	if len(strings.TrimSpace(description)) == 0 {
		return Expense{}, ErrEmptyDescription
	}
	if err := amount.Validate(); err != nil {
		return Expense{}, err
	}
	checked, err := checkSplits(payer, amount, splits)
	if err != nil {
		return Expense{}, err
	}

	now := time.Now().UTC()
	e := Expense{
		ID:          uuid.New(),
		Description: strings.TrimSpace(description),
		Amount:      amount,
		Category:    strings.TrimSpace(category),
		Date:        date,
		GroupID:     groupID,
		PayerID:     payer,
		Splits:      checked,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.Settled = e.allSettled()
	return e, nil
}

// checkSplits enforces the split invariants and normalizes settlement flags
// for a fresh split set: non-empty, distinct users, same currency as the
// expense, exact sum. Settled flags on the input are preserved only for the
// payer rule; callers replacing splits decide carry-over themselves.
func checkSplits(payer uuid.UUID, amount Money, splits []Split) ([]Split, error) {
	if len(splits) == 0 {
		return nil, ErrEmptySplitSet
	}
	seen := make(map[uuid.UUID]struct{}, len(splits))
	sum := int64(0)
	out := make([]Split, len(splits))
	for i, s := range splits {
		if _, dup := seen[s.UserID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, s.UserID)
		}
		seen[s.UserID] = struct{}{}
		if s.Amount.Currency != amount.Currency {
			return nil, fmt.Errorf("%w: split %s is %s, expense is %s",
				ErrCurrencyMismatch, s.UserID, s.Amount.Currency, amount.Currency)
		}
		if s.Amount.Cents < 0 {
			return nil, ErrNonPositiveAmount
		}
		sum += s.Amount.Cents
		out[i] = s
		if s.UserID == payer {
			out[i].Settled = true
		}
	}
	if sum != amount.Cents {
		return nil, fmt.Errorf("%w: splits total %d, expense amount %d", ErrInvalidSplitSum, sum, amount.Cents)
	}
	return out, nil
}

// ReplaceSplits validates a new split set against the given amount and swaps
// it in, carrying settlement state over for participants whose share is
// unchanged. Removed or re-priced participants lose their settled flag.
func (e *Expense) ReplaceSplits(amount Money, splits []Split) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	checked, err := checkSplits(e.PayerID, amount, splits)
	if err != nil {
		return err
	}
	prev := make(map[uuid.UUID]Split, len(e.Splits))
	for _, s := range e.Splits {
		prev[s.UserID] = s
	}
	for i, s := range checked {
		if old, ok := prev[s.UserID]; ok && old.Settled && old.Amount == s.Amount {
			checked[i].Settled = true
		}
	}
	e.Amount = amount
	e.Splits = checked
	e.Settled = e.allSettled()
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// SplitFor returns the split for the given participant.
func (e Expense) SplitFor(userID uuid.UUID) (Split, bool) {
	for _, s := range e.Splits {
		if s.UserID == userID {
			return s, true
		}
	}
	return Split{}, false
}

func (e Expense) allSettled() bool {
	for _, s := range e.Splits {
		if s.UserID == e.PayerID {
			continue
		}
		if !s.Settled {
			return false
		}
	}
	return true
}

// RecomputeSettled refreshes the derived Settled flag after a split changed.
func (e *Expense) RecomputeSettled() {
	e.Settled = e.allSettled()
}

// EqualSplits divides amount evenly among the users, pushing the remainder
// cents onto the first users so the total matches exactly.
func EqualSplits(amount Money, userIDs []uuid.UUID) ([]Split, error) {
	n := int64(len(userIDs))
	if n == 0 {
		return nil, ErrEmptySplitSet
	}
	if amount.Cents <= 0 {
		return nil, ErrNonPositiveAmount
	}
	base := amount.Cents / n
	remainder := amount.Cents % n
	splits := make([]Split, 0, n)
	for i, id := range userIDs {
		share := base
		if int64(i) < remainder {
			share++
		}
		splits = append(splits, Split{
			UserID: id,
			Amount: Money{Cents: share, Currency: amount.Currency},
		})
	}
	return splits, nil
}
