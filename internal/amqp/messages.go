package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventExpenseCreated EventKind = "expense.created"
	EventExpenseUpdated EventKind = "expense.updated"
	EventExpenseDeleted EventKind = "expense.deleted"
	EventSplitSettled   EventKind = "split.settled"
)

// LedgerEvent is the lightweight message published on every ledger mutation.
// Consumers fetch the full record from storage by id; deleted expenses carry
// only the id and kind.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	ExpenseID uuid.UUID `json:"expense_id"`
	GroupID   uuid.UUID `json:"group_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind EventKind, expenseID, groupID uuid.UUID) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		ExpenseID: expenseID,
		GroupID:   groupID,
		Timestamp: time.Now(),
	}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var evt LedgerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
