package export

import (
	"context"
	"fmt"
	"sync"

	"splitledger/internal/core"
)

// MemoryWriter records appended expenses in memory. Used by tests and local
// runs without Google credentials.
type MemoryWriter struct {
	mu   sync.Mutex
	rows []core.Expense
	// Fail makes every append return this error.
	Fail error
}

var _ ExpenseWriter = (*MemoryWriter)(nil)

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (m *MemoryWriter) AppendExpense(_ context.Context, e core.Expense) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return "", m.Fail
	}
	m.rows = append(m.rows, e)
	return fmt.Sprintf("row-%d", len(m.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (m *MemoryWriter) Rows() []core.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Expense, len(m.rows))
	copy(out, m.rows)
	return out
}
