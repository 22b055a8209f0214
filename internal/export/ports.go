// Package export mirrors settled-up ledger state into external sinks. The
// store's export_state column tracks which expenses still need mirroring.
package export

import (
	"context"

	"splitledger/internal/core"
)

// ExpenseWriter appends one expense row to the mirror and returns a sink
// reference for logging.
type ExpenseWriter interface {
	AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
}
