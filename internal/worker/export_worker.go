// Package worker drains the export backlog into the configured mirror. It
// consumes ledger events for low latency and sweeps the pending set
// periodically as the recovery path for lost messages.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/export"
	"splitledger/internal/storage"
)

type ExportWorker struct {
	store     storage.Store
	writer    export.ExpenseWriter
	batchSize int
}

func NewExportWorker(store storage.Store, writer export.ExpenseWriter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ExportWorker{
		store:     store,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleLedgerEvent processes one event from the queue. Deletions need no
// mirroring; everything else exports the current record. An error return
// requeues the message.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, evt *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"kind", evt.Kind, "expense_id", evt.ExpenseID)

	if evt.Kind == amqp.EventExpenseDeleted {
		return nil
	}
	return w.exportOne(ctx, evt.ExpenseID)
}

// ProcessPending exports one batch of expenses still marked pending. This is
// the backup mechanism for lost or never-published events.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	ids, err := w.store.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(ids))

	for _, id := range ids {
		if err := w.exportOne(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense", "id", id, "error", err)
		}
	}
	return nil
}

// StartupCheck drains a larger backlog once at worker start, recovering from
// downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	ids, err := w.store.PendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}
	if len(ids) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(ids))

	exported := 0
	failed := 0
	for _, id := range ids {
		if err := w.exportOne(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense during startup",
				"id", id, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(ids), "exported", exported, "errors", failed)
	return nil
}

func (w *ExportWorker) exportOne(ctx context.Context, id uuid.UUID) error {
	e, err := w.store.GetExpense(ctx, id)
	if errors.Is(err, core.ErrExpenseNotFound) {
		// Deleted between event and processing.
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense: %w", err)
	}

	ref, err := w.writer.AppendExpense(ctx, e)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", id, "error", markErr)
		}
		return fmt.Errorf("append expense: %w", err)
	}

	if err := w.store.MarkExported(ctx, id); err != nil {
		// The append worked; the sweep will retry and duplicate the row.
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Exported expense",
		"id", id, "ref", ref, "amount_cents", e.Amount.Cents)
	return nil
}
