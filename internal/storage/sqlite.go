package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"splitledger/internal/core"
)

const dateLayout = "2006-01-02"

// SQLiteStore is the durable Store backed by modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL keeps balance reads from blocking ledger writers; foreign keys
	// make split deletion follow expense deletion.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) CreateExpense(ctx context.Context, e core.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, description, amount_cents, currency, category, occurred_on,
		                       group_id, payer_id, settled, export_state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		e.ID.String(), e.Description, e.Amount.Cents, e.Amount.Currency, e.Category,
		e.Date.Format(dateLayout), nullUUID(e.GroupID), e.PayerID.String(),
		boolToInt(e.Settled), e.CreatedAt.Unix(), e.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	if err := insertSplits(ctx, tx, e.ID, e.Splits); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"amount", e.Amount.String(),
		"payer_id", e.PayerID,
		"splits", len(e.Splits))
	return nil
}

func insertSplits(ctx context.Context, tx *sql.Tx, expenseID uuid.UUID, splits []core.Split) error {
	for i, sp := range splits {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, user_id, amount_cents, settled, position)
			 VALUES (?, ?, ?, ?, ?)`,
			expenseID.String(), sp.UserID.String(), sp.Amount.Cents, boolToInt(sp.Settled), i,
		)
		if err != nil {
			return fmt.Errorf("insert split %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetExpense(ctx context.Context, id uuid.UUID) (core.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx,
		`SELECT id, description, amount_cents, currency, category, occurred_on,
		        group_id, payer_id, settled, created_at, updated_at
		 FROM expenses WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, core.ErrExpenseNotFound
		}
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}

	splits, err := s.loadSplits(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	e.Splits = splits
	return e, nil
}

func (s *SQLiteStore) loadSplits(ctx context.Context, expenseID uuid.UUID) ([]core.Split, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.currency, sp.user_id, sp.amount_cents, sp.settled
		 FROM expense_splits sp
		 JOIN expenses e ON e.id = sp.expense_id
		 WHERE sp.expense_id = ?
		 ORDER BY sp.position`, expenseID.String())
	if err != nil {
		return nil, fmt.Errorf("load splits: %w", err)
	}
	defer rows.Close()

	var splits []core.Split
	for rows.Next() {
		var (
			currency string
			userID   string
			cents    int64
			settled  int
		)
		if err := rows.Scan(&currency, &userID, &cents, &settled); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		uid, err := uuid.Parse(userID)
		if err != nil {
			return nil, fmt.Errorf("parse split user id %q: %w", userID, err)
		}
		splits = append(splits, core.Split{
			UserID:  uid,
			Amount:  core.Money{Cents: cents, Currency: currency},
			Settled: settled != 0,
		})
	}
	return splits, rows.Err()
}

func (s *SQLiteStore) UpdateExpense(ctx context.Context, e core.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses
		 SET description = ?, amount_cents = ?, currency = ?, category = ?, occurred_on = ?,
		     settled = ?, export_state = 'pending', updated_at = ?
		 WHERE id = ?`,
		e.Description, e.Amount.Cents, e.Amount.Currency, e.Category, e.Date.Format(dateLayout),
		boolToInt(e.Settled), e.UpdatedAt.Unix(), e.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrExpenseNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM expense_splits WHERE expense_id = ?`, e.ID.String()); err != nil {
		return fmt.Errorf("clear splits: %w", err)
	}
	if err := insertSplits(ctx, tx, e.ID, e.Splits); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrExpenseNotFound
	}
	return nil
}

func (s *SQLiteStore) ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, error) {
	var (
		conds []string
		args  []any
	)
	if f.GroupID != uuid.Nil {
		conds = append(conds, "e.group_id = ?")
		args = append(args, f.GroupID.String())
	}
	if f.Participant != uuid.Nil {
		conds = append(conds, `(e.payer_id = ? OR EXISTS (
			SELECT 1 FROM expense_splits sp WHERE sp.expense_id = e.id AND sp.user_id = ?))`)
		args = append(args, f.Participant.String(), f.Participant.String())
	}
	if f.Settled != nil {
		conds = append(conds, "e.settled = ?")
		args = append(args, boolToInt(*f.Settled))
	}

	query := `SELECT id, description, amount_cents, currency, category, occurred_on,
	                 group_id, payer_id, settled, created_at, updated_at
	          FROM expenses e`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_on DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range expenses {
		splits, err := s.loadSplits(ctx, expenses[i].ID)
		if err != nil {
			return nil, err
		}
		expenses[i].Splits = splits
	}
	return expenses, nil
}

// SettleSplit is the compare-and-set update behind the settlement
// coordinator. The split flip and the expense-level recomputation share one
// transaction, so two concurrent calls cannot disagree on the derived flag.
func (s *SQLiteStore) SettleSplit(ctx context.Context, expenseID, userID uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expense_splits SET settled = 1
		 WHERE expense_id = ? AND user_id = ? AND settled = 0`,
		expenseID.String(), userID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("settle split: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		// Either the split does not exist or it was already settled.
		var settled int
		err := tx.QueryRowContext(ctx,
			`SELECT settled FROM expense_splits WHERE expense_id = ? AND user_id = ?`,
			expenseID.String(), userID.String(),
		).Scan(&settled)
		if errors.Is(err, sql.ErrNoRows) {
			return false, core.ErrParticipantNotFound
		}
		if err != nil {
			return false, fmt.Errorf("check split: %w", err)
		}
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE expenses
		 SET settled = NOT EXISTS (
		         SELECT 1 FROM expense_splits sp
		         WHERE sp.expense_id = expenses.id
		           AND sp.user_id != expenses.payer_id
		           AND sp.settled = 0),
		     export_state = 'pending',
		     updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC().Unix(), expenseID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("recompute expense settled: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) CreateGroup(ctx context.Context, g core.Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, description, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID.String(), g.Name, g.Description, g.CreatedBy.String(), g.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	for _, m := range g.Members {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			g.ID.String(), m.UserID.String(), string(m.Role), m.JoinedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Group created", "id", g.ID, "name", g.Name, "members", len(g.Members))
	return nil
}

func (s *SQLiteStore) GetGroup(ctx context.Context, id uuid.UUID) (core.Group, error) {
	var (
		g         core.Group
		gid       string
		createdBy string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_by, created_at FROM groups WHERE id = ?`,
		id.String(),
	).Scan(&gid, &g.Name, &g.Description, &createdBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Group{}, core.ErrGroupNotFound
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("get group: %w", err)
	}
	if g.ID, err = uuid.Parse(gid); err != nil {
		return core.Group{}, fmt.Errorf("parse group id: %w", err)
	}
	if g.CreatedBy, err = uuid.Parse(createdBy); err != nil {
		return core.Group{}, fmt.Errorf("parse creator id: %w", err)
	}
	g.CreatedAt = time.Unix(createdAt, 0).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, role, joined_at FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`,
		id.String(),
	)
	if err != nil {
		return core.Group{}, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID   string
			role     string
			joinedAt int64
		)
		if err := rows.Scan(&userID, &role, &joinedAt); err != nil {
			return core.Group{}, fmt.Errorf("scan membership: %w", err)
		}
		uid, err := uuid.Parse(userID)
		if err != nil {
			return core.Group{}, fmt.Errorf("parse member id %q: %w", userID, err)
		}
		g.Members = append(g.Members, core.Membership{
			UserID:   uid,
			Role:     core.Role(role),
			JoinedAt: time.Unix(joinedAt, 0).UTC(),
		})
	}
	return g, rows.Err()
}

func (s *SQLiteStore) AddMember(ctx context.Context, groupID uuid.UUID, m core.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM groups WHERE id = ?`, groupID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	if exists == 0 {
		return core.ErrGroupNotFound
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID.String(), m.UserID.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if exists > 0 {
		return core.ErrAlreadyMember
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		groupID.String(), m.UserID.String(), string(m.Role), m.JoinedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM groups WHERE id = ?`, groupID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	if exists == 0 {
		return core.ErrGroupNotFound
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotAMember
	}
	return nil
}

func (s *SQLiteStore) PendingExports(ctx context.Context, limit int) ([]uuid.UUID, error) {
	// Errored rows stay eligible until the retry budget runs out.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM expenses
		 WHERE export_state = 'pending' OR (export_state = 'error' AND export_attempts < 5)
		 ORDER BY updated_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending exports: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) MarkExported(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET export_state = 'done' WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkExportError(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET export_state = 'error', export_attempts = export_attempts + 1 WHERE id = ?`,
		id.String())
	if err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e          core.Expense
		id         string
		occurredOn string
		groupID    sql.NullString
		payerID    string
		settled    int
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(&id, &e.Description, &e.Amount.Cents, &e.Amount.Currency, &e.Category,
		&occurredOn, &groupID, &payerID, &settled, &createdAt, &updatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return core.Expense{}, fmt.Errorf("parse expense id: %w", err)
	}
	if e.PayerID, err = uuid.Parse(payerID); err != nil {
		return core.Expense{}, fmt.Errorf("parse payer id: %w", err)
	}
	if groupID.Valid {
		if e.GroupID, err = uuid.Parse(groupID.String); err != nil {
			return core.Expense{}, fmt.Errorf("parse group id: %w", err)
		}
	}
	if e.Date, err = time.Parse(dateLayout, occurredOn); err != nil {
		return core.Expense{}, fmt.Errorf("parse occurred_on %q: %w", occurredOn, err)
	}
	e.Settled = settled != 0
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return e, nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
