package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/core"
	"splitledger/internal/ledger"
	"splitledger/internal/storage"
)

const dateLayout = "2006-01-02"

type splitPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
}

type createExpenseRequest struct {
	Description string         `json:"description"`
	AmountCents int64          `json:"amount_cents"`
	Currency    string         `json:"currency"`
	Category    string         `json:"category"`
	Date        string         `json:"date"`
	GroupID     *uuid.UUID     `json:"group_id"`
	Splits      []splitPayload `json:"splits"`
	// SplitAmong divides the amount equally instead of listing explicit
	// splits. Exactly one of Splits and SplitAmong should be set.
	SplitAmong []uuid.UUID `json:"split_among"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		date, err = time.Parse(dateLayout, req.Date)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
	}

	amount := core.NewMoney(req.AmountCents, req.Currency)
	if err := amount.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	var splits []core.Split
	if len(req.SplitAmong) > 0 {
		splits, err = core.EqualSplits(amount, req.SplitAmong)
		if err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		splits = make([]core.Split, len(req.Splits))
		for i, p := range req.Splits {
			splits[i] = core.Split{
				UserID: p.UserID,
				Amount: core.Money{Cents: p.AmountCents, Currency: amount.Currency},
			}
		}
	}

	groupID := uuid.Nil
	if req.GroupID != nil {
		groupID = *req.GroupID
	}

	e, err := s.ledger.Create(r.Context(), requester, ledger.CreateExpense{
		Description: req.Description,
		Amount:      amount,
		Category:    req.Category,
		Date:        date,
		GroupID:     groupID,
		Splits:      splits,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "expenseID")
	if !ok {
		return
	}
	e, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	var f storage.ExpenseFilter

	q := r.URL.Query()
	if v := q.Get("group_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "invalid group_id")
			return
		}
		f.GroupID = id
	}
	if v := q.Get("participant"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "invalid participant")
			return
		}
		f.Participant = id
	}
	switch q.Get("settled") {
	case "":
	case "true":
		t := true
		f.Settled = &t
	case "false":
		fa := false
		f.Settled = &fa
	default:
		writeErrorStatus(w, http.StatusBadRequest, "invalid settled, want true or false")
		return
	}

	expenses, err := s.ledger.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

type updateExpenseRequest struct {
	Description *string        `json:"description"`
	Category    *string        `json:"category"`
	Date        *string        `json:"date"`
	AmountCents *int64         `json:"amount_cents"`
	Currency    *string        `json:"currency"`
	Splits      []splitPayload `json:"splits"`
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := pathUUID(w, r, "expenseID")
	if !ok {
		return
	}

	var req updateExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patch := ledger.Patch{
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Date != nil {
		date, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		patch.Date = &date
	}
	if req.AmountCents != nil {
		currency := ""
		if req.Currency != nil {
			currency = *req.Currency
		} else {
			current, err := s.ledger.Get(r.Context(), id)
			if err != nil {
				writeError(w, r, err)
				return
			}
			currency = current.Amount.Currency
		}
		amount := core.NewMoney(*req.AmountCents, currency)
		if err := amount.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		patch.Amount = &amount
	}
	if req.Splits != nil {
		currency := ""
		if patch.Amount != nil {
			currency = patch.Amount.Currency
		} else {
			current, err := s.ledger.Get(r.Context(), id)
			if err != nil {
				writeError(w, r, err)
				return
			}
			currency = current.Amount.Currency
		}
		splits := make([]core.Split, len(req.Splits))
		for i, p := range req.Splits {
			splits[i] = core.Split{
				UserID: p.UserID,
				Amount: core.Money{Cents: p.AmountCents, Currency: currency},
			}
		}
		patch.Splits = splits
	}

	e, err := s.ledger.Update(r.Context(), id, requester, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := pathUUID(w, r, "expenseID")
	if !ok {
		return
	}
	if err := s.ledger.Delete(r.Context(), id, requester); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type settleResponse struct {
	Expense        core.Expense `json:"expense"`
	AlreadySettled bool         `json:"already_settled"`
}

func (s *Server) handleSettleSplit(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expenseID, ok := pathUUID(w, r, "expenseID")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	res, err := s.settlement.SettleSplit(r.Context(), expenseID, userID, requester)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settleResponse{
		Expense:        res.Expense,
		AlreadySettled: res.AlreadySettled,
	})
}
