package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"splitledger/internal/balance"
	"splitledger/internal/core"
	"splitledger/internal/groups"
	"splitledger/internal/ledger"
	"splitledger/internal/settlement"
	"splitledger/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	agg := balance.NewAggregator(store)
	srv := NewServer("127.0.0.1:0",
		ledger.NewService(store, nil, nil),
		settlement.NewCoordinator(store, nil, nil),
		groups.NewService(store, nil),
		agg)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, requester uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if requester != uuid.Nil {
		req.Header.Set("X-User-ID", requester.String())
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, uuid.Nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateExpenseRequiresIdentity(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/expenses", uuid.Nil, map[string]any{
		"description": "x", "amount_cents": 100, "currency": "USD",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without X-User-ID", rec.Code)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	srv := newTestServer(t)
	payer := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	// Equal split pushes the remainder onto the first users.
	rec := doJSON(t, srv, http.MethodPost, "/expenses", payer, map[string]any{
		"description":  "dinner",
		"amount_cents": 10000,
		"currency":     "usd",
		"date":         "2026-08-20",
		"split_among":  []string{payer.String(), alice.String(), bob.String()},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[core.Expense](t, rec)
	if created.Amount.Currency != "USD" {
		t.Errorf("currency = %s, want normalized USD", created.Amount.Currency)
	}
	first, _ := created.SplitFor(payer)
	if first.Amount.Cents != 3334 {
		t.Errorf("payer share = %d, want 3334", first.Amount.Cents)
	}

	// Read back.
	rec = doJSON(t, srv, http.MethodGet, "/expenses/"+created.ID.String(), uuid.Nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Non-payer update is forbidden.
	rec = doJSON(t, srv, http.MethodPatch, "/expenses/"+created.ID.String(), alice, map[string]any{
		"description": "hijacked",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-payer patch status = %d, want 403", rec.Code)
	}

	// Payer update works.
	rec = doJSON(t, srv, http.MethodPatch, "/expenses/"+created.ID.String(), payer, map[string]any{
		"description": "team dinner",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decode[core.Expense](t, rec)
	if updated.Description != "team dinner" {
		t.Errorf("description = %q", updated.Description)
	}

	// List by participant.
	rec = doJSON(t, srv, http.MethodGet, "/expenses?participant="+alice.String(), uuid.Nil, nil)
	listed := decode[[]core.Expense](t, rec)
	if len(listed) != 1 {
		t.Fatalf("listed %d expenses, want 1", len(listed))
	}

	// Delete by payer.
	rec = doJSON(t, srv, http.MethodDelete, "/expenses/"+created.ID.String(), payer, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/expenses/"+created.ID.String(), uuid.Nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateExpenseBadSplitSum(t *testing.T) {
	srv := newTestServer(t)
	payer := uuid.New()

	rec := doJSON(t, srv, http.MethodPost, "/expenses", payer, map[string]any{
		"description":  "off by one",
		"amount_cents": 1000,
		"currency":     "USD",
		"splits": []map[string]any{
			{"user_id": payer.String(), "amount_cents": 999},
		},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}
}

func TestSettleFlowAndBalances(t *testing.T) {
	srv := newTestServer(t)
	payer := uuid.New()
	alice := uuid.New()

	rec := doJSON(t, srv, http.MethodPost, "/expenses", payer, map[string]any{
		"description":  "groceries",
		"amount_cents": 8000,
		"currency":     "USD",
		"splits": []map[string]any{
			{"user_id": payer.String(), "amount_cents": 4000},
			{"user_id": alice.String(), "amount_cents": 4000},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	e := decode[core.Expense](t, rec)

	// Alice owes payer 4000.
	rec = doJSON(t, srv, http.MethodGet, "/balances/"+payer.String(), alice, nil)
	bal := decode[pairwiseBalanceResponse](t, rec)
	if bal.Balances["USD"].Cents != -4000 {
		t.Errorf("balance = %d, want -4000", bal.Balances["USD"].Cents)
	}

	settlePath := fmt.Sprintf("/expenses/%s/splits/%s/settle", e.ID, alice)

	// The debtor cannot settle.
	rec = doJSON(t, srv, http.MethodPost, settlePath, alice, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("debtor settle status = %d, want 403", rec.Code)
	}

	// The payer settles.
	rec = doJSON(t, srv, http.MethodPost, settlePath, payer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settle status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[settleResponse](t, rec)
	if res.AlreadySettled {
		t.Error("first settle marked already settled")
	}
	if !res.Expense.Settled {
		t.Error("expense should be fully settled")
	}

	// Repeat is an idempotent 200.
	rec = doJSON(t, srv, http.MethodPost, settlePath, payer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat settle status = %d", rec.Code)
	}
	if res := decode[settleResponse](t, rec); !res.AlreadySettled {
		t.Error("repeat settle should report already settled")
	}

	// Settled up.
	rec = doJSON(t, srv, http.MethodGet, "/balances/"+payer.String(), alice, nil)
	bal = decode[pairwiseBalanceResponse](t, rec)
	if len(bal.Balances) != 0 {
		t.Errorf("balance after settle = %v, want empty", bal.Balances)
	}

	// Unknown participant split is 404.
	rec = doJSON(t, srv, http.MethodPost,
		fmt.Sprintf("/expenses/%s/splits/%s/settle", e.ID, uuid.New()), payer, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown participant status = %d, want 404", rec.Code)
	}
}

func TestGroupEndpoints(t *testing.T) {
	srv := newTestServer(t)
	creator := uuid.New()
	member := uuid.New()

	rec := doJSON(t, srv, http.MethodPost, "/groups", creator, map[string]any{
		"name":        "trip",
		"description": "summer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group status = %d, body %s", rec.Code, rec.Body.String())
	}
	g := decode[core.Group](t, rec)

	// Join, then conflicting re-join.
	rec = doJSON(t, srv, http.MethodPost, "/groups/"+g.ID.String()+"/join", member, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("join status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPost, "/groups/"+g.ID.String()+"/join", member, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double join status = %d, want 409", rec.Code)
	}

	// Non-admin cannot add members.
	rec = doJSON(t, srv, http.MethodPost, "/groups/"+g.ID.String()+"/members", member, map[string]any{
		"user_id": uuid.New().String(),
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin add status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/groups/"+g.ID.String()+"/members", uuid.Nil, nil)
	members := decode[[]core.Membership](t, rec)
	if len(members) != 2 {
		t.Errorf("members = %d, want 2", len(members))
	}

	// Group balances reflect group expenses.
	rec = doJSON(t, srv, http.MethodPost, "/expenses", creator, map[string]any{
		"description":  "cabin",
		"amount_cents": 6000,
		"currency":     "USD",
		"group_id":     g.ID.String(),
		"split_among":  []string{creator.String(), member.String()},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("group expense status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/groups/"+g.ID.String()+"/balances", uuid.Nil, nil)
	gb := decode[balance.GroupBalances](t, rec)
	if gb.TotalsByCurrency["USD"].Cents != 6000 {
		t.Errorf("group total = %d, want 6000", gb.TotalsByCurrency["USD"].Cents)
	}
	if gb.Members[member]["USD"].Cents != -3000 {
		t.Errorf("member net = %d, want -3000", gb.Members[member]["USD"].Cents)
	}

	// Leave, then conflicting re-leave.
	rec = doJSON(t, srv, http.MethodPost, "/groups/"+g.ID.String()+"/leave", member, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("leave status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPost, "/groups/"+g.ID.String()+"/leave", member, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double leave status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/groups/"+uuid.New().String(), uuid.Nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown group status = %d, want 404", rec.Code)
	}
}
