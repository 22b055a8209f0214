package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/storage"
)

type capturePublisher struct {
	events []*amqp.LedgerEvent
}

func (p *capturePublisher) PublishLedgerEvent(_ context.Context, evt *amqp.LedgerEvent) error {
	p.events = append(p.events, evt)
	return nil
}

func usd(cents int64) core.Money {
	return core.Money{Cents: cents, Currency: "USD"}
}

func newTestService() (*Service, *storage.MemoryStore, *capturePublisher) {
	store := storage.NewMemoryStore()
	pub := &capturePublisher{}
	return NewService(store, pub, nil), store, pub
}

func TestCreatePersistsAndPublishes(t *testing.T) {
	svc, store, pub := newTestService()
	defer store.Close()
	ctx := context.Background()

	payer := uuid.New()
	alice := uuid.New()

	e, err := svc.Create(ctx, payer, CreateExpense{
		Description: "groceries",
		Amount:      usd(3000),
		Date:        time.Now(),
		Splits: []core.Split{
			{UserID: payer, Amount: usd(1500)},
			{UserID: alice, Amount: usd(1500)},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stored, err := store.GetExpense(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if stored.Description != "groceries" {
		t.Errorf("description = %q", stored.Description)
	}
	payerSplit, _ := stored.SplitFor(payer)
	if !payerSplit.Settled {
		t.Error("payer split should be settled on creation")
	}

	if len(pub.events) != 1 || pub.events[0].Kind != amqp.EventExpenseCreated {
		t.Fatalf("events = %+v, want one expense.created", pub.events)
	}
	if pub.events[0].ExpenseID != e.ID {
		t.Errorf("event expense id = %s, want %s", pub.events[0].ExpenseID, e.ID)
	}
}

func TestCreateRejectsBadSplitSum(t *testing.T) {
	svc, store, pub := newTestService()
	defer store.Close()

	payer := uuid.New()
	_, err := svc.Create(context.Background(), payer, CreateExpense{
		Description: "off by one",
		Amount:      usd(1000),
		Date:        time.Now(),
		Splits:      []core.Split{{UserID: payer, Amount: usd(999)}},
	})
	if !errors.Is(err, core.ErrInvalidSplitSum) {
		t.Errorf("err = %v, want ErrInvalidSplitSum", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("no event expected on rejected create, got %d", len(pub.events))
	}
}

func TestUpdateRequiresPayer(t *testing.T) {
	svc, store, _ := newTestService()
	defer store.Close()
	ctx := context.Background()

	payer := uuid.New()
	stranger := uuid.New()
	e, err := svc.Create(ctx, payer, CreateExpense{
		Description: "rent",
		Amount:      usd(1000),
		Date:        time.Now(),
		Splits:      []core.Split{{UserID: payer, Amount: usd(1000)}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	desc := "not yours"
	if _, err := svc.Update(ctx, e.ID, stranger, Patch{Description: &desc}); !errors.Is(err, core.ErrNotAuthorized) {
		t.Errorf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestUpdateAmountWithoutSplitsFailsSumCheck(t *testing.T) {
	svc, store, _ := newTestService()
	defer store.Close()
	ctx := context.Background()

	payer := uuid.New()
	alice := uuid.New()
	e, err := svc.Create(ctx, payer, CreateExpense{
		Description: "dinner",
		Amount:      usd(2000),
		Date:        time.Now(),
		Splits: []core.Split{
			{UserID: payer, Amount: usd(1000)},
			{UserID: alice, Amount: usd(1000)},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bigger := usd(3000)
	_, err = svc.Update(ctx, e.ID, payer, Patch{Amount: &bigger})
	if !errors.Is(err, core.ErrInvalidSplitSum) {
		t.Errorf("err = %v, want ErrInvalidSplitSum", err)
	}
}

func TestUpdateCarriesSettledForUnchangedShares(t *testing.T) {
	svc, store, pub := newTestService()
	defer store.Close()
	ctx := context.Background()

	payer := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	e, err := svc.Create(ctx, payer, CreateExpense{
		Description: "hotel",
		Amount:      usd(3000),
		Date:        time.Now(),
		Splits: []core.Split{
			{UserID: payer, Amount: usd(1000)},
			{UserID: alice, Amount: usd(1000)},
			{UserID: bob, Amount: usd(1000)},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.SettleSplit(ctx, e.ID, alice); err != nil {
		t.Fatalf("SettleSplit: %v", err)
	}

	// Re-price bob's share only; alice's stays settled, bob's resets.
	amount := usd(3500)
	updated, err := svc.Update(ctx, e.ID, payer, Patch{
		Amount: &amount,
		Splits: []core.Split{
			{UserID: payer, Amount: usd(1000)},
			{UserID: alice, Amount: usd(1000)},
			{UserID: bob, Amount: usd(1500)},
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	aliceSplit, _ := updated.SplitFor(alice)
	if !aliceSplit.Settled {
		t.Error("alice's unchanged share should stay settled")
	}
	bobSplit, _ := updated.SplitFor(bob)
	if bobSplit.Settled {
		t.Error("bob's re-priced share should reset to unsettled")
	}

	last := pub.events[len(pub.events)-1]
	if last.Kind != amqp.EventExpenseUpdated {
		t.Errorf("last event = %s, want expense.updated", last.Kind)
	}
}

func TestDeleteRequiresPayerAndRemoves(t *testing.T) {
	svc, store, pub := newTestService()
	defer store.Close()
	ctx := context.Background()

	payer := uuid.New()
	e, err := svc.Create(ctx, payer, CreateExpense{
		Description: "coffee",
		Amount:      usd(400),
		Date:        time.Now(),
		Splits:      []core.Split{{UserID: payer, Amount: usd(400)}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(ctx, e.ID, uuid.New()); !errors.Is(err, core.ErrNotAuthorized) {
		t.Fatalf("stranger delete err = %v, want ErrNotAuthorized", err)
	}

	if err := svc.Delete(ctx, e.ID, payer); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetExpense(ctx, e.ID); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Errorf("err after delete = %v, want ErrExpenseNotFound", err)
	}

	last := pub.events[len(pub.events)-1]
	if last.Kind != amqp.EventExpenseDeleted {
		t.Errorf("last event = %s, want expense.deleted", last.Kind)
	}

	if err := svc.Delete(ctx, e.ID, payer); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Errorf("second delete err = %v, want ErrExpenseNotFound", err)
	}
}
