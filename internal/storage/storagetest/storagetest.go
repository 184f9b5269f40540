// Package storagetest holds the contract tests every storage engine runs.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/storage"
)

// Factory returns a fresh, empty store for one test
type Factory func(t *testing.T) storage.Store

// Run executes the storage contract against the engine built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("Shifts", func(t *testing.T) { testShifts(t, newStore(t)) })
	t.Run("Tables", func(t *testing.T) { testTables(t, newStore(t)) })
	t.Run("Checks", func(t *testing.T) { testChecks(t, newStore(t)) })
	t.Run("OrderSequence", func(t *testing.T) { testOrderSequence(t, newStore(t)) })
	t.Run("Settlements", func(t *testing.T) { testSettlements(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

var errAbort = errors.New("abort")

func mustTx(t *testing.T, st storage.Store, fn func(tx storage.Tx) error) {
	t.Helper()
	if err := st.InTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newShift(employee string) *models.Shift {
	return &models.Shift{
		ID:          uuid.NewString(),
		EmployeeID:  employee,
		StartTime:   now(),
		OpeningCash: models.MoneyFromString("500.00"),
		Status:      models.ShiftActive,
	}
}

func testShifts(t *testing.T, st storage.Store) {
	ctx := context.Background()
	sh := newShift("emp-1")
	mustTx(t, st, func(tx storage.Tx) error { return tx.CreateShift(ctx, sh) })

	if sh.Version != 1 {
		t.Fatalf("created shift version = %d, want 1", sh.Version)
	}

	err := st.InTx(ctx, func(tx storage.Tx) error { return tx.CreateShift(ctx, newShift("emp-1")) })
	if !errors.Is(err, poserr.ErrConflict) {
		t.Fatalf("second active shift: got %v, want conflict", err)
	}

	var active *models.Shift
	mustTx(t, st, func(tx storage.Tx) error {
		var err error
		active, err = tx.FindActiveShift(ctx, "emp-1")
		return err
	})
	if active == nil || active.ID != sh.ID {
		t.Fatalf("FindActiveShift = %+v", active)
	}

	stale := *active
	active.ApplySale(models.MoneyFromString("250.75"), models.MoneyFromString("250.75"))
	mustTx(t, st, func(tx storage.Tx) error { return tx.SaveShift(ctx, active) })

	stale.OrderCount = 99
	err = st.InTx(ctx, func(tx storage.Tx) error { return tx.SaveShift(ctx, &stale) })
	if !errors.Is(err, poserr.ErrConflict) {
		t.Fatalf("stale save: got %v, want conflict", err)
	}

	active.Close(models.MoneyFromString("750.75"), "end of day", now())
	mustTx(t, st, func(tx storage.Tx) error { return tx.SaveShift(ctx, active) })

	var got *models.Shift
	err = st.View(ctx, func(tx storage.Tx) error {
		var err error
		got, err = tx.GetShift(ctx, sh.ID)
		return err
	})
	if err != nil {
		t.Fatalf("GetShift: %v", err)
	}
	if got.Status != models.ShiftClosed || got.OrderCount != 1 || got.EndTime == nil {
		t.Fatalf("unexpected stored shift: %+v", got)
	}
	if !got.CashVariance.Valid || !got.CashVariance.Decimal.IsZero() {
		t.Fatalf("cash variance = %v", got.CashVariance)
	}
	if !got.CashSalesTotal.Equal(decimal.RequireFromString("250.75")) {
		t.Fatalf("cash sales = %s", got.CashSalesTotal)
	}

	mustTx(t, st, func(tx storage.Tx) error {
		again, err := tx.FindActiveShift(ctx, "emp-1")
		if err != nil {
			return err
		}
		if again != nil {
			t.Errorf("closed shift returned as active")
		}
		return tx.CreateShift(ctx, newShift("emp-1"))
	})

	err = st.View(ctx, func(tx storage.Tx) error {
		_, err := tx.GetShift(ctx, "missing")
		return err
	})
	if !errors.Is(err, poserr.ErrNotFound) {
		t.Fatalf("missing shift: got %v", err)
	}
}

func testTables(t *testing.T, st storage.Store) {
	ctx := context.Background()
	t2 := &models.Table{ID: uuid.NewString(), Number: 2, Capacity: 4, Section: "main", Status: models.TableAvailable}
	t1 := &models.Table{ID: uuid.NewString(), Number: 1, Capacity: 2, Section: "window", Status: models.TableAvailable}
	mustTx(t, st, func(tx storage.Tx) error {
		if err := tx.CreateTable(ctx, t2); err != nil {
			return err
		}
		return tx.CreateTable(ctx, t1)
	})

	dup := &models.Table{ID: uuid.NewString(), Number: 1, Capacity: 2, Status: models.TableAvailable}
	err := st.InTx(ctx, func(tx storage.Tx) error { return tx.CreateTable(ctx, dup) })
	if !errors.Is(err, poserr.ErrConflict) {
		t.Fatalf("duplicate table number: got %v", err)
	}

	t1.AttachCheck("c-1")
	t1.AttachCheck("c-2")
	mustTx(t, st, func(tx storage.Tx) error { return tx.SaveTable(ctx, t1) })

	var tables []*models.Table
	mustTx(t, st, func(tx storage.Tx) error {
		var err error
		tables, err = tx.ListTables(ctx)
		return err
	})
	if len(tables) != 2 || tables[0].Number != 1 || tables[1].Number != 2 {
		t.Fatalf("ListTables order: %+v", tables)
	}
	if tables[0].Status != models.TableOccupied || len(tables[0].OpenCheckIDs) != 2 {
		t.Fatalf("open checks not persisted: %+v", tables[0])
	}

	stale := tables[1].Clone()
	tables[1].Status = models.TableReserved
	mustTx(t, st, func(tx storage.Tx) error { return tx.SaveTable(ctx, tables[1]) })
	stale.Status = models.TableNeedsCleaning
	err = st.InTx(ctx, func(tx storage.Tx) error { return tx.SaveTable(ctx, stale) })
	if !errors.Is(err, poserr.ErrConflict) {
		t.Fatalf("stale table save: got %v", err)
	}

	mustTx(t, st, func(tx storage.Tx) error { return tx.DeleteTable(ctx, tables[1]) })
	err = st.View(ctx, func(tx storage.Tx) error {
		_, err := tx.GetTable(ctx, t2.ID)
		return err
	})
	if !errors.Is(err, poserr.ErrNotFound) {
		t.Fatalf("deleted table still readable: %v", err)
	}
}

func newCheck(orderNumber string, created time.Time, status models.CheckStatus) *models.Check {
	id := uuid.NewString()
	c := &models.Check{
		ID:            id,
		OrderNumber:   orderNumber,
		OrderType:     models.OrderPOS,
		ServiceType:   models.PickUp,
		Status:        status,
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     created,
		UpdatedAt:     created,
		Items: []models.LineItem{
			{
				ID:         uuid.NewString(),
				CheckID:    id,
				CatalogRef: models.CatalogRef{ProductID: "burger"},
				Name:       "Classic Burger",
				Quantity:   2,
				UnitPrice:  models.MoneyFromString("100.00"),
				Status:     models.ItemActive,
			},
			{
				ID:         uuid.NewString(),
				CheckID:    id,
				CatalogRef: models.CatalogRef{ComboID: "meal"},
				Name:       "Meal",
				Quantity:   1,
				UnitPrice:  models.MoneyFromString("50.00"),
				Size:       "large",
				Notes:      "no onions",
				Status:     models.ItemActive,
			},
		},
	}
	c.Recalculate(models.DefaultTaxRate)
	return c
}

func testChecks(t *testing.T, st storage.Store) {
	ctx := context.Background()
	base := now()
	older := newCheck("ORD_1", base.Add(-time.Minute), models.CheckOpen)
	newer := newCheck("ORD_2", base, models.CheckReceived)
	done := newCheck("ORD_3", base.Add(-2*time.Minute), models.CheckCompleted)
	shiftID := "shift-1"
	older.ShiftID = &shiftID

	mustTx(t, st, func(tx storage.Tx) error {
		for _, c := range []*models.Check{newer, older, done} {
			if err := tx.CreateCheck(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})

	var got *models.Check
	mustTx(t, st, func(tx storage.Tx) error {
		var err error
		got, err = tx.GetCheck(ctx, older.ID)
		return err
	})
	if len(got.Items) != 2 || got.Items[0].Name != "Classic Burger" || got.Items[1].ComboID != "meal" {
		t.Fatalf("items not round-tripped in order: %+v", got.Items)
	}
	if got.Items[1].Notes != "no onions" || got.Items[1].Size != "large" {
		t.Fatalf("item details lost: %+v", got.Items[1])
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("270")) || got.ShiftID == nil || *got.ShiftID != shiftID {
		t.Fatalf("check fields lost: %+v", got)
	}

	adjustedAt := now()
	got.Items[1].Status = models.ItemVoided
	got.Items[1].AdjustReason = "wrong item"
	got.Items[1].AdjustedBy = "emp-1"
	got.Items[1].AdjustedAt = &adjustedAt
	got.Items = append(got.Items, models.LineItem{
		ID:         uuid.NewString(),
		CheckID:    got.ID,
		CatalogRef: models.CatalogRef{ProductID: "fries"},
		Name:       "Fries",
		Quantity:   3,
		UnitPrice:  models.MoneyFromString("50.00"),
		Status:     models.ItemActive,
	})
	got.Recalculate(models.DefaultTaxRate)
	stale := got.Clone()
	mustTx(t, st, func(tx storage.Tx) error { return tx.SaveCheck(ctx, got) })

	err := st.InTx(ctx, func(tx storage.Tx) error { return tx.SaveCheck(ctx, stale) })
	if !errors.Is(err, poserr.ErrConflict) {
		t.Fatalf("stale check save: got %v", err)
	}

	mustTx(t, st, func(tx storage.Tx) error {
		var err error
		got, err = tx.GetCheck(ctx, older.ID)
		return err
	})
	if len(got.Items) != 3 || got.Items[1].Status != models.ItemVoided || got.Items[1].AdjustReason != "wrong item" {
		t.Fatalf("adjustment not persisted: %+v", got.Items)
	}
	if got.Items[2].Name != "Fries" || !got.Subtotal.Equal(decimal.RequireFromString("350")) {
		t.Fatalf("added item not persisted: %+v", got)
	}

	var open []*models.Check
	err = st.View(ctx, func(tx storage.Tx) error {
		var err error
		open, err = tx.ListChecksByStatus(ctx, models.CheckReceived, models.CheckOpen)
		return err
	})
	if err != nil {
		t.Fatalf("ListChecksByStatus: %v", err)
	}
	if len(open) != 2 || open[0].ID != older.ID || open[1].ID != newer.ID {
		t.Fatalf("ListChecksByStatus order: %+v", open)
	}
}

func testOrderSequence(t *testing.T, st storage.Store) {
	ctx := context.Background()
	var seqs []int
	for i := 0; i < 3; i++ {
		mustTx(t, st, func(tx storage.Tx) error {
			seq, err := tx.NextOrderSequence(ctx, "20240101")
			seqs = append(seqs, seq)
			return err
		})
	}
	mustTx(t, st, func(tx storage.Tx) error {
		seq, err := tx.NextOrderSequence(ctx, "20240102")
		seqs = append(seqs, seq)
		return err
	})

	want := []int{1, 2, 3, 1}
	for i := range want {
		if seqs[i] != want[i] {
			t.Fatalf("sequences = %v, want %v", seqs, want)
		}
	}
}

func testSettlements(t *testing.T, st storage.Store) {
	ctx := context.Background()
	s := &models.Settlement{
		Token:         "tok-1",
		CheckID:       "check-1",
		OrderNumber:   "ORD_1",
		ShiftID:       "shift-1",
		PaymentMethod: models.MethodSplit,
		PaymentStatus: models.PaymentCredit,
		Payments: []models.PaymentLeg{
			{Method: models.MethodCash, Amount: models.MoneyFromString("150")},
			{Method: models.MethodCredit, Amount: models.MoneyFromString("120"), CustomerID: "cust-1"},
		},
		AmountDue:      models.MoneyFromString("270"),
		AmountTendered: models.MoneyFromString("270"),
		Change:         decimal.Zero,
		DiscountAmount: decimal.Zero,
		CreatedAt:      now(),
	}
	mustTx(t, st, func(tx storage.Tx) error { return tx.CreateSettlement(ctx, s) })

	err := st.InTx(ctx, func(tx storage.Tx) error {
		dup := *s
		dup.Token = "tok-2"
		return tx.CreateSettlement(ctx, &dup)
	})
	if !errors.Is(err, poserr.ErrConflict) {
		t.Fatalf("second settlement of one check: got %v", err)
	}

	err = st.View(ctx, func(tx storage.Tx) error {
		byToken, err := tx.FindSettlement(ctx, "tok-1")
		if err != nil {
			return err
		}
		if byToken == nil || len(byToken.Payments) != 2 || byToken.Payments[1].CustomerID != "cust-1" {
			t.Errorf("FindSettlement = %+v", byToken)
		}
		byCheck, err := tx.FindSettlementByCheck(ctx, "check-1")
		if err != nil {
			return err
		}
		if byCheck == nil || byCheck.Token != "tok-1" {
			t.Errorf("FindSettlementByCheck = %+v", byCheck)
		}
		missing, err := tx.FindSettlement(ctx, "nope")
		if err != nil {
			return err
		}
		if missing != nil {
			t.Errorf("unknown token returned %+v", missing)
		}
		list, err := tx.ListSettlementsByShift(ctx, "shift-1")
		if err != nil {
			return err
		}
		if len(list) != 1 || !list[0].AmountDue.Equal(decimal.RequireFromString("270")) {
			t.Errorf("ListSettlementsByShift = %+v", list)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func testRollback(t *testing.T, st storage.Store) {
	ctx := context.Background()
	sh := newShift("emp-rollback")
	err := st.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateShift(ctx, sh); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("InTx returned %v, want errAbort", err)
	}

	err = st.View(ctx, func(tx storage.Tx) error {
		found, err := tx.FindActiveShift(ctx, "emp-rollback")
		if err != nil {
			return err
		}
		if found != nil {
			t.Errorf("aborted write is visible: %+v", found)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}
