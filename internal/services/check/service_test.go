package check

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/catalog"
	"restaurant-pos/internal/customer"
	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/services/payment"
	"restaurant-pos/internal/services/shift"
	"restaurant-pos/internal/services/table"
	"restaurant-pos/internal/storage/memory"
)

type testEnv struct {
	checks *Service
	shifts *shift.Service
	tables *table.Service
	shift  *models.Shift
	table  *models.Table
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()
	store := memory.New()
	clock := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	menu := catalog.NewStatic()
	menu.Put(models.CatalogRef{ProductID: "burger"}, "", "Burger", money("100"))
	menu.Put(models.CatalogRef{ProductID: "fries"}, "", "Fries", money("50"))
	menu.Put(models.CatalogRef{ProductID: "cola"}, "large", "Cola (L)", money("35"))
	menu.Put(models.CatalogRef{ComboID: "meal-1"}, "", "Burger Meal", money("165"))

	shifts := shift.NewService(store, log)
	tables := table.NewService(store, log)
	payments := payment.NewService(store, customer.NewMemoryLedger(), shifts, tables, events.Nop{}, log, models.DefaultTaxRate)
	payments.SetClock(clock)

	env := &testEnv{
		checks: NewService(store, menu, shifts, tables, payments, events.Nop{}, log, models.DefaultTaxRate),
		shifts: shifts,
		tables: tables,
	}
	env.checks.SetClock(clock)

	var err error
	env.shift, err = shifts.StartShift(ctx, &models.StartShiftRequest{EmployeeID: "emp-1", OpeningCash: money("500")}, "req")
	if err != nil {
		t.Fatalf("StartShift: %v", err)
	}
	env.table, err = tables.AddTable(ctx, 7, 4, "main")
	if err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	return env
}

func money(s string) decimal.Decimal {
	return models.MoneyFromString(s)
}

func strPtr(s string) *string {
	return &s
}

func product(id string, qty int) models.ItemRequest {
	return models.ItemRequest{CatalogRef: models.CatalogRef{ProductID: id}, Quantity: qty}
}

// openScenario opens 2 x burger + 1 x fries at the test table
func (e *testEnv) openScenario(t *testing.T) *models.Check {
	t.Helper()
	c, err := e.checks.OpenCheck(context.Background(), &models.OpenCheckRequest{
		TableID:     strPtr(e.table.ID),
		ShiftID:     strPtr(e.shift.ID),
		ServiceType: "dine-in",
		Items:       []models.ItemRequest{product("burger", 2), product("fries", 1)},
	}, "req")
	if err != nil {
		t.Fatalf("OpenCheck: %v", err)
	}
	return c
}

func assertTotals(t *testing.T, c *models.Check, subtotal, tax, total string) {
	t.Helper()
	if !c.Subtotal.Equal(money(subtotal)) || !c.TaxAmount.Equal(money(tax)) || !c.TotalAmount.Equal(money(total)) {
		t.Fatalf("totals = %s/%s/%s, want %s/%s/%s", c.Subtotal, c.TaxAmount, c.TotalAmount, subtotal, tax, total)
	}
	// total = subtotal - discount + tax after every mutation
	if !c.TotalAmount.Equal(c.Subtotal.Sub(c.DiscountAmount).Add(c.TaxAmount)) {
		t.Fatalf("total identity broken: %+v", c)
	}
}

func TestOpenCheck_DineInScenario(t *testing.T) {
	env := newEnv(t)
	c := env.openScenario(t)

	assertTotals(t, c, "250", "20", "270")
	if c.Status != models.CheckOpen || c.OrderType != models.OrderPOS || c.Version != 1 {
		t.Fatalf("check = %+v", c)
	}
	if c.OrderNumber != "ORD_20240501_001" {
		t.Fatalf("order number = %s", c.OrderNumber)
	}
	if c.TableNumber == nil || *c.TableNumber != 7 {
		t.Fatalf("table number = %v", c.TableNumber)
	}

	tbl, _ := env.tables.GetTable(context.Background(), env.table.ID)
	if tbl.Status != models.TableOccupied || len(tbl.OpenCheckIDs) != 1 || tbl.OpenCheckIDs[0] != c.ID {
		t.Fatalf("table = %+v", tbl)
	}
}

func TestOpenCheck_CounterAndOnlineOrders(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	counter, err := env.checks.OpenCheck(ctx, &models.OpenCheckRequest{
		ShiftID:     strPtr(env.shift.ID),
		ServiceType: "pick-up",
		Items:       []models.ItemRequest{{CatalogRef: models.CatalogRef{ComboID: "meal-1"}, Quantity: 1}},
	}, "req")
	if err != nil {
		t.Fatalf("counter sale: %v", err)
	}
	if counter.Status != models.CheckReceived || counter.OrderType != models.OrderPOS || counter.TableID != nil {
		t.Fatalf("counter = %+v", counter)
	}

	online, err := env.checks.OpenCheck(ctx, &models.OpenCheckRequest{
		ServiceType: "delivery",
		CustomerID:  strPtr("cust-9"),
		Items:       []models.ItemRequest{{CatalogRef: models.CatalogRef{ProductID: "cola"}, Size: "LARGE", Quantity: 2}},
	}, "req")
	if err != nil {
		t.Fatalf("online order: %v", err)
	}
	if online.OrderType != models.OrderOnline || online.ShiftID != nil || online.Items[0].Name != "Cola (L)" {
		t.Fatalf("online = %+v", online)
	}
	if online.OrderNumber != "ORD_20240501_002" {
		t.Fatalf("order numbers not sequential: %s", online.OrderNumber)
	}
	assertTotals(t, online, "70", "5.60", "75.60")
}

func TestOpenCheck_MergesIdenticalGroupings(t *testing.T) {
	env := newEnv(t)
	burger := product("burger", 1)
	noOnion := product("burger", 1)
	noOnion.Notes = "no onion"

	c, err := env.checks.OpenCheck(context.Background(), &models.OpenCheckRequest{
		ShiftID:     strPtr(env.shift.ID),
		ServiceType: "pick-up",
		Items:       []models.ItemRequest{burger, noOnion, burger},
	}, "req")
	if err != nil {
		t.Fatalf("OpenCheck: %v", err)
	}
	if len(c.Items) != 2 || c.Items[0].Quantity != 2 || c.Items[1].Notes != "no onion" {
		t.Fatalf("items = %+v", c.Items)
	}
	assertTotals(t, c, "300", "24", "324")
}

func TestOpenCheck_Rejections(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	closed, err := env.shifts.StartShift(ctx, &models.StartShiftRequest{EmployeeID: "emp-2"}, "req")
	if err != nil {
		t.Fatalf("StartShift: %v", err)
	}
	if _, err := env.shifts.EndShift(ctx, closed.ID, &models.EndShiftRequest{}, "req"); err != nil {
		t.Fatalf("EndShift: %v", err)
	}

	tests := []struct {
		name    string
		req     models.OpenCheckRequest
		wantErr error
	}{
		{"dine-in without table", models.OpenCheckRequest{ServiceType: "dine-in", Items: []models.ItemRequest{product("burger", 1)}}, poserr.ErrValidation},
		{"table on pick-up", models.OpenCheckRequest{TableID: strPtr(env.table.ID), ServiceType: "pick-up", Items: []models.ItemRequest{product("burger", 1)}}, poserr.ErrValidation},
		{"unknown service type", models.OpenCheckRequest{ServiceType: "drive-thru", Items: []models.ItemRequest{product("burger", 1)}}, poserr.ErrValidation},
		{"empty items", models.OpenCheckRequest{ServiceType: "pick-up"}, poserr.ErrValidation},
		{"zero quantity", models.OpenCheckRequest{ServiceType: "pick-up", Items: []models.ItemRequest{product("burger", 0)}}, poserr.ErrValidation},
		{"too many", models.OpenCheckRequest{ServiceType: "pick-up", Items: []models.ItemRequest{product("burger", 100)}}, poserr.ErrValidation},
		{"both product and combo", models.OpenCheckRequest{ServiceType: "pick-up", Items: []models.ItemRequest{{CatalogRef: models.CatalogRef{ProductID: "burger", ComboID: "meal-1"}, Quantity: 1}}}, poserr.ErrValidation},
		{"unknown catalog item", models.OpenCheckRequest{ServiceType: "pick-up", Items: []models.ItemRequest{product("pizza", 1)}}, poserr.ErrNotFound},
		{"unknown table", models.OpenCheckRequest{TableID: strPtr("nope"), ServiceType: "dine-in", Items: []models.ItemRequest{product("burger", 1)}}, poserr.ErrNotFound},
		{"unknown shift", models.OpenCheckRequest{ShiftID: strPtr("nope"), ServiceType: "pick-up", Items: []models.ItemRequest{product("burger", 1)}}, poserr.ErrNotFound},
		{"closed shift", models.OpenCheckRequest{ShiftID: strPtr(closed.ID), ServiceType: "pick-up", Items: []models.ItemRequest{product("burger", 1)}}, poserr.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.checks.OpenCheck(ctx, &tt.req, "req"); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	tbl, _ := env.tables.GetTable(ctx, env.table.ID)
	if tbl.Status != models.TableAvailable {
		t.Fatalf("rejected open touched the table: %+v", tbl)
	}
}

func TestOpenCheck_ConcurrentSameTableHasOneWinner(t *testing.T) {
	env := newEnv(t)
	const terminals = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < terminals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.checks.OpenCheck(context.Background(), &models.OpenCheckRequest{
				TableID:     strPtr(env.table.ID),
				ServiceType: "dine-in",
				Items:       []models.ItemRequest{product("fries", 1)},
			}, "req")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, poserr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 || conflicts != terminals-1 {
		t.Fatalf("winners = %d, conflicts = %d", winners, conflicts)
	}
	tbl, _ := env.tables.GetTable(context.Background(), env.table.ID)
	if len(tbl.OpenCheckIDs) != 1 {
		t.Fatalf("open checks = %v", tbl.OpenCheckIDs)
	}
}

func TestAddItems(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.openScenario(t)

	got, err := env.checks.AddItems(ctx, c.ID, &models.AddItemsRequest{Items: []models.ItemRequest{product("burger", 1), product("cola", 1)}}, "req")
	if !errors.Is(err, poserr.ErrNotFound) {
		t.Fatalf("cola without size: got %v, want not found", err)
	}

	got, err = env.checks.AddItems(ctx, c.ID, &models.AddItemsRequest{Items: []models.ItemRequest{product("burger", 1)}}, "req")
	if err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0].Quantity != 3 {
		t.Fatalf("items = %+v", got.Items)
	}
	assertTotals(t, got, "350", "28", "378")

	if _, err := env.checks.BillOut(ctx, c.ID, &models.BillOutRequest{Single: &models.SettleRequest{PaymentMethod: "card"}}, "req"); err != nil {
		t.Fatalf("BillOut: %v", err)
	}
	_, err = env.checks.AddItems(ctx, c.ID, &models.AddItemsRequest{Items: []models.ItemRequest{product("fries", 1)}}, "req")
	if !errors.Is(err, poserr.ErrInvalidState) {
		t.Fatalf("add to settled check: got %v", err)
	}
}

func TestAddItems_LargeMergedQuantity(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.openScenario(t)

	got, err := env.checks.AddItems(ctx, c.ID, &models.AddItemsRequest{Items: []models.ItemRequest{product("burger", 150)}}, "req")
	if err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0].Quantity != 152 {
		t.Fatalf("items = %+v", got.Items)
	}
	assertTotals(t, got, "15250", "1220", "16470")
}

func TestAdjustItem_VoidScenario(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.openScenario(t)
	fries := c.Items[1].ID

	void := &models.AdjustItemRequest{Type: "void", Reason: "sent back", Actor: "mgr-1"}
	got, err := env.checks.AdjustItem(ctx, c.ID, fries, void, "req")
	if err != nil {
		t.Fatalf("AdjustItem: %v", err)
	}
	assertTotals(t, got, "200", "16", "216")
	item := got.Items[1]
	if item.Status != models.ItemVoided || item.AdjustedBy != "mgr-1" || item.AdjustReason != "sent back" || item.AdjustedAt == nil {
		t.Fatalf("voided item = %+v", item)
	}

	if _, err := env.checks.AdjustItem(ctx, c.ID, fries, void, "req"); !errors.Is(err, poserr.ErrInvalidState) {
		t.Fatalf("second void: got %v", err)
	}
	if _, err := env.checks.AdjustItem(ctx, c.ID, "ghost", void, "req"); !errors.Is(err, poserr.ErrNotFound) {
		t.Fatalf("unknown item: got %v", err)
	}
	blank := &models.AdjustItemRequest{Type: "comp", Reason: " ", Actor: "mgr-1"}
	if _, err := env.checks.AdjustItem(ctx, c.ID, c.Items[0].ID, blank, "req"); !errors.Is(err, poserr.ErrValidation) {
		t.Fatalf("blank reason: got %v", err)
	}

	comp := &models.AdjustItemRequest{Type: "comp", Reason: "birthday", Actor: "mgr-1"}
	got, err = env.checks.AdjustItem(ctx, c.ID, c.Items[0].ID, comp, "req")
	if err != nil {
		t.Fatalf("comp: %v", err)
	}
	assertTotals(t, got, "0", "0", "0")
}

func TestAdjustItem_SettledCheck(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.openScenario(t)

	bill := &models.BillOutRequest{Single: &models.SettleRequest{PaymentMethod: "cash", AmountReceived: decimal.NewNullDecimal(money("300"))}}
	res, err := env.checks.BillOut(ctx, c.ID, bill, "req")
	if err != nil {
		t.Fatalf("BillOut: %v", err)
	}
	if !res.Change.Equal(money("30")) {
		t.Fatalf("change = %s", res.Change)
	}

	void := &models.AdjustItemRequest{Type: "void", Reason: "late", Actor: "mgr-1"}
	if _, err := env.checks.AdjustItem(ctx, c.ID, c.Items[0].ID, void, "req"); !errors.Is(err, poserr.ErrInvalidState) {
		t.Fatalf("adjust settled check: got %v", err)
	}
}

func TestSplitCheck(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.openScenario(t)
	burgers, fries := c.Items[0].ID, c.Items[1].ID

	res, err := env.checks.SplitCheck(ctx, c.ID, &models.SplitCheckRequest{LineItemIDs: []string{fries}}, "req")
	if err != nil {
		t.Fatalf("SplitCheck: %v", err)
	}

	source, sibling := res.Source, res.New
	if len(source.Items) != 1 || source.Items[0].ID != burgers {
		t.Fatalf("source items = %+v", source.Items)
	}
	if len(sibling.Items) != 1 || sibling.Items[0].ID != fries || sibling.Items[0].CheckID != sibling.ID {
		t.Fatalf("sibling items = %+v", sibling.Items)
	}
	assertTotals(t, source, "200", "16", "216")
	assertTotals(t, sibling, "50", "4", "54")
	if !source.Subtotal.Add(sibling.Subtotal).Equal(money("250")) {
		t.Fatalf("split changed the combined subtotal")
	}
	if sibling.SplitFromID == nil || *sibling.SplitFromID != c.ID || *sibling.TableID != env.table.ID || *sibling.ShiftID != env.shift.ID {
		t.Fatalf("sibling = %+v", sibling)
	}
	if !sibling.CreatedAt.Equal(c.CreatedAt) || sibling.OrderNumber == c.OrderNumber {
		t.Fatalf("sibling identity = %s at %s", sibling.OrderNumber, sibling.CreatedAt)
	}

	tbl, _ := env.tables.GetTable(ctx, env.table.ID)
	if len(tbl.OpenCheckIDs) != 2 {
		t.Fatalf("table open checks = %v", tbl.OpenCheckIDs)
	}

	card := &models.BillOutRequest{Single: &models.SettleRequest{PaymentMethod: "card"}}
	if _, err := env.checks.BillOut(ctx, source.ID, card, "req"); err != nil {
		t.Fatalf("BillOut source: %v", err)
	}
	if tbl, _ := env.tables.GetTable(ctx, env.table.ID); tbl.Status != models.TableOccupied {
		t.Fatalf("table released with the split check still open")
	}

	split := &models.BillOutRequest{Split: &models.SettleSplitRequest{Payments: []models.PaymentLeg{{Method: models.MethodCash, Amount: money("60")}}}}
	res2, err := env.checks.BillOut(ctx, sibling.ID, split, "req")
	if err != nil {
		t.Fatalf("BillOut sibling: %v", err)
	}
	if !res2.Change.Equal(money("6")) || res2.Check.PaymentMethod != models.MethodCash {
		t.Fatalf("sibling settle = %+v", res2)
	}
	if tbl, _ := env.tables.GetTable(ctx, env.table.ID); tbl.Status != models.TableAvailable {
		t.Fatalf("table not released after last bill-out: %+v", tbl)
	}
}

func TestSplitCheck_EveryActiveItem(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.openScenario(t)
	moving := []string{c.Items[0].ID, c.Items[1].ID}

	res, err := env.checks.SplitCheck(ctx, c.ID, &models.SplitCheckRequest{LineItemIDs: moving}, "req")
	if err != nil {
		t.Fatalf("SplitCheck: %v", err)
	}

	union := make(map[string]bool)
	for _, li := range res.Source.Items {
		union[li.ID] = true
	}
	if len(res.New.Items) != len(moving) {
		t.Fatalf("new check items = %+v", res.New.Items)
	}
	for i, li := range res.New.Items {
		if li.ID != moving[i] {
			t.Fatalf("new check item %d = %s, want %s", i, li.ID, moving[i])
		}
		if union[li.ID] {
			t.Fatalf("item %s on both checks", li.ID)
		}
		union[li.ID] = true
	}
	for _, li := range c.Items {
		if !union[li.ID] {
			t.Fatalf("item %s lost by the split", li.ID)
		}
	}
	if len(union) != len(c.Items) {
		t.Fatalf("split produced %d items from %d", len(union), len(c.Items))
	}

	assertTotals(t, res.Source, "0", "0", "0")
	assertTotals(t, res.New, "250", "20", "270")
	if res.Source.Status != models.CheckOpen {
		t.Fatalf("source status = %s", res.Source.Status)
	}
	tbl, _ := env.tables.GetTable(ctx, env.table.ID)
	if len(tbl.OpenCheckIDs) != 2 {
		t.Fatalf("table open checks = %v", tbl.OpenCheckIDs)
	}
}

func TestSplitCheck_Rejections(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.openScenario(t)
	fries := c.Items[1].ID

	void := &models.AdjustItemRequest{Type: "void", Reason: "dropped", Actor: "mgr-1"}
	if _, err := env.checks.AddItems(ctx, c.ID, &models.AddItemsRequest{Items: []models.ItemRequest{product("cola", 1)}}, "req"); !errors.Is(err, poserr.ErrNotFound) {
		t.Fatalf("AddItems: %v", err)
	}
	withCola, err := env.checks.AddItems(ctx, c.ID, &models.AddItemsRequest{Items: []models.ItemRequest{{CatalogRef: models.CatalogRef{ProductID: "cola"}, Size: "large", Quantity: 1}}}, "req")
	if err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	cola := withCola.Items[2].ID
	if _, err := env.checks.AdjustItem(ctx, c.ID, cola, void, "req"); err != nil {
		t.Fatalf("AdjustItem: %v", err)
	}

	tests := []struct {
		name string
		ids  []string
	}{
		{"empty", nil},
		{"duplicate", []string{fries, fries}},
		{"not on check", []string{"ghost"}},
		{"voided item", []string{cola}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.checks.SplitCheck(ctx, c.ID, &models.SplitCheckRequest{LineItemIDs: tt.ids}, "req")
			if !errors.Is(err, poserr.ErrValidation) {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}

	got, _ := env.checks.GetCheck(ctx, c.ID)
	if len(got.Items) != 3 {
		t.Fatalf("rejected split changed the check: %+v", got.Items)
	}
}

func TestBillOut_RequiresExactlyOneSettlement(t *testing.T) {
	env := newEnv(t)
	c := env.openScenario(t)

	both := &models.BillOutRequest{
		Single: &models.SettleRequest{PaymentMethod: "card"},
		Split:  &models.SettleSplitRequest{Payments: []models.PaymentLeg{{Method: models.MethodCard, Amount: money("270")}}},
	}
	for _, req := range []*models.BillOutRequest{{}, both} {
		if _, err := env.checks.BillOut(context.Background(), c.ID, req, "req"); !errors.Is(err, poserr.ErrValidation) {
			t.Fatalf("got %v, want validation error", err)
		}
	}
}

func TestRefund_ThroughCheckEngine(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.openScenario(t)

	if _, err := env.checks.BillOut(ctx, c.ID, &models.BillOutRequest{Single: &models.SettleRequest{PaymentMethod: "gcash"}}, "req"); err != nil {
		t.Fatalf("BillOut: %v", err)
	}
	got, err := env.checks.Refund(ctx, c.ID, &models.RefundRequest{Reason: "wrong order", Actor: "mgr-1"}, "req")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got.Status != models.CheckRefunded {
		t.Fatalf("status = %s", got.Status)
	}
	sh, _ := env.shifts.GetShift(ctx, env.shift.ID)
	if sh.OrderCount != 0 || !sh.RunningTotal.IsZero() {
		t.Fatalf("shift = %+v", sh)
	}
}
