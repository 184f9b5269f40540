package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func line(id string, qty int, price string) LineItem {
	return LineItem{
		ID:         id,
		CatalogRef: CatalogRef{ProductID: "p-" + id},
		Name:       id,
		Quantity:   qty,
		UnitPrice:  MoneyFromString(price),
		Status:     ItemActive,
	}
}

func TestCheck_Recalculate(t *testing.T) {
	c := &Check{Items: []LineItem{line("a", 2, "100"), line("b", 1, "50")}}
	c.Recalculate(DefaultTaxRate)

	assertMoney(t, "subtotal", c.Subtotal, "250.00")
	assertMoney(t, "tax", c.TaxAmount, "20.00")
	assertMoney(t, "total", c.TotalAmount, "270.00")

	c.Items[1].Status = ItemVoided
	c.Recalculate(DefaultTaxRate)

	assertMoney(t, "subtotal after void", c.Subtotal, "200.00")
	assertMoney(t, "total after void", c.TotalAmount, "216.00")
	if len(c.Items) != 2 || c.Items[1].Status != ItemVoided {
		t.Fatalf("voided item must stay on the check")
	}
	assertMoney(t, "voided subtotal", c.Items[1].Subtotal, "0")
}

func TestCheck_RecalculateDiscount(t *testing.T) {
	tests := []struct {
		name         string
		discount     string
		wantDiscount string
		wantTax      string
		wantTotal    string
	}{
		{"no discount", "0", "0", "8.00", "108.00"},
		{"partial discount", "10", "10", "7.20", "97.20"},
		{"discount clamped to subtotal", "150", "100", "0", "0"},
		{"discount rounded to cents", "0.0625", "0.06", "8.00", "107.94"},
		{"tax on discounted base", "93.75", "93.75", "0.50", "6.75"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Check{Items: []LineItem{line("a", 1, "100")}, DiscountAmount: decimal.RequireFromString(tt.discount)}
			c.Recalculate(DefaultTaxRate)
			assertMoney(t, "discount", c.DiscountAmount, tt.wantDiscount)
			assertMoney(t, "tax", c.TaxAmount, tt.wantTax)
			assertMoney(t, "total", c.TotalAmount, tt.wantTotal)
		})
	}
}

func TestLineItem_SameGrouping(t *testing.T) {
	li := line("a", 1, "12.50")
	li.Size = "large"

	if !li.SameGrouping(li.CatalogRef, "large", "", MoneyFromString("12.50")) {
		t.Fatalf("expected identical grouping to match")
	}
	if li.SameGrouping(li.CatalogRef, "small", "", MoneyFromString("12.50")) {
		t.Fatalf("different size must not match")
	}
	li.Status = ItemComped
	if li.SameGrouping(li.CatalogRef, "large", "", MoneyFromString("12.50")) {
		t.Fatalf("adjusted lines never absorb new quantity")
	}
}

func TestCatalogRef_Valid(t *testing.T) {
	tests := []struct {
		ref  CatalogRef
		want bool
	}{
		{CatalogRef{ProductID: "p"}, true},
		{CatalogRef{ComboID: "c"}, true},
		{CatalogRef{}, false},
		{CatalogRef{ProductID: "p", ComboID: "c"}, false},
	}
	for _, tt := range tests {
		if got := tt.ref.Valid(); got != tt.want {
			t.Errorf("%+v.Valid() = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestGenerateOrderNumber(t *testing.T) {
	date := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	if got := GenerateOrderNumber(date, 7); got != "ORD_20240309_007" {
		t.Fatalf("GenerateOrderNumber = %q", got)
	}
}

func TestUrgencyFor(t *testing.T) {
	tests := []struct {
		age  int64
		want Urgency
	}{
		{0, UrgencyNormal},
		{180, UrgencyNormal},
		{181, UrgencyWarning},
		{300, UrgencyWarning},
		{301, UrgencyCritical},
	}
	for _, tt := range tests {
		if got := UrgencyFor(tt.age); got != tt.want {
			t.Errorf("UrgencyFor(%d) = %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestNewTicket_SkipsVoidedLines(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := &Check{
		ID:        "c1",
		Status:    CheckOpen,
		CreatedAt: created,
		Items:     []LineItem{line("a", 1, "1"), line("b", 1, "1")},
	}
	c.Items[1].Status = ItemVoided

	ticket := NewTicket(c, created.Add(200*time.Second))
	if len(ticket.Items) != 1 || ticket.Items[0].Name != "a" {
		t.Fatalf("unexpected ticket items: %+v", ticket.Items)
	}
	if ticket.AgeSeconds != 200 || ticket.Urgency != UrgencyWarning {
		t.Fatalf("age %d urgency %s", ticket.AgeSeconds, ticket.Urgency)
	}
}

func TestTable_AttachDetach(t *testing.T) {
	tbl := &Table{ID: "t1", Status: TableAvailable}
	tbl.AttachCheck("c1")
	tbl.AttachCheck("c2")
	tbl.AttachCheck("c1")

	if tbl.Status != TableOccupied || len(tbl.OpenCheckIDs) != 2 {
		t.Fatalf("unexpected table after attach: %+v", tbl)
	}
	tbl.DetachCheck("c1")
	if tbl.Status != TableOccupied {
		t.Fatalf("table must stay occupied while a check remains")
	}
	tbl.DetachCheck("c2")
	if tbl.Status != TableAvailable || tbl.HasOpenChecks() {
		t.Fatalf("table must be released once empty: %+v", tbl)
	}
}

func TestShift_CloseVariance(t *testing.T) {
	s := &Shift{Status: ShiftActive, OpeningCash: MoneyFromString("500.00")}
	s.ApplySale(MoneyFromString("250.75"), MoneyFromString("250.75"))
	s.ApplySale(MoneyFromString("40.00"), decimal.Zero)
	s.Close(MoneyFromString("750.75"), "", time.Now())

	assertMoney(t, "expected", s.ExpectedCash.Decimal, "750.75")
	assertMoney(t, "variance", s.CashVariance.Decimal, "0")
	assertMoney(t, "running", s.RunningTotal, "290.75")
	if s.OrderCount != 2 || s.Status != ShiftClosed || s.EndTime == nil {
		t.Fatalf("unexpected closed shift: %+v", s)
	}
}

func TestSettlement_CashNet(t *testing.T) {
	s := &Settlement{
		Payments: []PaymentLeg{
			{Method: MethodCash, Amount: MoneyFromString("200")},
			{Method: MethodGCash, Amount: MoneyFromString("120")},
		},
		Change: MoneyFromString("50"),
	}
	assertMoney(t, "cash net", s.CashNet(), "150")
}

func assertMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s = %s, want %s", label, got.String(), want)
	}
}
