package models

import (
	"testing"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/poserr"
)

func burger(qty int) ItemRequest {
	return ItemRequest{CatalogRef: CatalogRef{ProductID: "burger"}, Quantity: qty}
}

func TestOpenCheckRequest_Validate(t *testing.T) {
	table := "table-1"
	empty := ""

	tests := []struct {
		name      string
		req       *OpenCheckRequest
		wantField string
	}{
		{
			name: "valid dine-in",
			req:  &OpenCheckRequest{TableID: &table, ServiceType: "dine-in", Items: []ItemRequest{burger(2)}},
		},
		{
			name: "valid pick-up",
			req:  &OpenCheckRequest{ServiceType: "pick-up", Items: []ItemRequest{burger(1)}},
		},
		{
			name:      "invalid service type",
			req:       &OpenCheckRequest{ServiceType: "drive-thru", Items: []ItemRequest{burger(1)}},
			wantField: "service_type",
		},
		{
			name:      "dine-in without table",
			req:       &OpenCheckRequest{TableID: &empty, ServiceType: "dine-in", Items: []ItemRequest{burger(1)}},
			wantField: "table_id",
		},
		{
			name:      "delivery at a table",
			req:       &OpenCheckRequest{TableID: &table, ServiceType: "delivery", Items: []ItemRequest{burger(1)}},
			wantField: "table_id",
		},
		{
			name:      "no items",
			req:       &OpenCheckRequest{ServiceType: "pick-up"},
			wantField: "items",
		},
		{
			name: "product and combo together",
			req: &OpenCheckRequest{ServiceType: "pick-up", Items: []ItemRequest{
				{CatalogRef: CatalogRef{ProductID: "burger", ComboID: "meal-1"}, Quantity: 1},
			}},
			wantField: "items[0]",
		},
		{
			name:      "zero quantity",
			req:       &OpenCheckRequest{ServiceType: "pick-up", Items: []ItemRequest{burger(1), burger(0)}},
			wantField: "items[1].quantity",
		},
		{
			name: "large catering quantity",
			req:  &OpenCheckRequest{ServiceType: "pick-up", Items: []ItemRequest{burger(250)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertField(t, tt.req.Validate(), tt.wantField)
		})
	}
}

func TestSettleRequest_Validate(t *testing.T) {
	customer := "cust-1"
	amount := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(MoneyFromString(s)) }

	tests := []struct {
		name      string
		req       *SettleRequest
		wantField string
	}{
		{name: "cash", req: &SettleRequest{PaymentMethod: "cash", AmountReceived: amount("300")}},
		{name: "card without amount", req: &SettleRequest{PaymentMethod: "card"}},
		{name: "credit", req: &SettleRequest{PaymentMethod: "credit", CustomerID: &customer}},
		{name: "unknown method", req: &SettleRequest{PaymentMethod: "cheque"}, wantField: "payment_method"},
		{name: "cash without amount", req: &SettleRequest{PaymentMethod: "cash"}, wantField: "amount_received"},
		{name: "negative amount", req: &SettleRequest{PaymentMethod: "gcash", AmountReceived: amount("-1")}, wantField: "amount_received"},
		{name: "credit without customer", req: &SettleRequest{PaymentMethod: "credit"}, wantField: "customer_id"},
		{
			name:      "negative discount",
			req:       &SettleRequest{PaymentMethod: "card", DiscountAmount: amount("-5")},
			wantField: "discount_amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertField(t, tt.req.Validate(), tt.wantField)
		})
	}
}

func TestSettleSplitRequest_Validate(t *testing.T) {
	leg := func(method PaymentMethod, amount, customer string) PaymentLeg {
		return PaymentLeg{Method: method, Amount: MoneyFromString(amount), CustomerID: customer}
	}

	tests := []struct {
		name      string
		legs      []PaymentLeg
		wantField string
	}{
		{name: "cash and gcash", legs: []PaymentLeg{leg(MethodCash, "150", ""), leg(MethodGCash, "120", "")}},
		{name: "no legs", wantField: "payments"},
		{name: "unknown method", legs: []PaymentLeg{leg(PaymentMethod("cheque"), "10", "")}, wantField: "payments[0].method"},
		{name: "zero amount", legs: []PaymentLeg{leg(MethodCash, "10", ""), leg(MethodCard, "0", "")}, wantField: "payments[1].amount"},
		{name: "credit without customer", legs: []PaymentLeg{leg(MethodCredit, "10", "")}, wantField: "payments[0].customer_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &SettleSplitRequest{Payments: tt.legs}
			assertField(t, req.Validate(), tt.wantField)
		})
	}
}

func TestSplitAndAdjustRequests_Validate(t *testing.T) {
	tests := []struct {
		name      string
		validate  func() error
		wantField string
	}{
		{
			name:     "split",
			validate: (&SplitCheckRequest{LineItemIDs: []string{"a", "b"}}).Validate,
		},
		{
			name:      "split empty",
			validate:  (&SplitCheckRequest{}).Validate,
			wantField: "line_item_ids",
		},
		{
			name:      "split duplicate",
			validate:  (&SplitCheckRequest{LineItemIDs: []string{"a", "a"}}).Validate,
			wantField: "line_item_ids[1]",
		},
		{
			name:     "void",
			validate: (&AdjustItemRequest{Type: "void", Reason: "wrong item", Actor: "emp-1"}).Validate,
		},
		{
			name:      "unknown adjustment",
			validate:  (&AdjustItemRequest{Type: "discount", Reason: "x", Actor: "emp-1"}).Validate,
			wantField: "type",
		},
		{
			name:      "comp without reason",
			validate:  (&AdjustItemRequest{Type: "comp", Reason: "  ", Actor: "emp-1"}).Validate,
			wantField: "reason",
		},
		{
			name:      "refund without actor",
			validate:  (&RefundRequest{Reason: "cold food"}).Validate,
			wantField: "actor",
		},
		{
			name:      "shift with negative float",
			validate:  (&StartShiftRequest{EmployeeID: "emp-1", OpeningCash: MoneyFromString("-1")}).Validate,
			wantField: "opening_cash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertField(t, tt.validate(), tt.wantField)
		})
	}
}

func assertField(t *testing.T, err error, wantField string) {
	t.Helper()
	if wantField == "" {
		if err != nil {
			t.Fatalf("Validate() error = %v, want nil", err)
		}
		return
	}
	if poserr.KindOf(err) != poserr.KindValidation || poserr.FieldOf(err) != wantField {
		t.Fatalf("Validate() error = %v, want validation error on %s", err, wantField)
	}
}
