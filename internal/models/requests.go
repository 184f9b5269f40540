package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/poserr"
)

// StartShiftRequest represents the request to open a cashier shift
type StartShiftRequest struct {
	EmployeeID  string          `json:"employee_id"`
	OpeningCash decimal.Decimal `json:"opening_cash"`
	Notes       string          `json:"notes,omitempty"`
}

// Validate validates the start shift request
func (req *StartShiftRequest) Validate() error {
	if strings.TrimSpace(req.EmployeeID) == "" {
		return poserr.Validation("employee_id", "is required")
	}
	if req.OpeningCash.IsNegative() {
		return poserr.Validation("opening_cash", "must not be negative")
	}
	return nil
}

// EndShiftRequest represents the request to close a cashier shift
type EndShiftRequest struct {
	ClosingCash decimal.Decimal `json:"closing_cash"`
	Notes       string          `json:"notes,omitempty"`
}

// Validate validates the end shift request
func (req *EndShiftRequest) Validate() error {
	if req.ClosingCash.IsNegative() {
		return poserr.Validation("closing_cash", "must not be negative")
	}
	return nil
}

// ItemRequest asks for a catalog entry to be put on a check
type ItemRequest struct {
	CatalogRef
	Quantity int    `json:"quantity"`
	Size     string `json:"size,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// OpenCheckRequest represents the request to open a check or place an order
type OpenCheckRequest struct {
	TableID     *string       `json:"table_id,omitempty"`
	Items       []ItemRequest `json:"items"`
	ShiftID     *string       `json:"shift_id,omitempty"`
	ServiceType string        `json:"service_type"`
	CustomerID  *string       `json:"customer_id,omitempty"`
}

// Validate validates the open check request
func (req *OpenCheckRequest) Validate() error {
	serviceType, ok := ParseServiceType(req.ServiceType)
	if !ok {
		return poserr.Validation("service_type", "must be one of: dine-in, pick-up, delivery")
	}

	hasTable := req.TableID != nil && *req.TableID != ""
	if serviceType == DineIn && !hasTable {
		return poserr.Validation("table_id", "is required for dine-in checks")
	}
	if serviceType != DineIn && hasTable {
		return poserr.Validation("table_id", "must not be present for %s orders", serviceType)
	}

	return validateItems(req.Items)
}

// AddItemsRequest represents the request to extend an open check
type AddItemsRequest struct {
	Items []ItemRequest `json:"items"`
}

// Validate validates the add items request
func (req *AddItemsRequest) Validate() error {
	return validateItems(req.Items)
}

// AdjustItemRequest represents a void or comp of one line item
type AdjustItemRequest struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// Validate validates the adjust item request
func (req *AdjustItemRequest) Validate() error {
	switch AdjustmentType(req.Type) {
	case AdjustVoid, AdjustComp:
	default:
		return poserr.Validation("type", "must be one of: void, comp")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return poserr.Validation("reason", "is required")
	}
	if strings.TrimSpace(req.Actor) == "" {
		return poserr.Validation("actor", "is required")
	}
	return nil
}

// SplitCheckRequest names the active line items that move to a new check
type SplitCheckRequest struct {
	LineItemIDs []string `json:"line_item_ids"`
}

// Validate validates the split check request
func (req *SplitCheckRequest) Validate() error {
	if len(req.LineItemIDs) == 0 {
		return poserr.Validation("line_item_ids", "cannot be empty")
	}
	seen := make(map[string]bool, len(req.LineItemIDs))
	for i, id := range req.LineItemIDs {
		if id == "" {
			return poserr.Validation(fmt.Sprintf("line_item_ids[%d]", i), "is required")
		}
		if seen[id] {
			return poserr.Validation(fmt.Sprintf("line_item_ids[%d]", i), "duplicate line item %s", id)
		}
		seen[id] = true
	}
	return nil
}

// SettleRequest settles a check with a single tender
type SettleRequest struct {
	PaymentMethod   string              `json:"payment_method"`
	AmountReceived  decimal.NullDecimal `json:"amount_received"`
	CustomerID      *string             `json:"customer_id,omitempty"`
	DiscountAmount  decimal.NullDecimal `json:"discount_amount"`
	ShiftID         *string             `json:"shift_id,omitempty"`
	SettlementToken string              `json:"settlement_token,omitempty"`
}

// Validate validates the settle request
func (req *SettleRequest) Validate() error {
	method, ok := ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return poserr.Validation("payment_method", "must be one of: cash, card, gcash, credit")
	}
	if method == MethodCash && !req.AmountReceived.Valid {
		return poserr.Validation("amount_received", "is required for cash payments")
	}
	if req.AmountReceived.Valid && req.AmountReceived.Decimal.IsNegative() {
		return poserr.Validation("amount_received", "must not be negative")
	}
	if method == MethodCredit && (req.CustomerID == nil || *req.CustomerID == "") {
		return poserr.Validation("customer_id", "is required for credit payments")
	}
	return validateDiscount(req.DiscountAmount)
}

// SettleSplitRequest settles a check with several tenders
type SettleSplitRequest struct {
	Payments        []PaymentLeg        `json:"payments"`
	DiscountAmount  decimal.NullDecimal `json:"discount_amount"`
	ShiftID         *string             `json:"shift_id,omitempty"`
	SettlementToken string              `json:"settlement_token,omitempty"`
}

// Validate validates the split settle request
func (req *SettleSplitRequest) Validate() error {
	if len(req.Payments) == 0 {
		return poserr.Validation("payments", "cannot be empty")
	}
	for i, p := range req.Payments {
		prefix := fmt.Sprintf("payments[%d]", i)
		if _, ok := ParsePaymentMethod(string(p.Method)); !ok {
			return poserr.Validation(prefix+".method", "must be one of: cash, card, gcash, credit")
		}
		if !p.Amount.IsPositive() {
			return poserr.Validation(prefix+".amount", "must be positive")
		}
		if p.Method == MethodCredit && p.CustomerID == "" {
			return poserr.Validation(prefix+".customer_id", "is required for credit payments")
		}
	}
	return validateDiscount(req.DiscountAmount)
}

// TableStatusRequest represents a staff override of table status
type TableStatusRequest struct {
	Status string `json:"status"`
}

// RefundRequest represents the refund of a settled check
type RefundRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// Validate validates the refund request
func (req *RefundRequest) Validate() error {
	if strings.TrimSpace(req.Reason) == "" {
		return poserr.Validation("reason", "is required")
	}
	if strings.TrimSpace(req.Actor) == "" {
		return poserr.Validation("actor", "is required")
	}
	return nil
}

func validateDiscount(d decimal.NullDecimal) error {
	if d.Valid && d.Decimal.IsNegative() {
		return poserr.Validation("discount_amount", "must not be negative")
	}
	return nil
}

// validateItems validates the requested items
func validateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return poserr.Validation("items", "cannot be empty")
	}

	for i, item := range items {
		prefix := fmt.Sprintf("items[%d]", i)
		if !item.Valid() {
			return poserr.Validation(prefix, "exactly one of product_id or combo_id is required")
		}
		if item.Quantity < 1 {
			return poserr.Validation(prefix+".quantity", "must be at least 1")
		}
	}

	return nil
}
