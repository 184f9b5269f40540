package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType tells terminal sales from online orders
type OrderType string

const (
	OrderPOS    OrderType = "pos"
	OrderOnline OrderType = "online"
)

// ServiceType is how the order reaches the guest
type ServiceType string

const (
	DineIn   ServiceType = "dine-in"
	PickUp   ServiceType = "pick-up"
	Delivery ServiceType = "delivery"
)

// ParseServiceType rejects any service type outside the closed set
func ParseServiceType(s string) (ServiceType, bool) {
	switch ServiceType(s) {
	case DineIn, PickUp, Delivery:
		return ServiceType(s), true
	default:
		return "", false
	}
}

// CheckStatus is the kitchen-facing lifecycle of a check
type CheckStatus string

const (
	CheckReceived  CheckStatus = "received"
	CheckOpen      CheckStatus = "open"
	CheckPreparing CheckStatus = "preparing"
	CheckCompleted CheckStatus = "completed"
	CheckRefunded  CheckStatus = "refunded"
)

// InKitchen reports whether the check still has a live kitchen ticket
func (s CheckStatus) InKitchen() bool {
	switch s {
	case CheckReceived, CheckOpen, CheckPreparing:
		return true
	default:
		return false
	}
}

// PaymentStatus records how a check was settled
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentCredit PaymentStatus = "credit"
)

// PaymentMethod is the tender used for a settlement or one split leg
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCard   PaymentMethod = "card"
	MethodGCash  PaymentMethod = "gcash"
	MethodCredit PaymentMethod = "credit"
	// MethodSplit is recorded on the check when several legs settle it.
	MethodSplit PaymentMethod = "split"
)

// ParsePaymentMethod accepts the single-leg tenders only
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case MethodCash, MethodCard, MethodGCash, MethodCredit:
		return PaymentMethod(s), true
	default:
		return "", false
	}
}

// LineItemStatus tracks void and comp adjustments
type LineItemStatus string

const (
	ItemActive LineItemStatus = "active"
	ItemVoided LineItemStatus = "voided"
	ItemComped LineItemStatus = "comped"
)

// AdjustmentType is the requested line item adjustment
type AdjustmentType string

const (
	AdjustVoid AdjustmentType = "void"
	AdjustComp AdjustmentType = "comp"
)

// CatalogRef points at a product or a combo, never both.
type CatalogRef struct {
	ProductID string `json:"product_id,omitempty" db:"product_id"`
	ComboID   string `json:"combo_id,omitempty" db:"combo_id"`
}

// Key identifies the catalog entry regardless of kind
func (r CatalogRef) Key() string {
	if r.ComboID != "" {
		return "combo:" + r.ComboID
	}
	return "product:" + r.ProductID
}

// Valid reports whether exactly one of product and combo is set
func (r CatalogRef) Valid() bool {
	return (r.ProductID == "") != (r.ComboID == "")
}

// LineItem is one (catalog entry, size, note) grouping on a check
type LineItem struct {
	ID string `json:"id" db:"id"`
	CatalogRef
	CheckID      string          `json:"check_id" db:"check_id"`
	Name         string          `json:"name" db:"name"`
	Quantity     int             `json:"quantity" db:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price" db:"unit_price"`
	Size         string          `json:"size,omitempty" db:"size"`
	Notes        string          `json:"notes,omitempty" db:"notes"`
	Status       LineItemStatus  `json:"status" db:"status"`
	Subtotal     decimal.Decimal `json:"subtotal" db:"subtotal"`
	AdjustReason string          `json:"adjust_reason,omitempty" db:"adjust_reason"`
	AdjustedBy   string          `json:"adjusted_by,omitempty" db:"adjusted_by"`
	AdjustedAt   *time.Time      `json:"adjusted_at,omitempty" db:"adjusted_at"`
	Position     int             `json:"-" db:"position"`
}

// Recompute refreshes the line subtotal from quantity and status
func (li *LineItem) Recompute() {
	if li.Status != ItemActive {
		li.Subtotal = decimal.Zero
		return
	}
	li.Subtotal = Money(li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))))
}

// SameGrouping reports whether another item of ref/size/notes/price would
// merge into this line.
func (li *LineItem) SameGrouping(ref CatalogRef, size, notes string, unitPrice decimal.Decimal) bool {
	return li.Status == ItemActive &&
		li.CatalogRef == ref &&
		li.Size == size &&
		li.Notes == notes &&
		li.UnitPrice.Equal(unitPrice)
}

// Check is the billable aggregate for a table visit or a counter/online sale
type Check struct {
	ID             string          `json:"id" db:"id"`
	OrderNumber    string          `json:"order_number" db:"order_number"`
	ShiftID        *string         `json:"shift_id,omitempty" db:"shift_id"`
	TableID        *string         `json:"table_id,omitempty" db:"table_id"`
	TableNumber    *int            `json:"table_number,omitempty" db:"table_number"`
	OrderType      OrderType       `json:"order_type" db:"order_type"`
	ServiceType    ServiceType     `json:"service_type" db:"service_type"`
	Status         CheckStatus     `json:"status" db:"status"`
	Items          []LineItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method,omitempty" db:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status" db:"payment_status"`
	CustomerID     *string         `json:"customer_id,omitempty" db:"customer_id"`
	SplitFromID    *string         `json:"split_from_id,omitempty" db:"split_from_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	Version        int             `json:"version" db:"version"`
}

// IsSettled reports whether a payment has been recorded on the check
func (c *Check) IsSettled() bool {
	return c.PaymentStatus != PaymentUnpaid
}

// AcceptsItems reports whether items may still be added or adjusted
func (c *Check) AcceptsItems() bool {
	return !c.IsSettled() && c.Status.InKitchen()
}

// FindItem returns the index of a line item, or -1
func (c *Check) FindItem(lineItemID string) int {
	return slices.IndexFunc(c.Items, func(li LineItem) bool {
		return li.ID == lineItemID
	})
}

// Recalculate rebuilds subtotal, tax and total from the active items.
// The discount never exceeds the subtotal.
func (c *Check) Recalculate(taxRate decimal.Decimal) {
	subtotal := decimal.Zero
	for i := range c.Items {
		c.Items[i].Recompute()
		subtotal = subtotal.Add(c.Items[i].Subtotal)
	}
	c.Subtotal = Money(subtotal)

	discount := Money(c.DiscountAmount)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(c.Subtotal) {
		discount = c.Subtotal
	}
	c.DiscountAmount = discount

	base := c.Subtotal.Sub(discount)
	c.TaxAmount = Money(base.Mul(taxRate))
	c.TotalAmount = Money(base.Add(c.TaxAmount))
}

// Clone returns a deep copy of the check and its items
func (c *Check) Clone() *Check {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp
}

// GenerateOrderNumber generates a unique order number in format ORD_YYYYMMDD_NNN
func GenerateOrderNumber(date time.Time, sequence int) string {
	return fmt.Sprintf("ORD_%s_%03d", OrderDay(date), sequence)
}

// OrderDay is the key used for the per-day order number sequence
func OrderDay(t time.Time) string {
	return t.UTC().Format("20060102")
}
