package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentLeg is one tender applied toward a settlement
type PaymentLeg struct {
	Method     PaymentMethod   `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	CustomerID string          `json:"customer_id,omitempty"`
}

// Settlement is the single persisted record of how a check was paid.
// Token is the idempotency key.
type Settlement struct {
	Token          string          `json:"token" db:"token"`
	CheckID        string          `json:"check_id" db:"check_id"`
	OrderNumber    string          `json:"order_number" db:"order_number"`
	ShiftID        string          `json:"shift_id" db:"shift_id"`
	PaymentMethod  PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status" db:"payment_status"`
	Payments       []PaymentLeg    `json:"payments"`
	AmountDue      decimal.Decimal `json:"amount_due" db:"amount_due"`
	AmountTendered decimal.Decimal `json:"amount_tendered" db:"amount_tendered"`
	Change         decimal.Decimal `json:"change" db:"change_due"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// CashNet is the cash that stayed in the drawer: cash tendered minus the
// change handed back.
func (s *Settlement) CashNet() decimal.Decimal {
	cash := decimal.Zero
	for _, p := range s.Payments {
		if p.Method == MethodCash {
			cash = cash.Add(p.Amount)
		}
	}
	return Money(cash.Sub(s.Change))
}

// CreditLegs returns the legs charged to customer accounts
func (s *Settlement) CreditLegs() []PaymentLeg {
	var legs []PaymentLeg
	for _, p := range s.Payments {
		if p.Method == MethodCredit {
			legs = append(legs, p)
		}
	}
	return legs
}

// SettleResult is what the terminal receives after a settlement
type SettleResult struct {
	OrderNumber string          `json:"order_number"`
	Change      decimal.Decimal `json:"change"`
	Replayed    bool            `json:"replayed"`
	Check       *Check          `json:"check,omitempty"`
}

// BillOutRequest carries exactly one of a single-tender or split settlement
type BillOutRequest struct {
	Single *SettleRequest      `json:"single,omitempty"`
	Split  *SettleSplitRequest `json:"split,omitempty"`
}

// SplitResult is the pair of checks produced by a split
type SplitResult struct {
	Source *Check `json:"source_check"`
	New    *Check `json:"new_check"`
}
