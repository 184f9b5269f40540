package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShiftStatus is the lifecycle state of a cashier shift
type ShiftStatus string

const (
	ShiftActive ShiftStatus = "active"
	ShiftClosed ShiftStatus = "closed"
)

// Shift is one cashier session bounded by opening and closing cash counts
type Shift struct {
	ID             string              `json:"id" db:"id"`
	EmployeeID     string              `json:"employee_id" db:"employee_id"`
	StartTime      time.Time           `json:"start_time" db:"start_time"`
	EndTime        *time.Time          `json:"end_time,omitempty" db:"end_time"`
	OpeningCash    decimal.Decimal     `json:"opening_cash" db:"opening_cash"`
	ClosingCash    decimal.NullDecimal `json:"closing_cash" db:"closing_cash"`
	ExpectedCash   decimal.NullDecimal `json:"expected_cash" db:"expected_cash"`
	CashVariance   decimal.NullDecimal `json:"cash_variance" db:"cash_variance"`
	Status         ShiftStatus         `json:"status" db:"status"`
	RunningTotal   decimal.Decimal     `json:"running_total" db:"running_total"`
	OrderCount     int                 `json:"order_count" db:"order_count"`
	CashSalesTotal decimal.Decimal     `json:"cash_sales_total" db:"cash_sales_total"`
	Notes          string              `json:"notes" db:"notes"`
	Version        int                 `json:"version" db:"version"`
}

// IsActive reports whether the shift still accepts sales
func (s *Shift) IsActive() bool {
	return s.Status == ShiftActive
}

// ExpectedDrawer is the cash the drawer should hold right now.
func (s *Shift) ExpectedDrawer() decimal.Decimal {
	return Money(s.OpeningCash.Add(s.CashSalesTotal))
}

// ApplySale adds a settled order to the running totals. cashAmount is the
// net cash that entered the drawer for that order.
func (s *Shift) ApplySale(orderTotal, cashAmount decimal.Decimal) {
	s.RunningTotal = Money(s.RunningTotal.Add(orderTotal))
	s.OrderCount++
	s.CashSalesTotal = Money(s.CashSalesTotal.Add(cashAmount))
}

// ReverseSale undoes ApplySale for a refunded order.
func (s *Shift) ReverseSale(orderTotal, cashAmount decimal.Decimal) {
	s.RunningTotal = Money(s.RunningTotal.Sub(orderTotal))
	if s.OrderCount > 0 {
		s.OrderCount--
	}
	s.CashSalesTotal = Money(s.CashSalesTotal.Sub(cashAmount))
}

// Close records the closing count and freezes the derived drawer figures.
func (s *Shift) Close(closingCash decimal.Decimal, notes string, at time.Time) {
	expected := s.ExpectedDrawer()
	closing := Money(closingCash)
	s.EndTime = &at
	s.ClosingCash = decimal.NewNullDecimal(closing)
	s.ExpectedCash = decimal.NewNullDecimal(expected)
	s.CashVariance = decimal.NewNullDecimal(Money(closing.Sub(expected)))
	s.Status = ShiftClosed
	if notes != "" {
		if s.Notes != "" {
			s.Notes += "\n"
		}
		s.Notes += notes
	}
}

// ShiftReport is returned when a shift is closed
type ShiftReport struct {
	Shift           *Shift                            `json:"shift"`
	TotalsByMethod  map[PaymentMethod]decimal.Decimal `json:"totals_by_method"`
	SettlementCount int                               `json:"settlement_count"`
}
