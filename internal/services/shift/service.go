// Package shift is the cashier shift ledger: opening counts, running sales
// totals and drawer reconciliation at close.
package shift

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/storage"
)

// Service handles shift lifecycle operations
type Service struct {
	store  storage.Store
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a new shift service
func NewService(store storage.Store, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// StartShift opens a shift for an employee who has none active
func (s *Service) StartShift(ctx context.Context, req *models.StartShiftRequest, requestID string) (*models.Shift, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	shift := &models.Shift{
		ID:             uuid.NewString(),
		EmployeeID:     req.EmployeeID,
		StartTime:      s.now(),
		OpeningCash:    models.Money(req.OpeningCash),
		Status:         models.ShiftActive,
		RunningTotal:   decimal.Zero,
		CashSalesTotal: decimal.Zero,
		Notes:          req.Notes,
	}

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		active, err := tx.FindActiveShift(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if active != nil {
			return poserr.Conflict("employee %s already has an active shift %s", req.EmployeeID, active.ID)
		}
		return tx.CreateShift(ctx, shift)
	})
	if err != nil {
		return nil, fmt.Errorf("start shift: %w", err)
	}

	s.logger.Info("shift_started", "Shift started", requestID, map[string]interface{}{
		"shift_id":     shift.ID,
		"employee_id":  shift.EmployeeID,
		"opening_cash": shift.OpeningCash.StringFixed(2),
	})
	return shift, nil
}

// RecordSale adds a settled order to an active shift in its own transaction.
// Only cash sales count toward the expected drawer.
func (s *Service) RecordSale(ctx context.Context, shiftID string, orderTotal decimal.Decimal, method models.PaymentMethod) error {
	cash := decimal.Zero
	if method == models.MethodCash {
		cash = orderTotal
	}
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		_, err := s.RecordSaleTx(ctx, tx, shiftID, orderTotal, cash)
		return err
	})
	if err != nil {
		return fmt.Errorf("record sale: %w", err)
	}
	return nil
}

// RecordSaleTx applies a sale inside the caller's transaction. cashAmount is
// the net cash that entered the drawer.
func (s *Service) RecordSaleTx(ctx context.Context, tx storage.Tx, shiftID string, orderTotal, cashAmount decimal.Decimal) (*models.Shift, error) {
	shift, err := s.RequireActiveTx(ctx, tx, shiftID)
	if err != nil {
		return nil, err
	}
	shift.ApplySale(orderTotal, cashAmount)
	if err := tx.SaveShift(ctx, shift); err != nil {
		return nil, err
	}
	return shift, nil
}

// ReverseSaleTx backs a refunded sale out of a shift that is still active.
// Closed shifts are left untouched and reported as false.
func (s *Service) ReverseSaleTx(ctx context.Context, tx storage.Tx, shiftID string, orderTotal, cashAmount decimal.Decimal) (bool, error) {
	shift, err := tx.GetShift(ctx, shiftID)
	if err != nil {
		return false, err
	}
	if !shift.IsActive() {
		return false, nil
	}
	shift.ReverseSale(orderTotal, cashAmount)
	return true, tx.SaveShift(ctx, shift)
}

// RequireActiveTx loads a shift and fails unless it is still active
func (s *Service) RequireActiveTx(ctx context.Context, tx storage.Tx, shiftID string) (*models.Shift, error) {
	shift, err := tx.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if !shift.IsActive() {
		return nil, poserr.InvalidState("shift %s is closed", shiftID)
	}
	return shift, nil
}

// EndShift closes an active shift and reconciles the drawer
func (s *Service) EndShift(ctx context.Context, shiftID string, req *models.EndShiftRequest, requestID string) (*models.ShiftReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var report *models.ShiftReport
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		shift, err := tx.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if !shift.IsActive() {
			return poserr.NotFound("active shift", shiftID)
		}

		shift.Close(req.ClosingCash, req.Notes, s.now())
		if err := tx.SaveShift(ctx, shift); err != nil {
			return err
		}

		report, err = s.buildReport(ctx, tx, shift)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("end shift: %w", err)
	}

	s.logger.Info("shift_closed", "Shift closed", requestID, map[string]interface{}{
		"shift_id":      shiftID,
		"expected_cash": report.Shift.ExpectedCash.Decimal.StringFixed(2),
		"closing_cash":  report.Shift.ClosingCash.Decimal.StringFixed(2),
		"cash_variance": report.Shift.CashVariance.Decimal.StringFixed(2),
		"order_count":   report.Shift.OrderCount,
	})
	return report, nil
}

// buildReport groups the shift's settlements by payment method. Cash is
// reported net of change; refunded orders are left out.
func (s *Service) buildReport(ctx context.Context, tx storage.Tx, shift *models.Shift) (*models.ShiftReport, error) {
	settlements, err := tx.ListSettlementsByShift(ctx, shift.ID)
	if err != nil {
		return nil, err
	}

	report := &models.ShiftReport{
		Shift:          shift,
		TotalsByMethod: make(map[models.PaymentMethod]decimal.Decimal),
	}
	for _, st := range settlements {
		check, err := tx.GetCheck(ctx, st.CheckID)
		if err != nil {
			return nil, err
		}
		if check.Status == models.CheckRefunded {
			continue
		}
		report.SettlementCount++
		for _, leg := range st.Payments {
			if leg.Method == models.MethodCash {
				continue
			}
			report.TotalsByMethod[leg.Method] = models.Money(report.TotalsByMethod[leg.Method].Add(leg.Amount))
		}
		if cash := st.CashNet(); !cash.IsZero() {
			report.TotalsByMethod[models.MethodCash] = models.Money(report.TotalsByMethod[models.MethodCash].Add(cash))
		}
	}
	return report, nil
}

// GetShift returns a shift by id
func (s *Service) GetShift(ctx context.Context, shiftID string) (*models.Shift, error) {
	var shift *models.Shift
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		shift, err = tx.GetShift(ctx, shiftID)
		return err
	})
	return shift, err
}

// ActiveShift returns the employee's active shift
func (s *Service) ActiveShift(ctx context.Context, employeeID string) (*models.Shift, error) {
	var shift *models.Shift
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		shift, err = tx.FindActiveShift(ctx, employeeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if shift == nil {
		return nil, poserr.NotFound("active shift for employee", employeeID)
	}
	return shift, nil
}
