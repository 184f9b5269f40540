// Package payment settles checks against a shift.
//
// A settlement completes the check, records the sale on the shift, releases
// the table and stores the settlement record in one storage transaction.
// Customer credit charges live outside the store: they are posted before the
// transaction and reversed if it fails. Settlements are idempotent by token
// and by check.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"restaurant-pos/internal/customer"
	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/services/shift"
	"restaurant-pos/internal/services/table"
	"restaurant-pos/internal/storage"
)

// Service handles settlement and refund of checks
type Service struct {
	store     storage.Store
	ledger    customer.Ledger
	shifts    *shift.Service
	tables    *table.Service
	publisher events.Publisher
	logger    *logger.Logger
	taxRate   decimal.Decimal
	now       func() time.Time

	creditMu    sync.Mutex
	creditLocks map[string]*sync.Mutex
}

// NewService creates a new payment service
func NewService(store storage.Store, ledger customer.Ledger, shifts *shift.Service, tables *table.Service,
	publisher events.Publisher, log *logger.Logger, taxRate decimal.Decimal) *Service {

	return &Service{
		store:       store,
		ledger:      ledger,
		shifts:      shifts,
		tables:      tables,
		publisher:   publisher,
		logger:      log,
		taxRate:     taxRate,
		now:         func() time.Time { return time.Now().UTC() },
		creditLocks: make(map[string]*sync.Mutex),
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// plan is a validated settlement waiting to be applied
type plan struct {
	token        string
	checkID      string
	checkVersion int
	shiftID      string
	discount     decimal.NullDecimal
	amountDue    decimal.Decimal
	tendered     decimal.Decimal
	change       decimal.Decimal
	method       models.PaymentMethod
	legs         []models.PaymentLeg
}

func (p *plan) paymentStatus() models.PaymentStatus {
	for _, leg := range p.legs {
		if leg.Method == models.MethodCredit {
			return models.PaymentCredit
		}
	}
	return models.PaymentPaid
}

// Settle settles a check with a single tender
func (s *Service) Settle(ctx context.Context, checkID string, req *models.SettleRequest, requestID string) (*models.SettleResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	method, _ := models.ParsePaymentMethod(req.PaymentMethod)

	return s.settle(ctx, checkID, req.SettlementToken, req.ShiftID, req.DiscountAmount, requestID,
		func(c *models.Check, p *plan) error {
			due := c.TotalAmount
			p.method = method

			switch method {
			case models.MethodCash:
				received := models.Money(req.AmountReceived.Decimal)
				if received.LessThan(due) {
					return poserr.InsufficientFunds("cash received %s is less than amount due %s",
						received.StringFixed(2), due.StringFixed(2))
				}
				p.tendered = received
				p.change = models.Money(received.Sub(due))
				p.legs = []models.PaymentLeg{{Method: method, Amount: received}}

			case models.MethodCredit:
				p.tendered = due
				p.legs = []models.PaymentLeg{{Method: method, Amount: due, CustomerID: *req.CustomerID}}

			default:
				if req.AmountReceived.Valid && models.Money(req.AmountReceived.Decimal).LessThan(due) {
					return poserr.InsufficientFunds("%s amount %s is less than amount due %s",
						method, models.Money(req.AmountReceived.Decimal).StringFixed(2), due.StringFixed(2))
				}
				p.tendered = due
				p.legs = []models.PaymentLeg{{Method: method, Amount: due}}
			}
			return nil
		})
}

// SettleSplit settles a check with several tenders. Credit legs are checked
// against each customer's remaining limit including earlier legs of the
// same split.
func (s *Service) SettleSplit(ctx context.Context, checkID string, req *models.SettleSplitRequest, requestID string) (*models.SettleResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.settle(ctx, checkID, req.SettlementToken, req.ShiftID, req.DiscountAmount, requestID,
		func(c *models.Check, p *plan) error {
			due := c.TotalAmount
			sum := decimal.Zero
			legs := make([]models.PaymentLeg, 0, len(req.Payments))
			for _, leg := range req.Payments {
				leg.Amount = models.Money(leg.Amount)
				sum = sum.Add(leg.Amount)
				legs = append(legs, leg)
			}
			sum = models.Money(sum)

			if sum.LessThan(due) {
				return poserr.InsufficientFunds("split payments total %s is less than amount due %s",
					sum.StringFixed(2), due.StringFixed(2))
			}

			p.method = models.MethodSplit
			if len(legs) == 1 {
				p.method = legs[0].Method
			}
			p.tendered = sum
			p.change = models.Money(sum.Sub(due))
			p.legs = legs
			return nil
		})
}

// settle runs the shared settlement flow. price fills the tender details of
// the plan from the discounted check.
func (s *Service) settle(ctx context.Context, checkID, token string, shiftID *string, discount decimal.NullDecimal,
	requestID string, price func(c *models.Check, p *plan) error) (*models.SettleResult, error) {

	if token == "" {
		token = uuid.NewString()
	}

	if prior, err := s.findPrior(ctx, checkID, token); err != nil || prior != nil {
		return prior, err
	}

	p := &plan{token: token, checkID: checkID, discount: discount}
	check, err := s.preparePlan(ctx, p, shiftID, price)
	if err != nil {
		return nil, err
	}

	// credit check, charge and commit or reversal hold the customers' locks
	unlock := s.lockCredit(p.legs)
	defer unlock()

	if err := s.checkCredit(ctx, p.legs); err != nil {
		return nil, err
	}

	posted, err := s.postCharges(ctx, "order "+check.OrderNumber, p.legs)
	if err != nil {
		s.compensate(ctx, check.OrderNumber, posted, requestID)
		return nil, fmt.Errorf("settle: %w", err)
	}

	oldStatus := check.Status
	settled, err := s.apply(ctx, p)
	if err != nil {
		s.compensate(ctx, check.OrderNumber, posted, requestID)

		if errors.Is(err, poserr.ErrConflict) {
			if prior, perr := s.findPrior(ctx, checkID, token); perr == nil && prior != nil {
				return prior, nil
			}
		}
		s.logger.Error("settlement_failed", "Settlement aborted", requestID, err, map[string]interface{}{
			"check_id": checkID,
			"token":    token,
		})
		return nil, fmt.Errorf("settle: %w", err)
	}

	s.publish(ctx, settled, oldStatus, "cashier", requestID)
	s.logger.Info("check_settled", "Check settled", requestID, map[string]interface{}{
		"check_id":       settled.ID,
		"order_number":   settled.OrderNumber,
		"payment_method": p.method,
		"amount_due":     p.amountDue.StringFixed(2),
		"change":         p.change.StringFixed(2),
		"shift_id":       p.shiftID,
	})

	return &models.SettleResult{OrderNumber: settled.OrderNumber, Change: p.change, Check: settled}, nil
}

// findPrior returns the earlier result for a retried settlement
func (s *Service) findPrior(ctx context.Context, checkID, token string) (*models.SettleResult, error) {
	var (
		prior *models.Settlement
		check *models.Check
	)
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		prior, err = tx.FindSettlement(ctx, token)
		if err != nil {
			return err
		}
		if prior != nil && prior.CheckID != checkID {
			return poserr.Conflict("settlement token already used for order %s", prior.OrderNumber)
		}
		if prior == nil {
			prior, err = tx.FindSettlementByCheck(ctx, checkID)
			if err != nil || prior == nil {
				return err
			}
		}
		check, err = tx.GetCheck(ctx, checkID)
		return err
	})
	if err != nil || prior == nil {
		return nil, err
	}
	return &models.SettleResult{OrderNumber: prior.OrderNumber, Change: prior.Change, Replayed: true, Check: check}, nil
}

// preparePlan validates the check and prices the settlement without writing
func (s *Service) preparePlan(ctx context.Context, p *plan, shiftID *string, price func(*models.Check, *plan) error) (*models.Check, error) {
	var check *models.Check
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		check, err = tx.GetCheck(ctx, p.checkID)
		if err != nil {
			return err
		}
		if check.Status == models.CheckRefunded || check.IsSettled() {
			return poserr.InvalidState("check %s is already settled", check.OrderNumber)
		}

		switch {
		case check.ShiftID != nil:
			p.shiftID = *check.ShiftID
		case shiftID != nil && *shiftID != "":
			p.shiftID = *shiftID
		default:
			return poserr.Validation("shift_id", "is required to settle an order placed outside a shift")
		}
		if _, err := s.shifts.RequireActiveTx(ctx, tx, p.shiftID); err != nil {
			return err
		}

		s.applyDiscount(check, p.discount)
		p.checkVersion = check.Version
		p.amountDue = check.TotalAmount
		return price(check, p)
	})
	if err != nil {
		return nil, err
	}
	return check, nil
}

func (s *Service) applyDiscount(c *models.Check, discount decimal.NullDecimal) {
	if discount.Valid {
		c.DiscountAmount = models.Money(discount.Decimal)
	}
	c.Recalculate(s.taxRate)
}

// lockCredit locks every customer charged by a credit leg, in id order, and
// returns the matching unlock.
func (s *Service) lockCredit(legs []models.PaymentLeg) func() {
	var ids []string
	seen := make(map[string]bool)
	for _, leg := range legs {
		if leg.Method == models.MethodCredit && !seen[leg.CustomerID] {
			seen[leg.CustomerID] = true
			ids = append(ids, leg.CustomerID)
		}
	}
	sort.Strings(ids)

	s.creditMu.Lock()
	locks := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		mu, ok := s.creditLocks[id]
		if !ok {
			mu = &sync.Mutex{}
			s.creditLocks[id] = mu
		}
		locks = append(locks, mu)
	}
	s.creditMu.Unlock()

	for _, mu := range locks {
		mu.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// checkCredit validates every credit leg against the customer's remaining
// limit, accumulating exposure across legs for the same customer.
func (s *Service) checkCredit(ctx context.Context, legs []models.PaymentLeg) error {
	exposure := make(map[string]decimal.Decimal)
	for i, leg := range legs {
		if leg.Method != models.MethodCredit {
			continue
		}
		status, err := s.ledger.GetCreditStatus(ctx, leg.CustomerID)
		if err != nil {
			return fmt.Errorf("payments[%d]: %w", i, err)
		}
		total := exposure[leg.CustomerID].Add(leg.Amount)
		if total.GreaterThan(status.Available()) {
			return poserr.CreditLimitExceeded("customer %s has %s credit available, %s requested",
				leg.CustomerID, status.Available().StringFixed(2), models.Money(total).StringFixed(2))
		}
		exposure[leg.CustomerID] = total
	}
	return nil
}

// postCharges charges credit legs and returns what was posted so far
func (s *Service) postCharges(ctx context.Context, memo string, legs []models.PaymentLeg) ([]models.PaymentLeg, error) {
	var posted []models.PaymentLeg
	for _, leg := range legs {
		if leg.Method != models.MethodCredit {
			continue
		}
		if err := s.ledger.PostCharge(ctx, leg.CustomerID, leg.Amount, memo); err != nil {
			return posted, err
		}
		posted = append(posted, leg)
	}
	return posted, nil
}

// compensate reverses credit charges of a settlement that did not commit
func (s *Service) compensate(ctx context.Context, orderNumber string, posted []models.PaymentLeg, requestID string) {
	for _, leg := range posted {
		err := s.ledger.PostCharge(context.WithoutCancel(ctx), leg.CustomerID, leg.Amount.Neg(), "reversal order "+orderNumber)
		if err != nil {
			s.logger.Error("credit_reversal_failed", "Failed to reverse credit charge", requestID, err, map[string]interface{}{
				"customer_id":  leg.CustomerID,
				"amount":       leg.Amount.StringFixed(2),
				"order_number": orderNumber,
			})
		}
	}
}

// apply writes the settlement in one transaction
func (s *Service) apply(ctx context.Context, p *plan) (*models.Check, error) {
	var check *models.Check
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		check, err = tx.GetCheck(ctx, p.checkID)
		if err != nil {
			return err
		}
		if check.IsSettled() {
			return poserr.Conflict("check %s was settled concurrently", check.OrderNumber)
		}
		if check.Version != p.checkVersion {
			return poserr.Conflict("check %s changed while settling", check.OrderNumber)
		}

		now := s.now()
		s.applyDiscount(check, p.discount)
		check.Status = models.CheckCompleted
		check.PaymentStatus = p.paymentStatus()
		check.PaymentMethod = p.method
		check.CompletedAt = &now
		check.UpdatedAt = now
		if check.ShiftID == nil {
			shiftID := p.shiftID
			check.ShiftID = &shiftID
		}
		if err := tx.SaveCheck(ctx, check); err != nil {
			return err
		}

		settlement := &models.Settlement{
			Token:          p.token,
			CheckID:        check.ID,
			OrderNumber:    check.OrderNumber,
			ShiftID:        p.shiftID,
			PaymentMethod:  p.method,
			PaymentStatus:  check.PaymentStatus,
			Payments:       p.legs,
			AmountDue:      p.amountDue,
			AmountTendered: p.tendered,
			Change:         p.change,
			DiscountAmount: check.DiscountAmount,
			CreatedAt:      now,
		}
		if _, err := s.shifts.RecordSaleTx(ctx, tx, p.shiftID, p.amountDue, settlement.CashNet()); err != nil {
			return err
		}
		if check.TableID != nil {
			if _, err := s.tables.ReleaseTx(ctx, tx, *check.TableID, check.ID); err != nil {
				return err
			}
		}
		return tx.CreateSettlement(ctx, settlement)
	})
	if err != nil {
		return nil, err
	}
	return check, nil
}

// Refund reverses a settled check. The sale is backed out of its shift
// while that shift is still active and credit charges are reversed.
func (s *Service) Refund(ctx context.Context, checkID string, req *models.RefundRequest, requestID string) (*models.Check, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		check      *models.Check
		settlement *models.Settlement
	)
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		check, err = tx.GetCheck(ctx, checkID)
		if err != nil {
			return err
		}
		if check.Status != models.CheckCompleted || !check.IsSettled() {
			return poserr.InvalidState("only settled checks can be refunded, %s is %s/%s",
				check.OrderNumber, check.Status, check.PaymentStatus)
		}
		settlement, err = tx.FindSettlementByCheck(ctx, checkID)
		if err != nil {
			return err
		}
		if settlement == nil {
			return poserr.NotFound("settlement for check", checkID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}

	// Reversals are negative charges; compensation re-posts them.
	var reversals []models.PaymentLeg
	for _, leg := range settlement.CreditLegs() {
		leg.Amount = leg.Amount.Neg()
		reversals = append(reversals, leg)
	}
	orderNumber := check.OrderNumber
	posted, err := s.postCharges(ctx, "refund order "+orderNumber, reversals)
	if err != nil {
		s.compensate(ctx, orderNumber, posted, requestID)
		return nil, fmt.Errorf("refund: %w", err)
	}

	oldStatus := check.Status
	shiftAdjusted := false
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		check, err = tx.GetCheck(ctx, checkID)
		if err != nil {
			return err
		}
		if check.Status != models.CheckCompleted {
			return poserr.Conflict("check %s was refunded concurrently", check.OrderNumber)
		}

		shiftAdjusted, err = s.shifts.ReverseSaleTx(ctx, tx, settlement.ShiftID, settlement.AmountDue, settlement.CashNet())
		if err != nil {
			return err
		}

		check.Status = models.CheckRefunded
		check.UpdatedAt = s.now()
		return tx.SaveCheck(ctx, check)
	})
	if err != nil {
		s.compensate(ctx, orderNumber, posted, requestID)
		return nil, fmt.Errorf("refund: %w", err)
	}

	s.publish(ctx, check, oldStatus, req.Actor, requestID)
	s.logger.Info("check_refunded", "Check refunded", requestID, map[string]interface{}{
		"check_id":       check.ID,
		"order_number":   check.OrderNumber,
		"amount":         settlement.AmountDue.StringFixed(2),
		"reason":         req.Reason,
		"actor":          req.Actor,
		"shift_adjusted": shiftAdjusted,
	})
	return check, nil
}

// publish notifies listeners. Failures are logged, never returned.
func (s *Service) publish(ctx context.Context, c *models.Check, oldStatus models.CheckStatus, changedBy, requestID string) {
	if err := s.publisher.PublishCheckEvent(ctx, models.CreateCheckEvent(c, oldStatus, changedBy)); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish check event", requestID, err, map[string]interface{}{
			"order_number": c.OrderNumber,
		})
	}
}
