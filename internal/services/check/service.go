// Package check implements the check engine: opening checks and orders,
// adding and adjusting line items, splitting checks and billing out.
package check

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"restaurant-pos/internal/catalog"
	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/services/payment"
	"restaurant-pos/internal/services/shift"
	"restaurant-pos/internal/services/table"
	"restaurant-pos/internal/storage"
)

// Service handles check lifecycle operations
type Service struct {
	store     storage.Store
	catalog   catalog.Gateway
	shifts    *shift.Service
	tables    *table.Service
	payments  *payment.Service
	publisher events.Publisher
	logger    *logger.Logger
	taxRate   decimal.Decimal
	now       func() time.Time
}

// NewService creates a new check service
func NewService(store storage.Store, gateway catalog.Gateway, shifts *shift.Service, tables *table.Service,
	payments *payment.Service, publisher events.Publisher, log *logger.Logger, taxRate decimal.Decimal) *Service {

	return &Service{
		store:     store,
		catalog:   gateway,
		shifts:    shifts,
		tables:    tables,
		payments:  payments,
		publisher: publisher,
		logger:    log,
		taxRate:   taxRate,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// resolvedItem is a requested item priced from the catalog
type resolvedItem struct {
	ref      models.CatalogRef
	name     string
	price    decimal.Decimal
	quantity int
	size     string
	notes    string
}

// resolveItems prices the requested items. Catalog lookups happen before any
// transaction is opened.
func (s *Service) resolveItems(ctx context.Context, items []models.ItemRequest) ([]resolvedItem, error) {
	resolved := make([]resolvedItem, 0, len(items))
	for i, it := range items {
		entry, err := s.catalog.ResolveItem(ctx, it.CatalogRef, it.Size)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		resolved = append(resolved, resolvedItem{
			ref:      it.CatalogRef,
			name:     entry.Name,
			price:    models.Money(entry.UnitPrice),
			quantity: it.Quantity,
			size:     it.Size,
			notes:    it.Notes,
		})
	}
	return resolved, nil
}

// mergeItems adds items to the check, folding each into an active line of
// the same grouping when one exists.
func mergeItems(c *models.Check, items []resolvedItem) {
	for _, it := range items {
		merged := false
		for i := range c.Items {
			if c.Items[i].SameGrouping(it.ref, it.size, it.notes, it.price) {
				c.Items[i].Quantity += it.quantity
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		c.Items = append(c.Items, models.LineItem{
			ID:         uuid.NewString(),
			CatalogRef: it.ref,
			CheckID:    c.ID,
			Name:       it.name,
			Quantity:   it.quantity,
			UnitPrice:  it.price,
			Size:       it.size,
			Notes:      it.notes,
			Status:     models.ItemActive,
			Position:   len(c.Items),
		})
	}
}

// OpenCheck opens a dine-in check on a table, a counter sale on a shift, or
// an online order when neither is given.
func (s *Service) OpenCheck(ctx context.Context, req *models.OpenCheckRequest, requestID string) (*models.Check, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	serviceType, _ := models.ParseServiceType(req.ServiceType)
	now := s.now()
	c := &models.Check{
		ID:            uuid.NewString(),
		OrderType:     models.OrderOnline,
		ServiceType:   serviceType,
		Status:        models.CheckReceived,
		PaymentStatus: models.PaymentUnpaid,
		CustomerID:    req.CustomerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.ShiftID != nil && *req.ShiftID != "" {
		shiftID := *req.ShiftID
		c.ShiftID = &shiftID
		c.OrderType = models.OrderPOS
	}
	mergeItems(c, items)
	c.Recalculate(s.taxRate)

	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		if c.ShiftID != nil {
			if _, err := s.shifts.RequireActiveTx(ctx, tx, *c.ShiftID); err != nil {
				return err
			}
		}

		seq, err := tx.NextOrderSequence(ctx, models.OrderDay(now))
		if err != nil {
			return err
		}
		c.OrderNumber = models.GenerateOrderNumber(now, seq)

		if req.TableID != nil {
			t, err := s.tables.OccupyTx(ctx, tx, *req.TableID, c.ID)
			if err != nil {
				return err
			}
			tableID, number := t.ID, t.Number
			c.TableID = &tableID
			c.TableNumber = &number
			c.Status = models.CheckOpen
		}
		return tx.CreateCheck(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("open check: %w", err)
	}

	s.publish(ctx, c, "", requestID)
	s.logger.Debug("check_opened", "Check opened", requestID, map[string]interface{}{
		"check_id":     c.ID,
		"order_number": c.OrderNumber,
		"order_type":   c.OrderType,
		"service_type": c.ServiceType,
		"total_amount": c.TotalAmount.StringFixed(2),
	})
	return c, nil
}

// AddItems extends a check that is still in the kitchen and unpaid
func (s *Service) AddItems(ctx context.Context, checkID string, req *models.AddItemsRequest, requestID string) (*models.Check, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var c *models.Check
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetCheck(ctx, checkID)
		if err != nil {
			return err
		}
		if !c.AcceptsItems() {
			return poserr.InvalidState("check %s is %s/%s and no longer takes items", c.OrderNumber, c.Status, c.PaymentStatus)
		}
		mergeItems(c, items)
		c.Recalculate(s.taxRate)
		c.UpdatedAt = s.now()
		return tx.SaveCheck(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("add items: %w", err)
	}

	s.logger.Debug("items_added", "Items added to check", requestID, map[string]interface{}{
		"check_id":     c.ID,
		"order_number": c.OrderNumber,
		"lines":        len(c.Items),
		"total_amount": c.TotalAmount.StringFixed(2),
	})
	return c, nil
}

// AdjustItem voids or comps one active line of an unpaid check
func (s *Service) AdjustItem(ctx context.Context, checkID, lineItemID string, req *models.AdjustItemRequest, requestID string) (*models.Check, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var c *models.Check
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetCheck(ctx, checkID)
		if err != nil {
			return err
		}
		if c.IsSettled() || c.Status == models.CheckRefunded {
			return poserr.InvalidState("check %s is already settled", c.OrderNumber)
		}

		idx := c.FindItem(lineItemID)
		if idx < 0 {
			return poserr.NotFound("line item", lineItemID)
		}
		item := &c.Items[idx]
		if item.Status != models.ItemActive {
			return poserr.InvalidState("line item %s is already %s", lineItemID, item.Status)
		}

		now := s.now()
		if models.AdjustmentType(req.Type) == models.AdjustVoid {
			item.Status = models.ItemVoided
		} else {
			item.Status = models.ItemComped
		}
		item.AdjustReason = req.Reason
		item.AdjustedBy = req.Actor
		item.AdjustedAt = &now

		c.Recalculate(s.taxRate)
		c.UpdatedAt = now
		return tx.SaveCheck(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("adjust item: %w", err)
	}

	s.logger.Info("item_adjusted", "Line item adjusted", requestID, map[string]interface{}{
		"check_id":     c.ID,
		"order_number": c.OrderNumber,
		"line_item_id": lineItemID,
		"type":         req.Type,
		"reason":       req.Reason,
		"actor":        req.Actor,
	})
	return c, nil
}

// SplitCheck moves the named active lines into a new sibling check on the
// same table and shift.
func (s *Service) SplitCheck(ctx context.Context, checkID string, req *models.SplitCheckRequest, requestID string) (*models.SplitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result models.SplitResult
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		source, err := tx.GetCheck(ctx, checkID)
		if err != nil {
			return err
		}
		if source.IsSettled() || source.Status == models.CheckRefunded {
			return poserr.InvalidState("check %s is already settled", source.OrderNumber)
		}

		moving := make(map[string]bool, len(req.LineItemIDs))
		for i, id := range req.LineItemIDs {
			idx := source.FindItem(id)
			if idx < 0 {
				return poserr.Validation(fmt.Sprintf("line_item_ids[%d]", i), "line item %s is not on check %s", id, source.OrderNumber)
			}
			if source.Items[idx].Status != models.ItemActive {
				return poserr.Validation(fmt.Sprintf("line_item_ids[%d]", i), "line item %s is %s", id, source.Items[idx].Status)
			}
			moving[id] = true
		}

		now := s.now()
		seq, err := tx.NextOrderSequence(ctx, models.OrderDay(now))
		if err != nil {
			return err
		}
		sourceID := source.ID
		sibling := &models.Check{
			ID:            uuid.NewString(),
			OrderNumber:   models.GenerateOrderNumber(now, seq),
			ShiftID:       source.ShiftID,
			TableID:       source.TableID,
			TableNumber:   source.TableNumber,
			OrderType:     source.OrderType,
			ServiceType:   source.ServiceType,
			Status:        source.Status,
			PaymentStatus: models.PaymentUnpaid,
			CustomerID:    source.CustomerID,
			SplitFromID:   &sourceID,
			CreatedAt:     source.CreatedAt,
			UpdatedAt:     now,
		}

		kept := make([]models.LineItem, 0, len(source.Items))
		for _, li := range source.Items {
			if moving[li.ID] {
				li.CheckID = sibling.ID
				li.Position = len(sibling.Items)
				sibling.Items = append(sibling.Items, li)
				continue
			}
			li.Position = len(kept)
			kept = append(kept, li)
		}
		source.Items = kept
		source.Recalculate(s.taxRate)
		source.UpdatedAt = now
		sibling.Recalculate(s.taxRate)

		if sibling.TableID != nil {
			if _, err := s.tables.AttachTx(ctx, tx, *sibling.TableID, sibling.ID); err != nil {
				return err
			}
		}
		if err := tx.SaveCheck(ctx, source); err != nil {
			return err
		}
		if err := tx.CreateCheck(ctx, sibling); err != nil {
			return err
		}

		result = models.SplitResult{Source: source, New: sibling}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("split check: %w", err)
	}

	s.logger.Info("check_split", "Check split", requestID, map[string]interface{}{
		"check_id":     result.Source.ID,
		"new_check_id": result.New.ID,
		"moved_items":  len(result.New.Items),
		"source_total": result.Source.TotalAmount.StringFixed(2),
		"new_total":    result.New.TotalAmount.StringFixed(2),
	})
	return &result, nil
}

// BillOut settles a check through the payment processor
func (s *Service) BillOut(ctx context.Context, checkID string, req *models.BillOutRequest, requestID string) (*models.SettleResult, error) {
	switch {
	case req.Single != nil && req.Split == nil:
		return s.payments.Settle(ctx, checkID, req.Single, requestID)
	case req.Split != nil && req.Single == nil:
		return s.payments.SettleSplit(ctx, checkID, req.Split, requestID)
	default:
		return nil, poserr.Validation("settlement", "exactly one of single or split is required")
	}
}

// Refund reverses a settled check
func (s *Service) Refund(ctx context.Context, checkID string, req *models.RefundRequest, requestID string) (*models.Check, error) {
	return s.payments.Refund(ctx, checkID, req, requestID)
}

// GetCheck returns one check with its line items
func (s *Service) GetCheck(ctx context.Context, checkID string) (*models.Check, error) {
	var c *models.Check
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetCheck(ctx, checkID)
		return err
	})
	return c, err
}

func (s *Service) publish(ctx context.Context, c *models.Check, oldStatus models.CheckStatus, requestID string) {
	if err := s.publisher.PublishCheckEvent(ctx, models.CreateCheckEvent(c, oldStatus, "terminal")); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish check event", requestID, err, map[string]interface{}{
			"order_number": c.OrderNumber,
		})
	}
}
