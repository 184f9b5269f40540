// Package table tracks the occupancy of physical tables.
//
// Only the check engine occupies or releases a table. Staff overrides move
// tables between available, reserved and needs-cleaning while no check is
// open on them.
package table

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"restaurant-pos/internal/config"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/storage"
)

// Service handles table registry operations
type Service struct {
	store  storage.Store
	logger *logger.Logger
}

// NewService creates a new table service
func NewService(store storage.Store, log *logger.Logger) *Service {
	return &Service{store: store, logger: log}
}

// Seed creates the configured tables that do not exist yet. Existing table
// numbers are left untouched.
func (s *Service) Seed(ctx context.Context, seeds []config.TableSeed) (int, error) {
	created := 0
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.ListTables(ctx)
		if err != nil {
			return err
		}
		known := make(map[int]bool, len(existing))
		for _, t := range existing {
			known[t.Number] = true
		}
		for _, seed := range seeds {
			if known[seed.Number] {
				continue
			}
			t := &models.Table{
				ID:       uuid.NewString(),
				Number:   seed.Number,
				Capacity: seed.Capacity,
				Section:  seed.Section,
				Status:   models.TableAvailable,
			}
			if err := tx.CreateTable(ctx, t); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed tables: %w", err)
	}
	return created, nil
}

// AddTable registers one table
func (s *Service) AddTable(ctx context.Context, number, capacity int, section string) (*models.Table, error) {
	if number < 1 {
		return nil, poserr.Validation("number", "must be positive")
	}
	if capacity < 1 {
		return nil, poserr.Validation("capacity", "must be positive")
	}
	t := &models.Table{
		ID:       uuid.NewString(),
		Number:   number,
		Capacity: capacity,
		Section:  section,
		Status:   models.TableAvailable,
	}
	if err := s.store.InTx(ctx, func(tx storage.Tx) error { return tx.CreateTable(ctx, t) }); err != nil {
		return nil, fmt.Errorf("add table: %w", err)
	}
	return t, nil
}

// RemoveTable deletes a table that has no open checks
func (s *Service) RemoveTable(ctx context.Context, tableID, requestID string) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		t, err := tx.GetTable(ctx, tableID)
		if err != nil {
			return err
		}
		if t.Status == models.TableOccupied || t.HasOpenChecks() {
			return poserr.Conflict("table %d is occupied", t.Number)
		}
		return tx.DeleteTable(ctx, t)
	})
	if err != nil {
		return fmt.Errorf("remove table: %w", err)
	}
	s.logger.Info("table_removed", "Table removed", requestID, map[string]interface{}{"table_id": tableID})
	return nil
}

// GetTable returns one table
func (s *Service) GetTable(ctx context.Context, tableID string) (*models.Table, error) {
	var t *models.Table
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		t, err = tx.GetTable(ctx, tableID)
		return err
	})
	return t, err
}

// ListTables returns every table ordered by number
func (s *Service) ListTables(ctx context.Context) ([]*models.Table, error) {
	var tables []*models.Table
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		tables, err = tx.ListTables(ctx)
		return err
	})
	return tables, err
}

// UpdateStatus applies a staff override
func (s *Service) UpdateStatus(ctx context.Context, tableID, status, requestID string) (*models.Table, error) {
	newStatus, ok := models.ParseTableStatus(status)
	if !ok {
		return nil, poserr.Validation("status", "must be one of: available, occupied, reserved, needs-cleaning")
	}
	if newStatus == models.TableOccupied {
		return nil, poserr.InvalidTransition("tables are occupied only by opening a check")
	}

	var (
		table     *models.Table
		oldStatus models.TableStatus
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		table, err = tx.GetTable(ctx, tableID)
		if err != nil {
			return err
		}
		oldStatus = table.Status

		if table.HasOpenChecks() {
			if newStatus == models.TableAvailable {
				return poserr.InvalidTransition("table %d still has %d open checks", table.Number, len(table.OpenCheckIDs))
			}
			return poserr.InvalidTransition("table %d is occupied", table.Number)
		}
		if table.Status == models.TableOccupied {
			return poserr.InvalidTransition("table %d is released only by bill-out", table.Number)
		}
		if table.Status == newStatus {
			return nil
		}

		table.Status = newStatus
		return tx.SaveTable(ctx, table)
	})
	if err != nil {
		return nil, fmt.Errorf("update table status: %w", err)
	}

	s.logger.Info("table_status_changed", "Table status changed", requestID, map[string]interface{}{
		"table_id":   tableID,
		"number":     table.Number,
		"old_status": oldStatus,
		"new_status": table.Status,
	})
	return table, nil
}

// OccupyTx attaches the first check to an available table inside the
// caller's transaction.
func (s *Service) OccupyTx(ctx context.Context, tx storage.Tx, tableID, checkID string) (*models.Table, error) {
	t, err := tx.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TableAvailable || t.HasOpenChecks() {
		return nil, poserr.Conflict("table no longer available")
	}
	t.AttachCheck(checkID)
	if err := tx.SaveTable(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AttachTx adds another open check to an occupied table, as when a check
// is split.
func (s *Service) AttachTx(ctx context.Context, tx storage.Tx, tableID, checkID string) (*models.Table, error) {
	t, err := tx.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TableOccupied {
		return nil, poserr.InvalidState("table %d is not occupied", t.Number)
	}
	t.AttachCheck(checkID)
	if err := tx.SaveTable(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ReleaseTx removes a billed-out check from its table. The table becomes
// available when no open checks remain.
func (s *Service) ReleaseTx(ctx context.Context, tx storage.Tx, tableID, checkID string) (*models.Table, error) {
	t, err := tx.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	t.DetachCheck(checkID)
	if err := tx.SaveTable(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
