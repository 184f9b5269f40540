// Package storage defines the transactional contract every storage engine
// upholds.
//
// All writes happen inside Store.InTx. Save methods are compare-and-swap on
// the aggregate's Version: a stale version fails with a poserr conflict and
// a successful save bumps Version on the passed struct. Either every write
// in a transaction is applied or none is.
package storage

import (
	"context"

	"restaurant-pos/internal/models"
)

// Store opens transactions against one storage engine
type Store interface {
	// InTx runs fn in a read-write transaction and commits when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a read-only snapshot. It never blocks writers
	// for longer than a single read.
	View(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of repositories visible inside a transaction
type Tx interface {
	Shifts
	Tables
	Checks
	Settlements
}

// Shifts persists cashier shifts
type Shifts interface {
	GetShift(ctx context.Context, id string) (*models.Shift, error)
	// FindActiveShift returns nil, nil when the employee has no active shift.
	FindActiveShift(ctx context.Context, employeeID string) (*models.Shift, error)
	CreateShift(ctx context.Context, s *models.Shift) error
	SaveShift(ctx context.Context, s *models.Shift) error
}

// Tables persists physical tables and their open check sets
type Tables interface {
	GetTable(ctx context.Context, id string) (*models.Table, error)
	ListTables(ctx context.Context) ([]*models.Table, error)
	CreateTable(ctx context.Context, t *models.Table) error
	SaveTable(ctx context.Context, t *models.Table) error
	DeleteTable(ctx context.Context, t *models.Table) error
}

// Checks persists checks together with their line items
type Checks interface {
	GetCheck(ctx context.Context, id string) (*models.Check, error)
	// ListChecksByStatus returns matching checks oldest first.
	ListChecksByStatus(ctx context.Context, statuses ...models.CheckStatus) ([]*models.Check, error)
	CreateCheck(ctx context.Context, c *models.Check) error
	SaveCheck(ctx context.Context, c *models.Check) error
	// NextOrderSequence allocates the next order number sequence for a day.
	NextOrderSequence(ctx context.Context, day string) (int, error)
}

// Settlements persists settlement records keyed by token
type Settlements interface {
	// FindSettlement returns nil, nil when the token is unknown.
	FindSettlement(ctx context.Context, token string) (*models.Settlement, error)
	// FindSettlementByCheck returns nil, nil when the check was never settled.
	FindSettlementByCheck(ctx context.Context, checkID string) (*models.Settlement, error)
	CreateSettlement(ctx context.Context, s *models.Settlement) error
	ListSettlementsByShift(ctx context.Context, shiftID string) ([]*models.Settlement, error)
}
