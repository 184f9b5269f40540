package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// InTx runs fn inside a read-committed transaction. Lost updates are caught
// by the version predicate on every UPDATE.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// View runs fn inside a read-only transaction
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError("commit", err)
	}
	return nil
}

// pgTx implements storage.Tx on one pgx transaction
type pgTx struct {
	tx pgx.Tx
}

// casMiss tells a stale version from a missing row after an UPDATE or
// DELETE matched nothing.
func (t *pgTx) casMiss(ctx context.Context, existsSQL, entity, id, label string) error {
	var exists bool
	if err := t.tx.QueryRow(ctx, existsSQL, id).Scan(&exists); err != nil {
		return mapError("check "+entity, err)
	}
	if !exists {
		return poserr.NotFound(entity, id)
	}
	return poserr.Conflict("%s %s was modified concurrently", entity, label)
}

// Shifts

func scanShift(row pgx.Row) (*models.Shift, error) {
	var sh models.Shift
	err := row.Scan(&sh.ID, &sh.EmployeeID, &sh.StartTime, &sh.EndTime, &sh.OpeningCash, &sh.ClosingCash,
		&sh.ExpectedCash, &sh.CashVariance, &sh.Status, &sh.RunningTotal, &sh.OrderCount,
		&sh.CashSalesTotal, &sh.Notes, &sh.Version)
	if err != nil {
		return nil, err
	}
	sh.StartTime = sh.StartTime.UTC()
	if sh.EndTime != nil {
		end := sh.EndTime.UTC()
		sh.EndTime = &end
	}
	return &sh, nil
}

func (t *pgTx) GetShift(ctx context.Context, id string) (*models.Shift, error) {
	sh, err := scanShift(t.tx.QueryRow(ctx, GetShiftSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, poserr.NotFound("shift", id)
	}
	if err != nil {
		return nil, mapError("get shift", err)
	}
	return sh, nil
}

func (t *pgTx) FindActiveShift(ctx context.Context, employeeID string) (*models.Shift, error) {
	sh, err := scanShift(t.tx.QueryRow(ctx, FindActiveShiftSQL, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("find active shift", err)
	}
	return sh, nil
}

func (t *pgTx) CreateShift(ctx context.Context, s *models.Shift) error {
	_, err := t.tx.Exec(ctx, InsertShiftSQL,
		s.ID, s.EmployeeID, s.StartTime, s.EndTime, s.OpeningCash, s.ClosingCash, s.ExpectedCash,
		s.CashVariance, s.Status, s.RunningTotal, s.OrderCount, s.CashSalesTotal, s.Notes, 1)
	if err != nil {
		return mapError("create shift", err)
	}
	s.Version = 1
	return nil
}

func (t *pgTx) SaveShift(ctx context.Context, s *models.Shift) error {
	tag, err := t.tx.Exec(ctx, UpdateShiftSQL,
		s.ID, s.Version, s.EndTime, s.ClosingCash, s.ExpectedCash, s.CashVariance,
		s.Status, s.RunningTotal, s.OrderCount, s.CashSalesTotal, s.Notes)
	if err != nil {
		return mapError("save shift", err)
	}
	if tag.RowsAffected() == 0 {
		return t.casMiss(ctx, ShiftExistsSQL, "shift", s.ID, s.ID)
	}
	s.Version++
	return nil
}

// Tables

func scanTable(row pgx.Row) (*models.Table, error) {
	var (
		tb      models.Table
		openIDs []byte
	)
	if err := row.Scan(&tb.ID, &tb.Number, &tb.Capacity, &tb.Section, &tb.Status, &openIDs, &tb.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(openIDs, &tb.OpenCheckIDs); err != nil {
		return nil, fmt.Errorf("decode open checks of table %d: %w", tb.Number, err)
	}
	if len(tb.OpenCheckIDs) == 0 {
		tb.OpenCheckIDs = nil
	}
	return &tb, nil
}

func encodeOpenChecks(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

func (t *pgTx) GetTable(ctx context.Context, id string) (*models.Table, error) {
	tb, err := scanTable(t.tx.QueryRow(ctx, GetTableSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, poserr.NotFound("table", id)
	}
	if err != nil {
		return nil, mapError("get table", err)
	}
	return tb, nil
}

func (t *pgTx) ListTables(ctx context.Context) ([]*models.Table, error) {
	rows, err := t.tx.Query(ctx, ListTablesSQL)
	if err != nil {
		return nil, mapError("list tables", err)
	}
	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Table, error) {
		return scanTable(row)
	})
	if err != nil {
		return nil, mapError("list tables", err)
	}
	return tables, nil
}

func (t *pgTx) CreateTable(ctx context.Context, tb *models.Table) error {
	openIDs, err := encodeOpenChecks(tb.OpenCheckIDs)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, InsertTableSQL, tb.ID, tb.Number, tb.Capacity, tb.Section, tb.Status, openIDs, 1)
	if err != nil {
		return mapError("create table", err)
	}
	tb.Version = 1
	return nil
}

func (t *pgTx) SaveTable(ctx context.Context, tb *models.Table) error {
	openIDs, err := encodeOpenChecks(tb.OpenCheckIDs)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, UpdateTableSQL, tb.ID, tb.Version, tb.Capacity, tb.Section, tb.Status, openIDs)
	if err != nil {
		return mapError("save table", err)
	}
	if tag.RowsAffected() == 0 {
		return t.casMiss(ctx, TableExistsSQL, "table", tb.ID, fmt.Sprint(tb.Number))
	}
	tb.Version++
	return nil
}

func (t *pgTx) DeleteTable(ctx context.Context, tb *models.Table) error {
	tag, err := t.tx.Exec(ctx, DeleteTableSQL, tb.ID, tb.Version)
	if err != nil {
		return mapError("delete table", err)
	}
	if tag.RowsAffected() == 0 {
		return t.casMiss(ctx, TableExistsSQL, "table", tb.ID, fmt.Sprint(tb.Number))
	}
	return nil
}

// Checks

func scanCheck(row pgx.Row) (*models.Check, error) {
	var c models.Check
	err := row.Scan(&c.ID, &c.OrderNumber, &c.ShiftID, &c.TableID, &c.TableNumber, &c.OrderType,
		&c.ServiceType, &c.Status, &c.Subtotal, &c.DiscountAmount, &c.TaxAmount, &c.TotalAmount,
		&c.PaymentMethod, &c.PaymentStatus, &c.CustomerID, &c.SplitFromID, &c.CreatedAt,
		&c.UpdatedAt, &c.CompletedAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.CompletedAt != nil {
		done := c.CompletedAt.UTC()
		c.CompletedAt = &done
	}
	return &c, nil
}

func scanLineItem(row pgx.CollectableRow) (models.LineItem, error) {
	var li models.LineItem
	err := row.Scan(&li.ID, &li.CheckID, &li.Position, &li.ProductID, &li.ComboID, &li.Name, &li.Quantity,
		&li.UnitPrice, &li.Size, &li.Notes, &li.Status, &li.Subtotal, &li.AdjustReason,
		&li.AdjustedBy, &li.AdjustedAt)
	if li.AdjustedAt != nil {
		at := li.AdjustedAt.UTC()
		li.AdjustedAt = &at
	}
	return li, err
}

// loadItems attaches the line items of every check in one round trip
func (t *pgTx) loadItems(ctx context.Context, checks []*models.Check) error {
	if len(checks) == 0 {
		return nil
	}
	byID := make(map[string]*models.Check, len(checks))
	ids := make([]string, 0, len(checks))
	for _, c := range checks {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	rows, err := t.tx.Query(ctx, ListLineItemsSQL, ids)
	if err != nil {
		return err
	}
	items, err := pgx.CollectRows(rows, scanLineItem)
	if err != nil {
		return err
	}
	for _, li := range items {
		c := byID[li.CheckID]
		c.Items = append(c.Items, li)
	}
	return nil
}

func (t *pgTx) GetCheck(ctx context.Context, id string) (*models.Check, error) {
	c, err := scanCheck(t.tx.QueryRow(ctx, GetCheckSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, poserr.NotFound("check", id)
	}
	if err != nil {
		return nil, mapError("get check", err)
	}
	if err := t.loadItems(ctx, []*models.Check{c}); err != nil {
		return nil, mapError("get check items", err)
	}
	return c, nil
}

func (t *pgTx) ListChecksByStatus(ctx context.Context, statuses ...models.CheckStatus) ([]*models.Check, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := t.tx.Query(ctx, ListChecksByStatusSQL, names)
	if err != nil {
		return nil, mapError("list checks", err)
	}
	checks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Check, error) {
		return scanCheck(row)
	})
	if err != nil {
		return nil, mapError("list checks", err)
	}
	if err := t.loadItems(ctx, checks); err != nil {
		return nil, mapError("list check items", err)
	}
	return checks, nil
}

func (t *pgTx) CreateCheck(ctx context.Context, c *models.Check) error {
	_, err := t.tx.Exec(ctx, InsertCheckSQL,
		c.ID, c.OrderNumber, c.ShiftID, c.TableID, c.TableNumber, c.OrderType, c.ServiceType, c.Status,
		c.Subtotal, c.DiscountAmount, c.TaxAmount, c.TotalAmount, c.PaymentMethod, c.PaymentStatus,
		c.CustomerID, c.SplitFromID, c.CreatedAt, c.UpdatedAt, c.CompletedAt, 1)
	if err != nil {
		return mapError("create check", err)
	}
	if err := t.writeItems(ctx, c); err != nil {
		return err
	}
	c.Version = 1
	return nil
}

func (t *pgTx) SaveCheck(ctx context.Context, c *models.Check) error {
	tag, err := t.tx.Exec(ctx, UpdateCheckSQL,
		c.ID, c.Version, c.ShiftID, c.TableID, c.TableNumber, c.Status,
		c.Subtotal, c.DiscountAmount, c.TaxAmount, c.TotalAmount,
		c.PaymentMethod, c.PaymentStatus, c.CustomerID, c.UpdatedAt, c.CompletedAt)
	if err != nil {
		return mapError("save check", err)
	}
	if tag.RowsAffected() == 0 {
		return t.casMiss(ctx, CheckExistsSQL, "check", c.ID, c.OrderNumber)
	}
	if err := t.writeItems(ctx, c); err != nil {
		return err
	}
	c.Version++
	return nil
}

// writeItems makes the stored line items of c match c.Items exactly
func (t *pgTx) writeItems(ctx context.Context, c *models.Check) error {
	ids := make([]string, 0, len(c.Items))
	batch := &pgx.Batch{}
	for i, li := range c.Items {
		ids = append(ids, li.ID)
		batch.Queue(UpsertLineItemSQL,
			li.ID, c.ID, i, li.ProductID, li.ComboID, li.Name, li.Quantity, li.UnitPrice, li.Size,
			li.Notes, li.Status, li.Subtotal, li.AdjustReason, li.AdjustedBy, li.AdjustedAt)
	}
	batch.Queue(DeleteStaleLineItemsSQL, c.ID, ids)

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError("write line items", err)
	}
	return nil
}

func (t *pgTx) NextOrderSequence(ctx context.Context, day string) (int, error) {
	var seq int
	if err := t.tx.QueryRow(ctx, NextOrderSequenceSQL, day).Scan(&seq); err != nil {
		return 0, mapError("next order sequence", err)
	}
	return seq, nil
}

// Settlements

func scanSettlement(row pgx.Row) (*models.Settlement, error) {
	var (
		st       models.Settlement
		payments []byte
	)
	err := row.Scan(&st.Token, &st.CheckID, &st.OrderNumber, &st.ShiftID, &st.PaymentMethod, &st.PaymentStatus,
		&payments, &st.AmountDue, &st.AmountTendered, &st.Change, &st.DiscountAmount, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payments, &st.Payments); err != nil {
		return nil, fmt.Errorf("decode payments of %s: %w", st.Token, err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}

func (t *pgTx) findSettlement(ctx context.Context, sql, key string) (*models.Settlement, error) {
	st, err := scanSettlement(t.tx.QueryRow(ctx, sql, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("find settlement", err)
	}
	return st, nil
}

func (t *pgTx) FindSettlement(ctx context.Context, token string) (*models.Settlement, error) {
	return t.findSettlement(ctx, FindSettlementSQL, token)
}

func (t *pgTx) FindSettlementByCheck(ctx context.Context, checkID string) (*models.Settlement, error) {
	return t.findSettlement(ctx, FindSettlementByCheckSQL, checkID)
}

func (t *pgTx) CreateSettlement(ctx context.Context, s *models.Settlement) error {
	payments, err := json.Marshal(s.Payments)
	if err != nil {
		return fmt.Errorf("encode payments: %w", err)
	}
	_, err = t.tx.Exec(ctx, InsertSettlementSQL,
		s.Token, s.CheckID, s.OrderNumber, s.ShiftID, s.PaymentMethod, s.PaymentStatus, payments,
		s.AmountDue, s.AmountTendered, s.Change, s.DiscountAmount, s.CreatedAt)
	if err != nil {
		return mapError("create settlement", err)
	}
	return nil
}

func (t *pgTx) ListSettlementsByShift(ctx context.Context, shiftID string) ([]*models.Settlement, error) {
	rows, err := t.tx.Query(ctx, ListSettlementsByShiftSQL, shiftID)
	if err != nil {
		return nil, mapError("list settlements", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Settlement, error) {
		return scanSettlement(row)
	})
	if err != nil {
		return nil, mapError("list settlements", err)
	}
	return list, nil
}
