// Package sqlstore is the database/sql storage engine for SQLite and MySQL,
// built on sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"restaurant-pos/internal/config"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/storage"
)

//go:embed schema/*.sql
var schemas embed.FS

// dialect holds what differs between the supported databases
type dialect struct {
	driver string
	schema string
	// bumpSequence inserts day with seq 1 or increments its seq
	bumpSequence string
	readOnlyTx   bool
}

var dialects = map[string]dialect{
	config.DriverSQLite: {
		driver:       "sqlite",
		schema:       "schema/sqlite.sql",
		bumpSequence: `INSERT INTO order_sequences (day, seq) VALUES (?, 1) ON CONFLICT (day) DO UPDATE SET seq = seq + 1`,
	},
	config.DriverMySQL: {
		driver:       "mysql",
		schema:       "schema/mysql.sql",
		bumpSequence: `INSERT INTO order_sequences (day, seq) VALUES (?, 1) ON DUPLICATE KEY UPDATE seq = seq + 1`,
		readOnlyTx:   true,
	},
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store implements storage.Store on a sqlx handle
type Store struct {
	db      *sqlx.DB
	dialect dialect
	logger  *logger.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to the database selected by cfg.Storage.Driver and creates
// the schema if it is missing.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Store, error) {
	d, ok := dialects[cfg.Storage.Driver]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Storage.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, d.driver, cfg.StorageDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Storage.Driver, err)
	}
	if d.driver == "sqlite" {
		// One connection serializes writers and keeps a :memory: database alive.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	s := &Store{db: db, dialect: d, logger: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("db_connected", fmt.Sprintf("Connected to %s", cfg.Storage.Driver), "startup", nil)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	raw, err := schemas.ReadFile(s.dialect.schema)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{}, fn)
}

func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: s.dialect.readOnlyTx}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return mapError("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// sqlTx implements storage.Tx on one sqlx transaction
type sqlTx struct {
	tx      *sqlx.Tx
	dialect dialect
}

// updated reports whether a CAS write hit its row and explains the miss
// otherwise.
func (t *sqlTx) updated(ctx context.Context, res sql.Result, existsSQL, entity, id, label string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError("rows affected", err)
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := t.tx.GetContext(ctx, &count, existsSQL, id); err != nil {
		return mapError("check "+entity, err)
	}
	if count == 0 {
		return poserr.NotFound(entity, id)
	}
	return poserr.Conflict("%s %s was modified concurrently", entity, label)
}

// Shifts

func (t *sqlTx) GetShift(ctx context.Context, id string) (*models.Shift, error) {
	var row shiftRow
	err := t.tx.GetContext(ctx, &row, getShiftSQL, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, poserr.NotFound("shift", id)
	}
	if err != nil {
		return nil, mapError("get shift", err)
	}
	return row.model(), nil
}

func (t *sqlTx) FindActiveShift(ctx context.Context, employeeID string) (*models.Shift, error) {
	var row shiftRow
	err := t.tx.GetContext(ctx, &row, findActiveShiftSQL, employeeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("find active shift", err)
	}
	return row.model(), nil
}

func (t *sqlTx) CreateShift(ctx context.Context, s *models.Shift) error {
	row := newShiftRow(s)
	row.Version = 1
	if _, err := t.tx.NamedExecContext(ctx, insertShiftSQL, row); err != nil {
		return mapError("create shift", err)
	}
	s.Version = 1
	return nil
}

func (t *sqlTx) SaveShift(ctx context.Context, s *models.Shift) error {
	res, err := t.tx.NamedExecContext(ctx, updateShiftSQL, newShiftRow(s))
	if err != nil {
		return mapError("save shift", err)
	}
	if err := t.updated(ctx, res, shiftExistsSQL, "shift", s.ID, s.ID); err != nil {
		return err
	}
	s.Version++
	return nil
}

// Tables

func (t *sqlTx) GetTable(ctx context.Context, id string) (*models.Table, error) {
	var row tableRow
	err := t.tx.GetContext(ctx, &row, getTableSQL, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, poserr.NotFound("table", id)
	}
	if err != nil {
		return nil, mapError("get table", err)
	}
	return row.model()
}

func (t *sqlTx) ListTables(ctx context.Context) ([]*models.Table, error) {
	var rows []tableRow
	if err := t.tx.SelectContext(ctx, &rows, listTablesSQL); err != nil {
		return nil, mapError("list tables", err)
	}
	tables := make([]*models.Table, 0, len(rows))
	for _, row := range rows {
		tb, err := row.model()
		if err != nil {
			return nil, err
		}
		tables = append(tables, tb)
	}
	return tables, nil
}

func (t *sqlTx) CreateTable(ctx context.Context, tb *models.Table) error {
	row, err := newTableRow(tb)
	if err != nil {
		return err
	}
	row.Version = 1
	if _, err := t.tx.NamedExecContext(ctx, insertTableSQL, row); err != nil {
		return mapError("create table", err)
	}
	tb.Version = 1
	return nil
}

func (t *sqlTx) SaveTable(ctx context.Context, tb *models.Table) error {
	row, err := newTableRow(tb)
	if err != nil {
		return err
	}
	res, err := t.tx.NamedExecContext(ctx, updateTableSQL, row)
	if err != nil {
		return mapError("save table", err)
	}
	if err := t.updated(ctx, res, tableExistsSQL, "table", tb.ID, fmt.Sprint(tb.Number)); err != nil {
		return err
	}
	tb.Version++
	return nil
}

func (t *sqlTx) DeleteTable(ctx context.Context, tb *models.Table) error {
	res, err := t.tx.ExecContext(ctx, deleteTableSQL, tb.ID, tb.Version)
	if err != nil {
		return mapError("delete table", err)
	}
	return t.updated(ctx, res, tableExistsSQL, "table", tb.ID, fmt.Sprint(tb.Number))
}

// Checks

// withItems converts rows and attaches their line items in one query
func (t *sqlTx) withItems(ctx context.Context, rows []checkRow) ([]*models.Check, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	checks := make([]*models.Check, 0, len(rows))
	byID := make(map[string]*models.Check, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		c := row.model()
		checks = append(checks, c)
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	query, args, err := sqlx.In(listLineItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("expand line item query: %w", err)
	}
	var items []lineItemRow
	if err := t.tx.SelectContext(ctx, &items, t.tx.Rebind(query), args...); err != nil {
		return nil, mapError("list line items", err)
	}
	for _, it := range items {
		c := byID[it.CheckID]
		c.Items = append(c.Items, it.model())
	}
	return checks, nil
}

func (t *sqlTx) GetCheck(ctx context.Context, id string) (*models.Check, error) {
	var row checkRow
	err := t.tx.GetContext(ctx, &row, getCheckSQL, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, poserr.NotFound("check", id)
	}
	if err != nil {
		return nil, mapError("get check", err)
	}
	checks, err := t.withItems(ctx, []checkRow{row})
	if err != nil {
		return nil, err
	}
	return checks[0], nil
}

func (t *sqlTx) ListChecksByStatus(ctx context.Context, statuses ...models.CheckStatus) ([]*models.Check, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	query, args, err := sqlx.In(listChecksByStatusSQL, names)
	if err != nil {
		return nil, fmt.Errorf("expand check query: %w", err)
	}
	var rows []checkRow
	if err := t.tx.SelectContext(ctx, &rows, t.tx.Rebind(query), args...); err != nil {
		return nil, mapError("list checks", err)
	}
	return t.withItems(ctx, rows)
}

func (t *sqlTx) CreateCheck(ctx context.Context, c *models.Check) error {
	row := newCheckRow(c)
	row.Version = 1
	if _, err := t.tx.NamedExecContext(ctx, insertCheckSQL, row); err != nil {
		return mapError("create check", err)
	}
	if err := t.writeItems(ctx, c); err != nil {
		return err
	}
	c.Version = 1
	return nil
}

func (t *sqlTx) SaveCheck(ctx context.Context, c *models.Check) error {
	res, err := t.tx.NamedExecContext(ctx, updateCheckSQL, newCheckRow(c))
	if err != nil {
		return mapError("save check", err)
	}
	if err := t.updated(ctx, res, checkExistsSQL, "check", c.ID, c.OrderNumber); err != nil {
		return err
	}
	if err := t.writeItems(ctx, c); err != nil {
		return err
	}
	c.Version++
	return nil
}

// writeItems replaces the stored line items of c with c.Items
func (t *sqlTx) writeItems(ctx context.Context, c *models.Check) error {
	if _, err := t.tx.ExecContext(ctx, deleteLineItemsSQL, c.ID); err != nil {
		return mapError("clear line items", err)
	}
	for i, li := range c.Items {
		if _, err := t.tx.NamedExecContext(ctx, insertLineItemSQL, newLineItemRow(c.ID, i, li)); err != nil {
			return mapError("write line item", err)
		}
	}
	return nil
}

func (t *sqlTx) NextOrderSequence(ctx context.Context, day string) (int, error) {
	if _, err := t.tx.ExecContext(ctx, t.dialect.bumpSequence, day); err != nil {
		return 0, mapError("next order sequence", err)
	}
	var seq int
	if err := t.tx.GetContext(ctx, &seq, currentSequenceSQL, day); err != nil {
		return 0, mapError("next order sequence", err)
	}
	return seq, nil
}

// Settlements

func (t *sqlTx) findSettlement(ctx context.Context, query, key string) (*models.Settlement, error) {
	var row settlementRow
	err := t.tx.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("find settlement", err)
	}
	return row.model()
}

func (t *sqlTx) FindSettlement(ctx context.Context, token string) (*models.Settlement, error) {
	return t.findSettlement(ctx, findSettlementSQL, token)
}

func (t *sqlTx) FindSettlementByCheck(ctx context.Context, checkID string) (*models.Settlement, error) {
	return t.findSettlement(ctx, findSettlementByCheckSQL, checkID)
}

func (t *sqlTx) CreateSettlement(ctx context.Context, s *models.Settlement) error {
	row, err := newSettlementRow(s)
	if err != nil {
		return err
	}
	if _, err := t.tx.NamedExecContext(ctx, insertSettlementSQL, row); err != nil {
		return mapError("create settlement", err)
	}
	return nil
}

func (t *sqlTx) ListSettlementsByShift(ctx context.Context, shiftID string) ([]*models.Settlement, error) {
	var rows []settlementRow
	if err := t.tx.SelectContext(ctx, &rows, listSettlementsByShiftSQL, shiftID); err != nil {
		return nil, mapError("list settlements", err)
	}
	list := make([]*models.Settlement, 0, len(rows))
	for _, row := range rows {
		st, err := row.model()
		if err != nil {
			return nil, err
		}
		list = append(list, st)
	}
	return list, nil
}
