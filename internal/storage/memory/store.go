// Package memory is the in-process storage engine. Transactions are
// serialized under one store lock and stage their writes until commit.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/storage"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

// Store keeps every aggregate in maps guarded by mu
type Store struct {
	mu          sync.RWMutex
	shifts      map[string]models.Shift
	tables      map[string]*models.Table
	checks      map[string]*models.Check
	settlements map[string]*models.Settlement
	sequences   map[string]int
}

// New creates an empty store
func New() *Store {
	return &Store{
		shifts:      make(map[string]models.Shift),
		tables:      make(map[string]*models.Table),
		checks:      make(map[string]*models.Check),
		settlements: make(map[string]*models.Settlement),
		sequences:   make(map[string]int),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return poserr.Unavailable("begin transaction", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s, false)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return poserr.Unavailable("begin read", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(newTx(s, true))
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// tx overlays staged writes on the committed maps
type tx struct {
	store    *Store
	readOnly bool

	shifts        map[string]models.Shift
	tables        map[string]*models.Table
	deletedTables map[string]bool
	checks        map[string]*models.Check
	settlements   map[string]*models.Settlement
	sequences     map[string]int
}

func newTx(s *Store, readOnly bool) *tx {
	return &tx{
		store:         s,
		readOnly:      readOnly,
		shifts:        make(map[string]models.Shift),
		tables:        make(map[string]*models.Table),
		deletedTables: make(map[string]bool),
		checks:        make(map[string]*models.Check),
		settlements:   make(map[string]*models.Settlement),
		sequences:     make(map[string]int),
	}
}

func (t *tx) commit() {
	for id, sh := range t.shifts {
		t.store.shifts[id] = sh
	}
	for id := range t.deletedTables {
		delete(t.store.tables, id)
	}
	for id, tb := range t.tables {
		t.store.tables[id] = tb
	}
	for id, c := range t.checks {
		t.store.checks[id] = c
	}
	for token, st := range t.settlements {
		t.store.settlements[token] = st
	}
	for day, seq := range t.sequences {
		t.store.sequences[day] = seq
	}
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// Shifts

func (t *tx) shift(id string) (models.Shift, bool) {
	if sh, ok := t.shifts[id]; ok {
		return sh, true
	}
	sh, ok := t.store.shifts[id]
	return sh, ok
}

func (t *tx) allShifts() map[string]models.Shift {
	all := make(map[string]models.Shift, len(t.store.shifts)+len(t.shifts))
	for id, sh := range t.store.shifts {
		all[id] = sh
	}
	for id, sh := range t.shifts {
		all[id] = sh
	}
	return all
}

func (t *tx) GetShift(_ context.Context, id string) (*models.Shift, error) {
	sh, ok := t.shift(id)
	if !ok {
		return nil, poserr.NotFound("shift", id)
	}
	return &sh, nil
}

func (t *tx) FindActiveShift(_ context.Context, employeeID string) (*models.Shift, error) {
	for _, sh := range t.allShifts() {
		if sh.EmployeeID == employeeID && sh.Status == models.ShiftActive {
			return &sh, nil
		}
	}
	return nil, nil
}

func (t *tx) CreateShift(ctx context.Context, s *models.Shift) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.shift(s.ID); ok {
		return poserr.Conflict("shift %s already exists", s.ID)
	}
	if active, _ := t.FindActiveShift(ctx, s.EmployeeID); active != nil && s.Status == models.ShiftActive {
		return poserr.Conflict("employee %s already has an active shift", s.EmployeeID)
	}
	s.Version = 1
	t.shifts[s.ID] = *s
	return nil
}

func (t *tx) SaveShift(_ context.Context, s *models.Shift) error {
	if err := t.writable(); err != nil {
		return err
	}
	current, ok := t.shift(s.ID)
	if !ok {
		return poserr.NotFound("shift", s.ID)
	}
	if current.Version != s.Version {
		return poserr.Conflict("shift %s was modified concurrently", s.ID)
	}
	s.Version++
	t.shifts[s.ID] = *s
	return nil
}

// Tables

func (t *tx) table(id string) (*models.Table, bool) {
	if t.deletedTables[id] {
		return nil, false
	}
	if tb, ok := t.tables[id]; ok {
		return tb, true
	}
	tb, ok := t.store.tables[id]
	return tb, ok
}

func (t *tx) GetTable(_ context.Context, id string) (*models.Table, error) {
	tb, ok := t.table(id)
	if !ok {
		return nil, poserr.NotFound("table", id)
	}
	return tb.Clone(), nil
}

func (t *tx) ListTables(_ context.Context) ([]*models.Table, error) {
	ids := make(map[string]bool)
	for id := range t.store.tables {
		ids[id] = true
	}
	for id := range t.tables {
		ids[id] = true
	}

	var out []*models.Table
	for id := range ids {
		if tb, ok := t.table(id); ok {
			out = append(out, tb.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (t *tx) CreateTable(ctx context.Context, tb *models.Table) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.table(tb.ID); ok {
		return poserr.Conflict("table %s already exists", tb.ID)
	}
	tables, _ := t.ListTables(ctx)
	for _, other := range tables {
		if other.Number == tb.Number {
			return poserr.Conflict("table number %d already exists", tb.Number)
		}
	}
	tb.Version = 1
	delete(t.deletedTables, tb.ID)
	t.tables[tb.ID] = tb.Clone()
	return nil
}

func (t *tx) SaveTable(_ context.Context, tb *models.Table) error {
	if err := t.writable(); err != nil {
		return err
	}
	current, ok := t.table(tb.ID)
	if !ok {
		return poserr.NotFound("table", tb.ID)
	}
	if current.Version != tb.Version {
		return poserr.Conflict("table %d was modified concurrently", tb.Number)
	}
	tb.Version++
	t.tables[tb.ID] = tb.Clone()
	return nil
}

func (t *tx) DeleteTable(_ context.Context, tb *models.Table) error {
	if err := t.writable(); err != nil {
		return err
	}
	current, ok := t.table(tb.ID)
	if !ok {
		return poserr.NotFound("table", tb.ID)
	}
	if current.Version != tb.Version {
		return poserr.Conflict("table %d was modified concurrently", tb.Number)
	}
	delete(t.tables, tb.ID)
	t.deletedTables[tb.ID] = true
	return nil
}

// Checks

func (t *tx) check(id string) (*models.Check, bool) {
	if c, ok := t.checks[id]; ok {
		return c, true
	}
	c, ok := t.store.checks[id]
	return c, ok
}

func (t *tx) GetCheck(_ context.Context, id string) (*models.Check, error) {
	c, ok := t.check(id)
	if !ok {
		return nil, poserr.NotFound("check", id)
	}
	return c.Clone(), nil
}

func (t *tx) ListChecksByStatus(_ context.Context, statuses ...models.CheckStatus) ([]*models.Check, error) {
	seen := make(map[string]bool)
	var out []*models.Check
	collect := func(c *models.Check) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		if slices.Contains(statuses, c.Status) {
			out = append(out, c.Clone())
		}
	}
	for _, c := range t.checks {
		collect(c)
	}
	for _, c := range t.store.checks {
		collect(c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *tx) CreateCheck(_ context.Context, c *models.Check) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.check(c.ID); ok {
		return poserr.Conflict("check %s already exists", c.ID)
	}
	c.Version = 1
	t.checks[c.ID] = c.Clone()
	return nil
}

func (t *tx) SaveCheck(_ context.Context, c *models.Check) error {
	if err := t.writable(); err != nil {
		return err
	}
	current, ok := t.check(c.ID)
	if !ok {
		return poserr.NotFound("check", c.ID)
	}
	if current.Version != c.Version {
		return poserr.Conflict("check %s was modified concurrently", c.OrderNumber)
	}
	c.Version++
	t.checks[c.ID] = c.Clone()
	return nil
}

func (t *tx) NextOrderSequence(_ context.Context, day string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	seq, ok := t.sequences[day]
	if !ok {
		seq = t.store.sequences[day]
	}
	seq++
	t.sequences[day] = seq
	return seq, nil
}

// Settlements

func cloneSettlement(s *models.Settlement) *models.Settlement {
	cp := *s
	cp.Payments = slices.Clone(s.Payments)
	return &cp
}

func (t *tx) allSettlements() []*models.Settlement {
	out := make([]*models.Settlement, 0, len(t.store.settlements)+len(t.settlements))
	for token, st := range t.store.settlements {
		if _, staged := t.settlements[token]; !staged {
			out = append(out, st)
		}
	}
	for _, st := range t.settlements {
		out = append(out, st)
	}
	return out
}

func (t *tx) FindSettlement(_ context.Context, token string) (*models.Settlement, error) {
	if st, ok := t.settlements[token]; ok {
		return cloneSettlement(st), nil
	}
	if st, ok := t.store.settlements[token]; ok {
		return cloneSettlement(st), nil
	}
	return nil, nil
}

func (t *tx) FindSettlementByCheck(_ context.Context, checkID string) (*models.Settlement, error) {
	for _, st := range t.allSettlements() {
		if st.CheckID == checkID {
			return cloneSettlement(st), nil
		}
	}
	return nil, nil
}

func (t *tx) CreateSettlement(ctx context.Context, s *models.Settlement) error {
	if err := t.writable(); err != nil {
		return err
	}
	if existing, _ := t.FindSettlement(ctx, s.Token); existing != nil {
		return poserr.Conflict("settlement %s already recorded", s.Token)
	}
	if existing, _ := t.FindSettlementByCheck(ctx, s.CheckID); existing != nil {
		return poserr.Conflict("check %s already settled", s.OrderNumber)
	}
	t.settlements[s.Token] = cloneSettlement(s)
	return nil
}

func (t *tx) ListSettlementsByShift(_ context.Context, shiftID string) ([]*models.Settlement, error) {
	var out []*models.Settlement
	for _, st := range t.allSettlements() {
		if st.ShiftID == shiftID {
			out = append(out, cloneSettlement(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
