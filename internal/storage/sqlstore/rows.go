package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/models"
)

// Times are stored as unix milliseconds so both dialects compare and sort
// them as plain integers.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

type shiftRow struct {
	ID             string              `db:"id"`
	EmployeeID     string              `db:"employee_id"`
	StartTime      int64               `db:"start_time"`
	EndTime        sql.NullInt64       `db:"end_time"`
	OpeningCash    decimal.Decimal     `db:"opening_cash"`
	ClosingCash    decimal.NullDecimal `db:"closing_cash"`
	ExpectedCash   decimal.NullDecimal `db:"expected_cash"`
	CashVariance   decimal.NullDecimal `db:"cash_variance"`
	Status         string              `db:"status"`
	RunningTotal   decimal.Decimal     `db:"running_total"`
	OrderCount     int                 `db:"order_count"`
	CashSalesTotal decimal.Decimal     `db:"cash_sales_total"`
	Notes          string              `db:"notes"`
	Version        int                 `db:"version"`
}

func newShiftRow(s *models.Shift) shiftRow {
	return shiftRow{
		ID:             s.ID,
		EmployeeID:     s.EmployeeID,
		StartTime:      toMillis(s.StartTime),
		EndTime:        nullMillis(s.EndTime),
		OpeningCash:    s.OpeningCash,
		ClosingCash:    s.ClosingCash,
		ExpectedCash:   s.ExpectedCash,
		CashVariance:   s.CashVariance,
		Status:         string(s.Status),
		RunningTotal:   s.RunningTotal,
		OrderCount:     s.OrderCount,
		CashSalesTotal: s.CashSalesTotal,
		Notes:          s.Notes,
		Version:        s.Version,
	}
}

func (r shiftRow) model() *models.Shift {
	return &models.Shift{
		ID:             r.ID,
		EmployeeID:     r.EmployeeID,
		StartTime:      fromMillis(r.StartTime),
		EndTime:        timePtr(r.EndTime),
		OpeningCash:    r.OpeningCash,
		ClosingCash:    r.ClosingCash,
		ExpectedCash:   r.ExpectedCash,
		CashVariance:   r.CashVariance,
		Status:         models.ShiftStatus(r.Status),
		RunningTotal:   r.RunningTotal,
		OrderCount:     r.OrderCount,
		CashSalesTotal: r.CashSalesTotal,
		Notes:          r.Notes,
		Version:        r.Version,
	}
}

type tableRow struct {
	ID           string `db:"id"`
	Number       int    `db:"number"`
	Capacity     int    `db:"capacity"`
	Section      string `db:"section"`
	Status       string `db:"status"`
	OpenCheckIDs string `db:"open_check_ids"`
	Version      int    `db:"version"`
}

func newTableRow(t *models.Table) (tableRow, error) {
	ids := t.OpenCheckIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return tableRow{}, fmt.Errorf("encode open checks: %w", err)
	}
	return tableRow{
		ID:           t.ID,
		Number:       t.Number,
		Capacity:     t.Capacity,
		Section:      t.Section,
		Status:       string(t.Status),
		OpenCheckIDs: string(raw),
		Version:      t.Version,
	}, nil
}

func (r tableRow) model() (*models.Table, error) {
	t := &models.Table{
		ID:       r.ID,
		Number:   r.Number,
		Capacity: r.Capacity,
		Section:  r.Section,
		Status:   models.TableStatus(r.Status),
		Version:  r.Version,
	}
	if err := json.Unmarshal([]byte(r.OpenCheckIDs), &t.OpenCheckIDs); err != nil {
		return nil, fmt.Errorf("decode open checks of table %d: %w", r.Number, err)
	}
	if len(t.OpenCheckIDs) == 0 {
		t.OpenCheckIDs = nil
	}
	return t, nil
}

type checkRow struct {
	ID             string          `db:"id"`
	OrderNumber    string          `db:"order_number"`
	ShiftID        sql.NullString  `db:"shift_id"`
	TableID        sql.NullString  `db:"table_id"`
	TableNumber    sql.NullInt64   `db:"table_number"`
	OrderType      string          `db:"order_type"`
	ServiceType    string          `db:"service_type"`
	Status         string          `db:"status"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	PaymentMethod  string          `db:"payment_method"`
	PaymentStatus  string          `db:"payment_status"`
	CustomerID     sql.NullString  `db:"customer_id"`
	SplitFromID    sql.NullString  `db:"split_from_id"`
	CreatedAt      int64           `db:"created_at"`
	UpdatedAt      int64           `db:"updated_at"`
	CompletedAt    sql.NullInt64   `db:"completed_at"`
	Version        int             `db:"version"`
}

func newCheckRow(c *models.Check) checkRow {
	row := checkRow{
		ID:             c.ID,
		OrderNumber:    c.OrderNumber,
		ShiftID:        nullString(c.ShiftID),
		TableID:        nullString(c.TableID),
		OrderType:      string(c.OrderType),
		ServiceType:    string(c.ServiceType),
		Status:         string(c.Status),
		Subtotal:       c.Subtotal,
		DiscountAmount: c.DiscountAmount,
		TaxAmount:      c.TaxAmount,
		TotalAmount:    c.TotalAmount,
		PaymentMethod:  string(c.PaymentMethod),
		PaymentStatus:  string(c.PaymentStatus),
		CustomerID:     nullString(c.CustomerID),
		SplitFromID:    nullString(c.SplitFromID),
		CreatedAt:      toMillis(c.CreatedAt),
		UpdatedAt:      toMillis(c.UpdatedAt),
		CompletedAt:    nullMillis(c.CompletedAt),
		Version:        c.Version,
	}
	if c.TableNumber != nil {
		row.TableNumber = sql.NullInt64{Int64: int64(*c.TableNumber), Valid: true}
	}
	return row
}

func (r checkRow) model() *models.Check {
	c := &models.Check{
		ID:             r.ID,
		OrderNumber:    r.OrderNumber,
		ShiftID:        stringPtr(r.ShiftID),
		TableID:        stringPtr(r.TableID),
		OrderType:      models.OrderType(r.OrderType),
		ServiceType:    models.ServiceType(r.ServiceType),
		Status:         models.CheckStatus(r.Status),
		Subtotal:       r.Subtotal,
		DiscountAmount: r.DiscountAmount,
		TaxAmount:      r.TaxAmount,
		TotalAmount:    r.TotalAmount,
		PaymentMethod:  models.PaymentMethod(r.PaymentMethod),
		PaymentStatus:  models.PaymentStatus(r.PaymentStatus),
		CustomerID:     stringPtr(r.CustomerID),
		SplitFromID:    stringPtr(r.SplitFromID),
		CreatedAt:      fromMillis(r.CreatedAt),
		UpdatedAt:      fromMillis(r.UpdatedAt),
		CompletedAt:    timePtr(r.CompletedAt),
		Version:        r.Version,
	}
	if r.TableNumber.Valid {
		n := int(r.TableNumber.Int64)
		c.TableNumber = &n
	}
	return c
}

type lineItemRow struct {
	ID           string          `db:"id"`
	CheckID      string          `db:"check_id"`
	Position     int             `db:"position"`
	ProductID    string          `db:"product_id"`
	ComboID      string          `db:"combo_id"`
	Name         string          `db:"name"`
	Quantity     int             `db:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price"`
	Size         string          `db:"size"`
	Notes        string          `db:"notes"`
	Status       string          `db:"status"`
	Subtotal     decimal.Decimal `db:"subtotal"`
	AdjustReason string          `db:"adjust_reason"`
	AdjustedBy   string          `db:"adjusted_by"`
	AdjustedAt   sql.NullInt64   `db:"adjusted_at"`
}

func newLineItemRow(checkID string, position int, li models.LineItem) lineItemRow {
	return lineItemRow{
		ID:           li.ID,
		CheckID:      checkID,
		Position:     position,
		ProductID:    li.ProductID,
		ComboID:      li.ComboID,
		Name:         li.Name,
		Quantity:     li.Quantity,
		UnitPrice:    li.UnitPrice,
		Size:         li.Size,
		Notes:        li.Notes,
		Status:       string(li.Status),
		Subtotal:     li.Subtotal,
		AdjustReason: li.AdjustReason,
		AdjustedBy:   li.AdjustedBy,
		AdjustedAt:   nullMillis(li.AdjustedAt),
	}
}

func (r lineItemRow) model() models.LineItem {
	return models.LineItem{
		ID:           r.ID,
		CatalogRef:   models.CatalogRef{ProductID: r.ProductID, ComboID: r.ComboID},
		CheckID:      r.CheckID,
		Name:         r.Name,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		Size:         r.Size,
		Notes:        r.Notes,
		Status:       models.LineItemStatus(r.Status),
		Subtotal:     r.Subtotal,
		AdjustReason: r.AdjustReason,
		AdjustedBy:   r.AdjustedBy,
		AdjustedAt:   timePtr(r.AdjustedAt),
		Position:     r.Position,
	}
}

type settlementRow struct {
	Token          string          `db:"token"`
	CheckID        string          `db:"check_id"`
	OrderNumber    string          `db:"order_number"`
	ShiftID        string          `db:"shift_id"`
	PaymentMethod  string          `db:"payment_method"`
	PaymentStatus  string          `db:"payment_status"`
	Payments       string          `db:"payments"`
	AmountDue      decimal.Decimal `db:"amount_due"`
	AmountTendered decimal.Decimal `db:"amount_tendered"`
	Change         decimal.Decimal `db:"change_due"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	CreatedAt      int64           `db:"created_at"`
}

func newSettlementRow(s *models.Settlement) (settlementRow, error) {
	raw, err := json.Marshal(s.Payments)
	if err != nil {
		return settlementRow{}, fmt.Errorf("encode payments: %w", err)
	}
	return settlementRow{
		Token:          s.Token,
		CheckID:        s.CheckID,
		OrderNumber:    s.OrderNumber,
		ShiftID:        s.ShiftID,
		PaymentMethod:  string(s.PaymentMethod),
		PaymentStatus:  string(s.PaymentStatus),
		Payments:       string(raw),
		AmountDue:      s.AmountDue,
		AmountTendered: s.AmountTendered,
		Change:         s.Change,
		DiscountAmount: s.DiscountAmount,
		CreatedAt:      toMillis(s.CreatedAt),
	}, nil
}

func (r settlementRow) model() (*models.Settlement, error) {
	s := &models.Settlement{
		Token:          r.Token,
		CheckID:        r.CheckID,
		OrderNumber:    r.OrderNumber,
		ShiftID:        r.ShiftID,
		PaymentMethod:  models.PaymentMethod(r.PaymentMethod),
		PaymentStatus:  models.PaymentStatus(r.PaymentStatus),
		AmountDue:      r.AmountDue,
		AmountTendered: r.AmountTendered,
		Change:         r.Change,
		DiscountAmount: r.DiscountAmount,
		CreatedAt:      fromMillis(r.CreatedAt),
	}
	if err := json.Unmarshal([]byte(r.Payments), &s.Payments); err != nil {
		return nil, fmt.Errorf("decode payments of %s: %w", r.Token, err)
	}
	return s, nil
}
