package database

// Shift queries
const (
	shiftColumns = `id, employee_id, start_time, end_time, opening_cash, closing_cash, expected_cash,
		cash_variance, status, running_total, order_count, cash_sales_total, notes, version`

	GetShiftSQL = `SELECT ` + shiftColumns + ` FROM shifts WHERE id = $1`

	FindActiveShiftSQL = `SELECT ` + shiftColumns + ` FROM shifts WHERE employee_id = $1 AND status = 'active'`

	InsertShiftSQL = `
		INSERT INTO shifts (` + shiftColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	UpdateShiftSQL = `
		UPDATE shifts SET end_time = $3, closing_cash = $4, expected_cash = $5, cash_variance = $6,
			status = $7, running_total = $8, order_count = $9, cash_sales_total = $10, notes = $11,
			version = version + 1
		WHERE id = $1 AND version = $2`

	ShiftExistsSQL = `SELECT EXISTS (SELECT 1 FROM shifts WHERE id = $1)`
)

// Table queries
const (
	tableColumns = `id, number, capacity, section, status, open_check_ids, version`

	GetTableSQL = `SELECT ` + tableColumns + ` FROM pos_tables WHERE id = $1`

	ListTablesSQL = `SELECT ` + tableColumns + ` FROM pos_tables ORDER BY number`

	InsertTableSQL = `
		INSERT INTO pos_tables (` + tableColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	UpdateTableSQL = `
		UPDATE pos_tables SET capacity = $3, section = $4, status = $5, open_check_ids = $6,
			version = version + 1
		WHERE id = $1 AND version = $2`

	DeleteTableSQL = `DELETE FROM pos_tables WHERE id = $1 AND version = $2`

	TableExistsSQL = `SELECT EXISTS (SELECT 1 FROM pos_tables WHERE id = $1)`
)

// Check queries
const (
	checkColumns = `id, order_number, shift_id, table_id, table_number, order_type, service_type, status,
		subtotal, discount_amount, tax_amount, total_amount, payment_method, payment_status,
		customer_id, split_from_id, created_at, updated_at, completed_at, version`

	GetCheckSQL = `SELECT ` + checkColumns + ` FROM checks WHERE id = $1`

	ListChecksByStatusSQL = `
		SELECT ` + checkColumns + ` FROM checks
		WHERE status = ANY($1)
		ORDER BY created_at, order_number`

	InsertCheckSQL = `
		INSERT INTO checks (` + checkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	UpdateCheckSQL = `
		UPDATE checks SET shift_id = $3, table_id = $4, table_number = $5, status = $6,
			subtotal = $7, discount_amount = $8, tax_amount = $9, total_amount = $10,
			payment_method = $11, payment_status = $12, customer_id = $13,
			updated_at = $14, completed_at = $15, version = version + 1
		WHERE id = $1 AND version = $2`

	CheckExistsSQL = `SELECT EXISTS (SELECT 1 FROM checks WHERE id = $1)`

	lineItemColumns = `id, check_id, position, product_id, combo_id, name, quantity, unit_price, size, notes,
		status, subtotal, adjust_reason, adjusted_by, adjusted_at`

	ListLineItemsSQL = `
		SELECT ` + lineItemColumns + ` FROM line_items
		WHERE check_id = ANY($1)
		ORDER BY check_id, position`

	// Line items move between checks on a split, so the upsert rewrites check_id.
	UpsertLineItemSQL = `
		INSERT INTO line_items (` + lineItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			check_id = EXCLUDED.check_id, position = EXCLUDED.position, quantity = EXCLUDED.quantity,
			status = EXCLUDED.status, subtotal = EXCLUDED.subtotal, adjust_reason = EXCLUDED.adjust_reason,
			adjusted_by = EXCLUDED.adjusted_by, adjusted_at = EXCLUDED.adjusted_at`

	DeleteStaleLineItemsSQL = `DELETE FROM line_items WHERE check_id = $1 AND NOT (id = ANY($2))`

	NextOrderSequenceSQL = `
		INSERT INTO order_sequences (day, seq) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = order_sequences.seq + 1
		RETURNING seq`
)

// Settlement queries
const (
	settlementColumns = `token, check_id, order_number, shift_id, payment_method, payment_status, payments,
		amount_due, amount_tendered, change_due, discount_amount, created_at`

	FindSettlementSQL = `SELECT ` + settlementColumns + ` FROM settlements WHERE token = $1`

	FindSettlementByCheckSQL = `SELECT ` + settlementColumns + ` FROM settlements WHERE check_id = $1`

	ListSettlementsByShiftSQL = `
		SELECT ` + settlementColumns + ` FROM settlements
		WHERE shift_id = $1
		ORDER BY created_at`

	InsertSettlementSQL = `
		INSERT INTO settlements (` + settlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
)
