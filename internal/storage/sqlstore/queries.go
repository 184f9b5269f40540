package sqlstore

const (
	shiftColumns = `id, employee_id, start_time, end_time, opening_cash, closing_cash, expected_cash,
		cash_variance, status, running_total, order_count, cash_sales_total, notes, version`

	getShiftSQL        = `SELECT ` + shiftColumns + ` FROM shifts WHERE id = ?`
	findActiveShiftSQL = `SELECT ` + shiftColumns + ` FROM shifts WHERE employee_id = ? AND status = 'active'`
	shiftExistsSQL     = `SELECT COUNT(*) FROM shifts WHERE id = ?`

	insertShiftSQL = `
		INSERT INTO shifts (` + shiftColumns + `)
		VALUES (:id, :employee_id, :start_time, :end_time, :opening_cash, :closing_cash, :expected_cash,
			:cash_variance, :status, :running_total, :order_count, :cash_sales_total, :notes, :version)`

	updateShiftSQL = `
		UPDATE shifts SET end_time = :end_time, closing_cash = :closing_cash, expected_cash = :expected_cash,
			cash_variance = :cash_variance, status = :status, running_total = :running_total,
			order_count = :order_count, cash_sales_total = :cash_sales_total, notes = :notes,
			version = version + 1
		WHERE id = :id AND version = :version`
)

const (
	tableColumns = `id, number, capacity, section, status, open_check_ids, version`

	getTableSQL    = `SELECT ` + tableColumns + ` FROM pos_tables WHERE id = ?`
	listTablesSQL  = `SELECT ` + tableColumns + ` FROM pos_tables ORDER BY number`
	tableExistsSQL = `SELECT COUNT(*) FROM pos_tables WHERE id = ?`
	deleteTableSQL = `DELETE FROM pos_tables WHERE id = ? AND version = ?`

	insertTableSQL = `
		INSERT INTO pos_tables (` + tableColumns + `)
		VALUES (:id, :number, :capacity, :section, :status, :open_check_ids, :version)`

	updateTableSQL = `
		UPDATE pos_tables SET capacity = :capacity, section = :section, status = :status,
			open_check_ids = :open_check_ids, version = version + 1
		WHERE id = :id AND version = :version`
)

const (
	checkColumns = `id, order_number, shift_id, table_id, table_number, order_type, service_type, status,
		subtotal, discount_amount, tax_amount, total_amount, payment_method, payment_status,
		customer_id, split_from_id, created_at, updated_at, completed_at, version`

	getCheckSQL           = `SELECT ` + checkColumns + ` FROM checks WHERE id = ?`
	listChecksByStatusSQL = `SELECT ` + checkColumns + ` FROM checks WHERE status IN (?) ORDER BY created_at, order_number`
	checkExistsSQL        = `SELECT COUNT(*) FROM checks WHERE id = ?`

	insertCheckSQL = `
		INSERT INTO checks (` + checkColumns + `)
		VALUES (:id, :order_number, :shift_id, :table_id, :table_number, :order_type, :service_type, :status,
			:subtotal, :discount_amount, :tax_amount, :total_amount, :payment_method, :payment_status,
			:customer_id, :split_from_id, :created_at, :updated_at, :completed_at, :version)`

	updateCheckSQL = `
		UPDATE checks SET shift_id = :shift_id, table_id = :table_id, table_number = :table_number,
			status = :status, subtotal = :subtotal, discount_amount = :discount_amount,
			tax_amount = :tax_amount, total_amount = :total_amount, payment_method = :payment_method,
			payment_status = :payment_status, customer_id = :customer_id, updated_at = :updated_at,
			completed_at = :completed_at, version = version + 1
		WHERE id = :id AND version = :version`

	lineItemColumns = `id, check_id, position, product_id, combo_id, name, quantity, unit_price, size, notes,
		status, subtotal, adjust_reason, adjusted_by, adjusted_at`

	listLineItemsSQL   = `SELECT ` + lineItemColumns + ` FROM line_items WHERE check_id IN (?) ORDER BY check_id, position`
	deleteLineItemsSQL = `DELETE FROM line_items WHERE check_id = ?`

	insertLineItemSQL = `
		INSERT INTO line_items (` + lineItemColumns + `)
		VALUES (:id, :check_id, :position, :product_id, :combo_id, :name, :quantity, :unit_price, :size, :notes,
			:status, :subtotal, :adjust_reason, :adjusted_by, :adjusted_at)`

	currentSequenceSQL = `SELECT seq FROM order_sequences WHERE day = ?`
)

const (
	settlementColumns = `token, check_id, order_number, shift_id, payment_method, payment_status, payments,
		amount_due, amount_tendered, change_due, discount_amount, created_at`

	findSettlementSQL         = `SELECT ` + settlementColumns + ` FROM settlements WHERE token = ?`
	findSettlementByCheckSQL  = `SELECT ` + settlementColumns + ` FROM settlements WHERE check_id = ?`
	listSettlementsByShiftSQL = `SELECT ` + settlementColumns + ` FROM settlements WHERE shift_id = ? ORDER BY created_at`

	insertSettlementSQL = `
		INSERT INTO settlements (` + settlementColumns + `)
		VALUES (:token, :check_id, :order_number, :shift_id, :payment_method, :payment_status, :payments,
			:amount_due, :amount_tendered, :change_due, :discount_amount, :created_at)`
)
