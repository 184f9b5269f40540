package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CheckEvent is published whenever a check changes status
type CheckEvent struct {
	CheckID     string          `json:"check_id"`
	OrderNumber string          `json:"order_number"`
	OldStatus   string          `json:"old_status"`
	NewStatus   string          `json:"new_status"`
	ChangedBy   string          `json:"changed_by"`
	TableNumber *int            `json:"table_number,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Timestamp   time.Time       `json:"timestamp"`
}

// KitchenAlert announces an order the kitchen has not seen before
type KitchenAlert struct {
	CheckID     string       `json:"check_id"`
	OrderNumber string       `json:"order_number"`
	TableNumber *int         `json:"table_number,omitempty"`
	ServiceType ServiceType  `json:"service_type"`
	Items       []TicketItem `json:"items"`
	Timestamp   time.Time    `json:"timestamp"`
}

// CreateCheckEvent creates a CheckEvent for a status change
func CreateCheckEvent(c *Check, oldStatus CheckStatus, changedBy string) *CheckEvent {
	return &CheckEvent{
		CheckID:     c.ID,
		OrderNumber: c.OrderNumber,
		OldStatus:   string(oldStatus),
		NewStatus:   string(c.Status),
		ChangedBy:   changedBy,
		TableNumber: c.TableNumber,
		TotalAmount: c.TotalAmount,
		Timestamp:   time.Now().UTC(),
	}
}

// CreateKitchenAlert creates a KitchenAlert from a ticket
func CreateKitchenAlert(t Ticket) *KitchenAlert {
	return &KitchenAlert{
		CheckID:     t.CheckID,
		OrderNumber: t.OrderNumber,
		TableNumber: t.TableNumber,
		ServiceType: t.ServiceType,
		Items:       t.Items,
		Timestamp:   time.Now().UTC(),
	}
}

// GenerateRoutingKey generates the routing key for a check status event
func GenerateRoutingKey(status CheckStatus) string {
	return fmt.Sprintf("check.%s", status)
}
