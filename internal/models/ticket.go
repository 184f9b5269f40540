package models

import (
	"time"
)

// Urgency is how overdue a kitchen ticket is
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// Ticket thresholds in seconds of age.
const (
	WarningAfterSeconds  = 180
	CriticalAfterSeconds = 300
)

// UrgencyFor derives the urgency of a ticket from its age
func UrgencyFor(ageSeconds int64) Urgency {
	switch {
	case ageSeconds > CriticalAfterSeconds:
		return UrgencyCritical
	case ageSeconds > WarningAfterSeconds:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// TicketItem is a line as the kitchen sees it
type TicketItem struct {
	Name     string         `json:"name"`
	Quantity int            `json:"quantity"`
	Size     string         `json:"size,omitempty"`
	Notes    string         `json:"notes,omitempty"`
	Status   LineItemStatus `json:"status"`
}

// Ticket is the kitchen projection of a non-terminal check
type Ticket struct {
	CheckID     string       `json:"check_id"`
	OrderNumber string       `json:"order_number"`
	TableNumber *int         `json:"table_number,omitempty"`
	ServiceType ServiceType  `json:"service_type"`
	Items       []TicketItem `json:"items"`
	Status      CheckStatus  `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	AgeSeconds  int64        `json:"age_seconds"`
	Urgency     Urgency      `json:"urgency"`
}

// NewTicket projects a check as of now. Voided lines are left off the
// ticket; comped lines are still cooked.
func NewTicket(c *Check, now time.Time) Ticket {
	age := int64(now.Sub(c.CreatedAt) / time.Second)
	if age < 0 {
		age = 0
	}
	t := Ticket{
		CheckID:     c.ID,
		OrderNumber: c.OrderNumber,
		TableNumber: c.TableNumber,
		ServiceType: c.ServiceType,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		AgeSeconds:  age,
		Urgency:     UrgencyFor(age),
	}
	for _, li := range c.Items {
		if li.Status == ItemVoided {
			continue
		}
		t.Items = append(t.Items, TicketItem{
			Name:     li.Name,
			Quantity: li.Quantity,
			Size:     li.Size,
			Notes:    li.Notes,
			Status:   li.Status,
		})
	}
	return t
}

// PrepStats summarises recent kitchen completions
type PrepStats struct {
	Samples            int     `json:"samples"`
	AveragePrepSeconds float64 `json:"average_prep_seconds"`
}
