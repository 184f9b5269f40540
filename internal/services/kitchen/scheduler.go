// Package kitchen projects open checks as kitchen tickets, moves them
// through preparation and alerts the line about new orders.
package kitchen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/storage"
)

// PrepWindow is how many recent completions feed the moving average
const PrepWindow = 20

// Scheduler serves the kitchen display
type Scheduler struct {
	store     storage.Store
	publisher events.Publisher
	logger    *logger.Logger
	now       func() time.Time

	pollMu sync.Mutex
	seen   map[string]struct{}

	statsMu sync.Mutex
	samples []float64
	next    int
}

// NewScheduler creates a new kitchen scheduler
func NewScheduler(store storage.Store, publisher events.Publisher, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
		samples:   make([]float64, 0, PrepWindow),
	}
}

// SetClock replaces the time source
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Tickets returns a ticket for every check still in the kitchen, oldest first
func (s *Scheduler) Tickets(ctx context.Context) ([]models.Ticket, error) {
	var checks []*models.Check
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		checks, err = tx.ListChecksByStatus(ctx, models.CheckReceived, models.CheckOpen, models.CheckPreparing)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}

	now := s.now()
	tickets := make([]models.Ticket, 0, len(checks))
	for _, c := range checks {
		tickets = append(tickets, models.NewTicket(c, now))
	}
	return tickets, nil
}

// Bump advances a ticket: received or open to preparing, preparing to
// completed. Completing a ticket records its preparation time.
func (s *Scheduler) Bump(ctx context.Context, checkID, requestID string) (*models.Check, error) {
	var (
		c         *models.Check
		oldStatus models.CheckStatus
		prep      time.Duration
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetCheck(ctx, checkID)
		if err != nil {
			return err
		}
		oldStatus = c.Status

		now := s.now()
		switch c.Status {
		case models.CheckReceived, models.CheckOpen:
			c.Status = models.CheckPreparing
		case models.CheckPreparing:
			c.Status = models.CheckCompleted
			c.CompletedAt = &now
			prep = now.Sub(c.CreatedAt)
		default:
			return poserr.InvalidState("order %s is %s and cannot be bumped", c.OrderNumber, c.Status)
		}
		c.UpdatedAt = now
		return tx.SaveCheck(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("bump: %w", err)
	}

	if c.Status == models.CheckCompleted {
		s.recordPrep(prep)
	}
	if err := s.publisher.PublishCheckEvent(ctx, models.CreateCheckEvent(c, oldStatus, "kitchen")); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish check event", requestID, err, map[string]interface{}{
			"order_number": c.OrderNumber,
		})
	}

	s.logger.Debug("ticket_bumped", fmt.Sprintf("Order %s moved to %s", c.OrderNumber, c.Status), requestID, map[string]interface{}{
		"check_id":   c.ID,
		"old_status": oldStatus,
		"new_status": c.Status,
	})
	return c, nil
}

func (s *Scheduler) recordPrep(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	if len(s.samples) < PrepWindow {
		s.samples = append(s.samples, d.Seconds())
		return
	}
	s.samples[s.next] = d.Seconds()
	s.next = (s.next + 1) % PrepWindow
}

// AveragePrepSeconds is the moving average over the last PrepWindow
// completions, or 0 before the first one.
func (s *Scheduler) AveragePrepSeconds() float64 {
	return s.Stats().AveragePrepSeconds
}

// Stats returns the preparation statistics
func (s *Scheduler) Stats() models.PrepStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats := models.PrepStats{Samples: len(s.samples)}
	if len(s.samples) == 0 {
		return stats
	}
	var sum float64
	for _, v := range s.samples {
		sum += v
	}
	stats.AveragePrepSeconds = sum / float64(len(s.samples))
	return stats
}

// Poll returns the ids of received or open orders that were not present at
// the previous poll and publishes one kitchen alert for each. The first poll
// reports every waiting order. An order whose alert could not be published
// is retried on the next poll.
func (s *Scheduler) Poll(ctx context.Context) ([]string, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	var checks []*models.Check
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		checks, err = tx.ListChecksByStatus(ctx, models.CheckReceived, models.CheckOpen)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("poll orders: %w", err)
	}

	now := s.now()
	current := make(map[string]struct{}, len(checks))
	var fresh []string
	for _, c := range checks {
		if _, ok := s.seen[c.ID]; ok {
			current[c.ID] = struct{}{}
			continue
		}
		alert := models.CreateKitchenAlert(models.NewTicket(c, now))
		if err := s.publisher.PublishKitchenAlert(ctx, alert); err != nil {
			s.logger.Error("alert_publish_failed", "Failed to publish kitchen alert", "", err, map[string]interface{}{
				"order_number": c.OrderNumber,
			})
			continue
		}
		current[c.ID] = struct{}{}
		fresh = append(fresh, c.ID)
	}
	s.seen = current
	return fresh, nil
}

// Run polls on every tick until ctx is done
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("kitchen_poller_started", "Kitchen poller started", "", map[string]interface{}{
		"interval_seconds": interval.Seconds(),
	})
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("kitchen_poller_stopped", "Kitchen poller stopped", "", nil)
			return
		case <-ticker.C:
			fresh, err := s.Poll(ctx)
			if err != nil {
				s.logger.Error("kitchen_poll_failed", "Failed to poll new orders", "", err, nil)
				continue
			}
			if len(fresh) > 0 {
				s.logger.Debug("new_orders", fmt.Sprintf("%d new orders for the kitchen", len(fresh)), "", map[string]interface{}{
					"check_ids": fresh,
				})
			}
		}
	}
}
