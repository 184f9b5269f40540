// Package notification renders kitchen alerts and check events for the
// kitchen display.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/messaging"
	"restaurant-pos/internal/models"
)

// Source delivers raw messages to a handler until its context ends
type Source interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// Subscriber prints kitchen alerts and, when an event source is given,
// check status changes.
type Subscriber struct {
	alerts Source
	events Source
	out    io.Writer
	mu     sync.Mutex
	logger *logger.Logger
}

// NewSubscriber creates a new kitchen display subscriber. events may be nil.
func NewSubscriber(alerts, events Source, out io.Writer, log *logger.Logger) *Subscriber {
	return &Subscriber{
		alerts: alerts,
		events: events,
		out:    out,
		logger: log,
	}
}

// Start consumes until ctx is cancelled or a consumer fails
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Kitchen display started", requestID, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.consume(gctx, s.alerts, s.handleAlert) })
	if s.events != nil {
		g.Go(func() error { return s.consume(gctx, s.events, s.handleEvent) })
	}
	err := g.Wait()

	s.logger.Info("graceful_shutdown", "Kitchen display stopped", requestID, nil)
	for _, src := range []Source{s.alerts, s.events} {
		if src == nil {
			continue
		}
		if cerr := src.Close(); cerr != nil {
			s.logger.Error("shutdown_failed", "Failed to close consumer", requestID, cerr, nil)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Subscriber) consume(ctx context.Context, src Source, handler messaging.MessageHandler) error {
	err := src.StartConsuming(ctx, handler)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("consumer_failed", "Kitchen display consumer failed", "", err, nil)
		return err
	}
	return nil
}

func (s *Subscriber) println(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, line)
	return err
}

// handleAlert decodes and prints one kitchen alert. Malformed messages are
// logged and acked; a requeued one would be redelivered forever.
func (s *Subscriber) handleAlert(_ context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var alert models.KitchenAlert
	if err := json.Unmarshal(body, &alert); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse kitchen alert", requestID, err, nil)
		return nil
	}

	if err := s.println(FormatAlert(&alert)); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}

	s.logger.Debug("alert_displayed", "Kitchen alert displayed", requestID, map[string]interface{}{
		"order_number": alert.OrderNumber,
		"items":        len(alert.Items),
	})
	return nil
}

// handleEvent decodes and prints one check status change
func (s *Subscriber) handleEvent(_ context.Context, body []byte) error {
	var evt models.CheckEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse check event", "", err, nil)
		return nil
	}
	if err := s.println(FormatCheckEvent(&evt)); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// FormatAlert renders a kitchen alert as one display line
func FormatAlert(alert *models.KitchenAlert) string {
	timestamp := alert.Timestamp.Format("15:04:05")

	where := string(alert.ServiceType)
	if alert.TableNumber != nil {
		where = fmt.Sprintf("table %d", *alert.TableNumber)
	}

	items := make([]string, 0, len(alert.Items))
	for _, it := range alert.Items {
		item := fmt.Sprintf("%dx %s", it.Quantity, it.Name)
		if it.Size != "" {
			item += " (" + it.Size + ")"
		}
		if it.Notes != "" {
			item += " [" + it.Notes + "]"
		}
		items = append(items, item)
	}

	return fmt.Sprintf("🔔 [%s] New order %s for %s: %s", timestamp, alert.OrderNumber, where, strings.Join(items, ", "))
}

// FormatCheckEvent renders a check status change as one display line
func FormatCheckEvent(evt *models.CheckEvent) string {
	timestamp := evt.Timestamp.Format("15:04:05")

	switch models.CheckStatus(evt.NewStatus) {
	case models.CheckPreparing:
		return fmt.Sprintf("🍳 [%s] Order %s is now being prepared.", timestamp, evt.OrderNumber)
	case models.CheckCompleted:
		return fmt.Sprintf("✅ [%s] Order %s is completed.", timestamp, evt.OrderNumber)
	case models.CheckRefunded:
		return fmt.Sprintf("↩️ [%s] Order %s was refunded by %s.", timestamp, evt.OrderNumber, evt.ChangedBy)
	default:
		if evt.OldStatus == "" {
			return fmt.Sprintf("📋 [%s] Order %s opened as %s.", timestamp, evt.OrderNumber, evt.NewStatus)
		}
		return fmt.Sprintf("📋 [%s] Order %s status changed from '%s' to '%s' by %s.",
			timestamp, evt.OrderNumber, evt.OldStatus, evt.NewStatus, evt.ChangedBy)
	}
}
