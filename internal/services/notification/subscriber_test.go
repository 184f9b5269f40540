package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/messaging"
	"restaurant-pos/internal/models"
)

type fakeSource struct {
	messages [][]byte
	err      error
	closed   bool
	results  []error
}

func (f *fakeSource) StartConsuming(ctx context.Context, handler messaging.MessageHandler) error {
	for _, m := range f.messages {
		f.results = append(f.results, handler(ctx, m))
	}
	return f.err
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

var at = time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC)

func TestFormatAlert(t *testing.T) {
	table := 4
	tests := []struct {
		name  string
		alert models.KitchenAlert
		want  string
	}{
		{
			name: "dine-in",
			alert: models.KitchenAlert{
				OrderNumber: "ORD_20240501_001",
				TableNumber: &table,
				ServiceType: models.DineIn,
				Items: []models.TicketItem{
					{Name: "Burger", Quantity: 2, Notes: "no onion"},
					{Name: "Cola", Quantity: 1, Size: "large"},
				},
				Timestamp: at,
			},
			want: "🔔 [12:30:05] New order ORD_20240501_001 for table 4: 2x Burger [no onion], 1x Cola (large)",
		},
		{
			name: "delivery",
			alert: models.KitchenAlert{
				OrderNumber: "ORD_20240501_002",
				ServiceType: models.Delivery,
				Items:       []models.TicketItem{{Name: "Fries", Quantity: 3}},
				Timestamp:   at,
			},
			want: "🔔 [12:30:05] New order ORD_20240501_002 for delivery: 3x Fries",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAlert(&tt.alert); got != tt.want {
				t.Fatalf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestFormatCheckEvent(t *testing.T) {
	tests := []struct {
		evt      models.CheckEvent
		contains string
	}{
		{models.CheckEvent{OrderNumber: "A", OldStatus: "received", NewStatus: "preparing"}, "is now being prepared"},
		{models.CheckEvent{OrderNumber: "A", OldStatus: "preparing", NewStatus: "completed"}, "is completed"},
		{models.CheckEvent{OrderNumber: "A", OldStatus: "completed", NewStatus: "refunded", ChangedBy: "mgr-1"}, "refunded by mgr-1"},
		{models.CheckEvent{OrderNumber: "A", NewStatus: "open"}, "opened as open"},
	}
	for _, tt := range tests {
		tt.evt.Timestamp = at
		if got := FormatCheckEvent(&tt.evt); !strings.Contains(got, tt.contains) || !strings.Contains(got, "[12:30:05]") {
			t.Errorf("%s: got %q", tt.evt.NewStatus, got)
		}
	}
}

func TestSubscriber_PrintsAlertsAndEvents(t *testing.T) {
	alerts := &fakeSource{messages: [][]byte{
		mustJSON(t, models.KitchenAlert{OrderNumber: "ORD_1", ServiceType: models.PickUp, Items: []models.TicketItem{{Name: "Burger", Quantity: 1}}}),
		[]byte("not json"),
	}}
	events := &fakeSource{messages: [][]byte{
		mustJSON(t, models.CheckEvent{OrderNumber: "ORD_1", OldStatus: "received", NewStatus: "preparing"}),
	}}

	var out bytes.Buffer
	sub := NewSubscriber(alerts, events, &out, logger.NewNop())
	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	printed := out.String()
	if !strings.Contains(printed, "New order ORD_1 for pick-up: 1x Burger") || !strings.Contains(printed, "Order ORD_1 is now being prepared") {
		t.Fatalf("output = %q", printed)
	}
	if strings.Count(printed, "\n") != 2 {
		t.Fatalf("malformed message printed: %q", printed)
	}
	for i, err := range alerts.results {
		if err != nil {
			t.Fatalf("alert %d requeued: %v", i, err)
		}
	}
	if !alerts.closed || !events.closed {
		t.Fatal("sources not closed")
	}
}

func TestSubscriber_ConsumerFailure(t *testing.T) {
	broken := &fakeSource{err: errors.New("channel closed")}
	sub := NewSubscriber(broken, nil, &bytes.Buffer{}, logger.NewNop())

	if err := sub.Start(context.Background()); err == nil {
		t.Fatal("expected consumer error")
	}
	if !broken.closed {
		t.Fatal("source not closed")
	}
}
