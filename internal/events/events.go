// Package events carries check status changes and kitchen alerts to
// whoever listens: the in-process hub or the message broker.
package events

import (
	"context"
	"sync"

	"restaurant-pos/internal/models"
)

// Publisher is implemented by every event sink
type Publisher interface {
	PublishCheckEvent(ctx context.Context, evt *models.CheckEvent) error
	PublishKitchenAlert(ctx context.Context, alert *models.KitchenAlert) error
}

// Nop drops every event
type Nop struct{}

func (Nop) PublishCheckEvent(context.Context, *models.CheckEvent) error     { return nil }
func (Nop) PublishKitchenAlert(context.Context, *models.KitchenAlert) error { return nil }

// Hub fans events out to in-process subscribers. Slow subscribers miss
// events rather than block the publisher.
type Hub struct {
	mu          sync.RWMutex
	nextID      int
	checkSubs   map[int]chan models.CheckEvent
	kitchenSubs map[int]chan models.KitchenAlert
}

// NewHub creates a hub with no subscribers
func NewHub() *Hub {
	return &Hub{
		checkSubs:   make(map[int]chan models.CheckEvent),
		kitchenSubs: make(map[int]chan models.KitchenAlert),
	}
}

// SubscribeChecks returns a buffered channel of check events and a cancel func
func (h *Hub) SubscribeChecks(buffer int) (<-chan models.CheckEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan models.CheckEvent, buffer)
	h.checkSubs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.checkSubs[id]; ok {
			delete(h.checkSubs, id)
			close(c)
		}
	}
}

// SubscribeKitchen returns a buffered channel of kitchen alerts and a cancel func
func (h *Hub) SubscribeKitchen(buffer int) (<-chan models.KitchenAlert, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan models.KitchenAlert, buffer)
	h.kitchenSubs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.kitchenSubs[id]; ok {
			delete(h.kitchenSubs, id)
			close(c)
		}
	}
}

func (h *Hub) PublishCheckEvent(_ context.Context, evt *models.CheckEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.checkSubs {
		select {
		case ch <- *evt:
		default:
		}
	}
	return nil
}

func (h *Hub) PublishKitchenAlert(_ context.Context, alert *models.KitchenAlert) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.kitchenSubs {
		select {
		case ch <- *alert:
		default:
		}
	}
	return nil
}

// Multi publishes to every sink and returns the first error
type Multi []Publisher

func (m Multi) PublishCheckEvent(ctx context.Context, evt *models.CheckEvent) error {
	var first error
	for _, p := range m {
		if err := p.PublishCheckEvent(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) PublishKitchenAlert(ctx context.Context, alert *models.KitchenAlert) error {
	var first error
	for _, p := range m {
		if err := p.PublishKitchenAlert(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
