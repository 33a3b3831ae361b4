// Package broadcaster implements the Status Broadcaster: an
// append-only event log keyed by importId, fanned out to subscribers.
package broadcaster

import (
	"context"
	"sync"

	"github.com/awehrman/peas/internal/common"
	"github.com/awehrman/peas/internal/models"
	"github.com/ternarybob/arbor"
)

// Broadcaster implements interfaces.Broadcaster with an in-memory
// per-importId event log and a per-importId subscriber list, the same
// pub/sub shape as events.Service.
type subscription struct {
	id int
	fn func(models.StatusEvent)
}

type Broadcaster struct {
	mu          sync.RWMutex
	log         map[string][]models.StatusEvent
	subscribers map[string][]subscription
	nextID      int
	logger      arbor.ILogger
}

// New constructs an empty Broadcaster.
func New(logger arbor.ILogger) *Broadcaster {
	return &Broadcaster{
		log:         make(map[string][]models.StatusEvent),
		subscribers: make(map[string][]subscription),
		logger:      logger,
	}
}

// AddStatusEventAndBroadcast appends event to its importId's log (or only
// logs, if ImportID is empty) and fans it out to subscribers asynchronously
// and panic-safely.
func (b *Broadcaster) AddStatusEventAndBroadcast(ctx context.Context, event models.StatusEvent) (models.StatusEvent, error) {
	if event.ImportID == "" {
		if b.logger != nil {
			b.logger.Debug().Str("context", event.Context).Str("status", string(event.Status)).Msg(event.Message)
		}
		return event, nil
	}

	b.mu.Lock()
	b.log[event.ImportID] = append(b.log[event.ImportID], event)
	subs := append([]subscription{}, b.subscribers[event.ImportID]...)
	b.mu.Unlock()

	if b.logger != nil {
		b.logger.Debug().
			Str("importId", event.ImportID).
			Str("context", event.Context).
			Str("status", string(event.Status)).
			Msg(event.Message)
	}

	for _, sub := range subs {
		fn := sub.fn
		common.SafeGo(b.logger, "broadcast:"+event.ImportID, func() {
			fn(event)
		})
	}

	return event, nil
}

// Subscribe registers fn to receive every future event appended for
// importID. The returned func unsubscribes.
func (b *Broadcaster) Subscribe(importID string, fn func(models.StatusEvent)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[importID] = append(b.subscribers[importID], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[importID]
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[importID] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// History returns a copy of importID's event log, for the completion wait
// path and diagnostics.
func (b *Broadcaster) History(importID string) []models.StatusEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.StatusEvent{}, b.log[importID]...)
}
