package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"spesa/internal/amqp"
	"spesa/internal/cache"
)

// seenTTL bounds how long a redelivered event is still recognized.
const seenTTL = time.Hour

// Stats summarizes what an EventWorker has processed.
type Stats struct {
	Processed   int64
	Duplicates  int64
	Gaps        int64
	LastVersion uint64
	ByType      map[amqp.EventType]int64
}

// EventWorker follows the change feed of the expense collection. It drops
// redelivered events and reports version gaps, which mean events were lost
// between the publisher and this consumer.
type EventWorker struct {
	seen cache.Cache[struct{}]

	mu    sync.Mutex
	stats Stats
}

func NewEventWorker(seenCapacity int) *EventWorker {
	return &EventWorker{
		seen:  cache.NewLRUCache[struct{}](seenCapacity, seenTTL),
		stats: Stats{ByType: make(map[amqp.EventType]int64)},
	}
}

// HandleExpenseEvent processes a single event from AMQP.
func (w *EventWorker) HandleExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	if _, dup := w.seen.Get(ev.EventID); dup {
		w.mu.Lock()
		w.stats.Duplicates++
		w.mu.Unlock()
		slog.DebugContext(ctx, "Skipping redelivered event", "component", "amqp", "event_id", ev.EventID)
		return nil
	}
	w.seen.Set(ev.EventID, struct{}{})

	w.mu.Lock()
	last := w.stats.LastVersion
	gap := last != 0 && ev.Version > last+1
	if gap {
		w.stats.Gaps++
	}
	if ev.Version > last {
		w.stats.LastVersion = ev.Version
	}
	w.stats.Processed++
	w.stats.ByType[ev.Type]++
	w.mu.Unlock()

	if gap {
		slog.WarnContext(ctx, "Missed expense events",
			"component", "amqp", "last_version", last, "version", ev.Version, "missed", ev.Version-last-1)
	}

	attrs := []any{"component", "amqp", "event_id", ev.EventID, "type", ev.Type, "version", ev.Version}
	if ev.ExpenseID != 0 {
		attrs = append(attrs, "expense_id", ev.ExpenseID)
	}
	slog.InfoContext(ctx, "Expense event", attrs...)
	return nil
}

// Stats returns a copy of the counters.
func (w *EventWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.stats
	out.ByType = make(map[amqp.EventType]int64, len(w.stats.ByType))
	for k, v := range w.stats.ByType {
		out.ByType[k] = v
	}
	return out
}
