package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"spesa/internal/amqp"
	"spesa/internal/cache"
	"spesa/internal/core"
	"spesa/internal/query"
	"spesa/internal/store"
)

// EventPublisher receives change notifications after successful mutations.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
}

// ListView is the filtered, sorted list together with its header figures.
type ListView struct {
	Items   []core.Expense `json:"items"`
	Total   core.Money     `json:"total"`
	Count   int            `json:"count"`
	Filters query.Filters  `json:"filters"`
}

// ExpenseService validates input, applies it to the store and announces the
// change.
type ExpenseService struct {
	store  *store.Store
	events EventPublisher
	lists  cache.Cache[ListView]
}

// NewExpenseService accepts a nil publisher, in which case no events are sent.
func NewExpenseService(s *store.Store, events EventPublisher) *ExpenseService {
	return &ExpenseService{store: s, events: events}
}

// WithListCache memoizes List per (collection version, filters).
func (s *ExpenseService) WithListCache(c cache.Cache[ListView]) *ExpenseService {
	s.lists = c
	return s
}

// CreateExpense validates e against today's date and adds it. Any id on e is
// ignored; the store assigns one.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = 0
	e.Title = strings.TrimSpace(e.Title)
	if err := e.Validate(s.store.Today()); err != nil {
		return core.Expense{}, err
	}

	created, version, err := s.store.Add(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"component", "expense", "id", created.ID, "category", created.Category, "amount", created.Amount.String())
	publishEvent(ctx, s.events, amqp.EventExpenseCreated, created.ID, version)
	return created, nil
}

// UpdateExpense replaces the record with e.ID.
func (s *ExpenseService) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Title = strings.TrimSpace(e.Title)
	if err := e.Validate(s.store.Today()); err != nil {
		return core.Expense{}, err
	}
	version, err := s.store.Update(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Expense updated", "component", "expense", "id", e.ID)
	publishEvent(ctx, s.events, amqp.EventExpenseUpdated, e.ID, version)
	return e, nil
}

// DeleteExpense removes the record with id. Deleting an unknown id succeeds
// without side effects.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) {
	version, ok := s.store.Delete(ctx, id)
	if !ok {
		slog.DebugContext(ctx, "Delete of unknown expense ignored", "component", "expense", "id", id)
		return
	}
	slog.InfoContext(ctx, "Expense deleted", "component", "expense", "id", id)
	publishEvent(ctx, s.events, amqp.EventExpenseDeleted, id, version)
}

func (s *ExpenseService) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	return s.store.Get(id)
}

// List applies the active filters to the collection.
func (s *ExpenseService) List(ctx context.Context) ListView {
	expenses, f, version := s.store.View()
	if s.lists == nil {
		return buildListView(expenses, f)
	}

	key := fmt.Sprintf("%d|%s", version, f.Key())
	if cached, ok := s.lists.Get(key); ok {
		// Key folds search case; report the filters as set.
		cached.Filters = f
		return cached
	}
	view := buildListView(expenses, f)
	s.lists.Set(key, view)
	slog.DebugContext(ctx, "List computed", "component", "cache", "key", key, "count", view.Count)
	return view
}

func buildListView(expenses []core.Expense, f query.Filters) ListView {
	items := query.Apply(expenses, f)
	return ListView{
		Items:   items,
		Total:   query.Total(items).Rounded(),
		Count:   len(items),
		Filters: f,
	}
}

func (s *ExpenseService) Filters() query.Filters {
	return s.store.Filters()
}

func (s *ExpenseService) SetFilters(_ context.Context, p query.FilterPatch) (query.Filters, error) {
	return s.store.SetFilters(p)
}

func (s *ExpenseService) ResetFilters(_ context.Context) query.Filters {
	return s.store.ResetFilters()
}

// publishEvent never fails the caller: the mutation is already applied.
func publishEvent(ctx context.Context, events EventPublisher, typ amqp.EventType, id int64, version uint64) {
	if events == nil {
		return
	}
	if err := events.PublishExpenseEvent(ctx, amqp.NewExpenseEvent(typ, id, version)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"component", "amqp", "type", typ, "id", id, "error", err)
	}
}
