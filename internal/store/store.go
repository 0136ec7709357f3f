// Package store holds the in-memory expense collection and the active
// filter configuration. Every collection mutation is written through to the
// snapshot repository before the call returns.
package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"spesa/internal/core"
	"spesa/internal/query"
	"spesa/internal/storage"
)

// Repository persists the whole collection.
type Repository interface {
	Load(ctx context.Context) ([]core.Expense, error)
	Save(ctx context.Context, expenses []core.Expense) error
	Clear(ctx context.Context) error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for id generation and for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the timezone in which "today" is computed.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

type Store struct {
	mu       sync.RWMutex
	repo     Repository
	expenses []core.Expense
	filters  query.Filters
	version  uint64

	ids *core.IDGenerator
	now func() time.Time
	loc *time.Location
}

func New(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		filters: query.DefaultFilters(),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ids = core.NewIDGenerator(s.now)
	return s
}

// Load reads the persisted snapshot into memory. A malformed snapshot is
// logged and the store starts empty; the payload itself is left untouched.
func (s *Store) Load(ctx context.Context) error {
	expenses, err := s.repo.Load(ctx)
	if errors.Is(err, storage.ErrMalformedSnapshot) {
		slog.WarnContext(ctx, "Discarding malformed snapshot, starting empty",
			"component", "store", "error", err)
		expenses = nil
	} else if err != nil {
		return err
	}
	s.ReplaceAll(expenses)
	slog.InfoContext(ctx, "Expenses loaded", "component", "store", "count", len(expenses))
	return nil
}

// Today returns the current calendar date in the configured location.
func (s *Store) Today() core.Date {
	return core.DateOf(s.now().In(s.loc))
}

// Add assigns an id when e.ID is zero, prepends e and persists. It returns
// the stored record and the version the change produced.
func (s *Store) Add(ctx context.Context, e core.Expense) (core.Expense, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == 0 {
		e.ID = s.ids.Next()
	} else {
		if s.indexOf(e.ID) >= 0 {
			return core.Expense{}, s.version, core.ErrDuplicateID
		}
		s.ids.Observe(e.ID)
	}

	s.expenses = append([]core.Expense{e}, s.expenses...)
	s.version++
	s.persist(ctx, "add")
	return e, s.version, nil
}

// Update replaces the record with e.ID in place. It returns core.ErrNotFound
// when no such record exists.
func (s *Store) Update(ctx context.Context, e core.Expense) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(e.ID)
	if i < 0 {
		return s.version, core.ErrNotFound
	}
	s.expenses[i] = e
	s.version++
	s.persist(ctx, "update")
	return s.version, nil
}

// Delete removes the record with id. Deleting an absent id is a no-op and
// reports false.
func (s *Store) Delete(ctx context.Context, id int64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return s.version, false
	}
	s.expenses = slices.Delete(s.expenses, i, i+1)
	s.version++
	s.persist(ctx, "delete")
	return s.version, true
}

// Import persists expenses as the new snapshot and, once the write
// succeeded, makes them the collection. Both steps run under one lock.
func (s *Store) Import(ctx context.Context, expenses []core.Expense) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, expenses); err != nil {
		return s.version, err
	}
	s.replaceLocked(expenses)
	return s.version, nil
}

// Clear removes the persisted snapshot and then empties the collection and
// restores default filters, under one lock.
func (s *Store) Clear(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		return s.version, err
	}
	s.resetLocked()
	return s.version, nil
}

// ReplaceAll swaps the whole collection without persisting it.
func (s *Store) ReplaceAll(expenses []core.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(expenses)
}

func (s *Store) replaceLocked(expenses []core.Expense) {
	s.expenses = slices.Clone(expenses)
	for _, e := range s.expenses {
		s.ids.Observe(e.ID)
	}
	s.version++
}

func (s *Store) resetLocked() {
	s.expenses = nil
	s.filters = query.DefaultFilters()
	s.version++
}

// SetFilters shallow-merges p into the current configuration.
func (s *Store) SetFilters(p query.FilterPatch) (query.Filters, error) {
	if err := p.Validate(); err != nil {
		return query.Filters{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = s.filters.Merge(p)
	return s.filters, nil
}

func (s *Store) ResetFilters() query.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = query.DefaultFilters()
	return s.filters
}

func (s *Store) Filters() query.Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// Expenses returns a copy of the collection in stored order.
func (s *Store) Expenses() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.expenses)
}

// Snapshot returns a copy of the collection together with its version.
func (s *Store) Snapshot() ([]core.Expense, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.expenses), s.version
}

// View returns a copy of the collection, the active filters and the version,
// all read under one lock.
func (s *Store) View() ([]core.Expense, query.Filters, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.expenses), s.filters, s.version
}

func (s *Store) Get(id int64) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Expense{}, core.ErrNotFound
	}
	return s.expenses[i], nil
}

// Version increments on every collection change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.expenses)
}

func (s *Store) indexOf(id int64) int {
	return slices.IndexFunc(s.expenses, func(e core.Expense) bool { return e.ID == id })
}

// persist writes the collection; failures are logged and the in-memory state
// is kept. Must be called with mu held.
func (s *Store) persist(ctx context.Context, op string) {
	if err := s.repo.Save(ctx, s.expenses); err != nil {
		slog.ErrorContext(ctx, "Failed to persist expenses",
			"component", "store", "operation", op, "count", len(s.expenses), "error", err)
	}
}
