package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spesa/internal/amqp"
	"spesa/internal/cache"
	"spesa/internal/core"
	"spesa/internal/kv"
	"spesa/internal/kv/memory"
	"spesa/internal/query"
	"spesa/internal/storage"
	"spesa/internal/store"
)

var testNow = time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	kv        *memory.Store
	repo      *storage.SnapshotRepository
	store     *store.Store
	events    *recordingPublisher
	expenses  *ExpenseService
	dashboard *DashboardService
	backup    *BackupService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, nil)
}

// newFixtureOn persists through wrap(f.kv) when wrap is non-nil.
func newFixtureOn(t *testing.T, wrap func(kv.Store) kv.Store) *fixture {
	t.Helper()
	f := &fixture{kv: memory.New(), events: &recordingPublisher{}}
	var backing kv.Store = f.kv
	if wrap != nil {
		backing = wrap(f.kv)
	}
	f.repo = storage.NewSnapshotRepository(backing, storage.DefaultKey, storage.DefaultLegacyKey)
	f.store = store.New(f.repo, store.WithClock(func() time.Time { return testNow }), store.WithLocation(time.UTC))
	require.NoError(t, f.store.Load(context.Background()))
	f.expenses = NewExpenseService(f.store, f.events)
	f.dashboard = NewDashboardService(f.store, cache.NewLRUCache[query.Dashboard](8, time.Minute))
	f.backup = NewBackupService(f.store, f.repo, f.events)
	return f
}

func coffee() core.Expense {
	return core.Expense{Title: "  Coffee ", Amount: core.MustMoney("5.00"), Currency: core.RUB, Date: core.NewDate(2024, 1, 10), Category: core.Food}
}

func bus() core.Expense {
	return core.Expense{Title: "Bus", Amount: core.MustMoney("2.50"), Currency: core.RUB, Date: core.NewDate(2024, 1, 15), Category: core.Transport}
}

func TestCreateExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.expenses.CreateExpense(ctx, coffee())
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Coffee", created.Title)
	assert.Equal(t, []amqp.EventType{amqp.EventExpenseCreated}, f.events.types())
	assert.Equal(t, created.ID, f.events.events[0].ExpenseID)

	raw, err := f.kv.Get(ctx, storage.DefaultKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"title":"Coffee"`)
}

func TestCreateExpenseRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	future := coffee()
	future.Date = core.NewDate(2024, 1, 21)
	_, err := f.expenses.CreateExpense(ctx, future)
	assert.ErrorIs(t, err, core.ErrFutureDate)
	assert.True(t, core.IsValidation(err))

	blank := coffee()
	blank.Title = "   "
	_, err = f.expenses.CreateExpense(ctx, blank)
	assert.ErrorIs(t, err, core.ErrEmptyTitle)

	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.events.types())
}

func TestCreateExpenseSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	_, err := f.expenses.CreateExpense(context.Background(), coffee())
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Len())
}

func TestNilPublisher(t *testing.T) {
	f := newFixture(t)
	svc := NewExpenseService(f.store, nil)
	_, err := svc.CreateExpense(context.Background(), coffee())
	require.NoError(t, err)
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.expenses.CreateExpense(ctx, coffee())
	require.NoError(t, err)

	created.Title = "Latte"
	_, err = f.expenses.UpdateExpense(ctx, created)
	require.NoError(t, err)
	got, err := f.expenses.GetExpense(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Latte", got.Title)

	missing := created
	missing.ID = 1
	_, err = f.expenses.UpdateExpense(ctx, missing)
	assert.ErrorIs(t, err, core.ErrNotFound)

	f.expenses.DeleteExpense(ctx, created.ID)
	f.expenses.DeleteExpense(ctx, created.ID)
	_, err = f.expenses.GetExpense(ctx, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, []amqp.EventType{
		amqp.EventExpenseCreated, amqp.EventExpenseUpdated, amqp.EventExpenseDeleted,
	}, f.events.types())
}

func TestListAppliesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.expenses.CreateExpense(ctx, coffee())
	_, _ = f.expenses.CreateExpense(ctx, bus())

	view := f.expenses.List(ctx)
	assert.Equal(t, 2, view.Count)
	assert.Equal(t, "7.5", view.Total.String())
	assert.Equal(t, "Bus", view.Items[0].Title)

	cat := core.Food
	_, err := f.expenses.SetFilters(ctx, query.FilterPatch{Category: &cat})
	require.NoError(t, err)
	view = f.expenses.List(ctx)
	require.Equal(t, 1, view.Count)
	assert.Equal(t, "Coffee", view.Items[0].Title)
	assert.Equal(t, "5", view.Total.String())

	f.expenses.ResetFilters(ctx)
	assert.Equal(t, 2, f.expenses.List(ctx).Count)
}

func TestListEmptyHasNonNilItems(t *testing.T) {
	f := newFixture(t)
	view := f.expenses.List(context.Background())
	assert.NotNil(t, view.Items)
	assert.True(t, view.Total.IsZero())
}

func TestDashboardIsMemoizedPerVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := cache.NewLRUCache[query.Dashboard](8, time.Minute)
	f.dashboard = NewDashboardService(f.store, c)

	_, _ = f.expenses.CreateExpense(ctx, coffee())
	first := f.dashboard.Dashboard(ctx)
	second := f.dashboard.Dashboard(ctx)
	assert.Equal(t, first, second)
	hits, _ := c.Stats()
	assert.Equal(t, int64(1), hits)

	_, _ = f.expenses.CreateExpense(ctx, bus())
	third := f.dashboard.Dashboard(ctx)
	assert.Equal(t, "7.5", third.Summary.Total.String())
	assert.Equal(t, "3.75", third.Summary.Average.String())
	assert.Equal(t, "5", third.Summary.Max.String())
	assert.Equal(t, 2, c.Size())
}

func TestExportDefaultsToEmptyArray(t *testing.T) {
	f := newFixture(t)
	b, err := f.backup.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "expense-tracker-backup-2024-01-20.json", b.Filename)
	assert.Equal(t, "[]", string(b.Data))
}

func TestExportIsVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.expenses.CreateExpense(ctx, coffee())

	raw, err := f.kv.Get(ctx, storage.DefaultKey)
	require.NoError(t, err)
	b, err := f.backup.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, raw, string(b.Data))
}

func TestImportInvalidJSONLeavesPayloadUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.expenses.CreateExpense(ctx, coffee())
	before, err := f.kv.Get(ctx, storage.DefaultKey)
	require.NoError(t, err)

	for _, payload := range []string{
		`{not json`,
		`[{"id":1,"title":"","amount":1,"currency":"RUB","date":"2024-01-01","category":"food"}]`,
		`[{"title":"no id","amount":1,"currency":"RUB","date":"2024-01-01","category":"food"}]`,
		`[{"id":1,"title":"a","amount":1,"currency":"RUB","date":"2024-01-01","category":"food"},
		  {"id":1,"title":"b","amount":1,"currency":"RUB","date":"2024-01-01","category":"food"}]`,
	} {
		_, err := f.backup.Import(ctx, []byte(payload))
		assert.ErrorIs(t, err, ErrImportParse, payload)
	}

	after, err := f.kv.Get(ctx, storage.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.store.Len())
}

func TestImportReplacesCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.expenses.CreateExpense(ctx, coffee())

	payload := `{"expenses":[
		{"id":1704844800000,"title":"Rent","amount":"300.10","currency":"EUR","date":"2024-01-01","category":"utilities"},
		{"id":1704931200000,"title":"Book","amount":12,"currency":"USD","date":"2030-01-01","category":"education"}
	]}`
	n, err := f.backup.Import(ctx, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := f.store.Expenses()
	require.Len(t, got, 2)
	assert.Equal(t, "Rent", got[0].Title)
	assert.Equal(t, int64(1704931200000), got[1].ID)

	raw, err := f.kv.Get(ctx, storage.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, byte('['), raw[0])
	assert.Contains(t, f.events.types(), amqp.EventImported)
}

func TestResetRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.expenses.CreateExpense(ctx, coffee())

	assert.ErrorIs(t, f.backup.Reset(ctx, false), ErrResetNotConfirmed)
	assert.Equal(t, 1, f.store.Len())

	require.NoError(t, f.backup.Reset(ctx, true))
	assert.Equal(t, 0, f.store.Len())
	_, err := f.kv.Get(ctx, storage.DefaultKey)
	assert.Error(t, err)

	b, err := f.backup.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b.Data))
}

// interleavingKV calls hook once, after the first write it forwards, while
// the writer is still inside its critical section.
type interleavingKV struct {
	kv.Store
	mu   sync.Mutex
	hook func()
}

func (k *interleavingKV) arm(hook func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hook = hook
}

func (k *interleavingKV) fire() {
	k.mu.Lock()
	hook := k.hook
	k.hook = nil
	k.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (k *interleavingKV) Set(ctx context.Context, key, value string) error {
	err := k.Store.Set(ctx, key, value)
	k.fire()
	return err
}

func (k *interleavingKV) Remove(ctx context.Context, key string) error {
	err := k.Store.Remove(ctx, key)
	k.fire()
	return err
}

// concurrentCreate starts a CreateExpense and gives it time to reach the
// store lock before returning.
func concurrentCreate(t *testing.T, f *fixture, wg *sync.WaitGroup) func() {
	return func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.expenses.CreateExpense(context.Background(), bus())
			assert.NoError(t, err)
		}()
		time.Sleep(20 * time.Millisecond)
	}
}

func ids(expenses []core.Expense) []int64 {
	out := make([]int64, len(expenses))
	for i, e := range expenses {
		out[i] = e.ID
	}
	return out
}

func persistedIDs(t *testing.T, f *fixture) []int64 {
	t.Helper()
	raw, err := f.kv.Get(context.Background(), storage.DefaultKey)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return []int64{}
	}
	require.NoError(t, err)
	got, err := storage.Decode([]byte(raw))
	require.NoError(t, err)
	return ids(got)
}

func TestImportIsAtomicWithConcurrentCreate(t *testing.T) {
	var hooked *interleavingKV
	f := newFixtureOn(t, func(s kv.Store) kv.Store {
		hooked = &interleavingKV{Store: s}
		return hooked
	})
	ctx := context.Background()
	_, err := f.expenses.CreateExpense(ctx, coffee())
	require.NoError(t, err)

	var wg sync.WaitGroup
	hooked.arm(concurrentCreate(t, f, &wg))

	payload := `[
		{"id":1704844800000,"title":"Rent","amount":300,"currency":"EUR","date":"2024-01-01","category":"utilities"},
		{"id":1704931200000,"title":"Book","amount":12,"currency":"USD","date":"2024-01-02","category":"education"}
	]`
	n, err := f.backup.Import(ctx, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	wg.Wait()

	inMemory := f.store.Expenses()
	require.Len(t, inMemory, 3)
	assert.Equal(t, "Bus", inMemory[0].Title)
	assert.Equal(t, ids(inMemory), persistedIDs(t, f))
}

func TestResetIsAtomicWithConcurrentCreate(t *testing.T) {
	var hooked *interleavingKV
	f := newFixtureOn(t, func(s kv.Store) kv.Store {
		hooked = &interleavingKV{Store: s}
		return hooked
	})
	ctx := context.Background()
	_, err := f.expenses.CreateExpense(ctx, coffee())
	require.NoError(t, err)

	var wg sync.WaitGroup
	hooked.arm(concurrentCreate(t, f, &wg))

	require.NoError(t, f.backup.Reset(ctx, true))
	wg.Wait()

	inMemory := f.store.Expenses()
	require.Len(t, inMemory, 1)
	assert.Equal(t, "Bus", inMemory[0].Title)
	assert.Equal(t, ids(inMemory), persistedIDs(t, f))
}

func TestEventVersionsMatchMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.expenses.CreateExpense(ctx, coffee())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, finalVersion := f.store.Snapshot()

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.events, writers)
	seen := make(map[uint64]bool, writers)
	for _, ev := range f.events.events {
		assert.False(t, seen[ev.Version], "version %d published twice", ev.Version)
		seen[ev.Version] = true
	}
	for v := finalVersion - writers + 1; v <= finalVersion; v++ {
		assert.True(t, seen[v], "version %d never published", v)
	}
}

func TestParseBackupAcceptsMultibyteTitles(t *testing.T) {
	title := strings.Repeat("Ж", 101)
	payload := `[{"id":1704844800000,"title":"` + title + `","amount":1,"currency":"RUB","date":"2024-01-01","category":"food"}]`

	got, err := ParseBackup([]byte(payload))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, title, got[0].Title)

	long := strings.Repeat("Ж", 201)
	_, err = ParseBackup([]byte(`[{"id":1,"title":"` + long + `","amount":1,"currency":"RUB","date":"2024-01-01","category":"food"}]`))
	assert.ErrorIs(t, err, ErrImportParse)
}

func TestListIsMemoizedPerVersionAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lists := cache.NewLRUCache[ListView](8, time.Minute)
	f.expenses.WithListCache(lists)
	_, _ = f.expenses.CreateExpense(ctx, coffee())

	first := f.expenses.List(ctx)
	second := f.expenses.List(ctx)
	assert.Equal(t, first, second)
	hits, misses := lists.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	search := "COFF"
	_, err := f.expenses.SetFilters(ctx, query.FilterPatch{Search: &search})
	require.NoError(t, err)
	upper := f.expenses.List(ctx)
	assert.Equal(t, 1, upper.Count)

	search = "coff"
	_, err = f.expenses.SetFilters(ctx, query.FilterPatch{Search: &search})
	require.NoError(t, err)
	lower := f.expenses.List(ctx)
	assert.Equal(t, "coff", lower.Filters.Search)
	hits, _ = lists.Stats()
	assert.Equal(t, int64(2), hits)

	_, _ = f.expenses.CreateExpense(ctx, core.Expense{
		Title: "Coffee beans", Amount: core.MustMoney("9"), Currency: core.RUB,
		Date: core.NewDate(2024, 1, 12), Category: core.Food,
	})
	after := f.expenses.List(ctx)
	assert.Equal(t, 2, after.Count)
	assert.Equal(t, "14", after.Total.String())
}
