package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spesa/internal/core"
	"spesa/internal/kv"
	"spesa/internal/kv/memory"
)

func sample() []core.Expense {
	return []core.Expense{
		{ID: 2, Title: "Bus", Amount: core.MustMoney("2.50"), Currency: core.RUB, Date: core.NewDate(2024, 1, 15), Category: core.Transport},
		{ID: 1, Title: "Coffee", Amount: core.MustMoney("5.00"), Currency: core.RUB, Date: core.NewDate(2024, 1, 10), Category: core.Food},
	}
}

type failingStore struct {
	kv.Store
	setErr error
}

func (f failingStore) Set(ctx context.Context, key, value string) error {
	return f.setErr
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotRepository(memory.New(), "", "")

	require.NoError(t, repo.Save(ctx, sample()))
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range got {
		assert.Equal(t, sample()[i].ID, got[i].ID)
		assert.Equal(t, sample()[i].Title, got[i].Title)
		assert.Equal(t, 0, sample()[i].Amount.Cmp(got[i].Amount))
		assert.Equal(t, sample()[i].Date, got[i].Date)
		assert.Equal(t, sample()[i].Category, got[i].Category)
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	repo := NewSnapshotRepository(memory.New(), DefaultKey, DefaultLegacyKey)
	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadMalformed(t *testing.T) {
	payloads := []string{
		`not json`,
		`{"foo": 1}`,
		`42`,
		`[{"id":1,"amount":"abc"}]`,
		`[{"title":"no id"}]`,
		`[null]`,
		``,
	}
	for _, p := range payloads {
		store := memory.NewWithValues(map[string]string{DefaultKey: p})
		repo := NewSnapshotRepository(store, DefaultKey, "")
		_, err := repo.Load(context.Background())
		assert.ErrorIs(t, err, ErrMalformedSnapshot, "payload %q", p)
	}
}

func TestLoadAdoptsLegacyKey(t *testing.T) {
	ctx := context.Background()
	legacy := `{"expenses":[{"id":7,"title":"Tea","amount":3,"currency":"EUR","date":"2024-02-01","category":"food"}],"filters":{"sortBy":"date"}}`
	store := memory.NewWithValues(map[string]string{DefaultLegacyKey: legacy})
	repo := NewSnapshotRepository(store, DefaultKey, DefaultLegacyKey)

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)

	_, err = store.Get(ctx, DefaultLegacyKey)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)

	primary, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Contains(t, primary, `"title":"Tea"`)
}

func TestLoadPrefersPrimaryOverLegacy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWithValues(map[string]string{
		DefaultKey:       `[]`,
		DefaultLegacyKey: `[{"id":1,"title":"x","amount":1,"currency":"RUB","date":"2024-01-01","category":"other"}]`,
	})
	repo := NewSnapshotRepository(store, DefaultKey, DefaultLegacyKey)

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = store.Get(ctx, DefaultLegacyKey)
	assert.NoError(t, err, "legacy key is left alone when the primary key exists")
}

func TestRawAndClear(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotRepository(memory.New(), DefaultKey, "")

	raw, err := repo.Raw(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))

	require.NoError(t, repo.Save(ctx, sample()))
	raw, err = repo.Raw(ctx)
	require.NoError(t, err)
	encoded, _ := Encode(sample())
	assert.Equal(t, string(encoded), string(raw))

	require.NoError(t, repo.Clear(ctx))
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveFailureIsReported(t *testing.T) {
	boom := errors.New("quota exceeded")
	repo := NewSnapshotRepository(failingStore{Store: memory.New(), setErr: boom}, DefaultKey, "")
	err := repo.Save(context.Background(), sample())
	assert.ErrorIs(t, err, boom)
}

func TestEncodeNilIsEmptyArray(t *testing.T) {
	b, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}
