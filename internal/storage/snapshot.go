// Package storage owns the persisted snapshot of the expense collection.
// It is the only component that talks to the kv adapter; everything else
// goes through SnapshotRepository.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"spesa/internal/core"
	"spesa/internal/kv"
)

const (
	DefaultKey       = "expenses"
	DefaultLegacyKey = "expenseTrackerState"
)

// ErrMalformedSnapshot is returned when a stored or imported payload does not
// decode as an expense collection.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// SnapshotRepository reads and writes the expense collection under one key.
type SnapshotRepository struct {
	store     kv.Store
	key       string
	legacyKey string
}

// NewSnapshotRepository returns a repository over store. An empty key falls
// back to DefaultKey; an empty legacyKey disables legacy adoption.
func NewSnapshotRepository(store kv.Store, key, legacyKey string) *SnapshotRepository {
	if key == "" {
		key = DefaultKey
	}
	return &SnapshotRepository{store: store, key: key, legacyKey: legacyKey}
}

// Key returns the storage key holding the snapshot.
func (r *SnapshotRepository) Key() string {
	return r.key
}

// Load returns the persisted collection. A missing snapshot is an empty
// collection, not an error. A payload that fails to decode yields
// ErrMalformedSnapshot.
//
// When the primary key is empty and the legacy key holds a payload, that
// payload is moved to the primary key.
func (r *SnapshotRepository) Load(ctx context.Context) ([]core.Expense, error) {
	raw, err := r.store.Get(ctx, r.key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return r.adoptLegacy(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode([]byte(raw))
}

func (r *SnapshotRepository) adoptLegacy(ctx context.Context) ([]core.Expense, error) {
	if r.legacyKey == "" || r.legacyKey == r.key {
		return nil, nil
	}
	raw, err := r.store.Get(ctx, r.legacyKey)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read legacy snapshot: %w", err)
	}

	expenses, err := Decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("legacy key %q: %w", r.legacyKey, err)
	}
	if err := r.Save(ctx, expenses); err != nil {
		return nil, fmt.Errorf("adopt legacy snapshot: %w", err)
	}
	if err := r.store.Remove(ctx, r.legacyKey); err != nil {
		slog.WarnContext(ctx, "Failed to remove legacy snapshot key",
			"component", "storage", "key", r.legacyKey, "error", err)
	}
	slog.InfoContext(ctx, "Adopted legacy snapshot",
		"component", "storage", "from", r.legacyKey, "to", r.key, "count", len(expenses))
	return expenses, nil
}

// Save writes the whole collection.
func (r *SnapshotRepository) Save(ctx context.Context, expenses []core.Expense) error {
	payload, err := Encode(expenses)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, r.key, string(payload)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Raw returns the persisted payload verbatim, or "[]" when nothing is stored.
func (r *SnapshotRepository) Raw(ctx context.Context) ([]byte, error) {
	raw, err := r.store.Get(ctx, r.key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return []byte(raw), nil
}

// Clear removes the persisted snapshot.
func (r *SnapshotRepository) Clear(ctx context.Context) error {
	if err := r.store.Remove(ctx, r.key); err != nil {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Encode serializes the collection as an ordered JSON array.
func Encode(expenses []core.Expense) ([]byte, error) {
	if expenses == nil {
		expenses = []core.Expense{}
	}
	b, err := json.Marshal(expenses)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses a snapshot. Two shapes are accepted: a bare array of
// records, or an object whose "expenses" field is that array. Every record
// must carry a non-zero id.
func Decode(data []byte) ([]core.Expense, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedSnapshot)
	}

	var expenses []core.Expense
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &expenses); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
	case '{':
		var wrapped struct {
			Expenses *[]core.Expense `json:"expenses"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		if wrapped.Expenses == nil {
			return nil, fmt.Errorf("%w: object without expenses array", ErrMalformedSnapshot)
		}
		expenses = *wrapped.Expenses
	default:
		return nil, fmt.Errorf("%w: expected array or object", ErrMalformedSnapshot)
	}

	for i, e := range expenses {
		if e.ID == 0 {
			return nil, fmt.Errorf("%w: record %d has no id", ErrMalformedSnapshot, i)
		}
	}
	return expenses, nil
}
