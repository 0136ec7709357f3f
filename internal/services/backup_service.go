package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spesa/internal/amqp"
	"spesa/internal/core"
	"spesa/internal/storage"
	"spesa/internal/store"
)

var (
	ErrImportParse       = errors.New("backup file is not a valid expense collection")
	ErrResetNotConfirmed = errors.New("reset requires explicit confirmation")
)

// SnapshotReader exposes the persisted payload verbatim. Writes go through
// the store so the payload and the collection change together.
type SnapshotReader interface {
	Raw(ctx context.Context) ([]byte, error)
}

// Backup is an export ready to be offered as a download.
type Backup struct {
	Filename string
	Data     []byte
}

// BackupService implements export, import and reset of the persisted
// collection.
type BackupService struct {
	store    *store.Store
	snapshot SnapshotReader
	events   EventPublisher
}

func NewBackupService(s *store.Store, snapshot SnapshotReader, events EventPublisher) *BackupService {
	return &BackupService{store: s, snapshot: snapshot, events: events}
}

// Export returns the persisted payload verbatim.
func (b *BackupService) Export(ctx context.Context) (Backup, error) {
	data, err := b.snapshot.Raw(ctx)
	if err != nil {
		return Backup{}, fmt.Errorf("export: %w", err)
	}
	return Backup{
		Filename: fmt.Sprintf("expense-tracker-backup-%s.json", b.store.Today()),
		Data:     data,
	}, nil
}

// Import replaces the persisted payload and the in-memory collection with
// the contents of data. When data does not decode, or a record breaks an
// invariant, nothing is written and ErrImportParse is returned.
func (b *BackupService) Import(ctx context.Context, data []byte) (int, error) {
	expenses, err := ParseBackup(data)
	if err != nil {
		slog.WarnContext(ctx, "Rejected backup import", "component", "storage", "error", err)
		return 0, err
	}

	version, err := b.store.Import(ctx, expenses)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}

	slog.InfoContext(ctx, "Backup imported", "component", "storage", "count", len(expenses))
	publishEvent(ctx, b.events, amqp.EventImported, 0, version)
	return len(expenses), nil
}

// ParseBackup decodes and checks a backup file. Dates after today are
// accepted since backups may come from a machine with a different clock.
func ParseBackup(data []byte) ([]core.Expense, error) {
	expenses, err := storage.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportParse, err)
	}

	seen := make(map[int64]struct{}, len(expenses))
	for i, e := range expenses {
		if err := e.ValidateFields(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrImportParse, i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: record %d: %v", ErrImportParse, i, core.ErrDuplicateID)
		}
		seen[e.ID] = struct{}{}
	}
	return expenses, nil
}

// Reset erases the persisted payload and empties the running state.
func (b *BackupService) Reset(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrResetNotConfirmed
	}
	version, err := b.store.Clear(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	slog.InfoContext(ctx, "All expenses erased", "component", "storage")
	publishEvent(ctx, b.events, amqp.EventReset, 0, version)
	return nil
}
