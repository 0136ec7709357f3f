package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spesa/internal/amqp"
)

func TestEventWorkerCountsByType(t *testing.T) {
	w := NewEventWorker(16)
	ctx := context.Background()

	require.NoError(t, w.HandleExpenseEvent(ctx, amqp.NewExpenseEvent(amqp.EventExpenseCreated, 1, 1)))
	require.NoError(t, w.HandleExpenseEvent(ctx, amqp.NewExpenseEvent(amqp.EventExpenseUpdated, 1, 2)))
	require.NoError(t, w.HandleExpenseEvent(ctx, amqp.NewExpenseEvent(amqp.EventReset, 0, 3)))

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, uint64(3), stats.LastVersion)
	assert.Zero(t, stats.Gaps)
	assert.Equal(t, int64(1), stats.ByType[amqp.EventExpenseCreated])
	assert.Equal(t, int64(1), stats.ByType[amqp.EventReset])
}

func TestEventWorkerSkipsRedelivery(t *testing.T) {
	w := NewEventWorker(16)
	ev := amqp.NewExpenseEvent(amqp.EventExpenseCreated, 7, 1)

	require.NoError(t, w.HandleExpenseEvent(context.Background(), ev))
	require.NoError(t, w.HandleExpenseEvent(context.Background(), ev))

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Duplicates)
}

func TestEventWorkerDetectsGaps(t *testing.T) {
	w := NewEventWorker(16)
	ctx := context.Background()

	require.NoError(t, w.HandleExpenseEvent(ctx, amqp.NewExpenseEvent(amqp.EventExpenseCreated, 1, 4)))
	require.NoError(t, w.HandleExpenseEvent(ctx, amqp.NewExpenseEvent(amqp.EventExpenseDeleted, 1, 7)))
	// late delivery does not move the version back
	require.NoError(t, w.HandleExpenseEvent(ctx, amqp.NewExpenseEvent(amqp.EventExpenseCreated, 2, 5)))

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Gaps)
	assert.Equal(t, uint64(7), stats.LastVersion)
}

func TestEventWorkerStatsIsACopy(t *testing.T) {
	w := NewEventWorker(4)
	require.NoError(t, w.HandleExpenseEvent(context.Background(), amqp.NewExpenseEvent(amqp.EventImported, 0, 1)))

	stats := w.Stats()
	stats.ByType[amqp.EventImported] = 99
	assert.Equal(t, int64(1), w.Stats().ByType[amqp.EventImported])
}
