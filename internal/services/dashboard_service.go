package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"spesa/internal/cache"
	"spesa/internal/query"
	"spesa/internal/store"
)

// DashboardService serves the statistics view. Results are memoized per
// (collection version, today) so repeated reads between mutations are free.
type DashboardService struct {
	store *store.Store
	cache cache.Cache[query.Dashboard]
	group singleflight.Group
}

func NewDashboardService(s *store.Store, c cache.Cache[query.Dashboard]) *DashboardService {
	return &DashboardService{store: s, cache: c}
}

// Dashboard returns the aggregates over the full collection, rounded for
// presentation.
func (d *DashboardService) Dashboard(ctx context.Context) query.Dashboard {
	expenses, version := d.store.Snapshot()
	today := d.store.Today()
	key := fmt.Sprintf("%d|%s", version, today)

	if cached, ok := d.cache.Get(key); ok {
		return cached
	}

	v, _, shared := d.group.Do(key, func() (any, error) {
		dash := query.BuildDashboard(expenses, today).Rounded()
		d.cache.Set(key, dash)
		return dash, nil
	})
	slog.DebugContext(ctx, "Dashboard computed",
		"component", "cache", "key", key, "count", len(expenses), "shared", shared)
	return v.(query.Dashboard)
}
