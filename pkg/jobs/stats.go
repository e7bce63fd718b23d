package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/sunup/pkg/async"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/pipeline"
	"github.com/platinummonkey/sunup/pkg/storage"
)

// UnassignedLabel is the stage label for people without a stage
const UnassignedLabel = "(unassigned)"

// StatsRefresher publishes per-stage occupancy of every active tenant
type StatsRefresher struct {
	store   *storage.Store
	metrics *observability.Metrics
	workers int
	timeout time.Duration
}

// NewStatsRefresher creates the refresher. workers bounds concurrent tenants.
func NewStatsRefresher(store *storage.Store, metrics *observability.Metrics, workers int) *StatsRefresher {
	if workers <= 0 {
		workers = 4
	}
	return &StatsRefresher{
		store:   store,
		metrics: metrics,
		workers: workers,
		timeout: 30 * time.Second,
	}
}

// Name implements Job
func (r *StatsRefresher) Name() string { return "pipeline-stats" }

// Run implements Job
func (r *StatsRefresher) Run(ctx context.Context) error {
	var tenants []models.Tenant
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		tenants, err = tx.ListTenants(ctx, true)
		return err
	})
	if err != nil {
		return err
	}

	errs := async.Batch(ctx, tenants, r.workers, "pipeline stats", r.timeout, func(ctx context.Context, t models.Tenant) error {
		return r.refresh(ctx, t.ID)
	})
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"tenants": len(tenants),
		"failed":  len(errs),
	}).Debug("Refreshed pipeline statistics")
	return errors.Join(errs...)
}

func (r *StatsRefresher) refresh(ctx context.Context, tenantID string) error {
	var stats *pipeline.Statistics
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		stats, err = pipeline.Compute(ctx, tx, tenantID)
		return err
	})
	if err != nil {
		return err
	}

	for _, sc := range stats.Stages {
		r.metrics.SetPipelinePeople(tenantID, sc.Stage, sc.Count)
	}
	r.metrics.SetPipelinePeople(tenantID, UnassignedLabel, stats.Unassigned)
	return nil
}
