package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/engine"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/logger"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/metrics"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
)

// statusStore is the slice of the sync-status repository the reconciler
// needs: claiming due rows and reading backlog counts.
type statusStore interface {
	ClaimDue(ctx context.Context, batch, maxRetries int, stuckAfter time.Duration) ([]model.SyncStatus, error)
	HealthCounts(ctx context.Context, maxRetries int) (model.SyncHealth, error)
}

// redriver re-runs the index mutation for one claimed row; satisfied by
// *engine.Writer.
type redriver interface {
	Redrive(ctx context.Context, st model.SyncStatus) (bool, error)
	MaxRetries() int
}

// Reconciler drains sync_status rows the writer left in a non-terminal
// state. Several instances can run side by side: SKIP LOCKED claiming keeps
// them off each other's rows.
type Reconciler struct {
	// Dependencies
	Status statusStore
	Writer redriver

	// Behavior
	Interval   time.Duration // scan period
	BatchSize  int           // rows claimed per scan
	Workers    int           // parallel redrives per batch
	StuckAfter time.Duration // processing rows older than this are reclaimed
}

func NewReconciler(status statusStore, writer redriver) *Reconciler {
	return &Reconciler{
		Status:     status,
		Writer:     writer,
		Interval:   15 * time.Second,
		BatchSize:  100,
		Workers:    8,
		StuckAfter: 5 * time.Minute,
	}
}

// Run blocks until ctx is cancelled, scanning on a fixed interval. The first
// scan happens immediately so a restart drains backlog without waiting a
// full interval.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		r.Interval = 15 * time.Second
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 100
	}
	if r.Workers <= 0 {
		r.Workers = 8
	}
	if r.StuckAfter <= 0 {
		r.StuckAfter = 5 * time.Minute
	}

	tick := time.NewTicker(r.Interval)
	defer tick.Stop()

	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			r.runOnce(ctx)
		}
	}
}

// runOnce claims one batch and fans it out. Errors here are operational
// (database unreachable, etc.) and must be loud, not swallowed: rows stay
// claimable and the next tick retries.
func (r *Reconciler) runOnce(ctx context.Context) {
	rows, err := r.Status.ClaimDue(ctx, r.BatchSize, r.Writer.MaxRetries(), r.StuckAfter)
	if err != nil {
		logger.Log.Error("reconciler claim failed", zap.Error(err))
		return
	}
	if len(rows) > 0 {
		r.process(ctx, rows)
	}

	r.publishHealth(ctx)
}

func (r *Reconciler) process(ctx context.Context, rows []model.SyncStatus) {
	in := make(chan model.SyncStatus, len(rows))
	for _, st := range rows {
		in <- st
	}
	close(in)

	var wg sync.WaitGroup
	for i := 0; i < r.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for st := range in {
				if ctx.Err() != nil {
					return
				}
				r.redriveOne(ctx, st)
			}
		}()
	}
	wg.Wait()
}

func (r *Reconciler) redriveOne(ctx context.Context, st model.SyncStatus) {
	synced, err := r.Writer.Redrive(ctx, st)
	switch {
	case err != nil:
		metrics.ReconcilesTotal.WithLabelValues("retried").Inc()
		logger.Log.Error("redrive failed",
			zap.String("tenant", st.TenantID),
			zap.String("entity_type", st.EntityType),
			zap.String("entity_id", st.EntityID),
			zap.Error(err))
	case synced:
		metrics.ReconcilesTotal.WithLabelValues("synced").Inc()
	case st.RetryCount+1 >= r.Writer.MaxRetries():
		metrics.ReconcilesTotal.WithLabelValues("dead").Inc()
		logger.Log.Warn("entity dead-lettered",
			zap.String("tenant", st.TenantID),
			zap.String("entity_type", st.EntityType),
			zap.String("entity_id", st.EntityID),
			zap.Int("retry_count", st.RetryCount+1))
	default:
		metrics.ReconcilesTotal.WithLabelValues("retried").Inc()
	}
}

func (r *Reconciler) publishHealth(ctx context.Context) {
	h, err := r.Status.HealthCounts(ctx, r.Writer.MaxRetries())
	if err != nil {
		logger.Log.Warn("health counts failed", zap.Error(err))
		return
	}
	metrics.BacklogGauge.WithLabelValues("pending").Set(float64(h.Pending))
	metrics.BacklogGauge.WithLabelValues("failed").Set(float64(h.Failed))
	metrics.BacklogGauge.WithLabelValues("dead").Set(float64(h.DeadLetters))
	metrics.OldestUnsyncedAge.Set(h.OldestUnsync.Seconds())
}

var _ redriver = (*engine.Writer)(nil)
