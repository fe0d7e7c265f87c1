package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// Reconciler re-derives total_sold and items_count from their source records
type Reconciler struct {
	store  CounterStore
	mu     sync.Mutex
	logger *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(store CounterStore) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Run rewrites every drifted counter and reports what changed. Runs do not overlap.
func (r *Reconciler) Run(ctx context.Context) (*models.ReconcileReport, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Run")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	report := &models.ReconcileReport{StartedAt: time.Now()}

	sold, err := r.store.ReconcileSoldCounters(ctx)
	if err != nil {
		util.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to reconcile total_sold: %w", err)
	}
	counts, err := r.store.ReconcileCategoryCounts(ctx)
	if err != nil {
		util.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to reconcile items_count: %w", err)
	}

	report.Corrections = append(append(make([]models.CounterCorrection, 0, len(sold)+len(counts)), sold...), counts...)
	report.FinishedAt = time.Now()

	for _, c := range report.Corrections {
		util.ReconcileCorrectionsTotal.WithLabelValues(c.Counter).Inc()
		r.logger.Warn("Counter corrected",
			zap.String("counter", c.Counter),
			zap.String("id", c.ID),
			zap.Int("was", c.Was),
			zap.Int("now", c.Now))
	}
	util.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	r.logger.Info("Reconciliation finished",
		zap.Int("corrections", len(report.Corrections)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))

	return report, nil
}
