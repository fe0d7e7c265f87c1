package worker

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// StatsWorker projects marketplace events into the item stats cache
type StatsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(consumer *broker.Consumer, projector *service.StatsProjector) *StatsWorker {
	return &StatsWorker{
		consumer:     consumer,
		eventHandler: newStatsHandler(projector),
		logger:       util.GetLogger(),
	}
}

func newStatsHandler(projector *service.StatsProjector) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(projector.HandleOrderStatusChanged)
	eventHandler.OnReviewChanged(projector.HandleReviewChanged)
	return eventHandler
}

// Start starts the worker
func (w *StatsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stats worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StatsWorker) Stop() error {
	w.logger.Info("Stopping stats worker")
	return w.consumer.Close()
}

type reconcileRunner interface {
	Run(ctx context.Context) (*models.ReconcileReport, error)
}

// ReconcileWorker runs counter reconciliation on a cron schedule
type ReconcileWorker struct {
	runner   reconcileRunner
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewReconcileWorker creates a new reconcile worker. schedule accepts the
// cron package's six-field specs and descriptors such as "@hourly".
func NewReconcileWorker(runner reconcileRunner, schedule string, timeout time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		runner:   runner,
		schedule: schedule,
		timeout:  timeout,
		cron:     cron.New(),
		logger:   util.GetLogger(),
	}
}

// Start registers the job and starts the scheduler
func (w *ReconcileWorker) Start() error {
	if err := w.cron.AddFunc(w.schedule, w.runOnce); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", w.schedule, err)
	}
	w.cron.Start()
	w.logger.Info("Started reconcile worker", zap.String("schedule", w.schedule))
	return nil
}

// Stop stops the scheduler; a run in progress finishes on its own
func (w *ReconcileWorker) Stop() {
	w.logger.Info("Stopping reconcile worker")
	w.cron.Stop()
}

func (w *ReconcileWorker) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if _, err := w.runner.Run(ctx); err != nil {
		w.logger.Error("Scheduled reconciliation failed", zap.Error(err))
	}
}
