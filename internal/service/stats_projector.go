package service

import (
	"context"
	"fmt"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// StatsProjector keeps the item stats cache current from marketplace events
type StatsProjector struct {
	events  EventStore
	catalog *CatalogService
	logger  *zap.Logger
}

// NewStatsProjector creates a new stats projector
func NewStatsProjector(events EventStore, catalog *CatalogService) *StatsProjector {
	return &StatsProjector{
		events:  events,
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// HandleOrderStatusChanged refreshes the stats of every item whose total_sold moved
func (p *StatsProjector) HandleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsProjector.HandleOrderStatusChanged")
	defer span.End()

	if event.SoldDelta == 0 {
		return nil
	}
	return p.once(ctx, event.BaseEvent, func() error {
		seen := make(map[string]bool, len(event.ItemIDs))
		for _, itemID := range event.ItemIDs {
			if seen[itemID] {
				continue
			}
			seen[itemID] = true
			if _, err := p.catalog.RefreshItemStats(ctx, itemID, "order_status"); err != nil {
				p.logger.Error("Failed to refresh item stats",
					zap.String("order_id", event.OrderID),
					zap.String("item_id", itemID),
					zap.Error(err))
			}
		}
		return nil
	})
}

// HandleReviewChanged refreshes the stats of the reviewed item
func (p *StatsProjector) HandleReviewChanged(ctx context.Context, event *models.ReviewChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsProjector.HandleReviewChanged")
	defer span.End()

	return p.once(ctx, event.BaseEvent, func() error {
		if _, err := p.catalog.RefreshItemStats(ctx, event.ItemID, "review"); err != nil {
			return fmt.Errorf("failed to refresh item stats: %w", err)
		}
		return nil
	})
}

func (p *StatsProjector) once(ctx context.Context, event models.BaseEvent, fn func() error) error {
	processed, err := p.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		p.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	if err := p.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		p.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
