package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutService captures orders and drives their status lifecycle
type CheckoutService struct {
	orders         OrderStore
	catalog        CatalogStore
	validator      *OrderValidator
	idempotency    IdempotencyStore
	publisher      EventPublisher
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	orders OrderStore,
	catalog CatalogStore,
	validator *OrderValidator,
	idempotency IdempotencyStore,
	publisher EventPublisher,
	idempotencyTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		orders:         orders,
		catalog:        catalog,
		validator:      validator,
		idempotency:    idempotency,
		publisher:      publisher,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// CheckoutResult is the outcome of a checkout. Replayed is set when the
// order was created by an earlier request with the same idempotency key.
type CheckoutResult struct {
	Order    *models.Order
	Replayed bool
}

// Checkout validates, prices and stores a new pending order
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	const op = "CheckoutService.Checkout"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	clientKey := req.IdempotencyKey != ""
	if clientKey {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			util.OrdersReplayedTotal.Inc()
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return &CheckoutResult{Order: existing, Replayed: true}, nil
		}

		claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, req.IdempotencyKey, s.idempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if !claimed {
			util.OrdersFailedTotal.WithLabelValues(string(apperr.ReasonConcurrentEdit)).Inc()
			return nil, apperr.Conflict(apperr.ReasonConcurrentEdit, op,
				"a checkout with this idempotency key is already in progress")
		}
	} else {
		req.IdempotencyKey = uuid.New().String()
	}

	order, err := s.capture(ctx, req)
	if err != nil {
		if clientKey {
			if relErr := s.idempotency.ReleaseIdempotencyKey(ctx, req.IdempotencyKey); relErr != nil {
				s.logger.Warn("Failed to release idempotency key",
					zap.String("idempotency_key", req.IdempotencyKey), zap.Error(relErr))
			}
		}
		util.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	return &CheckoutResult{Order: order}, nil
}

func (s *CheckoutService) capture(ctx context.Context, req *CheckoutRequest) (*models.Order, error) {
	priced, err := s.validator.ValidateAndPrice(ctx, req)
	if err != nil {
		reason := string(apperr.ReasonOf(err))
		if reason == "" {
			reason = "internal"
		}
		util.OrdersFailedTotal.WithLabelValues(reason).Inc()
		return nil, err
	}

	order := priced.Order
	order.ID = models.NewID()
	order.IdempotencyKey = req.IdempotencyKey
	for i := range order.Lines {
		order.Lines[i].ID = models.NewID()
		order.Lines[i].OrderID = order.ID
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Int("lines", len(order.Lines)),
		zap.String("grand_total", order.GrandTotal.StringFixed(2)))

	lines := make([]models.OrderLineData, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, models.OrderLineData{
			ItemID:    line.ItemID,
			PackageID: line.PackageID,
			LineTotal: line.LineTotal.StringFixed(2),
		})
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCreated),
		OrderID:    order.ID,
		UserID:     order.UserID,
		GrandTotal: order.GrandTotal.StringFixed(2),
		Currency:   order.Currency,
		Lines:      lines,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// GetOrder retrieves an order by ID
func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	const op = "CheckoutService.GetOrder"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if !models.IsValidID(orderID) {
		return nil, apperr.Validation(apperr.ReasonInvalidID, op, "invalid order id", "id")
	}
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, apperr.NotFound(apperr.ReasonOrderNotFound, op, "order not found")
	}
	return order, nil
}

// ListOrders returns a page of orders
func (s *CheckoutService) ListOrders(ctx context.Context, filter OrderFilter) (models.Page[models.Order], error) {
	const op = "CheckoutService.ListOrders"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return models.Page[models.Order]{}, apperr.Validation(apperr.ReasonInvalidStatus, op,
			fmt.Sprintf("unknown order status %q", filter.Status))
	}
	filter.ListQuery = filter.ListQuery.Normalize()

	orders, total, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return models.Page[models.Order]{}, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return models.Page[models.Order]{
		Pagination: models.NewPagination(filter.ListQuery, total),
		Payload:    orders,
	}, nil
}

// UpdateStatus applies a status transition and moves total_sold of every line's item
func (s *CheckoutService) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) (*models.Order, error) {
	const op = "CheckoutService.UpdateStatus"
	ctx, span := util.StartSpan(ctx, op, attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	t, err := ApplyStatusTransition(order, next)
	if err != nil {
		return nil, err
	}
	if t.Noop() {
		return order, nil
	}

	itemIDs := lineItemIDs(order)
	if ts, ok := s.orders.(TransitionStore); ok {
		applied, err := ts.ApplyTransition(ctx, order.ID, itemIDs, t)
		if err != nil {
			return nil, fmt.Errorf("failed to apply status transition: %w", err)
		}
		if !applied {
			return nil, apperr.Conflict(apperr.ReasonConcurrentEdit, op, "order status changed concurrently")
		}
	} else {
		if err := s.applyInSteps(ctx, op, order.ID, itemIDs, t); err != nil {
			return nil, err
		}
	}

	util.OrderTransitionsTotal.WithLabelValues(string(t.From), string(t.To)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.Int("sold_delta", t.SoldDelta))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		From:      t.From,
		To:        t.To,
		SoldDelta: t.SoldDelta,
		ItemIDs:   itemIDs,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	return order, nil
}

// applyInSteps writes the status first and then each counter. A counter
// failure leaves the order updated and is left to reconciliation.
func (s *CheckoutService) applyInSteps(ctx context.Context, op, orderID string, itemIDs []string, t models.StatusTransition) error {
	updated, err := s.orders.UpdateOrderStatus(ctx, orderID, t.From, t.To)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if !updated {
		return apperr.Conflict(apperr.ReasonConcurrentEdit, op, "order status changed concurrently")
	}
	if t.SoldDelta == 0 {
		return nil
	}

	for _, itemID := range itemIDs {
		if err := s.catalog.IncrementSold(ctx, itemID, t.SoldDelta); err != nil {
			util.CatalogCounterInconsistencies.WithLabelValues(models.CounterTotalSold).Inc()
			s.logger.Error("Catalog counter inconsistent after status change; reconciliation required",
				zap.String("order_id", orderID),
				zap.String("item_id", itemID),
				zap.Int("sold_delta", t.SoldDelta),
				zap.Error(err))
		}
	}
	return nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
