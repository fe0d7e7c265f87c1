package service

import (
	"context"
	"time"

	"marketplace-service/internal/models"
)

// Lookups return (nil, nil) when the record does not exist.

// ItemFilter narrows an item listing.
type ItemFilter struct {
	models.ListQuery
	CategoryID   string `form:"categories_id"`
	Visibility   string `form:"status"`
	Availability string `form:"availability"`
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	models.ListQuery
	UserID string             `form:"user_id"`
	Status models.OrderStatus `form:"status"`
}

// CatalogStore is the catalog persistence the services depend on.
type CatalogStore interface {
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	GetPackage(ctx context.Context, itemID, packageID string) (*models.Package, error)
	IncrementSold(ctx context.Context, itemID string, delta int) error
	IncrementCategoryCount(ctx context.Context, categoryID string, delta int) error

	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategory(ctx context.Context, categoryID string) (*models.Category, error)
	ListCategories(ctx context.Context, q models.ListQuery) ([]models.Category, int, error)

	ItemNameExists(ctx context.Context, name, excludeID string) (bool, error)
	CreateItem(ctx context.Context, item *models.Item) error
	UpdateItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, itemID string) error
	ListItems(ctx context.Context, filter ItemFilter) ([]models.Item, int, error)

	// SaveReviews replaces the item's reviews and stores its avg_rating.
	SaveReviews(ctx context.Context, item *models.Item) error
}

// OrderStore is the order persistence the checkout service depends on.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	// UpdateOrderStatus moves the order from -> to and reports false if the
	// stored status was no longer from.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int, error)
}

// TransitionStore is implemented by order stores that can persist a status
// change together with its total_sold deltas in one transaction.
type TransitionStore interface {
	ApplyTransition(ctx context.Context, orderID string, itemIDs []string, t models.StatusTransition) (bool, error)
}

// CounterStore re-derives the catalog's maintained counters.
type CounterStore interface {
	ReconcileSoldCounters(ctx context.Context) ([]models.CounterCorrection, error)
	ReconcileCategoryCounts(ctx context.Context) ([]models.CounterCorrection, error)
}

// EventStore records consumed events for idempotent handling.
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// IdentityStore resolves review authors.
type IdentityStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishReviewChanged(ctx context.Context, event *models.ReviewChangedEvent) error
}

// Locker guards read-modify-write sequences on a single key.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// IdempotencyStore reserves client-supplied checkout keys while an order is being captured.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// StatsCache holds the item stats read model.
type StatsCache interface {
	GetItemStats(ctx context.Context, itemID string) (*models.ItemStats, error)
	SetItemStats(ctx context.Context, stats *models.ItemStats) error
}
