package api

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
)

// memStore is an in-memory catalog, order and identity store.
type memStore struct {
	mu         sync.Mutex
	categories map[string]*models.Category
	items      map[string]*models.Item
	orders     map[string]*models.Order
	users      map[string]*models.User
}

func newMemStore() *memStore {
	return &memStore{
		categories: map[string]*models.Category{},
		items:      map[string]*models.Item{},
		orders:     map[string]*models.Order{},
		users:      map[string]*models.User{},
	}
}

func copyItem(item *models.Item) *models.Item {
	cp := *item
	cp.Packages = append([]models.Package(nil), item.Packages...)
	cp.Reviews = append([]models.Review(nil), item.Reviews...)
	return &cp
}

func (m *memStore) GetItem(_ context.Context, id string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		return copyItem(item), nil
	}
	return nil, nil
}

func (m *memStore) GetPackage(ctx context.Context, itemID, packageID string) (*models.Package, error) {
	item, _ := m.GetItem(ctx, itemID)
	if item == nil {
		return nil, nil
	}
	return item.FindPackage(packageID), nil
}

func (m *memStore) IncrementSold(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.TotalSold += delta
	}
	return nil
}

func (m *memStore) IncrementCategoryCount(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.categories[id]; ok {
		c.ItemsCount += delta
	}
	return nil
}

func (m *memStore) CreateCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memStore) GetCategory(_ context.Context, id string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.categories[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) ListCategories(_ context.Context, q models.ListQuery) ([]models.Category, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Category
	for _, c := range m.categories {
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	page := models.Paginate(all, q)
	return page.Payload, len(all), nil
}

func (m *memStore) ItemNameExists(_ context.Context, name, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ID != excludeID && strings.EqualFold(item.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateItem(_ context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = copyItem(item)
	return nil
}

func (m *memStore) UpdateItem(ctx context.Context, item *models.Item) error {
	return m.CreateItem(ctx, item)
}

func (m *memStore) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memStore) ListItems(_ context.Context, filter service.ItemFilter) ([]models.Item, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Item
	for _, item := range m.items {
		if filter.Search != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(filter.Search)) {
			continue
		}
		all = append(all, *copyItem(item))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	page := models.Paginate(all, filter.ListQuery)
	return page.Payload, len(all), nil
}

func (m *memStore) SaveReviews(_ context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[item.ID]
	if !ok {
		return nil
	}
	stored.Reviews = append([]models.Review(nil), item.Reviews...)
	stored.AvgRating = item.AvgRating
	return nil
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, id string, from, to models.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memStore) ListOrders(_ context.Context, filter service.OrderFilter) ([]models.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Order
	for _, o := range m.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		all = append(all, *o)
	}
	page := models.Paginate(all, filter.ListQuery)
	return page.Payload, len(all), nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) ReconcileSoldCounters(context.Context) ([]models.CounterCorrection, error) {
	return nil, nil
}

func (m *memStore) ReconcileCategoryCounts(context.Context) ([]models.CounterCorrection, error) {
	return []models.CounterCorrection{{Counter: models.CounterItemsCount, ID: "c1", Was: 3, Now: 2}}, nil
}

type memKeys struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (k *memKeys) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	ok, err := k.ClaimIdempotencyKey(context.Background(), key, 0)
	return key, ok, err
}

func (k *memKeys) ReleaseLock(ctx context.Context, key, _ string) error {
	return k.ReleaseIdempotencyKey(ctx, key)
}

func (k *memKeys) ClaimIdempotencyKey(_ context.Context, key string, _ time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.keys[key] {
		return false, nil
	}
	k.keys[key] = true
	return true, nil
}

func (k *memKeys) ReleaseIdempotencyKey(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error { return nil }
func (nopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}
func (nopPublisher) PublishReviewChanged(context.Context, *models.ReviewChangedEvent) error {
	return nil
}

type memStats struct {
	mu    sync.Mutex
	stats map[string]*models.ItemStats
}

func (s *memStats) GetItemStats(_ context.Context, id string) (*models.ItemStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats[id], nil
}

func (s *memStats) SetItemStats(_ context.Context, stats *models.ItemStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stats.ItemID] = stats
	return nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
