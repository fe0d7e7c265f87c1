package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"marketplace-service/internal/models"

	"github.com/shopspring/decimal"
)

var errStoreDown = errors.New("store unavailable")

type memCatalog struct {
	mu          sync.Mutex
	items       map[string]*models.Item
	categories  map[string]*models.Category
	failSoldFor map[string]bool
	soldCalls   int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		items:       map[string]*models.Item{},
		categories:  map[string]*models.Category{},
		failSoldFor: map[string]bool{},
	}
}

func cloneItem(item *models.Item) *models.Item {
	cp := *item
	cp.Packages = append([]models.Package(nil), item.Packages...)
	cp.Reviews = append([]models.Review(nil), item.Reviews...)
	return &cp
}

func (m *memCatalog) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return cloneItem(item), nil
}

func (m *memCatalog) GetPackage(ctx context.Context, itemID, packageID string) (*models.Package, error) {
	item, _ := m.GetItem(ctx, itemID)
	if item == nil {
		return nil, nil
	}
	return item.FindPackage(packageID), nil
}

func (m *memCatalog) IncrementSold(ctx context.Context, itemID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.soldCalls++
	if m.failSoldFor[itemID] {
		return errStoreDown
	}
	if item, ok := m.items[itemID]; ok {
		item.TotalSold += delta
		if item.TotalSold < 0 {
			item.TotalSold = 0
		}
	}
	return nil
}

func (m *memCatalog) IncrementCategoryCount(ctx context.Context, categoryID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.categories[categoryID]; ok {
		c.ItemsCount += delta
	}
	return nil
}

func (m *memCatalog) CreateCategory(ctx context.Context, category *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *category
	m.categories[category.ID] = &cp
	return nil
}

func (m *memCatalog) GetCategory(ctx context.Context, categoryID string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[categoryID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCatalog) ListCategories(ctx context.Context, q models.ListQuery) ([]models.Category, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memCatalog) ItemNameExists(ctx context.Context, name, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, item := range m.items {
		if id != excludeID && strings.EqualFold(item.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCatalog) CreateItem(ctx context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = cloneItem(item)
	return nil
}

func (m *memCatalog) UpdateItem(ctx context.Context, item *models.Item) error {
	return m.CreateItem(ctx, item)
}

func (m *memCatalog) DeleteItem(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemID)
	return nil
}

func (m *memCatalog) ListItems(ctx context.Context, filter ItemFilter) ([]models.Item, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Item{}
	for _, item := range m.items {
		if filter.CategoryID != "" && item.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, *cloneItem(item))
	}
	return out, len(out), nil
}

func (m *memCatalog) SaveReviews(ctx context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[item.ID]
	if !ok {
		return errStoreDown
	}
	stored.Reviews = append([]models.Review(nil), item.Reviews...)
	stored.AvgRating = item.AvgRating
	return nil
}

func (m *memCatalog) sold(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[itemID].TotalSold
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[string]*models.Order{}}
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Lines = append([]models.OrderLine(nil), o.Lines...)
	return &cp
}

func (m *memOrders) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *memOrders) GetOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (m *memOrders) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, nil
}

func (m *memOrders) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memOrders) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, len(out), nil
}

// txOrders applies status and counters together, like the Postgres store.
type txOrders struct {
	*memOrders
	catalog *memCatalog
	calls   int
}

func (t *txOrders) ApplyTransition(ctx context.Context, orderID string, itemIDs []string, tr models.StatusTransition) (bool, error) {
	t.calls++
	ok, err := t.UpdateOrderStatus(ctx, orderID, tr.From, tr.To)
	if err != nil || !ok {
		return ok, err
	}
	for _, id := range itemIDs {
		if err := t.catalog.IncrementSold(ctx, id, tr.SoldDelta); err != nil {
			return false, err
		}
	}
	return true, nil
}

type memUsers map[string]*models.User

func (m memUsers) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return m[userID], nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]string{}}
}

func (l *memLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := models.NewID()
	l.held[key] = token
	return token, true, nil
}

func (l *memLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: map[string]bool{}}
}

func (m *memIdempotency) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memIdempotency) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type memPublisher struct {
	mu            sync.Mutex
	created       []*models.OrderCreatedEvent
	statusChanged []*models.OrderStatusChangedEvent
	reviews       []*models.ReviewChangedEvent
}

func (p *memPublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *memPublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusChanged = append(p.statusChanged, e)
	return nil
}

func (p *memPublisher) PublishReviewChanged(ctx context.Context, e *models.ReviewChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reviews = append(p.reviews, e)
	return nil
}

type memStats struct {
	mu    sync.Mutex
	stats map[string]*models.ItemStats
	sets  int
}

func newMemStats() *memStats {
	return &memStats{stats: map[string]*models.ItemStats{}}
}

func (m *memStats) GetItemStats(ctx context.Context, itemID string) (*models.ItemStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats[itemID], nil
}

func (m *memStats) SetItemStats(ctx context.Context, stats *models.ItemStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.stats[stats.ItemID] = stats
	return nil
}

type memEvents struct {
	mu        sync.Mutex
	processed map[string]string
}

func newMemEvents() *memEvents {
	return &memEvents{processed: map[string]string{}}
}

func (m *memEvents) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *memEvents) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[eventID] = eventType
	return nil
}

type memCounters struct {
	sold   []models.CounterCorrection
	counts []models.CounterCorrection
	err    error
}

func (m *memCounters) ReconcileSoldCounters(ctx context.Context) ([]models.CounterCorrection, error) {
	return m.sold, m.err
}

func (m *memCounters) ReconcileCategoryCounts(ctx context.Context) ([]models.CounterCorrection, error) {
	return m.counts, nil
}

// seedItem stores an item with one package per price, each at the given discount.
func seedItem(catalog *memCatalog, name string, discount string, prices ...string) *models.Item {
	item := &models.Item{
		ID:         models.NewID(),
		CategoryID: models.NewID(),
		Name:       name,
	}
	for i, p := range prices {
		item.Packages = append(item.Packages, models.Package{
			ID:       models.NewID(),
			ItemID:   item.ID,
			Position: i,
			Name:     name + " tier",
			Quantity: 1,
			Price:    decimal.RequireFromString(p),
			Currency: models.CurrencyBDT,
			Discount: decimal.RequireFromString(discount),
			IsActive: true,
		})
	}
	_ = catalog.CreateItem(context.Background(), item)
	return item
}

func amount(f float64) *float64 { return &f }
