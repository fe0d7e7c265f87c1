package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/util"
	"marketplace-service/internal/validation"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CategoryRequest creates a category.
type CategoryRequest struct {
	Name string `json:"categories" validate:"required,max=100"`
}

// PackageRequest is one pricing tier of an item payload.
type PackageRequest struct {
	ID            string            `json:"id" validate:"omitempty,objectid"`
	Name          string            `json:"package_name" validate:"required"`
	Features      []string          `json:"features"`
	Quantity      int               `json:"quantity" validate:"gt=0"`
	Price         *float64          `json:"price" validate:"required,gt=0"`
	Currency      models.Currency   `json:"currency" validate:"required,oneof=BDT USD"`
	Expired       int               `json:"expired" validate:"gte=0"`
	ExpiredType   models.ExpiryUnit `json:"expired_type" validate:"omitempty,oneof=Day Month Year"`
	Discount      float64           `json:"discount" validate:"gte=0,lte=100"`
	IsActive      *bool             `json:"isActive"`
	IsRecommended bool              `json:"isRecommended"`
	CouponCode    string            `json:"coupon_code" validate:"omitempty,coupon"`
}

// ItemRequest is the create/update payload of an item.
type ItemRequest struct {
	Name             string           `json:"item_name" validate:"required"`
	CategoryID       string           `json:"categories_id" validate:"required,objectid"`
	ShortDescription string           `json:"short_description" validate:"required,max=100"`
	LongDescription  string           `json:"long_description" validate:"required"`
	Features         []string         `json:"features"`
	Notes            string           `json:"notes"`
	Visibility       string           `json:"status" validate:"omitempty,oneof=show hide"`
	Availability     string           `json:"availability" validate:"omitempty,oneof=available unavailable"`
	Packages         []PackageRequest `json:"packages" validate:"required,min=1,dive"`
}

// Quote is the pricing preview of one package.
type Quote struct {
	ItemID      string            `json:"item_id"`
	PackageID   string            `json:"package_id"`
	PackageName string            `json:"package_name"`
	Price       decimal.Decimal   `json:"price"`
	Currency    models.Currency   `json:"currency"`
	Discount    decimal.Decimal   `json:"discount"`
	Pricing     pricing.Breakdown `json:"pricing"`
}

// CatalogService manages categories, items and their derived stats
type CatalogService struct {
	catalog   CatalogStore
	stats     StatsCache
	validator *validation.Validator
	feeRate   decimal.Decimal
	now       func() time.Time
	logger    *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(catalog CatalogStore, stats StatsCache, v *validation.Validator, feeRatePercent decimal.Decimal) *CatalogService {
	return &CatalogService{
		catalog:   catalog,
		stats:     stats,
		validator: v,
		feeRate:   feeRatePercent,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// CreateCategory creates a category with a zero item count
func (s *CatalogService) CreateCategory(ctx context.Context, req *CategoryRequest) (*models.Category, error) {
	const op = "CatalogService.CreateCategory"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if errs := s.validator.Struct(req); len(errs) > 0 {
		return nil, invalidInput(op, "invalid category", errs)
	}

	now := s.now()
	category := &models.Category{
		ID:        models.NewID(),
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.catalog.CreateCategory(ctx, category); err != nil {
		return nil, err
	}

	s.logger.Info("Category created", zap.String("category_id", category.ID))
	return category, nil
}

// GetCategory retrieves a category by ID
func (s *CatalogService) GetCategory(ctx context.Context, categoryID string) (*models.Category, error) {
	const op = "CatalogService.GetCategory"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if !models.IsValidID(categoryID) {
		return nil, apperr.Validation(apperr.ReasonInvalidID, op, "invalid category id", "id")
	}
	category, err := s.catalog.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	if category == nil {
		return nil, apperr.NotFound(apperr.ReasonCategoryNotFound, op, "category not found")
	}
	return category, nil
}

// ListCategories returns a page of categories
func (s *CatalogService) ListCategories(ctx context.Context, q models.ListQuery) (models.Page[models.Category], error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListCategories")
	defer span.End()

	q = q.Normalize()
	categories, total, err := s.catalog.ListCategories(ctx, q)
	if err != nil {
		return models.Page[models.Category]{}, fmt.Errorf("failed to list categories: %w", err)
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return models.Page[models.Category]{Pagination: models.NewPagination(q, total), Payload: categories}, nil
}

// CreateItem validates and stores a new item, then counts it in its category
func (s *CatalogService) CreateItem(ctx context.Context, req *ItemRequest) (*models.Item, error) {
	const op = "CatalogService.CreateItem"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	category, err := s.checkItem(ctx, op, req, "")
	if err != nil {
		return nil, err
	}

	now := s.now()
	item := &models.Item{
		ID:        models.NewID(),
		CreatedAt: now,
	}
	s.applyItemRequest(item, req, category, now)

	if err := s.catalog.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	s.adjustCategoryCount(ctx, item.CategoryID, 1)

	s.logger.Info("Item created", zap.String("item_id", item.ID), zap.Int("packages", len(item.Packages)))
	return item, nil
}

// UpdateItem replaces an item's editable fields and packages. Reviews and
// counters are kept; a category change moves the item between category counts.
func (s *CatalogService) UpdateItem(ctx context.Context, itemID string, req *ItemRequest) (*models.Item, error) {
	const op = "CatalogService.UpdateItem"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	category, err := s.checkItem(ctx, op, req, itemID)
	if err != nil {
		return nil, err
	}

	oldCategoryID := item.CategoryID
	s.applyItemRequest(item, req, category, s.now())

	if err := s.catalog.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	if oldCategoryID != item.CategoryID {
		s.adjustCategoryCount(ctx, oldCategoryID, -1)
		s.adjustCategoryCount(ctx, item.CategoryID, 1)
	}

	s.logger.Info("Item updated", zap.String("item_id", item.ID))
	return item, nil
}

// DeleteItem removes an item and uncounts it from its category
func (s *CatalogService) DeleteItem(ctx context.Context, itemID string) error {
	const op = "CatalogService.DeleteItem"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.catalog.DeleteItem(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	s.adjustCategoryCount(ctx, item.CategoryID, -1)

	s.logger.Info("Item deleted", zap.String("item_id", item.ID))
	return nil
}

// GetItem retrieves an item with its packages and reviews
func (s *CatalogService) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	const op = "CatalogService.GetItem"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if !models.IsValidID(itemID) {
		return nil, apperr.Validation(apperr.ReasonInvalidID, op, "invalid item id", "id")
	}
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if item == nil {
		return nil, apperr.NotFound(apperr.ReasonItemNotFound, op, "item not found")
	}
	return item, nil
}

// ListItems returns a page of items
func (s *CatalogService) ListItems(ctx context.Context, filter ItemFilter) (models.Page[models.Item], error) {
	const op = "CatalogService.ListItems"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if filter.CategoryID != "" && !models.IsValidID(filter.CategoryID) {
		return models.Page[models.Item]{}, apperr.Validation(apperr.ReasonInvalidID, op, "invalid category id", "categories_id")
	}
	filter.ListQuery = filter.ListQuery.Normalize()
	items, total, err := s.catalog.ListItems(ctx, filter)
	if err != nil {
		return models.Page[models.Item]{}, fmt.Errorf("failed to list items: %w", err)
	}
	if items == nil {
		items = []models.Item{}
	}
	return models.Page[models.Item]{Pagination: models.NewPagination(filter.ListQuery, total), Payload: items}, nil
}

// QuotePackage prices one package as checkout would
func (s *CatalogService) QuotePackage(ctx context.Context, itemID, packageID string) (*Quote, error) {
	const op = "CatalogService.QuotePackage"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if !models.IsValidID(itemID) || !models.IsValidID(packageID) {
		return nil, apperr.Validation(apperr.ReasonInvalidID, op, "invalid item or package id")
	}
	pkg, err := s.catalog.GetPackage(ctx, itemID, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	if pkg == nil {
		if _, err := s.GetItem(ctx, itemID); err != nil {
			return nil, err
		}
		return nil, apperr.NotFound(apperr.ReasonPackageNotFound, op, "package not found")
	}

	return &Quote{
		ItemID:      itemID,
		PackageID:   pkg.ID,
		PackageName: pkg.Name,
		Price:       pkg.Price,
		Currency:    pkg.Currency,
		Discount:    pkg.Discount,
		Pricing:     pricing.LineTotal(pkg.Price, pkg.Discount, s.feeRate),
	}, nil
}

// ItemStats returns the cached stats of an item, refreshing the cache on a miss
func (s *CatalogService) ItemStats(ctx context.Context, itemID string) (*models.ItemStats, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ItemStats")
	defer span.End()

	if models.IsValidID(itemID) {
		cached, err := s.stats.GetItemStats(ctx, itemID)
		if err != nil {
			s.logger.Warn("Failed to read item stats cache", zap.String("item_id", itemID), zap.Error(err))
		}
		if cached != nil {
			return cached, nil
		}
	}
	return s.RefreshItemStats(ctx, itemID, "miss")
}

// RefreshItemStats recomputes an item's stats from the store and caches them
func (s *CatalogService) RefreshItemStats(ctx context.Context, itemID, trigger string) (*models.ItemStats, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	stats := BuildItemStats(item, s.now())
	if err := s.stats.SetItemStats(ctx, stats); err != nil {
		s.logger.Warn("Failed to cache item stats", zap.String("item_id", itemID), zap.Error(err))
	} else {
		util.StatsCacheRefreshesTotal.WithLabelValues(trigger).Inc()
	}
	return stats, nil
}

// BuildItemStats derives the stats read model of item.
func BuildItemStats(item *models.Item, now time.Time) *models.ItemStats {
	approved := 0
	for _, r := range item.Reviews {
		if r.Status == models.ReviewApproved {
			approved++
		}
	}
	return &models.ItemStats{
		ItemID:        item.ID,
		AvgRating:     item.AvgRating,
		TotalSold:     item.TotalSold,
		ReviewCount:   len(item.Reviews),
		ApprovedCount: approved,
		RefreshedAt:   now,
	}
}

func (s *CatalogService) checkItem(ctx context.Context, op string, req *ItemRequest, excludeID string) (*models.Category, error) {
	if errs := s.validator.Struct(req); len(errs) > 0 {
		return nil, invalidInput(op, "invalid item", errs)
	}

	category, err := s.catalog.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	if category == nil {
		return nil, apperr.NotFound(apperr.ReasonCategoryNotFound, op, "category not found")
	}

	exists, err := s.catalog.ItemNameExists(ctx, strings.TrimSpace(req.Name), excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to check item name: %w", err)
	}
	if exists {
		return nil, apperr.Conflict(apperr.ReasonDuplicateName, op,
			fmt.Sprintf("an item named %q already exists", req.Name))
	}
	return category, nil
}

// applyItemRequest copies req onto item. Package ids sent by the client are
// kept when they belong to the item; other packages get new ids.
func (s *CatalogService) applyItemRequest(item *models.Item, req *ItemRequest, category *models.Category, now time.Time) {
	item.CategoryID = category.ID
	item.CategoryName = category.Name
	item.Name = strings.TrimSpace(req.Name)
	item.ShortDescription = req.ShortDescription
	item.LongDescription = req.LongDescription
	item.Features = pq.StringArray(req.Features)
	item.Notes = req.Notes
	item.Visibility = defaultString(req.Visibility, models.VisibilityShow)
	item.Availability = defaultString(req.Availability, models.AvailabilityAvailable)
	item.UpdatedAt = now

	packages := make([]models.Package, 0, len(req.Packages))
	for i, p := range req.Packages {
		id := p.ID
		if id == "" || item.FindPackage(id) == nil {
			id = models.NewID()
		}
		active := true
		if p.IsActive != nil {
			active = *p.IsActive
		}
		packages = append(packages, models.Package{
			ID:            id,
			ItemID:        item.ID,
			Position:      i,
			Name:          strings.TrimSpace(p.Name),
			Quantity:      p.Quantity,
			Price:         decimal.NewFromFloat(*p.Price),
			Currency:      p.Currency,
			Expired:       p.Expired,
			ExpiredType:   p.ExpiredType,
			Discount:      decimal.NewFromFloat(p.Discount),
			Features:      pq.StringArray(p.Features),
			IsActive:      active,
			IsRecommended: p.IsRecommended,
			CouponCode:    p.CouponCode,
		})
	}
	item.Packages = packages
}

func (s *CatalogService) adjustCategoryCount(ctx context.Context, categoryID string, delta int) {
	if err := s.catalog.IncrementCategoryCount(ctx, categoryID, delta); err != nil {
		util.CatalogCounterInconsistencies.WithLabelValues(models.CounterItemsCount).Inc()
		s.logger.Error("Category item count inconsistent; reconciliation required",
			zap.String("category_id", categoryID),
			zap.Int("delta", delta),
			zap.Error(err))
	}
}

func invalidInput(op, message string, errs []validation.FieldError) error {
	details := make([]string, 0, len(errs))
	for _, fe := range errs {
		details = append(details, fe.String())
	}
	return apperr.Validation(apperr.ReasonInvalidInput, op, message, details...)
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
