package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/jmoiron/sqlx"
)

const itemColumns = `
	i.id, i.category_id, c.name AS category_name, i.item_name, i.short_description,
	i.long_description, i.features, i.notes, i.visibility, i.availability,
	i.avg_rating, i.total_sold, i.created_at, i.updated_at`

// CreateCategory inserts a category
func (s *Store) CreateCategory(ctx context.Context, category *models.Category) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO categories (id, name, items_count, created_at, updated_at)
		VALUES (:id, :name, :items_count, :created_at, :updated_at)`, category)
	return mapError("store.CreateCategory", err)
}

// GetCategory retrieves a category by ID
func (s *Store) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	err := s.db.GetContext(ctx, &category, "SELECT * FROM categories WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ListCategories retrieves a page of categories, optionally filtered by name
func (s *Store) ListCategories(ctx context.Context, q models.ListQuery) ([]models.Category, int, error) {
	where, args := "", []interface{}{}
	if q.Search != "" {
		where = "WHERE name ILIKE $1"
		args = append(args, "%"+q.Search+"%")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM categories "+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT * FROM categories %s ORDER BY name LIMIT $%d OFFSET $%d", where, len(args)+1, len(args)+2)
	var categories []models.Category
	if err := s.db.SelectContext(ctx, &categories, query, append(args, q.Limit, q.Offset())...); err != nil {
		return nil, 0, err
	}
	return categories, total, nil
}

// IncrementCategoryCount moves a category's items_count by delta
func (s *Store) IncrementCategoryCount(ctx context.Context, categoryID string, delta int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE categories SET items_count = GREATEST(items_count + $1, 0), updated_at = NOW() WHERE id = $2",
		delta, categoryID)
	return err
}

// GetItem retrieves an item with its packages and reviews
func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	err := s.db.GetContext(ctx, &item,
		"SELECT "+itemColumns+" FROM items i JOIN categories c ON c.id = i.category_id WHERE i.id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	items := []models.Item{item}
	if err := s.loadChildren(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// GetPackage retrieves one package of an item
func (s *Store) GetPackage(ctx context.Context, itemID, packageID string) (*models.Package, error) {
	var pkg models.Package
	err := s.db.GetContext(ctx, &pkg,
		"SELECT * FROM packages WHERE item_id = $1 AND id = $2", itemID, packageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// IncrementSold moves an item's total_sold by delta, never below zero
func (s *Store) IncrementSold(ctx context.Context, itemID string, delta int) error {
	return incrementSold(ctx, s.db, itemID, delta)
}

func incrementSold(ctx context.Context, db sqlx.ExecerContext, itemID string, delta int) error {
	_, err := db.ExecContext(ctx,
		"UPDATE items SET total_sold = GREATEST(total_sold + $1, 0), updated_at = NOW() WHERE id = $2",
		delta, itemID)
	return err
}

// ItemNameExists reports whether another item already uses name, ignoring case
func (s *Store) ItemNameExists(ctx context.Context, name, excludeID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM items WHERE LOWER(item_name) = LOWER($1) AND id <> $2)", name, excludeID)
	return exists, err
}

// CreateItem inserts an item and its packages
func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO items (id, category_id, item_name, short_description, long_description,
				features, notes, visibility, availability, avg_rating, total_sold, created_at, updated_at)
			VALUES (:id, :category_id, :item_name, :short_description, :long_description,
				:features, :notes, :visibility, :availability, :avg_rating, :total_sold, :created_at, :updated_at)`, item)
		if err != nil {
			return err
		}
		return insertPackages(ctx, tx, item.Packages)
	})
	return mapError("store.CreateItem", err)
}

// UpdateItem updates an item's fields and replaces its packages. Counters are not written.
func (s *Store) UpdateItem(ctx context.Context, item *models.Item) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			UPDATE items SET category_id = :category_id, item_name = :item_name,
				short_description = :short_description, long_description = :long_description,
				features = :features, notes = :notes, visibility = :visibility,
				availability = :availability, updated_at = :updated_at
			WHERE id = :id`, item)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM packages WHERE item_id = $1", item.ID); err != nil {
			return err
		}
		return insertPackages(ctx, tx, item.Packages)
	})
	return mapError("store.UpdateItem", err)
}

// DeleteItem deletes an item; packages and reviews cascade
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = $1", id)
	return err
}

// ListItems retrieves a page of items matching filter
func (s *Store) ListItems(ctx context.Context, filter service.ItemFilter) ([]models.Item, int, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Search != "" {
		add("i.item_name ILIKE $%d", "%"+filter.Search+"%")
	}
	if filter.CategoryID != "" {
		add("i.category_id = $%d", filter.CategoryID)
	}
	if filter.Visibility != "" {
		add("i.visibility = $%d", filter.Visibility)
	}
	if filter.Availability != "" {
		add("i.availability = $%d", filter.Availability)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM items i "+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		"SELECT %s FROM items i JOIN categories c ON c.id = i.category_id %s ORDER BY i.created_at DESC LIMIT $%d OFFSET $%d",
		itemColumns, where, len(args)+1, len(args)+2)
	var items []models.Item
	if err := s.db.SelectContext(ctx, &items, query, append(args, filter.Limit, filter.Offset())...); err != nil {
		return nil, 0, err
	}
	if err := s.loadChildren(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SaveReviews replaces an item's reviews and stores its avg_rating in one transaction
func (s *Store) SaveReviews(ctx context.Context, item *models.Item) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM reviews WHERE item_id = $1", item.ID); err != nil {
			return err
		}
		for i := range item.Reviews {
			item.Reviews[i].ItemID = item.ID
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO reviews (id, item_id, user_id, user_name, rating, message, status, reply, created_at)
				VALUES (:id, :item_id, :user_id, :user_name, :rating, :message, :status, :reply, :created_at)`,
				item.Reviews[i])
			if err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE items SET avg_rating = $1, updated_at = NOW() WHERE id = $2", item.AvgRating, item.ID)
		return err
	})
	return mapError("store.SaveReviews", err)
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT id, full_name, email FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func insertPackages(ctx context.Context, tx *sqlx.Tx, packages []models.Package) error {
	for i := range packages {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO packages (id, item_id, position, package_name, quantity, price, currency,
				expired, expired_type, discount, features, is_active, is_recommended, coupon_code)
			VALUES (:id, :item_id, :position, :package_name, :quantity, :price, :currency,
				:expired, :expired_type, :discount, :features, :is_active, :is_recommended, :coupon_code)`,
			packages[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// loadChildren fills Packages and Reviews of items.
func (s *Store) loadChildren(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
		items[i].Packages = []models.Package{}
		items[i].Reviews = []models.Review{}
	}

	query, args, err := sqlx.In("SELECT * FROM packages WHERE item_id IN (?) ORDER BY item_id, position", ids)
	if err != nil {
		return err
	}
	var packages []models.Package
	if err := s.db.SelectContext(ctx, &packages, s.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, p := range packages {
		idx := index[p.ItemID]
		items[idx].Packages = append(items[idx].Packages, p)
	}

	query, args, err = sqlx.In("SELECT * FROM reviews WHERE item_id IN (?) ORDER BY created_at", ids)
	if err != nil {
		return err
	}
	var reviews []models.Review
	if err := s.db.SelectContext(ctx, &reviews, s.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, r := range reviews {
		idx := index[r.ItemID]
		items[idx].Reviews = append(items[idx].Reviews, r)
	}
	return nil
}
