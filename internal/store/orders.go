package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/jmoiron/sqlx"
)

// CreateOrder inserts an order and its lines in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now()
		order.CreatedAt, order.UpdatedAt = now, now
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO orders (id, user_id, is_guest, subtotal, total_discount, tax, shipping_cost,
				grand_total, currency, payment_method, status, billing_address, shipping_address,
				coupon_code, notes, idempotency_key, created_at, updated_at)
			VALUES (:id, :user_id, :is_guest, :subtotal, :total_discount, :tax, :shipping_cost,
				:grand_total, :currency, :payment_method, :status, :billing_address, :shipping_address,
				:coupon_code, :notes, :idempotency_key, :created_at, :updated_at)`, order)
		if err != nil {
			return err
		}

		for i := range order.Lines {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO order_lines (id, order_id, position, item_id, package_id, item_name, package_name,
					price, currency, discount, expired, expired_type, discount_amount, sub_total, fee, line_total)
				VALUES (:id, :order_id, :position, :item_id, :package_id, :item_name, :package_name,
					:price, :currency, :discount, :expired, :expired_type, :discount_amount, :sub_total, :fee, :line_total)`,
				order.Lines[i])
			if err != nil {
				return err
			}
		}
		return nil
	})
	return mapError("store.CreateOrder", err)
}

// GetOrderByID retrieves an order with its lines
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT * FROM orders WHERE id = $1", id)
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT * FROM orders WHERE idempotency_key = $1", key)
}

func (s *Store) getOrder(ctx context.Context, query string, arg string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	orders := []models.Order{order}
	if err := s.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// UpdateOrderStatus moves an order from -> to; false means the stored status was not from
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error) {
	return updateOrderStatus(ctx, s.db, orderID, from, to)
}

func updateOrderStatus(ctx context.Context, db sqlx.ExecerContext, orderID string, from, to models.OrderStatus) (bool, error) {
	res, err := db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ApplyTransition writes the status change and every line's total_sold delta atomically
func (s *Store) ApplyTransition(ctx context.Context, orderID string, itemIDs []string, t models.StatusTransition) (bool, error) {
	var applied bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := updateOrderStatus(ctx, tx, orderID, t.From, t.To)
		if err != nil || !ok {
			return err
		}
		if t.SoldDelta != 0 {
			perItem := make(map[string]int, len(itemIDs))
			order := make([]string, 0, len(itemIDs))
			for _, id := range itemIDs {
				if perItem[id] == 0 {
					order = append(order, id)
				}
				perItem[id]++
			}
			// same lock order as reconcileLocked
			sort.Strings(order)
			for _, id := range order {
				if err := incrementSold(ctx, tx, id, t.SoldDelta*perItem[id]); err != nil {
					return err
				}
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply transition: %w", err)
	}
	return applied, nil
}

// ListOrders retrieves a page of orders matching filter
func (s *Store) ListOrders(ctx context.Context, filter service.OrderFilter) ([]models.Order, int, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Search != "" {
		add("billing_address->>'name' ILIKE $%d", "%"+filter.Search+"%")
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders "+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT * FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders, query, append(args, filter.Limit, filter.Offset())...); err != nil {
		return nil, 0, err
	}
	if err := s.loadLines(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Store) loadLines(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
	}

	query, args, err := sqlx.In("SELECT * FROM order_lines WHERE order_id IN (?) ORDER BY order_id, position", ids)
	if err != nil {
		return err
	}
	var lines []models.OrderLine
	if err := s.db.SelectContext(ctx, &lines, s.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, l := range lines {
		idx := index[l.OrderID]
		orders[idx].Lines = append(orders[idx].Lines, l)
	}
	return nil
}

// ReconcileSoldCounters sets every item's total_sold to the number of its
// lines in orders that are currently completed
func (s *Store) ReconcileSoldCounters(ctx context.Context) ([]models.CounterCorrection, error) {
	corrections, err := s.reconcileLocked(ctx, "items", `
		WITH derived AS (
			SELECT i.id, i.total_sold AS old_value, COUNT(o.id)::int AS new_value
			FROM items i
			LEFT JOIN order_lines l ON l.item_id = i.id
			LEFT JOIN orders o ON o.id = l.order_id AND o.status = $1
			GROUP BY i.id, i.total_sold
		)
		UPDATE items SET total_sold = derived.new_value, updated_at = NOW()
		FROM derived
		WHERE items.id = derived.id AND items.total_sold <> derived.new_value
		RETURNING $2::text AS counter, items.id, derived.old_value, derived.new_value`,
		models.OrderStatusCompleted, models.CounterTotalSold)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile total_sold: %w", err)
	}
	return corrections, nil
}

// ReconcileCategoryCounts sets every category's items_count to its number of items
func (s *Store) ReconcileCategoryCounts(ctx context.Context) ([]models.CounterCorrection, error) {
	corrections, err := s.reconcileLocked(ctx, "categories", `
		WITH derived AS (
			SELECT c.id, c.items_count AS old_value, COUNT(i.id)::int AS new_value
			FROM categories c
			LEFT JOIN items i ON i.category_id = c.id
			GROUP BY c.id, c.items_count
		)
		UPDATE categories SET items_count = derived.new_value, updated_at = NOW()
		FROM derived
		WHERE categories.id = derived.id AND categories.items_count <> derived.new_value
		RETURNING $1::text AS counter, categories.id, derived.old_value, derived.new_value`,
		models.CounterItemsCount)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile items_count: %w", err)
	}
	return corrections, nil
}

// reconcileLocked locks every row of table in id order, then runs query in
// the same transaction. Writers that already hold a counter row finish first,
// and the query's fresh snapshot sees their commit; writers that arrive later
// wait and apply their delta on top of the reconciled value.
func (s *Store) reconcileLocked(ctx context.Context, table, query string, args ...interface{}) ([]models.CounterCorrection, error) {
	var corrections []models.CounterCorrection
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT id FROM "+table+" ORDER BY id FOR UPDATE"); err != nil {
			return fmt.Errorf("failed to lock %s: %w", table, err)
		}
		return tx.SelectContext(ctx, &corrections, query, args...)
	})
	return corrections, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
