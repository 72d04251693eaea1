package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linemk/datashop/internal/domain/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStorage описывает методы для работы с заказами и их позициями.
type OrderStorage interface {
	// CreateOrderTx вставляет заказ и заполняет ID и временные метки.
	CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error
	// CreateOrderItemsTx вставляет позиции заказа и заполняет их ID.
	CreateOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64, items []models.OrderItem) error
	// GetOrderByID возвращает заказ с позициями и товарами одним запросом.
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// GetOrderForUpdateTx то же, что GetOrderByID, но блокирует строку заказа.
	GetOrderForUpdateTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	// ListOrdersByUserID возвращает заказы пользователя, новые первыми.
	ListOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error)
	// UpdateOrderStatus меняет статус и возвращает новое значение updated_at.
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (time.Time, error)
	// DeleteOrderTx удаляет заказ, позиции удаляются каскадно.
	DeleteOrderTx(ctx context.Context, tx *sql.Tx, id int64) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const orderWithItemsQuery = `
	SELECT o.id, o.reference, o.user_id, o.total_amount, o.status, COALESCE(o.shipping_address, ''),
	       o.created_at, o.updated_at,
	       oi.id, oi.product_id, oi.quantity, oi.price,
	       COALESCE(p.name, ''), COALESCE(p.category, '')
	FROM orders o
	LEFT JOIN order_items oi ON oi.order_id = o.id
	LEFT JOIN products p ON p.id = oi.product_id`

func (r *orderRepository) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	query := `INSERT INTO orders (reference, user_id, total_amount, status, shipping_address)
	          VALUES ($1, $2, $3, $4, NULLIF($5, '')) RETURNING id, created_at, updated_at`
	err := tx.QueryRowContext(ctx, query,
		order.Reference, order.UserID, order.TotalAmount, string(order.Status), order.ShippingAddress,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) CreateOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64, items []models.OrderItem) error {
	query := `INSERT INTO order_items (order_id, product_id, quantity, price)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	for i := range items {
		items[i].OrderID = orderID
		if err := tx.QueryRowContext(ctx, query,
			orderID, items[i].ProductID, items[i].Quantity, items[i].Price,
		).Scan(&items[i].ID); err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, orderWithItemsQuery+" WHERE o.id = $1 ORDER BY oi.id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return singleOrder(rows)
}

// GetOrderForUpdateTx блокирует только строку orders: FOR UPDATE нельзя применить к nullable-стороне LEFT JOIN.
func (r *orderRepository) GetOrderForUpdateTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	rows, err := tx.QueryContext(ctx, orderWithItemsQuery+" WHERE o.id = $1 ORDER BY oi.id FOR UPDATE OF o", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return singleOrder(rows)
}

func (r *orderRepository) ListOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		orderWithItemsQuery+" WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id DESC, oi.id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return scanOrders(rows)
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (time.Time, error) {
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at",
		string(status), id,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrOrderNotFound
		}
		return time.Time{}, fmt.Errorf("failed to update order status: %w", err)
	}
	return updatedAt, nil
}

func (r *orderRepository) DeleteOrderTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func singleOrder(rows *sql.Rows) (*models.Order, error) {
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders[0], nil
}

// scanOrders собирает плоские строки JOIN в агрегаты, сохраняя порядок выборки.
func scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()

	orders := make([]*models.Order, 0)
	byID := make(map[int64]*models.Order)
	for rows.Next() {
		var (
			o         models.Order
			status    string
			itemID    sql.NullInt64
			productID sql.NullInt64
			quantity  sql.NullInt64
			price     decimal.NullDecimal
			name      string
			category  string
		)
		if err := rows.Scan(
			&o.ID, &o.Reference, &o.UserID, &o.TotalAmount, &status, &o.ShippingAddress,
			&o.CreatedAt, &o.UpdatedAt,
			&itemID, &productID, &quantity, &price,
			&name, &category,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		order, ok := byID[o.ID]
		if !ok {
			o.Status = models.OrderStatus(status)
			o.Items = make([]models.OrderItem, 0)
			order = &o
			byID[o.ID] = order
			orders = append(orders, order)
		}
		if !itemID.Valid {
			continue
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:        itemID.Int64,
			OrderID:   order.ID,
			ProductID: productID.Int64,
			Quantity:  int(quantity.Int64),
			Price:     price.Decimal,
			Product: &models.ProductRef{
				ID:       productID.Int64,
				Name:     name,
				Category: category,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}
