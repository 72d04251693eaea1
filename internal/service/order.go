package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linemk/datashop/internal/domain/models"
	"github.com/linemk/datashop/internal/lib/metrics"
	"github.com/linemk/datashop/internal/storage"
)

const (
	flowBulk     = "bulk"
	flowQuickBuy = "quick_buy"

	maxShippingAddressLen = 255
)

// LineItem товар и количество в запросе на покупку.
type LineItem struct {
	ProductID int64
	Quantity  int
}

type PlaceOrderInput struct {
	Items           []LineItem
	ShippingAddress string
}

// OrderService определяет операции над заказами. userID всегда берётся из проверенного токена.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (*models.Order, error)
	QuickBuy(ctx context.Context, userID, productID int64, quantity int) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]*models.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, userID, orderID int64, status models.OrderStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, userID, orderID int64) error
}

type orderService struct {
	log          *slog.Logger
	db           *sql.DB
	productRepo  storage.ProductStorage
	orderRepo    storage.OrderStorage
	interactions InteractionLogger
}

func NewOrderService(log *slog.Logger, db *sql.DB, productRepo storage.ProductStorage, orderRepo storage.OrderStorage, interactions InteractionLogger) OrderService {
	return &orderService{
		log:          log,
		db:           db,
		productRepo:  productRepo,
		orderRepo:    orderRepo,
		interactions: interactions,
	}
}

// PlaceOrder создаёт заказ из нескольких позиций в статусе pending.
// Проверка остатков, списание и запись заказа выполняются в одной транзакции.
func (s *orderService) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (*models.Order, error) {
	const op = "service.OrderService.PlaceOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int("items", len(in.Items)))

	if err := validatePlaceOrder(in); err != nil {
		metrics.OrdersPlaced.WithLabelValues(flowBulk, "invalid").Inc()
		logger.Warn("invalid order request", slog.Any("error", err))
		return nil, err
	}

	order, err := s.createOrder(ctx, logger, flowBulk, userID, in.Items, models.OrderStatusPending, in.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// QuickBuy оформляет покупку одного товара «в один клик»: заказ сразу получает статус completed,
// после коммита в журнал пишется действие purchase.
func (s *orderService) QuickBuy(ctx context.Context, userID, productID int64, quantity int) (*models.Order, error) {
	const op = "service.OrderService.QuickBuy"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("productID", productID))

	verr := &ValidationError{}
	if productID <= 0 {
		verr.Add("product_id", "must be a positive integer")
	}
	if quantity < 1 {
		verr.Add("quantity", "must be at least 1")
	}
	if len(verr.Fields) > 0 {
		metrics.OrdersPlaced.WithLabelValues(flowQuickBuy, "invalid").Inc()
		logger.Warn("invalid quick buy request", slog.Any("error", verr))
		return nil, verr
	}

	lines := []LineItem{{ProductID: productID, Quantity: quantity}}
	order, err := s.createOrder(ctx, logger, flowQuickBuy, userID, lines, models.OrderStatusCompleted, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// журнал не входит в транзакцию: его ошибка не отменяет оформленный заказ
	if err := s.interactions.Record(ctx, userID, productID, models.InteractionPurchase); err != nil {
		logger.Warn("failed to record purchase interaction", slog.Any("error", err))
	}
	return order, nil
}

// createOrder выполняет шаги оформления заказа атомарно. При любой ошибке транзакция откатывается.
func (s *orderService) createOrder(ctx context.Context, logger *slog.Logger, flow string, userID int64, lines []LineItem, status models.OrderStatus, address string) (*models.Order, error) {
	logger.Info("starting order transaction")

	// блокируем строки товаров в порядке возрастания id, чтобы параллельные заказы не взаимоблокировались.
	// Позиции заказа при этом остаются в порядке запроса.
	lockOrder := make([]int, len(lines))
	for i := range lockOrder {
		lockOrder[i] = i
	}
	sort.SliceStable(lockOrder, func(i, j int) bool { return lines[lockOrder[i]].ProductID < lines[lockOrder[j]].ProductID })

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.OrdersPlaced.WithLabelValues(flow, "failed").Inc()
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrTransactionFailure, err)
	}

	fail := func(msg string, err error) error {
		rollback(logger, tx)
		metrics.OrdersPlaced.WithLabelValues(flow, "failed").Inc()
		logger.Error(msg, slog.Any("error", err))
		return fmt.Errorf("%s: %w: %w", msg, ErrTransactionFailure, err)
	}
	reject := func(productID int64, name string) error {
		rollback(logger, tx)
		metrics.OrdersPlaced.WithLabelValues(flow, "rejected").Inc()
		metrics.StockRejections.WithLabelValues(flow).Inc()
		logger.Warn("product out of stock or not found", slog.Int64("productID", productID))
		return &StockError{ProductID: productID, ProductName: name}
	}

	total := decimal.Zero
	items := make([]models.OrderItem, len(lines))
	for _, idx := range lockOrder {
		line := lines[idx]
		product, err := s.productRepo.LockProductByIDTx(ctx, tx, line.ProductID)
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				return nil, reject(line.ProductID, "")
			}
			return nil, fail("failed to lock product", err)
		}

		if product.Stock < line.Quantity {
			logger.Debug("insufficient stock", slog.Int("stock", product.Stock), slog.Int("requested", line.Quantity))
			return nil, reject(product.ID, product.Name)
		}

		if err := s.productRepo.DecrementStockTx(ctx, tx, product.ID, line.Quantity); err != nil {
			if errors.Is(err, storage.ErrInsufficientStock) {
				return nil, reject(product.ID, product.Name)
			}
			return nil, fail("failed to decrement stock", err)
		}

		item := models.OrderItem{
			ProductID: product.ID,
			Quantity:  line.Quantity,
			Price:     product.Price, // снимок цены на момент покупки
			Product: &models.ProductRef{
				ID:       product.ID,
				Name:     product.Name,
				Category: product.Category,
			},
		}
		total = total.Add(item.Subtotal())
		items[idx] = item
	}

	order := &models.Order{
		Reference:       uuid.NewString(),
		UserID:          userID,
		TotalAmount:     total,
		Status:          status,
		ShippingAddress: address,
	}
	if err := s.orderRepo.CreateOrderTx(ctx, tx, order); err != nil {
		return nil, fail("failed to create order", err)
	}
	if err := s.orderRepo.CreateOrderItemsTx(ctx, tx, order.ID, items); err != nil {
		return nil, fail("failed to create order items", err)
	}
	order.Items = items

	if err := tx.Commit(); err != nil {
		metrics.OrdersPlaced.WithLabelValues(flow, "failed").Inc()
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("failed to commit transaction: %w: %w", ErrTransactionFailure, err)
	}

	metrics.OrdersPlaced.WithLabelValues(flow, "success").Inc()
	logger.Info("order placed successfully", slog.Int64("orderID", order.ID), slog.String("total", total.StringFixed(2)))
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID int64) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	orders, err := s.orderRepo.ListOrdersByUserID(ctx, userID)
	if err != nil {
		logger.Error("failed to list orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list orders: %w", op, err)
	}
	return orders, nil
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("orderID", orderID))

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}
	if order.UserID != userID {
		logger.Warn("order belongs to another user")
		return nil, ErrUnauthorized
	}
	return order, nil
}

// UpdateStatus меняет статус заказа владельцем. Переходы между статусами не ограничены.
func (s *orderService) UpdateStatus(ctx context.Context, userID, orderID int64, status models.OrderStatus) (*models.Order, error) {
	const op = "service.OrderService.UpdateStatus"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("orderID", orderID), slog.String("status", string(status)))

	// сначала владелец, потом значение: чужой или несуществующий заказ не должен отвечать 422
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if !status.Valid() {
		return nil, NewValidationError("status", "must be one of pending, processing, shipped, completed, cancelled")
	}

	updatedAt, err := s.orderRepo.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update status: %w: %w", op, ErrTransactionFailure, err)
	}

	logger.Info("order status updated", slog.String("from", string(order.Status)))
	order.Status = status
	order.UpdatedAt = updatedAt
	return order, nil
}

// CancelOrder удаляет заказ. Для pending/processing товар сначала возвращается на склад;
// возврат и удаление выполняются в одной транзакции.
func (s *orderService) CancelOrder(ctx context.Context, userID, orderID int64) error {
	const op = "service.OrderService.CancelOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("orderID", orderID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w: %w", op, ErrTransactionFailure, err)
	}

	order, err := s.orderRepo.GetOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		rollback(logger, tx)
		if errors.Is(err, storage.ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get order: %w: %w", op, ErrTransactionFailure, err)
	}
	if order.UserID != userID {
		rollback(logger, tx)
		logger.Warn("order belongs to another user")
		return ErrUnauthorized
	}

	if order.Status.Restockable() {
		for _, item := range order.Items {
			err := s.productRepo.IncrementStockTx(ctx, tx, item.ProductID, item.Quantity)
			if errors.Is(err, storage.ErrProductNotFound) {
				logger.Warn("product to restock no longer exists", slog.Int64("productID", item.ProductID))
				continue
			}
			if err != nil {
				rollback(logger, tx)
				logger.Error("failed to restock product", slog.Any("error", err))
				return fmt.Errorf("%s: failed to restock product: %w: %w", op, ErrTransactionFailure, err)
			}
		}
	}

	if err := s.orderRepo.DeleteOrderTx(ctx, tx, orderID); err != nil {
		rollback(logger, tx)
		logger.Error("failed to delete order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete order: %w: %w", op, ErrTransactionFailure, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w: %w", op, ErrTransactionFailure, err)
	}

	logger.Info("order cancelled", slog.Bool("restocked", order.Status.Restockable()))
	return nil
}

func validatePlaceOrder(in PlaceOrderInput) error {
	verr := &ValidationError{}
	if len(in.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, item := range in.Items {
		if item.ProductID <= 0 {
			verr.Add(fmt.Sprintf("items.%d.product_id", i), "must be a positive integer")
		}
		if item.Quantity < 1 {
			verr.Add(fmt.Sprintf("items.%d.quantity", i), "must be at least 1")
		}
	}
	if utf8.RuneCountInString(in.ShippingAddress) > maxShippingAddressLen {
		verr.Add("shipping_address", "must be at most 255 characters")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func rollback(logger *slog.Logger, tx *sql.Tx) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
