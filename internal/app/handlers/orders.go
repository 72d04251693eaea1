package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/linemk/datashop/internal/domain/models"
	"github.com/linemk/datashop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/datashop/internal/service"
)

type OrderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

// CreateOrderRequest тело POST /api/orders
type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress string             `json:"shipping_address" validate:"max=255"`
}

// UpdateStatusRequest тело PATCH /api/orders/{id}. Значение статуса проверяет сервис после проверки владельца.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// currentUser достаёт userID, установленный JWT middleware
func currentUser(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int64, bool) {
	userID, ok := jwtmiddleware.FromContext(r.Context())
	if !ok {
		logger.Error("userID not found in context")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// CreateOrderHandler обрабатывает POST /api/orders
func CreateOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}

		var req CreateOrderRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		in := service.PlaceOrderInput{
			Items:           make([]service.LineItem, 0, len(req.Items)),
			ShippingAddress: req.ShippingAddress,
		}
		for _, item := range req.Items {
			in.Items = append(in.Items, service.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := orders.PlaceOrder(r.Context(), userID, in)
		if err != nil {
			writeServiceError(w, logger, err, msgOrderCreationFailed)
			return
		}

		w.Header().Set("Location", fmt.Sprintf("/api/orders/%d", order.ID))
		writeJSON(w, logger, http.StatusCreated, order)
	}
}

func ListOrdersHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}

		list, err := orders.ListOrders(r.Context(), userID)
		if err != nil {
			writeServiceError(w, logger, err, msgInternalError)
			return
		}
		writeJSON(w, logger, http.StatusOK, list)
	}
}

func GetOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}

		order, err := orders.GetOrder(r.Context(), userID, orderID)
		if err != nil {
			writeServiceError(w, logger, err, msgInternalError)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// UpdateOrderStatusHandler обрабатывает PATCH /api/orders/{id}
func UpdateOrderStatusHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		order, err := orders.UpdateStatus(r.Context(), userID, orderID, models.OrderStatus(req.Status))
		if err != nil {
			writeServiceError(w, logger, err, msgInternalError)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// DeleteOrderHandler обрабатывает DELETE /api/orders/{id}: заказ удаляется, товар возвращается на склад
func DeleteOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}

		if err := orders.CancelOrder(r.Context(), userID, orderID); err != nil {
			writeServiceError(w, logger, err, msgInternalError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
