package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/linemk/datashop/internal/service"
)

// QuickBuyHandler обрабатывает покупку одного товара из формы (application/x-www-form-urlencoded)
func QuickBuyHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.QuickBuyHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}

		if err := r.ParseForm(); err != nil {
			logger.Warn("invalid request: form parsing error", slog.Any("error", err))
			writeValidation(w, logger, map[string]string{"body": "must be a valid form"})
			return
		}

		fields := make(map[string]string)
		productID, err := strconv.ParseInt(r.PostForm.Get("product_id"), 10, 64)
		if err != nil || productID <= 0 {
			fields["product_id"] = "must be a positive integer"
		}
		quantity, err := strconv.Atoi(r.PostForm.Get("quantity"))
		if err != nil || quantity < 1 {
			fields["quantity"] = "must be at least 1"
		}
		if len(fields) > 0 {
			logger.Warn("invalid request: validation error", slog.Any("fields", fields))
			writeValidation(w, logger, fields)
			return
		}

		order, err := orders.QuickBuy(r.Context(), userID, productID, quantity)
		if err != nil {
			writeServiceError(w, logger, err, msgOrderCreationFailed)
			return
		}

		w.Header().Set("Location", fmt.Sprintf("/api/orders/%d", order.ID))
		writeJSON(w, logger, http.StatusCreated, order)
	}
}
