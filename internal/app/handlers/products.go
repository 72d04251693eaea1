package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/datashop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/datashop/internal/service"
)

func ListProductsHandler(log *slog.Logger, catalog service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListProductsHandler"
		logger := log.With(slog.String("op", op))

		products, err := catalog.ListProducts(r.Context())
		if err != nil {
			writeServiceError(w, logger, err, msgInternalError)
			return
		}
		writeJSON(w, logger, http.StatusOK, products)
	}
}

// GetProductHandler отдаёт карточку товара. Маршрут под необязательным JWT:
// просмотр пишется в журнал только для вошедшего пользователя.
func GetProductHandler(log *slog.Logger, catalog service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetProductHandler"
		logger := log.With(slog.String("op", op))

		productID, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		viewerID, _ := jwtmiddleware.FromContext(r.Context())

		details, err := catalog.GetProduct(r.Context(), viewerID, productID)
		if err != nil {
			writeServiceError(w, logger, err, msgInternalError)
			return
		}
		writeJSON(w, logger, http.StatusOK, details)
	}
}

// AddToCartHandler только пишет действие add_to_cart, корзина не хранится
func AddToCartHandler(log *slog.Logger, catalog service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AddToCartHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}
		productID, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}

		if err := catalog.AddToCart(r.Context(), userID, productID); err != nil {
			writeServiceError(w, logger, err, msgInternalError)
			return
		}
		writeJSON(w, logger, http.StatusCreated, MessageResponse{Message: "product added to cart"})
	}
}

func PopularProductsHandler(log *slog.Logger, catalog service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.PopularProductsHandler"))
		writeJSON(w, logger, http.StatusOK, catalog.Popular(r.Context()))
	}
}

func RecommendationsHandler(log *slog.Logger, catalog service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RecommendationsHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}
		writeJSON(w, logger, http.StatusOK, catalog.RecommendForUser(r.Context(), userID))
	}
}

// InteractionsHandler отдаёт журнал действий текущего пользователя, новые первыми
func InteractionsHandler(log *slog.Logger, interactions service.InteractionLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.InteractionsHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := currentUser(w, r, logger)
		if !ok {
			return
		}

		history, err := interactions.History(r.Context(), userID)
		if err != nil {
			writeServiceError(w, logger, err, msgInternalError)
			return
		}
		writeJSON(w, logger, http.StatusOK, history)
	}
}
