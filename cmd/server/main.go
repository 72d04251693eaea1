package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/linemk/datashop/internal/app"
	"github.com/linemk/datashop/internal/app/handlers"
	"github.com/linemk/datashop/internal/config"
	"github.com/linemk/datashop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/datashop/internal/lib/logger"
	"github.com/linemk/datashop/internal/lib/logger/handlers/urllog"
	"github.com/linemk/datashop/internal/lib/metrics"
	"github.com/linemk/datashop/internal/service"
	"github.com/linemk/datashop/internal/storage"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения: конфиг, БД, клиент рекомендаций
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(metrics.Middleware)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)
	interactionRepo := storage.NewInteractionRepository(application.DB)

	authService := service.NewAuthService(log, userRepo, cfg.TokenTTL(), cfg.JWT.Secret)
	interactions := service.NewInteractionLogger(log, interactionRepo)
	orderService := service.NewOrderService(log, application.DB, productRepo, orderRepo, interactions)
	catalogService := service.NewCatalogService(log, productRepo, interactions, application.Recommender)

	router.Handle("/metrics", metrics.Handler())

	router.Post("/api/auth/register", handlers.RegisterHandler(log, authService))
	router.Post("/api/auth/login", handlers.LoginHandler(log, authService))

	router.Get("/api/products", handlers.ListProductsHandler(log, catalogService))
	router.Get("/api/products/popular", handlers.PopularProductsHandler(log, catalogService))
	// карточка товара доступна всем, просмотр пишется только для вошедших
	router.With(jwtmiddleware.NewOptionalJWTMiddleware(cfg.JWT.Secret)).
		Get("/api/products/{id}", handlers.GetProductHandler(log, catalogService))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware(cfg.JWT.Secret))

		r.Get("/api/user", handlers.CurrentUserHandler(log, authService))
		r.Post("/api/products/{id}/cart", handlers.AddToCartHandler(log, catalogService))
		r.Get("/api/recommendations", handlers.RecommendationsHandler(log, catalogService))
		r.Get("/api/interactions", handlers.InteractionsHandler(log, interactions))

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", handlers.CreateOrderHandler(log, orderService))
			r.Get("/", handlers.ListOrdersHandler(log, orderService))
			r.Get("/{id}", handlers.GetOrderHandler(log, orderService))
			r.Patch("/{id}", handlers.UpdateOrderStatusHandler(log, orderService))
			r.Delete("/{id}", handlers.DeleteOrderHandler(log, orderService))
		})

		// покупка «в один клик» из формы
		r.Post("/orders", handlers.QuickBuyHandler(log, orderService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
