package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/datashop/internal/domain/models"
	"github.com/linemk/datashop/internal/recommender"
	"github.com/linemk/datashop/internal/storage"
)

// ProductDetails карточка товара вместе со связанными рекомендациями.
type ProductDetails struct {
	Product *models.Product         `json:"product"`
	Related []models.Recommendation `json:"related"`
}

// CatalogService отвечает за просмотр каталога. Действия пользователей пишутся в журнал,
// рекомендации запрашиваются у внешнего сервиса вне транзакций.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]*models.Product, error)
	// GetProduct записывает просмотр, если viewerID > 0.
	GetProduct(ctx context.Context, viewerID, productID int64) (*ProductDetails, error)
	AddToCart(ctx context.Context, userID, productID int64) error
	Popular(ctx context.Context) []models.Recommendation
	// RecommendForUser для анонимного пользователя отдаёт популярные товары.
	RecommendForUser(ctx context.Context, userID int64) []models.Recommendation
}

type catalogService struct {
	log          *slog.Logger
	productRepo  storage.ProductStorage
	interactions InteractionLogger
	recs         recommender.Provider
}

func NewCatalogService(log *slog.Logger, productRepo storage.ProductStorage, interactions InteractionLogger, recs recommender.Provider) CatalogService {
	return &catalogService{
		log:          log,
		productRepo:  productRepo,
		interactions: interactions,
		recs:         recs,
	}
}

func (s *catalogService) ListProducts(ctx context.Context) ([]*models.Product, error) {
	const op = "service.CatalogService.ListProducts"

	products, err := s.productRepo.ListProducts(ctx)
	if err != nil {
		s.log.Error("failed to list products", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, viewerID, productID int64) (*ProductDetails, error) {
	const op = "service.CatalogService.GetProduct"
	logger := s.log.With(slog.String("op", op), slog.Int64("productID", productID))

	product, err := s.productRepo.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		logger.Error("failed to get product", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if viewerID > 0 {
		if err := s.interactions.Record(ctx, viewerID, productID, models.InteractionView); err != nil {
			logger.Warn("failed to record view", slog.Int64("userID", viewerID), slog.Any("error", err))
		}
	}

	return &ProductDetails{
		Product: product,
		Related: s.recs.Related(ctx, productID),
	}, nil
}

func (s *catalogService) AddToCart(ctx context.Context, userID, productID int64) error {
	const op = "service.CatalogService.AddToCart"

	if err := s.interactions.Record(ctx, userID, productID, models.InteractionAddToCart); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("product added to cart", slog.String("op", op), slog.Int64("userID", userID), slog.Int64("productID", productID))
	return nil
}

func (s *catalogService) Popular(ctx context.Context) []models.Recommendation {
	return s.recs.Popular(ctx)
}

func (s *catalogService) RecommendForUser(ctx context.Context, userID int64) []models.Recommendation {
	if userID <= 0 {
		return s.recs.Popular(ctx)
	}
	return s.recs.ForUser(ctx, userID)
}
