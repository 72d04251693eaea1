package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/datashop/internal/domain/models"
	"github.com/linemk/datashop/internal/storage"
)

// InteractionLogger ведёт журнал действий пользователей с товарами.
type InteractionLogger interface {
	Record(ctx context.Context, userID, productID int64, kind models.InteractionType) error
	History(ctx context.Context, userID int64) ([]*models.Interaction, error)
}

type interactionLogger struct {
	log  *slog.Logger
	repo storage.InteractionStorage
}

func NewInteractionLogger(log *slog.Logger, repo storage.InteractionStorage) InteractionLogger {
	return &interactionLogger{log: log, repo: repo}
}

func (l *interactionLogger) Record(ctx context.Context, userID, productID int64, kind models.InteractionType) error {
	const op = "service.InteractionLogger.Record"
	logger := l.log.With(
		slog.String("op", op),
		slog.Int64("userID", userID),
		slog.Int64("productID", productID),
		slog.String("type", string(kind)),
	)

	if !kind.Valid() {
		return NewValidationError("interaction_type", "must be one of view, add_to_cart, purchase")
	}

	in, err := l.repo.CreateInteraction(ctx, userID, productID, kind)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return ErrProductNotFound
		}
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("token owner no longer exists")
			return ErrInvalidCredentials
		}
		logger.Error("failed to record interaction", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("interaction recorded", slog.Int64("id", in.ID))
	return nil
}

func (l *interactionLogger) History(ctx context.Context, userID int64) ([]*models.Interaction, error) {
	const op = "service.InteractionLogger.History"

	items, err := l.repo.GetInteractionsByUserID(ctx, userID)
	if err != nil {
		l.log.Error("failed to get interactions", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}
