package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/linemk/datashop/internal/domain/models"
)

// имена ограничений из migrations/000001_init.up.sql
const (
	fkInteractionsUser    = "fk_interactions_user"
	fkInteractionsProduct = "fk_interactions_product"
)

// InteractionStorage описывает журнал действий пользователей с товарами.
type InteractionStorage interface {
	// CreateInteraction добавляет запись в журнал. Записи только добавляются.
	CreateInteraction(ctx context.Context, userID, productID int64, kind models.InteractionType) (*models.Interaction, error)
	// GetInteractionsByUserID возвращает журнал пользователя, новые записи первыми.
	GetInteractionsByUserID(ctx context.Context, userID int64) ([]*models.Interaction, error)
}

type interactionRepository struct {
	db *sql.DB
}

func NewInteractionRepository(db *sql.DB) InteractionStorage {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) CreateInteraction(ctx context.Context, userID, productID int64, kind models.InteractionType) (*models.Interaction, error) {
	query := `INSERT INTO user_product_interactions (user_id, product_id, interaction_type)
	          VALUES ($1, $2, $3) RETURNING id, created_at`
	in := &models.Interaction{UserID: userID, ProductID: productID, Type: kind}
	err := r.db.QueryRowContext(ctx, query, userID, productID, string(kind)).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" { // foreign_key_violation
			switch pqErr.Constraint {
			case fkInteractionsProduct:
				return nil, ErrProductNotFound
			case fkInteractionsUser:
				return nil, ErrUserNotFound
			}
		}
		return nil, fmt.Errorf("failed to create interaction: %w", err)
	}
	return in, nil
}

func (r *interactionRepository) GetInteractionsByUserID(ctx context.Context, userID int64) ([]*models.Interaction, error) {
	query := `
		SELECT id, user_id, product_id, interaction_type, created_at
		FROM user_product_interactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	interactions := make([]*models.Interaction, 0)
	for rows.Next() {
		in := &models.Interaction{}
		var kind string
		if err := rows.Scan(&in.ID, &in.UserID, &in.ProductID, &kind, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		in.Type = models.InteractionType(kind)
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return interactions, nil
}
