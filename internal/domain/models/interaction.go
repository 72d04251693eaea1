package models

import "time"

// InteractionType тип действия пользователя с товаром
type InteractionType string

const (
	InteractionView      InteractionType = "view"
	InteractionAddToCart InteractionType = "add_to_cart"
	InteractionPurchase  InteractionType = "purchase"
)

func (t InteractionType) Valid() bool {
	return t == InteractionView || t == InteractionAddToCart || t == InteractionPurchase
}

// Interaction запись журнала действий. Дубликаты допустимы.
type Interaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	ProductID int64           `json:"product_id"`
	Type      InteractionType `json:"interaction_type"`
	CreatedAt time.Time       `json:"created_at"`
}
