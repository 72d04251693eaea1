package models

import "github.com/shopspring/decimal"

// Recommendation товар из ответа сервиса рекомендаций.
// Score приходит для персональных и связанных рекомендаций, SalesVolume для популярных.
type Recommendation struct {
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Score       float64         `json:"score,omitempty"`
	SalesVolume int             `json:"sales_volume,omitempty"`
}
