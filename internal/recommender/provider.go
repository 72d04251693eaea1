// Package recommender содержит клиент внешнего сервиса рекомендаций.
// Ошибки сервиса никогда не доходят до вызывающего: вместо них возвращается пустой список.
package recommender

import (
	"context"

	"github.com/linemk/datashop/internal/domain/models"
)

const (
	KindRelated = "related"
	KindUser    = "user"
	KindPopular = "popular"
)

type Provider interface {
	Related(ctx context.Context, productID int64) []models.Recommendation
	ForUser(ctx context.Context, userID int64) []models.Recommendation
	Popular(ctx context.Context) []models.Recommendation
}

// Noop используется, когда адрес сервиса не задан.
type Noop struct{}

var _ Provider = Noop{}

func (Noop) Related(context.Context, int64) []models.Recommendation { return []models.Recommendation{} }
func (Noop) ForUser(context.Context, int64) []models.Recommendation { return []models.Recommendation{} }
func (Noop) Popular(context.Context) []models.Recommendation        { return []models.Recommendation{} }
