package orchestrator

import (
	"context"
	"time"

	"gridbot/internal/exchange"
	"gridbot/internal/logger"
	"gridbot/internal/models"
	"gridbot/internal/store"
)

// EnsureBasket возвращает активную корзину по паре или создаёт новую
// со снимком конфигурации. Нулевой якорь заменяется текущей ценой.
func EnsureBasket(ctx context.Context, st store.Store, client exchange.Client, log *logger.Logger, pair string, anchor float64, cfg models.GridConfig) (models.Basket, error) {
	baskets, err := st.ActiveBaskets(ctx)
	if err != nil {
		return models.Basket{}, err
	}
	for _, basket := range baskets {
		if basket.Pair == pair {
			return basket, nil
		}
	}

	if anchor <= 0 {
		anchor, err = client.CurrentPrice(ctx, pair)
		if err != nil {
			return models.Basket{}, err
		}
	}

	basket := models.Basket{
		ID:          models.NewBasketID(),
		Pair:        pair,
		AnchorPrice: anchor,
		Status:      models.BasketStatusActive,
		Config:      cfg,
		CreatedAt:   time.Now(),
	}
	if err := models.ValidateIDSpace(pair, basket.ID); err != nil {
		return models.Basket{}, err
	}
	if err := st.CreateBasket(ctx, &basket); err != nil {
		return models.Basket{}, err
	}

	log.WithComponent("orchestrator").WithFields(map[string]interface{}{
		"pair":      pair,
		"basket_id": basket.ID,
		"anchor":    anchor,
	}).Info("Создана новая корзина.")
	return basket, nil
}
