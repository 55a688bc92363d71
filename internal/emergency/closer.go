package emergency

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gridbot/internal/exchange"
	"gridbot/internal/filters"
	"gridbot/internal/logger"
	"gridbot/internal/models"
	"gridbot/internal/store"
	"gridbot/internal/strategy"
)

const (
	DefaultSafetyMargin = 0.03

	dustThreshold = 1e-5
)

// Closer — ручной аварийный выход: снять все ордера корзины и выставить
// одну продажу с запасом ниже рынка. Корзина остаётся активной, торговля
// возобновится на следующем цикле, если тумблер не остановлен.
type Closer struct {
	client       exchange.Client
	store        store.Store
	filters      *filters.Cache
	log          *logger.Logger
	safetyMargin float64
}

type Result struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	CanceledCount   int    `json:"canceled_count"`
	ExitOrderPlaced bool   `json:"exit_order_placed"`
}

func New(client exchange.Client, st store.Store, cache *filters.Cache, log *logger.Logger, safetyMargin float64) *Closer {
	if safetyMargin <= 0 {
		safetyMargin = DefaultSafetyMargin
	}
	return &Closer{
		client:       client,
		store:        st,
		filters:      cache,
		log:          log,
		safetyMargin: safetyMargin,
	}
}

func (c *Closer) Close(ctx context.Context, basketID string) Result {
	var result Result

	err := c.store.WithTx(ctx, func(tx store.Store) error {
		basket, err := tx.GetBasket(ctx, basketID)
		if err != nil {
			return err
		}

		entry := c.logEntry(basket)
		entry.Warn("Аварийное закрытие корзины.")

		open, err := c.client.OpenOrders(ctx, basket.Pair)
		if err != nil {
			return fmt.Errorf("Не удалось получить открытые ордера: %w", err)
		}

		for _, order := range open {
			if !models.BelongsToBasket(order.ClientID, basket.Pair, basket.ID) {
				continue
			}
			if err := c.client.CancelOrder(ctx, basket.Pair, order.ClientID); err != nil {
				if !exchange.IsUnknownOrder(err) {
					return fmt.Errorf("Не удалось отменить ордер %s: %w", order.ClientID, err)
				}
			}
			if err := tx.MarkOrderCanceled(ctx, order.ClientID); err != nil {
				return err
			}
			result.CanceledCount++
		}

		position, err := tx.PositionBase(ctx, basket.ID)
		if err != nil {
			return err
		}
		if position <= dustThreshold {
			entry.WithFields(map[string]interface{}{"position": position}).Info("Позиции нет, аварийная продажа не нужна.")
			return nil
		}

		rules, err := c.filters.Get(ctx, basket.Pair)
		if err != nil {
			return err
		}
		price, err := c.client.CurrentPrice(ctx, basket.Pair)
		if err != nil {
			return err
		}

		exitPrice := strategy.RoundDown(price*(1-c.safetyMargin), rules.TickSize)
		exitQty := strategy.RoundDown(position, rules.LotSize)
		if exitQty <= 0 {
			entry.WithFields(map[string]interface{}{"position": position}).Warn("Позиция меньше лота, аварийная продажа пропущена.")
			return nil
		}

		clientID := models.SellClientID(basket.Pair, basket.ID, models.SlotEmergency)
		placed, err := c.client.PlaceOrder(ctx, exchange.OrderRequest{
			Pair:        basket.Pair,
			Side:        models.OrderSideSell,
			Type:        models.OrderTypeLimit,
			Price:       exitPrice,
			Qty:         exitQty,
			ClientID:    clientID,
			TimeInForce: "GTC",
			TickSize:    rules.TickSize,
			LotSize:     rules.LotSize,
		})
		if err != nil && !exchange.IsDuplicateOrder(err) {
			return fmt.Errorf("Не удалось поставить аварийную продажу: %w", err)
		}

		now := time.Now()
		order := models.Order{
			ClientID:  clientID,
			BasketID:  basket.ID,
			VenueID:   placed.VenueID,
			Pair:      basket.Pair,
			Side:      models.OrderSideSell,
			Type:      models.OrderTypeLimit,
			Price:     exitPrice,
			Qty:       exitQty,
			Status:    models.OrderStatusNew,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.UpsertOrder(ctx, &order); err != nil {
			return err
		}

		result.ExitOrderPlaced = true
		entry.WithFields(map[string]interface{}{
			"price": exitPrice,
			"qty":   exitQty,
		}).Warn("Аварийная продажа поставлена.")
		return nil
	})

	if err != nil {
		c.log.WithComponent("emergency").WithField("basket_id", basketID).WithError(err).Error("Аварийное закрытие не удалось.")
		return Result{Success: false, Message: err.Error(), CanceledCount: 0, ExitOrderPlaced: false}
	}

	result.Success = true
	result.Message = fmt.Sprintf("Отменено ордеров: %d.", result.CanceledCount)
	return result
}

func (c *Closer) logEntry(basket models.Basket) *logrus.Entry {
	return c.log.WithComponent("emergency").WithFields(map[string]interface{}{
		"pair":      basket.Pair,
		"basket_id": basket.ID,
	})
}
