package orchestrator

import (
	"context"
	"time"

	"gridbot/internal/exchange"
	"gridbot/internal/metrics"
	"gridbot/internal/models"
)

// Глубина выборки исполнений при синхронизации.
const tradeSyncWindow = 24 * time.Hour

// syncTrades подтягивает недавние исполнения биржи в хранилище.
// Исполнение привязывается к ордеру по venue id, сохранённому при
// постановке; без этой привязки VWAP корзины был бы недостоверен.
func (o *Orchestrator) syncTrades(ctx context.Context, basket models.Basket, rules exchange.Filters) error {
	since := time.Now().Add(-tradeSyncWindow).UnixMilli()

	trades, err := o.client.MyTrades(ctx, basket.Pair, since)
	if err != nil {
		return err
	}

	for _, trade := range trades {
		seen, err := o.store.HasFill(ctx, trade.ID)
		if err != nil {
			return err
		}
		if seen {
			continue
		}

		order, found, err := o.store.OrderByVenueID(ctx, trade.VenueOrderID)
		if err != nil {
			return err
		}
		if !found || order.BasketID != basket.ID {
			// Чужое исполнение, отнести некуда.
			continue
		}

		fill := trade
		fill.OrderClientID = order.ClientID
		fill.BasketID = basket.ID
		if err := o.store.InsertFill(ctx, &fill); err != nil {
			return err
		}

		filledQty := order.FilledQty + trade.Qty
		status := models.OrderStatusPartiallyFilled
		var filledAt *time.Time
		if filledQty >= order.Qty-rules.LotSize/2 {
			status = models.OrderStatusFilled
			at := trade.ExecutedAt
			filledAt = &at
		}
		if err := o.store.UpdateOrderExecution(ctx, order.ClientID, filledQty, status, filledAt); err != nil {
			return err
		}

		o.basketEntry(basket).WithFields(map[string]interface{}{
			"client_id": order.ClientID,
			"price":     trade.Price,
			"qty":       trade.Qty,
			"side":      trade.Side,
		}).Info("Исполнение записано.")
	}
	return nil
}

func (o *Orchestrator) snapshot(ctx context.Context, pair string) error {
	rules, err := o.filters.Get(ctx, pair)
	if err != nil {
		return err
	}
	balances, err := o.client.AccountInfo(ctx)
	if err != nil {
		return err
	}
	price, err := o.client.CurrentPrice(ctx, pair)
	if err != nil {
		return err
	}

	quote := balances[rules.QuoteAsset].Free
	base := balances[rules.BaseAsset].Free
	total := quote + base*price

	snap := models.AccountSnapshot{
		Timestamp:  time.Now(),
		QuoteFree:  quote,
		BaseFree:   base,
		TotalValue: total,
	}
	if err := o.store.InsertSnapshot(ctx, &snap); err != nil {
		return err
	}

	metrics.AccountValue.Set(total)
	return nil
}
