package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gridbot/internal/exchange"
	"gridbot/internal/executor"
	"gridbot/internal/filters"
	"gridbot/internal/gate"
	"gridbot/internal/logger"
	"gridbot/internal/metrics"
	"gridbot/internal/models"
	"gridbot/internal/reconcile"
	"gridbot/internal/store"
	"gridbot/internal/strategy"
)

const (
	DefaultInterval = 5 * time.Second

	// Снимок баланса раз в 10 циклов.
	snapshotEvery = 10

	// Потолок длительности одного цикла.
	cycleTimeout = 2 * time.Minute

	dustThreshold = 1e-8
)

// Orchestrator ведёт основной цикл: забирает состояние биржи, считает
// стратегию, сверяет и исполняет. Корзины обрабатываются последовательно,
// ошибка одной не трогает остальные.
type Orchestrator struct {
	client   exchange.Client
	store    store.Store
	filters  *filters.Cache
	gate     *gate.Gate
	exec     *executor.Executor
	log      *logger.Logger
	interval time.Duration

	cycles int64
}

func New(client exchange.Client, st store.Store, cache *filters.Cache, g *gate.Gate, exec *executor.Executor, log *logger.Logger, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Orchestrator{
		client:   client,
		store:    st,
		filters:  cache,
		gate:     g,
		exec:     exec,
		log:      log,
		interval: interval,
	}
}

// Run крутит цикл до отмены контекста. Сигнал остановки проверяется
// между циклами, начатый цикл доводится до конца.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logEntry().WithFields(map[string]interface{}{"interval": o.interval.String()}).Info("Оркестратор запущен.")

	for {
		started := time.Now()

		cycleCtx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		err := o.runCycle(cycleCtx)
		cancel()

		elapsed := time.Since(started)
		metrics.CyclesTotal.Inc()
		metrics.CycleSeconds.Set(elapsed.Seconds())

		if err != nil {
			metrics.CycleErrorsTotal.Inc()
			o.logEntry().WithError(err).Error("Цикл завершился с ошибкой.")
		} else {
			o.logEntry().WithFields(map[string]interface{}{"elapsed": elapsed.String()}).Debug("Цикл завершён.")
		}

		select {
		case <-ctx.Done():
			o.logEntry().Info("Оркестратор остановлен.")
			return ctx.Err()
		case <-time.After(o.interval):
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) error {
	o.cycles++

	baskets, err := o.store.ActiveBaskets(ctx)
	if err != nil {
		return fmt.Errorf("Не удалось получить активные корзины: %w", err)
	}
	if len(baskets) == 0 {
		return nil
	}

	for _, basket := range baskets {
		if err := o.processBasket(ctx, basket); err != nil {
			o.basketEntry(basket).WithError(err).Error("Ошибка обработки корзины.")
		}
	}

	if o.cycles%snapshotEvery == 0 {
		if err := o.snapshot(ctx, baskets[0].Pair); err != nil {
			o.logEntry().WithError(err).Warn("Не удалось сохранить снимок баланса.")
		}
	}
	return nil
}

func (o *Orchestrator) processBasket(ctx context.Context, basket models.Basket) error {
	rules, err := o.filters.Get(ctx, basket.Pair)
	if err != nil {
		return err
	}

	balances, err := o.client.AccountInfo(ctx)
	if err != nil {
		return err
	}
	open, err := o.client.OpenOrders(ctx, basket.Pair)
	if err != nil {
		return err
	}
	price, err := o.client.CurrentPrice(ctx, basket.Pair)
	if err != nil {
		return err
	}

	if err := o.syncTrades(ctx, basket, rules); err != nil {
		o.basketEntry(basket).WithError(err).Warn("Не удалось синхронизировать исполнения.")
	}

	fills, err := o.store.FillsByBasket(ctx, basket.ID)
	if err != nil {
		return err
	}
	position, err := o.store.PositionBase(ctx, basket.ID)
	if err != nil {
		return err
	}

	input := strategy.Input{
		Pair:            basket.Pair,
		BasketID:        basket.ID,
		AnchorPrice:     basket.AnchorPrice,
		Config:          basket.Config,
		TickSize:        rules.TickSize,
		LotSize:         rules.LotSize,
		MinNotional:     rules.MinNotional,
		QuoteBalance:    balances[rules.QuoteAsset].Free,
		BaseBalance:     balances[rules.BaseAsset].Free,
		PositionBase:    position,
		Fills:           fills,
		LastPrice:       price,
		BasketCreatedAt: basket.CreatedAt,
		Now:             time.Now(),
	}

	plan, err := strategy.Build(input)
	if err != nil {
		return err
	}

	if plan.Meta.ReanchorSuggested && position <= dustThreshold {
		o.basketEntry(basket).WithFields(map[string]interface{}{
			"old_anchor": basket.AnchorPrice,
			"new_anchor": price,
		}).Info("Перенос якоря корзины.")
		if err := o.store.UpdateBasketAnchor(ctx, basket.ID, price); err != nil {
			return err
		}
		basket.AnchorPrice = price
		input.AnchorPrice = price
		plan, err = strategy.Build(input)
		if err != nil {
			return err
		}
	}

	mine := make([]models.Order, 0, len(open))
	for _, order := range open {
		if models.BelongsToBasket(order.ClientID, basket.Pair, basket.ID) {
			mine = append(mine, order)
		}
	}

	desired := make([]strategy.OrderSpec, 0, len(plan.Buys)+len(plan.Sells))
	desired = append(desired, plan.Buys...)
	desired = append(desired, plan.Sells...)

	diff := reconcile.Diff(desired, mine)

	running, err := o.gate.Running(ctx)
	if err != nil {
		o.basketEntry(basket).WithError(err).Warn("Не удалось прочитать тумблер, считаем его включённым.")
	}
	if !running {
		o.basketEntry(basket).Info("Торговля остановлена тумблером, план не исполняется.")
		return nil
	}

	result, err := o.exec.Apply(ctx, basket, diff)
	if err != nil {
		return err
	}

	metrics.OrdersPlacedTotal.WithLabelValues(basket.Pair).Add(float64(result.Created))
	metrics.OrdersCanceledTotal.WithLabelValues(basket.Pair).Add(float64(result.Canceled))

	o.basketEntry(basket).WithFields(map[string]interface{}{
		"price":          price,
		"position":       position,
		"avg_price":      plan.Meta.AvgPrice,
		"filled_levels":  plan.Meta.FilledLevels,
		"planned_levels": plan.Meta.PlannedLevels,
		"canceled":       result.Canceled,
		"created":        result.Created,
		"unchanged":      diff.Counters.Unchanged,
	}).Info("Корзина обработана.")
	return nil
}

func (o *Orchestrator) logEntry() *logrus.Entry {
	return o.log.WithComponent("orchestrator")
}

func (o *Orchestrator) basketEntry(basket models.Basket) *logrus.Entry {
	return o.logEntry().WithFields(map[string]interface{}{
		"pair":      basket.Pair,
		"basket_id": basket.ID,
	})
}
