package executor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"gridbot/internal/exchange"
	"gridbot/internal/filters"
	"gridbot/internal/logger"
	"gridbot/internal/models"
	"gridbot/internal/reconcile"
	"gridbot/internal/store"
)

// Executor приводит биржу к плану сверки: сначала отмены, затем
// постановки. Порядок важен: отмена освобождает баланс перед
// перестановкой ордера по новой цене.
type Executor struct {
	client  exchange.Client
	store   store.Store
	filters *filters.Cache
	log     *logger.Logger
	dryRun  bool
}

type Result struct {
	Canceled int
	Created  int
	Skipped  int
}

func New(client exchange.Client, st store.Store, cache *filters.Cache, log *logger.Logger, dryRun bool) *Executor {
	return &Executor{
		client:  client,
		store:   st,
		filters: cache,
		log:     log,
		dryRun:  dryRun,
	}
}

func (e *Executor) Apply(ctx context.Context, basket models.Basket, plan reconcile.Plan) (Result, error) {
	var result Result

	if e.dryRun {
		e.logEntry(basket).WithFields(map[string]interface{}{
			"to_cancel": len(plan.ToCancel),
			"to_create": len(plan.ToCreate),
		}).Info("Dry-run: план не отправлен на биржу.")
		return result, nil
	}

	rules, err := e.filters.Get(ctx, basket.Pair)
	if err != nil {
		return result, err
	}

	for _, clientID := range plan.ToCancel {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := e.client.CancelOrder(ctx, basket.Pair, clientID); err != nil {
			if !exchange.IsUnknownOrder(err) {
				e.logEntry(basket).WithField("client_id", clientID).WithError(err).Warn("Не удалось отменить ордер.")
				continue
			}
		}
		if err := e.store.MarkOrderCanceled(ctx, clientID); err != nil {
			e.logEntry(basket).WithField("client_id", clientID).WithError(err).Warn("Не удалось пометить ордер отменённым.")
			continue
		}
		result.Canceled++
	}

	for _, spec := range plan.ToCreate {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := filters.Validate(rules, spec.Price, spec.Qty); err != nil {
			e.logEntry(basket).WithField("client_id", spec.ClientID).WithError(err).Warn("Ордер пропущен локальной проверкой.")
			result.Skipped++
			continue
		}

		placed, err := e.client.PlaceOrder(ctx, exchange.OrderRequest{
			Pair:        basket.Pair,
			Side:        spec.Side,
			Type:        spec.Type,
			Price:       spec.Price,
			Qty:         spec.Qty,
			ClientID:    spec.ClientID,
			TimeInForce: "GTC",
			TickSize:    rules.TickSize,
			LotSize:     rules.LotSize,
		})
		if err != nil {
			if exchange.IsDuplicateOrder(err) {
				// Ордер уже стоит на бирже, повтор идемпотентен.
				e.logEntry(basket).WithField("client_id", spec.ClientID).Debug("Ордер уже существует, повтор не нужен.")
				result.Created++
				continue
			}
			var apiErr *exchange.APIError
			if errors.As(err, &apiErr) {
				e.logEntry(basket).WithField("client_id", spec.ClientID).WithField("code", apiErr.Code).WithError(err).Warn("Биржа отклонила ордер.")
				result.Skipped++
				continue
			}
			e.logEntry(basket).WithField("client_id", spec.ClientID).WithError(err).Warn("Не удалось поставить ордер.")
			result.Skipped++
			continue
		}

		now := time.Now()
		order := models.Order{
			ClientID:  spec.ClientID,
			BasketID:  basket.ID,
			VenueID:   placed.VenueID,
			Pair:      basket.Pair,
			Side:      spec.Side,
			Type:      spec.Type,
			Price:     spec.Price,
			Qty:       spec.Qty,
			Status:    models.OrderStatusNew,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.store.UpsertOrder(ctx, &order); err != nil {
			e.logEntry(basket).WithField("client_id", spec.ClientID).WithError(err).Warn("Не удалось сохранить ордер.")
			continue
		}
		result.Created++
	}

	return result, nil
}

func (e *Executor) logEntry(basket models.Basket) *logrus.Entry {
	return e.log.WithComponent("executor").WithFields(map[string]interface{}{
		"pair":      basket.Pair,
		"basket_id": basket.ID,
	})
}
