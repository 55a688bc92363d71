package store

import (
	"context"
	"time"

	"gridbot/internal/models"
)

// Store — система записи: корзины, ордера, исполнения, снимки баланса
// и ключи конфигурации. Единственный ключ сверки ордеров — clientOrderId,
// он уникален во всём хранилище.
type Store interface {
	CreateBasket(ctx context.Context, basket *models.Basket) error
	GetBasket(ctx context.Context, id string) (models.Basket, error)
	ActiveBaskets(ctx context.Context) ([]models.Basket, error)
	UpdateBasketAnchor(ctx context.Context, id string, anchor float64) error
	UpdateBasketStatus(ctx context.Context, id string, status models.BasketStatus, closedAt *time.Time) error

	UpsertOrder(ctx context.Context, order *models.Order) error
	OrderByClientID(ctx context.Context, clientID string) (models.Order, bool, error)
	OrderByVenueID(ctx context.Context, venueID string) (models.Order, bool, error)
	OrdersByBasket(ctx context.Context, basketID string, statuses ...models.OrderStatus) ([]models.Order, error)
	MarkOrderCanceled(ctx context.Context, clientID string) error
	UpdateOrderExecution(ctx context.Context, clientID string, filledQty float64, status models.OrderStatus, filledAt *time.Time) error

	InsertFill(ctx context.Context, fill *models.Fill) error
	HasFill(ctx context.Context, id string) (bool, error)
	FillsByBasket(ctx context.Context, basketID string) ([]models.Fill, error)
	PositionBase(ctx context.Context, basketID string) (float64, error)

	InsertSnapshot(ctx context.Context, snap *models.AccountSnapshot) error

	GetConfigValue(ctx context.Context, key string) (string, bool, error)
	SetConfigValue(ctx context.Context, key, value string) error

	// WithTx выполняет fn в транзакции; ошибка откатывает все записи.
	WithTx(ctx context.Context, fn func(Store) error) error
}
