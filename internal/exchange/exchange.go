package exchange

import (
	"context"

	"gridbot/internal/models"
)

type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

type Filters struct {
	TickSize    float64
	LotSize     float64
	MinNotional float64
	BaseAsset   string
	QuoteAsset  string
}

type OrderRequest struct {
	Pair        string
	Side        models.OrderSide
	Type        models.OrderType
	Price       float64
	Qty         float64
	ClientID    string
	TimeInForce string
	TickSize    float64
	LotSize     float64
}

type Client interface {
	AccountInfo(ctx context.Context) (map[string]Balance, error)
	OpenOrders(ctx context.Context, pair string) ([]models.Order, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (models.Order, error)
	CancelOrder(ctx context.Context, pair, clientID string) error
	CurrentPrice(ctx context.Context, pair string) (float64, error)
	MyTrades(ctx context.Context, pair string, sinceMs int64) ([]models.Fill, error)
	ExchangeInfo(ctx context.Context, pair string) (Filters, error)
}
