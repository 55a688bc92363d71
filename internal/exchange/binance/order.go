package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gridbot/internal/exchange"
	"gridbot/internal/models"
)

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (models.Order, error) {
	params := url.Values{}
	params.Set("symbol", req.Pair)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", formatWithStep(req.Qty, req.LotSize))
	params.Set("price", formatWithStep(req.Price, req.TickSize))
	params.Set("newClientOrderId", req.ClientID)

	tif := req.TimeInForce
	if tif == "" {
		tif = "GTC"
	}
	params.Set("timeInForce", tif)

	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
		TransactTime  int64  `json:"transactTime"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true, &resp); err != nil {
		return models.Order{}, err
	}

	now := time.UnixMilli(resp.TransactTime)
	return models.Order{
		ClientID:  req.ClientID,
		VenueID:   strconv.FormatInt(resp.OrderID, 10),
		Pair:      req.Pair,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Qty:       req.Qty,
		Status:    models.OrderStatus(resp.Status),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, pair, clientID string) error {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("origClientOrderId", clientID)

	return c.doRequest(ctx, http.MethodDelete, "/api/v3/order", params, true, nil)
}

func (c *Client) OpenOrders(ctx context.Context, pair string) ([]models.Order, error) {
	params := url.Values{}
	params.Set("symbol", pair)

	var resp []struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Status        string `json:"status"`
		Time          int64  `json:"time"`
		UpdateTime    int64  `json:"updateTime"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/openOrders", params, true, &resp); err != nil {
		return nil, err
	}

	var orders []models.Order
	for _, item := range resp {
		price, err := parseFloatOrZero(item.Price)
		if err != nil {
			return nil, &exchange.DecodeError{Cause: err}
		}
		qty, err := parseFloatOrZero(item.OrigQty)
		if err != nil {
			return nil, &exchange.DecodeError{Cause: err}
		}
		filled, err := parseFloatOrZero(item.ExecutedQty)
		if err != nil {
			return nil, &exchange.DecodeError{Cause: err}
		}

		orders = append(orders, models.Order{
			ClientID:  item.ClientOrderID,
			VenueID:   strconv.FormatInt(item.OrderID, 10),
			Pair:      pair,
			Side:      models.OrderSide(item.Side),
			Type:      models.OrderType(item.Type),
			Price:     price,
			Qty:       qty,
			FilledQty: filled,
			Status:    models.OrderStatus(item.Status),
			CreatedAt: time.UnixMilli(item.Time),
			UpdatedAt: time.UnixMilli(item.UpdateTime),
		})
	}
	return orders, nil
}

func (c *Client) MyTrades(ctx context.Context, pair string, sinceMs int64) ([]models.Fill, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	if sinceMs > 0 {
		params.Set("startTime", strconv.FormatInt(sinceMs, 10))
	}

	var resp []struct {
		ID              int64  `json:"id"`
		OrderID         int64  `json:"orderId"`
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
		Time            int64  `json:"time"`
		IsBuyer         bool   `json:"isBuyer"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/myTrades", params, true, &resp); err != nil {
		return nil, err
	}

	var fills []models.Fill
	for _, item := range resp {
		price, err := parseFloatOrZero(item.Price)
		if err != nil {
			return nil, &exchange.DecodeError{Cause: err}
		}
		qty, err := parseFloatOrZero(item.Qty)
		if err != nil {
			return nil, &exchange.DecodeError{Cause: err}
		}
		commission, err := parseFloatOrZero(item.Commission)
		if err != nil {
			return nil, &exchange.DecodeError{Cause: err}
		}

		side := models.OrderSideSell
		if item.IsBuyer {
			side = models.OrderSideBuy
		}

		fills = append(fills, models.Fill{
			ID:              strconv.FormatInt(item.ID, 10),
			VenueOrderID:    strconv.FormatInt(item.OrderID, 10),
			Pair:            pair,
			Side:            side,
			Price:           price,
			Qty:             qty,
			Commission:      commission,
			CommissionAsset: item.CommissionAsset,
			ExecutedAt:      time.UnixMilli(item.Time),
		})
	}
	return fills, nil
}
