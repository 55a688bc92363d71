package binance

import (
	"context"
	"net/http"

	"gridbot/internal/exchange"
)

func (c *Client) AccountInfo(ctx context.Context) (map[string]exchange.Balance, error) {
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}

	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true, &resp); err != nil {
		return nil, err
	}

	balances := map[string]exchange.Balance{}
	for _, item := range resp.Balances {
		free, err := parseFloatOrZero(item.Free)
		if err != nil {
			return nil, &exchange.DecodeError{Cause: err}
		}
		locked, err := parseFloatOrZero(item.Locked)
		if err != nil {
			return nil, &exchange.DecodeError{Cause: err}
		}
		balances[item.Asset] = exchange.Balance{
			Asset:  item.Asset,
			Free:   free,
			Locked: locked,
		}
	}
	return balances, nil
}
