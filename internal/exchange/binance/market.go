package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gridbot/internal/exchange"
)

func (c *Client) CurrentPrice(ctx context.Context, pair string) (float64, error) {
	if c.ticker != nil {
		if price, at, ok := c.ticker.Last(); ok && time.Since(at) < tickerMaxAge {
			return price, nil
		}
	}

	params := url.Values{}
	params.Set("symbol", pair)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, false, &resp); err != nil {
		return 0, err
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, &exchange.DecodeError{Cause: err}
	}
	return price, nil
}

func (c *Client) ExchangeInfo(ctx context.Context, pair string) (exchange.Filters, error) {
	params := url.Values{}
	params.Set("symbol", pair)

	var resp struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Filters    []struct {
				FilterType  string `json:"filterType"`
				TickSize    string `json:"tickSize"`
				StepSize    string `json:"stepSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, &resp); err != nil {
		return exchange.Filters{}, err
	}
	if len(resp.Symbols) == 0 {
		return exchange.Filters{}, fmt.Errorf("Торговая пара не найдена: %s", pair)
	}

	info := resp.Symbols[0]
	filters := exchange.Filters{
		BaseAsset:  info.BaseAsset,
		QuoteAsset: info.QuoteAsset,
	}

	for _, f := range info.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			tick, err := parseFloatOrZero(f.TickSize)
			if err != nil {
				return exchange.Filters{}, fmt.Errorf("Некорректное значение tickSize=%q: %w", f.TickSize, err)
			}
			filters.TickSize = tick
		case "LOT_SIZE":
			lot, err := parseFloatOrZero(f.StepSize)
			if err != nil {
				return exchange.Filters{}, fmt.Errorf("Некорректное значение stepSize=%q: %w", f.StepSize, err)
			}
			filters.LotSize = lot
		case "NOTIONAL", "MIN_NOTIONAL":
			minNotional, err := parseFloatOrZero(f.MinNotional)
			if err != nil {
				return exchange.Filters{}, fmt.Errorf("Некорректное значение minNotional=%q: %w", f.MinNotional, err)
			}
			filters.MinNotional = minNotional
		}
	}

	if filters.TickSize == 0 || filters.LotSize == 0 {
		return exchange.Filters{}, fmt.Errorf("Не удалось определить фильтры для торговой пары: %s", pair)
	}
	return filters, nil
}
