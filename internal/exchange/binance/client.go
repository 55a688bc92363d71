package binance

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"gridbot/internal/exchange/binance/ws"
	"gridbot/internal/logger"
)

const (
	// Бюджет весов биржи: 1200 запросов в минуту.
	bucketCapacity = 1200
	refillPerSec   = float64(bucketCapacity) / 60.0

	recvWindowMs = 60_000

	// Свежесть цены из WS-кэша, после которой уходим в REST.
	tickerMaxAge = 2 * time.Second
)

type Client struct {
	baseURL string
	apiKey  string
	secret  string

	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger

	ticker *ws.Ticker
}

func New(baseURL, apiKey, secret string, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(refillPerSec), bucketCapacity),
		log:     log,
	}
}

// UseTickerStream подключает публичный WS-поток как кэш последней цены.
// REST остаётся запасным путём.
func (c *Client) UseTickerStream(t *ws.Ticker) {
	c.ticker = t
}
