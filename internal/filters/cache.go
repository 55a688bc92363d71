package filters

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gridbot/internal/exchange"
	"gridbot/internal/logger"
)

const (
	cacheTTL = 24 * time.Hour

	modTolerance = 1e-8
)

type entry struct {
	filters   exchange.Filters
	fetchedAt time.Time
}

// Cache хранит фильтры биржи по торговым парам и обновляет их по TTL.
type Cache struct {
	client exchange.Client
	log    *logger.Logger

	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewCache(client exchange.Client, log *logger.Logger) *Cache {
	return &Cache{
		client:  client,
		log:     log,
		entries: map[string]entry{},
		now:     time.Now,
	}
}

func (c *Cache) Get(ctx context.Context, pair string) (exchange.Filters, error) {
	c.mu.Lock()
	cached, ok := c.entries[pair]
	c.mu.Unlock()

	if ok && c.now().Sub(cached.fetchedAt) < cacheTTL {
		return cached.filters, nil
	}

	fetched, err := c.client.ExchangeInfo(ctx, pair)
	if err != nil {
		if ok {
			c.log.WithComponent("filters").WithError(err).Warn("Не удалось обновить фильтры, используем устаревшие.")
			return cached.filters, nil
		}
		return exchange.Filters{}, err
	}

	c.mu.Lock()
	c.entries[pair] = entry{filters: fetched, fetchedAt: c.now()}
	c.mu.Unlock()

	c.log.WithComponent("filters").WithField("pair", pair).WithFields(map[string]interface{}{
		"tick_size":    fetched.TickSize,
		"lot_size":     fetched.LotSize,
		"min_notional": fetched.MinNotional,
	}).Info("Фильтры торговой пары обновлены.")

	return fetched, nil
}

// Validate проверяет ордер по фильтрам биржи. Достаточность баланса
// здесь не проверяется, её подтверждает сама биржа.
func Validate(f exchange.Filters, price, qty float64) error {
	var reasons []string

	if !isStepMultiple(price, f.TickSize) {
		reasons = append(reasons, fmt.Sprintf("цена %v не кратна шагу %v", price, f.TickSize))
	}
	if !isStepMultiple(qty, f.LotSize) {
		reasons = append(reasons, fmt.Sprintf("объём %v не кратен лоту %v", qty, f.LotSize))
	}
	if f.MinNotional > 0 && price*qty < f.MinNotional {
		reasons = append(reasons, fmt.Sprintf("стоимость %v меньше минимальной %v", price*qty, f.MinNotional))
	}

	if len(reasons) > 0 {
		return &exchange.ValidationError{Reasons: reasons}
	}
	return nil
}

func isStepMultiple(value, step float64) bool {
	if step <= 0 {
		return true
	}
	rem := math.Abs(math.Remainder(value, step))
	return rem < modTolerance || math.Abs(rem-step) < modTolerance
}
