package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gridbot/internal/models"
)

const (
	eps = 1e-8

	dustThreshold = 1e-8
)

// Input — всё, что нужно стратегии на один расчёт. Время передаётся
// снаружи, функция не делает ни ввода-вывода, ни чтения часов.
type Input struct {
	Pair        string
	BasketID    string
	AnchorPrice float64
	Config      models.GridConfig

	TickSize    float64
	LotSize     float64
	MinNotional float64

	QuoteBalance float64
	BaseBalance  float64
	PositionBase float64
	Fills        []models.Fill
	LastPrice    float64

	BasketCreatedAt time.Time
	Now             time.Time
}

type OrderSpec struct {
	Side     models.OrderSide
	Type     models.OrderType
	Price    float64
	Qty      float64
	ClientID string
}

type Meta struct {
	BasketID             string
	AvgPrice             float64
	FilledLevels         int
	PlannedLevels        int
	RemainingQuoteBudget float64
	ReanchorSuggested    bool
}

type Plan struct {
	Buys  []OrderSpec
	Sells []OrderSpec
	Meta  Meta
}

type level struct {
	idx    int
	price  float64
	qty    float64
	filled bool
}

// Build вычисляет желаемый набор ордеров корзины из конфигурации,
// истории исполнений и текущей цены.
func Build(in Input) (Plan, error) {
	cfg := in.Config
	if len(cfg.LevelsPct) != len(cfg.AllocWeights) {
		return Plan{}, fmt.Errorf("Число уровней не совпадает с числом весов: %d != %d", len(cfg.LevelsPct), len(cfg.AllocWeights))
	}
	if in.AnchorPrice <= 0 {
		return Plan{}, fmt.Errorf("Некорректная якорная цена: %v", in.AnchorPrice)
	}

	levels := buildLevels(in)

	avgPrice, spentQuote, filledCount := scanFills(in.Fills, levels, in.TickSize)

	// Защита зоны.
	zoneBreached := false
	if cfg.HardStopMode == models.HardStopHard && cfg.HardStopPct > 0 {
		stopPrice := in.AnchorPrice * (1 - cfg.HardStopPct)
		kept := levels[:0]
		for _, lvl := range levels {
			if lvl.price < stopPrice-eps {
				continue
			}
			kept = append(kept, lvl)
		}
		levels = kept
		if in.LastPrice > 0 && in.LastPrice < stopPrice-eps {
			zoneBreached = true
		}
	}

	budget := cfg.MaxGridCapitalQuote - spentQuote
	if budget < 0 {
		budget = 0
	}

	buys, remaining := buildBuys(in, levels, budget, zoneBreached)
	sells := buildSells(in, avgPrice, filledCount)

	reanchor := false
	if len(buys) == 0 && len(sells) == 0 {
		flat := in.PositionBase <= dustThreshold
		expired := cfg.ReanchorTTLSec > 0 && in.Now.Sub(in.BasketCreatedAt) > time.Duration(cfg.ReanchorTTLSec)*time.Second
		reanchor = flat || expired
	}

	return Plan{
		Buys:  buys,
		Sells: sells,
		Meta: Meta{
			BasketID:             in.BasketID,
			AvgPrice:             avgPrice,
			FilledLevels:         filledCount,
			PlannedLevels:        len(levels),
			RemainingQuoteBudget: remaining,
			ReanchorSuggested:    reanchor,
		},
	}, nil
}

func buildLevels(in Input) []level {
	cfg := in.Config
	levels := make([]level, 0, len(cfg.LevelsPct))
	for i, pct := range cfg.LevelsPct {
		price := RoundDown(in.AnchorPrice*(1+pct/100), in.TickSize)
		if price <= 0 {
			continue
		}
		qty := RoundDown(cfg.MaxGridCapitalQuote*cfg.AllocWeights[i]/price, in.LotSize)
		if qty <= 0 || qty*price < in.MinNotional-eps {
			continue
		}
		levels = append(levels, level{idx: i, price: price, qty: qty})
	}
	return levels
}

// scanFills проходит историю исполнений один раз: считает VWAP покупок
// и помечает уровни, в которые попало хотя бы одно исполнение.
func scanFills(fills []models.Fill, levels []level, tickSize float64) (avgPrice, spentQuote float64, filledCount int) {
	var totalQty float64
	for _, fill := range fills {
		if fill.Side != models.OrderSideBuy {
			continue
		}
		totalQty += fill.Qty
		spentQuote += fill.Price * fill.Qty
		for j := range levels {
			if levels[j].filled {
				continue
			}
			if math.Abs(fill.Price-levels[j].price) <= tickSize+eps {
				levels[j].filled = true
			}
		}
	}
	for _, lvl := range levels {
		if lvl.filled {
			filledCount++
		}
	}
	return CalcVWAP(spentQuote, totalQty), spentQuote, filledCount
}

func buildBuys(in Input, levels []level, budget float64, zoneBreached bool) ([]OrderSpec, float64) {
	if zoneBreached {
		return nil, budget
	}

	candidates := make([]level, 0, len(levels))
	for _, lvl := range levels {
		if !lvl.filled {
			candidates = append(candidates, lvl)
		}
	}

	if in.Config.PlaceMode == models.PlaceModeOnlyNextK {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].price > candidates[j].price
		})
		near := candidates[:0]
		for _, lvl := range candidates {
			if lvl.price <= in.LastPrice+eps {
				near = append(near, lvl)
			}
		}
		candidates = near
		if in.Config.KNext > 0 && len(candidates) > in.Config.KNext {
			candidates = candidates[:in.Config.KNext]
		}
	}

	available := in.QuoteBalance
	var buys []OrderSpec
	for _, lvl := range candidates {
		cost := lvl.price * lvl.qty
		if cost > available+eps || cost > budget+eps {
			continue
		}
		buys = append(buys, OrderSpec{
			Side:     models.OrderSideBuy,
			Type:     models.OrderTypeLimit,
			Price:    lvl.price,
			Qty:      lvl.qty,
			ClientID: models.BuyClientID(in.Pair, in.BasketID, lvl.idx+1),
		})
		available -= cost
		budget -= cost
	}
	return buys, budget
}

func buildSells(in Input, avgPrice float64, filledCount int) []OrderSpec {
	cfg := in.Config
	pos := RoundDown(in.PositionBase, in.LotSize)
	if in.PositionBase <= dustThreshold || avgPrice <= 0 {
		return nil
	}

	tp := CalcTPPercent(cfg.TPStartPct, cfg.TPStepPct, cfg.TPMinPct, filledCount)

	tp1Price := RoundUp(avgPrice*(1+tp), in.TickSize)
	tp2Price := RoundUp(avgPrice*(1+tp+cfg.TP2DeltaPct), in.TickSize)
	trailPrice := RoundUp(avgPrice*(1+cfg.TrailingCallbackPct), in.TickSize)

	q1 := RoundDown(pos*cfg.TP1Share, in.LotSize)
	q2 := RoundDown(pos*cfg.TP2Share, in.LotSize)
	q3 := RoundDown(pos-q1-q2, in.LotSize)

	var sells []OrderSpec
	add := func(slot string, price, qty float64) {
		if qty <= 0 {
			return
		}
		sells = append(sells, OrderSpec{
			Side:     models.OrderSideSell,
			Type:     models.OrderTypeLimit,
			Price:    price,
			Qty:      qty,
			ClientID: models.SellClientID(in.Pair, in.BasketID, slot),
		})
	}
	add(models.SlotTP1, tp1Price, q1)
	add(models.SlotTP2, tp2Price, q2)
	add(models.SlotTrail, trailPrice, q3)
	return sells
}
