package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/models"
)

func gridConfig() models.GridConfig {
	return models.GridConfig{
		LevelsPct:           []float64{-5, -10, -15, -20, -25, -30},
		AllocWeights:        []float64{0.08, 0.12, 0.15, 0.18, 0.22, 0.25},
		MaxGridCapitalQuote: 1000,
		TPStartPct:          0.012,
		TPStepPct:           0.0015,
		TPMinPct:            0.003,
		TP2DeltaPct:         0.008,
		TP1Share:            0.4,
		TP2Share:            0.35,
		TrailShare:          0.25,
		TrailingCallbackPct: 0.02,
		HardStopMode:        models.HardStopNone,
		PlaceMode:           models.PlaceModeOnlyNextK,
		KNext:               2,
		ReanchorTTLSec:      86400,
	}
}

func baseInput() Input {
	return Input{
		Pair:            "SOLUSDC",
		BasketID:        "0Mqz3k1xQhT7Ab",
		AnchorPrice:     150,
		Config:          gridConfig(),
		TickSize:        0.001,
		LotSize:         0.01,
		MinNotional:     5,
		QuoteBalance:    10000,
		LastPrice:       148,
		BasketCreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Now:             time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC),
	}
}

func buyFill(price, qty float64) models.Fill {
	return models.Fill{
		Side:  models.OrderSideBuy,
		Price: price,
		Qty:   qty,
	}
}

func TestBuildFreshGrid(t *testing.T) {
	plan, err := Build(baseInput())
	require.NoError(t, err)

	require.Len(t, plan.Buys, 2)
	assert.InDelta(t, 142.5, plan.Buys[0].Price, 1e-9)
	assert.InDelta(t, 0.56, plan.Buys[0].Qty, 1e-9)
	assert.Equal(t, "SOLUSDC_0Mqz3k1xQhT7Ab_B_1", plan.Buys[0].ClientID)
	assert.InDelta(t, 135.0, plan.Buys[1].Price, 1e-9)
	assert.InDelta(t, 0.88, plan.Buys[1].Qty, 1e-9)
	assert.Equal(t, "SOLUSDC_0Mqz3k1xQhT7Ab_B_2", plan.Buys[1].ClientID)

	assert.Empty(t, plan.Sells)
	assert.Equal(t, 6, plan.Meta.PlannedLevels)
	assert.False(t, plan.Meta.ReanchorSuggested)
}

func TestBuildSellsAfterThreeLevels(t *testing.T) {
	in := baseInput()
	in.Fills = []models.Fill{
		buyFill(142.5, 0.56),
		buyFill(135.0, 0.88),
		buyFill(127.5, 1.17),
	}
	in.PositionBase = 2.61
	in.LastPrice = 128

	plan, err := Build(in)
	require.NoError(t, err)

	assert.Equal(t, 3, plan.Meta.FilledLevels)
	assert.InDelta(t, 133.24712643678162, plan.Meta.AvgPrice, 1e-9)

	require.Len(t, plan.Sells, 3)

	tp1 := plan.Sells[0]
	assert.Equal(t, "SOLUSDC_0Mqz3k1xQhT7Ab_S_TP1", tp1.ClientID)
	assert.InDelta(t, 134.447, tp1.Price, 1e-9)
	assert.InDelta(t, 1.04, tp1.Qty, 1e-9)

	tp2 := plan.Sells[1]
	assert.Equal(t, "SOLUSDC_0Mqz3k1xQhT7Ab_S_TP2", tp2.ClientID)
	assert.InDelta(t, 135.513, tp2.Price, 1e-9)
	assert.InDelta(t, 0.91, tp2.Qty, 1e-9)

	trail := plan.Sells[2]
	assert.Equal(t, "SOLUSDC_0Mqz3k1xQhT7Ab_S_TRAIL", trail.ClientID)
	assert.InDelta(t, 135.913, trail.Price, 1e-9)
	assert.InDelta(t, 0.66, trail.Qty, 1e-9)

	total := tp1.Qty + tp2.Qty + trail.Qty
	assert.LessOrEqual(t, total, in.PositionBase+1e-8)
	assert.GreaterOrEqual(t, total, in.PositionBase-3*in.LotSize)
}

func TestBuildRespectsBudgetAndSteps(t *testing.T) {
	in := baseInput()
	in.Config.PlaceMode = models.PlaceModeAllUnfilled

	plan, err := Build(in)
	require.NoError(t, err)

	var spent float64
	for _, buy := range plan.Buys {
		spent += buy.Price * buy.Qty

		priceSteps := buy.Price / in.TickSize
		assert.InDelta(t, math.Round(priceSteps), priceSteps, 1e-6)
		qtySteps := buy.Qty / in.LotSize
		assert.InDelta(t, math.Round(qtySteps), qtySteps, 1e-6)
	}
	assert.LessOrEqual(t, spent, in.Config.MaxGridCapitalQuote*(1+1e-6))
	assert.InDelta(t, in.Config.MaxGridCapitalQuote-spent, plan.Meta.RemainingQuoteBudget, 1e-6)
}

func TestBuildOnlyNextKCapsBuys(t *testing.T) {
	for k := 1; k <= 6; k++ {
		in := baseInput()
		in.Config.KNext = k
		plan, err := Build(in)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(plan.Buys), k)
	}
}

func TestBuildSkipsLevelsBelowMinNotional(t *testing.T) {
	in := baseInput()
	in.MinNotional = 100

	plan, err := Build(in)
	require.NoError(t, err)

	// Первый уровень: 1000*0.08 = 80 < 100, выпадает из плана.
	assert.Equal(t, 5, plan.Meta.PlannedLevels)
	for _, buy := range plan.Buys {
		assert.GreaterOrEqual(t, buy.Price*buy.Qty, 100.0)
	}
}

func TestBuildInsufficientBalance(t *testing.T) {
	in := baseInput()
	in.QuoteBalance = 100

	plan, err := Build(in)
	require.NoError(t, err)

	// Хватает только на первый уровень (79.8).
	require.Len(t, plan.Buys, 1)
	assert.InDelta(t, 142.5, plan.Buys[0].Price, 1e-9)
}

func TestBuildHardStopDropsLevels(t *testing.T) {
	in := baseInput()
	in.Config.HardStopMode = models.HardStopHard
	in.Config.HardStopPct = 0.2
	in.Config.PlaceMode = models.PlaceModeAllUnfilled

	plan, err := Build(in)
	require.NoError(t, err)

	// Стоп на 120: уровни -25 и -30 отфильтрованы.
	assert.Equal(t, 4, plan.Meta.PlannedLevels)
	for _, buy := range plan.Buys {
		assert.GreaterOrEqual(t, buy.Price, 150*(1-0.2)-1e-9)
	}
}

func TestBuildHardStopBreachedNoBuys(t *testing.T) {
	in := baseInput()
	in.Config.HardStopMode = models.HardStopHard
	in.Config.HardStopPct = 0.2
	in.LastPrice = 110

	plan, err := Build(in)
	require.NoError(t, err)
	assert.Empty(t, plan.Buys)
}

func TestBuildTPConvergesToFloor(t *testing.T) {
	in := baseInput()
	var fills []models.Fill
	for i := 0; i < 6; i++ {
		price := 150 * (1 + in.Config.LevelsPct[i]/100)
		fills = append(fills, buyFill(price, 1))
	}
	in.Fills = fills
	in.PositionBase = 6
	in.LastPrice = 100
	// Шаг 0.003: 0.012 - 5*0.003 = -0.003, ниже минимума 0.003.
	in.Config.TPStepPct = 0.003

	plan, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, 6, plan.Meta.FilledLevels)

	require.NotEmpty(t, plan.Sells)
	avg := plan.Meta.AvgPrice
	// При шести уровнях TP упирается в минимум и не опускается ниже.
	want := RoundUp(avg*(1+in.Config.TPMinPct), in.TickSize)
	assert.InDelta(t, want, plan.Sells[0].Price, 1e-9)
}

func TestBuildFlatPositionNoSells(t *testing.T) {
	in := baseInput()
	in.PositionBase = 0

	plan, err := Build(in)
	require.NoError(t, err)
	assert.Empty(t, plan.Sells)
}

func TestBuildReanchorSuggestedWhenIdle(t *testing.T) {
	in := baseInput()
	in.QuoteBalance = 0
	in.PositionBase = 0

	plan, err := Build(in)
	require.NoError(t, err)
	assert.Empty(t, plan.Buys)
	assert.Empty(t, plan.Sells)
	assert.True(t, plan.Meta.ReanchorSuggested)
}

func TestBuildNoReanchorWhilePositionOpen(t *testing.T) {
	in := baseInput()
	in.QuoteBalance = 0
	in.PositionBase = 1.5
	in.Fills = []models.Fill{buyFill(135, 1.5)}

	plan, err := Build(in)
	require.NoError(t, err)
	// Есть позиция, значит есть продажи и перенос якоря не предлагается.
	assert.NotEmpty(t, plan.Sells)
	assert.False(t, plan.Meta.ReanchorSuggested)
}

func TestBuildReanchorByTTL(t *testing.T) {
	in := baseInput()
	in.QuoteBalance = 0
	// Позиция есть, но без истории исполнений продаж нет: перенос якоря
	// предлагается только по истечении TTL.
	in.PositionBase = 0.5
	in.Config.ReanchorTTLSec = 3600
	in.Now = in.BasketCreatedAt.Add(2 * time.Hour)

	plan, err := Build(in)
	require.NoError(t, err)
	assert.True(t, plan.Meta.ReanchorSuggested)
}

func TestBuildRejectsMismatchedWeights(t *testing.T) {
	in := baseInput()
	in.Config.AllocWeights = []float64{0.5, 0.5}

	_, err := Build(in)
	require.Error(t, err)
}
