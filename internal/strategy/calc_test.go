package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundDown(t *testing.T) {
	assert.InDelta(t, 142.5, RoundDown(142.5, 0.001), 1e-9)
	assert.InDelta(t, 0.56, RoundDown(0.5614035, 0.01), 1e-9)
	assert.InDelta(t, 126.1, RoundDown(130*0.97, 0.001), 1e-9)
	assert.InDelta(t, 5.0, RoundDown(5.999, 1), 1e-9)

	// Нулевой шаг не меняет значение.
	assert.InDelta(t, 3.14159, RoundDown(3.14159, 0), 1e-12)
}

func TestRoundUp(t *testing.T) {
	assert.InDelta(t, 134.447, RoundUp(134.4463505, 0.001), 1e-9)
	assert.InDelta(t, 1.0, RoundUp(1.0, 0.01), 1e-9)
	assert.InDelta(t, 6.0, RoundUp(5.001, 1), 1e-9)
	assert.InDelta(t, 2.5, RoundUp(2.5, 0), 1e-12)
}

func TestCalcVWAP(t *testing.T) {
	assert.InDelta(t, 133.24712643678162, CalcVWAP(347.775, 2.61), 1e-9)
	assert.Zero(t, CalcVWAP(100, 0))
}

func TestCalcTPPercent(t *testing.T) {
	// Первый уровень не сужает TP.
	assert.InDelta(t, 0.012, CalcTPPercent(0.012, 0.0015, 0.003, 0), 1e-12)
	assert.InDelta(t, 0.012, CalcTPPercent(0.012, 0.0015, 0.003, 1), 1e-12)
	assert.InDelta(t, 0.009, CalcTPPercent(0.012, 0.0015, 0.003, 3), 1e-12)
	// Далёкий хвост упирается в минимум и не опускается ниже.
	assert.InDelta(t, 0.003, CalcTPPercent(0.012, 0.0015, 0.003, 50), 1e-12)
}
