package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/models"
)

func validGrid() models.GridConfig {
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

func TestValidateGridAccepts(t *testing.T) {
	require.NoError(t, ValidateGrid(validGrid()))
}

func TestValidateGridRejectsFractionLookingLevels(t *testing.T) {
	grid := validGrid()
	// Уровни в долях (-0.05 вместо -5) — чужая единица измерения.
	grid.LevelsPct = []float64{-0.05, -0.1, -0.15, -0.2, -0.25, -0.3}
	assert.Error(t, ValidateGrid(grid))
}

func TestValidateGridRejectsPositiveLevels(t *testing.T) {
	grid := validGrid()
	grid.LevelsPct[2] = 15
	assert.Error(t, ValidateGrid(grid))
}

func TestValidateGridRejectsBadWeights(t *testing.T) {
	grid := validGrid()
	grid.AllocWeights[0] = 0.5
	assert.Error(t, ValidateGrid(grid), "сумма весов не равна 1")

	grid = validGrid()
	grid.AllocWeights = grid.AllocWeights[:5]
	assert.Error(t, ValidateGrid(grid), "длины не совпадают")
}

func TestValidateGridRejectsBadShares(t *testing.T) {
	grid := validGrid()
	grid.TrailShare = 0.5
	assert.Error(t, ValidateGrid(grid))
}

func TestValidateGridRejectsPercentLookingTP(t *testing.T) {
	grid := validGrid()
	// 1.2 выглядит как процент, TP задаётся долей.
	grid.TPStartPct = 1.2
	assert.Error(t, ValidateGrid(grid))
}

func TestValidateGridHardStopNeedsPct(t *testing.T) {
	grid := validGrid()
	grid.HardStopMode = models.HardStopHard
	assert.Error(t, ValidateGrid(grid))

	grid.HardStopPct = 0.35
	assert.NoError(t, ValidateGrid(grid))
}

func TestValidateGridOnlyNextKNeedsK(t *testing.T) {
	grid := validGrid()
	grid.KNext = 0
	assert.Error(t, ValidateGrid(grid))

	grid.PlaceMode = models.PlaceModeAllUnfilled
	assert.NoError(t, ValidateGrid(grid))
}

func TestValidateGridUnknownModes(t *testing.T) {
	grid := validGrid()
	grid.HardStopMode = "soft"
	assert.Error(t, ValidateGrid(grid))

	grid = validGrid()
	grid.PlaceMode = "every_other"
	assert.Error(t, ValidateGrid(grid))
}
