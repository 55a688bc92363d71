package strategy

import "math"

// Шаг 0 означает отсутствие квантования.
func RoundDown(value, step float64) float64 {
	if step == 0 {
		return value
	}
	return math.Floor(value/step+1e-9) * step
}

func RoundUp(value, step float64) float64 {
	if step == 0 {
		return value
	}
	return math.Ceil(value/step-1e-9) * step
}

func CalcVWAP(totalCost, totalQty float64) float64 {
	if totalQty == 0 {
		return 0
	}
	return totalCost / totalQty
}

// CalcTPPercent — динамический процент тейк-профита: сужается с каждым
// исполненным уровнем после первого, но не опускается ниже минимума.
func CalcTPPercent(startPct, stepPct, minPct float64, filledLevels int) float64 {
	extra := float64(0)
	if filledLevels > 1 {
		extra = float64(filledLevels-1) * stepPct
	}
	tp := startPct - extra
	if tp < minPct {
		return minPct
	}
	return tp
}
