package reconcile

import (
	"math"
	"sort"

	"gridbot/internal/models"
	"gridbot/internal/strategy"
)

const priceTolerance = 1e-8

type Counters struct {
	Canceled  int
	Created   int
	Unchanged int
}

type Plan struct {
	ToCancel []string
	ToCreate []strategy.OrderSpec
	Counters Counters
}

// Diff сравнивает желаемый набор ордеров с наблюдаемым на бирже.
// Единственный ключ сопоставления — clientOrderId.
func Diff(desired []strategy.OrderSpec, actual []models.Order) Plan {
	desiredByID := make(map[string]strategy.OrderSpec, len(desired))
	for _, spec := range desired {
		desiredByID[spec.ClientID] = spec
	}

	actualByID := make(map[string]models.Order, len(actual))
	for _, order := range actual {
		actualByID[order.ClientID] = order
	}

	var plan Plan
	for _, order := range actual {
		spec, wanted := desiredByID[order.ClientID]
		if !wanted || needsUpdate(spec, order) {
			plan.ToCancel = append(plan.ToCancel, order.ClientID)
		}
	}
	sort.Strings(plan.ToCancel)

	for _, spec := range desired {
		order, exists := actualByID[spec.ClientID]
		if !exists || needsUpdate(spec, order) {
			plan.ToCreate = append(plan.ToCreate, spec)
		} else {
			plan.Counters.Unchanged++
		}
	}

	plan.Counters.Canceled = len(plan.ToCancel)
	plan.Counters.Created = len(plan.ToCreate)
	return plan
}

func needsUpdate(spec strategy.OrderSpec, order models.Order) bool {
	return math.Abs(spec.Price-order.Price) > priceTolerance ||
		math.Abs(spec.Qty-order.Qty) > priceTolerance
}
