package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gridbot/internal/models"
)

// Memory — реализация Store в памяти: для dry-run и тестов.
// Транзакции сериализуются между собой, откат восстанавливает снимок.
type Memory struct {
	mu   *sync.Mutex
	txMu *sync.Mutex

	baskets   map[string]models.Basket
	orders    map[string]models.Order
	fills     map[string]models.Fill
	snapshots []models.AccountSnapshot
	config    map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		mu:      &sync.Mutex{},
		txMu:    &sync.Mutex{},
		baskets: map[string]models.Basket{},
		orders:  map[string]models.Order{},
		fills:   map[string]models.Fill{},
		config:  map[string]string{},
	}
}

func (s *Memory) CreateBasket(ctx context.Context, basket *models.Basket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.baskets[basket.ID]; exists {
		return fmt.Errorf("Корзина уже существует: %s", basket.ID)
	}
	s.baskets[basket.ID] = *basket
	return nil
}

func (s *Memory) GetBasket(ctx context.Context, id string) (models.Basket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	basket, exists := s.baskets[id]
	if !exists {
		return models.Basket{}, fmt.Errorf("Корзина не найдена: %s", id)
	}
	return basket, nil
}

func (s *Memory) ActiveBaskets(ctx context.Context) ([]models.Basket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var baskets []models.Basket
	for _, basket := range s.baskets {
		if basket.Status == models.BasketStatusActive {
			baskets = append(baskets, basket)
		}
	}
	sort.Slice(baskets, func(i, j int) bool {
		return baskets[i].CreatedAt.Before(baskets[j].CreatedAt)
	})
	return baskets, nil
}

func (s *Memory) UpdateBasketAnchor(ctx context.Context, id string, anchor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	basket, exists := s.baskets[id]
	if !exists {
		return fmt.Errorf("Корзина не найдена: %s", id)
	}
	basket.AnchorPrice = anchor
	s.baskets[id] = basket
	return nil
}

func (s *Memory) UpdateBasketStatus(ctx context.Context, id string, status models.BasketStatus, closedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	basket, exists := s.baskets[id]
	if !exists {
		return fmt.Errorf("Корзина не найдена: %s", id)
	}
	basket.Status = status
	basket.ClosedAt = closedAt
	s.baskets[id] = basket
	return nil
}

func (s *Memory) UpsertOrder(ctx context.Context, order *models.Order) error {
	if order.Status == models.OrderStatusFilled && order.FilledAt == nil {
		return fmt.Errorf("Ордер %s помечен исполненным без времени исполнения.", order.ClientID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, exists := s.orders[order.ClientID]; exists {
		existing.VenueID = order.VenueID
		existing.Price = order.Price
		existing.Qty = order.Qty
		existing.FilledQty = order.FilledQty
		existing.Status = order.Status
		existing.UpdatedAt = order.UpdatedAt
		existing.FilledAt = order.FilledAt
		s.orders[order.ClientID] = existing
		return nil
	}
	s.orders[order.ClientID] = *order
	return nil
}

func (s *Memory) OrderByClientID(ctx context.Context, clientID string) (models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, exists := s.orders[clientID]
	return order, exists, nil
}

func (s *Memory) OrderByVenueID(ctx context.Context, venueID string) (models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if venueID == "" {
		return models.Order{}, false, nil
	}
	for _, order := range s.orders {
		if order.VenueID == venueID {
			return order, true, nil
		}
	}
	return models.Order{}, false, nil
}

func (s *Memory) OrdersByBasket(ctx context.Context, basketID string, statuses ...models.OrderStatus) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []models.Order
	for _, order := range s.orders {
		if order.BasketID != basketID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, order.Status) {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ClientID < orders[j].ClientID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *Memory) MarkOrderCanceled(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, exists := s.orders[clientID]
	if !exists {
		return nil
	}
	order.Status = models.OrderStatusCanceled
	order.UpdatedAt = time.Now()
	s.orders[clientID] = order
	return nil
}

func (s *Memory) UpdateOrderExecution(ctx context.Context, clientID string, filledQty float64, status models.OrderStatus, filledAt *time.Time) error {
	if status == models.OrderStatusFilled && filledAt == nil {
		return fmt.Errorf("Ордер %s помечен исполненным без времени исполнения.", clientID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, exists := s.orders[clientID]
	if !exists {
		return fmt.Errorf("Ордер не найден: %s", clientID)
	}
	order.FilledQty = filledQty
	order.Status = status
	order.FilledAt = filledAt
	order.UpdatedAt = time.Now()
	s.orders[clientID] = order
	return nil
}

func (s *Memory) InsertFill(ctx context.Context, fill *models.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fills[fill.ID]; exists {
		return fmt.Errorf("Исполнение уже записано: %s", fill.ID)
	}
	s.fills[fill.ID] = *fill
	return nil
}

func (s *Memory) HasFill(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.fills[id]
	return exists, nil
}

func (s *Memory) FillsByBasket(ctx context.Context, basketID string) ([]models.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fills []models.Fill
	for _, fill := range s.fills {
		if fill.BasketID == basketID {
			fills = append(fills, fill)
		}
	}
	sort.Slice(fills, func(i, j int) bool {
		if fills[i].ExecutedAt.Equal(fills[j].ExecutedAt) {
			return fills[i].ID < fills[j].ID
		}
		return fills[i].ExecutedAt.Before(fills[j].ExecutedAt)
	})
	return fills, nil
}

func (s *Memory) PositionBase(ctx context.Context, basketID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var position float64
	for _, fill := range s.fills {
		if fill.BasketID != basketID {
			continue
		}
		switch fill.Side {
		case models.OrderSideBuy:
			position += fill.Qty
		case models.OrderSideSell:
			position -= fill.Qty
		}
	}
	return position, nil
}

func (s *Memory) InsertSnapshot(ctx context.Context, snap *models.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, *snap)
	return nil
}

func (s *Memory) Snapshots() []models.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AccountSnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

func (s *Memory) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, exists := s.config[key]
	return value, exists, nil
}

func (s *Memory) SetConfigValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

func (s *Memory) WithTx(ctx context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	backup := s.snapshotState()
	if err := fn(s); err != nil {
		s.restoreState(backup)
		return err
	}
	return nil
}

type memoryState struct {
	baskets   map[string]models.Basket
	orders    map[string]models.Order
	fills     map[string]models.Fill
	snapshots []models.AccountSnapshot
	config    map[string]string
}

func (s *Memory) snapshotState() memoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := memoryState{
		baskets:   make(map[string]models.Basket, len(s.baskets)),
		orders:    make(map[string]models.Order, len(s.orders)),
		fills:     make(map[string]models.Fill, len(s.fills)),
		snapshots: make([]models.AccountSnapshot, len(s.snapshots)),
		config:    make(map[string]string, len(s.config)),
	}
	for k, v := range s.baskets {
		state.baskets[k] = v
	}
	for k, v := range s.orders {
		state.orders[k] = v
	}
	for k, v := range s.fills {
		state.fills[k] = v
	}
	copy(state.snapshots, s.snapshots)
	for k, v := range s.config {
		state.config[k] = v
	}
	return state
}

func (s *Memory) restoreState(state memoryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baskets = state.baskets
	s.orders = state.orders
	s.fills = state.fills
	s.snapshots = state.snapshots
	s.config = state.config
}

func containsStatus(statuses []models.OrderStatus, status models.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
