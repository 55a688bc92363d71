package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gridbot/internal/models"
)

type basketRow struct {
	ID          string `gorm:"primaryKey;size:32"`
	Pair        string `gorm:"size:20;index"`
	AnchorPrice float64
	Status      string `gorm:"size:24;index"`
	Config      []byte
	CreatedAt   time.Time
	ClosedAt    *time.Time
}

func (basketRow) TableName() string { return "baskets" }

type orderRow struct {
	ClientOrderID string `gorm:"primaryKey;size:36"`
	BasketID      string `gorm:"size:32;index"`
	VenueID       string `gorm:"size:32;index"`
	Pair          string `gorm:"size:20"`
	Side          string `gorm:"size:8"`
	Type          string `gorm:"size:20"`
	Price         float64
	Qty           float64
	FilledQty     float64
	Status        string `gorm:"size:24;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FilledAt      *time.Time
}

func (orderRow) TableName() string { return "orders" }

type fillRow struct {
	ID              string `gorm:"primaryKey;size:32"`
	VenueOrderID    string `gorm:"size:32;index"`
	OrderClientID   string `gorm:"size:36;index"`
	BasketID        string `gorm:"size:32;index"`
	Pair            string `gorm:"size:20"`
	Side            string `gorm:"size:8"`
	Price           float64
	Qty             float64
	Commission      float64
	CommissionAsset string `gorm:"size:16"`
	ExecutedAt      time.Time
}

func (fillRow) TableName() string { return "fills" }

type snapshotRow struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time
	QuoteFree  float64
	BaseFree   float64
	TotalValue float64
}

func (snapshotRow) TableName() string { return "account_snapshots" }

type configRow struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string
}

func (configRow) TableName() string { return "bot_config" }

// Postgres — основная реализация Store поверх gorm.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("Не удалось подключиться к базе: %w", err)
	}

	if err := db.AutoMigrate(&basketRow{}, &orderRow{}, &fillRow{}, &snapshotRow{}, &configRow{}); err != nil {
		return nil, fmt.Errorf("Не удалось выполнить миграцию схемы: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (s *Postgres) CreateBasket(ctx context.Context, basket *models.Basket) error {
	blob, err := json.Marshal(basket.Config)
	if err != nil {
		return fmt.Errorf("Не удалось сериализовать конфигурацию корзины: %w", err)
	}
	row := basketRow{
		ID:          basket.ID,
		Pair:        basket.Pair,
		AnchorPrice: basket.AnchorPrice,
		Status:      string(basket.Status),
		Config:      blob,
		CreatedAt:   basket.CreatedAt,
		ClosedAt:    basket.ClosedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Postgres) GetBasket(ctx context.Context, id string) (models.Basket, error) {
	var row basketRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.Basket{}, fmt.Errorf("Корзина не найдена: %s: %w", id, err)
	}
	return basketFromRow(row)
}

func (s *Postgres) ActiveBaskets(ctx context.Context) ([]models.Basket, error) {
	var rows []basketRow
	err := s.db.WithContext(ctx).
		Where("status = ?", string(models.BasketStatusActive)).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	baskets := make([]models.Basket, 0, len(rows))
	for _, row := range rows {
		basket, err := basketFromRow(row)
		if err != nil {
			return nil, err
		}
		baskets = append(baskets, basket)
	}
	return baskets, nil
}

func (s *Postgres) UpdateBasketAnchor(ctx context.Context, id string, anchor float64) error {
	return s.db.WithContext(ctx).Model(&basketRow{}).
		Where("id = ?", id).
		Update("anchor_price", anchor).Error
}

func (s *Postgres) UpdateBasketStatus(ctx context.Context, id string, status models.BasketStatus, closedAt *time.Time) error {
	return s.db.WithContext(ctx).Model(&basketRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    string(status),
			"closed_at": closedAt,
		}).Error
}

func (s *Postgres) UpsertOrder(ctx context.Context, order *models.Order) error {
	if order.Status == models.OrderStatusFilled && order.FilledAt == nil {
		return fmt.Errorf("Ордер %s помечен исполненным без времени исполнения.", order.ClientID)
	}
	row := orderToRow(order)

	res := s.db.WithContext(ctx).Model(&orderRow{}).
		Where("client_order_id = ?", order.ClientID).
		Updates(map[string]interface{}{
			"venue_id":   row.VenueID,
			"price":      row.Price,
			"qty":        row.Qty,
			"filled_qty": row.FilledQty,
			"status":     row.Status,
			"updated_at": row.UpdatedAt,
			"filled_at":  row.FilledAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.db.WithContext(ctx).Create(&row).Error
	}
	return nil
}

func (s *Postgres) OrderByClientID(ctx context.Context, clientID string) (models.Order, bool, error) {
	var row orderRow
	err := s.db.WithContext(ctx).First(&row, "client_order_id = ?", clientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Order{}, false, nil
	}
	if err != nil {
		return models.Order{}, false, err
	}
	return orderFromRow(row), true, nil
}

func (s *Postgres) OrderByVenueID(ctx context.Context, venueID string) (models.Order, bool, error) {
	var row orderRow
	err := s.db.WithContext(ctx).First(&row, "venue_id = ?", venueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Order{}, false, nil
	}
	if err != nil {
		return models.Order{}, false, err
	}
	return orderFromRow(row), true, nil
}

func (s *Postgres) OrdersByBasket(ctx context.Context, basketID string, statuses ...models.OrderStatus) ([]models.Order, error) {
	query := s.db.WithContext(ctx).Where("basket_id = ?", basketID)
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}
		query = query.Where("status IN ?", values)
	}

	var rows []orderRow
	if err := query.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, orderFromRow(row))
	}
	return orders, nil
}

func (s *Postgres) MarkOrderCanceled(ctx context.Context, clientID string) error {
	return s.db.WithContext(ctx).Model(&orderRow{}).
		Where("client_order_id = ?", clientID).
		Updates(map[string]interface{}{
			"status":     string(models.OrderStatusCanceled),
			"updated_at": time.Now(),
		}).Error
}

func (s *Postgres) UpdateOrderExecution(ctx context.Context, clientID string, filledQty float64, status models.OrderStatus, filledAt *time.Time) error {
	if status == models.OrderStatusFilled && filledAt == nil {
		return fmt.Errorf("Ордер %s помечен исполненным без времени исполнения.", clientID)
	}
	return s.db.WithContext(ctx).Model(&orderRow{}).
		Where("client_order_id = ?", clientID).
		Updates(map[string]interface{}{
			"filled_qty": filledQty,
			"status":     string(status),
			"filled_at":  filledAt,
			"updated_at": time.Now(),
		}).Error
}

func (s *Postgres) InsertFill(ctx context.Context, fill *models.Fill) error {
	row := fillRow{
		ID:              fill.ID,
		VenueOrderID:    fill.VenueOrderID,
		OrderClientID:   fill.OrderClientID,
		BasketID:        fill.BasketID,
		Pair:            fill.Pair,
		Side:            string(fill.Side),
		Price:           fill.Price,
		Qty:             fill.Qty,
		Commission:      fill.Commission,
		CommissionAsset: fill.CommissionAsset,
		ExecutedAt:      fill.ExecutedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Postgres) HasFill(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&fillRow{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (s *Postgres) FillsByBasket(ctx context.Context, basketID string) ([]models.Fill, error) {
	var rows []fillRow
	err := s.db.WithContext(ctx).
		Where("basket_id = ?", basketID).
		Order("executed_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	fills := make([]models.Fill, 0, len(rows))
	for _, row := range rows {
		fills = append(fills, models.Fill{
			ID:              row.ID,
			VenueOrderID:    row.VenueOrderID,
			OrderClientID:   row.OrderClientID,
			BasketID:        row.BasketID,
			Pair:            row.Pair,
			Side:            models.OrderSide(row.Side),
			Price:           row.Price,
			Qty:             row.Qty,
			Commission:      row.Commission,
			CommissionAsset: row.CommissionAsset,
			ExecutedAt:      row.ExecutedAt,
		})
	}
	return fills, nil
}

func (s *Postgres) PositionBase(ctx context.Context, basketID string) (float64, error) {
	var totals []struct {
		Side  string
		Total float64
	}
	err := s.db.WithContext(ctx).Model(&fillRow{}).
		Select("side, SUM(qty) AS total").
		Where("basket_id = ?", basketID).
		Group("side").
		Scan(&totals).Error
	if err != nil {
		return 0, err
	}

	var position float64
	for _, row := range totals {
		switch models.OrderSide(row.Side) {
		case models.OrderSideBuy:
			position += row.Total
		case models.OrderSideSell:
			position -= row.Total
		}
	}
	return position, nil
}

func (s *Postgres) InsertSnapshot(ctx context.Context, snap *models.AccountSnapshot) error {
	row := snapshotRow{
		Timestamp:  snap.Timestamp,
		QuoteFree:  snap.QuoteFree,
		BaseFree:   snap.BaseFree,
		TotalValue: snap.TotalValue,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Postgres) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var row configRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *Postgres) SetConfigValue(ctx context.Context, key, value string) error {
	res := s.db.WithContext(ctx).Model(&configRow{}).
		Where("key = ?", key).
		Update("value", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.db.WithContext(ctx).Create(&configRow{Key: key, Value: value}).Error
	}
	return nil
}

func (s *Postgres) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx})
	})
}

func basketFromRow(row basketRow) (models.Basket, error) {
	var cfg models.GridConfig
	if len(row.Config) > 0 {
		if err := json.Unmarshal(row.Config, &cfg); err != nil {
			return models.Basket{}, fmt.Errorf("Не удалось разобрать конфигурацию корзины %s: %w", row.ID, err)
		}
	}
	return models.Basket{
		ID:          row.ID,
		Pair:        row.Pair,
		AnchorPrice: row.AnchorPrice,
		Status:      models.BasketStatus(row.Status),
		Config:      cfg,
		CreatedAt:   row.CreatedAt,
		ClosedAt:    row.ClosedAt,
	}, nil
}

func orderToRow(order *models.Order) orderRow {
	return orderRow{
		ClientOrderID: order.ClientID,
		BasketID:      order.BasketID,
		VenueID:       order.VenueID,
		Pair:          order.Pair,
		Side:          string(order.Side),
		Type:          string(order.Type),
		Price:         order.Price,
		Qty:           order.Qty,
		FilledQty:     order.FilledQty,
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		FilledAt:      order.FilledAt,
	}
}

func orderFromRow(row orderRow) models.Order {
	return models.Order{
		ClientID:  row.ClientOrderID,
		BasketID:  row.BasketID,
		VenueID:   row.VenueID,
		Pair:      row.Pair,
		Side:      models.OrderSide(row.Side),
		Type:      models.OrderType(row.Type),
		Price:     row.Price,
		Qty:       row.Qty,
		FilledQty: row.FilledQty,
		Status:    models.OrderStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		FilledAt:  row.FilledAt,
	}
}
