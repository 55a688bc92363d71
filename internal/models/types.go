package models

import "time"

type OrderSide string
type OrderType string
type OrderStatus string
type BasketStatus string
type HardStopMode string
type PlaceMode string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderTypeLimit OrderType = "LIMIT"

	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"

	BasketStatusActive          BasketStatus = "active"
	BasketStatusClosed          BasketStatus = "closed"
	BasketStatusEmergencyClosed BasketStatus = "emergency_closed"

	HardStopNone       HardStopMode = "none"
	HardStopHard       HardStopMode = "hard"
	HardStopExtendZone HardStopMode = "extend_zone"

	PlaceModeAllUnfilled PlaceMode = "all_unfilled"
	PlaceModeOnlyNextK   PlaceMode = "only_next_k"
)

type Basket struct {
	ID          string       `json:"id"`
	Pair        string       `json:"pair"`
	AnchorPrice float64      `json:"anchor_price"`
	Status      BasketStatus `json:"status"`
	Config      GridConfig   `json:"config"`
	CreatedAt   time.Time    `json:"created_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
}

type Order struct {
	ClientID  string      `json:"client_id"`
	BasketID  string      `json:"basket_id"`
	VenueID   string      `json:"venue_id"`
	Pair      string      `json:"pair"`
	Side      OrderSide   `json:"side"`
	Type      OrderType   `json:"type"`
	Price     float64     `json:"price"`
	Qty       float64     `json:"qty"`
	FilledQty float64     `json:"filled_qty"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	FilledAt  *time.Time  `json:"filled_at,omitempty"`
}

type Fill struct {
	ID              string    `json:"id"`
	VenueOrderID    string    `json:"venue_order_id"`
	OrderClientID   string    `json:"order_client_id"`
	BasketID        string    `json:"basket_id"`
	Pair            string    `json:"pair"`
	Side            OrderSide `json:"side"`
	Price           float64   `json:"price"`
	Qty             float64   `json:"qty"`
	Commission      float64   `json:"commission"`
	CommissionAsset string    `json:"commission_asset"`
	ExecutedAt      time.Time `json:"executed_at"`
}

type AccountSnapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	QuoteFree  float64   `json:"quote_free"`
	BaseFree   float64   `json:"base_free"`
	TotalValue float64   `json:"total_value"`
}

type GridConfig struct {
	LevelsPct           []float64    `json:"levels_pct"`
	AllocWeights        []float64    `json:"alloc_weights"`
	MaxGridCapitalQuote float64      `json:"max_grid_capital_quote"`
	TPStartPct          float64      `json:"tp_start_pct"`
	TPStepPct           float64      `json:"tp_step_pct"`
	TPMinPct            float64      `json:"tp_min_pct"`
	TP2DeltaPct         float64      `json:"tp2_delta_pct"`
	TP1Share            float64      `json:"tp1_share"`
	TP2Share            float64      `json:"tp2_share"`
	TrailShare          float64      `json:"trail_share"`
	TrailingCallbackPct float64      `json:"trailing_callback_pct"`
	HardStopMode        HardStopMode `json:"hard_stop_mode"`
	HardStopPct         float64      `json:"hard_stop_pct"`
	PlaceMode           PlaceMode    `json:"place_mode"`
	KNext               int          `json:"k_next"`
	ReanchorCloseRatio  float64      `json:"reanchor_close_ratio"`
	ReanchorTTLSec      int64        `json:"reanchor_ttl_sec"`
}
