package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gridbot/internal/logger"
)

// Ticker держит последнюю цену из публичного потока bookTicker.
// Авторизация не нужна, поток только читается.
type Ticker struct {
	url  string
	pair string
	log  *logger.Logger

	conn *websocket.Conn

	mu        sync.Mutex
	lastPrice float64
	updatedAt time.Time

	stopCh       chan struct{}
	stopOnce     sync.Once
	reconnectMin time.Duration
	reconnectMax time.Duration
}

func New(baseURL, pair string, log *logger.Logger) *Ticker {
	return &Ticker{
		url:          fmt.Sprintf("%s/ws/%s@bookTicker", baseURL, strings.ToLower(pair)),
		pair:         pair,
		log:          log,
		stopCh:       make(chan struct{}),
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
	}
}

func (t *Ticker) Connect(ctx context.Context) error {
	t.logEntry().WithField("url", t.url).Info("Подключение к WS.")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("Не удалось подключиться к WS: %w", err)
	}

	t.conn = conn
	t.conn.SetReadLimit(1 << 20)

	t.logEntry().Info("WS соединение установлено.")

	go t.readLoop()

	return nil
}

// Last возвращает последнюю цену, время её получения и признак наличия.
func (t *Ticker) Last() (float64, time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastPrice <= 0 {
		return 0, time.Time{}, false
	}
	return t.lastPrice, t.updatedAt, true
}

func (t *Ticker) Close() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		if t.conn != nil {
			_ = t.conn.Close()
		}
	})
}

func (t *Ticker) logEntry() *logrus.Entry {
	return t.log.WithComponent("binance_ws").WithField("pair", t.pair)
}
