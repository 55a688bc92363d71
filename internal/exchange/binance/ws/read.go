package ws

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

type bookTickerMessage struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

func (t *Ticker) readLoop() {
	t.logEntry().Debug("readLoop запущен.")

	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.logEntry().WithError(err).Warn("Ошибка чтения WS.")

			if !t.reconnect() {
				return
			}
			continue
		}

		var msg bookTickerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logEntry().WithError(err).Warn("Не удалось разобрать WS сообщение.")
			continue
		}

		bid, errBid := strconv.ParseFloat(msg.BidPrice, 64)
		ask, errAsk := strconv.ParseFloat(msg.AskPrice, 64)
		if errBid != nil || errAsk != nil || bid <= 0 || ask <= 0 {
			continue
		}

		t.mu.Lock()
		t.lastPrice = (bid + ask) / 2
		t.updatedAt = time.Now()
		t.mu.Unlock()
	}
}

func (t *Ticker) reconnect() bool {
	backoff := t.reconnectMin

	for {
		select {
		case <-t.stopCh:
			return false
		default:
		}

		t.logEntry().Info("Попытка переподключения к WS.")

		time.Sleep(backoff)

		conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
		if err != nil {
			t.logEntry().WithError(err).Warn("Не удалось переподключиться к WS.")
			backoff = t.nextBackoff(backoff)
			continue
		}

		if t.conn != nil {
			_ = t.conn.Close()
		}

		t.conn = conn
		t.conn.SetReadLimit(1 << 20)

		t.logEntry().Info("WS переподключён.")
		return true
	}
}

func (t *Ticker) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > t.reconnectMax {
		return t.reconnectMax
	}
	return next
}
