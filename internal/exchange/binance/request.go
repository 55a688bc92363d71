package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gridbot/internal/exchange"
)

const maxAttempts = 3

type venueError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth bool, out any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.WaitN(ctx, 1); err != nil {
			return err
		}

		retriable, err := c.doOnce(ctx, method, path, params, auth, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retriable {
			return err
		}

		if attempt < maxAttempts {
			wait := time.Duration(1<<attempt) * time.Second
			c.log.WithComponent("binance").WithError(err).Warn("Временная ошибка, повторяем запрос.")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, auth bool, out any) (bool, error) {
	query := url.Values{}
	for key, vals := range params {
		for _, val := range vals {
			query.Add(key, val)
		}
	}

	if auth {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("recvWindow", strconv.Itoa(recvWindowMs))
		query.Set("signature", sign(c.secret, query.Encode()))
	}

	urlStr := c.baseURL + path
	if len(query) > 0 {
		urlStr += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return false, fmt.Errorf("Не удалось создать запрос: %w", err)
	}
	if auth {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("Ошибка запроса: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("Не удалось прочитать ответ: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, fmt.Errorf("Неуспешный статус: %s", resp.Status)
	}

	if resp.StatusCode >= 400 {
		var envelope venueError
		if err := json.Unmarshal(data, &envelope); err != nil {
			return true, &exchange.DecodeError{Cause: err}
		}
		return false, &exchange.APIError{Code: envelope.Code, Msg: envelope.Msg}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return true, &exchange.DecodeError{Cause: err}
		}
	}
	return false, nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
