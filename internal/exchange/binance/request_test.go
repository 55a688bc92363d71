package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/exchange"
	"gridbot/internal/logger"
	"gridbot/internal/models"
)

const (
	testKey    = "test-key"
	testSecret = "test-secret"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "panic"})
}

func TestSignedRequestCarriesSignature(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		w.Write([]byte(`{"balances":[{"asset":"USDC","free":"1000.5","locked":"0"}]}`))
	}))
	defer server.Close()

	client := New(server.URL, testKey, testSecret, testLogger())
	balances, err := client.AccountInfo(t.Context())
	require.NoError(t, err)
	assert.InDelta(t, 1000.5, balances["USDC"].Free, 1e-9)

	require.NotNil(t, captured)
	assert.Equal(t, testKey, captured.Header.Get("X-MBX-APIKEY"))

	query := captured.URL.Query()
	assert.NotEmpty(t, query.Get("timestamp"))
	assert.Equal(t, "60000", query.Get("recvWindow"))

	signature := query.Get("signature")
	require.NotEmpty(t, signature)

	unsigned := url.Values{}
	for key, vals := range query {
		if key == "signature" {
			continue
		}
		for _, val := range vals {
			unsigned.Add(key, val)
		}
	}
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(unsigned.Encode()))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), signature)
}

func TestVenueErrorBecomesTypedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Duplicate order sent."}`))
	}))
	defer server.Close()

	client := New(server.URL, testKey, testSecret, testLogger())
	_, err := client.PlaceOrder(t.Context(), exchange.OrderRequest{
		Pair:     "SOLUSDC",
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeLimit,
		Price:    142.5,
		Qty:      0.56,
		ClientID: "SOLUSDC_b1_B_1",
		TickSize: 0.001,
		LotSize:  0.01,
	})
	require.Error(t, err)
	assert.True(t, exchange.IsDuplicateOrder(err))

	var apiErr *exchange.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.EqualValues(t, -2010, apiErr.Code)
	assert.Equal(t, "Duplicate order sent.", apiErr.Msg)
}

func TestUnknownOrderOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2013,"msg":"Unknown order sent."}`))
	}))
	defer server.Close()

	client := New(server.URL, testKey, testSecret, testLogger())
	err := client.CancelOrder(t.Context(), "SOLUSDC", "SOLUSDC_b1_B_1")
	require.Error(t, err)
	assert.True(t, exchange.IsUnknownOrder(err))
}

func TestRetryAfterTooManyRequests(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"symbol":"SOLUSDC","price":"148.123"}`))
	}))
	defer server.Close()

	client := New(server.URL, testKey, testSecret, testLogger())
	price, err := client.CurrentPrice(t.Context(), "SOLUSDC")
	require.NoError(t, err)
	assert.InDelta(t, 148.123, price, 1e-9)
	assert.Equal(t, 2, calls)
}

func TestMyTradesMapsSides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":1,"orderId":101,"price":"142.5","qty":"0.56","commission":"0.01","commissionAsset":"USDC","time":1714550000000,"isBuyer":true},
			{"id":2,"orderId":102,"price":"144.2","qty":"0.22","commission":"0.02","commissionAsset":"USDC","time":1714550100000,"isBuyer":false}
		]`))
	}))
	defer server.Close()

	client := New(server.URL, testKey, testSecret, testLogger())
	fills, err := client.MyTrades(t.Context(), "SOLUSDC", 0)
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, "1", fills[0].ID)
	assert.Equal(t, "101", fills[0].VenueOrderID)
	assert.Equal(t, models.OrderSideBuy, fills[0].Side)
	assert.InDelta(t, 142.5, fills[0].Price, 1e-9)

	assert.Equal(t, models.OrderSideSell, fills[1].Side)
	assert.InDelta(t, 0.22, fills[1].Qty, 1e-9)
}

func TestFormatWithStep(t *testing.T) {
	assert.Equal(t, "142.500", formatWithStep(142.5, 0.001))
	assert.Equal(t, "0.56", formatWithStep(0.5614, 0.01))
	assert.Equal(t, "3", formatWithStep(3.7, 1))
	assert.Equal(t, "2.5", formatWithStep(2.5, 0))
}
