package executor

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/exchange"
	"gridbot/internal/filters"
	"gridbot/internal/logger"
	"gridbot/internal/models"
	"gridbot/internal/reconcile"
	"gridbot/internal/store"
	"gridbot/internal/strategy"
)

type fakeExchange struct {
	ops []string

	cancelErr map[string]error
	placeErr  map[string]error

	venueSeq int
}

func (f *fakeExchange) AccountInfo(ctx context.Context) (map[string]exchange.Balance, error) {
	return map[string]exchange.Balance{}, nil
}

func (f *fakeExchange) OpenOrders(ctx context.Context, pair string) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (models.Order, error) {
	f.ops = append(f.ops, "place:"+req.ClientID)
	if err := f.placeErr[req.ClientID]; err != nil {
		return models.Order{}, err
	}
	f.venueSeq++
	return models.Order{
		ClientID: req.ClientID,
		VenueID:  strconv.Itoa(100000 + f.venueSeq),
		Pair:     req.Pair,
		Side:     req.Side,
		Type:     req.Type,
		Price:    req.Price,
		Qty:      req.Qty,
		Status:   models.OrderStatusNew,
	}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, pair, clientID string) error {
	f.ops = append(f.ops, "cancel:"+clientID)
	return f.cancelErr[clientID]
}

func (f *fakeExchange) CurrentPrice(ctx context.Context, pair string) (float64, error) {
	return 148, nil
}

func (f *fakeExchange) MyTrades(ctx context.Context, pair string, sinceMs int64) ([]models.Fill, error) {
	return nil, nil
}

func (f *fakeExchange) ExchangeInfo(ctx context.Context, pair string) (exchange.Filters, error) {
	return exchange.Filters{
		TickSize:    0.001,
		LotSize:     0.01,
		MinNotional: 5,
		BaseAsset:   "SOL",
		QuoteAsset:  "USDC",
	}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "panic"})
}

func testBasket() models.Basket {
	return models.Basket{
		ID:        "b1",
		Pair:      "SOLUSDC",
		Status:    models.BasketStatusActive,
		CreatedAt: time.Now(),
	}
}

func buySpec(clientID string, price, qty float64) strategy.OrderSpec {
	return strategy.OrderSpec{
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeLimit,
		Price:    price,
		Qty:      qty,
		ClientID: clientID,
	}
}

func newExecutor(client *fakeExchange, st store.Store) *Executor {
	log := testLogger()
	return New(client, st, filters.NewCache(client, log), log, false)
}

func TestApplyCancelsBeforeCreates(t *testing.T) {
	client := &fakeExchange{}
	st := store.NewMemory()
	exec := newExecutor(client, st)

	plan := reconcile.Plan{
		ToCancel: []string{"SOLUSDC_b1_B_3"},
		ToCreate: []strategy.OrderSpec{buySpec("SOLUSDC_b1_B_1", 142.5, 0.56)},
	}

	result, err := exec.Apply(context.Background(), testBasket(), plan)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Canceled)
	assert.Equal(t, 1, result.Created)

	require.Len(t, client.ops, 2)
	assert.Equal(t, "cancel:SOLUSDC_b1_B_3", client.ops[0])
	assert.Equal(t, "place:SOLUSDC_b1_B_1", client.ops[1])

	stored, found, err := st.OrderByClientID(context.Background(), "SOLUSDC_b1_B_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.OrderStatusNew, stored.Status)
	assert.NotEmpty(t, stored.VenueID)
}

func TestApplyAbsorbsUnknownOrderOnCancel(t *testing.T) {
	client := &fakeExchange{
		cancelErr: map[string]error{
			"SOLUSDC_b1_B_3": &exchange.APIError{Code: exchange.CodeUnknownOrder, Msg: "Unknown order sent."},
		},
	}
	st := store.NewMemory()
	order := models.Order{ClientID: "SOLUSDC_b1_B_3", BasketID: "b1", Pair: "SOLUSDC", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Price: 127.5, Qty: 1.17, Status: models.OrderStatusNew}
	require.NoError(t, st.UpsertOrder(context.Background(), &order))

	exec := newExecutor(client, st)
	result, err := exec.Apply(context.Background(), testBasket(), reconcile.Plan{ToCancel: []string{"SOLUSDC_b1_B_3"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Canceled)

	stored, _, err := st.OrderByClientID(context.Background(), "SOLUSDC_b1_B_3")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, stored.Status)
}

func TestApplyTreatsDuplicateCreateAsSuccess(t *testing.T) {
	client := &fakeExchange{
		placeErr: map[string]error{
			"SOLUSDC_b1_B_1": &exchange.APIError{Code: exchange.CodeDuplicateOrder, Msg: "Duplicate order sent."},
		},
	}
	exec := newExecutor(client, store.NewMemory())

	plan := reconcile.Plan{ToCreate: []strategy.OrderSpec{buySpec("SOLUSDC_b1_B_1", 142.5, 0.56)}}
	result, err := exec.Apply(context.Background(), testBasket(), plan)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Zero(t, result.Skipped)
}

func TestApplySkipsInvalidSpecWithoutExchangeTraffic(t *testing.T) {
	client := &fakeExchange{}
	exec := newExecutor(client, store.NewMemory())

	plan := reconcile.Plan{ToCreate: []strategy.OrderSpec{
		buySpec("SOLUSDC_b1_B_1", 142.5005, 0.56), // цена мимо тика
		buySpec("SOLUSDC_b1_B_2", 135.0, 0.88),
	}}
	result, err := exec.Apply(context.Background(), testBasket(), plan)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Created)

	require.Len(t, client.ops, 1)
	assert.Equal(t, "place:SOLUSDC_b1_B_2", client.ops[0])
}

func TestApplyContinuesAfterHardRejection(t *testing.T) {
	client := &fakeExchange{
		placeErr: map[string]error{
			"SOLUSDC_b1_B_1": &exchange.APIError{Code: -1013, Msg: "Filter failure."},
		},
	}
	exec := newExecutor(client, store.NewMemory())

	plan := reconcile.Plan{ToCreate: []strategy.OrderSpec{
		buySpec("SOLUSDC_b1_B_1", 142.5, 0.56),
		buySpec("SOLUSDC_b1_B_2", 135.0, 0.88),
	}}
	result, err := exec.Apply(context.Background(), testBasket(), plan)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Created)
}

func TestApplyDryRunTouchesNothing(t *testing.T) {
	client := &fakeExchange{}
	st := store.NewMemory()
	log := testLogger()
	exec := New(client, st, filters.NewCache(client, log), log, true)

	plan := reconcile.Plan{
		ToCancel: []string{"SOLUSDC_b1_B_3"},
		ToCreate: []strategy.OrderSpec{buySpec("SOLUSDC_b1_B_1", 142.5, 0.56)},
	}
	result, err := exec.Apply(context.Background(), testBasket(), plan)
	require.NoError(t, err)
	assert.Zero(t, result.Canceled)
	assert.Zero(t, result.Created)
	assert.Empty(t, client.ops)
}
