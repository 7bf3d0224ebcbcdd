package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noren-gateway/internal/apierr"
	"noren-gateway/internal/broker"
	"noren-gateway/internal/marketdata"
	"noren-gateway/internal/orders"
	"noren-gateway/internal/sessions"
	"noren-gateway/internal/subscriptions"
	"noren-gateway/internal/types"
)

type fixture struct {
	mock    *broker.Mock
	store   *sessions.Store
	tracker *subscriptions.Tracker
	market  *marketdata.Resource
	gw      *Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mock:    broker.NewMock(),
		store:   sessions.NewStore(0),
		tracker: subscriptions.NewTracker(),
	}
	f.market = marketdata.NewResource(nil, nil)
	f.gw = New(f.mock, f.store, f.tracker, f.market, orders.DefaultLimits(), nil)
	return f
}

func (f *fixture) connect(t *testing.T) (token string, bs broker.Session) {
	t.Helper()
	res, err := f.gw.Connect(context.Background(), broker.Credentials{UserID: "FA1234", Password: "pw"})
	require.NoError(t, err)
	sess, err := f.store.Lookup(res.Token)
	require.NoError(t, err)
	return res.Token, sess.Broker
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validOrder() orders.Request {
	return orders.Request{
		Symbol:    "RELIANCE-EQ",
		Exchange:  "NSE",
		Quantity:  dec("10"),
		OrderType: types.OrderTypeMarket,
		Side:      types.OrderSideBuy,
		Product:   types.ProductIntraday,
	}
}

func TestConnectIssuesTokenAndOpensFeed(t *testing.T) {
	f := newFixture(t)
	res, err := f.gw.Connect(context.Background(), broker.Credentials{UserID: "FA1234", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "FA1234", res.Identity)
	assert.True(t, f.gw.feedConnected(res.Token))
}

func TestConnectRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.gw.Connect(context.Background(), broker.Credentials{UserID: "FA1234", Password: broker.MockFailPassword})
	var be *apierr.BrokerError
	require.True(t, errors.As(err, &be))
}

func TestPlaceOrderRequiresAuth(t *testing.T) {
	f := newFixture(t)
	_, err := f.gw.PlaceOrder(context.Background(), "bogus", validOrder())
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
}

func TestPlaceOrderLocalRejectNeverReachesBroker(t *testing.T) {
	f := newFixture(t)
	token, _ := f.connect(t)

	req := validOrder()
	req.Quantity = dec("100001")
	outcome, err := f.gw.PlaceOrder(context.Background(), token, req)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusRejectedLocal, outcome.Status)
	assert.Contains(t, outcome.Message, "quantity 100001 exceeds")
	assert.Empty(t, f.mock.PlacedOrders(), "a locally rejected order must never reach the broker")
}

func TestPlaceOrderSentToBroker(t *testing.T) {
	f := newFixture(t)
	token, _ := f.connect(t)

	outcome, err := f.gw.PlaceOrder(context.Background(), token, validOrder())
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusSentToBroker, outcome.Status)
	assert.NotEmpty(t, outcome.BrokerOrderID)
	require.Len(t, f.mock.PlacedOrders(), 1)
	assert.Equal(t, int64(10), f.mock.PlacedOrders()[0].Quantity)
}

func TestPlaceOrderBrokerReject(t *testing.T) {
	f := newFixture(t)
	token, _ := f.connect(t)

	req := validOrder()
	req.Symbol = broker.MockFailSymbol
	outcome, err := f.gw.PlaceOrder(context.Background(), token, req)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusRejectedBroker, outcome.Status)
	assert.Equal(t, "Order rejected: Invalid symbol", outcome.Message)
}

func TestPlaceOrderTransportFailure(t *testing.T) {
	f := newFixture(t)
	token, _ := f.connect(t)

	f.mock.TransportErr = errors.New("connection reset")
	outcome, err := f.gw.PlaceOrder(context.Background(), token, validOrder())
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusError, outcome.Status)
}

func TestSubscribeRequiresConnectedFeed(t *testing.T) {
	f := newFixture(t)
	// A session that never went through Connect has no feed.
	bs := broker.Session{ID: "stray"}
	token := f.store.Create("FA1234", "Ada", bs)

	_, err := f.gw.Subscribe(context.Background(), token, []marketdata.Instrument{{Exchange: "NSE", Token: "22"}})
	assert.ErrorIs(t, err, apierr.ErrNotConnected)
}

func TestSubscribeValidatesInstruments(t *testing.T) {
	f := newFixture(t)
	token, _ := f.connect(t)

	var ve *apierr.ValidationError
	_, err := f.gw.Subscribe(context.Background(), token, nil)
	require.True(t, errors.As(err, &ve))

	_, err = f.gw.Subscribe(context.Background(), token, []marketdata.Instrument{{Exchange: "NSE"}})
	require.True(t, errors.As(err, &ve))
}

func TestSubscribeIngestFetchUnsubscribe(t *testing.T) {
	f := newFixture(t)
	token, bs := f.connect(t)

	keys, err := f.gw.Subscribe(context.Background(), token, []marketdata.Instrument{{Exchange: "NSE", Token: "22"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"NSE|22"}, keys)
	assert.True(t, f.mock.Subscribed("NSE|22"))

	// The cache entry exists before any tick arrives.
	snap, err := f.gw.Snapshot(token)
	require.NoError(t, err)
	require.Contains(t, snap, "NSE|22")
	assert.Nil(t, snap["NSE|22"].LastPrice)

	f.mock.PushTick(bs, marketdata.TickUpdate{
		Kind: marketdata.KindTouchline, Exchange: "NSE", Token: "22", LastPrice: dec("123.45"),
	})
	require.Eventually(t, func() bool {
		snap, err := f.gw.Snapshot(token)
		return err == nil && snap["NSE|22"].LastPrice != nil
	}, time.Second, 5*time.Millisecond)

	snap, err = f.gw.Snapshot(token)
	require.NoError(t, err)
	assert.True(t, snap["NSE|22"].LastPrice.Equal(decimal.RequireFromString("123.45")))

	keys, err = f.gw.Unsubscribe(context.Background(), token, []marketdata.Instrument{{Exchange: "NSE", Token: "22"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"NSE|22"}, keys)
	assert.False(t, f.mock.Subscribed("NSE|22"))

	snap, err = f.gw.Snapshot(token)
	require.NoError(t, err)
	assert.NotContains(t, snap, "NSE|22")
}

func TestUntrackedTicksAreDropped(t *testing.T) {
	f := newFixture(t)
	token, bs := f.connect(t)

	_, err := f.gw.Subscribe(context.Background(), token, []marketdata.Instrument{{Exchange: "NSE", Token: "22"}})
	require.NoError(t, err)

	// An update for an instrument nobody asked for, then one for the
	// tracked instrument. Both ride the same feed channel, so once the
	// second lands the first has been processed.
	f.mock.PushTick(bs, marketdata.TickUpdate{
		Kind: marketdata.KindTouchline, Exchange: "NSE", Token: "999", LastPrice: dec("1"),
	})
	f.mock.PushTick(bs, marketdata.TickUpdate{
		Kind: marketdata.KindTouchline, Exchange: "NSE", Token: "22", LastPrice: dec("2"),
	})
	require.Eventually(t, func() bool {
		tick, ok := f.market.Get("NSE|22")
		return ok && tick.LastPrice != nil
	}, time.Second, 5*time.Millisecond)

	_, ok := f.market.Get("NSE|999")
	assert.False(t, ok)
}

func TestSharedInstrumentSurvivesOtherSessionUnsubscribe(t *testing.T) {
	f := newFixture(t)
	tokenA, _ := f.connect(t)
	tokenB, _ := f.connect(t)
	inst := []marketdata.Instrument{{Exchange: "NSE", Token: "22"}}

	_, err := f.gw.Subscribe(context.Background(), tokenA, inst)
	require.NoError(t, err)
	_, err = f.gw.Subscribe(context.Background(), tokenB, inst)
	require.NoError(t, err)

	_, err = f.gw.Unsubscribe(context.Background(), tokenA, inst)
	require.NoError(t, err)
	assert.True(t, f.mock.Subscribed("NSE|22"), "second session still holds the subscription")
	_, ok := f.market.Get("NSE|22")
	assert.True(t, ok)

	_, err = f.gw.Unsubscribe(context.Background(), tokenB, inst)
	require.NoError(t, err)
	assert.False(t, f.mock.Subscribed("NSE|22"))
	_, ok = f.market.Get("NSE|22")
	assert.False(t, ok)
}

func TestDisconnectTearsEverythingDown(t *testing.T) {
	f := newFixture(t)
	token, _ := f.connect(t)
	_, err := f.gw.Subscribe(context.Background(), token, []marketdata.Instrument{{Exchange: "NSE", Token: "22"}})
	require.NoError(t, err)

	require.NoError(t, f.gw.Disconnect(context.Background(), token))
	_, err = f.store.Lookup(token)
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, ok := f.market.Get("NSE|22")
	assert.False(t, ok)
	assert.False(t, f.mock.Subscribed("NSE|22"))
	assert.False(t, f.gw.feedConnected(token))
}

func TestPassThroughsRequireAuth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gw.OrderBook(ctx, "bogus")
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, err = f.gw.Positions(ctx, "bogus")
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, err = f.gw.Limits(ctx, "bogus")
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, err = f.gw.SearchScrip(ctx, "bogus", "NSE", "RELIANCE")
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, err = f.gw.Quote(ctx, "bogus", "NSE", "22")
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, err = f.gw.Holdings(ctx, "bogus", "")
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, err = f.gw.OptionChain(ctx, "bogus", "NFO", "NIFTY", decimal.NewFromInt(22500), 5)
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, err = f.gw.TimePriceSeries(ctx, "bogus", broker.SeriesQuery{Exchange: "NSE", Token: "22", Start: 1, Interval: "1"})
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
	_, err = f.gw.Snapshot("bogus")
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)
}

func TestPassThroughsForwardToBroker(t *testing.T) {
	f := newFixture(t)
	token, _ := f.connect(t)
	ctx := context.Background()

	_, err := f.gw.PlaceOrder(ctx, token, validOrder())
	require.NoError(t, err)

	book, err := f.gw.OrderBook(ctx, token)
	require.NoError(t, err)
	require.Len(t, book, 1)
	assert.Equal(t, "RELIANCE-EQ", book[0].Symbol)

	limits, err := f.gw.Limits(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, limits.Cash)
	assert.True(t, limits.Cash.Equal(decimal.NewFromInt(1_000_000)))

	scrips, err := f.gw.SearchScrip(ctx, token, "NSE", "RELIANCE")
	require.NoError(t, err)
	require.Len(t, scrips, 1)
	assert.Equal(t, "RELIANCE-EQ", scrips[0].Symbol)

	quote, err := f.gw.Quote(ctx, token, "NSE", "22")
	require.NoError(t, err)
	require.NotNil(t, quote.LastPrice)

	holdings, err := f.gw.Holdings(ctx, token, "")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "RELIANCE-EQ", holdings[0].Symbol)
	assert.Equal(t, int64(50), holdings[0].Quantity)

	chain, err := f.gw.OptionChain(ctx, token, "NFO", "NIFTY", decimal.NewFromInt(22500), 2)
	require.NoError(t, err)
	require.Len(t, chain, 4, "a call and a put per strike")
	assert.Equal(t, "CE", chain[0].OptionType)
	assert.Equal(t, "PE", chain[1].OptionType)
	require.NotNil(t, chain[0].StrikePrice)
	assert.True(t, chain[0].StrikePrice.Equal(decimal.NewFromInt(22500)))

	candles, err := f.gw.TimePriceSeries(ctx, token, broker.SeriesQuery{
		Exchange: "NSE", Token: "22", Start: 1756500000, Interval: "5",
	})
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.NotNil(t, candles[0].Close)
	assert.True(t, candles[0].Close.Equal(decimal.RequireFromString("123.45")))
}
