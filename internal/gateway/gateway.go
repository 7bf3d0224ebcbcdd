// Package gateway composes the session store, the order gate, the
// subscription tracker and the live market data resource behind the broker
// client. It is the only surface the transport layer calls.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"noren-gateway/internal/apierr"
	"noren-gateway/internal/broker"
	"noren-gateway/internal/marketdata"
	"noren-gateway/internal/orders"
	"noren-gateway/internal/sessions"
	"noren-gateway/internal/subscriptions"
	"noren-gateway/internal/types"
)

// feedOpenTimeout bounds how long Connect waits for the streaming connection
// to come up before rolling the login back.
const feedOpenTimeout = 5 * time.Second

const reconnectDelay = 5 * time.Second

type Gateway struct {
	broker   broker.Client
	sessions *sessions.Store
	tracker  *subscriptions.Tracker
	market   *marketdata.Resource
	limits   orders.Limits
	log      *zap.Logger

	mu    sync.Mutex
	feeds map[string]*feedState
}

type feedState struct {
	cancel    context.CancelFunc
	connected atomic.Bool
	opened    chan struct{}
	openOnce  sync.Once
}

func New(b broker.Client, st *sessions.Store, tr *subscriptions.Tracker, mk *marketdata.Resource, lim orders.Limits, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		broker:   b,
		sessions: st,
		tracker:  tr,
		market:   mk,
		limits:   lim,
		log:      log,
		feeds:    make(map[string]*feedState),
	}
}

// ConnectResult is returned to a freshly authenticated caller.
type ConnectResult struct {
	Token    string
	Identity string
	Username string
}

// OrderOutcome reports how far an order got. Status is never empty.
type OrderOutcome struct {
	Status        types.OrderStatus
	BrokerOrderID string
	Message       string
}

// Connect logs in with the broker, creates a gateway session and starts the
// feed goroutine for it. The login is rolled back when the feed does not
// open in time, so a returned token always has a live stream behind it.
func (g *Gateway) Connect(ctx context.Context, creds broker.Credentials) (ConnectResult, error) {
	bs, err := g.broker.Login(ctx, creds)
	if err != nil {
		return ConnectResult{}, err
	}
	token := g.sessions.Create(creds.UserID, bs.Username, bs)

	fctx, cancel := context.WithCancel(context.Background())
	fs := &feedState{cancel: cancel, opened: make(chan struct{})}
	g.mu.Lock()
	g.feeds[token] = fs
	g.mu.Unlock()
	go g.runFeed(fctx, bs, fs)

	select {
	case <-fs.opened:
	case <-time.After(feedOpenTimeout):
		g.dropFeed(token)
		g.sessions.Remove(token)
		return ConnectResult{}, &apierr.TransportError{Op: "feed open", Err: errors.New("stream did not open in time")}
	case <-ctx.Done():
		g.dropFeed(token)
		g.sessions.Remove(token)
		return ConnectResult{}, &apierr.TransportError{Op: "feed open", Err: ctx.Err()}
	}
	g.log.Info("session connected", zap.String("identity", creds.UserID))
	return ConnectResult{Token: token, Identity: creds.UserID, Username: bs.Username}, nil
}

func (g *Gateway) runFeed(ctx context.Context, bs broker.Session, fs *feedState) {
	cbs := broker.FeedCallbacks{
		OnOpen: func() {
			fs.connected.Store(true)
			fs.openOnce.Do(func() { close(fs.opened) })
		},
		OnClose: func() {
			fs.connected.Store(false)
		},
		OnTick: g.handleTick,
		OnOrderUpdate: func(u broker.OrderUpdate) {
			// Post-send transitions are reported here but not tracked.
			g.log.Debug("order update",
				zap.String("order_id", u.OrderID),
				zap.String("status", u.Status))
		},
	}
	for {
		err := g.broker.RunFeed(ctx, bs, cbs)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			g.log.Warn("feed terminated, reconnecting", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// handleTick runs on the feed goroutine. It only checks tracking membership
// and hands off to the resource; anything slow lives behind the resource's
// non-blocking notify hook.
func (g *Gateway) handleTick(u marketdata.TickUpdate) {
	if u.Exchange == "" || u.Token == "" {
		g.log.Warn("tick without instrument identity", zap.String("kind", u.Kind))
		return
	}
	key := marketdata.Key(u.Exchange, u.Token)
	if !g.tracker.IsTracked(key) {
		g.log.Debug("dropping tick for untracked instrument", zap.String("key", key))
		return
	}
	g.market.IngestTick(key, u)
}

// PlaceOrder runs the order pipeline: authenticate, validate locally,
// forward, map the broker's answer. Pipeline results ride in the outcome;
// the error return is for authentication only.
func (g *Gateway) PlaceOrder(ctx context.Context, token string, req orders.Request) (OrderOutcome, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return OrderOutcome{}, err
	}
	if violations := orders.Validate(req, g.limits); len(violations) > 0 {
		return OrderOutcome{
			Status:  types.OrderStatusRejectedLocal,
			Message: strings.Join(violations, "; "),
		}, nil
	}
	fields := broker.OrderFields{
		Exchange:     req.Exchange,
		Symbol:       req.Symbol,
		Quantity:     req.Quantity.IntPart(),
		OrderType:    req.OrderType,
		Side:         req.Side,
		Product:      req.Product,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
	}
	orderID, err := g.broker.PlaceOrder(ctx, sess.Broker, fields)
	if err != nil {
		var be *apierr.BrokerError
		if errors.As(err, &be) {
			return OrderOutcome{Status: types.OrderStatusRejectedBroker, Message: be.Message}, nil
		}
		var te *apierr.TransportError
		if errors.As(err, &te) {
			return OrderOutcome{Status: types.OrderStatusError, Message: te.Error()}, nil
		}
		g.log.Error("unexpected place order failure", zap.Error(err))
		return OrderOutcome{Status: types.OrderStatusError, Message: "internal error"}, nil
	}
	return OrderOutcome{
		Status:        types.OrderStatusSentToBroker,
		BrokerOrderID: orderID,
		Message:       "order sent to broker",
	}, nil
}

// Subscribe asks the broker for the instruments' feeds and starts tracking
// them for the caller. Requires the session's stream to be up.
func (g *Gateway) Subscribe(ctx context.Context, token string, instruments []marketdata.Instrument) ([]string, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return nil, err
	}
	if !g.feedConnected(token) {
		return nil, apierr.ErrNotConnected
	}
	keys, err := canonicalKeys(instruments)
	if err != nil {
		return nil, err
	}
	if err := g.broker.Subscribe(ctx, sess.Broker, keys); err != nil {
		return nil, err
	}
	g.tracker.Subscribe(token, keys)
	for _, k := range keys {
		if err := g.market.Initialize(k); err != nil {
			g.log.Warn("skipping malformed key", zap.String("key", k))
		}
	}
	return keys, nil
}

// Unsubscribe stops tracking the instruments for this caller. Cache entries
// and the broker-side subscription go away only with the last reference.
// The broker call is fire-and-forget: a failure never blocks local cleanup.
func (g *Gateway) Unsubscribe(ctx context.Context, token string, instruments []marketdata.Instrument) ([]string, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return nil, err
	}
	keys, err := canonicalKeys(instruments)
	if err != nil {
		return nil, err
	}
	released := g.tracker.Unsubscribe(token, keys)
	for _, k := range released {
		g.market.Remove(k)
	}
	if len(released) > 0 {
		if err := g.broker.Unsubscribe(ctx, sess.Broker, released); err != nil {
			g.log.Warn("broker unsubscribe failed", zap.Error(err))
		}
	}
	return keys, nil
}

// Snapshot returns an independent copy of the latest tick for every
// instrument the caller tracks.
func (g *Gateway) Snapshot(token string) (map[string]marketdata.Tick, error) {
	if _, err := g.sessions.Lookup(token); err != nil {
		return nil, err
	}
	out := make(map[string]marketdata.Tick)
	for _, k := range g.tracker.Keys(token) {
		if t, ok := g.market.Get(k); ok {
			out[k] = t
		}
	}
	return out, nil
}

// Disconnect tears the session down: feed goroutine, tracked instruments,
// cache entries, then the session itself.
func (g *Gateway) Disconnect(ctx context.Context, token string) error {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return err
	}
	g.dropFeed(token)
	released := g.tracker.Clear(token)
	for _, k := range released {
		g.market.Remove(k)
	}
	if len(released) > 0 {
		if err := g.broker.Unsubscribe(ctx, sess.Broker, released); err != nil {
			g.log.Warn("broker unsubscribe failed", zap.Error(err))
		}
	}
	g.sessions.Remove(token)
	g.log.Info("session disconnected", zap.String("identity", sess.Identity))
	return nil
}

func (g *Gateway) OrderBook(ctx context.Context, token string) ([]broker.Order, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return nil, err
	}
	return g.broker.OrderBook(ctx, sess.Broker)
}

func (g *Gateway) Positions(ctx context.Context, token string) ([]broker.Position, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return nil, err
	}
	return g.broker.Positions(ctx, sess.Broker)
}

func (g *Gateway) Holdings(ctx context.Context, token, product string) ([]broker.Holding, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return nil, err
	}
	return g.broker.Holdings(ctx, sess.Broker, product)
}

func (g *Gateway) Limits(ctx context.Context, token string) (broker.Limits, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return broker.Limits{}, err
	}
	return g.broker.Limits(ctx, sess.Broker)
}

func (g *Gateway) SearchScrip(ctx context.Context, token, exchange, text string) ([]broker.Scrip, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return nil, err
	}
	return g.broker.SearchScrip(ctx, sess.Broker, exchange, text)
}

func (g *Gateway) Quote(ctx context.Context, token, exchange, instrumentToken string) (broker.Quote, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return broker.Quote{}, err
	}
	return g.broker.Quote(ctx, sess.Broker, exchange, instrumentToken)
}

func (g *Gateway) OptionChain(ctx context.Context, token, exchange, symbol string, strike decimal.Decimal, count int) ([]broker.OptionRow, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return nil, err
	}
	return g.broker.OptionChain(ctx, sess.Broker, exchange, symbol, strike, count)
}

func (g *Gateway) TimePriceSeries(ctx context.Context, token string, q broker.SeriesQuery) ([]broker.Candle, error) {
	sess, err := g.sessions.Lookup(token)
	if err != nil {
		return nil, err
	}
	return g.broker.TimePriceSeries(ctx, sess.Broker, q)
}

func (g *Gateway) feedConnected(token string) bool {
	g.mu.Lock()
	fs := g.feeds[token]
	g.mu.Unlock()
	return fs != nil && fs.connected.Load()
}

func (g *Gateway) dropFeed(token string) {
	g.mu.Lock()
	fs := g.feeds[token]
	delete(g.feeds, token)
	g.mu.Unlock()
	if fs != nil {
		fs.cancel()
	}
}

func canonicalKeys(instruments []marketdata.Instrument) ([]string, error) {
	if len(instruments) == 0 {
		return nil, &apierr.ValidationError{Violations: []string{"instruments list must not be empty"}}
	}
	keys := make([]string, 0, len(instruments))
	for i, inst := range instruments {
		if inst.Exchange == "" || inst.Token == "" {
			return nil, &apierr.ValidationError{Violations: []string{
				fmt.Sprintf("instrument %d: exchange and token are required", i),
			}}
		}
		keys = append(keys, inst.Key())
	}
	return keys, nil
}
