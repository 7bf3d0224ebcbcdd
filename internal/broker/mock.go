package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"noren-gateway/internal/apierr"
	"noren-gateway/internal/marketdata"
)

// Mock credentials and symbols that trigger failure paths, mirroring the
// broker's rejection messages.
const (
	MockFailPassword = "fail_login"
	MockFailSymbol   = "FAIL_ORDER"
)

// Mock is an in-process broker for local runs and tests. Ticks are pushed by
// hand through PushTick and delivered on the feed goroutine, so tests
// exercise the same cross-goroutine path as the live client.
type Mock struct {
	// TransportErr, when set, makes every network-shaped call fail with a
	// transport error.
	TransportErr error

	mu        sync.Mutex
	orders    []OrderFields
	subs      map[string]struct{}
	feeds     map[string]chan marketdata.TickUpdate
	ordUpdate chan OrderUpdate
}

var _ Client = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{
		subs:      make(map[string]struct{}),
		feeds:     make(map[string]chan marketdata.TickUpdate),
		ordUpdate: make(chan OrderUpdate, 16),
	}
}

func (m *Mock) Login(ctx context.Context, creds Credentials) (Session, error) {
	if m.TransportErr != nil {
		return Session{}, &apierr.TransportError{Op: "login", Err: m.TransportErr}
	}
	if creds.UserID == "" || creds.Password == "" {
		return Session{}, &apierr.BrokerError{Message: "Invalid credentials"}
	}
	if creds.Password == MockFailPassword {
		return Session{}, &apierr.BrokerError{Message: "Login failed: Invalid credentials"}
	}
	return Session{
		ID:       "mock-session-" + uuid.NewString(),
		UserID:   creds.UserID,
		Username: "Mock " + creds.UserID,
	}, nil
}

func (m *Mock) PlaceOrder(ctx context.Context, s Session, fields OrderFields) (string, error) {
	if m.TransportErr != nil {
		return "", &apierr.TransportError{Op: "place order", Err: m.TransportErr}
	}
	if fields.Symbol == MockFailSymbol {
		return "", &apierr.BrokerError{Message: "Order rejected: Invalid symbol"}
	}
	m.mu.Lock()
	m.orders = append(m.orders, fields)
	n := len(m.orders)
	m.mu.Unlock()
	return fmt.Sprintf("mock-order-%d", n), nil
}

// PlacedOrders returns every order that reached the mock broker.
func (m *Mock) PlacedOrders() []OrderFields {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderFields, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *Mock) Subscribe(ctx context.Context, s Session, keys []string) error {
	if m.TransportErr != nil {
		return &apierr.TransportError{Op: "subscribe", Err: m.TransportErr}
	}
	m.mu.Lock()
	for _, k := range keys {
		m.subs[k] = struct{}{}
	}
	m.mu.Unlock()
	return nil
}

func (m *Mock) Unsubscribe(ctx context.Context, s Session, keys []string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.subs, k)
	}
	m.mu.Unlock()
	return nil
}

// Subscribed reports whether the broker currently holds a subscription.
func (m *Mock) Subscribed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[key]
	return ok
}

// PushTick delivers a raw update through the feed of the given session.
func (m *Mock) PushTick(s Session, u marketdata.TickUpdate) {
	m.mu.Lock()
	ch := m.feeds[s.ID]
	m.mu.Unlock()
	if ch != nil {
		ch <- u
	}
}

// PushOrderUpdate delivers an order update through every active feed.
func (m *Mock) PushOrderUpdate(u OrderUpdate) {
	m.ordUpdate <- u
}

func (m *Mock) RunFeed(ctx context.Context, s Session, cbs FeedCallbacks) error {
	ch := make(chan marketdata.TickUpdate, 16)
	m.mu.Lock()
	m.feeds[s.ID] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.feeds, s.ID)
		m.mu.Unlock()
		if cbs.OnClose != nil {
			cbs.OnClose()
		}
	}()
	if cbs.OnOpen != nil {
		cbs.OnOpen()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-ch:
			if cbs.OnTick != nil {
				cbs.OnTick(u)
			}
		case u := <-m.ordUpdate:
			if cbs.OnOrderUpdate != nil {
				cbs.OnOrderUpdate(u)
			}
		}
	}
}

func (m *Mock) OrderBook(ctx context.Context, s Session) ([]Order, error) {
	if m.TransportErr != nil {
		return nil, &apierr.TransportError{Op: "order book", Err: m.TransportErr}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for i, f := range m.orders {
		out = append(out, Order{
			OrderID:   fmt.Sprintf("mock-order-%d", i+1),
			Exchange:  f.Exchange,
			Symbol:    f.Symbol,
			Side:      string(f.Side),
			OrderType: string(f.OrderType),
			Product:   string(f.Product),
			Status:    "OPEN",
			Quantity:  f.Quantity,
			Price:     f.Price,
		})
	}
	return out, nil
}

func (m *Mock) Positions(ctx context.Context, s Session) ([]Position, error) {
	if m.TransportErr != nil {
		return nil, &apierr.TransportError{Op: "positions", Err: m.TransportErr}
	}
	return []Position{}, nil
}

func (m *Mock) Holdings(ctx context.Context, s Session, product string) ([]Holding, error) {
	if m.TransportErr != nil {
		return nil, &apierr.TransportError{Op: "holdings", Err: m.TransportErr}
	}
	if product == "" {
		product = "CNC"
	}
	avg := decimal.NewFromInt(2450)
	return []Holding{
		{Exchange: "NSE", Token: "2885", Symbol: "RELIANCE-EQ", Product: product, Quantity: 50, AvgPrice: &avg},
	}, nil
}

func (m *Mock) Limits(ctx context.Context, s Session) (Limits, error) {
	if m.TransportErr != nil {
		return Limits{}, &apierr.TransportError{Op: "limits", Err: m.TransportErr}
	}
	cash := decimal.NewFromInt(1_000_000)
	return Limits{Cash: &cash}, nil
}

func (m *Mock) SearchScrip(ctx context.Context, s Session, exchange, text string) ([]Scrip, error) {
	if m.TransportErr != nil {
		return nil, &apierr.TransportError{Op: "search scrip", Err: m.TransportErr}
	}
	return []Scrip{
		{Exchange: exchange, Token: "22", Symbol: text + "-EQ", Name: text, LotSize: 1},
	}, nil
}

func (m *Mock) Quote(ctx context.Context, s Session, exchange, token string) (Quote, error) {
	if m.TransportErr != nil {
		return Quote{}, &apierr.TransportError{Op: "quote", Err: m.TransportErr}
	}
	lp := decimal.NewFromFloat(123.45)
	return Quote{Exchange: exchange, Token: token, LastPrice: &lp}, nil
}

func (m *Mock) OptionChain(ctx context.Context, s Session, exchange, symbol string, strike decimal.Decimal, count int) ([]OptionRow, error) {
	if m.TransportErr != nil {
		return nil, &apierr.TransportError{Op: "option chain", Err: m.TransportErr}
	}
	if count <= 0 {
		count = 1
	}
	// One call/put pair per strike step around the requested strike.
	step := decimal.NewFromInt(50)
	out := make([]OptionRow, 0, 2*count)
	for i := 0; i < count; i++ {
		prc := strike.Add(step.Mul(decimal.NewFromInt(int64(i))))
		out = append(out,
			OptionRow{Exchange: exchange, Token: fmt.Sprintf("c%d", i), Symbol: symbol + "C", OptionType: "CE", StrikePrice: &prc, LotSize: 50},
			OptionRow{Exchange: exchange, Token: fmt.Sprintf("p%d", i), Symbol: symbol + "P", OptionType: "PE", StrikePrice: &prc, LotSize: 50},
		)
	}
	return out, nil
}

func (m *Mock) TimePriceSeries(ctx context.Context, s Session, q SeriesQuery) ([]Candle, error) {
	if m.TransportErr != nil {
		return nil, &apierr.TransportError{Op: "time price series", Err: m.TransportErr}
	}
	o := decimal.NewFromInt(120)
	h := decimal.NewFromInt(126)
	l := decimal.NewFromInt(119)
	cl := decimal.NewFromFloat(123.45)
	v := decimal.NewFromInt(1000)
	return []Candle{
		{Time: "09:15:00", Open: &o, High: &h, Low: &l, Close: &cl, Volume: &v},
	}, nil
}
