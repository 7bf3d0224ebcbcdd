// Package broker defines the contract the gateway programs against. The
// broker's wire protocol stays behind this interface; the gateway only sees
// sessions, order fields and feed callbacks.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"noren-gateway/internal/marketdata"
	"noren-gateway/internal/types"
)

// Credentials are passed through to the broker login verbatim; the gateway
// never stores them.
type Credentials struct {
	UserID     string
	Password   string
	TwoFA      string
	VendorCode string
	APISecret  string
	IMEI       string
}

// Session is the broker-side handle returned by Login. Opaque to everything
// except the broker client that issued it.
type Session struct {
	ID       string
	UserID   string
	Username string
}

// OrderFields is a locally validated order ready for the broker.
type OrderFields struct {
	Exchange     string
	Symbol       string
	Quantity     int64
	OrderType    types.OrderType
	Side         types.OrderSide
	Product      types.ProductType
	Price        *decimal.Decimal
	TriggerPrice *decimal.Decimal
	Retention    string
	Remarks      string
}

// Order is one order book row as reported by the broker.
type Order struct {
	OrderID   string           `json:"order_id"`
	Exchange  string           `json:"exchange"`
	Symbol    string           `json:"symbol"`
	Side      string           `json:"side"`
	OrderType string           `json:"order_type"`
	Product   string           `json:"product"`
	Status    string           `json:"status"`
	Quantity  int64            `json:"quantity"`
	FilledQty int64            `json:"filled_qty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// Position is one open position row.
type Position struct {
	Exchange  string           `json:"exchange"`
	Symbol    string           `json:"symbol"`
	Product   string           `json:"product"`
	NetQty    int64            `json:"net_qty"`
	AvgPrice  *decimal.Decimal `json:"avg_price,omitempty"`
	LastPrice *decimal.Decimal `json:"last_price,omitempty"`
	PnL       *decimal.Decimal `json:"pnl,omitempty"`
}

// Limits is the account balance and margin snapshot.
type Limits struct {
	Cash       *decimal.Decimal `json:"cash,omitempty"`
	MarginUsed *decimal.Decimal `json:"margin_used,omitempty"`
	Collateral *decimal.Decimal `json:"collateral,omitempty"`
	PayIn      *decimal.Decimal `json:"pay_in,omitempty"`
}

// Scrip is one instrument search result.
type Scrip struct {
	Exchange string           `json:"exchange"`
	Token    string           `json:"token"`
	Symbol   string           `json:"symbol"`
	Name     string           `json:"name"`
	LotSize  int64            `json:"lot_size,omitempty"`
	TickSize *decimal.Decimal `json:"tick_size,omitempty"`
}

// Quote is a point-in-time snapshot fetched over REST, as opposed to the
// streamed ticks.
type Quote struct {
	Exchange  string           `json:"exchange"`
	Token     string           `json:"token"`
	Symbol    string           `json:"symbol"`
	LastPrice *decimal.Decimal `json:"last_price,omitempty"`
	Open      *decimal.Decimal `json:"open,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Low       *decimal.Decimal `json:"low,omitempty"`
	PrevClose *decimal.Decimal `json:"prev_close,omitempty"`
	Volume    *decimal.Decimal `json:"volume,omitempty"`
}

// Holding is one demat holding row.
type Holding struct {
	Exchange string           `json:"exchange"`
	Token    string           `json:"token"`
	Symbol   string           `json:"symbol"`
	Product  string           `json:"product"`
	Quantity int64            `json:"quantity"`
	UsedQty  int64            `json:"used_qty,omitempty"`
	AvgPrice *decimal.Decimal `json:"avg_price,omitempty"`
}

// OptionRow is one strike entry of an option chain.
type OptionRow struct {
	Exchange    string           `json:"exchange"`
	Token       string           `json:"token"`
	Symbol      string           `json:"symbol"`
	OptionType  string           `json:"option_type"`
	StrikePrice *decimal.Decimal `json:"strike_price,omitempty"`
	LotSize     int64            `json:"lot_size,omitempty"`
}

// Candle is one OHLCV bar of a historical time price series.
type Candle struct {
	Time         string           `json:"time"`
	Open         *decimal.Decimal `json:"open,omitempty"`
	High         *decimal.Decimal `json:"high,omitempty"`
	Low          *decimal.Decimal `json:"low,omitempty"`
	Close        *decimal.Decimal `json:"close,omitempty"`
	Volume       *decimal.Decimal `json:"volume,omitempty"`
	OpenInterest *decimal.Decimal `json:"oi,omitempty"`
}

// SeriesQuery scopes a time price series request. Start and End are epoch
// seconds; a zero End means "up to now". Interval is the bar width in
// minutes as the broker spells it ("1", "5", "60").
type SeriesQuery struct {
	Exchange string
	Token    string
	Start    int64
	End      int64
	Interval string
}

// OrderUpdate is a post-send order state report from the feed. Post-send
// transitions are logged, not tracked.
type OrderUpdate struct {
	OrderID  string
	Exchange string
	Symbol   string
	Status   string
	Raw      []byte
}

// FeedCallbacks are invoked synchronously on the feed goroutine. They must
// not block.
type FeedCallbacks struct {
	OnTick        func(marketdata.TickUpdate)
	OnOrderUpdate func(OrderUpdate)
	OnOpen        func()
	OnClose       func()
}

// Client is the full broker capability. RunFeed blocks until the context is
// cancelled or the connection is lost; it must be run on its own goroutine.
type Client interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	PlaceOrder(ctx context.Context, s Session, fields OrderFields) (brokerOrderID string, err error)
	Subscribe(ctx context.Context, s Session, keys []string) error
	Unsubscribe(ctx context.Context, s Session, keys []string) error
	RunFeed(ctx context.Context, s Session, cbs FeedCallbacks) error

	OrderBook(ctx context.Context, s Session) ([]Order, error)
	Positions(ctx context.Context, s Session) ([]Position, error)
	Holdings(ctx context.Context, s Session, product string) ([]Holding, error)
	Limits(ctx context.Context, s Session) (Limits, error)
	SearchScrip(ctx context.Context, s Session, exchange, text string) ([]Scrip, error)
	Quote(ctx context.Context, s Session, exchange, token string) (Quote, error)
	OptionChain(ctx context.Context, s Session, exchange, symbol string, strike decimal.Decimal, count int) ([]OptionRow, error)
	TimePriceSeries(ctx context.Context, s Session, q SeriesQuery) ([]Candle, error)
}
