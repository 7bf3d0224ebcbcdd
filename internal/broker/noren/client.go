// Package noren talks to the Shoonya (Noren) trading API: form-encoded REST
// calls carrying a jData JSON payload plus the session key, and a websocket
// feed for streaming quotes.
package noren

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"noren-gateway/internal/apierr"
	"noren-gateway/internal/broker"
)

type Client struct {
	apiURL string
	wsURL  string
	httpc  *http.Client
	log    *zap.Logger

	mu    sync.Mutex
	feeds map[string]*feedConn
}

var _ broker.Client = (*Client)(nil)

func New(apiURL, wsURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		wsURL:  wsURL,
		httpc:  &http.Client{Timeout: 15 * time.Second},
		log:    log,
		feeds:  make(map[string]*feedConn),
	}
}

func (c *Client) Login(ctx context.Context, creds broker.Credentials) (broker.Session, error) {
	req := loginRequest{
		APKVersion: "1.0.0",
		UserID:     creds.UserID,
		Password:   sha256Hex(creds.Password),
		Factor2:    creds.TwoFA,
		VendorCode: creds.VendorCode,
		AppKey:     sha256Hex(creds.UserID + "|" + creds.APISecret),
		IMEI:       creds.IMEI,
		Source:     "API",
	}
	var resp loginResponse
	if err := c.call(ctx, "QuickAuth", req, "", &resp); err != nil {
		return broker.Session{}, err
	}
	return broker.Session{ID: resp.Token, UserID: resp.UserID, Username: resp.Username}, nil
}

func (c *Client) PlaceOrder(ctx context.Context, s broker.Session, fields broker.OrderFields) (string, error) {
	req := placeOrderRequest{
		UserID:      s.UserID,
		AccountID:   s.UserID,
		Exchange:    fields.Exchange,
		Symbol:      fields.Symbol,
		Quantity:    fmt.Sprintf("%d", fields.Quantity),
		Price:       decString(fields.Price),
		DiscloseQty: "0",
		Product:     productCode(fields.Product),
		Side:        sideCode(fields.Side),
		PriceType:   priceType(fields.OrderType),
		Retention:   retention(fields.Retention),
		Remarks:     fields.Remarks,
		OrderSource: "API",
	}
	if fields.TriggerPrice != nil {
		req.TriggerPrice = fields.TriggerPrice.String()
	}
	var resp placeOrderResponse
	if err := c.call(ctx, "PlaceOrder", req, s.ID, &resp); err != nil {
		return "", err
	}
	return resp.OrderNo, nil
}

func (c *Client) Subscribe(ctx context.Context, s broker.Session, keys []string) error {
	fc := c.feed(s.ID)
	if fc == nil {
		return apierr.ErrNotConnected
	}
	return fc.writeJSON(wsSubscription{Type: "t", Keys: strings.Join(keys, "#")})
}

func (c *Client) Unsubscribe(ctx context.Context, s broker.Session, keys []string) error {
	fc := c.feed(s.ID)
	if fc == nil {
		return apierr.ErrNotConnected
	}
	return fc.writeJSON(wsSubscription{Type: "u", Keys: strings.Join(keys, "#")})
}

func (c *Client) OrderBook(ctx context.Context, s broker.Session) ([]broker.Order, error) {
	var rows []bookRow
	if err := c.callList(ctx, "OrderBook", accountRequest{UserID: s.UserID}, s.ID, &rows); err != nil {
		return nil, err
	}
	out := make([]broker.Order, 0, len(rows))
	for _, r := range rows {
		if r.OrderNo == "" {
			continue
		}
		out = append(out, broker.Order{
			OrderID:   r.OrderNo,
			Exchange:  r.Exchange,
			Symbol:    r.Symbol,
			Side:      r.Side,
			OrderType: r.PriceType,
			Product:   r.Product,
			Status:    r.Status,
			Quantity:  parseInt(r.Quantity),
			FilledQty: parseInt(r.FillShare),
			Price:     parseDec(r.Price),
		})
	}
	return out, nil
}

func (c *Client) Positions(ctx context.Context, s broker.Session) ([]broker.Position, error) {
	var rows []positionRow
	req := accountRequest{UserID: s.UserID, AccountID: s.UserID}
	if err := c.callList(ctx, "PositionBook", req, s.ID, &rows); err != nil {
		return nil, err
	}
	out := make([]broker.Position, 0, len(rows))
	for _, r := range rows {
		if r.Symbol == "" {
			continue
		}
		out = append(out, broker.Position{
			Exchange:  r.Exchange,
			Symbol:    r.Symbol,
			Product:   r.Product,
			NetQty:    parseInt(r.NetQty),
			AvgPrice:  parseDec(r.AvgPrice),
			LastPrice: parseDec(r.LastPrice),
			PnL:       parseDec(r.MTM),
		})
	}
	return out, nil
}

func (c *Client) Holdings(ctx context.Context, s broker.Session, product string) ([]broker.Holding, error) {
	if product == "" {
		product = "C"
	}
	var rows []holdingRow
	req := holdingsRequest{UserID: s.UserID, AccountID: s.UserID, Product: product}
	if err := c.callList(ctx, "Holdings", req, s.ID, &rows); err != nil {
		return nil, err
	}
	out := make([]broker.Holding, 0, len(rows))
	for _, r := range rows {
		if len(r.Instruments) == 0 {
			continue
		}
		// The primary listing comes first in exch_tsym.
		inst := r.Instruments[0]
		out = append(out, broker.Holding{
			Exchange: inst.Exchange,
			Token:    inst.Token,
			Symbol:   inst.Symbol,
			Product:  r.Product,
			Quantity: parseInt(r.HoldQty),
			UsedQty:  parseInt(r.UsedQty),
			AvgPrice: parseDec(r.UploadPrc),
		})
	}
	return out, nil
}

func (c *Client) Limits(ctx context.Context, s broker.Session) (broker.Limits, error) {
	var resp limitsResponse
	req := accountRequest{UserID: s.UserID, AccountID: s.UserID}
	if err := c.call(ctx, "Limits", req, s.ID, &resp); err != nil {
		return broker.Limits{}, err
	}
	return broker.Limits{
		Cash:       parseDec(resp.Cash),
		MarginUsed: parseDec(resp.MarginUsed),
		Collateral: parseDec(resp.Collateral),
		PayIn:      parseDec(resp.PayIn),
	}, nil
}

func (c *Client) SearchScrip(ctx context.Context, s broker.Session, exchange, text string) ([]broker.Scrip, error) {
	var resp searchResponse
	req := searchRequest{UserID: s.UserID, Exchange: exchange, Text: text}
	if err := c.call(ctx, "SearchScrip", req, s.ID, &resp); err != nil {
		return nil, err
	}
	out := make([]broker.Scrip, 0, len(resp.Values))
	for _, v := range resp.Values {
		out = append(out, broker.Scrip{
			Exchange: v.Exchange,
			Token:    v.Token,
			Symbol:   v.Symbol,
			Name:     v.Name,
			LotSize:  parseInt(v.LotSize),
			TickSize: parseDec(v.TickSize),
		})
	}
	return out, nil
}

func (c *Client) Quote(ctx context.Context, s broker.Session, exchange, token string) (broker.Quote, error) {
	var resp quoteResponse
	req := quoteRequest{UserID: s.UserID, Exchange: exchange, Token: token}
	if err := c.call(ctx, "GetQuotes", req, s.ID, &resp); err != nil {
		return broker.Quote{}, err
	}
	return broker.Quote{
		Exchange:  resp.Exchange,
		Token:     resp.Token,
		Symbol:    resp.Symbol,
		LastPrice: parseDec(resp.LastPrice),
		Open:      parseDec(resp.Open),
		High:      parseDec(resp.High),
		Low:       parseDec(resp.Low),
		PrevClose: parseDec(resp.PrevClose),
		Volume:    parseDec(resp.Volume),
	}, nil
}

func (c *Client) OptionChain(ctx context.Context, s broker.Session, exchange, symbol string, strike decimal.Decimal, count int) ([]broker.OptionRow, error) {
	if count <= 0 {
		count = 5
	}
	var resp optionChainResponse
	req := optionChainRequest{
		UserID:      s.UserID,
		Exchange:    exchange,
		Symbol:      symbol,
		StrikePrice: strike.String(),
		Count:       strconv.Itoa(count),
	}
	if err := c.call(ctx, "GetOptionChain", req, s.ID, &resp); err != nil {
		return nil, err
	}
	out := make([]broker.OptionRow, 0, len(resp.Values))
	for _, v := range resp.Values {
		out = append(out, broker.OptionRow{
			Exchange:    v.Exchange,
			Token:       v.Token,
			Symbol:      v.Symbol,
			OptionType:  v.OptionType,
			StrikePrice: parseDec(v.StrikePrice),
			LotSize:     parseInt(v.LotSize),
		})
	}
	return out, nil
}

func (c *Client) TimePriceSeries(ctx context.Context, s broker.Session, q broker.SeriesQuery) ([]broker.Candle, error) {
	req := tpSeriesRequest{
		UserID:   s.UserID,
		Exchange: q.Exchange,
		Token:    q.Token,
		Start:    strconv.FormatInt(q.Start, 10),
		Interval: q.Interval,
	}
	if req.Interval == "" {
		req.Interval = "1"
	}
	if q.End > 0 {
		req.End = strconv.FormatInt(q.End, 10)
	}
	var rows []candleRow
	if err := c.callList(ctx, "TPSeries", req, s.ID, &rows); err != nil {
		return nil, err
	}
	out := make([]broker.Candle, 0, len(rows))
	for _, r := range rows {
		if r.Time == "" {
			continue
		}
		out = append(out, broker.Candle{
			Time:         r.Time,
			Open:         parseDec(r.Open),
			High:         parseDec(r.High),
			Low:          parseDec(r.Low),
			Close:        parseDec(r.Close),
			Volume:       parseDec(r.Volume),
			OpenInterest: parseDec(r.OpenInterest),
		})
	}
	return out, nil
}

// post sends one jData/jKey form request and returns the raw body. HTTP and
// connection failures surface as transport errors; the broker's own verdicts
// ride in the body.
func (c *Client) post(ctx context.Context, endpoint string, payload any, jKey string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &apierr.TransportError{Op: endpoint, Err: err}
	}
	form := "jData=" + string(data)
	if jKey != "" {
		form += "&jKey=" + jKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+endpoint, bytes.NewBufferString(form))
	if err != nil {
		return nil, &apierr.TransportError{Op: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &apierr.TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierr.TransportError{Op: endpoint, Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &apierr.TransportError{Op: endpoint, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	return body, nil
}

// call handles object-shaped endpoints where the stat field carries the
// broker's verdict.
func (c *Client) call(ctx context.Context, endpoint string, payload any, jKey string, out any) error {
	body, err := c.post(ctx, endpoint, payload, jKey)
	if err != nil {
		return err
	}
	var status statResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return &apierr.TransportError{Op: endpoint, Err: err}
	}
	if status.Stat == statNotOK {
		return &apierr.BrokerError{Message: status.Emsg}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apierr.TransportError{Op: endpoint, Err: err}
	}
	return nil
}

// callList handles endpoints that answer with a JSON array on success but a
// single stat object on failure.
func (c *Client) callList(ctx context.Context, endpoint string, payload any, jKey string, out any) error {
	body, err := c.post(ctx, endpoint, payload, jKey)
	if err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var status statResponse
		if err := json.Unmarshal(trimmed, &status); err != nil {
			return &apierr.TransportError{Op: endpoint, Err: err}
		}
		if status.Stat == statNotOK {
			return &apierr.BrokerError{Message: status.Emsg}
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &apierr.TransportError{Op: endpoint, Err: err}
	}
	return nil
}

func (c *Client) feed(sessionID string) *feedConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feeds[sessionID]
}

func retention(r string) string {
	if r == "" {
		return "DAY"
	}
	return r
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return "0"
	}
	return d.String()
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
