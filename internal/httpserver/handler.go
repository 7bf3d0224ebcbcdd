package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"noren-gateway/internal/apierr"
	"noren-gateway/internal/broker"
	"noren-gateway/internal/gateway"
	"noren-gateway/internal/httputil"
	"noren-gateway/internal/marketdata"
	"noren-gateway/internal/orders"
	"noren-gateway/internal/types"
)

type Handler struct {
	gw  *gateway.Gateway
	log *zap.Logger
}

func NewHandler(gw *gateway.Gateway, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{gw: gw, log: log}
}

type connectRequest struct {
	UserID     string `json:"user_id"`
	Password   string `json:"password"`
	TwoFA      string `json:"twofa"`
	VendorCode string `json:"vendor_code"`
	APISecret  string `json:"api_secret"`
	IMEI       string `json:"imei"`
}

type connectResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	Username string `json:"username"`
}

type orderRequest struct {
	Symbol       string           `json:"symbol"`
	Exchange     string           `json:"exchange"`
	Quantity     *decimal.Decimal `json:"quantity"`
	OrderType    string           `json:"order_type"`
	Side         string           `json:"side"`
	Product      string           `json:"product"`
	Price        *decimal.Decimal `json:"price"`
	TriggerPrice *decimal.Decimal `json:"trigger_price"`
}

type orderResponse struct {
	Status        string `json:"status"`
	BrokerOrderID string `json:"broker_order_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

type instrumentPayload struct {
	Exchange string `json:"exchange"`
	Token    string `json:"token"`
}

type subscriptionRequest struct {
	Instruments []instrumentPayload `json:"instruments"`
}

type subscriptionResponse struct {
	Keys []string `json:"keys"`
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" || req.Password == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "user_id and password are required"})
		return
	}
	res, err := h.gw.Connect(r.Context(), broker.Credentials{
		UserID:     req.UserID,
		Password:   req.Password,
		TwoFA:      req.TwoFA,
		VendorCode: req.VendorCode,
		APISecret:  req.APISecret,
		IMEI:       req.IMEI,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, connectResponse{
		Token:    res.Token,
		Identity: res.Identity,
		Username: res.Username,
	})
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request, token string) {
	if err := h.gw.Disconnect(r.Context(), token); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request, token string) {
	var req orderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	outcome, err := h.gw.PlaceOrder(r.Context(), token, orders.Request{
		Symbol:       req.Symbol,
		Exchange:     req.Exchange,
		Quantity:     req.Quantity,
		OrderType:    types.OrderType(req.OrderType),
		Side:         types.OrderSide(req.Side),
		Product:      types.ProductType(req.Product),
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, orderStatusCode(outcome.Status), orderResponse{
		Status:        string(outcome.Status),
		BrokerOrderID: outcome.BrokerOrderID,
		Message:       outcome.Message,
	})
}

func orderStatusCode(status types.OrderStatus) int {
	switch status {
	case types.OrderStatusSentToBroker:
		return http.StatusOK
	case types.OrderStatusRejectedLocal:
		return http.StatusBadRequest
	case types.OrderStatusRejectedBroker:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request, token string) {
	req, ok := h.readSubscription(w, r)
	if !ok {
		return
	}
	keys, err := h.gw.Subscribe(r.Context(), token, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subscriptionResponse{Keys: keys})
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request, token string) {
	req, ok := h.readSubscription(w, r)
	if !ok {
		return
	}
	keys, err := h.gw.Unsubscribe(r.Context(), token, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subscriptionResponse{Keys: keys})
}

func (h *Handler) readSubscription(w http.ResponseWriter, r *http.Request) ([]marketdata.Instrument, bool) {
	var req subscriptionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return nil, false
	}
	instruments := make([]marketdata.Instrument, 0, len(req.Instruments))
	for _, p := range req.Instruments {
		instruments = append(instruments, marketdata.Instrument{Exchange: p.Exchange, Token: p.Token})
	}
	return instruments, true
}

// Fetch serves the live tick cache. With exchange and token query params it
// returns one instrument, otherwise the caller's full snapshot.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request, token string) {
	exchange := r.URL.Query().Get("exchange")
	instToken := r.URL.Query().Get("token")
	snap, err := h.gw.Snapshot(token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if exchange == "" && instToken == "" {
		httputil.WriteJSON(w, http.StatusOK, snap)
		return
	}
	if exchange == "" || instToken == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "exchange and token must be given together"})
		return
	}
	key := marketdata.Key(exchange, instToken)
	tick, ok := snap[key]
	if !ok {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "instrument not tracked"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tick)
}

func (h *Handler) OrderBook(w http.ResponseWriter, r *http.Request, token string) {
	book, err := h.gw.OrderBook(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request, token string) {
	positions, err := h.gw.Positions(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positions)
}

func (h *Handler) Holdings(w http.ResponseWriter, r *http.Request, token string) {
	holdings, err := h.gw.Holdings(r.Context(), token, r.URL.Query().Get("product"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, holdings)
}

func (h *Handler) Limits(w http.ResponseWriter, r *http.Request, token string) {
	limits, err := h.gw.Limits(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, limits)
}

func (h *Handler) SearchScrip(w http.ResponseWriter, r *http.Request, token string) {
	exchange := r.URL.Query().Get("exchange")
	text := r.URL.Query().Get("text")
	if exchange == "" || text == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "exchange and text are required"})
		return
	}
	scrips, err := h.gw.SearchScrip(r.Context(), token, exchange, text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, scrips)
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request, token string) {
	exchange := r.URL.Query().Get("exchange")
	instToken := r.URL.Query().Get("token")
	if exchange == "" || instToken == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "exchange and token are required"})
		return
	}
	quote, err := h.gw.Quote(r.Context(), token, exchange, instToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, quote)
}

func (h *Handler) OptionChain(w http.ResponseWriter, r *http.Request, token string) {
	exchange := r.URL.Query().Get("exchange")
	symbol := r.URL.Query().Get("symbol")
	strikeRaw := r.URL.Query().Get("strike")
	if exchange == "" || symbol == "" || strikeRaw == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "exchange, symbol and strike are required"})
		return
	}
	strike, err := decimal.NewFromString(strikeRaw)
	if err != nil || strike.Sign() <= 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "strike must be a positive number"})
		return
	}
	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count < 0 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "count must be a non-negative integer"})
			return
		}
	}
	chain, err := h.gw.OptionChain(r.Context(), token, exchange, symbol, strike, count)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, chain)
}

func (h *Handler) TimePriceSeries(w http.ResponseWriter, r *http.Request, token string) {
	q := broker.SeriesQuery{
		Exchange: r.URL.Query().Get("exchange"),
		Token:    r.URL.Query().Get("token"),
		Interval: r.URL.Query().Get("interval"),
	}
	startRaw := r.URL.Query().Get("from")
	if q.Exchange == "" || q.Token == "" || startRaw == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "exchange, token and from are required"})
		return
	}
	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil || start <= 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "from must be epoch seconds"})
		return
	}
	q.Start = start
	if endRaw := r.URL.Query().Get("to"); endRaw != "" {
		end, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil || end < start {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "to must be epoch seconds not before from"})
			return
		}
		q.End = end
	}
	candles, err := h.gw.TimePriceSeries(r.Context(), token, q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, candles)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *apierr.ValidationError
	switch {
	case errors.Is(err, apierr.ErrUnauthenticated):
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid or expired token"})
	case errors.Is(err, apierr.ErrNotConnected):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "market data stream is not connected"})
	case errors.As(err, &ve):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: ve.Error()})
	default:
		var be *apierr.BrokerError
		if errors.As(err, &be) {
			httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: be.Message})
			return
		}
		var te *apierr.TransportError
		if errors.As(err, &te) {
			httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: te.Error()})
			return
		}
		h.log.Error("unhandled request failure", zap.Error(err))
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}
