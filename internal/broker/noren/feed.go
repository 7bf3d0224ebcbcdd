package noren

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"noren-gateway/internal/apierr"
	"noren-gateway/internal/broker"
	"noren-gateway/internal/marketdata"
)

const heartbeatInterval = 25 * time.Second

// feedConn wraps the websocket with a write lock: subscribe/unsubscribe come
// from request goroutines while heartbeats come from the feed goroutine.
type feedConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (f *feedConn) writeJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conn.WriteJSON(v); err != nil {
		return &apierr.TransportError{Op: "feed write", Err: err}
	}
	return nil
}

// RunFeed dials the streaming endpoint and blocks in the read loop until the
// context is cancelled or the socket drops. Callbacks run on this goroutine.
func (c *Client) RunFeed(ctx context.Context, s broker.Session, cbs broker.FeedCallbacks) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return &apierr.TransportError{Op: "feed dial", Err: err}
	}
	fc := &feedConn{conn: conn}
	c.mu.Lock()
	c.feeds[s.ID] = fc
	c.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		c.mu.Lock()
		delete(c.feeds, s.ID)
		c.mu.Unlock()
		conn.Close()
		if cbs.OnClose != nil {
			cbs.OnClose()
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := fc.writeJSON(wsConnect{
		Type:      "c",
		UserID:    s.UserID,
		AccountID: s.UserID,
		Token:     s.ID,
		Source:    "API",
	}); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := fc.writeJSON(map[string]string{"t": "h"}); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &apierr.TransportError{Op: "feed read", Err: err}
		}
		c.dispatch(data, cbs)
	}
}

// dispatch routes one feed message by its kind tag. Malformed payloads are
// logged and dropped; the loop must keep running.
func (c *Client) dispatch(data []byte, cbs broker.FeedCallbacks) {
	var head struct {
		T string `json:"t"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		c.log.Warn("undecodable feed message", zap.Error(err))
		return
	}
	switch head.T {
	case "ck":
		var ack wsConnectAck
		if err := json.Unmarshal(data, &ack); err != nil {
			c.log.Warn("undecodable connect ack", zap.Error(err))
			return
		}
		if ack.Status == statOK {
			c.log.Info("feed connected", zap.String("uid", ack.UserID))
			if cbs.OnOpen != nil {
				cbs.OnOpen()
			}
		} else {
			c.log.Error("feed connect rejected", zap.String("status", ack.Status))
		}
	case marketdata.KindTouchline, marketdata.KindDepth, marketdata.KindTouchlineAck, marketdata.KindDepthAck:
		var u marketdata.TickUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			c.log.Warn("undecodable tick", zap.Error(err))
			return
		}
		if cbs.OnTick != nil {
			cbs.OnTick(u)
		}
	case "om":
		var om wsOrderUpdate
		if err := json.Unmarshal(data, &om); err != nil {
			c.log.Warn("undecodable order update", zap.Error(err))
			return
		}
		if cbs.OnOrderUpdate != nil {
			cbs.OnOrderUpdate(broker.OrderUpdate{
				OrderID:  om.OrderNo,
				Exchange: om.Exchange,
				Symbol:   om.Symbol,
				Status:   om.Status,
				Raw:      data,
			})
		}
	default:
		// heartbeat acks and unknown kinds
	}
}
