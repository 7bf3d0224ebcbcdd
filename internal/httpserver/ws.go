package httpserver

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"noren-gateway/internal/marketdata"
	"noren-gateway/internal/sessions"
	"noren-gateway/internal/subscriptions"
)

// WSHandler streams cache update events to browser clients. Each client sees
// only the instruments its own token tracks.
type WSHandler struct {
	bus      *marketdata.Bus
	sessions *sessions.Store
	tracker  *subscriptions.Tracker
	origin   string
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *marketdata.Bus, store *sessions.Store, tracker *subscriptions.Tracker, origin string) *WSHandler {
	return &WSHandler{
		bus:      bus,
		sessions: store,
		tracker:  tracker,
		origin:   origin,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set Authorization on WebSocket upgrades, so the token
	// rides in a query param.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if _, err := h.sessions.Lookup(token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	// Removal markers arrive after the tracker already dropped the key, so
	// membership is remembered per connection: a client gets the removal for
	// exactly the keys it has seen data for.
	seen := make(map[string]struct{})
	for {
		select {
		case evt := <-sub:
			if evt.Tick == nil {
				if _, ok := seen[evt.Key]; !ok {
					continue
				}
				delete(seen, evt.Key)
			} else {
				if !h.tracker.Tracks(token, evt.Key) {
					continue
				}
				seen[evt.Key] = struct{}{}
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
