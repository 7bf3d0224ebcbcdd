package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"noren-gateway/internal/httputil"
	"noren-gateway/internal/sessions"
)

type RouterDeps struct {
	Handler   *Handler
	Sessions  *sessions.Store
	WSHandler http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/v1", func(r chi.Router) {
		r.Post("/connect", d.Handler.Connect)
		r.Get("/marketdata/ws", d.WSHandler.ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Sessions))
			r.Post("/disconnect", withToken(d.Handler.Disconnect))
			r.Post("/order", withToken(d.Handler.PlaceOrder))
			r.Get("/orders", withToken(d.Handler.OrderBook))
			r.Get("/positions", withToken(d.Handler.Positions))
			r.Get("/holdings", withToken(d.Handler.Holdings))
			r.Get("/limits", withToken(d.Handler.Limits))
			r.Get("/scrips/search", withToken(d.Handler.SearchScrip))
			r.Get("/quote", withToken(d.Handler.Quote))
			r.Get("/optionchain", withToken(d.Handler.OptionChain))
			r.Get("/timeseries", withToken(d.Handler.TimePriceSeries))
			r.Post("/marketdata/subscribe", withToken(d.Handler.Subscribe))
			r.Post("/marketdata/unsubscribe", withToken(d.Handler.Unsubscribe))
			r.Get("/marketdata/fetch", withToken(d.Handler.Fetch))
		})
	})
	return r
}

func withToken(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := Token(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		h(w, r, token)
	}
}
