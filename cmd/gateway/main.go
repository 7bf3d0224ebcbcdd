package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"noren-gateway/internal/broker"
	"noren-gateway/internal/broker/noren"
	"noren-gateway/internal/config"
	"noren-gateway/internal/gateway"
	"noren-gateway/internal/httpserver"
	"noren-gateway/internal/marketdata"
	"noren-gateway/internal/orders"
	"noren-gateway/internal/sessions"
	"noren-gateway/internal/subscriptions"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func main() {
	logger, err := newLogger()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var client broker.Client
	switch cfg.BrokerMode {
	case "noren":
		client = noren.New(cfg.NorenAPIURL, cfg.NorenWSURL, logger.Named("noren"))
	default:
		client = broker.NewMock()
	}

	store := sessions.NewStore(cfg.SessionTTL)
	tracker := subscriptions.NewTracker()
	bus := marketdata.NewBus()
	market := marketdata.NewResource(bus.Publish, logger.Named("marketdata"))
	limits := orders.Limits{MaxQuantity: cfg.MaxOrderQty, MaxNotional: cfg.MaxNotional}
	gw := gateway.New(client, store, tracker, market, limits, logger.Named("gateway"))

	handler := httpserver.NewHandler(gw, logger.Named("http"))
	wsHandler := httpserver.NewWSHandler(bus, store, tracker, cfg.WebSocketOrigin)
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Handler:   handler,
		Sessions:  store,
		WSHandler: wsHandler,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	logger.Info("gateway listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("broker_mode", cfg.BrokerMode))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server", zap.Error(err))
	}
}
