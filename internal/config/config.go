package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr        string
	WebSocketOrigin string
	BrokerMode      string
	NorenAPIURL     string
	NorenWSURL      string
	SessionTTL      time.Duration
	MaxOrderQty     decimal.Decimal
	MaxNotional     decimal.Decimal
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.BrokerMode = strings.ToLower(strings.TrimSpace(os.Getenv("BROKER_MODE")))
	if c.BrokerMode == "" {
		c.BrokerMode = "mock"
	}
	if c.BrokerMode != "mock" && c.BrokerMode != "noren" {
		return c, errors.New("invalid BROKER_MODE: use mock or noren")
	}
	c.NorenAPIURL = os.Getenv("NOREN_API_URL")
	c.NorenWSURL = os.Getenv("NOREN_WS_URL")
	if c.BrokerMode == "noren" {
		if c.NorenAPIURL == "" {
			missing = append(missing, "NOREN_API_URL")
		}
		if c.NorenWSURL == "" {
			missing = append(missing, "NOREN_WS_URL")
		}
	}
	ttl := os.Getenv("SESSION_TTL")
	if ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return c, errors.New("invalid SESSION_TTL")
		}
		c.SessionTTL = d
	}
	maxQty := os.Getenv("MAX_ORDER_QTY")
	if maxQty == "" {
		maxQty = "100000"
	}
	q, err := decimal.NewFromString(maxQty)
	if err != nil || !q.IsInteger() || q.Sign() <= 0 {
		return c, errors.New("invalid MAX_ORDER_QTY")
	}
	c.MaxOrderQty = q
	maxNotional := os.Getenv("MAX_ORDER_NOTIONAL")
	if maxNotional == "" {
		maxNotional = "5000000"
	}
	n, err := decimal.NewFromString(maxNotional)
	if err != nil || n.Sign() <= 0 {
		return c, errors.New("invalid MAX_ORDER_NOTIONAL")
	}
	c.MaxNotional = n
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
