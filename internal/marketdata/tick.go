package marketdata

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Feed payload kinds. Only touchline and depth updates carry data; everything
// else (subscription acks, heartbeats) is ignored by the resource.
const (
	KindTouchline    = "tf"
	KindDepth        = "df"
	KindTouchlineAck = "tk"
	KindDepthAck     = "dk"
)

var ErrBadKey = errors.New("malformed instrument key")

// Instrument identifies a tradable instrument on an exchange.
type Instrument struct {
	Exchange string `json:"exchange"`
	Token    string `json:"token"`
}

func (i Instrument) Key() string {
	return Key(i.Exchange, i.Token)
}

// Key builds the canonical EXCHANGE|TOKEN identifier.
func Key(exchange, token string) string {
	return exchange + "|" + token
}

// ParseKey splits a canonical key back into exchange and token.
func ParseKey(key string) (exchange, token string, err error) {
	exchange, token, ok := strings.Cut(key, "|")
	if !ok || exchange == "" || token == "" {
		return "", "", ErrBadKey
	}
	return exchange, token, nil
}

// Tick is the last known market state for one instrument. Every field other
// than Exchange/Token is independently present-or-absent so that "not yet
// received" stays distinguishable from "received as zero".
type Tick struct {
	Exchange      string           `json:"e"`
	Token         string           `json:"tk"`
	LastPrice     *decimal.Decimal `json:"lp,omitempty"`
	LastQty       *decimal.Decimal `json:"lq,omitempty"`
	AvgPrice      *decimal.Decimal `json:"ap,omitempty"`
	Volume        *decimal.Decimal `json:"v,omitempty"`
	ChangePercent *decimal.Decimal `json:"c,omitempty"`
	Open          *decimal.Decimal `json:"o,omitempty"`
	High          *decimal.Decimal `json:"h,omitempty"`
	Low           *decimal.Decimal `json:"l,omitempty"`
	PrevClose     *decimal.Decimal `json:"cl,omitempty"`
	TotalBuyQty   *decimal.Decimal `json:"tbq,omitempty"`
	TotalSellQty  *decimal.Decimal `json:"tsq,omitempty"`
	OpenInterest  *decimal.Decimal `json:"oi,omitempty"`
	FeedTime      *string          `json:"ft,omitempty"`
	ReceivedAt    time.Time        `json:"received_at"`
}

// TickUpdate is one raw feed message. Field tags follow the broker's wire
// names; decimal fields accept both quoted and bare numbers.
type TickUpdate struct {
	Kind          string           `json:"t"`
	Exchange      string           `json:"e"`
	Token         string           `json:"tk"`
	LastPrice     *decimal.Decimal `json:"lp"`
	LastQty       *decimal.Decimal `json:"lq"`
	AvgPrice      *decimal.Decimal `json:"ap"`
	Volume        *decimal.Decimal `json:"v"`
	ChangePercent *decimal.Decimal `json:"c"`
	Open          *decimal.Decimal `json:"o"`
	High          *decimal.Decimal `json:"h"`
	Low           *decimal.Decimal `json:"l"`
	PrevClose     *decimal.Decimal `json:"cl"`
	TotalBuyQty   *decimal.Decimal `json:"tbq"`
	TotalSellQty  *decimal.Decimal `json:"tsq"`
	OpenInterest  *decimal.Decimal `json:"oi"`
	FeedTime      *string          `json:"ft"`
}

// carriesData reports whether the payload kind is one of the two recognized
// data-carrying kinds. Acks and heartbeats are filtered out deliberately.
func (u TickUpdate) carriesData() bool {
	return u.Kind == KindTouchline || u.Kind == KindDepth
}

// apply merges the update field by field. A field absent from the update
// keeps its previously stored value.
func (t *Tick) apply(u TickUpdate) {
	if u.LastPrice != nil {
		t.LastPrice = u.LastPrice
	}
	if u.LastQty != nil {
		t.LastQty = u.LastQty
	}
	if u.AvgPrice != nil {
		t.AvgPrice = u.AvgPrice
	}
	if u.Volume != nil {
		t.Volume = u.Volume
	}
	if u.ChangePercent != nil {
		t.ChangePercent = u.ChangePercent
	}
	if u.Open != nil {
		t.Open = u.Open
	}
	if u.High != nil {
		t.High = u.High
	}
	if u.Low != nil {
		t.Low = u.Low
	}
	if u.PrevClose != nil {
		t.PrevClose = u.PrevClose
	}
	if u.TotalBuyQty != nil {
		t.TotalBuyQty = u.TotalBuyQty
	}
	if u.TotalSellQty != nil {
		t.TotalSellQty = u.TotalSellQty
	}
	if u.OpenInterest != nil {
		t.OpenInterest = u.OpenInterest
	}
	if u.FeedTime != nil {
		t.FeedTime = u.FeedTime
	}
}

// clone returns a copy whose pointer fields are detached from the original,
// so callers can never reach into the resource's stored state.
func (t Tick) clone() Tick {
	out := t
	out.LastPrice = cloneDec(t.LastPrice)
	out.LastQty = cloneDec(t.LastQty)
	out.AvgPrice = cloneDec(t.AvgPrice)
	out.Volume = cloneDec(t.Volume)
	out.ChangePercent = cloneDec(t.ChangePercent)
	out.Open = cloneDec(t.Open)
	out.High = cloneDec(t.High)
	out.Low = cloneDec(t.Low)
	out.PrevClose = cloneDec(t.PrevClose)
	out.TotalBuyQty = cloneDec(t.TotalBuyQty)
	out.TotalSellQty = cloneDec(t.TotalSellQty)
	out.OpenInterest = cloneDec(t.OpenInterest)
	if t.FeedTime != nil {
		ft := *t.FeedTime
		out.FeedTime = &ft
	}
	return out
}

func cloneDec(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
