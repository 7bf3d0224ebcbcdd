package marketdata

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) notify(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestInitializeIdempotent(t *testing.T) {
	rec := &recorder{}
	r := NewResource(rec.notify, nil)

	require.NoError(t, r.Initialize("NSE|22"))
	require.NoError(t, r.Initialize("NSE|22"))

	events := rec.all()
	require.Len(t, events, 1, "repeat initialize must not notify")
	assert.Equal(t, "NSE|22", events[0].Key)
	require.NotNil(t, events[0].Tick)
	assert.Equal(t, "NSE", events[0].Tick.Exchange)
	assert.Equal(t, "22", events[0].Tick.Token)
	assert.Nil(t, events[0].Tick.LastPrice)

	tick, ok := r.Get("NSE|22")
	require.True(t, ok)
	assert.Nil(t, tick.LastPrice)
	assert.True(t, tick.ReceivedAt.IsZero())
}

func TestInitializeRejectsMalformedKey(t *testing.T) {
	r := NewResource(nil, nil)
	assert.ErrorIs(t, r.Initialize("NSE"), ErrBadKey)
	assert.ErrorIs(t, r.Initialize("|22"), ErrBadKey)
	assert.ErrorIs(t, r.Initialize(""), ErrBadKey)
}

func TestIngestTickMergesFields(t *testing.T) {
	rec := &recorder{}
	r := NewResource(rec.notify, nil)

	r.IngestTick("NSE|22", TickUpdate{Kind: KindTouchline, LastPrice: dec("123.45"), Open: dec("120")})
	r.IngestTick("NSE|22", TickUpdate{Kind: KindTouchline, LastPrice: dec("124.10")})

	tick, ok := r.Get("NSE|22")
	require.True(t, ok)
	require.NotNil(t, tick.LastPrice)
	assert.True(t, tick.LastPrice.Equal(decimal.RequireFromString("124.10")), "last write wins")
	require.NotNil(t, tick.Open)
	assert.True(t, tick.Open.Equal(decimal.NewFromInt(120)), "untouched field survives")
	assert.False(t, tick.ReceivedAt.IsZero())

	assert.Len(t, rec.all(), 2, "one notification per accepted update")
}

func TestIngestTickDropsNonDataKinds(t *testing.T) {
	rec := &recorder{}
	r := NewResource(rec.notify, nil)
	require.NoError(t, r.Initialize("NSE|22"))

	r.IngestTick("NSE|22", TickUpdate{Kind: KindTouchlineAck, LastPrice: dec("999")})
	r.IngestTick("NSE|22", TickUpdate{Kind: KindDepthAck, LastPrice: dec("999")})
	r.IngestTick("NSE|22", TickUpdate{Kind: "h"})

	tick, _ := r.Get("NSE|22")
	assert.Nil(t, tick.LastPrice, "acks must not mutate state")
	assert.Len(t, rec.all(), 1, "acks must not notify")
}

func TestIngestTickDepthKindAccepted(t *testing.T) {
	r := NewResource(nil, nil)
	r.IngestTick("NSE|22", TickUpdate{Kind: KindDepth, TotalBuyQty: dec("5000")})
	tick, ok := r.Get("NSE|22")
	require.True(t, ok)
	require.NotNil(t, tick.TotalBuyQty)
	assert.True(t, tick.TotalBuyQty.Equal(decimal.NewFromInt(5000)))
}

func TestRemove(t *testing.T) {
	rec := &recorder{}
	r := NewResource(rec.notify, nil)
	require.NoError(t, r.Initialize("NSE|22"))

	r.Remove("NSE|22")
	_, ok := r.Get("NSE|22")
	assert.False(t, ok)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, "NSE|22", events[1].Key)
	assert.Nil(t, events[1].Tick, "removal notifies with a nil tick")

	r.Remove("NSE|22")
	assert.Len(t, rec.all(), 2, "removing an absent key must not notify")
}

func TestGetAllReturnsIndependentCopies(t *testing.T) {
	r := NewResource(nil, nil)
	r.IngestTick("NSE|22", TickUpdate{Kind: KindTouchline, LastPrice: dec("100")})

	snap := r.GetAll()
	require.Len(t, snap, 1)
	entry := snap["NSE|22"]
	*entry.LastPrice = decimal.NewFromInt(999)

	tick, _ := r.Get("NSE|22")
	assert.True(t, tick.LastPrice.Equal(decimal.NewFromInt(100)), "snapshot mutation must not leak into the cache")
}

func TestConcurrentIngestAndRead(t *testing.T) {
	r := NewResource(nil, nil)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.IngestTick("NSE|22", TickUpdate{Kind: KindTouchline, LastPrice: dec("101.5")})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.Get("NSE|22")
			r.GetAll()
		}
	}()
	wg.Wait()
	tick, ok := r.Get("NSE|22")
	require.True(t, ok)
	assert.True(t, tick.LastPrice.Equal(decimal.RequireFromString("101.5")))
}

func TestParseKey(t *testing.T) {
	exchange, token, err := ParseKey("NSE|22")
	require.NoError(t, err)
	assert.Equal(t, "NSE", exchange)
	assert.Equal(t, "22", token)

	_, _, err = ParseKey("NSE22")
	assert.ErrorIs(t, err, ErrBadKey)
}

func TestBusPublishDoesNotBlock(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	// Overfill the buffer; the publisher must not stall.
	for i := 0; i < 250; i++ {
		b.Publish(Event{Key: "NSE|22"})
	}
	assert.Len(t, sub, 100)
}
