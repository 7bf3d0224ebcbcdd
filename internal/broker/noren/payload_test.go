package noren

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noren-gateway/internal/marketdata"
	"noren-gateway/internal/types"
)

func TestLoginResponseDecode(t *testing.T) {
	raw := `{"stat":"Ok","susertoken":"abc123","uid":"FA1234","uname":"ADA LOVELACE"}`
	var res loginResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &res))
	assert.Equal(t, statOK, res.Stat)
	assert.Equal(t, "abc123", res.Token)
	assert.Equal(t, "ADA LOVELACE", res.Username)
}

func TestStatNotOkCarriesMessage(t *testing.T) {
	raw := `{"stat":"Not_Ok","emsg":"Session Expired"}`
	var res statResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &res))
	assert.Equal(t, statNotOK, res.Stat)
	assert.Equal(t, "Session Expired", res.Emsg)
}

func TestTickUpdateDecodesQuotedNumbers(t *testing.T) {
	raw := `{"t":"tf","e":"NSE","tk":"22","lp":"123.45","v":"1000","ft":"09:15:01"}`
	var u marketdata.TickUpdate
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	assert.Equal(t, marketdata.KindTouchline, u.Kind)
	assert.Equal(t, "NSE", u.Exchange)
	assert.Equal(t, "22", u.Token)
	require.NotNil(t, u.LastPrice)
	assert.True(t, u.LastPrice.Equal(decimal.RequireFromString("123.45")))
	require.NotNil(t, u.FeedTime)
	assert.Equal(t, "09:15:01", *u.FeedTime)
	assert.Nil(t, u.Open, "absent fields stay nil")
}

func TestTickUpdateDecodesBareNumbers(t *testing.T) {
	raw := `{"t":"tk","e":"NSE","tk":"22","lp":123.45}`
	var u marketdata.TickUpdate
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	require.NotNil(t, u.LastPrice)
	assert.True(t, u.LastPrice.Equal(decimal.RequireFromString("123.45")))
}

func TestSubscriptionKeysJoined(t *testing.T) {
	sub := wsSubscription{Type: "t", Keys: "NSE|22#BSE|500325"}
	out, err := json.Marshal(sub)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"t","k":"NSE|22#BSE|500325"}`, string(out))
}

func TestOrderCodeMapping(t *testing.T) {
	assert.Equal(t, "MKT", priceType(types.OrderTypeMarket))
	assert.Equal(t, "LMT", priceType(types.OrderTypeLimit))
	assert.Equal(t, "SL-LMT", priceType(types.OrderTypeStop))
	assert.Equal(t, "SL-MKT", priceType(types.OrderTypeStopMarket))

	assert.Equal(t, "B", sideCode(types.OrderSideBuy))
	assert.Equal(t, "S", sideCode(types.OrderSideSell))

	assert.Equal(t, "C", productCode(types.ProductCNC))
	assert.Equal(t, "I", productCode(types.ProductIntraday))
	assert.Equal(t, "M", productCode(types.ProductNormal))
	assert.Equal(t, "F", productCode(types.ProductMTF))
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, int64(150), parseInt("150"))
	assert.Equal(t, int64(0), parseInt("garbage"))

	d := parseDec("42.5")
	require.NotNil(t, d)
	assert.True(t, d.Equal(decimal.RequireFromString("42.5")))
	assert.Nil(t, parseDec(""))
	assert.Nil(t, parseDec("n/a"))
}

func TestHoldingRowDecode(t *testing.T) {
	raw := `{"stat":"Ok","exch_tsym":[{"exch":"NSE","token":"2885","tsym":"RELIANCE-EQ"},{"exch":"BSE","token":"500325","tsym":"RELIANCE"}],"holdqty":"50","usedqty":"10","upldprc":"2450.00","prd":"C"}`
	var row holdingRow
	require.NoError(t, json.Unmarshal([]byte(raw), &row))
	require.Len(t, row.Instruments, 2)
	assert.Equal(t, "NSE", row.Instruments[0].Exchange)
	assert.Equal(t, "RELIANCE-EQ", row.Instruments[0].Symbol)
	assert.Equal(t, int64(50), parseInt(row.HoldQty))
	d := parseDec(row.UploadPrc)
	require.NotNil(t, d)
	assert.True(t, d.Equal(decimal.NewFromInt(2450)))
}

func TestCandleRowDecode(t *testing.T) {
	raw := `{"stat":"Ok","time":"29-08-2026 09:15:00","into":"120.00","inth":"126.00","intl":"119.00","intc":"123.45","intv":"1000","intoi":"0"}`
	var row candleRow
	require.NoError(t, json.Unmarshal([]byte(raw), &row))
	assert.Equal(t, "29-08-2026 09:15:00", row.Time)
	c := parseDec(row.Close)
	require.NotNil(t, c)
	assert.True(t, c.Equal(decimal.RequireFromString("123.45")))
}

func TestOptionChainResponseDecode(t *testing.T) {
	raw := `{"stat":"Ok","values":[{"exch":"NFO","token":"49543","tsym":"NIFTY28AUG26C22500","optt":"CE","strprc":"22500.00","ls":"50"}]}`
	var res optionChainResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &res))
	require.Len(t, res.Values, 1)
	assert.Equal(t, "CE", res.Values[0].OptionType)
	assert.Equal(t, int64(50), parseInt(res.Values[0].LotSize))
}

func TestSearchResponseDecode(t *testing.T) {
	raw := `{"stat":"Ok","values":[{"exch":"NSE","token":"22","tsym":"ACC-EQ","cname":"ACC LIMITED","ls":"1","ti":"0.05"}]}`
	var res searchResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &res))
	require.Len(t, res.Values, 1)
	assert.Equal(t, "ACC-EQ", res.Values[0].Symbol)
	assert.Equal(t, "22", res.Values[0].Token)
}
