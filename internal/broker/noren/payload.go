package noren

import (
	"strconv"

	"github.com/shopspring/decimal"

	"noren-gateway/internal/types"
)

const (
	statOK    = "Ok"
	statNotOK = "Not_Ok"
)

type statResponse struct {
	Stat string `json:"stat"`
	Emsg string `json:"emsg"`
}

type loginRequest struct {
	APKVersion string `json:"apkversion"`
	UserID     string `json:"uid"`
	Password   string `json:"pwd"`
	Factor2    string `json:"factor2"`
	VendorCode string `json:"vc"`
	AppKey     string `json:"appkey"`
	IMEI       string `json:"imei"`
	Source     string `json:"source"`
}

type loginResponse struct {
	statResponse
	Token    string `json:"susertoken"`
	UserID   string `json:"uid"`
	Username string `json:"uname"`
}

type placeOrderRequest struct {
	UserID       string `json:"uid"`
	AccountID    string `json:"actid"`
	Exchange     string `json:"exch"`
	Symbol       string `json:"tsym"`
	Quantity     string `json:"qty"`
	Price        string `json:"prc"`
	TriggerPrice string `json:"trgprc,omitempty"`
	DiscloseQty  string `json:"dscqty"`
	Product      string `json:"prd"`
	Side         string `json:"trantype"`
	PriceType    string `json:"prctyp"`
	Retention    string `json:"ret"`
	Remarks      string `json:"remarks,omitempty"`
	OrderSource  string `json:"ordersource"`
}

type placeOrderResponse struct {
	statResponse
	OrderNo string `json:"norenordno"`
}

type accountRequest struct {
	UserID    string `json:"uid"`
	AccountID string `json:"actid"`
	Product   string `json:"prd,omitempty"`
}

type holdingsRequest struct {
	UserID    string `json:"uid"`
	AccountID string `json:"actid"`
	Product   string `json:"prd"`
}

type optionChainRequest struct {
	UserID      string `json:"uid"`
	Exchange    string `json:"exch"`
	Symbol      string `json:"tsym"`
	StrikePrice string `json:"strprc"`
	Count       string `json:"cnt"`
}

type tpSeriesRequest struct {
	UserID   string `json:"uid"`
	Exchange string `json:"exch"`
	Token    string `json:"token"`
	Start    string `json:"st"`
	End      string `json:"et,omitempty"`
	Interval string `json:"intrv"`
}

type searchRequest struct {
	UserID   string `json:"uid"`
	Exchange string `json:"exch"`
	Text     string `json:"stext"`
}

type quoteRequest struct {
	UserID   string `json:"uid"`
	Exchange string `json:"exch"`
	Token    string `json:"token"`
}

// Broker rows arrive with every number as a string; converted on decode.
type bookRow struct {
	OrderNo   string `json:"norenordno"`
	Exchange  string `json:"exch"`
	Symbol    string `json:"tsym"`
	Side      string `json:"trantype"`
	PriceType string `json:"prctyp"`
	Product   string `json:"prd"`
	Status    string `json:"status"`
	Quantity  string `json:"qty"`
	FillShare string `json:"fillshares"`
	Price     string `json:"prc"`
}

type positionRow struct {
	Exchange  string `json:"exch"`
	Symbol    string `json:"tsym"`
	Product   string `json:"prd"`
	NetQty    string `json:"netqty"`
	AvgPrice  string `json:"netavgprc"`
	LastPrice string `json:"lp"`
	MTM       string `json:"urmtom"`
}

// holdingRow carries the instrument identity in a nested exch_tsym list;
// the same holding can be listed on more than one exchange.
type holdingRow struct {
	Instruments []struct {
		Exchange string `json:"exch"`
		Token    string `json:"token"`
		Symbol   string `json:"tsym"`
	} `json:"exch_tsym"`
	Product   string `json:"prd"`
	HoldQty   string `json:"holdqty"`
	UsedQty   string `json:"usedqty"`
	UploadPrc string `json:"upldprc"`
}

type optionRow struct {
	Exchange    string `json:"exch"`
	Token       string `json:"token"`
	Symbol      string `json:"tsym"`
	OptionType  string `json:"optt"`
	StrikePrice string `json:"strprc"`
	LotSize     string `json:"ls"`
}

type optionChainResponse struct {
	statResponse
	Values []optionRow `json:"values"`
}

type candleRow struct {
	Time         string `json:"time"`
	Open         string `json:"into"`
	High         string `json:"inth"`
	Low          string `json:"intl"`
	Close        string `json:"intc"`
	Volume       string `json:"intv"`
	OpenInterest string `json:"intoi"`
}

type limitsResponse struct {
	statResponse
	Cash       string `json:"cash"`
	MarginUsed string `json:"marginused"`
	Collateral string `json:"collateral"`
	PayIn      string `json:"payin"`
}

type searchResponse struct {
	statResponse
	Values []scripRow `json:"values"`
}

type scripRow struct {
	Exchange string `json:"exch"`
	Token    string `json:"token"`
	Symbol   string `json:"tsym"`
	Name     string `json:"cname"`
	LotSize  string `json:"ls"`
	TickSize string `json:"ti"`
}

type quoteResponse struct {
	statResponse
	Exchange  string `json:"exch"`
	Token     string `json:"token"`
	Symbol    string `json:"tsym"`
	LastPrice string `json:"lp"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	PrevClose string `json:"c"`
	Volume    string `json:"v"`
}

type wsConnect struct {
	Type      string `json:"t"`
	UserID    string `json:"uid"`
	AccountID string `json:"actid"`
	Token     string `json:"susertoken"`
	Source    string `json:"source"`
}

type wsSubscription struct {
	Type string `json:"t"`
	Keys string `json:"k"`
}

type wsConnectAck struct {
	Type   string `json:"t"`
	UserID string `json:"uid"`
	Status string `json:"s"`
}

type wsOrderUpdate struct {
	Type     string `json:"t"`
	OrderNo  string `json:"norenordno"`
	Exchange string `json:"exch"`
	Symbol   string `json:"tsym"`
	Status   string `json:"status"`
}

func priceType(t types.OrderType) string {
	switch t {
	case types.OrderTypeLimit:
		return "LMT"
	case types.OrderTypeStop:
		return "SL-LMT"
	case types.OrderTypeStopMarket:
		return "SL-MKT"
	default:
		return "MKT"
	}
}

func sideCode(s types.OrderSide) string {
	if s == types.OrderSideSell {
		return "S"
	}
	return "B"
}

func productCode(p types.ProductType) string {
	switch p {
	case types.ProductCNC:
		return "C"
	case types.ProductNormal:
		return "M"
	case types.ProductMTF:
		return "F"
	default:
		return "I"
	}
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseDec(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
