package types

type OrderSide string

type OrderType string

type ProductType string

type OrderStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

const (
	ProductCNC      ProductType = "CNC"
	ProductIntraday ProductType = "INTRADAY"
	ProductNormal   ProductType = "NORMAL"
	ProductMTF      ProductType = "MTF"
)

const (
	OrderStatusPendingSend     OrderStatus = "PENDING_SEND"
	OrderStatusSentToBroker    OrderStatus = "SENT_TO_BROKER"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejectedLocal   OrderStatus = "REJECTED_LOCAL"
	OrderStatusRejectedBroker  OrderStatus = "REJECTED_BROKER"
	OrderStatusError           OrderStatus = "ERROR"
)

// RequiresPrice reports whether the order type needs a limit price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStop
}

// RequiresTrigger reports whether the order type needs a trigger price.
func (t OrderType) RequiresTrigger() bool {
	return t == OrderTypeStop || t == OrderTypeStopMarket
}
