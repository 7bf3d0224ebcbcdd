// Package orders applies field and risk-gate validation to incoming orders.
// Validation is pure: no I/O, no shared state, and it runs before any
// network call so obviously invalid or oversized orders never leave the
// process.
package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"noren-gateway/internal/types"
)

var allowedExchanges = map[string]struct{}{
	"NSE": {}, "NFO": {}, "CDS": {}, "BSE": {}, "MCX": {},
}

var allowedOrderTypes = map[types.OrderType]struct{}{
	types.OrderTypeMarket:     {},
	types.OrderTypeLimit:      {},
	types.OrderTypeStop:       {},
	types.OrderTypeStopMarket: {},
}

var allowedSides = map[types.OrderSide]struct{}{
	types.OrderSideBuy:  {},
	types.OrderSideSell: {},
}

var allowedProducts = map[types.ProductType]struct{}{
	types.ProductCNC:      {},
	types.ProductIntraday: {},
	types.ProductNormal:   {},
	types.ProductMTF:      {},
}

// Limits are the fixed risk ceilings. Both are inclusive.
type Limits struct {
	MaxQuantity decimal.Decimal
	MaxNotional decimal.Decimal
}

func DefaultLimits() Limits {
	return Limits{
		MaxQuantity: decimal.NewFromInt(100_000),
		MaxNotional: decimal.NewFromInt(5_000_000),
	}
}

// Request is an incoming order before validation. Optional fields are nil
// when the caller omitted them, so missing stays distinguishable from zero.
type Request struct {
	Symbol       string
	Exchange     string
	Quantity     *decimal.Decimal
	OrderType    types.OrderType
	Side         types.OrderSide
	Product      types.ProductType
	Price        *decimal.Decimal
	TriggerPrice *decimal.Decimal
}

// Validate returns every violation found. Missing required fields
// short-circuit: a request without its basic fields never reaches type or
// range checks. An empty result means the order passed the gate.
func Validate(req Request, lim Limits) []string {
	var missing []string
	if req.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if req.Exchange == "" {
		missing = append(missing, "exchange")
	}
	if req.Quantity == nil {
		missing = append(missing, "quantity")
	}
	if req.OrderType == "" {
		missing = append(missing, "order_type")
	}
	if req.Side == "" {
		missing = append(missing, "side")
	}
	if req.Product == "" {
		missing = append(missing, "product_type")
	}
	if len(missing) > 0 {
		return []string{"missing order parameters: " + strings.Join(missing, ", ")}
	}

	var violations []string
	if _, ok := allowedExchanges[req.Exchange]; !ok {
		violations = append(violations, fmt.Sprintf("invalid exchange %q", req.Exchange))
	}
	orderTypeOK := true
	if _, ok := allowedOrderTypes[req.OrderType]; !ok {
		orderTypeOK = false
		violations = append(violations, fmt.Sprintf("invalid order_type %q", req.OrderType))
	}
	if _, ok := allowedSides[req.Side]; !ok {
		violations = append(violations, fmt.Sprintf("invalid side %q", req.Side))
	}
	if _, ok := allowedProducts[req.Product]; !ok {
		violations = append(violations, fmt.Sprintf("invalid product_type %q", req.Product))
	}

	qty := *req.Quantity
	qtyOK := false
	if !qty.IsInteger() || qty.Sign() <= 0 {
		violations = append(violations, "quantity must be a positive integer")
	} else if qty.GreaterThan(lim.MaxQuantity) {
		violations = append(violations, fmt.Sprintf("quantity %s exceeds maximum allowed %s", qty, lim.MaxQuantity))
	} else {
		qtyOK = true
	}

	if orderTypeOK && req.OrderType.RequiresPrice() {
		if req.Price == nil || req.Price.Sign() <= 0 {
			violations = append(violations, fmt.Sprintf("price must be a positive number for %s orders", req.OrderType))
		} else if qtyOK {
			// Notional gate applies only when a price is known; market
			// orders carry no price at validation time.
			notional := qty.Mul(*req.Price)
			if notional.GreaterThan(lim.MaxNotional) {
				violations = append(violations, fmt.Sprintf(
					"order value %s (qty %s x price %s) exceeds maximum allowed %s",
					notional, qty, req.Price, lim.MaxNotional))
			}
		}
	}
	if orderTypeOK && req.OrderType.RequiresTrigger() {
		if req.TriggerPrice == nil || req.TriggerPrice.Sign() <= 0 {
			violations = append(violations, fmt.Sprintf("trigger_price must be a positive number for %s orders", req.OrderType))
		}
	}
	return violations
}
