package venue

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradefabric/gateway/internal/apierr"
	"github.com/tradefabric/gateway/internal/model"
)

// ValidateOrder applies the local pre-submission checks every adapter
// must perform (spec.md §4.1): symbol supported, quantity >= venue
// min size, price respects tick size, and the structural invariants of
// model.Order.Validate (required price/stop_price per order type).
func ValidateOrder(order *model.Order, info *SymbolInfo) error {
	if info == nil {
		return apierr.OrderValidation(fmt.Sprintf("symbol %q not supported", order.Symbol))
	}
	if err := order.Validate(); err != nil {
		return apierr.OrderValidation(err.Error())
	}
	if order.Quantity.LessThan(info.MinSize) {
		return apierr.OrderValidation(fmt.Sprintf("quantity %s below venue minimum %s", order.Quantity, info.MinSize))
	}
	if !info.MaxSize.IsZero() && order.Quantity.GreaterThan(info.MaxSize) {
		return apierr.OrderValidation(fmt.Sprintf("quantity %s above venue maximum %s", order.Quantity, info.MaxSize))
	}
	if order.Price != nil && !info.TickSize.IsZero() {
		if !respectsTick(*order.Price, info.TickSize) {
			return apierr.OrderValidation(fmt.Sprintf("price %s does not respect tick size %s", order.Price, info.TickSize))
		}
	}
	return nil
}

// respectsTick reports whether price is an exact multiple of tick.
func respectsTick(price, tick decimal.Decimal) bool {
	if tick.IsZero() {
		return true
	}
	mod := price.Mod(tick)
	return mod.IsZero()
}
