package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type builderFunc func(r OrderRequest) (Order, error)

var builders = map[string]builderFunc{
	"market":        quantityOnly("MKT"),
	"marketonclose": quantityOnly("MOC"),
	"limit":         quantityAndLimit("LMT"),
	"limitonclose":  quantityAndLimit("LOC"),
	"stop":          quantityAndAux("STP"),
	"trailingstop":  quantityAndAux("TRAIL"),
	"stoplimit":     stopLimit,
}

func lookupBuilder(orderType string) (builderFunc, bool) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(orderType))
	b, ok := builders[key]
	return b, ok
}

// BuildOrder turns the request's ordered parameters into the order sent to
// the gateway:
//
//	market(qty)            limit(qty, price)       stop(qty, stopPrice)
//	marketOnClose(qty)     limitOnClose(qty, price) trailingStop(qty, auxPrice)
//	stopLimit(qty, limitPrice, stopPrice)
func BuildOrder(r OrderRequest) (Order, error) {
	if len(r.Parameters) == 0 {
		return Order{}, ErrMissingParameters
	}
	b, ok := lookupBuilder(r.OrderType)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown order type %q", ErrInvalidRequest, r.OrderType)
	}
	o, err := b(r)
	if err != nil {
		return Order{}, err
	}
	if !o.TotalQuantity.IsPositive() {
		return Order{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}
	o.Action = r.Action
	o.TimeInForce = "DAY"
	return o, nil
}

func quantityOnly(code string) builderFunc {
	return func(r OrderRequest) (Order, error) {
		qty, err := r.Param(0)
		if err != nil {
			return Order{}, err
		}
		return Order{OrderType: code, TotalQuantity: qty}, nil
	}
}

func quantityAndLimit(code string) builderFunc {
	return func(r OrderRequest) (Order, error) {
		qty, err := r.Param(0)
		if err != nil {
			return Order{}, err
		}
		price, err := r.Param(1)
		if err != nil {
			return Order{}, err
		}
		return Order{OrderType: code, TotalQuantity: qty, LimitPrice: price}, nil
	}
}

func quantityAndAux(code string) builderFunc {
	return func(r OrderRequest) (Order, error) {
		qty, err := r.Param(0)
		if err != nil {
			return Order{}, err
		}
		aux, err := r.Param(1)
		if err != nil {
			return Order{}, err
		}
		return Order{OrderType: code, TotalQuantity: qty, AuxPrice: aux}, nil
	}
}

func stopLimit(r OrderRequest) (Order, error) {
	qty, err := r.Param(0)
	if err != nil {
		return Order{}, err
	}
	limit, err := r.Param(1)
	if err != nil {
		return Order{}, err
	}
	stop, err := r.Param(2)
	if err != nil {
		return Order{}, err
	}
	return Order{OrderType: "STP LMT", TotalQuantity: qty, LimitPrice: limit, AuxPrice: stop}, nil
}

// ReferencePrice is the price a price-sensitive risk rule should look at:
// the limit price when there is one, the stop price otherwise.
func (o Order) ReferencePrice() (decimal.Decimal, bool) {
	if !o.LimitPrice.IsZero() {
		return o.LimitPrice, true
	}
	if !o.AuxPrice.IsZero() {
		return o.AuxPrice, true
	}
	return decimal.Zero, false
}
