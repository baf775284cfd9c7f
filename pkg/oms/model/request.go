package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExitParams carries the entry leg of a position being closed so realized
// profit can be computed when the exit fills.
type ExitParams struct {
	EntryPrice decimal.Decimal `json:"entryPrice"`
	EntryTime  time.Time       `json:"entryTime"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	ExitTime   time.Time       `json:"exitTime"`
}

// OrderRequest is what a strategy asks the coordinator to submit. It is not
// modified after it has been enqueued.
type OrderRequest struct {
	// Ref identifies the request for cancellation and logging. Assigned on
	// enqueue when empty.
	Ref        string           `json:"ref,omitempty"`
	Symbol     string           `json:"symbol"`
	Action     OrderAction      `json:"action"`
	OrderType  string           `json:"type"`
	Parameters []any            `json:"parameters"`
	ExitTrade  bool             `json:"exitTrade,omitempty"`
	ExitParams *ExitParams      `json:"exitParams,omitempty"`
	Capital    *decimal.Decimal `json:"capital,omitempty"`
}

// Clone copies the request so the caller's slices cannot alias queued state.
func (r OrderRequest) Clone() OrderRequest {
	c := r
	if r.Parameters != nil {
		c.Parameters = append([]any(nil), r.Parameters...)
	}
	if r.ExitParams != nil {
		p := *r.ExitParams
		c.ExitParams = &p
	}
	if r.Capital != nil {
		v := *r.Capital
		c.Capital = &v
	}
	return c
}

// Validate checks what can be checked without the gateway.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidRequest)
	}
	if len(r.Parameters) == 0 {
		return ErrMissingParameters
	}
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, r.Action)
	}
	if _, ok := lookupBuilder(r.OrderType); !ok {
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidRequest, r.OrderType)
	}
	return nil
}

// Param returns parameter i as a decimal. Accepts JSON numbers, numeric
// strings and Go numeric types.
func (r OrderRequest) Param(i int) (decimal.Decimal, error) {
	if i < 0 || i >= len(r.Parameters) {
		return decimal.Zero, fmt.Errorf("%w: parameter %d of %d", ErrMissingParameters, i+1, len(r.Parameters))
	}
	return toDecimal(r.Parameters[i])
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: parameter %q is not numeric", ErrInvalidRequest, x)
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("%w: unsupported parameter type %T", ErrInvalidRequest, v)
}
