package fixgateway

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/fix44/newordersingle"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedOrderType = errors.New("order type not supported over FIX")

const (
	ordTypeStop          enum.OrdType = "3"
	ordTypeStopLimit     enum.OrdType = "4"
	ordTypeMarketOnClose enum.OrdType = "5"
	ordTypeLimitOnClose  enum.OrdType = "B"
)

var (
	// OrdTypeMapping maps gateway order type codes to FIX OrdType.
	OrdTypeMapping = map[string]enum.OrdType{
		"MKT":     enum.OrdType_MARKET,
		"LMT":     enum.OrdType_LIMIT,
		"STP":     ordTypeStop,
		"STP LMT": ordTypeStopLimit,
		"MOC":     ordTypeMarketOnClose,
		"LOC":     ordTypeLimitOnClose,
	}

	SideMapping = map[model.OrderAction]enum.Side{
		model.OrderActionBuy:  enum.Side_BUY,
		model.OrderActionSell: enum.Side_SELL,
	}

	TimeInForceMapping = map[string]enum.TimeInForce{
		"DAY": enum.TimeInForce_DAY,
		"GTC": enum.TimeInForce_GOOD_TILL_CANCEL,
		"IOC": enum.TimeInForce_IMMEDIATE_OR_CANCEL,
		"FOK": enum.TimeInForce_FILL_OR_KILL,
	}

	// OrderStatusMapping maps FIX OrdStatus onto gateway statuses. Rejected,
	// expired and done-for-day orders will not trade again and count as
	// Cancelled.
	OrderStatusMapping = map[enum.OrdStatus]model.OrderStatus{
		enum.OrdStatus_PENDING_NEW:          model.OrderStatusPendingSubmit,
		enum.OrdStatus_ACCEPTED_FOR_BIDDING: model.OrderStatusPreSubmitted,
		enum.OrdStatus_NEW:                  model.OrderStatusSubmitted,
		enum.OrdStatus_CALCULATED:           model.OrderStatusSubmitted,
		enum.OrdStatus_REPLACED:             model.OrderStatusSubmitted,
		enum.OrdStatus_PENDING_REPLACE:      model.OrderStatusSubmitted,
		enum.OrdStatus_STOPPED:              model.OrderStatusSubmitted,
		enum.OrdStatus_PARTIALLY_FILLED:     model.OrderStatusPartiallyFilled,
		enum.OrdStatus_FILLED:               model.OrderStatusFilled,
		enum.OrdStatus_PENDING_CANCEL:       model.OrderStatusPendingCancel,
		enum.OrdStatus_CANCELED:             model.OrderStatusCancelled,
		enum.OrdStatus_EXPIRED:              model.OrderStatusCancelled,
		enum.OrdStatus_DONE_FOR_DAY:         model.OrderStatusCancelled,
		enum.OrdStatus_REJECTED:             model.OrderStatusCancelled,
		enum.OrdStatus_SUSPENDED:            model.OrderStatusInactive,
	}
)

func newOrderSingle(id int64, contract model.Contract, order model.Order, account string) (newordersingle.NewOrderSingle, error) {
	ordType, ok := OrdTypeMapping[order.OrderType]
	if !ok {
		return newordersingle.NewOrderSingle{}, fmt.Errorf("%w: %q", ErrUnsupportedOrderType, order.OrderType)
	}
	side, ok := SideMapping[order.Action]
	if !ok {
		return newordersingle.NewOrderSingle{}, fmt.Errorf("unknown action %q", order.Action)
	}

	msg := newordersingle.New(
		field.NewClOrdID(strconv.FormatInt(id, 10)),
		field.NewSide(side),
		field.NewTransactTime(time.Now().UTC()),
		field.NewOrdType(ordType),
	)
	msg.SetSymbol(contract.Symbol)
	msg.SetOrderQty(order.TotalQuantity, 0)
	if contract.Currency != "" {
		msg.SetCurrency(contract.Currency)
	}
	if tif, ok := TimeInForceMapping[order.TimeInForce]; ok {
		msg.SetTimeInForce(tif)
	}
	if account != "" {
		msg.SetAccount(account)
	}

	switch ordType {
	case enum.OrdType_LIMIT, ordTypeLimitOnClose:
		msg.SetPrice(order.LimitPrice, scale(order.LimitPrice))
	case ordTypeStop:
		msg.SetStopPx(order.AuxPrice, scale(order.AuxPrice))
	case ordTypeStopLimit:
		msg.SetPrice(order.LimitPrice, scale(order.LimitPrice))
		msg.SetStopPx(order.AuxPrice, scale(order.AuxPrice))
	}
	return msg, nil
}

func scale(d decimal.Decimal) int32 {
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

func parseExecutionReport(msg executionreport.ExecutionReport) (executionReport, error) {
	clOrdID, err := msg.GetClOrdID()
	if err != nil {
		return executionReport{}, fmt.Errorf("execution report without ClOrdID: %v", err)
	}
	orderID, perr := strconv.ParseInt(clOrdID, 10, 64)
	if perr != nil {
		return executionReport{}, fmt.Errorf("ClOrdID %q was not issued by this gateway", clOrdID)
	}

	r := executionReport{OrderID: orderID}
	if r.OrdStatus, err = msg.GetOrdStatus(); err != nil {
		return executionReport{}, fmt.Errorf("execution report %s without OrdStatus: %v", clOrdID, err)
	}
	// optional fields keep their zero value when absent
	r.BrokerID, _ = msg.GetOrderID()
	r.ExecType, _ = msg.GetExecType()
	r.Side, _ = msg.GetSide()
	r.OrdType, _ = msg.GetOrdType()
	r.Symbol, _ = msg.GetSymbol()
	r.Account, _ = msg.GetAccount()
	r.OrderQty, _ = msg.GetOrderQty()
	r.Price, _ = msg.GetPrice()
	r.StopPx, _ = msg.GetStopPx()
	r.CumQty, _ = msg.GetCumQty()
	r.LeavesQty, _ = msg.GetLeavesQty()
	r.AvgPx, _ = msg.GetAvgPx()
	r.LastPx, _ = msg.GetLastPx()
	r.TimeInForce, _ = msg.GetTimeInForce()
	r.Text, _ = msg.GetText()
	r.TransactTime, _ = msg.GetTransactTime()
	return r, nil
}

// toCallbacks turns a report into the open-order and status callback
// payloads.
func (r executionReport) toCallbacks() (model.Contract, model.Order, model.OrderState, model.OrderStatusUpdate) {
	status, ok := OrderStatusMapping[r.OrdStatus]
	if !ok {
		status = model.OrderStatusSubmitted
	}
	permID := permanentID(r.BrokerID)

	contract := model.Contract{Symbol: r.Symbol}
	if r.Symbol != "" {
		contract = model.StockContract(r.Symbol)
	}

	order := model.Order{
		TotalQuantity: r.OrderQty,
		Account:       r.Account,
		PermID:        permID,
	}
	for code, t := range OrdTypeMapping {
		if t == r.OrdType {
			order.OrderType = code
		}
	}
	for action, side := range SideMapping {
		if side == r.Side {
			order.Action = action
		}
	}
	for code, tif := range TimeInForceMapping {
		if tif == r.TimeInForce {
			order.TimeInForce = code
		}
	}
	switch order.OrderType {
	case "STP":
		order.AuxPrice = r.StopPx
	case "STP LMT":
		order.LimitPrice, order.AuxPrice = r.Price, r.StopPx
	default:
		order.LimitPrice = r.Price
	}

	state := model.OrderState{
		Status:        status,
		Filled:        r.CumQty,
		Remaining:     r.LeavesQty,
		AvgFillPrice:  r.AvgPx,
		LastFillPrice: r.LastPx,
	}
	if r.OrdStatus == enum.OrdStatus_REJECTED {
		state.WarningText = r.Text
	}

	update := model.OrderStatusUpdate{
		OrderID:       r.OrderID,
		Status:        status,
		Filled:        r.CumQty,
		Remaining:     r.LeavesQty,
		AvgFillPrice:  r.AvgPx,
		PermID:        permID,
		LastFillPrice: r.LastPx,
		WhyHeld:       r.Text,
	}
	return contract, order, state, update
}

// permanentID derives a stable numeric id from the broker's OrderID.
func permanentID(brokerID string) int64 {
	if brokerID == "" {
		return 0
	}
	if id, err := strconv.ParseInt(brokerID, 10, 64); err == nil && id > 0 {
		return id
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(brokerID))
	return int64(h.Sum64() >> 1)
}
