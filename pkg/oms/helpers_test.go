package oms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joripage/stock-oms/pkg/oms/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type submittedOrder struct {
	id       int64
	contract model.Contract
	order    model.Order
}

// fakeGateway records requests. Tests drive callbacks through the OMS
// handler methods directly.
type fakeGateway struct {
	mu            sync.Mutex
	handler       GatewayHandler
	identReqs     int
	openOrderReqs int
	submitted     []submittedOrder
	submitErr     error
	// silent leaves RequestAllOpenOrders unanswered.
	silent bool
}

func (g *fakeGateway) Start(_ context.Context, h GatewayHandler) error {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) RequestNextIdentifier(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.identReqs++
	return nil
}

func (g *fakeGateway) SubmitOrder(_ context.Context, id int64, c model.Contract, o model.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return g.submitErr
	}
	g.submitted = append(g.submitted, submittedOrder{id: id, contract: c, order: o})
	return nil
}

func (g *fakeGateway) RequestAllOpenOrders(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openOrderReqs++
	if !g.silent && g.handler != nil {
		go g.handler.OnOpenOrderEnd()
	}
	return nil
}

func (g *fakeGateway) setSilent(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.silent = v
}

func (g *fakeGateway) openOrderRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openOrderReqs
}

func (g *fakeGateway) identifierRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identReqs
}

func (g *fakeGateway) submissions() []submittedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]submittedOrder(nil), g.submitted...)
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identReqs + g.openOrderReqs + len(g.submitted)
}

type published struct {
	topic string
	key   string
	v     any
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(_ context.Context, topic, key string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{topic: topic, key: key, v: v})
	return nil
}

func (b *recordingBus) byTopic(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, e := range b.events {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

type trackerFunc func(ctx context.Context) ([]model.Position, error)

func (f trackerFunc) Positions(ctx context.Context) ([]model.Position, error) { return f(ctx) }

func testConfig() Config {
	return Config{
		SettleDelay:       0,
		IdentifierTimeout: 5 * time.Second,
		QueryTimeout:      200 * time.Millisecond,
	}
}

func startOMS(t *testing.T, gw *fakeGateway, opts ...Option) *OMS {
	t.Helper()
	s := New(gw, append([]Option{WithConfig(testConfig())}, opts...)...)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}

func limitRequest(symbol string, action model.OrderAction) model.OrderRequest {
	return model.OrderRequest{
		Symbol:     symbol,
		Action:     action,
		OrderType:  "limit",
		Parameters: []any{100, 150.5},
	}
}

func exitRequest(symbol string, entry, exit string) model.OrderRequest {
	r := limitRequest(symbol, model.OrderActionSell)
	r.ExitTrade = true
	r.ExitParams = &model.ExitParams{
		EntryPrice: decimal.RequireFromString(entry),
		EntryTime:  time.Date(2026, 10, 1, 14, 30, 0, 0, time.UTC),
		ExitPrice:  decimal.RequireFromString(exit),
		ExitTime:   time.Date(2026, 10, 2, 15, 0, 0, 0, time.UTC),
	}
	return r
}

func openOrder(s *OMS, id int64, symbol string, action model.OrderAction, status model.OrderStatus) {
	s.OnOpenOrder(id,
		model.StockContract(symbol),
		model.Order{Action: action, TotalQuantity: decimal.NewFromInt(100), OrderType: "LMT"},
		model.OrderState{Status: status},
	)
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond
