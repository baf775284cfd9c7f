package oms

import (
	"sort"
	"time"

	"github.com/joripage/stock-oms/pkg/oms/model"
)

// Correlator maps gateway ticker ids back to the requests that consumed them.
// There is at most one correlation per symbol: binding a symbol again
// replaces the previous correlation. Owned by the dispatch loop.
type Correlator struct {
	bySymbol map[string]*model.TickerCorrelation
	byTicker map[int64]*model.TickerCorrelation
}

func NewCorrelator() *Correlator {
	return &Correlator{
		bySymbol: map[string]*model.TickerCorrelation{},
		byTicker: map[int64]*model.TickerCorrelation{},
	}
}

func (c *Correlator) Bind(tickerID int64, symbol string, req model.OrderRequest, now time.Time) {
	if prev, ok := c.bySymbol[symbol]; ok {
		delete(c.byTicker, prev.TickerID)
	}
	if prev, ok := c.byTicker[tickerID]; ok {
		delete(c.bySymbol, prev.Symbol)
	}
	corr := &model.TickerCorrelation{
		TickerID: tickerID,
		Symbol:   symbol,
		Request:  req,
		BoundAt:  now,
	}
	c.bySymbol[symbol] = corr
	c.byTicker[tickerID] = corr
}

// Unbind drops the correlation of tickerID, used when a bound request never
// reached the gateway.
func (c *Correlator) Unbind(tickerID int64) {
	corr, ok := c.byTicker[tickerID]
	if !ok {
		return
	}
	delete(c.byTicker, tickerID)
	if c.bySymbol[corr.Symbol] == corr {
		delete(c.bySymbol, corr.Symbol)
	}
}

// OnPermanentID records the broker's permanent id. Reports whether anything
// changed.
func (c *Correlator) OnPermanentID(tickerID, permID int64) bool {
	corr, ok := c.byTicker[tickerID]
	if !ok || permID == 0 || corr.PermID == permID {
		return false
	}
	corr.PermID = permID
	return true
}

func (c *Correlator) LookupByTickerID(tickerID int64) (model.TickerCorrelation, bool) {
	corr, ok := c.byTicker[tickerID]
	if !ok {
		return model.TickerCorrelation{}, false
	}
	return *corr, true
}

func (c *Correlator) LookupBySymbol(symbol string) (model.TickerCorrelation, bool) {
	corr, ok := c.bySymbol[symbol]
	if !ok {
		return model.TickerCorrelation{}, false
	}
	return *corr, true
}

// MarkTerminal stamps the correlation so it is pruned after the retention
// window. Returns false when tickerID is unknown.
func (c *Correlator) MarkTerminal(tickerID int64, now time.Time) bool {
	corr, ok := c.byTicker[tickerID]
	if !ok {
		return false
	}
	if corr.TerminalAt.IsZero() {
		corr.TerminalAt = now
	}
	return true
}

// PruneTerminal removes correlations that went terminal before cutoff.
func (c *Correlator) PruneTerminal(cutoff time.Time) int {
	n := 0
	for id, corr := range c.byTicker {
		if corr.Terminal() && corr.TerminalAt.Before(cutoff) {
			c.Unbind(id)
			n++
		}
	}
	return n
}

func (c *Correlator) All() []model.TickerCorrelation {
	out := make([]model.TickerCorrelation, 0, len(c.byTicker))
	for _, corr := range c.byTicker {
		out = append(out, *corr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TickerID < out[j].TickerID })
	return out
}

func (c *Correlator) Len() int { return len(c.byTicker) }
