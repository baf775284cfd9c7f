package model

import "time"

// TickerCorrelation ties a gateway-issued transient id back to the request
// that consumed it.
type TickerCorrelation struct {
	TickerID int64        `json:"tickerId"`
	PermID   int64        `json:"permId,omitempty"`
	Symbol   string       `json:"symbol"`
	Request  OrderRequest `json:"request"`
	BoundAt  time.Time    `json:"boundAt"`
	// TerminalAt is set once the correlated order reached a terminal state.
	TerminalAt time.Time `json:"terminalAt,omitempty"`
}

func (c TickerCorrelation) Terminal() bool { return !c.TerminalAt.IsZero() }

// Placement is what a successful enqueue eventually resolves to.
type Placement struct {
	Ref      string `json:"ref"`
	TickerID int64  `json:"tickerId"`
	Symbol   string `json:"symbol"`
}
