package oms

import (
	"context"
	"sync"

	"github.com/joripage/stock-oms/pkg/oms/model"
)

// Checks tells whether the conflict checks ran against a complete view.
// False means the query timed out and the check used what was at hand.
type Checks struct {
	OpenOrdersConclusive bool `json:"openOrdersConclusive"`
	PositionsConclusive  bool `json:"positionsConclusive"`
}

// Ticket tracks one accepted request until it is submitted or fails.
type Ticket struct {
	Ref    string
	Checks Checks

	once      sync.Once
	done      chan struct{}
	placement model.Placement
	err       error
}

func newTicket(ref string, checks Checks) *Ticket {
	return &Ticket{Ref: ref, Checks: checks, done: make(chan struct{})}
}

// Done is closed once the request was submitted or failed.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Result blocks until Done is closed.
func (t *Ticket) Result() (model.Placement, error) {
	<-t.done
	return t.placement, t.err
}

func (t *Ticket) Wait(ctx context.Context) (model.Placement, error) {
	select {
	case <-t.done:
		return t.placement, t.err
	case <-ctx.Done():
		return model.Placement{}, ctx.Err()
	}
}

func (t *Ticket) resolve(p model.Placement, err error) {
	t.once.Do(func() {
		t.placement, t.err = p, err
		close(t.done)
	})
}
