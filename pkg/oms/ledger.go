package oms

import (
	"sort"
	"time"

	"github.com/joripage/stock-oms/pkg/oms/model"
)

type UpsertResult int

const (
	// UpsertOpen: the entry was created or merged and is still open.
	UpsertOpen UpsertResult = iota
	// UpsertTerminal: the merge made the entry terminal and it was removed.
	UpsertTerminal
	// UpsertIgnored: the order already went terminal; nothing changed. The
	// returned entry is the last merged state.
	UpsertIgnored
	// UpsertUnknown: a status update for an order the ledger never saw.
	UpsertUnknown
)

// Ledger is the set of open orders keyed by gateway order id. Owned by the
// dispatch loop, not safe for concurrent use.
type Ledger struct {
	entries map[int64]*model.OpenOrderEntry
	// tombstones remember terminal orders so replays do not resurrect them.
	tombstones map[int64]tombstone
}

type tombstone struct {
	at    time.Time
	entry model.OpenOrderEntry
}

func NewLedger() *Ledger {
	return &Ledger{
		entries:    map[int64]*model.OpenOrderEntry{},
		tombstones: map[int64]tombstone{},
	}
}

// Upsert merges an open-order report. The returned entry is a copy of the
// merged state, including when it has just been removed as terminal.
func (l *Ledger) Upsert(orderID int64, order model.Order, contract model.Contract, state model.OrderState, now time.Time) (model.OpenOrderEntry, UpsertResult) {
	if t, dead := l.tombstones[orderID]; dead {
		return t.entry, UpsertIgnored
	}

	e, ok := l.entries[orderID]
	if !ok {
		e = &model.OpenOrderEntry{OrderID: orderID}
		l.entries[orderID] = e
	}
	e.Order.Merge(order)
	e.Contract.Merge(contract)
	e.State.Merge(state)

	return l.settle(e, now)
}

// ApplyStatus merges a status update into a known entry.
func (l *Ledger) ApplyStatus(u model.OrderStatusUpdate, now time.Time) (model.OpenOrderEntry, UpsertResult) {
	if t, dead := l.tombstones[u.OrderID]; dead {
		return t.entry, UpsertIgnored
	}
	e, ok := l.entries[u.OrderID]
	if !ok {
		return model.OpenOrderEntry{}, UpsertUnknown
	}
	e.State.Merge(u.State())
	e.Order.Merge(model.Order{PermID: u.PermID, ParentID: u.ParentID, ClientID: u.ClientID})

	return l.settle(e, now)
}

func (l *Ledger) settle(e *model.OpenOrderEntry, now time.Time) (model.OpenOrderEntry, UpsertResult) {
	merged := *e
	if merged.State.Status.IsTerminal() {
		delete(l.entries, e.OrderID)
		l.tombstones[e.OrderID] = tombstone{at: now, entry: merged}
		return merged, UpsertTerminal
	}
	return merged, UpsertOpen
}

func (l *Ledger) Get(orderID int64) (model.OpenOrderEntry, bool) {
	e, ok := l.entries[orderID]
	if !ok {
		return model.OpenOrderEntry{}, false
	}
	return *e, true
}

// All returns copies ordered by order id.
func (l *Ledger) All() []model.OpenOrderEntry {
	out := make([]model.OpenOrderEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (l *Ledger) Len() int { return len(l.entries) }

// PruneTombstones forgets terminal orders that ended before cutoff.
func (l *Ledger) PruneTombstones(cutoff time.Time) int {
	n := 0
	for id, t := range l.tombstones {
		if t.at.Before(cutoff) {
			delete(l.tombstones, id)
			n++
		}
	}
	return n
}
