package simconnect

import (
	"context"
	"strconv"
	"sync"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// sink is the loop-side view of a delivery queue: it decodes object data
// into the queue's element type.
type sink interface {
	deliver(od *recv.ObjectData) error
	close()
}

// delivery is an unbounded FIFO of decoded values for one define id. The
// dispatch loop is the only producer. Callers that never drain it grow it
// without limit.
type delivery[T any] struct {
	defineId uint32
	metrics  *dispatchMetrics
	label    string
	// loopDone is closed when the dispatch loop exits, whether or not it
	// saw this queue. stopping is closed as soon as the loop is told to stop,
	// which may be while the loop itself is blocked in an event handler.
	loopDone <-chan struct{}
	stopping <-chan struct{}

	mut_items sync.Mutex
	items     []T
	closed    bool
	// notify is closed and replaced on every push, waking all waiters.
	notify chan struct{}
}

func newDelivery[T any](defineId uint32, metrics *dispatchMetrics, loopDone, stopping <-chan struct{}) *delivery[T] {
	return &delivery[T]{
		defineId:  defineId,
		metrics:   metrics,
		label:     strconv.FormatUint(uint64(defineId), 10),
		loopDone:  loopDone,
		stopping:  stopping,
		mut_items: sync.Mutex{},
		items:     make([]T, 0),
		notify:    make(chan struct{}),
	}
}

func (d *delivery[T]) deliver(od *recv.ObjectData) error {
	var value T
	if err := wire.DecodeInto(od.Data, &value); err != nil {
		return err
	}
	d.push(value)
	return nil
}

func (d *delivery[T]) push(value T) {
	d.mut_items.Lock()
	defer d.mut_items.Unlock()

	if d.closed {
		return
	}
	d.items = append(d.items, value)
	d.metrics.setDepth(d.label, len(d.items))
	close(d.notify)
	d.notify = make(chan struct{})
}

func (d *delivery[T]) close() {
	d.mut_items.Lock()
	defer d.mut_items.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.notify)
}

func (d *delivery[T]) hasData() bool {
	d.mut_items.Lock()
	defer d.mut_items.Unlock()
	return len(d.items) > 0
}

func (d *delivery[T]) depth() int {
	d.mut_items.Lock()
	defer d.mut_items.Unlock()
	return len(d.items)
}

// take blocks until at least one value is queued, then removes either the
// oldest value or, with latest set, every value keeping only the newest.
// Queued values are still handed out after the queue is closed.
func (d *delivery[T]) take(ctx context.Context, latest bool) (T, error) {
	var zero T
	for {
		d.mut_items.Lock()
		if n := len(d.items); n > 0 {
			var value T
			if latest {
				value = d.items[n-1]
				d.items = d.items[:0]
			} else {
				value = d.items[0]
				d.items[0] = zero
				d.items = d.items[1:]
			}
			d.metrics.setDepth(d.label, len(d.items))
			d.mut_items.Unlock()
			return value, nil
		}
		if d.closed {
			d.mut_items.Unlock()
			return zero, errors.ErrChannelClosed
		}
		notify := d.notify
		d.mut_items.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-notify:
		case <-d.loopDone:
			d.close()
		case <-d.stopping:
			d.close()
		}
	}
}
