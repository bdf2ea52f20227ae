package simconnect

import (
	"context"
	"fmt"
	"time"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
	"github.com/sessamekesh/simconnect-bridge/pkg/native"
	"go.uber.org/zap"
)

// EventHandler receives system events for the kind it was subscribed to.
// Handlers run on the dispatch goroutine and should return quickly. A handler
// must not make blocking calls on the Client (RequestSystemState,
// RequestLatest, Next): their replies are routed by the goroutine the handler
// is holding, so they only return once Close is called or their context
// ends. Start a goroutine for such calls instead.
type EventHandler interface {
	HandleEvent(ev *recv.SystemEventData)
}

type EventHandlerFunc func(ev *recv.SystemEventData)

func (f EventHandlerFunc) HandleEvent(ev *recv.SystemEventData) {
	f(ev)
}

// dispatcher is the single background consumer of host records. Its routing
// tables are touched only from run.
type dispatcher struct {
	handle       *native.Handle
	log          *zap.Logger
	metrics      *dispatchMetrics
	pollInterval time.Duration

	announcements <-chan announcement

	sinks    map[uint32]sink
	handlers map[recv.SystemEvent]EventHandler
	waiters  map[recv.SimStateArgs][]stateWaiterAnnouncement

	onOpen func(open *recv.Open)
	onQuit func()
}

func (d *dispatcher) run(ctx context.Context) (err error) {
	defer d.shutdown()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch loop panicked: %v", r)
			d.log.Error("Dispatch loop panicked", zap.Any("panic", r))
		}
	}()

	d.log.Info("Dispatch loop starting", zap.Duration("pollInterval", d.pollInterval))

	for {
		d.drainAnnouncements()

		select {
		case <-ctx.Done():
			d.log.Info("Dispatch loop stopping")
			return nil
		default:
		}

		record, has, pollErr := d.handle.Poll()
		if pollErr != nil {
			d.log.Error("Polling the host failed", zap.Error(pollErr))
			return pollErr
		}

		if !has {
			d.metrics.emptyPoll()
			timer := time.NewTimer(d.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				d.log.Info("Dispatch loop stopping")
				return nil
			case <-timer.C:
			}
			continue
		}

		// The record may answer something announced while we were polling.
		d.drainAnnouncements()

		if quit := d.route(record); quit {
			d.log.Info("Host ended the session")
			if d.onQuit != nil {
				d.onQuit()
			}
			return nil
		}
	}
}

func (d *dispatcher) drainAnnouncements() {
	for {
		select {
		case a := <-d.announcements:
			d.apply(a)
		default:
			return
		}
	}
}

func (d *dispatcher) apply(a announcement) {
	switch msg := a.(type) {
	case deliveryAnnouncement:
		d.sinks[msg.DefineId] = msg.Sink
		d.log.Debug("Delivery queue announced", zap.Uint32("defineId", msg.DefineId))
	case subscribeAnnouncement:
		d.handlers[msg.Event] = msg.Handler
		d.log.Debug("Event handler installed", zap.String("event", msg.Event.SimName()))
	case unsubscribeAnnouncement:
		delete(d.handlers, msg.Event)
		d.log.Debug("Event handler removed", zap.String("event", msg.Event.SimName()))
	case stateWaiterAnnouncement:
		d.waiters[msg.Kind] = append(d.waiters[msg.Kind], msg)
	default:
		d.log.Warn("Unknown announcement", zap.String("announcement", a.announcementName()))
	}
}

// route delivers one record and reports whether it ended the session. Decode
// failures are logged and the record is skipped.
func (d *dispatcher) route(record []byte) bool {
	ev, err := recv.Decode(record)
	if err != nil {
		d.metrics.decodeError()
		d.log.Warn("Skipping undecodable record", zap.Error(err), zap.Int("size", len(record)))
		return false
	}
	d.metrics.recordReceived(ev.RecordName())

	switch msg := ev.(type) {
	case *recv.ObjectData:
		d.routeObjectData(msg)
	case *recv.SystemEventData:
		d.routeSystemEvent(msg)
	case *recv.SystemState:
		d.routeSystemState(msg)
	case *recv.Open:
		d.log.Info("Connected to host",
			zap.String("application", msg.ApplicationName),
			zap.Stringer("version", msg.ApplicationVersion),
			zap.Stringer("simConnectVersion", msg.SimConnectVersion))
		if d.onOpen != nil {
			d.onOpen(msg)
		}
	case *recv.Exception:
		d.log.Warn("Host rejected a request",
			zap.String("exception", msg.Name()),
			zap.Uint32("sendId", msg.SendId),
			zap.Uint32("index", msg.Index))
	case recv.Quit:
		return true
	case recv.Null:
	}
	return false
}

func (d *dispatcher) routeObjectData(od *recv.ObjectData) {
	s, has := d.sinks[od.DefineId]
	if !has {
		d.metrics.droppedObjectData()
		d.log.Debug("Dropping object data for unclaimed define id", zap.Uint32("defineId", od.DefineId))
		return
	}

	if err := s.deliver(od); err != nil {
		d.metrics.decodeError()
		d.log.Warn("Skipping undecodable object data", zap.Uint32("defineId", od.DefineId), zap.Error(err))
	}
}

func (d *dispatcher) routeSystemEvent(ev *recv.SystemEventData) {
	handler, has := d.handlers[ev.Event]
	if !has {
		return
	}
	d.metrics.handlerCalled(ev.Event.SimName())
	handler.HandleEvent(ev)
}

func (d *dispatcher) routeSystemState(state *recv.SystemState) {
	queue := d.waiters[state.Kind]
	for len(queue) > 0 {
		waiter := queue[0]
		queue = queue[1:]
		if waiter.Ctx.Err() != nil {
			continue
		}
		waiter.Reply <- stateReply{State: state}
		d.metrics.stateReplied()
		d.waiters[state.Kind] = queue
		return
	}
	d.waiters[state.Kind] = queue
	d.log.Debug("No caller waiting for system state", zap.Stringer("kind", state.Kind))
}

// shutdown closes every delivery queue and fails every waiter, including
// ones announced but not yet applied.
func (d *dispatcher) shutdown() {
	d.drainAnnouncements()

	for _, s := range d.sinks {
		s.close()
	}
	for kind, queue := range d.waiters {
		for _, waiter := range queue {
			waiter.Reply <- stateReply{Err: errors.ErrChannelClosed}
		}
		delete(d.waiters, kind)
	}
}
