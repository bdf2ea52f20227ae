// Package simconnect is a typed client for the simulator host's native data
// API. A Client owns one connection and one background dispatch loop that
// routes host records to delivery queues, event handlers and state waiters.
package simconnect

import (
	"context"
	goerrs "errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sessamekesh/simconnect-bridge/internal/registry"
	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
	"github.com/sessamekesh/simconnect-bridge/pkg/native"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	PeriodNever       = native.Period_Never
	PeriodOnce        = native.Period_Once
	PeriodVisualFrame = native.Period_VisualFrame
	PeriodSimFrame    = native.Period_SimFrame
	PeriodSecond      = native.Period_Second
)

var ErrEmptyProgramName = goerrs.New("program name must not be empty")

type Config struct {
	// ProgramName identifies this client to the host and namespaces every
	// structure registration.
	ProgramName string

	// Library is the native call boundary. Nil loads the vendor DLL from
	// native.DefaultLibraryPath.
	Library native.Library

	PollInterval time.Duration
	Logger       *zap.Logger
	Registerer   prometheus.Registerer

	AnnouncementBufferLength int
}

type Client struct {
	config  Config
	log     *zap.Logger
	handle  *native.Handle
	table   *registry.Table
	metrics *dispatchMetrics

	ownedLibrary *native.DLL

	mut_declare    sync.Mutex
	mut_deliveries sync.RWMutex
	deliveries     map[uint32]any

	mut_events sync.Mutex
	subscribed map[recv.SystemEvent]bool

	announcements chan<- announcement
	hostInfo      atomic.Pointer[recv.Open]
	sessionEnded  atomic.Bool

	// stopping is closed once Close is called or the Open context ends,
	// before the loop has necessarily exited.
	stopping <-chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	loopErr  error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open connects to the host and starts the dispatch loop. The loop runs until
// Close is called, ctx is cancelled or the host ends the session.
func Open(ctx context.Context, config Config) (*Client, error) {
	log := config.Logger
	if log == nil {
		log = zap.Must(zap.NewDevelopment())
	}
	log = log.With(zap.String("handler", "simconnect"), zap.String("program", config.ProgramName))

	if config.ProgramName == "" {
		return nil, &errors.ConnectionFailed{ProgramName: config.ProgramName, Cause: ErrEmptyProgramName}
	}

	pollInterval := time.Second
	if config.PollInterval > 0 {
		pollInterval = config.PollInterval
	}
	announcementBufferLength := 64
	if config.AnnouncementBufferLength > 0 {
		announcementBufferLength = config.AnnouncementBufferLength
	}

	lib := config.Library
	var ownedLibrary *native.DLL
	if lib == nil {
		dll, err := native.LoadLibrary(native.DefaultLibraryPath())
		if err != nil {
			return nil, &errors.ConnectionFailed{ProgramName: config.ProgramName, Cause: err}
		}
		lib = dll
		ownedLibrary = dll
	}

	handle, err := native.Open(lib, config.ProgramName, log)
	if err != nil {
		if ownedLibrary != nil {
			ownedLibrary.Release()
		}
		return nil, err
	}

	announcements := make(chan announcement, announcementBufferLength)
	metrics := newDispatchMetrics(config.Registerer, config.ProgramName)
	loopCtx, cancel := context.WithCancel(ctx)

	c := &Client{
		config:         config,
		log:            log,
		handle:         handle,
		table:          registry.CreateTable(),
		metrics:        metrics,
		ownedLibrary:   ownedLibrary,
		mut_declare:    sync.Mutex{},
		mut_deliveries: sync.RWMutex{},
		deliveries:     make(map[uint32]any),
		mut_events:     sync.Mutex{},
		subscribed:     make(map[recv.SystemEvent]bool),
		announcements:  announcements,
		stopping:       loopCtx.Done(),
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	d := &dispatcher{
		handle:        handle,
		log:           log.With(zap.String("component", "dispatch")),
		metrics:       metrics,
		pollInterval:  pollInterval,
		announcements: announcements,
		sinks:         make(map[uint32]sink),
		handlers:      make(map[recv.SystemEvent]EventHandler),
		waiters:       make(map[recv.SimStateArgs][]stateWaiterAnnouncement),
		onOpen:        c.hostInfo.Store,
		onQuit:        func() { c.sessionEnded.Store(true) },
	}

	go func() {
		defer close(c.done)
		c.loopErr = d.run(loopCtx)
	}()

	return c, nil
}

func (c *Client) ProgramName() string {
	return c.config.ProgramName
}

// HostInfo is the host's Open acknowledgement, or nil until it has been
// received.
func (c *Client) HostInfo() *recv.Open {
	return c.hostInfo.Load()
}

// Done is closed when the dispatch loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SessionEnded reports whether the host sent a Quit record.
func (c *Client) SessionEnded() bool {
	return c.sessionEnded.Load()
}

// Err returns the dispatch loop's terminal error once Done is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.loopErr
	default:
		return nil
	}
}

func (c *Client) loopRunning() bool {
	if c.closed.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	case <-c.stopping:
		return false
	default:
		return true
	}
}

func (c *Client) announce(ctx context.Context, a announcement) error {
	if !c.loopRunning() {
		return errors.ErrChannelClosed
	}
	select {
	case c.announcements <- a:
		return nil
	case <-c.done:
		return errors.ErrChannelClosed
	case <-c.stopping:
		return errors.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs one native call, reporting a released handle as a closed client.
func (c *Client) call(name string, fn func(lib native.Library, raw native.RawHandle) int32) error {
	if c.closed.Load() {
		return errors.ErrChannelClosed
	}
	err := c.handle.Call(name, fn)
	if goerrs.Is(err, errors.ErrHandleClosed) {
		return errors.ErrChannelClosed
	}
	return err
}

// RegisterStruct declares T's layout to the host and returns its define id.
// The first registration sends one AddToDataDefinition per field in
// declaration order; later registrations of the same type return the same id.
func RegisterStruct[T any](c *Client) (uint32, error) {
	layout, err := wire.Describe[T]()
	if err != nil {
		return 0, err
	}
	identity := registry.Identity(c.config.ProgramName, layout.GoType)

	c.mut_declare.Lock()
	defer c.mut_declare.Unlock()

	if !c.loopRunning() {
		return 0, errors.ErrChannelClosed
	}

	entry, created, err := c.table.Register(identity, layout)
	if err != nil {
		return 0, err
	}
	if !created {
		_, declareErr := entry.DeclarationState()
		return entry.Id, declareErr
	}

	declareErr := c.declare(entry.Id, layout)
	if declareErr == nil {
		d := newDelivery[T](entry.Id, c.metrics, c.done, c.stopping)

		c.mut_deliveries.Lock()
		c.deliveries[entry.Id] = d
		c.mut_deliveries.Unlock()

		declareErr = c.announce(context.Background(), deliveryAnnouncement{DefineId: entry.Id, Sink: d})
	}
	c.table.MarkDeclared(entry.Id, declareErr)

	if declareErr != nil {
		c.log.Warn("Failed to declare structure", zap.String("identity", identity), zap.Error(declareErr))
		return entry.Id, declareErr
	}

	c.log.Info("Registered structure",
		zap.String("identity", identity),
		zap.Uint32("defineId", entry.Id),
		zap.Int("fields", len(layout.Fields)),
		zap.Uint64("fingerprint", layout.Fingerprint))
	return entry.Id, nil
}

func (c *Client) declare(defineId uint32, layout *wire.Layout) error {
	for _, f := range layout.Fields {
		name, err := wire.EncodeString(f.Name)
		if err != nil {
			return err
		}
		var unit []byte
		if f.Unit != "" {
			if unit, err = wire.EncodeString(f.Unit); err != nil {
				return err
			}
		}

		f := f
		err = c.call("AddToDataDefinition", func(lib native.Library, raw native.RawHandle) int32 {
			return lib.AddToDataDefinition(raw, defineId, name, unit, f.DataType, f.Id)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func deliveryFor[T any](c *Client) (*delivery[T], error) {
	identity := registry.Identity(c.config.ProgramName, reflect.TypeOf((*T)(nil)).Elem())

	id, has := c.table.Lookup(identity)
	if !has {
		return nil, &errors.NotRegistered{Identity: identity}
	}

	c.mut_deliveries.RLock()
	defer c.mut_deliveries.RUnlock()

	d, ok := c.deliveries[id].(*delivery[T])
	if !ok {
		return nil, &errors.NotRegistered{Identity: identity}
	}
	return d, nil
}

// RequestData asks the host to send T for the user aircraft at the given
// period. PeriodNever cancels an earlier periodic request.
func RequestData[T any](c *Client, period native.Period) error {
	d, err := deliveryFor[T](c)
	if err != nil {
		return err
	}
	return c.requestData(d.defineId, period)
}

func (c *Client) requestData(defineId uint32, period native.Period) error {
	return c.call("RequestDataOnSimObject", func(lib native.Library, raw native.RawHandle) int32 {
		return lib.RequestDataOnSimObject(raw, defineId, defineId, native.ObjectId_User, period)
	})
}

// RequestLatest requests T once and blocks for the newest queued value,
// discarding any older backlog.
func RequestLatest[T any](ctx context.Context, c *Client) (T, error) {
	var zero T
	d, err := deliveryFor[T](c)
	if err != nil {
		return zero, err
	}
	if !c.loopRunning() {
		return zero, errors.ErrChannelClosed
	}
	if err := c.requestData(d.defineId, native.Period_Once); err != nil {
		return zero, err
	}
	return d.take(ctx, true)
}

// Next blocks for the oldest queued value of T without issuing a request.
func Next[T any](ctx context.Context, c *Client) (T, error) {
	var zero T
	d, err := deliveryFor[T](c)
	if err != nil {
		return zero, err
	}
	return d.take(ctx, false)
}

// HasData reports whether a value of T is queued. It never blocks.
func HasData[T any](c *Client) bool {
	d, err := deliveryFor[T](c)
	if err != nil {
		return false
	}
	return d.hasData()
}

// Pending is the number of undrained values of T.
func Pending[T any](c *Client) int {
	d, err := deliveryFor[T](c)
	if err != nil {
		return 0
	}
	return d.depth()
}

// SubscribeEvent routes every event of the given kind to handler, replacing
// any earlier handler for that kind.
func (c *Client) SubscribeEvent(event recv.SystemEvent, handler EventHandler) error {
	if !event.Valid() {
		return &errors.InvalidEnumValue{EnumName: "SystemEvent", IntValue: uint32(event)}
	}
	if handler == nil {
		return goerrs.New("event handler must not be nil")
	}

	c.mut_events.Lock()
	defer c.mut_events.Unlock()

	// Installed before the host is asked, so the first event has somewhere
	// to go.
	if err := c.announce(context.Background(), subscribeAnnouncement{Event: event, Handler: handler}); err != nil {
		return err
	}
	if c.subscribed[event] {
		return nil
	}

	name, err := wire.EncodeName(event)
	if err != nil {
		return err
	}
	err = c.call("SubscribeToSystemEvent", func(lib native.Library, raw native.RawHandle) int32 {
		return lib.SubscribeToSystemEvent(raw, uint32(event), name)
	})
	if err != nil {
		c.announce(context.Background(), unsubscribeAnnouncement{Event: event})
		return err
	}

	c.subscribed[event] = true
	c.log.Info("Subscribed to system event", zap.String("event", event.SimName()))
	return nil
}

// UnsubscribeEvent stops delivery of the given kind. Unsubscribing a kind
// that has no subscription does nothing.
func (c *Client) UnsubscribeEvent(event recv.SystemEvent) error {
	c.mut_events.Lock()
	defer c.mut_events.Unlock()

	if !c.subscribed[event] {
		return nil
	}

	err := c.call("UnsubscribeFromSystemEvent", func(lib native.Library, raw native.RawHandle) int32 {
		return lib.UnsubscribeFromSystemEvent(raw, uint32(event))
	})
	if err != nil {
		return err
	}
	delete(c.subscribed, event)

	if err := c.announce(context.Background(), unsubscribeAnnouncement{Event: event}); err != nil {
		return err
	}
	c.log.Info("Unsubscribed from system event", zap.String("event", event.SimName()))
	return nil
}

// RequestSystemState asks the host for one piece of state and blocks for the
// matching reply. It returns ErrChannelClosed as soon as Close is called.
func (c *Client) RequestSystemState(ctx context.Context, kind recv.SimStateArgs) (*recv.SystemState, error) {
	if !kind.Valid() {
		return nil, &errors.InvalidEnumValue{EnumName: "SimStateArgs", IntValue: uint32(kind)}
	}
	name, err := wire.EncodeName(kind)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reply := make(chan stateReply, 1)
	if err := c.announce(waitCtx, stateWaiterAnnouncement{Ctx: waitCtx, Kind: kind, Reply: reply}); err != nil {
		return nil, err
	}

	err = c.call("RequestSystemState", func(lib native.Library, raw native.RawHandle) int32 {
		return lib.RequestSystemState(raw, uint32(kind), name)
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.State, r.Err
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	case <-c.done:
		select {
		case r := <-reply:
			return r.State, r.Err
		default:
			return nil, errors.ErrChannelClosed
		}
	case <-c.stopping:
		return nil, errors.ErrChannelClosed
	}
}

// Close stops the dispatch loop, waits for it to exit and releases the
// connection. The handle is released even when the loop failed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		<-c.done

		err := c.loopErr
		err = multierr.Append(err, c.handle.Close())
		if c.ownedLibrary != nil {
			err = multierr.Append(err, c.ownedLibrary.Release())
		}
		c.closeErr = err
		c.log.Info("Client closed", zap.Error(err))
	})
	return c.closeErr
}
